package playback

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/astrid-voss/musium/internal/history"
	"github.com/astrid-voss/musium/internal/indexbuilder"
	"github.com/astrid-voss/musium/internal/mvar"
	"github.com/astrid-voss/musium/internal/player"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/scanner"
	"github.com/google/uuid"
)

// fakeDevice is a Device whose buffer behavior is scripted by the test:
// avail controls how many frames AvailUpdate reports free, and state is
// whatever the test wants writeSamples to see.
type fakeDevice struct {
	state    PCMState
	avail    int
	written  [][]float64
	volumes  []prim.Millibel
	formats  []Format
	drained  int
	started  int
	prepared int
	resumed  int
	closed   bool
	availErr error
	writeErr error
}

func (d *fakeDevice) State() PCMState { return d.state }

func (d *fakeDevice) AvailUpdate() (int, error) {
	if d.availErr != nil {
		return 0, d.availErr
	}
	return d.avail, nil
}

func (d *fakeDevice) WriteBlock(nAvailable int, left, right []float64) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	n := len(left)
	if n > nAvailable {
		n = nAvailable
	}
	d.written = append(d.written, append([]float64{}, left[:n]...))
	return n, nil
}

func (d *fakeDevice) SetFormat(f Format) error {
	d.formats = append(d.formats, f)
	// A real device leaves StateOpen for StatePrepared once hw_params are
	// applied; the fake mirrors that one transition so tests exercising a
	// full format-change round trip see realistic state() calls afterward.
	d.state = StatePrepared
	return nil
}
func (d *fakeDevice) SetVolume(v prim.Millibel) error {
	d.volumes = append(d.volumes, v)
	return nil
}
func (d *fakeDevice) Prepare() error                   { d.prepared++; return nil }
func (d *fakeDevice) Start() error                     { d.started++; return nil }
func (d *fakeDevice) Drain() error                     { d.drained++; return nil }
func (d *fakeDevice) Resume() error                    { d.resumed++; return nil }
func (d *fakeDevice) Poll(maxWait time.Duration) error { return nil }
func (d *fakeDevice) Close() error                     { d.closed = true; return nil }

type stubOpener struct {
	dev *fakeDevice
	err error
}

func (o *stubOpener) Open(cardName, volumeControlName string) (Device, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.dev, nil
}

// fakeFileMetadata builds a minimally valid scanner.FileMetadata so
// indexbuilder.BuildFromScan accepts it. Filename points nowhere on disk:
// the decode goroutine's open failure is itself production behavior (an
// already-finished block of one silent sample, see decode.go), which is
// exactly the single-sample block these tests need to exercise
// PeekBlock/Consume.
func fakeFileMetadata(fileID int64) scanner.FileMetadata {
	return scanner.FileMetadata{
		FileID:   fileID,
		Filename: "/nonexistent/does-not-exist.flac",
		StreamInfo: scanner.StreamInfo{
			SampleRate:    44100,
			BitsPerSample: 16,
			Channels:      2,
		},
		Tags: map[string]string{
			"tracknumber":               "1",
			"discnumber":                "1",
			"musicbrainz_albumartistid": "11111111-1111-1111-1111-111111111111",
			"musicbrainz_albumid":       "22222222-2222-2222-2222-222222222222",
			"originaldate":              "2020",
			"title":                     "Test Title",
			"artist":                    "Test Artist",
			"album":                     "Test Album",
			"albumartist":               "Test Artist",
		},
	}
}

// newTestPlayer builds a Player backed by a real, minimal MemoryIndex with
// one track, so Enqueue and the decode goroutine run production code
// paths end to end.
func newTestPlayer(t *testing.T, events chan<- history.Event) (*player.Player, prim.TrackID) {
	t.Helper()
	fm := fakeFileMetadata(1)
	idx := indexbuilder.BuildFromScan([]scanner.FileMetadata{fm})

	albumID := prim.NewAlbumID(uuid.MustParse("22222222-2222-2222-2222-222222222222"))
	trackID := prim.NewTrackID(albumID, 1, 1)
	if _, ok := idx.GetTrack(trackID); !ok {
		t.Fatal("BuildFromScan did not produce the expected track")
	}

	pl := player.New(mvar.New(idx), events, 0, 0, [32]byte{}, slog.Default())
	return pl, trackID
}

// waitForBlock polls until the decode goroutine has produced a block for
// the queue's front track, or fails the test after a timeout.
func waitForBlock(t *testing.T, pl *player.Player) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pl.PeekBlock() != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for the decode goroutine to produce a block")
}

func TestWriteSamplesYieldsWhenNothingDecoded(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	dev := &fakeDevice{state: StateRunning, avail: 100}

	res, _, err := writeSamples(dev, Format{SampleRate: 44100, BitsPerSample: 16}, pl)
	if err != nil {
		t.Fatal(err)
	}
	if res != resultYield {
		t.Fatalf("result = %v, want resultYield", res)
	}
}

func TestWriteSamplesChangeFormatWhenOpen(t *testing.T) {
	pl, trackID := newTestPlayer(t, nil)
	if _, ok := pl.Enqueue(trackID); !ok {
		t.Fatal("Enqueue failed")
	}
	waitForBlock(t, pl)

	dev := &fakeDevice{state: StateOpen, avail: 0}
	res, format, err := writeSamples(dev, Format{}, pl)
	if err != nil {
		t.Fatal(err)
	}
	if res != resultChangeFormat {
		t.Fatalf("result = %v, want resultChangeFormat", res)
	}
	if format.SampleRate != 44100 || format.BitsPerSample != 16 {
		t.Fatalf("format = %+v, want 44100/16 (decode.go's open-failure fallback block)", format)
	}
}

func TestWriteSamplesConsumesAndReportsYieldOnFullBuffer(t *testing.T) {
	pl, trackID := newTestPlayer(t, nil)
	if _, ok := pl.Enqueue(trackID); !ok {
		t.Fatal("Enqueue failed")
	}
	waitForBlock(t, pl)

	dev := &fakeDevice{state: StateRunning, avail: 1}
	res, _, err := writeSamples(dev, Format{SampleRate: 44100, BitsPerSample: 16}, pl)
	if err != nil {
		t.Fatal(err)
	}
	// The fallback block is a single sample, so nConsumed == nAvailable == 1.
	if res != resultYield {
		t.Fatalf("result = %v, want resultYield (n_consumed == n_available)", res)
	}
	if len(dev.written) != 1 || len(dev.written[0]) != 1 {
		t.Fatalf("written = %+v, want one write of 1 frame", dev.written)
	}
}

func TestWriteSamplesPreparedWithEmptyQueueStartsAndDrains(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	dev := &fakeDevice{state: StatePrepared, avail: 10}

	res, _, err := writeSamples(dev, Format{SampleRate: 44100, BitsPerSample: 16}, pl)
	if err != nil {
		t.Fatal(err)
	}
	if res != resultQueueEmpty {
		t.Fatalf("result = %v, want resultQueueEmpty", res)
	}
	if dev.started != 1 || dev.drained != 1 {
		t.Fatalf("started=%d drained=%d, want both 1", dev.started, dev.drained)
	}
}

func TestWriteSamplesXRunRecoversViaPrepare(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	dev := &fakeDevice{state: StateXRun, avail: 0}

	res, _, err := writeSamples(dev, Format{}, pl)
	if err != nil {
		t.Fatal(err)
	}
	if res != resultContinue {
		t.Fatalf("result = %v, want resultContinue", res)
	}
	if dev.prepared != 1 {
		t.Fatalf("prepared = %d, want 1", dev.prepared)
	}
}

func TestWriteSamplesSuspendedRecoversViaResume(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	dev := &fakeDevice{state: StateSuspended, avail: 0}

	res, _, err := writeSamples(dev, Format{}, pl)
	if err != nil {
		t.Fatal(err)
	}
	if res != resultContinue {
		t.Fatalf("result = %v, want resultContinue", res)
	}
	if dev.resumed != 1 {
		t.Fatalf("resumed = %d, want 1", dev.resumed)
	}
}

type countingErrDevice struct {
	fakeDevice
	failFirstN int
	calls      int
}

// Start fails the first failFirstN calls. AvailUpdate errors would not do
// here: writeSamples treats them as zero available frames, not as errors.
func (d *countingErrDevice) Start() error {
	d.calls++
	if d.calls <= d.failFirstN {
		return errors.New("boom")
	}
	return d.fakeDevice.Start()
}

func TestEnsureBuffersFullRetriesOnError(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	dev := &countingErrDevice{fakeDevice: fakeDevice{state: StatePrepared, avail: 0}, failFirstN: 1}

	var sawErr error
	fr := ensureBuffersFull(dev, Format{}, pl, func(err error) { sawErr = err })
	if fr.kind != fillYield {
		t.Fatalf("fill kind = %v, want fillYield", fr.kind)
	}
	if dev.calls != 2 {
		t.Fatalf("calls = %d, want 2 (one error, one success)", dev.calls)
	}
	if sawErr == nil {
		t.Fatal("expected the error callback to fire")
	}
}

func TestPlayQueueReturnsWhenQueueStartsEmpty(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	dev := &fakeDevice{state: StatePrepared, avail: 10}
	opener := &stubOpener{dev: dev}

	if err := playQueue(context.Background(), opener, "card", "vol", pl, slog.Default()); err != nil {
		t.Fatal(err)
	}
	if !dev.closed {
		t.Fatal("device should be closed once the session ends")
	}
}

func TestRunExitsOnContextCancelWhenQueueEmpty(t *testing.T) {
	pl, _ := newTestPlayer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	// Cancel before Run starts: since Run only checks ctx between sessions
	// (never while parked, matching the original's lack of a graceful
	// mid-park interrupt), this is the only deterministic way to observe
	// the cancellation without racing the park.
	cancel()

	done := make(chan struct{})
	go func() {
		Run(ctx, &stubOpener{dev: &fakeDevice{state: StatePrepared}}, Config{}, pl, nil, nil, slog.Default())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after ctx cancellation")
	}
}

func TestRunSendsQueueEndedAfterSession(t *testing.T) {
	events := make(chan history.Event, 8)
	pl, trackID := newTestPlayer(t, events)
	if _, ok := pl.Enqueue(trackID); !ok {
		t.Fatal("Enqueue failed")
	}
	waitForBlock(t, pl)

	// Starts in StateOpen, like a freshly opened, unconfigured device;
	// SetFormat (called once the queue's format mismatch is detected)
	// transitions it to StatePrepared, same as real hardware.
	dev := &fakeDevice{state: StateOpen, avail: 10}
	opener := &stubOpener{dev: dev}

	// Run's own loop parks forever once the queue drains (no graceful
	// mid-park cancellation, matching the original); this test only
	// observes one session's worth of behavior and lets the goroutine be
	// cleaned up with the test process.
	ctx := context.Background()
	go Run(ctx, opener, Config{}, pl, nil, events, slog.Default())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == history.QueueEnded {
				return
			}
		case <-deadline:
			t.Fatal("expected a QueueEnded event once the session drained")
		}
	}
}
