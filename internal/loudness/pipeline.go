package loudness

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/astrid-voss/musium/internal/decoder"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/tagstore"
)

const blockMillis = 100

// albumAgg collects the block powers of an album's tracks as they finish so
// the last one to land can compute the album's integrated loudness.
type albumAgg struct {
	mu        sync.Mutex
	remaining int
	powers    []float64
	fileID    int64
}

// Pipeline runs the BS.1770 worker pool: each worker owns its own
// read-write TagStore connection and drains Queue, preferring ready
// AlbumTasks over TrackTasks.
type Pipeline struct {
	dbPath string
	queue  *Queue
	log    *slog.Logger

	mu     sync.Mutex
	albums map[prim.AlbumID]*albumAgg
}

// NewPipeline returns a Pipeline that will dequeue work from queue, each
// worker opening its own connection to the TagStore at dbPath.
func NewPipeline(dbPath string, queue *Queue, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		dbPath: dbPath,
		queue:  queue,
		log:    log,
		albums: make(map[prim.AlbumID]*albumAgg),
	}
}

// RegisterAlbum must be called once per album, before any of its tracks are
// pushed to the queue, so the pipeline knows how many TrackTasks to wait for
// before it can aggregate the album's loudness.
func (p *Pipeline) RegisterAlbum(albumID prim.AlbumID, fileID int64, trackCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.albums[albumID] = &albumAgg{remaining: trackCount, fileID: fileID}
}

// Run starts WorkerCount() workers and blocks until the queue is closed and
// every worker has drained it.
func (p *Pipeline) Run(ctx context.Context) error {
	n := WorkerCount()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := p.worker(ctx, id); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) worker(ctx context.Context, id int) error {
	store, err := tagstore.Open(ctx, p.dbPath)
	if err != nil {
		return fmt.Errorf("loudness worker %d: open store: %w", id, err)
	}
	defer store.Close()

	for {
		t := p.queue.Pop()
		switch {
		case t.Done:
			return nil
		case t.Track != nil:
			if err := p.runTrack(ctx, store, *t.Track); err != nil {
				p.log.Error("loudness: track analysis failed", "file", t.Track.Filename, "err", err)
			}
		case t.Album != nil:
			if err := p.runAlbum(ctx, store, *t.Album); err != nil {
				p.log.Error("loudness: album aggregation failed", "album", t.Album.AlbumID, "err", err)
			}
		}
	}
}

func (p *Pipeline) runTrack(ctx context.Context, store *tagstore.Store, t TrackTask) error {
	sampleRate, left, right, err := decoder.DecodeAll(t.Filename)
	if err != nil {
		return fmt.Errorf("decode %s: %w", t.Filename, err)
	}

	meter := NewStereoMeter(sampleRate, blockMillis)
	interleaved := make([]float64, 0, 2*len(left))
	for i := range left {
		r := 0.0
		if i < len(right) {
			r = right[i]
		}
		interleaved = append(interleaved, left[i], r)
	}
	meter.Feed(interleaved)
	blockPowers := meter.Finish()

	lufs := lufsHundredths(IntegratedLoudness(blockPowers))
	if err := store.UpsertTrackLoudness(ctx, uint64(t.TrackID), t.FileID, lufs); err != nil {
		return fmt.Errorf("upsert track loudness: %w", err)
	}

	wl, wr := newChannelMeter(float64(sampleRate)), newChannelMeter(float64(sampleRate))
	weightedLeft := make([]float64, len(left))
	for i, x := range left {
		weightedLeft[i] = wl.weight(x)
	}
	var weightedRight []float64
	if right != nil {
		weightedRight = make([]float64, len(right))
		for i, x := range right {
			weightedRight[i] = wr.weight(x)
		}
	}
	waveform := BuildWaveform(sampleRate, weightedLeft, weightedRight)
	if len(waveform) > 0 {
		if err := store.PutWaveform(ctx, uint64(t.TrackID), t.FileID, waveform); err != nil {
			return fmt.Errorf("put waveform: %w", err)
		}
	}

	return p.trackDone(t.AlbumID, blockPowers)
}

// trackDone records one more completed track's block powers against its
// album, enqueueing the AlbumTask once every sibling has reported in.
func (p *Pipeline) trackDone(albumID prim.AlbumID, blockPowers []float64) error {
	p.mu.Lock()
	agg, ok := p.albums[albumID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("trackDone: album %v was never registered", albumID)
	}

	agg.mu.Lock()
	agg.powers = append(agg.powers, blockPowers...)
	agg.remaining--
	ready := agg.remaining <= 0
	fileID := agg.fileID
	agg.mu.Unlock()

	if ready {
		p.queue.PushAlbum(AlbumTask{AlbumID: albumID, FileID: fileID})
	}
	return nil
}

func (p *Pipeline) runAlbum(ctx context.Context, store *tagstore.Store, a AlbumTask) error {
	p.mu.Lock()
	agg, ok := p.albums[a.AlbumID]
	delete(p.albums, a.AlbumID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("runAlbum: album %v was never registered", a.AlbumID)
	}

	lufs := lufsHundredths(IntegratedLoudness(agg.powers))
	return store.UpsertAlbumLoudness(ctx, uint64(a.AlbumID), a.FileID, lufs)
}

// lufsHundredths converts a float64 LUFS value to the store's centi-LUFS
// representation, returning DefaultLufs for the (never reached in practice)
// -inf case of a fully-silent track.
func lufsHundredths(lufs float64) int32 {
	if math.IsInf(lufs, -1) {
		return int32(prim.DefaultLufs)
	}
	return int32(lufs * 100)
}
