package player

import (
	"testing"
	"time"

	"github.com/astrid-voss/musium/internal/history"
	"github.com/astrid-voss/musium/internal/indexbuilder"
	"github.com/astrid-voss/musium/internal/prim"
)

// fakeIndex is a minimal Index for tests that never touches the decoder.
type fakeIndex struct {
	tracks map[prim.TrackID]indexbuilder.Track
	albums map[prim.AlbumID]indexbuilder.Album
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{tracks: map[prim.TrackID]indexbuilder.Track{}, albums: map[prim.AlbumID]indexbuilder.Album{}}
}

func (f *fakeIndex) GetTrack(id prim.TrackID) (indexbuilder.Track, bool) {
	t, ok := f.tracks[id]
	return t, ok
}

func (f *fakeIndex) GetAlbum(id prim.AlbumID) (indexbuilder.Album, bool) {
	a, ok := f.albums[id]
	return a, ok
}

func testTrackID(album prim.AlbumID, disc, track uint8) prim.TrackID {
	return prim.NewTrackID(album, disc, track)
}

func TestEnqueueDequeueOrdering(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})

	t1 := testTrackID(prim.AlbumID(1), 1, 1)
	t2 := testTrackID(prim.AlbumID(1), 1, 2)
	t3 := testTrackID(prim.AlbumID(2), 1, 1)

	id1 := s.Enqueue(t1, prim.DefaultLufs, prim.DefaultLufs)
	id2 := s.Enqueue(t2, prim.DefaultLufs, prim.DefaultLufs)
	id3 := s.Enqueue(t3, prim.DefaultLufs, prim.DefaultLufs)

	if s.QueueLen() != 3 {
		t.Fatalf("QueueLen() = %d, want 3", s.QueueLen())
	}

	// Dequeuing the currently-playing track (index 0) is a no-op.
	s.Dequeue(id1)
	if s.QueueLen() != 3 {
		t.Fatalf("Dequeue of index 0 should be a no-op, QueueLen() = %d", s.QueueLen())
	}

	s.Dequeue(id2)
	if s.QueueLen() != 2 {
		t.Fatalf("QueueLen() after dequeue = %d, want 2", s.QueueLen())
	}
	if s.queue[0].QueueID != id1 || s.queue[1].QueueID != id3 {
		t.Fatalf("unexpected queue order after dequeue")
	}
}

func TestIsQueueEmpty(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})
	if !s.IsQueueEmpty() {
		t.Fatal("fresh state should have an empty queue")
	}
	s.Enqueue(testTrackID(prim.AlbumID(1), 1, 1), prim.DefaultLufs, prim.DefaultLufs)
	if s.IsQueueEmpty() {
		t.Fatal("queue should no longer be empty after Enqueue")
	}
}

func TestTargetVolumeFullScaleRequiresNonemptyQueue(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})
	if _, ok := s.TargetVolumeFullScale(); ok {
		t.Fatal("TargetVolumeFullScale should report false on an empty queue")
	}
	s.Enqueue(testTrackID(prim.AlbumID(1), 1, 1), prim.Lufs(-700), prim.Lufs(-700))
	vol, ok := s.TargetVolumeFullScale()
	if !ok {
		t.Fatal("TargetVolumeFullScale should report true once something is queued")
	}
	// targetLoudness (-2300) - trackLoudness (-700) = -1600; volume starts at 0.
	want := prim.Millibel(-1600)
	if vol != want {
		t.Fatalf("TargetVolumeFullScale() = %v, want %v", vol, want)
	}
}

func TestChangeVolumeClampsToRange(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})

	got := s.ChangeVolume(prim.Millibel(-100000))
	if got != MinVolume {
		t.Fatalf("ChangeVolume underflow = %v, want MinVolume %v", got, MinVolume)
	}

	got = s.ChangeVolume(prim.Millibel(1000000))
	want := prim.Millibel(-prim.TargetLufs)
	if got != want {
		t.Fatalf("ChangeVolume overflow = %v, want %v", got, want)
	}
}

func TestChangeCutoffClampsAtZero(t *testing.T) {
	s := NewState(0, 1000, nil, [32]byte{})
	if got := s.ChangeCutoff(-5000); got != 0 {
		t.Fatalf("ChangeCutoff underflow = %v, want 0", got)
	}
}

func TestShuffleLeavesCurrentTrackInPlace(t *testing.T) {
	idx := newFakeIndex()
	idx.albums[prim.AlbumID(1)] = indexbuilder.Album{ArtistIDs: []prim.ArtistID{1}}
	idx.albums[prim.AlbumID(2)] = indexbuilder.Album{ArtistIDs: []prim.ArtistID{2}}

	s := NewState(0, 0, nil, [32]byte{1, 2, 3})
	current := testTrackID(prim.AlbumID(1), 1, 1)
	s.Enqueue(current, prim.DefaultLufs, prim.DefaultLufs)
	for i := 0; i < 8; i++ {
		s.Enqueue(testTrackID(prim.AlbumID(2), 1, uint8(i+1)), prim.DefaultLufs, prim.DefaultLufs)
	}

	s.Shuffle(idx)

	if s.queue[0].TrackID != current {
		t.Fatalf("Shuffle must never move the currently-playing track")
	}
	if s.QueueLen() != 9 {
		t.Fatalf("Shuffle must preserve queue length, got %d", s.QueueLen())
	}
}

func TestConsumeEmitsStartedThenCompleted(t *testing.T) {
	events := make(chan history.Event, 10)
	s := NewState(0, 0, events, [32]byte{})

	trackID := testTrackID(prim.AlbumID(1), 1, 1)
	queueID := s.Enqueue(trackID, prim.DefaultLufs, prim.DefaultLufs)

	qt := s.queue[0]
	qt.blocks = append(qt.blocks, NewBlock(44100, 16, []float64{0, 0}, []float64{0, 0}))
	qt.decode = decodeSlot{state: decodeDone}

	now := time.Now()
	s.Consume(1, now)

	select {
	case ev := <-events:
		if ev.Kind != history.Started || ev.QueueID != queueID {
			t.Fatalf("first event = %+v, want Started for %v", ev, queueID)
		}
	default:
		t.Fatal("expected a Started event")
	}

	s.Consume(1, now)

	gotCompleted, gotQueueEnded := false, false
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			switch ev.Kind {
			case history.Completed:
				gotCompleted = true
			case history.QueueEnded:
				gotQueueEnded = true
			}
		default:
		}
	}
	if !gotCompleted || !gotQueueEnded {
		t.Fatalf("expected Completed and QueueEnded events, got completed=%v queueEnded=%v", gotCompleted, gotQueueEnded)
	}
	if !s.IsQueueEmpty() {
		t.Fatal("queue should be empty once the only track finishes")
	}
}

func TestTakeDecodeTaskMarksRunning(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})
	trackID := testTrackID(prim.AlbumID(1), 1, 1)
	s.Enqueue(trackID, prim.DefaultLufs, prim.DefaultLufs)

	task, ok := s.takeDecodeTask()
	if !ok {
		t.Fatal("takeDecodeTask should find the fresh track")
	}
	if task.trackID != trackID {
		t.Fatalf("task.trackID = %v, want %v", task.trackID, trackID)
	}
	if s.queue[0].decode.state != decodeRunning {
		t.Fatalf("queue[0].decode.state = %v, want decodeRunning", s.queue[0].decode.state)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("takeDecodeTask should panic if called again while a decode is already running")
		}
	}()
	s.takeDecodeTask()
}

func TestReturnDecodeTaskAppendsBlock(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})
	trackID := testTrackID(prim.AlbumID(1), 1, 1)
	s.Enqueue(trackID, prim.DefaultLufs, prim.DefaultLufs)

	task, _ := s.takeDecodeTask()
	block := NewBlock(44100, 16, []float64{0.1, 0.2}, []float64{0.1, 0.2})
	s.returnDecodeTask(decodeResult{queueID: task.queueID, block: block, dec: nil})

	if len(s.queue[0].blocks) != 1 {
		t.Fatalf("expected one block appended, got %d", len(s.queue[0].blocks))
	}
	if s.queue[0].decode.state != decodeDone {
		t.Fatalf("decode.state = %v, want decodeDone after a nil-dec result", s.queue[0].decode.state)
	}
}

func TestNeedsDecodeFalseOnceEverythingDone(t *testing.T) {
	s := NewState(0, 0, nil, [32]byte{})
	trackID := testTrackID(prim.AlbumID(1), 1, 1)
	s.Enqueue(trackID, prim.DefaultLufs, prim.DefaultLufs)

	if !s.NeedsDecode() {
		t.Fatal("a freshly enqueued track should need decoding")
	}

	task, _ := s.takeDecodeTask()
	block := NewBlock(44100, 16, []float64{0.1}, []float64{0.1})
	s.returnDecodeTask(decodeResult{queueID: task.queueID, block: block, dec: nil})

	if s.NeedsDecode() {
		t.Fatal("NeedsDecode should be false once the only track is fully decoded")
	}
}
