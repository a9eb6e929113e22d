package loudness

import (
	"testing"
	"time"

	"github.com/astrid-voss/musium/internal/prim"
)

func TestQueuePrefersAlbumOverTrack(t *testing.T) {
	q := NewQueue()
	q.PushTrack(TrackTask{FileID: 1})
	q.PushAlbum(AlbumTask{FileID: 2})

	got := q.Pop()
	if got.Album == nil || got.Album.FileID != 2 {
		t.Fatalf("Pop() = %+v, want the queued AlbumTask first", got)
	}
	got = q.Pop()
	if got.Track == nil || got.Track.FileID != 1 {
		t.Fatalf("Pop() = %+v, want the queued TrackTask second", got)
	}
}

func TestQueuePopBlocksUntilClose(t *testing.T) {
	q := NewQueue()
	done := make(chan task, 1)
	go func() { done <- q.Pop() }()

	select {
	case <-done:
		t.Fatal("Pop returned before any task was pushed or the queue closed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Close()
	select {
	case got := <-done:
		if !got.Done {
			t.Fatalf("Pop() after Close = %+v, want Done", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestPipelineAggregatesAlbumAfterAllTracks(t *testing.T) {
	dbPath := "file:pipeline-agg?mode=memory&cache=shared"
	p := NewPipeline(dbPath, NewQueue(), nil)

	albumID := prim.AlbumID(42)
	p.RegisterAlbum(albumID, 100, 2)

	if err := p.trackDone(albumID, []float64{lufsToPower(-20)}); err != nil {
		t.Fatalf("trackDone (1st): %v", err)
	}
	p.mu.Lock()
	_, stillPending := p.albums[albumID]
	p.mu.Unlock()
	if !stillPending {
		t.Fatal("album aggregation fired before its second track reported in")
	}

	if err := p.trackDone(albumID, []float64{lufsToPower(-18)}); err != nil {
		t.Fatalf("trackDone (2nd): %v", err)
	}

	got := p.queue.Pop()
	if got.Album == nil || got.Album.AlbumID != albumID || got.Album.FileID != 100 {
		t.Fatalf("queue after both tracks reported in = %+v, want the album's AlbumTask", got)
	}
}
