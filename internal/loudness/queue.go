package loudness

import (
	"runtime"
	"sync"

	"github.com/astrid-voss/musium/internal/prim"
)

// TrackTask decodes one FLAC file, feeds its BS.1770 meter, and writes
// track_loudness and waveforms rows.
type TrackTask struct {
	FileID   int64
	TrackID  prim.TrackID
	AlbumID  prim.AlbumID
	Filename string
}

// AlbumTask runs once every sibling TrackTask for an album has completed;
// it concatenates their block powers and computes the album's integrated
// loudness.
type AlbumTask struct {
	AlbumID prim.AlbumID
	FileID  int64 // the file id used to anchor the album_loudness row
}

// Queue is the two-level priority task queue: AlbumTask ready beats the
// next TrackTask beats idle. A single mutex protects only the queue,
// never the database.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	albumTasks  []AlbumTask
	trackTasks  []TrackTask
	closed      bool
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushTrack enqueues a TrackTask and wakes one waiting worker.
func (q *Queue) PushTrack(t TrackTask) {
	q.mu.Lock()
	q.trackTasks = append(q.trackTasks, t)
	q.mu.Unlock()
	q.cond.Signal()
}

// PushAlbum enqueues an AlbumTask and wakes one waiting worker.
func (q *Queue) PushAlbum(a AlbumTask) {
	q.mu.Lock()
	q.albumTasks = append(q.albumTasks, a)
	q.mu.Unlock()
	q.cond.Signal()
}

// Close unblocks every worker waiting in Pop once the queue drains.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// task is the tagged union Pop hands back: exactly one of Album or Track is
// set, or Done is true when the queue is closed and empty.
type task struct {
	Album *AlbumTask
	Track *TrackTask
	Done  bool
}

// Pop blocks until a task is ready, preferring an AlbumTask over a
// TrackTask, or returns a Done task once the queue is closed and drained.
func (q *Queue) Pop() task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.albumTasks) > 0 {
			a := q.albumTasks[0]
			q.albumTasks = q.albumTasks[1:]
			return task{Album: &a}
		}
		if len(q.trackTasks) > 0 {
			t := q.trackTasks[0]
			q.trackTasks = q.trackTasks[1:]
			return task{Track: &t}
		}
		if q.closed {
			return task{Done: true}
		}
		q.cond.Wait()
	}
}

// WorkerCount returns 4×NumCPU, an empirically-chosen pool size that
// saturates both CPU and spinning-disk IO.
func WorkerCount() int {
	return 4 * runtime.NumCPU()
}
