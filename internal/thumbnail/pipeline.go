package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/tagstore"
	"github.com/astrid-voss/musium/pkg/musicbrainz"
)

// Job names one album that needs a thumbnail generated. AlbumMbid is the
// raw musicbrainz_albumid tag off the anchor file, used as a Cover Art
// Archive lookup key when the file itself carries no embedded or folder
// cover.
type Job struct {
	AlbumID   prim.AlbumID
	FileID    int64
	Filename  string
	AlbumMbid string
}

// Pipeline runs num_cpus workers draining a shared job channel, each with
// its own TagStore connection. A single shared MusicBrainz client is
// reused across workers so its Cover Art Archive fallback requests don't
// fan out past what one rate-limited client would send.
type Pipeline struct {
	dbPath string
	log    *slog.Logger
	mb     *musicbrainz.Client
}

// NewPipeline returns a Pipeline writing generated thumbnails to dbPath.
func NewPipeline(dbPath string, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{dbPath: dbPath, log: log, mb: musicbrainz.New()}
}

// Run generates a thumbnail for every job not already present in the
// thumbnails table. Per-job failures are logged and skipped,
// matching the original's "a bad cover shouldn't abort the whole scan"
// behavior; Run itself only returns an error if a worker can't open its
// TagStore connection at all.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) error {
	jobCh := make(chan Job)
	n := runtime.NumCPU()
	var wg sync.WaitGroup
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := p.worker(ctx, id, jobCh); err != nil {
				errCh <- err
			}
		}(i)
	}

	go func() {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case jobCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) worker(ctx context.Context, id int, jobCh <-chan Job) error {
	store, err := tagstore.Open(ctx, p.dbPath)
	if err != nil {
		return fmt.Errorf("thumbnail worker %d: open store: %w", id, err)
	}
	defer store.Close()

	for job := range jobCh {
		if err := p.runOne(ctx, store, job); err != nil {
			p.log.Error("thumbnail generation failed", "album", job.AlbumID, "err", err)
		}
	}
	return nil
}

func (p *Pipeline) runOne(ctx context.Context, store *tagstore.Store, job Job) error {
	exists, err := store.ThumbnailExists(ctx, uint64(job.AlbumID))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	cover, err := ExtractCover(job.Filename)
	if err != nil {
		remote, mbErr := p.mb.FetchAlbumCoverArt(ctx, job.AlbumMbid)
		if mbErr != nil || len(remote) == 0 {
			return err
		}
		p.log.Info("thumbnail: used Cover Art Archive fallback", "album", job.AlbumID, "mbid", job.AlbumMbid)
		cover = remote
	}

	task := Task{AlbumID: job.AlbumID, FileID: job.FileID, Filename: job.Filename}
	result, err := task.Run(ctx, cover)
	if err != nil {
		return err
	}

	return store.PutThumbnail(ctx, uint64(job.AlbumID), job.FileID, result.Color.String(), result.JPEG)
}
