// Command musiumd is the library daemon: it scans a music directory into a
// SQLite-backed tag store, builds an in-memory searchable index, analyzes
// BS.1770 loudness and generates thumbnails for anything new, then serves
// the HTTP API and drives the three-thread playback engine (decode,
// playback, exec guard) until told to stop.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/astrid-voss/musium/internal/config"
	"github.com/astrid-voss/musium/internal/execguard"
	"github.com/astrid-voss/musium/internal/history"
	"github.com/astrid-voss/musium/internal/httpapi"
	"github.com/astrid-voss/musium/internal/indexbuilder"
	"github.com/astrid-voss/musium/internal/loudness"
	"github.com/astrid-voss/musium/internal/mvar"
	"github.com/astrid-voss/musium/internal/player"
	"github.com/astrid-voss/musium/internal/playback"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/scanner"
	"github.com/astrid-voss/musium/internal/tagstore"
	"github.com/astrid-voss/musium/internal/thumbnail"
	envconfig "github.com/astrid-voss/musium/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := envconfig.Env("MUSIUM_CONFIG", "/etc/musium/musium.conf")
	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config %s: %w", configPath, err)
	}
	cfg, err := config.Load(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse config %s: %w", configPath, err)
	}
	slog.Info("config loaded", "path", configPath)
	slog.Info("musium configuration\n" + cfg.String())

	store, err := tagstore.Open(ctx, cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open tag store: %w", err)
	}
	defer store.Close()
	slog.Info("tag store ready", "path", cfg.DBPath())

	idx, err := scanLibrary(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("scan library: %w", err)
	}
	indexVar := mvar.New(idx)

	if err := analyzeLoudness(ctx, cfg, store, idx); err != nil {
		slog.Error("loudness analysis failed", "err", err)
	}
	if err := generateThumbnails(ctx, cfg, store, idx); err != nil {
		slog.Error("thumbnail generation failed", "err", err)
	}
	thumbs, err := thumbnail.LoadCache(ctx, store)
	if err != nil {
		return fmt.Errorf("load thumbnail cache: %w", err)
	}
	thumbsVar := mvar.New(thumbs)
	slog.Info("thumbnail cache loaded")

	historyLogger := history.NewLogger(store, slog.Default())
	go historyLogger.Run(ctx)

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		slog.Warn("failed to seed shuffle rng from system randomness, falling back to zero seed", "err", err)
	}
	pl := player.New(indexVar, historyLogger.Events(), cfg.Volume, cfg.HighPassCutoff, seed, slog.Default())

	guard := execguard.New(execguard.Config{
		PrePlaybackPath: cfg.ExecPrePlaybackPath,
		PostIdlePath:    cfg.ExecPostIdlePath,
		IdleTimeout:     cfg.IdleTimeout,
	}, slog.Default())
	go guard.Run(ctx)

	playbackCfg := playback.Config{
		AudioDevice:           cfg.AudioDevice,
		AudioVolumeControl:    cfg.AudioVolumeControl,
		HasPrePlaybackProgram: cfg.ExecPrePlaybackPath != "",
	}
	go playback.Run(ctx, unavailableOpener{}, playbackCfg, pl, guard.Events(), historyLogger.Events(), slog.Default())

	go func() {
		err := scanner.Watch(ctx, cfg.LibraryPath, 2*time.Second, func() {
			rescan(ctx, cfg, store, indexVar, thumbsVar)
		})
		if err != nil {
			slog.Error("filesystem watch failed", "err", err)
		}
	}()

	svc := httpapi.New(indexVar, pl, thumbsVar)
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	svc.Routes(r)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming FLAC files — no write timeout
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	go func() {
		time.Sleep(100 * time.Millisecond) // give ListenAndServe a moment to bind
		if err := httpapi.NotifySystemdReady(); err != nil {
			slog.Warn("systemd notify failed", "err", err)
		}
	}()

	slog.Info("listening", "addr", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// scanLibrary runs one incremental scan against cfg.LibraryPath and
// rebuilds a fresh MemoryIndex from everything now on disk.
func scanLibrary(ctx context.Context, cfg config.Config, store *tagstore.Store) (*indexbuilder.MemoryIndex, error) {
	status := make(chan scanner.Progress, 8)
	go func() {
		for p := range status {
			slog.Info("scanning", "discovered", p.Discovered, "scanning", p.Scanning, "scanned", p.Scanned, "deleted", p.Deleted)
		}
	}()
	result, err := scanner.Scan(ctx, cfg.LibraryPath, store, defaultScanWorkers(), status)
	close(status)
	if err != nil {
		return nil, err
	}
	slog.Info("scan complete", "scanned", len(result.Scanned), "deleted", result.Deleted, "errors", result.Errors)

	files, err := scanner.LoadAll(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load scanned files: %w", err)
	}
	idx := indexbuilder.BuildFromScan(files)
	for _, iss := range idx.Issues {
		slog.Warn("index issue", "file", iss.File, "field", iss.Field, "msg", iss.Msg)
	}
	slog.Info("index built", "artists", len(idx.Artists), "albums", len(idx.Albums), "tracks", len(idx.Tracks))
	return idx, nil
}

// rescan is scanner.Watch's onChange callback: it reruns the whole
// scan→loudness→thumbnail pipeline and republishes both MVars, so the
// webinterface picks up filesystem changes without a daemon restart.
func rescan(ctx context.Context, cfg config.Config, store *tagstore.Store, indexVar *mvar.MVar[indexbuilder.MemoryIndex], thumbsVar *mvar.MVar[thumbnail.Cache]) {
	idx, err := scanLibrary(ctx, cfg, store)
	if err != nil {
		slog.Error("rescan: scan failed", "err", err)
		return
	}
	if err := analyzeLoudness(ctx, cfg, store, idx); err != nil {
		slog.Error("rescan: loudness analysis failed", "err", err)
	}
	if err := generateThumbnails(ctx, cfg, store, idx); err != nil {
		slog.Error("rescan: thumbnail generation failed", "err", err)
	}
	thumbs, err := thumbnail.LoadCache(ctx, store)
	if err != nil {
		slog.Error("rescan: load thumbnail cache failed", "err", err)
		return
	}
	indexVar.Swap(idx)
	thumbsVar.Swap(thumbs)
	slog.Info("rescan complete", "artists", len(idx.Artists), "albums", len(idx.Albums), "tracks", len(idx.Tracks))
}

// analyzeLoudness runs BS.1770 analysis for every track that has not been
// measured yet, skipping whole albums that already have an aggregate
// loudness on file.
func analyzeLoudness(ctx context.Context, cfg config.Config, store *tagstore.Store, idx *indexbuilder.MemoryIndex) error {
	queue := loudness.NewQueue()
	pipeline := loudness.NewPipeline(cfg.DBPath(), queue, slog.Default())

	queued := 0
	for _, ae := range idx.Albums {
		if _, ok, err := store.AlbumLoudness(ctx, uint64(ae.ID)); err != nil {
			return err
		} else if ok {
			continue
		}

		tracks := idx.AlbumTracks(ae.ID)
		var pending []prim.TrackID
		var anchorFileID int64
		for _, te := range tracks {
			if _, ok, err := store.TrackLoudness(ctx, uint64(te.ID)); err != nil {
				return err
			} else if ok {
				continue
			}
			pending = append(pending, te.ID)
			anchorFileID = te.Track.FileID
		}
		if len(pending) == 0 {
			continue
		}

		pipeline.RegisterAlbum(ae.ID, anchorFileID, len(pending))
		for _, trackID := range pending {
			track, _ := idx.GetTrack(trackID)
			queue.PushTrack(loudness.TrackTask{
				FileID:   track.FileID,
				TrackID:  trackID,
				AlbumID:  ae.ID,
				Filename: track.Filename,
			})
			queued++
		}
	}
	queue.Close()
	if queued == 0 {
		slog.Info("loudness analysis: nothing to do")
		return nil
	}
	slog.Info("loudness analysis starting", "tracks", queued)
	if err := pipeline.Run(ctx); err != nil {
		return err
	}

	// Pipeline.Run persists results to track_loudness/album_loudness, not
	// back into the file's tags, so idx (already built from tags) would
	// otherwise serve prim.DefaultLufs for everything just analyzed. Patch
	// the in-memory index in place before it gets published.
	for _, ae := range idx.Albums {
		if lh, ok, err := store.AlbumLoudness(ctx, uint64(ae.ID)); err == nil && ok {
			idx.PatchAlbumLoudness(ae.ID, prim.Lufs(lh))
		}
		for _, te := range idx.AlbumTracks(ae.ID) {
			if lh, ok, err := store.TrackLoudness(ctx, uint64(te.ID)); err == nil && ok {
				idx.PatchTrackLoudness(te.ID, prim.Lufs(lh))
			}
		}
	}
	return nil
}

// generateThumbnails runs the thumbnail pipeline for every album that does
// not already have one.
func generateThumbnails(ctx context.Context, cfg config.Config, store *tagstore.Store, idx *indexbuilder.MemoryIndex) error {
	pipeline := thumbnail.NewPipeline(cfg.DBPath(), slog.Default())

	var jobs []thumbnail.Job
	for _, ae := range idx.Albums {
		exists, err := store.ThumbnailExists(ctx, uint64(ae.ID))
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		tracks := idx.AlbumTracks(ae.ID)
		if len(tracks) == 0 {
			continue
		}
		mbid := ""
		if tags, err := store.TagsByFile(ctx, tracks[0].Track.FileID); err == nil {
			mbid = tags["musicbrainz_albumid"]
		}
		jobs = append(jobs, thumbnail.Job{
			AlbumID:   ae.ID,
			FileID:    tracks[0].Track.FileID,
			Filename:  tracks[0].Track.Filename,
			AlbumMbid: mbid,
		})
	}
	if len(jobs) == 0 {
		slog.Info("thumbnail generation: nothing to do")
		return nil
	}
	slog.Info("thumbnail generation starting", "albums", len(jobs))
	return pipeline.Run(ctx, jobs)
}

// unavailableOpener is the Opener wired in when no real ALSA backend is
// compiled in: playback sessions fail immediately and are logged, rather
// than the daemon refusing to start. A production build swaps this for an
// Opener backed by a real mixer/PCM library.
type unavailableOpener struct{}

func (unavailableOpener) Open(cardName, volumeControlName string) (playback.Device, error) {
	return nil, fmt.Errorf("playback: no audio backend compiled into this build (wanted device %q, mixer %q)", cardName, volumeControlName)
}

func defaultScanWorkers() int {
	return 4
}

func slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
