// Package scanner walks a music library root, diffs it against the
// TagStore's file table, and (re)scans new or changed FLAC files with a
// bounded worker pool. The walk/worker-pool shape follows
// cmd/ingest/main.go's scan(); the merge-join diff and memcmp ordering are
// new, grounded directly in the library's incremental-rescan requirements
// since no example repo does an incremental filesystem/DB diff. Watch
// adapts cmd/ingest/main.go's fsnotify watch-mode loop into a debounced
// rescan trigger instead of a per-file ingest.
package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"

	"github.com/astrid-voss/musium/internal/errs"
	"github.com/astrid-voss/musium/internal/tagstore"
)

// Progress is sent on the status channel during the walk, every 32
// discoveries.
type Progress struct {
	Discovered int
	Scanning   int
	Scanned    int
	Deleted    int
}

// FileMetadata is one scanned file's streaminfo plus raw Vorbis comments,
// the unit IndexBuilder consumes.
type FileMetadata struct {
	FileID   int64
	Filename string
	Mtime    int64
	StreamInfo
	Tags map[string]string
}

// Result summarizes one Scan invocation.
type Result struct {
	Scanned []FileMetadata
	Deleted int
	Errors  int
}

const discoveryProgressInterval = 32

// discover walks root, following symlinks (including symlinked album
// directories), collecting every *.flac file's (path, mtime) pair. It
// reports progress every discoveryProgressInterval files. filepath.WalkDir
// never descends into a symlinked directory on its own, so traversal is
// done by hand with an EvalSymlinks-based visited set guarding against
// symlink cycles, the same guard CineVault's scanner.go uses.
func discover(root string, status chan<- Progress) ([]pathMtime, error) {
	var found []pathMtime
	visited := make(map[string]bool)
	if err := walkDir(root, visited, &found, status); err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return found, nil
}

func walkDir(dir string, visited map[string]bool, found *[]pathMtime, status chan<- Progress) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		slog.Warn("scanner: resolve symlink", "path", dir, "err", err)
		return nil
	}
	if visited[real] {
		return nil
	}
	visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("scanner: read dir error", "path", dir, "err", err)
		return nil
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			slog.Warn("scanner: stat error", "path", path, "err", err)
			continue
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			resolved, statErr := os.Stat(path)
			if statErr != nil {
				slog.Warn("scanner: broken symlink", "path", path, "err", statErr)
				continue
			}
			info = resolved
		}
		if info.IsDir() {
			if err := walkDir(path, visited, found, status); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(strings.ToLower(path), ".flac") {
			continue
		}
		*found = append(*found, pathMtime{path: path, mtime: info.ModTime().Unix()})
		if status != nil && len(*found)%discoveryProgressInterval == 0 {
			status <- Progress{Discovered: len(*found)}
		}
	}
	return nil
}

type pathMtime struct {
	path  string
	mtime int64
}

// memcmpSort sorts in raw-byte order on the path, matching the store's
// BINARY-collation ORDER BY.
func memcmpSort(entries []pathMtime) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
}

type mergeAction int

const (
	actionSkip mergeAction = iota
	actionScanNew
	actionRescan
	actionDeleteOnly
)

type mergeStep struct {
	action   mergeAction
	current  pathMtime
	storedID int64
}

// mergeJoin walks current (memcmp-sorted) and stored (memcmp-sorted by
// filename) in lockstep, classifying each path.
func mergeJoin(current []pathMtime, stored []tagstore.FileRow) []mergeStep {
	var steps []mergeStep
	i, j := 0, 0
	for i < len(current) && j < len(stored) {
		c, s := current[i], stored[j]
		switch {
		case c.path < s.Filename:
			steps = append(steps, mergeStep{action: actionScanNew, current: c})
			i++
		case c.path > s.Filename:
			steps = append(steps, mergeStep{action: actionDeleteOnly, storedID: s.ID})
			j++
		case c.mtime == s.MtimeSeconds:
			steps = append(steps, mergeStep{action: actionSkip})
			i++
			j++
		default:
			steps = append(steps, mergeStep{action: actionRescan, current: c, storedID: s.ID})
			i++
			j++
		}
	}
	for ; i < len(current); i++ {
		steps = append(steps, mergeStep{action: actionScanNew, current: current[i]})
	}
	for ; j < len(stored); j++ {
		steps = append(steps, mergeStep{action: actionDeleteOnly, storedID: stored[j].ID})
	}
	return steps
}

// scanOne opens path, reads its STREAMINFO and Vorbis comments, and returns
// a FileMetadata ready for insertion. Errors here are per-file, never fatal to the overall scan.
func scanOne(path string, mtime int64) (FileMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileMetadata{}, &errs.IOError{Path: path, Err: err}
	}
	defer f.Close()

	si, err := readStreamInfo(f)
	if err != nil {
		return FileMetadata{}, &errs.FormatError{Path: path, Err: err}
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		return FileMetadata{}, &errs.FormatError{Path: path, Err: err}
	}

	tags := map[string]string{}
	raw := m.Raw()
	for k, v := range raw {
		if s, ok := v.(string); ok {
			tags[strings.ToLower(k)] = s
		}
	}
	// dhowden/tag normalizes some well-known fields even when the raw map
	// lacks them (e.g. differing Vorbis comment capitalization); fill gaps
	// from its typed accessors without clobbering raw values.
	fillIfMissing(tags, "title", m.Title())
	fillIfMissing(tags, "artist", m.Artist())
	fillIfMissing(tags, "album", m.Album())
	fillIfMissing(tags, "albumartist", m.AlbumArtist())

	return FileMetadata{
		Filename:   path,
		Mtime:      mtime,
		StreamInfo: si,
		Tags:       tags,
	}, nil
}

func fillIfMissing(tags map[string]string, key, value string) {
	if value == "" {
		return
	}
	if _, ok := tags[key]; !ok {
		tags[key] = value
	}
}

// Scan runs one full scan cycle: discover, diff, scan new/changed files
// with a worker pool, delete obsolete rows, and VACUUM if anything was
// deleted.
func Scan(ctx context.Context, root string, store *tagstore.Store, workers int, status chan<- Progress) (Result, error) {
	if workers < 1 {
		workers = 1
	}

	current, err := discover(root, status)
	if err != nil {
		return Result{}, err
	}
	memcmpSort(current)

	stored, err := store.ListFilesMemcmpSorted(ctx)
	if err != nil {
		return Result{}, err
	}

	steps := mergeJoin(current, stored)

	var toScan []pathMtime
	var toDelete []int64
	for _, st := range steps {
		switch st.action {
		case actionScanNew:
			toScan = append(toScan, st.current)
		case actionRescan:
			toScan = append(toScan, st.current)
			toDelete = append(toDelete, st.storedID)
		case actionDeleteOnly:
			toDelete = append(toDelete, st.storedID)
		}
	}

	if len(toDelete) > 0 {
		if err := deleteMany(ctx, store, toDelete); err != nil {
			return Result{}, err
		}
	}

	pathCh := make(chan pathMtime, workers*2)
	resultCh := make(chan FileMetadata, workers*2)
	var scanErrs int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pm := range pathCh {
				fm, err := scanOne(pm.path, pm.mtime)
				if err != nil {
					slog.Warn("scanner: skipping file", "path", pm.path, "err", err)
					mu.Lock()
					scanErrs++
					mu.Unlock()
					continue
				}
				resultCh <- fm
			}
		}()
	}
	go func() {
		for _, pm := range toScan {
			pathCh <- pm
		}
		close(pathCh)
		wg.Wait()
		close(resultCh)
	}()

	var scanned []FileMetadata
	scannedCount := 0
	for fm := range resultCh {
		scanned = append(scanned, fm)
		scannedCount++
		if status != nil && scannedCount%discoveryProgressInterval == 0 {
			status <- Progress{Scanning: scannedCount}
		}
	}

	if len(scanned) > 0 {
		inserts := make([]tagstore.InsertedFile, len(scanned))
		for i, fm := range scanned {
			inserts[i] = tagstore.InsertedFile{
				Filename:   fm.Filename,
				MtimeSeconds: fm.Mtime,
				SampleRate: fm.SampleRate,
				Bits:       fm.BitsPerSample,
				Channels:   fm.Channels,
				NumSamples: fm.NumSamples,
				Tags:       fm.Tags,
			}
		}
		ids, err := store.InsertFiles(ctx, inserts)
		if err != nil {
			return Result{}, err
		}
		for i := range scanned {
			scanned[i].FileID = ids[i]
		}
	}

	if len(toDelete) > 0 {
		if err := store.Vacuum(ctx); err != nil {
			return Result{}, err
		}
	}

	return Result{Scanned: scanned, Deleted: len(toDelete), Errors: scanErrs}, nil
}

// LoadAll reads every file and its tags back out of store, for rebuilding
// a fresh MemoryIndex after a scan touches only the files that changed.
func LoadAll(ctx context.Context, store *tagstore.Store) ([]FileMetadata, error) {
	rows, err := store.ListFilesMemcmpSorted(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FileMetadata, len(rows))
	for i, r := range rows {
		tags, err := store.TagsByFile(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out[i] = FileMetadata{
			FileID:   r.ID,
			Filename: r.Filename,
			Mtime:    r.MtimeSeconds,
			StreamInfo: StreamInfo{
				SampleRate:    r.StreaminfoSampleRate,
				BitsPerSample: r.StreaminfoBits,
				Channels:      r.StreaminfoChannels,
				NumSamples:    r.StreaminfoNumSamples,
			},
			Tags: tags,
		}
	}
	return out, nil
}

// Watch registers an fsnotify watcher on root and every subdirectory it
// contains, and calls onChange once debounce has elapsed with no further
// *.flac create/write/rename/remove events, so a whole album copied in one
// burst triggers a single rescan rather than one per file. New directories
// created under root are watched as they appear. Runs until ctx is done.
func Watch(ctx context.Context, root string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scanner: create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr == nil && d.IsDir() {
			if err := watcher.Add(path); err != nil {
				slog.Warn("scanner: watch directory failed", "path", path, "err", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanner: walk %s: %w", root, err)
	}
	slog.Info("scanner: watching for changes", "root", root)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	fire := make(chan struct{})

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				if err := watcher.Add(ev.Name); err != nil {
					slog.Warn("scanner: watch new directory failed", "path", ev.Name, "err", err)
				}
				continue
			}
			if !strings.HasSuffix(strings.ToLower(ev.Name), ".flac") {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() { fire <- struct{}{} })
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("scanner: watcher error", "err", err)
		case <-fire:
			onChange()
		}
	}
}

// deleteMany removes every stored file row in ids inside a single
// transaction.
func deleteMany(ctx context.Context, store *tagstore.Store, ids []int64) error {
	return store.Tx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := store.DeleteFile(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}
