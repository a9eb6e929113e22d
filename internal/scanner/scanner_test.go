package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/astrid-voss/musium/internal/tagstore"
)

func TestMemcmpSortOrdersRawBytes(t *testing.T) {
	entries := []pathMtime{
		{path: "/music/Ö.flac"},
		{path: "/music/A.flac"},
		{path: "/music/z.flac"},
	}
	memcmpSort(entries)
	if entries[0].path != "/music/A.flac" {
		t.Fatalf("expected ASCII 'A' to sort first in byte order, got %q", entries[0].path)
	}
}

func TestMergeJoinClassifiesEachCase(t *testing.T) {
	current := []pathMtime{
		{path: "/a.flac", mtime: 100}, // only in current -> scan new
		{path: "/b.flac", mtime: 200}, // same mtime -> skip
		{path: "/c.flac", mtime: 301}, // different mtime -> rescan
	}
	stored := []tagstore.FileRow{
		{ID: 1, Filename: "/b.flac", MtimeSeconds: 200},
		{ID: 2, Filename: "/c.flac", MtimeSeconds: 300},
		{ID: 3, Filename: "/d.flac", MtimeSeconds: 400}, // only in store -> delete
	}

	steps := mergeJoin(current, stored)

	var scanNew, skip, rescan, del int
	for _, s := range steps {
		switch s.action {
		case actionScanNew:
			scanNew++
		case actionSkip:
			skip++
		case actionRescan:
			rescan++
			if s.storedID != 2 {
				t.Errorf("rescan step storedID = %d, want 2", s.storedID)
			}
		case actionDeleteOnly:
			del++
			if s.storedID != 3 {
				t.Errorf("delete step storedID = %d, want 3", s.storedID)
			}
		}
	}
	if scanNew != 1 || skip != 1 || rescan != 1 || del != 1 {
		t.Fatalf("got scanNew=%d skip=%d rescan=%d del=%d, want 1 each", scanNew, skip, rescan, del)
	}
}

func TestMergeJoinAllNewWhenStoreEmpty(t *testing.T) {
	current := []pathMtime{{path: "/a.flac", mtime: 1}, {path: "/b.flac", mtime: 2}}
	steps := mergeJoin(current, nil)
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	for _, s := range steps {
		if s.action != actionScanNew {
			t.Fatalf("expected all actionScanNew, got %v", s.action)
		}
	}
}

func TestMergeJoinAllDeletedWhenCurrentEmpty(t *testing.T) {
	stored := []tagstore.FileRow{{ID: 1, Filename: "/a.flac"}, {ID: 2, Filename: "/b.flac"}}
	steps := mergeJoin(nil, stored)
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	for _, s := range steps {
		if s.action != actionDeleteOnly {
			t.Fatalf("expected all actionDeleteOnly, got %v", s.action)
		}
	}
}

func TestDiscoverFollowsSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	realAlbum := filepath.Join(t.TempDir(), "real-album")
	if err := os.Mkdir(realAlbum, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(realAlbum, "track.flac"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	link := filepath.Join(root, "linked-album")
	if err := os.Symlink(realAlbum, link); err != nil {
		t.Skipf("symlinks unsupported on this filesystem: %v", err)
	}

	found, err := discover(root, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 || found[0].path != filepath.Join(link, "track.flac") {
		t.Fatalf("discover = %+v, want one entry under the symlinked directory", found)
	}
}

func TestDiscoverGuardsAgainstSymlinkCycles(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "track.flac"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	loop := filepath.Join(sub, "loop")
	if err := os.Symlink(root, loop); err != nil {
		t.Skipf("symlinks unsupported on this filesystem: %v", err)
	}

	done := make(chan struct{})
	var found []pathMtime
	var err error
	go func() {
		found, err = discover(root, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("discover did not terminate on a symlink cycle")
	}
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("discover = %+v, want exactly the one real file", found)
	}
}

func TestWatchFiresOnceAfterDebouncedBurst(t *testing.T) {
	root := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fires int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, 50*time.Millisecond, func() {
			atomic.AddInt32(&fires, 1)
		})
	}()

	// give the watcher time to start and register root before writing.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		name := filepath.Join(root, "track"+string(rune('0'+i))+".flac")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(250 * time.Millisecond)
	if got := atomic.LoadInt32(&fires); got != 1 {
		t.Fatalf("onChange fired %d times for one debounced burst, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after ctx cancellation")
	}
}
