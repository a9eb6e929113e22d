package thumbnail

import (
	"context"
	"testing"

	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/tagstore"
)

func openTestStore(t *testing.T) *tagstore.Store {
	t.Helper()
	s, err := tagstore.Open(context.Background(), "file:thumbnail-cache-test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("tagstore.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadCacheRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	ids, err := store.InsertFiles(ctx, []tagstore.InsertedFile{
		{Filename: "/a/01.flac", MtimeSeconds: 1, SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 1},
		{Filename: "/b/01.flac", MtimeSeconds: 1, SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 1},
	})
	if err != nil {
		t.Fatalf("InsertFiles: %v", err)
	}

	if err := store.PutThumbnail(ctx, 10, ids[0], "#ff0000", []byte("first-album-bytes")); err != nil {
		t.Fatalf("PutThumbnail 10: %v", err)
	}
	if err := store.PutThumbnail(ctx, 20, ids[1], "#00ff00", []byte("second")); err != nil {
		t.Fatalf("PutThumbnail 20: %v", err)
	}

	cache, err := LoadCache(ctx, store)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}

	data, color, ok := cache.Get(prim.AlbumID(10))
	if !ok || string(data) != "first-album-bytes" || color.String() != "#ff0000" {
		t.Fatalf("Get(10) = %q, %v, %v", data, color, ok)
	}
	data, color, ok = cache.Get(prim.AlbumID(20))
	if !ok || string(data) != "second" || color.String() != "#00ff00" {
		t.Fatalf("Get(20) = %q, %v, %v", data, color, ok)
	}

	if _, _, ok := cache.Get(prim.AlbumID(99)); ok {
		t.Fatal("Get(99) should miss, no such album was stored")
	}
}
