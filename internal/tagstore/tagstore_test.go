package tagstore

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertFilesThenList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertFiles(ctx, []InsertedFile{
		{
			Filename: "/music/a/01.flac", MtimeSeconds: 1000,
			SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 123456,
			Tags: map[string]string{"title": "A Song", "artist": "An Artist"},
		},
		{
			Filename: "/music/a/02.flac", MtimeSeconds: 1001,
			SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 654321,
			Tags: map[string]string{"title": "Another Song"},
		},
	})
	if err != nil {
		t.Fatalf("InsertFiles: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}

	rows, err := s.ListFilesMemcmpSorted(ctx)
	if err != nil {
		t.Fatalf("ListFilesMemcmpSorted: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Filename != "/music/a/01.flac" {
		t.Fatalf("rows[0].Filename = %q, want /music/a/01.flac", rows[0].Filename)
	}

	tags, err := s.TagsByFile(ctx, rows[0].ID)
	if err != nil {
		t.Fatalf("TagsByFile: %v", err)
	}
	if tags["title"] != "A Song" || tags["artist"] != "An Artist" {
		t.Fatalf("tags = %+v, want title/artist set", tags)
	}
}

func TestDeleteFileCascadesTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertFiles(ctx, []InsertedFile{
		{Filename: "/x.flac", MtimeSeconds: 1, SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 1,
			Tags: map[string]string{"title": "X"}},
	})
	if err != nil {
		t.Fatalf("InsertFiles: %v", err)
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error { return s.DeleteFile(ctx, tx, ids[0]) })
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	tags, err := s.TagsByFile(ctx, ids[0])
	if err != nil {
		t.Fatalf("TagsByFile: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected tags cascaded away, got %+v", tags)
	}
}

func TestTrackAndAlbumLoudnessRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertFiles(ctx, []InsertedFile{
		{Filename: "/y.flac", MtimeSeconds: 1, SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 1},
	})
	if err != nil {
		t.Fatalf("InsertFiles: %v", err)
	}

	if err := s.UpsertTrackLoudness(ctx, 42, ids[0], -910); err != nil {
		t.Fatalf("UpsertTrackLoudness: %v", err)
	}
	got, ok, err := s.TrackLoudness(ctx, 42)
	if err != nil || !ok || got != -910 {
		t.Fatalf("TrackLoudness = %d, %v, %v, want -910, true, nil", got, ok, err)
	}

	if err := s.UpsertAlbumLoudness(ctx, 7, ids[0], -1200); err != nil {
		t.Fatalf("UpsertAlbumLoudness: %v", err)
	}
	gotA, ok, err := s.AlbumLoudness(ctx, 7)
	if err != nil || !ok || gotA != -1200 {
		t.Fatalf("AlbumLoudness = %d, %v, %v, want -1200, true, nil", gotA, ok, err)
	}
}

func TestInsertListenDeduplicatesPerSecond(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Unix(1700000000, 0).UTC()
	l := Listen{
		StartedAt: at, FileID: 1, QueueID: 1, TrackID: 1, AlbumID: 1, AlbumArtistID: 1,
		TrackTitle: "T", AlbumTitle: "A", TrackArtist: "TA", AlbumArtist: "AA",
		DurationSeconds: 180, Source: "local",
	}
	if err := s.InsertListen(ctx, l); err != nil {
		t.Fatalf("InsertListen: %v", err)
	}
	if err := s.InsertListen(ctx, l); err != nil {
		t.Fatalf("InsertListen (dup): %v", err)
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM listens`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count listens: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d listens, want 1 (deduplicated)", count)
	}
}

func TestThumbnailRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertFiles(ctx, []InsertedFile{
		{Filename: "/music/a/01.flac", MtimeSeconds: 1, SampleRate: 44100, Bits: 16, Channels: 2, NumSamples: 1},
	})
	if err != nil {
		t.Fatalf("InsertFiles: %v", err)
	}

	exists, err := s.ThumbnailExists(ctx, 7)
	if err != nil {
		t.Fatalf("ThumbnailExists (before): %v", err)
	}
	if exists {
		t.Fatal("ThumbnailExists reported true before any insert")
	}

	if err := s.PutThumbnail(ctx, 7, ids[0], "#aabbcc", []byte{1, 2, 3}); err != nil {
		t.Fatalf("PutThumbnail: %v", err)
	}

	exists, err = s.ThumbnailExists(ctx, 7)
	if err != nil {
		t.Fatalf("ThumbnailExists (after): %v", err)
	}
	if !exists {
		t.Fatal("ThumbnailExists reported false after insert")
	}

	rows, err := s.AllThumbnails(ctx)
	if err != nil {
		t.Fatalf("AllThumbnails: %v", err)
	}
	if len(rows) != 1 || rows[0].Color != "#aabbcc" || string(rows[0].Data) != "\x01\x02\x03" {
		t.Fatalf("AllThumbnails = %+v", rows)
	}
}

func TestCompleteListenStampsMatchingRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Unix(1700000100, 0).UTC()
	l := Listen{
		StartedAt: started, FileID: 1, QueueID: 9, TrackID: 1, AlbumID: 1, AlbumArtistID: 1,
		TrackTitle: "T", AlbumTitle: "A", TrackArtist: "TA", AlbumArtist: "AA",
		DurationSeconds: 180, Source: "local",
	}
	if err := s.InsertListen(ctx, l); err != nil {
		t.Fatalf("InsertListen: %v", err)
	}

	completed := started.Add(3 * time.Minute)
	if err := s.CompleteListen(ctx, 9, completed); err != nil {
		t.Fatalf("CompleteListen: %v", err)
	}

	var gotUnix int64
	row := s.db.QueryRowContext(ctx, `SELECT completed_at FROM listens WHERE queue_id = 9`)
	if err := row.Scan(&gotUnix); err != nil {
		t.Fatalf("scan completed_at: %v", err)
	}
	if gotUnix != completed.Unix() {
		t.Fatalf("completed_at = %d, want %d", gotUnix, completed.Unix())
	}
}

func TestCheckpointWALSucceedsWithNoPendingWrites(t *testing.T) {
	s := openTestStore(t)
	if err := s.CheckpointWAL(context.Background()); err != nil {
		t.Fatalf("CheckpointWAL: %v", err)
	}
}

func TestInsertRatingRejectsOutOfRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	err := s.InsertRating(ctx, Rating{TrackID: 1, CreatedAt: time.Now(), Value: 5, Source: "local"})
	if err == nil {
		t.Fatal("expected error for out-of-range rating")
	}
}
