// Package tagstore is the SQLite-backed persistence layer for scanned
// files, parsed tags, loudness measurements, waveforms, thumbnails,
// listens, and ratings. It follows the connection-wrapper
// shape of pkg/store.Store — a struct holding the handle, typed Params
// structs for writes, Scan-based readers — retargeted from pgx/Postgres
// onto database/sql + mattn/go-sqlite3 since production use calls for an
// embedded single-file database, not a network service.
package tagstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astrid-voss/musium/internal/errs"
)

// Store wraps a SQLite connection opened against the musium.sqlite3 file.
// The connection is thread-confined (SQLITE_OPEN_NOMUTEX via the driver
// DSN) so each Store should be used from a single goroutine at a time,
// except where noted (loudness workers each open their own Store).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, applies the
// required pragmas (WAL, busy_timeout>=2s, foreign_keys), and runs migrate.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_mutex=no"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &errs.DBError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // a single SQLite connection per Store, per the thread-confined design
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &errs.DBError{Op: "ping", Err: err}
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection for callers that need a query shape
// no typed method covers (tests).
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx runs fn inside a transaction, committing on success and rolling back
// on any error or panic.
func (s *Store) Tx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.DBError{Op: "begin", Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &errs.DBError{Op: "commit", Err: err}
	}
	return nil
}

// Vacuum packs the database file after deletes.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return &errs.DBError{Op: "vacuum", Err: err}
	}
	return nil
}

// FileRow mirrors one row of the files table.
type FileRow struct {
	ID                   int64
	Filename             string
	MtimeSeconds         int64
	ImportedAt           time.Time
	StreaminfoSampleRate uint32
	StreaminfoBits       uint8
	StreaminfoChannels   uint8
	StreaminfoNumSamples uint64
}

// ListFilesMemcmpSorted returns every file row sorted in raw-byte (memcmp)
// order on filename, matching the scanner's required merge-join order.
// SQLite's default BINARY collation already compares bytes, so a plain
// ORDER BY filename suffices.
func (s *Store) ListFilesMemcmpSorted(ctx context.Context) ([]FileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, mtime, imported_at,
		       streaminfo_sample_rate, streaminfo_bits, streaminfo_channels, streaminfo_num_samples
		FROM files ORDER BY filename`)
	if err != nil {
		return nil, &errs.DBError{Op: "list files", Err: err}
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var r FileRow
		var importedAt int64
		if err := rows.Scan(&r.ID, &r.Filename, &r.MtimeSeconds, &importedAt,
			&r.StreaminfoSampleRate, &r.StreaminfoBits, &r.StreaminfoChannels, &r.StreaminfoNumSamples); err != nil {
			return nil, &errs.DBError{Op: "scan file row", Err: err}
		}
		r.ImportedAt = time.Unix(importedAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteFile removes a files row; ON DELETE CASCADE takes tags,
// track_loudness, waveforms, and any listens referencing it by file_id stay
// (listens intentionally has no FK to allow history to survive a rescan).
func (s *Store) DeleteFile(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return &errs.DBError{Op: "delete file", Err: err}
	}
	return nil
}

// InsertedFile is the result of inserting a scanned file: its row id plus
// the tags that should now be attached.
type InsertedFile struct {
	Filename     string
	MtimeSeconds int64
	SampleRate   uint32
	Bits         uint8
	Channels     uint8
	NumSamples   uint64
	Tags         map[string]string // Vorbis comment field name (lowercased) -> value
}

// InsertFiles inserts a batch of scanned files plus their tags inside one
// transaction, amortizing fsync cost.
func (s *Store) InsertFiles(ctx context.Context, files []InsertedFile) ([]int64, error) {
	ids := make([]int64, len(files))
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		fileStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO files (filename, mtime, imported_at, streaminfo_sample_rate, streaminfo_bits, streaminfo_channels, streaminfo_num_samples)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return &errs.DBError{Op: "prepare insert file", Err: err}
		}
		defer fileStmt.Close()

		tagStmt, err := tx.PrepareContext(ctx, `INSERT INTO tags (file_id, field_name, value) VALUES (?, ?, ?)`)
		if err != nil {
			return &errs.DBError{Op: "prepare insert tag", Err: err}
		}
		defer tagStmt.Close()

		for i, f := range files {
			res, err := fileStmt.ExecContext(ctx, f.Filename, f.MtimeSeconds, time.Now().Unix(), f.SampleRate, f.Bits, f.Channels, f.NumSamples)
			if err != nil {
				return &errs.DBError{Op: "insert file", Err: err}
			}
			id, err := res.LastInsertId()
			if err != nil {
				return &errs.DBError{Op: "last insert id", Err: err}
			}
			ids[i] = id
			for field, value := range f.Tags {
				if _, err := tagStmt.ExecContext(ctx, id, field, value); err != nil {
					return &errs.DBError{Op: "insert tag", Err: err}
				}
			}
		}
		return nil
	})
	return ids, err
}

// TagsByFile returns every tag row for a file, keyed by lowercased field name.
func (s *Store) TagsByFile(ctx context.Context, fileID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field_name, value FROM tags WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, &errs.DBError{Op: "list tags", Err: err}
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &errs.DBError{Op: "scan tag", Err: err}
		}
		out[k] = v
	}
	return out, rows.Err()
}

// UpsertTrackLoudness records a track's BS.1770 integrated loudness.
func (s *Store) UpsertTrackLoudness(ctx context.Context, trackID uint64, fileID int64, lufsHundredths int32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO track_loudness (track_id, file_id, bs17704_loudness_lufs) VALUES (?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET file_id = excluded.file_id, bs17704_loudness_lufs = excluded.bs17704_loudness_lufs`,
		int64(trackID), fileID, lufsHundredths)
	if err != nil {
		return &errs.DBError{Op: "upsert track_loudness", Err: err}
	}
	return nil
}

// UpsertAlbumLoudness records an album's aggregate BS.1770 integrated
// loudness. A later call for the same album replaces the stored value.
func (s *Store) UpsertAlbumLoudness(ctx context.Context, albumID uint64, fileID int64, lufsHundredths int32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO album_loudness (album_id, file_id, bs17704_loudness_lufs) VALUES (?, ?, ?)
		ON CONFLICT(album_id) DO UPDATE SET file_id = excluded.file_id, bs17704_loudness_lufs = excluded.bs17704_loudness_lufs`,
		int64(albumID), fileID, lufsHundredths)
	if err != nil {
		return &errs.DBError{Op: "upsert album_loudness", Err: err}
	}
	return nil
}

// TrackLoudness reads back a track's stored loudness, if any.
func (s *Store) TrackLoudness(ctx context.Context, trackID uint64) (lufsHundredths int32, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT bs17704_loudness_lufs FROM track_loudness WHERE track_id = ?`, int64(trackID))
	if err := row.Scan(&lufsHundredths); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, &errs.DBError{Op: "read track_loudness", Err: err}
	}
	return lufsHundredths, true, nil
}

// AlbumLoudness reads back an album's stored loudness, if any.
func (s *Store) AlbumLoudness(ctx context.Context, albumID uint64) (lufsHundredths int32, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT bs17704_loudness_lufs FROM album_loudness WHERE album_id = ?`, int64(albumID))
	if err := row.Scan(&lufsHundredths); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, &errs.DBError{Op: "read album_loudness", Err: err}
	}
	return lufsHundredths, true, nil
}

// PutWaveform stores the rendered per-track waveform blob.
func (s *Store) PutWaveform(ctx context.Context, trackID uint64, fileID int64, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waveforms (track_id, file_id, data) VALUES (?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET file_id = excluded.file_id, data = excluded.data`,
		int64(trackID), fileID, data)
	if err != nil {
		return &errs.DBError{Op: "put waveform", Err: err}
	}
	return nil
}

// PutThumbnail stores a generated album thumbnail's dominant color and JPEG
// bytes.
func (s *Store) PutThumbnail(ctx context.Context, albumID uint64, fileID int64, color string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thumbnails (album_id, file_id, color, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(album_id) DO UPDATE SET file_id = excluded.file_id, color = excluded.color, data = excluded.data`,
		int64(albumID), fileID, color, data)
	if err != nil {
		return &errs.DBError{Op: "put thumbnail", Err: err}
	}
	return nil
}

// ThumbnailExists reports whether album_id already has a generated
// thumbnail, letting the pipeline skip albums it processed on a prior run.
func (s *Store) ThumbnailExists(ctx context.Context, albumID uint64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM thumbnails WHERE album_id = ?`, int64(albumID)).Scan(&n)
	if err != nil {
		return false, &errs.DBError{Op: "check thumbnail", Err: err}
	}
	return n > 0, nil
}

// ThumbnailRow is one row loaded back for ThumbCache construction.
type ThumbnailRow struct {
	AlbumID uint64
	Color   string
	Data    []byte
}

// AllThumbnails loads every stored thumbnail, for building the in-memory
// ThumbCache on startup.
func (s *Store) AllThumbnails(ctx context.Context) ([]ThumbnailRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT album_id, color, data FROM thumbnails`)
	if err != nil {
		return nil, &errs.DBError{Op: "list thumbnails", Err: err}
	}
	defer rows.Close()
	var out []ThumbnailRow
	for rows.Next() {
		var r ThumbnailRow
		var albumID int64
		if err := rows.Scan(&albumID, &r.Color, &r.Data); err != nil {
			return nil, &errs.DBError{Op: "scan thumbnail", Err: err}
		}
		r.AlbumID = uint64(albumID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Listen is one playback event.
type Listen struct {
	ID              int64
	StartedAt       time.Time
	CompletedAt     *time.Time
	FileID          int64
	QueueID         uint64
	TrackID         uint64
	AlbumID         uint64
	AlbumArtistID   uint64
	TrackTitle      string
	AlbumTitle      string
	TrackArtist     string
	AlbumArtist     string
	DurationSeconds int32
	TrackNumber     *uint8
	DiscNumber      *uint8
	Source          string
	ScrobbledAt     *time.Time
}

// InsertListen records a listen event. The unique index on
// strftime('%s', started_at) deduplicates at second granularity; a
// duplicate insert is treated as a no-op, not an error.
func (s *Store) InsertListen(ctx context.Context, l Listen) error {
	var completedAt, scrobbledAt sql.NullInt64
	if l.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: l.CompletedAt.Unix(), Valid: true}
	}
	if l.ScrobbledAt != nil {
		scrobbledAt = sql.NullInt64{Int64: l.ScrobbledAt.Unix(), Valid: true}
	}
	var trackNumber, discNumber sql.NullInt64
	if l.TrackNumber != nil {
		trackNumber = sql.NullInt64{Int64: int64(*l.TrackNumber), Valid: true}
	}
	if l.DiscNumber != nil {
		discNumber = sql.NullInt64{Int64: int64(*l.DiscNumber), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO listens
			(started_at, completed_at, file_id, queue_id, track_id, album_id, album_artist_id,
			 track_title, album_title, track_artist, album_artist, duration_seconds,
			 track_number, disc_number, source, scrobbled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.StartedAt.Unix(), completedAt, l.FileID, int64(l.QueueID), int64(l.TrackID), int64(l.AlbumID), int64(l.AlbumArtistID),
		l.TrackTitle, l.AlbumTitle, l.TrackArtist, l.AlbumArtist, l.DurationSeconds,
		trackNumber, discNumber, l.Source, scrobbledAt)
	if err != nil {
		return &errs.DBError{Op: "insert listen", Err: err}
	}
	return nil
}

// CompleteListen stamps the listens row for queueID with its completion
// time. It is a no-op if no such row exists (e.g. the process restarted
// between Started and Completed and the in-memory queue id was lost).
func (s *Store) CompleteListen(ctx context.Context, queueID uint64, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listens SET completed_at = ? WHERE queue_id = ? AND completed_at IS NULL`,
		completedAt.Unix(), int64(queueID))
	if err != nil {
		return &errs.DBError{Op: "complete listen", Err: err}
	}
	return nil
}

// CheckpointWAL forces SQLite to fold the write-ahead log back into the
// main database file. Called when the play queue empties, so a long-idle
// daemon doesn't leave an ever-growing WAL file on disk.
func (s *Store) CheckpointWAL(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &errs.DBError{Op: "wal checkpoint", Err: err}
	}
	return nil
}

// Rating is a single thumbs-down..loved rating event for a track.
type Rating struct {
	ID        int64
	TrackID   uint64
	CreatedAt time.Time
	Value     int8 // in [-1, 2]: -1 = thumbs down, 0 = none, 1 = thumbs up, 2 = loved
	Source    string
}

// InsertRating records a rating, deduplicated at second granularity by the
// unique index on strftime('%s', created_at) in combination with track_id.
func (s *Store) InsertRating(ctx context.Context, r Rating) error {
	if r.Value < -1 || r.Value > 2 {
		return fmt.Errorf("tagstore: rating value %d out of range [-1,2]", r.Value)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ratings (track_id, created_at, rating, source) VALUES (?, ?, ?, ?)`,
		int64(r.TrackID), r.CreatedAt.Unix(), r.Value, r.Source)
	if err != nil {
		return &errs.DBError{Op: "insert rating", Err: err}
	}
	return nil
}

// RatingsByTrack returns every rating recorded for a track, most recent first.
func (s *Store) RatingsByTrack(ctx context.Context, trackID uint64) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, rating, source FROM ratings WHERE track_id = ? ORDER BY created_at DESC`, int64(trackID))
	if err != nil {
		return nil, &errs.DBError{Op: "list ratings", Err: err}
	}
	defer rows.Close()
	var out []Rating
	for rows.Next() {
		var r Rating
		var createdAt int64
		if err := rows.Scan(&r.ID, &createdAt, &r.Value, &r.Source); err != nil {
			return nil, &errs.DBError{Op: "scan rating", Err: err}
		}
		r.TrackID = trackID
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
