package tagstore

import (
	"context"

	"github.com/astrid-voss/musium/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	filename                TEXT NOT NULL UNIQUE,
	mtime                   INTEGER NOT NULL,
	imported_at             INTEGER NOT NULL,
	streaminfo_sample_rate  INTEGER NOT NULL,
	streaminfo_bits         INTEGER NOT NULL,
	streaminfo_channels     INTEGER NOT NULL,
	streaminfo_num_samples  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id     INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	field_name  TEXT NOT NULL,
	value       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tags_file_id_idx ON tags(file_id);

CREATE TABLE IF NOT EXISTS track_loudness (
	track_id                INTEGER PRIMARY KEY,
	file_id                 INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	bs17704_loudness_lufs   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS album_loudness (
	album_id                INTEGER PRIMARY KEY,
	file_id                 INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	bs17704_loudness_lufs   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS waveforms (
	track_id  INTEGER PRIMARY KEY,
	file_id   INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	data      BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS thumbnails (
	album_id  INTEGER PRIMARY KEY,
	file_id   INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	color     TEXT NOT NULL,
	data      BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS listens (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at        INTEGER NOT NULL,
	completed_at      INTEGER,
	file_id           INTEGER NOT NULL,
	queue_id          INTEGER NOT NULL,
	track_id          INTEGER NOT NULL,
	album_id          INTEGER NOT NULL,
	album_artist_id   INTEGER NOT NULL,
	track_title       TEXT NOT NULL,
	album_title       TEXT NOT NULL,
	track_artist      TEXT NOT NULL,
	album_artist      TEXT NOT NULL,
	duration_seconds  INTEGER NOT NULL,
	track_number      INTEGER,
	disc_number       INTEGER,
	source            TEXT NOT NULL,
	scrobbled_at      INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS listens_started_at_second_idx
	ON listens(strftime('%s', started_at, 'unixepoch'));

CREATE TABLE IF NOT EXISTS ratings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	rating      INTEGER NOT NULL,
	source      TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ratings_created_at_second_idx
	ON ratings(track_id, strftime('%s', created_at, 'unixepoch'));
`

// migrate applies the schema idempotently; every statement is
// CREATE ... IF NOT EXISTS so repeated startups are safe.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &errs.DBError{Op: "migrate", Err: err}
	}
	return nil
}
