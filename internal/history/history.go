// Package history turns playback events into TagStore rows: a bounded
// channel decouples the player's hot path from SQLite writes, grounded in
// original_source/src/player.rs's history::PlaybackEvent producer and the
// history thread it implies.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/tagstore"
)

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// Started is emitted when samples_played transitions from 0 to >0.
	Started EventKind = iota
	// Completed is emitted when a track's last block drains and it is
	// popped from the queue.
	Completed
	// Rated is emitted when a client submits a rating for a track.
	Rated
	// QueueEnded is emitted when the queue becomes empty, so the logger
	// can checkpoint the WAL during the idle period that follows.
	QueueEnded
)

// TrackInfo is the metadata InsertListen needs, captured at enqueue time so
// the history logger never has to look the track back up (it may already
// have scrolled out of the index by the time the event is processed).
type TrackInfo struct {
	FileID          int64
	TrackID         prim.TrackID
	AlbumID         prim.AlbumID
	AlbumArtistID   prim.ArtistID
	TrackTitle      string
	AlbumTitle      string
	TrackArtist     string
	AlbumArtist     string
	DurationSeconds int32
	TrackNumber     uint8
	DiscNumber      uint8
}

// Event is one entry on the history channel.
type Event struct {
	Kind    EventKind
	QueueID prim.QueueID
	Track   TrackInfo // set for Started
	Rating  tagstore.Rating // set for Rated
	At      time.Time
}

// Logger owns the channel and the goroutine draining it into a TagStore.
// The channel is small: producers (the player) block on a full channel
// rather than drop events, since losing a listen event silently would
// corrupt playback history.
type Logger struct {
	events chan Event
	store  *tagstore.Store
	log    *slog.Logger
}

// NewLogger constructs a Logger. Run must be called to actually drain the
// channel; the caller is expected to do so in its own goroutine.
func NewLogger(store *tagstore.Store, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{
		events: make(chan Event, 5),
		store:  store,
		log:    log,
	}
}

// Events returns the channel producers should send on.
func (l *Logger) Events() chan<- Event { return l.events }

// Run drains events until the channel is closed, logging failures rather
// than propagating them: a dropped history row should never take down
// playback.
func (l *Logger) Run(ctx context.Context) {
	for ev := range l.events {
		if err := l.handle(ctx, ev); err != nil {
			l.log.Error("history: failed to record event", "kind", ev.Kind, "err", err)
		}
	}
}

func (l *Logger) handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case Started:
		t := ev.Track
		var trackNumber, discNumber *uint8
		if t.TrackNumber != 0 {
			trackNumber = &t.TrackNumber
		}
		if t.DiscNumber != 0 {
			discNumber = &t.DiscNumber
		}
		return l.store.InsertListen(ctx, tagstore.Listen{
			StartedAt:       ev.At,
			FileID:          t.FileID,
			QueueID:         uint64(ev.QueueID),
			TrackID:         uint64(t.TrackID),
			AlbumID:         uint64(t.AlbumID),
			AlbumArtistID:   uint64(t.AlbumArtistID),
			TrackTitle:      t.TrackTitle,
			AlbumTitle:      t.AlbumTitle,
			TrackArtist:     t.TrackArtist,
			AlbumArtist:     t.AlbumArtist,
			DurationSeconds: t.DurationSeconds,
			TrackNumber:     trackNumber,
			DiscNumber:      discNumber,
			Source:          "local",
		})
	case Completed:
		return l.store.CompleteListen(ctx, uint64(ev.QueueID), ev.At)
	case Rated:
		return l.store.InsertRating(ctx, ev.Rating)
	case QueueEnded:
		return l.store.CheckpointWAL(ctx)
	default:
		return nil
	}
}
