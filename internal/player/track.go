package player

import (
	"github.com/astrid-voss/musium/internal/decoder"
	"github.com/astrid-voss/musium/internal/prim"
)

// decodeState is the decoding state of a queued track, matching
// player.rs's Decode enum.
type decodeState int

const (
	decodeNotStarted decodeState = iota
	decodePartial                // paused mid-file, dec holds the open reader
	decodeRunning                // a decode task currently owns dec
	decodeDone
)

func (s decodeState) String() string {
	switch s {
	case decodeNotStarted:
		return "not-started"
	case decodePartial:
		return "partial"
	case decodeRunning:
		return "running"
	case decodeDone:
		return "done"
	default:
		return "invalid"
	}
}

type decodeSlot struct {
	state decodeState
	dec   *decoder.Decoder
}

// QueuedTrack is one track in the play queue.
type QueuedTrack struct {
	QueueID prim.QueueID
	TrackID prim.TrackID

	trackLoudness prim.Lufs
	albumLoudness prim.Lufs

	blocks        []*Block
	samplesPlayed uint64
	sampleRate    int
	decode        decodeSlot
}

// NewQueuedTrack builds a track ready to be enqueued; loudness values come
// from the index at enqueue time so the player never has to look them up
// again mid-playback.
func NewQueuedTrack(queueID prim.QueueID, trackID prim.TrackID, trackLoudness, albumLoudness prim.Lufs) *QueuedTrack {
	return &QueuedTrack{
		QueueID:       queueID,
		TrackID:       trackID,
		trackLoudness: trackLoudness,
		albumLoudness: albumLoudness,
	}
}

// AlbumID is the album this queued track belongs to.
func (qt *QueuedTrack) AlbumID() prim.AlbumID { return qt.TrackID.AlbumID() }

// DurationMs sums the duration of all unconsumed decoded blocks.
func (qt *QueuedTrack) DurationMs() int64 {
	var total int64
	for _, b := range qt.blocks {
		total += b.DurationMs()
	}
	return total
}

// PositionMs returns how far into the track playback has progressed.
func (qt *QueuedTrack) PositionMs() int64 {
	if qt.sampleRate == 0 {
		return 0
	}
	return int64(qt.samplesPlayed) * 1000 / int64(qt.sampleRate)
}

// SizeBytes sums the memory footprint of all blocks, including consumed
// samples (mirrors player.rs's QueuedTrack::size_bytes, which also counts
// capacity rather than just the unconsumed tail).
func (qt *QueuedTrack) SizeBytes() int {
	var total int
	for _, b := range qt.blocks {
		total += b.SizeBytes()
	}
	return total
}
