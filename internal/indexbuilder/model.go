// Package indexbuilder consumes TagStore rows into validated entities,
// collects issues along the way, and assembles the immutable MemoryIndex
// that backs search, browsing, and playback lookups.
package indexbuilder

import (
	"github.com/astrid-voss/musium/internal/prim"
)

// Track is a validated, fully-resolved track entity.
type Track struct {
	FileID     int64
	AlbumID    prim.AlbumID
	Disc       uint8
	TrackNo    uint8
	Title      string
	Artist     string
	Filename   string
	DurationS  uint16
	Loudness   *prim.Lufs
}

// Album is a validated, fully-resolved album entity.
type Album struct {
	ArtistIDs           []prim.ArtistID
	PrimaryArtist       string
	Title               string
	OriginalReleaseDate prim.Date
	Loudness            *prim.Lufs
	FirstSeen           prim.Instant
}

// Artist is a validated, fully-resolved artist entity.
type Artist struct {
	Name        string
	NameForSort string
}
