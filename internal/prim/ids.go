// Package prim holds the fixed-width identifier and unit types shared across
// the engine: artist/album/track/queue/file ids, loudness and frequency
// units, and date/mtime wrappers. Keeping these as narrow named types
// instead of bare integers means a track id can never be passed where an
// album id is expected.
package prim

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ArtistID is derived from the top 32 and bottom 32 bits of a MusicBrainz
// album-artist UUID; the middle bits (which carry UUID version/variant
// nibbles) are discarded.
type ArtistID uint64

// AlbumID is a 52-bit id (top 12 bits always zero) derived the same way as
// ArtistID from the MusicBrainz album UUID. AlbumID(0) is reserved as the
// empty sentinel in AlbumTable.
type AlbumID uint64

// TrackID packs an album id with a disc number (4 bits) and track number (8
// bits): album_id<<12 | disc<<8 | track.
type TrackID uint64

// QueueID is assigned monotonically by the player at enqueue time and is
// never reused.
type QueueID uint64

// FileID is a TagStore row id; a new id is issued whenever (path, mtime)
// changes for a given file.
type FileID int64

// NewArtistID derives an ArtistID from a 16-byte MusicBrainz UUID.
func NewArtistID(u uuid.UUID) ArtistID {
	return ArtistID(idFromUUID(u))
}

// NewAlbumID derives an AlbumID from a 16-byte MusicBrainz UUID, masking to
// 52 bits.
func NewAlbumID(u uuid.UUID) AlbumID {
	return AlbumID(idFromUUID(u) & 0x000f_ffff_ffff_ffff)
}

// idFromUUID concatenates the UUID's first 4 bytes and last 4 bytes into a
// 64-bit integer, skipping the middle 8 bytes where the version and variant
// nibbles live.
func idFromUUID(u uuid.UUID) uint64 {
	hi := uint64(u[0])<<24 | uint64(u[1])<<16 | uint64(u[2])<<8 | uint64(u[3])
	lo := uint64(u[12])<<24 | uint64(u[13])<<16 | uint64(u[14])<<8 | uint64(u[15])
	return hi<<32 | lo
}

// ParseMusicBrainzID parses a canonical 36-character hyphenated UUID string
// (dashes at positions 8, 13, 18, 23) and returns the underlying uuid.UUID.
// It returns false for any string that isn't exactly 36 characters with
// dashes in those positions — a looser parse would accept variants that
// MusicBrainz itself never emits.
func ParseMusicBrainzID(s string) (uuid.UUID, bool) {
	if len(s) != 36 {
		return uuid.UUID{}, false
	}
	for _, i := range []int{8, 13, 18, 23} {
		if s[i] != '-' {
			return uuid.UUID{}, false
		}
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, false
	}
	return u, true
}

// NewTrackID packs an album id, disc number, and track number into a TrackID.
// disc must fit in 4 bits (0-15) and track in 8 bits (0-255); callers
// validate tag-derived values before calling this.
func NewTrackID(album AlbumID, disc, track uint8) TrackID {
	return TrackID(uint64(album)<<12 | uint64(disc&0x0f)<<8 | uint64(track))
}

// AlbumID returns the album id a TrackID was constructed with.
func (t TrackID) AlbumID() AlbumID { return AlbumID(uint64(t) >> 12) }

// Disc returns the disc number a TrackID was constructed with.
func (t TrackID) Disc() uint8 { return uint8((uint64(t) >> 8) & 0x0f) }

// Track returns the track number a TrackID was constructed with.
func (t TrackID) Track() uint8 { return uint8(uint64(t) & 0xff) }

// hexID renders n as a lower-case, zero-padded hex string of exactly width
// characters.
func hexID(n uint64, width int) string {
	return fmt.Sprintf("%0*x", width, n)
}

// String renders the artist id as 16 lower-case hex characters.
func (a ArtistID) String() string { return hexID(uint64(a), 16) }

// String renders the album id as 13 lower-case hex characters.
func (a AlbumID) String() string { return hexID(uint64(a), 13) }

// String renders the track id as 16 lower-case hex characters.
func (t TrackID) String() string { return hexID(uint64(t), 16) }

// String renders the queue id as 16 lower-case hex characters.
func (q QueueID) String() string { return hexID(uint64(q), 16) }

// ParseQueueID parses exactly the 16-character lower-case hex form that
// String produces.
func ParseQueueID(s string) (QueueID, bool) {
	if len(s) != 16 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return QueueID(n), true
}

// ParseArtistID parses exactly the 16-character lower-case hex form that
// ArtistID.String produces.
func ParseArtistID(s string) (ArtistID, bool) {
	if len(s) != 16 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return ArtistID(n), true
}

// ParseAlbumID parses exactly the 13-character lower-case hex form that
// AlbumID.String produces.
func ParseAlbumID(s string) (AlbumID, bool) {
	if len(s) != 13 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return AlbumID(n), true
}

// ParseTrackID parses exactly the 16-character lower-case hex form that
// TrackID.String produces.
func ParseTrackID(s string) (TrackID, bool) {
	if len(s) != 16 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return TrackID(n), true
}
