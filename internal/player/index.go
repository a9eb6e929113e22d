package player

import (
	"github.com/astrid-voss/musium/internal/indexbuilder"
	"github.com/astrid-voss/musium/internal/prim"
)

// Index is the lookup surface the player needs from the library's
// MemoryIndex: the track's filename (to open a decoder) and the album's
// primary artist (to shuffle). *indexbuilder.MemoryIndex satisfies this
// directly; tests use a fake.
type Index interface {
	GetTrack(prim.TrackID) (indexbuilder.Track, bool)
	GetAlbum(prim.AlbumID) (indexbuilder.Album, bool)
}
