package thumbnail

import (
	"context"

	"github.com/astrid-voss/musium/internal/albumtable"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/tagstore"
)

// ImageRef locates one album's thumbnail bytes inside Cache's single
// concatenated buffer, avoiding one small allocation per stored image.
type ImageRef struct {
	Color      Color
	Start, End int
}

// Cache is the read-only, O(1)-lookup view of every generated thumbnail,
// loaded once at startup from the thumbnails table.
type Cache struct {
	data  []byte
	table *albumtable.Table[ImageRef]
}

// LoadCache reads every thumbnails row and assembles a Cache.
func LoadCache(ctx context.Context, store *tagstore.Store) (*Cache, error) {
	rows, err := store.AllThumbnails(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	table := albumtable.New[ImageRef](len(rows))
	for _, r := range rows {
		color, _ := ParseColor(r.Color)
		start := len(data)
		data = append(data, r.Data...)
		table.Insert(prim.AlbumID(r.AlbumID), ImageRef{Color: color, Start: start, End: len(data)})
	}
	return &Cache{data: data, table: table}, nil
}

// NewEmptyCache returns a Cache with no entries, useful for wiring a
// service up before the first thumbnail pipeline run has populated the
// thumbnails table.
func NewEmptyCache() *Cache {
	return &Cache{table: albumtable.New[ImageRef](0)}
}

// Get returns albumID's JPEG bytes and dominant color, if a thumbnail has
// been generated for it.
func (c *Cache) Get(albumID prim.AlbumID) (jpeg []byte, color Color, ok bool) {
	ref, ok := c.table.Get(albumID)
	if !ok {
		return nil, Color{}, false
	}
	return c.data[ref.Start:ref.End], ref.Color, true
}
