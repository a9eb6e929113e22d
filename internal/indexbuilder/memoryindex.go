package indexbuilder

import (
	"sort"

	"github.com/astrid-voss/musium/internal/errs"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/strdedup"
	"github.com/astrid-voss/musium/internal/wordindex"
)

// ArtistEntry is one bookmark-indexed row of MemoryIndex.Artists.
type ArtistEntry struct {
	ID     prim.ArtistID
	Artist Artist
}

// AlbumEntry is one bookmark-indexed row of MemoryIndex.Albums.
type AlbumEntry struct {
	ID    prim.AlbumID
	Album Album
}

// TrackEntry is one bookmark-indexed row of MemoryIndex.Tracks.
type TrackEntry struct {
	ID    prim.TrackID
	Track Track
}

// AlbumsByArtistEntry maps an artist to the albums it has released, sorted
// alongside ArtistID for bookmark-accelerated lookup.
type AlbumsByArtistEntry struct {
	ArtistID prim.ArtistID
	AlbumIDs []prim.AlbumID
}

// MemoryIndex is the immutable, fully-built in-memory metadata index that
// backs search, browsing, and playback lookups. Apart from the loudness
// values that PatchTrackLoudness/PatchAlbumLoudness fill in after a build,
// it is not mutated; Scanner publishes replacements via an MVar.
type MemoryIndex struct {
	Artists          []ArtistEntry
	ArtistBookmarks  [257]uint32
	Albums           []AlbumEntry
	AlbumBookmarks   [257]uint32
	Tracks           []TrackEntry
	TrackBookmarks   [257]uint32
	AlbumsByArtist   []AlbumsByArtistEntry
	ArtistsByArtistBookmarks [257]uint32

	ArtistWords *wordindex.Index
	AlbumWords  *wordindex.Index
	TrackWords  *wordindex.Index

	Issues []errs.Issue
}

// GetArtist binary-searches Artists using ArtistBookmarks to narrow the
// initial range.
func (mi *MemoryIndex) GetArtist(id prim.ArtistID) (Artist, bool) {
	lo, hi := bookmarkRange(mi.ArtistBookmarks, uint64(id), 64)
	i := sort.Search(hi-lo, func(i int) bool { return mi.Artists[lo+i].ID >= id })
	if lo+i < hi && mi.Artists[lo+i].ID == id {
		return mi.Artists[lo+i].Artist, true
	}
	return Artist{}, false
}

// GetAlbum binary-searches Albums using AlbumBookmarks.
func (mi *MemoryIndex) GetAlbum(id prim.AlbumID) (Album, bool) {
	lo, hi := bookmarkRange(mi.AlbumBookmarks, uint64(id), 52)
	i := sort.Search(hi-lo, func(i int) bool { return mi.Albums[lo+i].ID >= id })
	if lo+i < hi && mi.Albums[lo+i].ID == id {
		return mi.Albums[lo+i].Album, true
	}
	return Album{}, false
}

// GetTrack binary-searches Tracks using TrackBookmarks.
func (mi *MemoryIndex) GetTrack(id prim.TrackID) (Track, bool) {
	lo, hi := bookmarkRange(mi.TrackBookmarks, uint64(id), 64)
	i := sort.Search(hi-lo, func(i int) bool { return mi.Tracks[lo+i].ID >= id })
	if lo+i < hi && mi.Tracks[lo+i].ID == id {
		return mi.Tracks[lo+i].Track, true
	}
	return Track{}, false
}

// AlbumTracks returns every track on albumID, in TrackID order (disc then
// track number), exploiting the fact that a TrackID packs its AlbumID into
// the high bits, so an album's tracks always occupy one contiguous range
// of the sorted Tracks slice.
func (mi *MemoryIndex) AlbumTracks(albumID prim.AlbumID) []TrackEntry {
	first := prim.NewTrackID(albumID, 0, 0)
	last := prim.NewTrackID(albumID+1, 0, 0)
	lo := sort.Search(len(mi.Tracks), func(i int) bool { return mi.Tracks[i].ID >= first })
	hi := sort.Search(len(mi.Tracks), func(i int) bool { return mi.Tracks[i].ID >= last })
	return mi.Tracks[lo:hi]
}

// PatchTrackLoudness overwrites the Loudness of one already-built track in
// place. MemoryIndex is otherwise treated as immutable once built, but
// loudness analysis runs after the index is built (it needs FileIDs out of
// it) and writes its results to TagStore rather than back into the file's
// tags, so there is no other way for a freshly measured value to reach the
// index that is about to be published. Returns false if id is unknown.
func (mi *MemoryIndex) PatchTrackLoudness(id prim.TrackID, l prim.Lufs) bool {
	lo, hi := bookmarkRange(mi.TrackBookmarks, uint64(id), 64)
	i := sort.Search(hi-lo, func(i int) bool { return mi.Tracks[lo+i].ID >= id })
	if lo+i < hi && mi.Tracks[lo+i].ID == id {
		mi.Tracks[lo+i].Track.Loudness = &l
		return true
	}
	return false
}

// PatchAlbumLoudness overwrites the Loudness of one already-built album in
// place. See PatchTrackLoudness for why this mutation is needed.
func (mi *MemoryIndex) PatchAlbumLoudness(id prim.AlbumID, l prim.Lufs) bool {
	lo, hi := bookmarkRange(mi.AlbumBookmarks, uint64(id), 52)
	i := sort.Search(hi-lo, func(i int) bool { return mi.Albums[lo+i].ID >= id })
	if lo+i < hi && mi.Albums[lo+i].ID == id {
		mi.Albums[lo+i].Album.Loudness = &l
		return true
	}
	return false
}

// AlbumsOf returns the album ids released by artist id, or nil if unknown.
func (mi *MemoryIndex) AlbumsOf(id prim.ArtistID) []prim.AlbumID {
	lo, hi := bookmarkRange(mi.ArtistsByArtistBookmarks, uint64(id), 64)
	i := sort.Search(hi-lo, func(i int) bool { return mi.AlbumsByArtist[lo+i].ArtistID >= id })
	if lo+i < hi && mi.AlbumsByArtist[lo+i].ArtistID == id {
		return mi.AlbumsByArtist[lo+i].AlbumIDs
	}
	return nil
}

// SearchResult is the {artists, albums, tracks} shape the search HTTP
// endpoint returns, each already ranked best match first.
type SearchResult struct {
	ArtistIDs []prim.ArtistID
	AlbumIDs  []prim.AlbumID
	TrackIDs  []prim.TrackID
}

// searchLimit caps the number of ids returned per category, matching the
// kind of bound a type-ahead search box needs.
const searchLimit = 25

// Search runs the conjunctive multi-word query against all three word
// indexes and returns up to searchLimit ranked ids per category.
func (mi *MemoryIndex) Search(query string) SearchResult {
	needles := prim.NormalizeWords(query)
	if len(needles) == 0 {
		return SearchResult{}
	}
	needleLens := make([]int, len(needles))
	for i, n := range needles {
		needleLens[i] = len(n)
	}

	return SearchResult{
		ArtistIDs: searchCategory(mi.ArtistWords, needles, needleLens, func(v uint64) prim.ArtistID { return prim.ArtistID(v) }),
		AlbumIDs:  searchCategory(mi.AlbumWords, needles, needleLens, func(v uint64) prim.AlbumID { return prim.AlbumID(v) }),
		TrackIDs:  searchCategory(mi.TrackWords, needles, needleLens, func(v uint64) prim.TrackID { return prim.TrackID(v) }),
	}
}

func searchCategory[ID ~uint64](idx *wordindex.Index, needles []string, needleLens []int, toID func(uint64) ID) []ID {
	matches := idx.Search(needles)
	wordindex.RankMatches(matches, needleLens)
	if len(matches) > searchLimit {
		matches = matches[:searchLimit]
	}
	ids := make([]ID, len(matches))
	for i, m := range matches {
		ids[i] = toID(m.Value)
	}
	return ids
}

// topByte extracts the most significant byte of an id given its nominal bit
// width (64 for Artist/Track ids, 52 for Album ids — AlbumID's top 12 bits
// are always zero, so its "top byte" is bits 44-51, the most significant
// byte that actually varies).
func topByte(id uint64, bitWidth int) byte {
	return byte(id >> (bitWidth - 8))
}

// bookmarkRange returns [lo,hi) into the array bookmarks indexes, covering
// every entry whose id shares the top byte of id.
func bookmarkRange(bookmarks [257]uint32, id uint64, bitWidth int) (int, int) {
	b := topByte(id, bitWidth)
	return int(bookmarks[b]), int(bookmarks[b+1])
}

// buildBookmarks computes the 257-entry prefix-sum bookmark array for a
// sorted list of ids: bookmarks[b] is the index of the first
// entry whose top byte is >= b.
func buildBookmarks(ids []uint64, bitWidth int) [257]uint32 {
	var counts [256]uint32
	for _, id := range ids {
		counts[topByte(id, bitWidth)]++
	}
	var bookmarks [257]uint32
	for b := 0; b < 256; b++ {
		bookmarks[b+1] = bookmarks[b] + counts[b]
	}
	return bookmarks
}

// Builder accumulates rows across a scan and produces a MemoryIndex.
type Builder struct {
	dedup *strdedup.Deduper

	artists map[prim.ArtistID]Artist
	albums  map[prim.AlbumID]Album
	tracks  map[prim.TrackID]Track

	artistWordTriples []wordindex.Triple
	albumWordTriples  []wordindex.Triple
	trackWordTriples  []wordindex.Triple

	issues []errs.Issue
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		dedup:   strdedup.New(),
		artists: map[prim.ArtistID]Artist{},
		albums:  map[prim.AlbumID]Album{},
		tracks:  map[prim.TrackID]Track{},
	}
}

// AddRow folds one validated row into the builder, applying a
// first-seen-wins / mismatch-warning policy for artists and albums, and a
// first-value-wins / adopt-if-later-provides policy for album loudness.
func (b *Builder) AddRow(r row) {
	r.artist.Name = b.dedup.Intern(strdedup.FixupQuotes(r.artist.Name))
	r.artist.NameForSort = b.dedup.Intern(strdedup.FixupQuotes(r.artist.NameForSort))
	r.album.Title = b.dedup.Intern(strdedup.FixupQuotes(r.album.Title))
	r.album.PrimaryArtist = b.dedup.Intern(strdedup.FixupQuotes(r.album.PrimaryArtist))
	r.track.Title = b.dedup.Intern(strdedup.FixupQuotes(r.track.Title))
	r.track.Artist = b.dedup.Intern(strdedup.FixupQuotes(r.track.Artist))
	r.track.Filename = b.dedup.Intern(r.track.Filename)

	if existing, ok := b.artists[r.artistID]; ok {
		if existing.Name != r.artist.Name {
			b.issues = append(b.issues, errs.Warningf(r.track.Filename, "albumartist",
				"ArtistNameMismatch: keeping %q, discarding %q", existing.Name, r.artist.Name))
		}
	} else {
		b.artists[r.artistID] = r.artist
	}

	if existing, ok := b.albums[r.albumID]; ok {
		if existing.Title != r.album.Title {
			b.issues = append(b.issues, errs.Warningf(r.track.Filename, "album",
				"AlbumTitleMismatch: keeping %q, discarding %q", existing.Title, r.album.Title))
		}
		switch {
		case existing.Loudness != nil && r.album.Loudness != nil && *existing.Loudness != *r.album.Loudness:
			b.issues = append(b.issues, errs.Warningf(r.track.Filename, "bs17704_album_loudness",
				"AlbumLoudnessMismatch: keeping %v, discarding %v", *existing.Loudness, *r.album.Loudness))
		case existing.Loudness == nil && r.album.Loudness != nil:
			existing.Loudness = r.album.Loudness
			b.albums[r.albumID] = existing
		}
	} else {
		b.albums[r.albumID] = r.album
	}

	if _, ok := b.tracks[r.trackID]; ok {
		b.issues = append(b.issues, errs.Errorf(r.track.Filename, "",
			"duplicate (disc,track) %d/%d within album %s, keeping first seen",
			r.track.Disc, r.track.TrackNo, r.albumID))
		return
	}
	b.tracks[r.trackID] = r.track

	b.addWords(r)
}

// addWords normalizes and files the title/artist words for one track into
// the three per-category word triples, applying wordindex's ranking rules.
func (b *Builder) addWords(r row) {
	albumArtistWords := prim.NormalizeWords(r.artist.Name)
	for i, w := range albumArtistWords {
		meta := wordindex.NewMeta(len(w), totalLen(albumArtistWords), i, wordindex.RankTitle)
		b.artistWordTriples = append(b.artistWordTriples, wordindex.Triple{
			Word: w, Value: uint64(r.artistID), Meta: meta,
		})
	}

	albumTitleWords := prim.NormalizeWords(r.album.Title)
	for i, w := range albumTitleWords {
		meta := wordindex.NewMeta(len(w), totalLen(albumTitleWords), i, wordindex.RankTitle)
		b.albumWordTriples = append(b.albumWordTriples, wordindex.Triple{
			Word: w, Value: uint64(r.albumID), Meta: meta,
		})
	}
	for i, w := range albumArtistWords {
		meta := wordindex.NewMeta(len(w), totalLen(albumArtistWords), i, wordindex.RankTertiary)
		b.albumWordTriples = append(b.albumWordTriples, wordindex.Triple{
			Word: w, Value: uint64(r.albumID), Meta: meta,
		})
	}

	trackTitleWords := prim.NormalizeWords(r.track.Title)
	for i, w := range trackTitleWords {
		meta := wordindex.NewMeta(len(w), totalLen(trackTitleWords), i, wordindex.RankTitle)
		b.trackWordTriples = append(b.trackWordTriples, wordindex.Triple{
			Word: w, Value: uint64(r.trackID), Meta: meta,
		})
	}
	for i, w := range albumArtistWords {
		meta := wordindex.NewMeta(len(w), totalLen(albumArtistWords), i, wordindex.RankTertiary)
		b.trackWordTriples = append(b.trackWordTriples, wordindex.Triple{
			Word: w, Value: uint64(r.trackID), Meta: meta,
		})
	}
	if r.track.Artist != r.artist.Name {
		trackArtistWords := prim.NormalizeWords(r.track.Artist)
		for i, w := range trackArtistWords {
			meta := wordindex.NewMeta(len(w), totalLen(trackArtistWords), i, wordindex.RankSecondary)
			b.trackWordTriples = append(b.trackWordTriples, wordindex.Triple{
				Word: w, Value: uint64(r.trackID), Meta: meta,
			})
		}
	}
}

func totalLen(words []string) int {
	n := 0
	for _, w := range words {
		n += len(w)
	}
	return n
}

// Issues appends extra issues (e.g. ones raised by parseRow before a row
// ever reached AddRow).
func (b *Builder) Issues(issues ...errs.Issue) {
	b.issues = append(b.issues, issues...)
}

// Build assembles the immutable MemoryIndex from everything accumulated so
// far.
func (b *Builder) Build() *MemoryIndex {
	mi := &MemoryIndex{Issues: b.issues}

	artistIDs := make([]prim.ArtistID, 0, len(b.artists))
	for id := range b.artists {
		artistIDs = append(artistIDs, id)
	}
	sort.Slice(artistIDs, func(i, j int) bool { return artistIDs[i] < artistIDs[j] })
	mi.Artists = make([]ArtistEntry, len(artistIDs))
	rawArtistIDs := make([]uint64, len(artistIDs))
	for i, id := range artistIDs {
		mi.Artists[i] = ArtistEntry{ID: id, Artist: b.artists[id]}
		rawArtistIDs[i] = uint64(id)
	}
	mi.ArtistBookmarks = buildBookmarks(rawArtistIDs, 64)

	albumIDs := make([]prim.AlbumID, 0, len(b.albums))
	for id := range b.albums {
		albumIDs = append(albumIDs, id)
	}
	sort.Slice(albumIDs, func(i, j int) bool { return albumIDs[i] < albumIDs[j] })
	mi.Albums = make([]AlbumEntry, len(albumIDs))
	rawAlbumIDs := make([]uint64, len(albumIDs))
	albumsByArtist := map[prim.ArtistID][]prim.AlbumID{}
	for i, id := range albumIDs {
		album := b.albums[id]
		mi.Albums[i] = AlbumEntry{ID: id, Album: album}
		rawAlbumIDs[i] = uint64(id)
		for _, artistID := range album.ArtistIDs {
			albumsByArtist[artistID] = append(albumsByArtist[artistID], id)
		}
	}
	mi.AlbumBookmarks = buildBookmarks(rawAlbumIDs, 52)

	abaArtistIDs := make([]prim.ArtistID, 0, len(albumsByArtist))
	for id := range albumsByArtist {
		abaArtistIDs = append(abaArtistIDs, id)
	}
	sort.Slice(abaArtistIDs, func(i, j int) bool { return abaArtistIDs[i] < abaArtistIDs[j] })
	mi.AlbumsByArtist = make([]AlbumsByArtistEntry, len(abaArtistIDs))
	rawABAIDs := make([]uint64, len(abaArtistIDs))
	for i, id := range abaArtistIDs {
		albums := albumsByArtist[id]
		sort.Slice(albums, func(i, j int) bool { return albums[i] < albums[j] })
		mi.AlbumsByArtist[i] = AlbumsByArtistEntry{ArtistID: id, AlbumIDs: albums}
		rawABAIDs[i] = uint64(id)
	}
	mi.ArtistsByArtistBookmarks = buildBookmarks(rawABAIDs, 64)

	trackIDs := make([]prim.TrackID, 0, len(b.tracks))
	for id := range b.tracks {
		trackIDs = append(trackIDs, id)
	}
	sort.Slice(trackIDs, func(i, j int) bool { return trackIDs[i] < trackIDs[j] })
	mi.Tracks = make([]TrackEntry, len(trackIDs))
	rawTrackIDs := make([]uint64, len(trackIDs))
	for i, id := range trackIDs {
		mi.Tracks[i] = TrackEntry{ID: id, Track: b.tracks[id]}
		rawTrackIDs[i] = uint64(id)
	}
	mi.TrackBookmarks = buildBookmarks(rawTrackIDs, 64)

	mi.ArtistWords = wordindex.Build(b.artistWordTriples)
	mi.AlbumWords = wordindex.Build(b.albumWordTriples)
	mi.TrackWords = wordindex.Build(b.trackWordTriples)

	return mi
}
