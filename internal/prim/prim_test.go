package prim

import (
	"testing"

	"github.com/google/uuid"
)

func TestTrackIDFields(t *testing.T) {
	album := AlbumID(0x000a_bcde_1234_5)
	id := NewTrackID(album, 3, 200)
	if got := id.AlbumID(); got != album {
		t.Fatalf("AlbumID() = %x, want %x", got, album)
	}
	if got := id.Disc(); got != 3 {
		t.Fatalf("Disc() = %d, want 3", got)
	}
	if got := id.Track(); got != 200 {
		t.Fatalf("Track() = %d, want 200", got)
	}
}

func TestQueueIDRoundTrip(t *testing.T) {
	id := QueueID(0x0123456789abcdef)
	s := id.String()
	if s != "0123456789abcdef" {
		t.Fatalf("String() = %q, want 0123456789abcdef", s)
	}
	got, ok := ParseQueueID(s)
	if !ok || got != id {
		t.Fatalf("ParseQueueID(%q) = %x, %v, want %x, true", s, got, ok, id)
	}
	if _, ok := ParseQueueID("short"); ok {
		t.Fatal("ParseQueueID accepted a short string")
	}
	if _, ok := ParseQueueID("zzzzzzzzzzzzzzzz"); ok {
		t.Fatal("ParseQueueID accepted non-hex characters")
	}
}

func TestArtistAlbumTrackIDRoundTrip(t *testing.T) {
	artist := ArtistID(0x0123456789abcdef)
	if s := artist.String(); s != "0123456789abcdef" {
		t.Fatalf("ArtistID.String() = %q", s)
	}
	if got, ok := ParseArtistID(artist.String()); !ok || got != artist {
		t.Fatalf("ParseArtistID round trip = %x, %v, want %x, true", got, ok, artist)
	}
	if _, ok := ParseArtistID("short"); ok {
		t.Fatal("ParseArtistID accepted a short string")
	}

	album := AlbumID(0x000a_bcde_1234_5)
	if s := album.String(); len(s) != 13 {
		t.Fatalf("AlbumID.String() length = %d, want 13", len(s))
	}
	if got, ok := ParseAlbumID(album.String()); !ok || got != album {
		t.Fatalf("ParseAlbumID round trip = %x, %v, want %x, true", got, ok, album)
	}
	if _, ok := ParseAlbumID("short"); ok {
		t.Fatal("ParseAlbumID accepted a string of the wrong length")
	}

	track := NewTrackID(album, 1, 7)
	if got, ok := ParseTrackID(track.String()); !ok || got != track {
		t.Fatalf("ParseTrackID round trip = %x, %v, want %x, true", got, ok, track)
	}
	if _, ok := ParseTrackID("zzzzzzzzzzzzzzzz"); ok {
		t.Fatal("ParseTrackID accepted non-hex characters")
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2018-01-02", Date{2018, 1, 2}, true},
		{"2018-01-32", Date{}, false},
		{"2018-13-01", Date{}, false},
		{"2018", Date{Year: 2018}, true},
		{"2018-01", Date{Year: 2018, Month: 1}, true},
		{"18-01-02", Date{}, false},
		{"", Date{}, false},
	}
	for _, c := range cases {
		got, ok := ParseDate(c.in)
		if ok != c.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseDate(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestDateRoundTrip(t *testing.T) {
	for _, s := range []string{"2018", "2018-01", "2018-01-02"} {
		d, ok := ParseDate(s)
		if !ok {
			t.Fatalf("ParseDate(%q) failed", s)
		}
		if d.String() != s {
			t.Errorf("round trip %q -> %q", s, d.String())
		}
	}
}

func TestParseMusicBrainzID(t *testing.T) {
	valid := "f27ec8db-af05-4f36-916e-3d57f91ecf5e"
	if _, ok := ParseMusicBrainzID(valid); !ok {
		t.Fatalf("expected valid UUID to parse")
	}
	invalid := []string{
		"",
		"f27ec8db-af05-4f36-916e-3d57f91ecf5",   // 35 chars
		"f27ec8dbxaf05-4f36-916e-3d57f91ecf5e",  // dash misplaced
		"not-a-uuid-not-a-uuid-not-a-uuid-00",
	}
	for _, s := range invalid {
		if _, ok := ParseMusicBrainzID(s); ok {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestIDFromUUIDDiscardsMiddleBits(t *testing.T) {
	u := uuid.MustParse("12345678-0000-4000-8000-0000cdef0123")
	a := NewArtistID(u)
	want := ArtistID(uint64(0x12345678)<<32 | uint64(0xcdef0123))
	if a != want {
		t.Fatalf("got %x, want %x", uint64(a), uint64(want))
	}
}

func TestParseLufs(t *testing.T) {
	l, err := ParseLufs("-9.10 LUFS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l != -910 {
		t.Fatalf("got %d, want -910", l)
	}
	if _, err := ParseLufs("0.00 LUFS"); err == nil {
		t.Fatalf("expected error for zero loudness")
	}
}

func TestInstantRoundTrip(t *testing.T) {
	const ts = "2024-03-05T12:30:00Z"
	inst, err := FromISO8601(ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := inst.FormatISO8601(); got != ts {
		t.Errorf("round trip = %q, want %q", got, ts)
	}
}

func TestNormalizeWordsBasic(t *testing.T) {
	got := NormalizeWords("Ṣānnu yārru lī")
	want := []string{"sannu", "yarru", "li"}
	if !equalSlices(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got2 := NormalizeWords("Orð vǫlu")
	want2 := []string{"ord", "volu"}
	if !equalSlices(got2, want2) {
		t.Errorf("got %v, want %v", got2, want2)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
