package indexbuilder

import (
	"strconv"
	"strings"

	"github.com/astrid-voss/musium/internal/errs"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/scanner"
)

// row is one successfully-validated file ready for insertion into the
// in-progress index.
type row struct {
	fileID   int64
	trackID  prim.TrackID
	albumID  prim.AlbumID
	artistID prim.ArtistID
	artist   Artist
	album    Album
	track    Track
}

// parseRow validates one scanner.FileMetadata against the required/optional
// tag table and streaminfo constraints. On success it returns the derived
// row; on failure it returns issues only (an error-severity issue means
// the file is dropped).
func parseRow(fm scanner.FileMetadata) (row, bool, []errs.Issue) {
	var issues []errs.Issue
	fail := func(field, format string, args ...any) (row, bool, []errs.Issue) {
		issues = append(issues, errs.Errorf(fm.Filename, field, format, args...))
		return row{}, false, issues
	}

	if fm.Channels != 2 {
		return fail("", "non-stereo file (channels=%d)", fm.Channels)
	}
	if fm.BitsPerSample != 16 && fm.BitsPerSample != 24 {
		return fail("", "unsupported bit depth %d", fm.BitsPerSample)
	}

	tags := fm.Tags

	trackNo, ok := parseU8(tags["tracknumber"])
	if !ok {
		return fail("tracknumber", "missing or unparsable tracknumber")
	}
	discNo, ok := parseU8(tags["discnumber"])
	if !ok {
		discNo = 1 // optional, default
	}

	albumArtistU, ok := prim.ParseMusicBrainzID(tags["musicbrainz_albumartistid"])
	if !ok {
		return fail("musicbrainz_albumartistid", "missing or unparsable musicbrainz_albumartistid")
	}
	albumArtistID := prim.NewArtistID(albumArtistU)

	albumU, ok := prim.ParseMusicBrainzID(tags["musicbrainz_albumid"])
	if !ok {
		return fail("musicbrainz_albumid", "missing or unparsable musicbrainz_albumid")
	}
	albumID := prim.NewAlbumID(albumU)

	dateStr := tags["originaldate"]
	if dateStr == "" {
		dateStr = tags["date"]
	}
	if dateStr == "" {
		return fail("originaldate", "neither originaldate nor date present")
	}
	date, ok := prim.ParseDate(dateStr)
	if !ok {
		return fail("originaldate", "unparsable date %q", dateStr)
	}

	title, ok := tags["title"]
	if !ok || title == "" {
		return fail("title", "missing title")
	}
	trackArtist, ok := tags["artist"]
	if !ok || trackArtist == "" {
		return fail("artist", "missing artist")
	}
	albumTitle, ok := tags["album"]
	if !ok || albumTitle == "" {
		return fail("album", "missing album")
	}
	albumArtistName, ok := tags["albumartist"]
	if !ok || albumArtistName == "" {
		return fail("albumartist", "missing albumartist")
	}

	var trackLoudness, albumLoudness *prim.Lufs
	if s, ok := tags["bs17704_track_loudness"]; ok {
		if l, err := prim.ParseLufs(s); err == nil {
			trackLoudness = &l
		} else {
			issues = append(issues, errs.Warningf(fm.Filename, "bs17704_track_loudness", "unparsable loudness %q: %v", s, err))
		}
	}
	if s, ok := tags["bs17704_album_loudness"]; ok {
		if l, err := prim.ParseLufs(s); err == nil {
			albumLoudness = &l
		} else {
			issues = append(issues, errs.Warningf(fm.Filename, "bs17704_album_loudness", "unparsable loudness %q: %v", s, err))
		}
	}

	sortName := tags["albumartistsort"] // optional

	if strings.Contains(title, "(feat. ") {
		issues = append(issues, errs.Warningf(fm.Filename, "title", "title contains \"(feat. \""))
	}

	trackID := prim.NewTrackID(albumID, discNo, trackNo)

	return row{
		fileID:   fm.FileID,
		trackID:  trackID,
		albumID:  albumID,
		artistID: albumArtistID,
		artist: Artist{
			Name:        albumArtistName,
			NameForSort: firstNonEmpty(sortName, albumArtistName),
		},
		album: Album{
			ArtistIDs:           []prim.ArtistID{albumArtistID},
			PrimaryArtist:       albumArtistName,
			Title:               albumTitle,
			OriginalReleaseDate: date,
			Loudness:            albumLoudness,
		},
		track: Track{
			FileID:    fm.FileID,
			AlbumID:   albumID,
			Disc:      discNo,
			TrackNo:   trackNo,
			Title:     title,
			Artist:    trackArtist,
			Filename:  fm.Filename,
			DurationS: durationSeconds(fm.NumSamples, fm.SampleRate),
			Loudness:  trackLoudness,
		},
	}, true, issues
}

func parseU8(s string) (uint8, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

func durationSeconds(numSamples uint64, sampleRate uint32) uint16 {
	if sampleRate == 0 {
		return 0
	}
	secs := numSamples / uint64(sampleRate)
	if secs > 0xffff {
		return 0xffff
	}
	return uint16(secs)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
