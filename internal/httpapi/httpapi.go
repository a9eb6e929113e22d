// Package httpapi backs the JSON endpoints a router exposes over the
// music library and playback queue. The router itself, request
// validation beyond id parsing, and the marshaling of exotic content
// types are the thin out-of-core layer spec.md leaves to the caller; this
// package owns every method a handler needs to call to answer a request,
// following the teacher's services/api pattern of a small Service struct
// with a Routes(chi.Router) method.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"

	"github.com/astrid-voss/musium/internal/indexbuilder"
	"github.com/astrid-voss/musium/internal/mvar"
	"github.com/astrid-voss/musium/internal/player"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/thumbnail"
	"github.com/astrid-voss/musium/pkg/objstore"
)

// Service holds everything the API handlers read from; nothing here is
// ever mutated by a handler directly, it all flows through Player's
// locked State or a freshly-swapped MemoryIndex.
type Service struct {
	index  *mvar.MVar[indexbuilder.MemoryIndex]
	player *player.Player
	thumbs *mvar.MVar[thumbnail.Cache]
	files  objstore.ObjectStore
}

// New returns a Service backed by the given components. thumbs is an MVar
// so a background rescan can swap in a freshly loaded Cache without
// restarting the daemon, the same way index gets republished.
func New(index *mvar.MVar[indexbuilder.MemoryIndex], pl *player.Player, thumbs *mvar.MVar[thumbnail.Cache]) *Service {
	svc := &Service{index: index, player: pl, thumbs: thumbs}
	if files, err := objstore.NewLocalFS("/"); err == nil {
		svc.files = files
	}
	return svc
}

// Routes registers every endpoint spec.md §6 commits the core to.
func (s *Service) Routes(r chi.Router) {
	r.Get("/healthz", s.healthz)

	r.Get("/api/albums", s.listAlbums)
	r.Get("/api/album/{id}", s.albumDetail)
	r.Get("/api/artist/{id}", s.artistDetail)
	r.Get("/api/search", s.search)
	r.Get("/api/cover/{id}", s.cover)
	r.Get("/api/thumb/{id}", s.thumb)
	r.Get("/api/track/{id}.flac", s.trackFile)
	r.Get("/api/queue", s.getQueue)
	r.Put("/api/queue/{id}", s.enqueue)
	r.Get("/api/volume", s.getVolume)
	r.Post("/api/volume/up", s.volumeUp)
	r.Post("/api/volume/down", s.volumeDown)
}

// healthz is the liveness endpoint — always 200 once the router is
// serving requests.
func (s *Service) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// NotifySystemdReady tells systemd the HTTP server is bound and serving,
// if NOTIFY_SOCKET is set (i.e. the process was started as a systemd
// service). A missing NOTIFY_SOCKET is the common case outside of
// production and is not an error.
func NotifySystemdReady() error {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return nil
	}
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady+"\nSTATUS=Online")
	return err
}

// --- albums / artists / search ---

// albumSummary is one entry of GET /api/albums.
type albumSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	SortArtist string `json:"sort_artist"`
	Date       string `json:"date"`
}

func (s *Service) listAlbums(w http.ResponseWriter, r *http.Request) {
	idx := s.index.Get()
	out := make([]albumSummary, 0, len(idx.Albums))
	for _, e := range idx.Albums {
		out = append(out, s.summarizeAlbum(idx, e.ID, e.Album))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) summarizeAlbum(idx *indexbuilder.MemoryIndex, id prim.AlbumID, album indexbuilder.Album) albumSummary {
	sortArtist := album.PrimaryArtist
	if len(album.ArtistIDs) > 0 {
		if artist, ok := idx.GetArtist(album.ArtistIDs[0]); ok {
			sortArtist = artist.NameForSort
		}
	}
	return albumSummary{
		ID:         id.String(),
		Title:      album.Title,
		Artist:     album.PrimaryArtist,
		SortArtist: sortArtist,
		Date:       album.OriginalReleaseDate.String(),
	}
}

// trackSummary is one entry of an album detail's track list.
type trackSummary struct {
	ID              string `json:"id"`
	DiscNumber      uint8  `json:"disc_number"`
	TrackNumber     uint8  `json:"track_number"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds uint16 `json:"duration_seconds"`
}

// albumDetail is the body of GET /api/album/:id.
type albumDetail struct {
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	SortArtist string         `json:"sort_artist"`
	Date       string         `json:"date"`
	Tracks     []trackSummary `json:"tracks"`
}

func (s *Service) albumDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := prim.ParseAlbumID(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid album id")
		return
	}
	idx := s.index.Get()
	album, ok := idx.GetAlbum(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "album not found")
		return
	}
	summary := s.summarizeAlbum(idx, id, album)

	entries := idx.AlbumTracks(id)
	tracks := make([]trackSummary, len(entries))
	for i, e := range entries {
		tracks[i] = trackSummary{
			ID:              e.ID.String(),
			DiscNumber:      e.Track.Disc,
			TrackNumber:     e.Track.TrackNo,
			Title:           e.Track.Title,
			Artist:          e.Track.Artist,
			DurationSeconds: e.Track.DurationS,
		}
	}
	writeJSON(w, http.StatusOK, albumDetail{
		Title:      summary.Title,
		Artist:     summary.Artist,
		SortArtist: summary.SortArtist,
		Date:       summary.Date,
		Tracks:     tracks,
	})
}

// artistDetail is the body of GET /api/artist/:id.
type artistDetail struct {
	Name   string   `json:"name"`
	Albums []string `json:"albums"`
}

func (s *Service) artistDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := prim.ParseArtistID(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid artist id")
		return
	}
	idx := s.index.Get()
	artist, ok := idx.GetArtist(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "artist not found")
		return
	}
	albumIDs := idx.AlbumsOf(id)
	albums := make([]string, len(albumIDs))
	for i, aid := range albumIDs {
		albums[i] = aid.String()
	}
	writeJSON(w, http.StatusOK, artistDetail{Name: artist.Name, Albums: albums})
}

type searchArtistResult struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Albums []string `json:"albums"`
}

type searchAlbumResult struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Date   string `json:"date"`
}

type searchTrackResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	AlbumID string `json:"album_id"`
	Album   string `json:"album"`
	Artist  string `json:"artist"`
}

type searchResponse struct {
	Artists []searchArtistResult `json:"artists"`
	Albums  []searchAlbumResult  `json:"albums"`
	Tracks  []searchTrackResult  `json:"tracks"`
}

func (s *Service) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErr(w, http.StatusBadRequest, "missing search query")
		return
	}
	idx := s.index.Get()
	result := idx.Search(q)

	artists := make([]searchArtistResult, 0, len(result.ArtistIDs))
	for _, id := range result.ArtistIDs {
		artist, ok := idx.GetArtist(id)
		if !ok {
			continue
		}
		albumIDs := idx.AlbumsOf(id)
		albums := make([]string, len(albumIDs))
		for i, aid := range albumIDs {
			albums[i] = aid.String()
		}
		artists = append(artists, searchArtistResult{ID: id.String(), Name: artist.Name, Albums: albums})
	}

	albums := make([]searchAlbumResult, 0, len(result.AlbumIDs))
	for _, id := range result.AlbumIDs {
		album, ok := idx.GetAlbum(id)
		if !ok {
			continue
		}
		albums = append(albums, searchAlbumResult{
			ID:     id.String(),
			Title:  album.Title,
			Artist: album.PrimaryArtist,
			Date:   album.OriginalReleaseDate.String(),
		})
	}

	tracks := make([]searchTrackResult, 0, len(result.TrackIDs))
	for _, id := range result.TrackIDs {
		track, ok := idx.GetTrack(id)
		if !ok {
			continue
		}
		album, ok := idx.GetAlbum(track.AlbumID)
		albumTitle := ""
		if ok {
			albumTitle = album.Title
		}
		tracks = append(tracks, searchTrackResult{
			ID:      id.String(),
			Title:   track.Title,
			AlbumID: track.AlbumID.String(),
			Album:   albumTitle,
			Artist:  track.Artist,
		})
	}

	writeJSON(w, http.StatusOK, searchResponse{Artists: artists, Albums: albums, Tracks: tracks})
}

// --- cover art / thumbnails / file streaming ---

func (s *Service) cover(w http.ResponseWriter, r *http.Request) {
	id, ok := prim.ParseAlbumID(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid album id")
		return
	}
	idx := s.index.Get()
	tracks := idx.AlbumTracks(id)
	if len(tracks) == 0 {
		writeErr(w, http.StatusNotFound, "album not found")
		return
	}
	cover, err := thumbnail.ExtractCover(tracks[0].Track.Filename)
	if err != nil {
		writeErr(w, http.StatusNotFound, "no cover art available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(cover)
}

func (s *Service) thumb(w http.ResponseWriter, r *http.Request) {
	id, ok := prim.ParseAlbumID(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid album id")
		return
	}
	jpeg, _, ok := s.thumbs.Get().Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "no thumbnail available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(jpeg)
}

// trackFile streams a track's raw FLAC bytes, honoring a single-range
// "Range: bytes=start-end" request the way a browser's <audio> element
// issues when seeking — the original left this as a TODO and always sent
// the whole file.
func (s *Service) trackFile(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSuffix(chi.URLParam(r, "id"), ".flac")
	id, ok := prim.ParseTrackID(raw)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}
	idx := s.index.Get()
	track, ok := idx.GetTrack(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "track not found")
		return
	}

	w.Header().Set("Content-Type", "audio/flac")
	w.Header().Set("Accept-Ranges", "bytes")

	if s.files == nil {
		f, err := os.Open(track.Filename)
		if err != nil {
			writeErr(w, http.StatusNotFound, "failed to open file")
			return
		}
		defer f.Close()
		_, _ = io.Copy(w, f)
		return
	}

	ctx := r.Context()
	key := strings.TrimPrefix(track.Filename, "/")
	total, err := s.files.Size(ctx, key)
	if err != nil {
		writeErr(w, http.StatusNotFound, "failed to stat file")
		return
	}

	start, end, hasRange := parseRangeHeader(r.Header.Get("Range"), total)
	if !hasRange {
		reader, err := s.files.GetRange(ctx, key, 0, total)
		if err != nil {
			writeErr(w, http.StatusNotFound, "failed to open file")
			return
		}
		defer reader.Close()
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		_, _ = io.Copy(w, reader)
		return
	}

	length := end - start + 1
	reader, err := s.files.GetRange(ctx, key, start, length)
	if err != nil {
		writeErr(w, http.StatusNotFound, "failed to open file")
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.Copy(w, reader)
}

// parseRangeHeader parses a single "bytes=start-end" range (including the
// open-ended "start-" and suffix "-n" forms), clamped to [0, total). Returns
// hasRange=false for a missing, multi-range, or unsatisfiable header, which
// the caller treats as "send the whole file".
func parseRangeHeader(h string, total int64) (start, end int64, hasRange bool) {
	const prefix = "bytes="
	if total <= 0 || !strings.HasPrefix(h, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(h, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if parts[0] == "" {
		suffix, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		if suffix > total {
			suffix = total
		}
		return total - suffix, total - 1, true
	}
	s, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || s < 0 || s >= total {
		return 0, 0, false
	}
	if parts[1] == "" {
		return s, total - 1, true
	}
	e, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || e < s {
		return 0, 0, false
	}
	if e >= total {
		e = total - 1
	}
	return s, e, true
}

// --- queue / volume ---

type queueTrack struct {
	QueueID         string  `json:"queue_id"`
	TrackID         string  `json:"track_id"`
	Title           string  `json:"title"`
	AlbumID         string  `json:"album_id"`
	Album           string  `json:"album"`
	Artist          string  `json:"artist"`
	DurationSeconds uint16  `json:"duration_seconds"`
	PositionSeconds float64 `json:"position_seconds"`
	BufferedSeconds float64 `json:"buffered_seconds"`
}

func (s *Service) getQueue(w http.ResponseWriter, r *http.Request) {
	idx := s.index.Get()
	snapshot := s.player.GetQueue()
	out := make([]queueTrack, 0, len(snapshot.Tracks))
	for i, t := range snapshot.Tracks {
		track, ok := idx.GetTrack(t.TrackID)
		if !ok {
			continue
		}
		album, _ := idx.GetAlbum(track.AlbumID)
		qt := queueTrack{
			QueueID:         t.QueueID.String(),
			TrackID:         t.TrackID.String(),
			Title:           track.Title,
			AlbumID:         track.AlbumID.String(),
			Album:           album.Title,
			Artist:          track.Artist,
			DurationSeconds: track.DurationS,
		}
		// Position/buffered seconds are only meaningful for the track
		// currently playing, matching write_queue_json's "lie" for the
		// rest of the queue: the frontend only needs those for index 0.
		if i == 0 {
			qt.PositionSeconds = float64(t.PositionMs) / 1000
			qt.BufferedSeconds = float64(t.BufferedMs) / 1000
		}
		out = append(out, qt)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) enqueue(w http.ResponseWriter, r *http.Request) {
	id, ok := prim.ParseTrackID(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}
	queueID, ok := s.player.Enqueue(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "track not found")
		return
	}
	writeJSON(w, http.StatusCreated, queueID.String())
}

type volumeResponse struct {
	VolumeDB float64 `json:"volume_db"`
}

func (s *Service) getVolume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, volumeResponse{VolumeDB: s.player.GetParams().Volume.Decibels()})
}

// volumeStep is the ±1 dB adjustment POST /api/volume/up|down applies.
const volumeStep = prim.Millibel(100)

func (s *Service) volumeUp(w http.ResponseWriter, r *http.Request) {
	params := s.player.ChangeVolume(volumeStep)
	writeJSON(w, http.StatusOK, volumeResponse{VolumeDB: params.Volume.Decibels()})
}

func (s *Service) volumeDown(w http.ResponseWriter, r *http.Request) {
	params := s.player.ChangeVolume(-volumeStep)
	writeJSON(w, http.StatusOK, volumeResponse{VolumeDB: params.Volume.Decibels()})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
