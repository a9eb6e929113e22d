// Package player tracks the play queue and drives the decoder thread that
// keeps it fed, grounded in original_source/src/player.rs. The audio device
// itself lives in internal/playback; this package only owns queue state and
// decoded PCM.
package player

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/astrid-voss/musium/internal/history"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/shuffle"
)

// State is the single mutex-guarded structure holding everything the
// decode loop and the HTTP handlers need to touch: the queue, the user's
// volume control, and the shuffle PRNG (part of State, not global, so
// shuffles are reproducible from a given seed plus queue contents).
type State struct {
	mu sync.Mutex

	nextID               prim.QueueID
	volume               prim.Millibel
	targetLoudness       prim.Lufs
	currentTrackLoudness *prim.Lufs
	highPassCutoff       prim.Hertz

	// Invariant: if queue[i] has no decoded blocks, neither does queue[j]
	// for any j>i.
	queue []*QueuedTrack

	events chan<- history.Event
	rng    *rand.Rand
}

// MinVolume is the floor of the user volume control: -60dB is quiet enough
// to be effectively silent. The ceiling isn't a fixed constant; it depends
// on targetLoudness (see clampVolume), since turning the volume up past
// that point would push normalized playback above full scale.
var MinVolume = prim.FromDecibels(-60)

// NewState constructs an empty player state. seed drives the shuffle PRNG
// and should be persisted/restored by the caller for reproducible shuffles
// across restarts; a fresh random seed is fine when that isn't needed.
func NewState(volume prim.Millibel, highPassCutoff prim.Hertz, events chan<- history.Event, seed [32]byte) *State {
	return &State{
		nextID:         0,
		volume:         volume,
		targetLoudness: prim.TargetLufs,
		highPassCutoff: highPassCutoff,
		events:         events,
		rng:            rand.New(shuffle.NewSource(seed)),
	}
}

// clampVolume enforces [MinVolume, -targetLoudness]. Lufs and Millibel
// share the same hundredths-of-a-unit scale, so negating targetLoudness
// converts it directly without any further scaling.
func clampVolume(v prim.Millibel, targetLoudness prim.Lufs) prim.Millibel {
	max := prim.Millibel(-targetLoudness)
	if v > max {
		return max
	}
	if v < MinVolume {
		return MinVolume
	}
	return v
}

// IsQueueEmpty reports whether there is anything queued at all.
func (s *State) IsQueueEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0
}

// TargetHighPassCutoff returns the current high-pass filter cutoff.
func (s *State) TargetHighPassCutoff() prim.Hertz {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highPassCutoff
}

// TargetVolumeFullScale applies loudness normalization on top of the user
// volume to get the absolute playback volume, or false if nothing is
// queued.
func (s *State) TargetVolumeFullScale() (prim.Millibel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetVolumeFullScaleLocked()
}

func (s *State) targetVolumeFullScaleLocked() (prim.Millibel, bool) {
	if s.currentTrackLoudness == nil {
		return 0, false
	}
	adjustment := prim.Millibel(int32(s.targetLoudness) - int32(*s.currentTrackLoudness))
	return s.volume + adjustment, true
}

// updateCurrentTrackLoudness picks album loudness when the track at the
// front of the queue shares an album with its neighbor (either the track
// that follows it, or the one that just finished), and track loudness
// otherwise.
func (s *State) updateCurrentTrackLoudness(previousAlbum prim.AlbumID) {
	if len(s.queue) == 0 {
		s.currentTrackLoudness = nil
		return
	}
	current := s.queue[0]
	var loudness prim.Lufs
	switch {
	case len(s.queue) > 1 && s.queue[1].AlbumID() == current.AlbumID():
		loudness = current.albumLoudness
	case current.AlbumID() == previousAlbum:
		loudness = current.albumLoudness
	default:
		loudness = current.trackLoudness
	}
	s.currentTrackLoudness = &loudness
}

// Enqueue appends track to the queue, assigning it the next queue id.
func (s *State) Enqueue(trackID prim.TrackID, trackLoudness, albumLoudness prim.Lufs) prim.QueueID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	track := NewQueuedTrack(id, trackID, trackLoudness, albumLoudness)

	if len(s.queue) == 0 {
		// The first track enqueued sets the tone: use album loudness since
		// more tracks from the same album may follow shortly.
		loudness := albumLoudness
		s.currentTrackLoudness = &loudness
	}
	s.queue = append(s.queue, track)
	return id
}

// Dequeue removes a queued track, unless it's the one currently playing
// (index 0) or it isn't present at all.
func (s *State) Dequeue(id prim.QueueID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, qt := range s.queue {
		if qt.QueueID != id {
			continue
		}
		if i == 0 {
			return
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		return
	}
}

// Shuffle reorders queue[1:] to minimize 2-badness (internal/shuffle), then
// restores the decoded-blocks-prefix invariant that the reorder may have
// broken.
func (s *State) Shuffle(index Index) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) < 3 {
		// Track 0 is playing and fixed; fewer than 2 remaining tracks means
		// there's nothing to interleave.
		return
	}

	rest := s.queue[1:]
	refs := make([]shuffle.TrackRef, len(rest))
	for i, qt := range rest {
		albumID := qt.AlbumID()
		var artistID prim.ArtistID
		if album, ok := index.GetAlbum(albumID); ok && len(album.ArtistIDs) > 0 {
			artistID = album.ArtistIDs[0]
		}
		refs[i] = shuffle.TrackRef{Index: i, AlbumID: albumID, ArtistID: artistID}
	}

	shuffled := shuffle.Shuffle(s.rng, refs)
	reordered := make([]*QueuedTrack, len(rest))
	for i, ref := range shuffled {
		reordered[i] = rest[ref.Index]
	}
	copy(s.queue[1:], reordered)

	s.restoreDecodeInvariantLocked()
}

// restoreDecodeInvariantLocked clears decode progress for every queued
// track once a non-Done entry is seen, since a shuffle may have moved an
// undecoded track ahead of a decoded one.
func (s *State) restoreDecodeInvariantLocked() {
	shouldClear := false
	for _, qt := range s.queue {
		if shouldClear {
			if qt.decode.dec != nil {
				qt.decode.dec.Close()
			}
			qt.decode = decodeSlot{}
			qt.blocks = nil
			continue
		}
		if qt.decode.state != decodeDone {
			shouldClear = true
		}
	}
}

// ClearQueue drops every queued track except the one currently playing.
func (s *State) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 1 {
		s.queue = s.queue[:1]
	}
}

// PeekBlock returns the block to play from next, if any.
func (s *State) PeekBlock() *Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || len(s.queue[0].blocks) == 0 {
		return nil
	}
	return s.queue[0].blocks[0]
}

// Consume marks n samples of the front block as played, emitting Started
// and Completed history events at the appropriate transitions, and popping
// tracks whose last block has drained.
func (s *State) Consume(n int, now time.Time) {
	if n <= 0 {
		panic("player: must consume at least one sample")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qt := s.queue[0]
	if qt.samplesPlayed == 0 {
		s.emit(history.Event{Kind: history.Started, QueueID: qt.QueueID, At: now, Track: s.trackInfoLocked(qt)})
	}
	qt.samplesPlayed += uint64(n)

	block := qt.blocks[0]
	block.Consume(n)
	if block.Len() == 0 {
		qt.blocks = qt.blocks[1:]
	}

	trackDone := qt.decode.state == decodeDone && len(qt.blocks) == 0
	if !trackDone {
		return
	}

	s.queue = s.queue[1:]
	s.emit(history.Event{Kind: history.Completed, QueueID: qt.QueueID, At: now})
	previousAlbum := qt.AlbumID()
	s.updateCurrentTrackLoudness(previousAlbum)

	if len(s.queue) == 0 {
		s.emit(history.Event{Kind: history.QueueEnded, At: now})
	}
}

// trackInfoLocked builds the TrackInfo carried by Started events. The
// player package itself only tracks ids and loudness, so only TrackID and
// AlbumID are filled in; titles, artists and the other fields stay zero.
func (s *State) trackInfoLocked(qt *QueuedTrack) history.TrackInfo {
	return history.TrackInfo{TrackID: qt.TrackID, AlbumID: qt.AlbumID()}
}

func (s *State) emit(ev history.Event) {
	if s.events == nil {
		return
	}
	s.events <- ev
}

// PendingDurationMs sums the duration of all unconsumed decoded audio.
func (s *State) PendingDurationMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, qt := range s.queue {
		total += qt.DurationMs()
	}
	return total
}

// PendingSizeBytes sums the memory footprint of all decoded blocks.
func (s *State) PendingSizeBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int
	for _, qt := range s.queue {
		total += qt.SizeBytes()
	}
	return total
}

// CanDecode reports whether any queued track still has decoding left to do.
func (s *State) CanDecode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, qt := range s.queue {
		if qt.decode.state != decodeDone {
			return true
		}
	}
	return false
}

const minBufferMs = 30_000

// NeedsDecode reports whether the decoder thread should wake up: the
// buffer is running low and there is more to decode.
func (s *State) NeedsDecode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, qt := range s.queue {
		total += qt.DurationMs()
	}
	if total >= minBufferMs {
		return false
	}
	for _, qt := range s.queue {
		if qt.decode.state != decodeDone {
			return true
		}
	}
	return false
}

// takeDecodeTask finds the first queued track that isn't fully decoded,
// marks it Running, and returns a task for it. Returns false if every
// track is Done.
func (s *State) takeDecodeTask() (decodeTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, qt := range s.queue {
		switch qt.decode.state {
		case decodeDone:
			continue
		case decodeRunning:
			panic("player: a decode is already in progress")
		}

		prev := qt.decode
		qt.decode = decodeSlot{state: decodeRunning}

		switch prev.state {
		case decodeNotStarted:
			return decodeTask{queueID: qt.QueueID, trackID: qt.TrackID}, true
		case decodePartial:
			return decodeTask{queueID: qt.QueueID, trackID: qt.TrackID, dec: prev.dec}, true
		}
	}
	return decodeTask{}, false
}

// returnDecodeTask stores the result of a completed decode task. If the
// queue changed shape while the task ran (a shuffle moved the target track
// out of the decoded prefix), the result is silently dropped.
func (s *State) returnDecodeTask(result decodeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, qt := range s.queue {
		switch qt.decode.state {
		case decodeDone:
			continue
		case decodeRunning:
			if qt.QueueID != result.queueID {
				// Not our task; the queue changed underneath us.
				return
			}
			qt.sampleRate = result.block.SampleRate
			qt.blocks = append(qt.blocks, result.block)
			if result.dec != nil {
				qt.decode = decodeSlot{state: decodePartial, dec: result.dec}
			} else {
				qt.decode = decodeSlot{state: decodeDone}
			}
			return
		default:
			// Reached a NotStarted entry before finding our Running one:
			// the decoded-prefix invariant means there is nothing further
			// down the queue that this result could belong to.
			return
		}
	}
}

// QueueLen reports how many tracks are queued, for snapshotting.
func (s *State) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ChangeVolume adjusts the user volume by delta and returns the new,
// clamped value.
func (s *State) ChangeVolume(delta prim.Millibel) prim.Millibel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(s.volume+delta, s.targetLoudness)
	return s.volume
}

// ChangeCutoff adjusts the high-pass filter cutoff by delta, clamped at 0.
func (s *State) ChangeCutoff(delta prim.Hertz) prim.Hertz {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := int64(s.highPassCutoff) + int64(delta)
	if next < 0 {
		next = 0
	}
	s.highPassCutoff = prim.Hertz(next)
	return s.highPassCutoff
}
