package player

import (
	"log/slog"
	"time"

	"github.com/astrid-voss/musium/internal/history"
	"github.com/astrid-voss/musium/internal/indexbuilder"
	"github.com/astrid-voss/musium/internal/mvar"
	"github.com/astrid-voss/musium/internal/prim"
	"github.com/astrid-voss/musium/internal/tagstore"
)

// stopAfterBytes bounds how much decoded audio the decode thread keeps in
// memory at once: the same byte budget as player.rs's decode_burst (the
// comment there about power consumption and downclocking between bursts
// applies just as much here). At the 16 bytes per sample that
// Block.SizeBytes counts, it holds about 2.5 minutes of 44.1kHz stereo.
const stopAfterBytes = 105_000_000

// decodeBytesPerMs is decode_burst's rough estimate of decode throughput,
// used to size the budget when the buffer is running low and latency to
// first sound matters more than batching efficiency.
const decodeBytesPerMs = 44_100 * 4 * 5 / 1000

const maxDecodeBurst = 10_000_000

// Player owns the play queue and the background decode loop that keeps it
// filled with decoded PCM. It does not talk to an audio device directly;
// internal/playback pulls blocks from it via PeekBlock/Consume.
type Player struct {
	State          *State
	index          *mvar.MVar[indexbuilder.MemoryIndex]
	decodeParker   *parker
	playbackParker *parker
	log            *slog.Logger
}

// New constructs a Player and starts its decode goroutine. index is
// re-read on every decode burst so a library rescan takes effect without
// restarting playback.
func New(index *mvar.MVar[indexbuilder.MemoryIndex], events chan<- history.Event, volume prim.Millibel, highPassCutoff prim.Hertz, seed [32]byte, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	p := &Player{
		State:          NewState(volume, highPassCutoff, events, seed),
		index:          index,
		decodeParker:   newParker(),
		playbackParker: newParker(),
		log:            log,
	}
	go p.decodeMain()
	return p
}

// decodeMain mirrors player.rs's decode_main: park when there's nothing to
// do, otherwise run a decode_burst and park again.
func (p *Player) decodeMain() {
	for {
		if p.State.NeedsDecode() {
			p.decodeBurst()
		}
		p.decodeParker.Park()
	}
}

// decodeBurst mirrors player.rs's decode_burst: pull tasks and run them
// until the in-memory buffer is full or nothing is left to decode.
func (p *Player) decodeBurst() {
	index := p.index.Get()

	for {
		bytesUsed := p.State.PendingSizeBytes()
		if bytesUsed >= stopAfterBytes {
			return
		}

		task, ok := p.State.takeDecodeTask()
		if !ok {
			return
		}

		pendingMs := p.State.PendingDurationMs()
		budget := decodeBytesPerMs * int(pendingMs)
		if left := stopAfterBytes - bytesUsed; budget > left {
			budget = left
		}
		if budget > maxDecodeBurst {
			budget = maxDecodeBurst
		}

		result, err := task.run(index, budget)
		if err != nil {
			p.log.Error("player: decode task failed", "err", err)
			return
		}
		p.State.returnDecodeTask(result)
	}
}

// WakeDecoder unparks the decode goroutine; callers use this after
// shuffling, since a track that is now next in line may need decoding
// right away even if decoding had otherwise caught up.
func (p *Player) WakeDecoder() { p.decodeParker.Unpark() }

// WakePlayback unparks the playback loop; Enqueue calls this when the
// queue was empty, since the playback loop parks itself once it drains an
// empty queue and otherwise wouldn't notice new work.
func (p *Player) WakePlayback() { p.playbackParker.Unpark() }

// ParkPlayback blocks until WakePlayback is called, or returns immediately
// if a wakeup already arrived. internal/playback's top-level loop calls
// this between playback sessions.
func (p *Player) ParkPlayback() { p.playbackParker.Park() }

// TrackSnapshot mirrors player.rs's TrackSnapshot.
type TrackSnapshot struct {
	QueueID     prim.QueueID
	TrackID     prim.TrackID
	PositionMs  int64
	BufferedMs  int64
	IsBuffering bool
}

// QueueSnapshot mirrors player.rs's QueueSnapshot: index 0 is playing.
type QueueSnapshot struct {
	Tracks []TrackSnapshot
}

// Params are the runtime playback controls exposed over the HTTP API.
type Params struct {
	Volume         prim.Millibel
	HighPassCutoff prim.Hertz
}

// Enqueue looks up track and album metadata, appends the track to the
// queue, wakes the decode thread, and wakes the playback loop if the queue
// was empty.
func (p *Player) Enqueue(trackID prim.TrackID) (prim.QueueID, bool) {
	index := p.index.Get()
	track, ok := index.GetTrack(trackID)
	if !ok {
		return 0, false
	}
	album, ok := index.GetAlbum(track.AlbumID)
	if !ok {
		return 0, false
	}
	trackLoudness := prim.DefaultLufs
	if track.Loudness != nil {
		trackLoudness = *track.Loudness
	}
	albumLoudness := prim.DefaultLufs
	if album.Loudness != nil {
		albumLoudness = *album.Loudness
	}

	wasEmpty := p.State.IsQueueEmpty()
	id := p.State.Enqueue(trackID, trackLoudness, albumLoudness)
	p.WakeDecoder()
	if wasEmpty {
		p.WakePlayback()
	}
	return id, true
}

// Dequeue removes a queued track.
func (p *Player) Dequeue(id prim.QueueID) { p.State.Dequeue(id) }

// GetQueue snapshots the current queue for the HTTP API.
func (p *Player) GetQueue() QueueSnapshot {
	p.State.mu.Lock()
	defer p.State.mu.Unlock()

	tracks := make([]TrackSnapshot, len(p.State.queue))
	for i, qt := range p.State.queue {
		tracks[i] = TrackSnapshot{
			QueueID:     qt.QueueID,
			TrackID:     qt.TrackID,
			PositionMs:  qt.PositionMs(),
			BufferedMs:  qt.DurationMs(),
			IsBuffering: qt.decode.state == decodeRunning,
		}
	}
	return QueueSnapshot{Tracks: tracks}
}

// Shuffle reorders the queue (excluding the currently playing track) and
// wakes the decode thread, since a previously-caught-up decode may now
// have fresh work queued right after the current track.
func (p *Player) Shuffle() {
	p.State.Shuffle(p.index.Get())
	p.WakeDecoder()
}

// ClearQueue drops everything but the currently playing track.
func (p *Player) ClearQueue() { p.State.ClearQueue() }

func (p *Player) getParamsLocked() Params {
	return Params{Volume: p.State.volume, HighPassCutoff: p.State.highPassCutoff}
}

// GetParams returns the current volume and filter cutoff.
func (p *Player) GetParams() Params {
	p.State.mu.Lock()
	defer p.State.mu.Unlock()
	return p.getParamsLocked()
}

// ChangeVolume adjusts volume by a delta and returns the new params.
func (p *Player) ChangeVolume(add prim.Millibel) Params {
	p.State.mu.Lock()
	defer p.State.mu.Unlock()
	p.State.volume = clampVolume(p.State.volume+add, p.State.targetLoudness)
	return p.getParamsLocked()
}

// ChangeCutoff adjusts the high-pass filter cutoff by a delta and returns
// the new params.
func (p *Player) ChangeCutoff(add prim.Hertz) Params {
	p.State.mu.Lock()
	defer p.State.mu.Unlock()
	next := int64(p.State.highPassCutoff) + int64(add)
	if next < 0 {
		next = 0
	}
	p.State.highPassCutoff = prim.Hertz(next)
	return p.getParamsLocked()
}

// SetTrackRating sends a rating to the history logger for persisting.
func (p *Player) SetTrackRating(trackID prim.TrackID, value int8, at time.Time) {
	if p.State.events == nil {
		return
	}
	p.State.events <- history.Event{
		Kind: history.Rated,
		At:   at,
		Rating: tagstore.Rating{
			TrackID:   uint64(trackID),
			CreatedAt: at,
			Value:     value,
			Source:    "local",
		},
	}
}

// Consume advances playback by n samples of the front block; the playback
// loop calls this once per hardware period it writes.
func (p *Player) Consume(n int, now time.Time) { p.State.Consume(n, now) }

// PeekBlock returns the next block to play, or nil if nothing is decoded yet.
func (p *Player) PeekBlock() *Block { return p.State.PeekBlock() }

// TargetVolumeFullScale reports the absolute playback volume after
// loudness normalization, or false if nothing is queued.
func (p *Player) TargetVolumeFullScale() (prim.Millibel, bool) { return p.State.TargetVolumeFullScale() }

// TargetHighPassCutoff returns the configured filter cutoff.
func (p *Player) TargetHighPassCutoff() prim.Hertz { return p.State.TargetHighPassCutoff() }

// IsQueueEmpty reports whether there is anything queued.
func (p *Player) IsQueueEmpty() bool { return p.State.IsQueueEmpty() }
