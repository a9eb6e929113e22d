package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/astrid-voss/musium/internal/execguard"
	"github.com/astrid-voss/musium/internal/history"
	"github.com/astrid-voss/musium/internal/player"
)

// prePlaybackWait caps how long Run waits for the pre-playback program
// before starting playback anyway.
const prePlaybackWait = 10 * time.Second

// Config names the audio device and mixer control to open. It mirrors the
// relevant fields of config.Config.
type Config struct {
	AudioDevice          string
	AudioVolumeControl   string
	HasPrePlaybackProgram bool
}

// Run mirrors playback.rs's top-level main: whenever the queue is
// non-empty, run a full play_queue session, then park until
// pl.WakePlayback wakes it again. It coordinates two other threads around
// each session: execguard's StartPlayback/EndPlayback events bracket the
// session so the pre-playback and post-idle programs run at the right
// time, and a QueueEnded history event lets the history logger checkpoint
// the database during the idle period that follows.
//
// Run never returns except when ctx is cancelled between sessions; like
// the original, there is no graceful way to interrupt a session already
// in progress; this is a long-running daemon thread killed by process
// exit.
func Run(ctx context.Context, opener Opener, cfg Config, pl *player.Player, guardEvents chan<- execguard.QueueEvent, historyEvents chan<- history.Event, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	tryIncreaseThreadPriority(log)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !pl.IsQueueEmpty() {
			ready := make(chan struct{})
			if guardEvents != nil {
				guardEvents <- execguard.StartPlayback(ready)
			} else {
				close(ready)
			}

			if cfg.HasPrePlaybackProgram {
				select {
				case <-ready:
				case <-time.After(prePlaybackWait):
				case <-ctx.Done():
					return
				}
			}

			log.Info("playback: starting playback")
			if err := playQueue(ctx, opener, cfg.AudioDevice, cfg.AudioVolumeControl, pl, log); err != nil {
				log.Error("playback: session failed", "err", err)
			}
			log.Info("playback: playback done, idling")

			if historyEvents != nil {
				historyEvents <- history.Event{Kind: history.QueueEnded, At: time.Now()}
			}
			if guardEvents != nil {
				guardEvents <- execguard.EndPlayback(time.Now())
			}
		}

		pl.ParkPlayback()
	}
}
