// Package execguard runs the configured pre-playback and post-idle
// programs on a single goroutine, grounded in
// original_source/src/exec_pre_post.rs. Running both on one goroutine off
// the playback path guarantees they never overlap, lets the playback loop
// choose whether to wait for pre-playback to finish, and lets a
// resume-within-idle-timeout cancel a pending post-idle run.
package execguard

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// Kind discriminates the two QueueEvent variants.
type Kind uint8

const (
	StartPlaybackEvent Kind = iota
	EndPlaybackEvent
)

// QueueEvent is sent by the playback loop to mark the start or end of a
// playback session. Ready is only meaningful on StartPlaybackEvent: the
// guard closes it once the pre-playback program (if any) has finished, so
// the playback loop can wait on it without blocking the exec goroutine.
type QueueEvent struct {
	Kind  Kind
	Ready chan<- struct{}
	At    time.Time
}

func StartPlayback(ready chan<- struct{}) QueueEvent {
	return QueueEvent{Kind: StartPlaybackEvent, Ready: ready}
}

func EndPlayback(at time.Time) QueueEvent {
	return QueueEvent{Kind: EndPlaybackEvent, At: at}
}

// Config is the subset of daemon configuration the guard needs.
type Config struct {
	PrePlaybackPath string
	PostIdlePath    string
	IdleTimeout     time.Duration
}

// Guard owns the exec goroutine and the channel feeding it.
type Guard struct {
	cfg    Config
	events chan QueueEvent
	log    *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{cfg: cfg, events: make(chan QueueEvent, 4), log: log}
}

// Events returns the channel the playback loop sends QueueEvents on.
func (g *Guard) Events() chan<- QueueEvent { return g.events }

func (g *Guard) runProgram(ctx context.Context, path, stage string) {
	if path == "" {
		return
	}
	g.log.Info("execguard: running program", "stage", stage, "path", path)
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(runCtx, path)
	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			g.log.Warn("execguard: program did not exit in time, killed it", "stage", stage, "path", path)
		} else {
			g.log.Warn("execguard: program failed", "stage", stage, "path", path, "err", err)
		}
		return
	}
	g.log.Info("execguard: program exited", "stage", stage)
}

// Run drains events until ctx is cancelled. It expects StartPlaybackEvent
// and EndPlaybackEvent to alternate, starting with StartPlaybackEvent;
// seeing either out of turn is a programming error in the caller and
// panics, matching the Rust original's expect-on-wrong-variant behavior.
func (g *Guard) Run(ctx context.Context) {
	startEvent, ok := g.recv(ctx)
	if !ok {
		return
	}
	for {
		if startEvent.Kind != StartPlaybackEvent {
			panic("execguard: received EndPlayback before StartPlayback")
		}
		ready := startEvent.Ready

		g.runProgram(ctx, g.cfg.PrePlaybackPath, "pre-playback")

		if ready != nil {
			close(ready)
		}

		endEvent, ok := g.recv(ctx)
		if !ok {
			return
		}
		if endEvent.Kind != EndPlaybackEvent {
			panic("execguard: received StartPlayback before EndPlayback")
		}

		deadline := endEvent.At.Add(g.cfg.IdleTimeout)
		timer := time.NewTimer(time.Until(deadline))
		select {
		case next, ok := <-g.events:
			timer.Stop()
			if !ok {
				return
			}
			startEvent = next
			continue
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		g.runProgram(ctx, g.cfg.PostIdlePath, "post-idle")

		startEvent, ok = g.recv(ctx)
		if !ok {
			return
		}
	}
}

func (g *Guard) recv(ctx context.Context) (QueueEvent, bool) {
	select {
	case ev, ok := <-g.events:
		return ev, ok
	case <-ctx.Done():
		return QueueEvent{}, false
	}
}
