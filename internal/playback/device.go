package playback

import (
	"time"

	"github.com/astrid-voss/musium/internal/prim"
)

// PCMState mirrors the subset of alsa::pcm::State that write_samples
// branches on.
type PCMState int

const (
	StateOpen PCMState = iota
	StateSetup
	StatePrepared
	StateRunning
	StateXRun
	StateDraining
	StateSuspended
)

func (s PCMState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSetup:
		return "setup"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateXRun:
		return "xrun"
	case StateDraining:
		return "draining"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Device is the audio output session the state machine in writesamples.go
// drives. A real implementation wraps an ALSA PCM handle plus its mixer
// volume control; Open returns one configured for a card but not yet
// formatted (State() reports StateOpen until SetFormat is called).
//
// Every method corresponds 1:1 to an alsa-rs call in playback.rs's
// write_samples/play_queue, so the state machine logic can be ported
// almost verbatim against this interface.
type Device interface {
	// State reports the PCM's current state.
	State() PCMState

	// AvailUpdate returns the number of frames free in the playback
	// buffer. A device-level error (e.g. from a failed hardware query)
	// is reported as (0, err); write_samples treats that the same as
	// the alsa-rs original: fall through with zero available frames
	// rather than aborting the session.
	AvailUpdate() (int, error)

	// WriteBlock writes up to nAvailable frames from left/right (which
	// may be longer) and returns how many frames were actually
	// consumed.
	WriteBlock(nAvailable int, left, right []float64) (int, error)

	// SetFormat configures sample rate, bit depth, channel count, and
	// buffer/period sizes, transitioning the device out of StateOpen.
	SetFormat(format Format) error

	// SetVolume applies a full-scale playback volume to the device's
	// mixer control.
	SetVolume(prim.Millibel) error

	Prepare() error
	Start() error
	Drain() error
	Resume() error

	// Poll blocks until the device has more room to write, or maxWait
	// elapses, whichever comes first.
	Poll(maxWait time.Duration) error

	Close() error
}

// Opener opens a Device for a named audio card. A fresh Device is needed
// every time the sample format changes, working around a Linux ALSA
// regression (present since 5.10.94) where reconfiguring hw_params on an
// already-configured PCM handle fails.
type Opener interface {
	Open(cardName, volumeControlName string) (Device, error)
}
