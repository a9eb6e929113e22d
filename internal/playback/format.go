// Package playback drives an audio output device from a player.Player's
// queue, grounded in original_source/src/playback.rs. The real ALSA ioctl
// surface (hw_params, mmap IO, mixer controls) stays behind the Device
// interface in device.go; this package owns only the state machine and the
// session loop that decide what to do with a device, not how to talk to
// one.
package playback

import (
	"fmt"

	"github.com/astrid-voss/musium/internal/prim"
)

// Format is the PCM format currently configured on the device.
type Format struct {
	SampleRate    prim.Hertz
	BitsPerSample int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit", f.SampleRate, f.BitsPerSample)
}
