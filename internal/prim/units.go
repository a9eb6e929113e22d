package prim

import (
	"fmt"
	"strconv"
	"strings"
)

// Lufs is an integrated-loudness measurement stored as centi-LUFS (i.e.
// Lufs(-910) means -9.10 LUFS). DefaultLufs is used whenever a track or
// album has no measured loudness yet.
type Lufs int16

// DefaultLufs is the fallback loudness applied before BS.1770 analysis runs.
const DefaultLufs Lufs = -900

// TargetLufs is the loudness normalization target for playback.
const TargetLufs Lufs = -2300

// Float returns the loudness in LUFS as a float64.
func (l Lufs) Float() float64 { return float64(l) / 100 }

// ParseLufs parses strings of the form "-9.10 LUFS". The value must be
// nonzero (0.00 LUFS is rejected — a real measurement is never exactly
// silent-to-the-centi-LUFS).
func ParseLufs(s string) (Lufs, error) {
	s = strings.TrimSpace(s)
	suffix := " LUFS"
	if !strings.HasSuffix(s, suffix) {
		return 0, fmt.Errorf("prim: loudness %q missing %q suffix", s, suffix)
	}
	numPart := strings.TrimSuffix(s, suffix)
	f, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("prim: loudness %q: %w", s, err)
	}
	centi := int64(f*100 + sign(f)*0.5)
	if centi == 0 {
		return 0, fmt.Errorf("prim: loudness %q must be nonzero", s)
	}
	if centi < -32768 || centi > 32767 {
		return 0, fmt.Errorf("prim: loudness %q out of i16 range", s)
	}
	return Lufs(centi), nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// String renders the loudness the way ParseLufs expects to read it back.
func (l Lufs) String() string {
	return fmt.Sprintf("%.2f LUFS", l.Float())
}

// Hertz is a sample rate or frequency in cycles per second.
type Hertz uint32

// Millibel is a gain expressed in hundredths of a decibel (dB * 100), the
// unit ALSA mixer controls use.
type Millibel int32

// FromDecibels converts a floating-point decibel value to Millibel.
func FromDecibels(db float64) Millibel {
	return Millibel(int32(db*100 + sign(db)*0.5))
}

// Decibels returns the millibel value as floating-point decibels.
func (m Millibel) Decibels() float64 { return float64(m) / 100 }
