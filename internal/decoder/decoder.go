// Package decoder wraps the FLAC frame parser with the conversions the rest
// of the daemon needs: stereo channel decorrelation undone, integer samples
// normalized to float64 in [-1,1], and a burst-at-a-time Next that lets
// callers bound how much audio they pull into memory at once.
package decoder

import (
	"fmt"
	"os"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"golang.org/x/sys/unix"
)

// Block is one decoded FLAC frame's worth of stereo PCM, in [-1,1].
type Block struct {
	Left, Right []float64
}

// Decoder reads frames from a single FLAC stream and hands back
// decorrelated, normalized stereo PCM one frame at a time.
type Decoder struct {
	stream        *flac.Stream
	sampleRate    int
	bitsPerSample int
}

// Open parses path's metadata and returns a Decoder ready to pull frames.
func Open(path string) (*Decoder, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("decoder: %s: %w", path, err)
	}
	return &Decoder{
		stream:        stream,
		sampleRate:    int(stream.Info.SampleRate),
		bitsPerSample: int(stream.Info.BitsPerSample),
	}, nil
}

// OpenWithReadahead hints the kernel that path will be read sequentially
// and in full before opening it for decoding. This matters for the
// player's decode loop, which may open a file, decode only part of it
// because the in-memory buffer is full, then resume much later — by which
// time a spun-down disk would otherwise stall playback for several
// seconds. The hint is opportunistic: failures are ignored, matching the
// bursty decode loop's "best effort" treatment of readahead.
func OpenWithReadahead(path string) (*Decoder, error) {
	if f, err := os.Open(path); err == nil {
		if fi, statErr := f.Stat(); statErr == nil {
			fd := int(f.Fd())
			_ = unix.Fadvise(fd, 0, fi.Size(), unix.FADV_SEQUENTIAL)
			_ = unix.Fadvise(fd, 0, fi.Size(), unix.FADV_WILLNEED)
		}
		f.Close()
	}
	return Open(path)
}

// SampleRate returns the stream's sample rate in Hz.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// BitsPerSample returns the stream's bit depth.
func (d *Decoder) BitsPerSample() int { return d.bitsPerSample }

// Close releases the underlying file handle.
func (d *Decoder) Close() error { return d.stream.Close() }

// Next decodes and returns the next frame as stereo PCM, or io.EOF once
// every frame has been consumed.
func (d *Decoder) Next() (Block, error) {
	fr, err := d.stream.ParseNext()
	if err != nil {
		return Block{}, err
	}
	return decorrelate(fr, d.bitsPerSample), nil
}

// DecodeAll drains a fresh decoder for path and concatenates every frame's
// samples. It is meant for whole-track consumers like the loudness
// pipeline, not the player's bursty playout path.
func DecodeAll(path string) (sampleRate int, left, right []float64, err error) {
	d, err := Open(path)
	if err != nil {
		return 0, nil, nil, err
	}
	defer d.Close()

	for {
		blk, err := d.Next()
		if err != nil {
			break
		}
		left = append(left, blk.Left...)
		right = append(right, blk.Right...)
	}
	return d.SampleRate(), left, right, nil
}

// decorrelate undoes the frame's inter-channel coding (left/side,
// side/right, mid/side) in the integer domain, then normalizes the
// resulting left/right samples to [-1,1] using the stream's bit depth. Mono
// frames are duplicated to both channels so downstream stereo consumers
// don't special-case them, though the index builder rejects non-stereo
// files, so playback never queues one.
func decorrelate(fr *frame.Frame, bitsPerSample int) Block {
	raw := make([][]int32, len(fr.Subframes))
	for i, sf := range fr.Subframes {
		raw[i] = sf.Samples
	}

	var leftI, rightI []int32
	switch fr.Channels {
	case frame.ChannelsLeftSide:
		left, side := raw[0], raw[1]
		right := make([]int32, len(left))
		for i := range left {
			right[i] = left[i] - side[i]
		}
		leftI, rightI = left, right
	case frame.ChannelsRightSide:
		side, right := raw[0], raw[1]
		left := make([]int32, len(right))
		for i := range right {
			left[i] = right[i] + side[i]
		}
		leftI, rightI = left, right
	case frame.ChannelsMidSide:
		mid, side := raw[0], raw[1]
		left := make([]int32, len(mid))
		right := make([]int32, len(mid))
		for i := range mid {
			m := mid[i]<<1 | (side[i] & 1)
			left[i] = (m + side[i]) >> 1
			right[i] = (m - side[i]) >> 1
		}
		leftI, rightI = left, right
	case frame.ChannelsMono:
		leftI, rightI = raw[0], raw[0]
	default:
		if len(raw) >= 2 {
			leftI, rightI = raw[0], raw[1]
		} else {
			leftI, rightI = raw[0], raw[0]
		}
	}

	scale := 1.0 / float64(int32(1)<<uint(bitsPerSample-1))
	left := make([]float64, len(leftI))
	right := make([]float64, len(rightI))
	for i, v := range leftI {
		left[i] = float64(v) * scale
	}
	for i, v := range rightI {
		right[i] = float64(v) * scale
	}
	return Block{Left: left, Right: right}
}
