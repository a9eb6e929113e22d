package decoder

import (
	"testing"

	"github.com/mewkiz/flac/frame"
)

func subframe(samples ...int32) *frame.Subframe {
	return &frame.Subframe{Samples: samples}
}

func TestDecorrelateMidSideReconstructsLeftRight(t *testing.T) {
	// left=100, right=80 encodes to mid=(100+80)>>1=90, side=100-80=20.
	fr := &frame.Frame{
		Header:    frame.Header{Channels: frame.ChannelsMidSide},
		Subframes: []*frame.Subframe{subframe(90), subframe(20)},
	}
	blk := decorrelate(fr, 16)
	wantLeft := float64(100) / float64(int32(1)<<15)
	wantRight := float64(80) / float64(int32(1)<<15)
	if blk.Left[0] != wantLeft || blk.Right[0] != wantRight {
		t.Fatalf("decorrelate mid/side = (%v,%v), want (%v,%v)", blk.Left[0], blk.Right[0], wantLeft, wantRight)
	}
}

func TestDecorrelateLeftSideDerivesRight(t *testing.T) {
	fr := &frame.Frame{
		Header:    frame.Header{Channels: frame.ChannelsLeftSide},
		Subframes: []*frame.Subframe{subframe(100), subframe(20)},
	}
	blk := decorrelate(fr, 16)
	wantRight := float64(80) / float64(int32(1)<<15)
	if blk.Right[0] != wantRight {
		t.Fatalf("decorrelate left/side right = %v, want %v", blk.Right[0], wantRight)
	}
}

func TestDecorrelateMonoDuplicatesChannel(t *testing.T) {
	fr := &frame.Frame{
		Header:    frame.Header{Channels: frame.ChannelsMono},
		Subframes: []*frame.Subframe{subframe(1000)},
	}
	blk := decorrelate(fr, 16)
	if len(blk.Left) != 1 || len(blk.Right) != 1 || blk.Left[0] != blk.Right[0] {
		t.Fatalf("mono decorrelate = %+v, want equal single-sample channels", blk)
	}
}

func TestDecorrelateLRPassesThrough(t *testing.T) {
	fr := &frame.Frame{
		Header:    frame.Header{Channels: frame.ChannelsLR},
		Subframes: []*frame.Subframe{subframe(500, -500), subframe(250, -250)},
	}
	blk := decorrelate(fr, 16)
	if len(blk.Left) != 2 || len(blk.Right) != 2 {
		t.Fatalf("LR decorrelate produced wrong lengths: %+v", blk)
	}
}
