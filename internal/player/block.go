package player

// Block is a chunk of decoded stereo PCM queued for playback, with a
// cursor tracking how much of it has already been sent to the audio
// device. SampleRate is carried alongside the samples (rather than only on
// the decoder) because internal/playback's writeSamples needs to know the format
// of the *next* block before it has consumed the current one.
type Block struct {
	SampleRate    int
	BitsPerSample int
	Left, Right   []float64
	pos           int
}

// NewBlock wraps decoded PCM into a Block. data must be non-empty: an empty
// block can never be drained, so it would wedge the consume loop forever.
func NewBlock(sampleRate, bitsPerSample int, left, right []float64) *Block {
	if len(left) == 0 {
		panic("player: blocks must not be empty")
	}
	return &Block{SampleRate: sampleRate, BitsPerSample: bitsPerSample, Left: left, Right: right}
}

// Len returns the number of unconsumed samples.
func (b *Block) Len() int { return len(b.Left) - b.pos }

// Consume advances the cursor by n samples.
func (b *Block) Consume(n int) {
	b.pos += n
	if b.pos > len(b.Left) {
		panic("player: consumed past the end of a block")
	}
}

// DurationMs returns the duration of the unconsumed samples in
// milliseconds. Computed in int64 because a long queue of 44.1kHz stereo
// audio overflows a 32-bit sample count times 1000 well within realistic
// library sizes.
func (b *Block) DurationMs() int64 {
	if b.SampleRate == 0 {
		return 0
	}
	return int64(b.Len()) * 1000 / int64(b.SampleRate)
}

// SizeBytes estimates the block's memory footprint for the decode buffer's
// memory budget. Go stores samples as float64 pairs rather than packed
// 16/24-bit integers, so this counts 16 bytes/sample (two float64 channels)
// instead of the 4 or 6 bytes/sample the wire format uses — the budget is
// about bounding Go heap usage, not mirroring ALSA's byte layout.
func (b *Block) SizeBytes() int {
	return len(b.Left) * 16
}

// Unconsumed returns the left/right slices from the current cursor onward.
func (b *Block) Unconsumed() (left, right []float64) {
	return b.Left[b.pos:], b.Right[b.pos:]
}
