// Package loudness implements the BS.1770 integrated-loudness meter and the
// two-level TrackTask/AlbumTask worker pool that drives it.
// The K-weighting filter coefficients are ITU-R BS.1770-4's standard
// analytic design equations (ungrounded in any example repo — none of the
// pack touches audio loudness — derived instead directly from the
// specification's own named standard).
package loudness

import "math"

// biquad is a direct-form-II transposed IIR biquad filter.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (f *biquad) step(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// preFilter returns the BS.1770 stage-1 high-shelf filter for sampleRate.
func preFilter(sampleRate float64) biquad {
	const (
		f0 = 1681.9744509555319
		g  = 3.99984385397
		q  = 0.7071752369554193
	)
	k := math.Tan(math.Pi * f0 / sampleRate)
	vh := math.Pow(10, g/20)
	vb := math.Pow(vh, 0.4996667741545416)

	a0 := 1.0 + k/q + k*k
	return biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2.0 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2.0 * (k*k - 1.0) / a0,
		a2: (1.0 - k/q + k*k) / a0,
	}
}

// rlbFilter returns the BS.1770 stage-2 revised low-frequency B-weighting
// (high-pass) filter for sampleRate.
func rlbFilter(sampleRate float64) biquad {
	const (
		f0 = 38.13547087602444
		q  = 0.5003270373238773
	)
	k := math.Tan(math.Pi * f0 / sampleRate)
	a0 := 1.0 + k/q + k*k
	return biquad{
		b0: 1.0 / a0,
		b1: -2.0 / a0,
		b2: 1.0 / a0,
		a1: 2.0 * (k*k - 1.0) / a0,
		a2: (1.0 - k/q + k*k) / a0,
	}
}

// channelMeter K-weights one channel's samples via cascaded pre-filter and
// RLB filter.
type channelMeter struct {
	pre biquad
	rlb biquad
}

func newChannelMeter(sampleRate float64) *channelMeter {
	return &channelMeter{pre: preFilter(sampleRate), rlb: rlbFilter(sampleRate)}
}

func (m *channelMeter) weight(x float64) float64 {
	return m.rlb.step(m.pre.step(x))
}

// StereoMeter accumulates K-weighted mean-square power over fixed-size
// blocks (100ms granularity) for a stereo stream.
type StereoMeter struct {
	left, right *channelMeter
	blockSize   int
	blockPowers []float64 // stereo-reduced mean power per completed block
	partial     float64   // in-progress block's sum-of-squares, carried across Feed calls
	partialN    int       // sample count backing partial
}

// NewStereoMeter returns a meter for sampleRate, with blocks sized to
// blockMillis milliseconds.
func NewStereoMeter(sampleRate int, blockMillis int) *StereoMeter {
	return &StereoMeter{
		left:      newChannelMeter(float64(sampleRate)),
		right:     newChannelMeter(float64(sampleRate)),
		blockSize: sampleRate * blockMillis / 1000,
	}
}

// Feed processes one burst of interleaved stereo samples (already converted
// to float64 in [-1,1]), appending to blockPowers every time a full block
// accumulates.
func (m *StereoMeter) Feed(interleaved []float64) {
	sumSq, n := m.partial, m.partialN
	flush := func() {
		if n == 0 {
			return
		}
		m.blockPowers = append(m.blockPowers, sumSq/float64(n))
		sumSq, n = 0, 0
	}
	for i := 0; i+1 < len(interleaved); i += 2 {
		l := m.left.weight(interleaved[i])
		r := m.right.weight(interleaved[i+1])
		sumSq += l*l + r*r
		n++
		if n >= m.blockSize {
			flush()
		}
	}
	m.partial = sumSq
	m.partialN = n
}

// Finish flushes any partial trailing block (shorter than blockSize, which
// is fine for the final block of a track) and returns the per-block
// stereo-reduced mean-square powers collected so far.
func (m *StereoMeter) Finish() []float64 {
	if m.partialN > 0 {
		m.blockPowers = append(m.blockPowers, m.partial/float64(m.partialN))
		m.partial, m.partialN = 0, 0
	}
	return m.blockPowers
}

// IntegratedLoudness computes the BS.1770 gated-mean loudness in LUFS from
// a sequence of stereo-reduced block mean-square powers: blocks below the
// -70 LUFS absolute gate are discarded, then blocks below
// (ungated loudness - 10 LU) are discarded, and the final loudness is
// computed from the surviving blocks' mean power.
func IntegratedLoudness(blockPowers []float64) float64 {
	absoluteGate := lufsToPower(-70)

	var ungated []float64
	for _, p := range blockPowers {
		if p >= absoluteGate {
			ungated = append(ungated, p)
		}
	}
	if len(ungated) == 0 {
		return math.Inf(-1)
	}
	ungatedLoudness := powerToLufs(mean(ungated))
	relativeGate := lufsToPower(ungatedLoudness - 10)

	var gated []float64
	for _, p := range ungated {
		if p >= relativeGate {
			gated = append(gated, p)
		}
	}
	if len(gated) == 0 {
		return ungatedLoudness
	}
	return powerToLufs(mean(gated))
}

func powerToLufs(power float64) float64 {
	if power <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(power)
}

func lufsToPower(lufs float64) float64 {
	return math.Pow(10, (lufs+0.691)/10)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
