package loudness

import "math"

// BuildWaveform renders a Waveform of 2·N bytes, left channel first, each
// byte 255·√(powerᵢ/max_power), powerᵢ the mean BS.1770-weighted power over
// a 500ms window, windows strided 200ms apart, max_power the largest powerᵢ
// of either channel. left and right are the
// per-channel weighted samples at the track's sample rate (the same
// K-weighted signal the loudness meter consumes, so the waveform reflects
// perceived rather than raw amplitude).
func BuildWaveform(sampleRate int, left, right []float64) []byte {
	window := sampleRate * 500 / 1000
	stride := sampleRate * 200 / 1000
	if window <= 0 || stride <= 0 || len(left) == 0 {
		return nil
	}

	n := (len(left)-window)/stride + 1
	if n < 1 {
		n = 1
	}
	leftPowers := make([]float64, n)
	rightPowers := make([]float64, n)
	maxPower := 0.0
	for i := 0; i < n; i++ {
		start := i * stride
		end := start + window
		if end > len(left) {
			end = len(left)
		}
		leftPowers[i] = meanSquare(left[start:end])
		if right != nil {
			rightPowers[i] = meanSquare(right[start:min(end, len(right))])
		}
		if leftPowers[i] > maxPower {
			maxPower = leftPowers[i]
		}
		if rightPowers[i] > maxPower {
			maxPower = rightPowers[i]
		}
	}
	if maxPower == 0 {
		maxPower = 1
	}

	out := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		out[i] = amplitudeByte(leftPowers[i], maxPower)
		out[n+i] = amplitudeByte(rightPowers[i], maxPower)
	}
	return out
}

func amplitudeByte(power, maxPower float64) byte {
	v := 255 * math.Sqrt(power/maxPower)
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return byte(v)
}

func meanSquare(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum / float64(len(xs))
}
