package diag

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PowerSpectrum returns the magnitude spectrum of a uniformly sampled
// series, one bin per frequency up to Nyquist. The input is zero-padded to
// the next power of two.
func PowerSpectrum(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	n := 1
	for n < len(xs) {
		n *= 2
	}
	padded := make([]float64, n)
	copy(padded, xs)

	bins := fft.FFTReal(padded)
	ps := make([]float64, n/2)
	for i := range ps {
		ps[i] = cmplx.Abs(bins[i])
	}
	return ps
}

// DominantFrequency picks the strongest non-DC bin of a series sampled at
// interval dt and converts it to a frequency. Returns 0 when the series is
// too short or flat.
func DominantFrequency(xs []float64, dt float64) float64 {
	ps := PowerSpectrum(xs)
	if len(ps) < 2 || dt <= 0 {
		return 0
	}
	n := 1
	for n < len(xs) {
		n *= 2
	}

	best, bestIdx := 0.0, 0
	for i := 1; i < len(ps); i++ {
		if ps[i] > best {
			best = ps[i]
			bestIdx = i
		}
	}
	// A flat series leaves only float noise outside the DC bin.
	if bestIdx == 0 || best < 1e-9*float64(n) {
		return 0
	}
	return float64(bestIdx) / (float64(n) * dt)
}
