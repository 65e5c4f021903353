package diag

import (
	"math"
	"testing"
)

func TestDominantFrequencySine(t *testing.T) {
	const (
		dt   = 0.01
		freq = 5.0
		n    = 1024
	)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = math.Sin(2 * math.Pi * freq * float64(i) * dt)
	}

	got := DominantFrequency(xs, dt)
	// Bin resolution is 1/(n*dt) Hz.
	if math.Abs(got-freq) > 1.0/(n*dt)+1e-9 {
		t.Errorf("dominant frequency %v, want %v", got, freq)
	}
}

func TestDominantFrequencyFlatSeries(t *testing.T) {
	xs := make([]float64, 64)
	for i := range xs {
		xs[i] = 3.5
	}
	if got := DominantFrequency(xs, 0.1); got != 0 {
		t.Errorf("flat series reported frequency %v", got)
	}
}

func TestPowerSpectrumShort(t *testing.T) {
	if PowerSpectrum([]float64{1}) != nil {
		t.Error("single sample should have no spectrum")
	}
}
