// Package diag computes run statistics and writes per-step telemetry.
package diag

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/okanon/octograv/internal/device"
)

// Summary condenses a sample set into the usual descriptive statistics.
type Summary struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Max    float64
	Median float64
}

// Summarize computes a Summary over xs. An empty sample yields the zero
// Summary.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	s := Summary{
		Count:  len(xs),
		Mean:   stat.Mean(xs, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(xs) > 1 {
		s.Std = stat.StdDev(xs, nil)
	}
	return s
}

// Magnitudes returns the vector norms of tex's occupied slots, where
// occupancy is read from the mass channel of pos. Use it on velocity or
// acceleration textures so padding slots do not dilute the statistics.
func Magnitudes(pos, tex *device.Texture) []float64 {
	n := pos.Texels()
	if tex.Texels() < n {
		n = tex.Texels()
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if pos.At(i)[3] <= 0 {
			continue
		}
		v := tex.At(i)
		out = append(out, math.Sqrt(float64(v[0]*v[0]+v[1]*v[1]+v[2]*v[2])))
	}
	return out
}

// Masses returns the mass channel of every occupied slot.
func Masses(pos *device.Texture) []float64 {
	out := make([]float64, 0, pos.Texels())
	for i := 0; i < pos.Texels(); i++ {
		if m := pos.At(i)[3]; m > 0 {
			out = append(out, float64(m))
		}
	}
	return out
}
