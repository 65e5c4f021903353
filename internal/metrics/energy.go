// Package metrics implements run-level diagnostics over simulation
// snapshots. Each metric accumulates across Observe calls and reports a
// single scalar.
package metrics

import (
	"math"

	"github.com/okanon/octograv/internal/sim"
)

// EnergyDrift tracks the worst relative deviation of total energy from its
// value at the first observation. The potential term is a direct O(N^2)
// sum, so attach this metric on validation runs, not production ones.
type EnergyDrift struct {
	g         float64
	softening float64
	initial   float64
	maxDrift  float64
	samples   int
}

func NewEnergyDrift(g, softening float64) *EnergyDrift {
	return &EnergyDrift{g: g, softening: softening}
}

func (e *EnergyDrift) Name() string { return "energy_drift" }

func (e *EnergyDrift) Observe(s sim.Snapshot) {
	energy := e.total(s)
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++

	if e.initial != 0 {
		drift := math.Abs(energy-e.initial) / math.Abs(e.initial)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.maxDrift = 0
	e.samples = 0
}

func (e *EnergyDrift) total(s sim.Snapshot) float64 {
	n := s.Pos.Texels()
	eps2 := e.softening * e.softening

	var ke, pe float64
	for i := 0; i < n; i++ {
		pi := s.Pos.At(i)
		mi := float64(pi[3])
		if mi <= 0 {
			continue
		}
		v := s.Vel.At(i)
		ke += 0.5 * mi * float64(v[0]*v[0]+v[1]*v[1]+v[2]*v[2])

		for j := i + 1; j < n; j++ {
			pj := s.Pos.At(j)
			mj := float64(pj[3])
			if mj <= 0 {
				continue
			}
			rx := float64(pi[0] - pj[0])
			ry := float64(pi[1] - pj[1])
			rz := float64(pi[2] - pj[2])
			pe -= e.g * mi * mj / math.Sqrt(rx*rx+ry*ry+rz*rz+eps2)
		}
	}
	return ke + pe
}
