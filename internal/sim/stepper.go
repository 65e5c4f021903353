// Package sim advances a particle system in time. The Stepper owns the
// integration loop; gravity comes from a forces.Provider so the same loop
// drives the octree, the direct sum and the mesh solver.
package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/forces"
	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/order"
)

// Stepper runs kick-drift-kick leapfrog over the particle textures. Pos
// holds (x, y, z, mass), vel and acc hold (x, y, z, unused) per slot.
type Stepper struct {
	provider  forces.Provider
	pos       *device.Texture
	vel       *device.Texture
	acc       *device.Texture
	metrics   []Metric
	observers []Observer
	scratch   [][4]float32
	primed    bool
}

func NewStepper(p forces.Provider, pos, vel, acc *device.Texture) (*Stepper, error) {
	if p == nil {
		return nil, fmt.Errorf("sim: stepper needs a force provider")
	}
	if pos == nil || vel == nil || acc == nil {
		return nil, fmt.Errorf("sim: stepper needs position, velocity and acceleration textures")
	}
	n := pos.Texels()
	if vel.Texels() < n || acc.Texels() < n {
		return nil, fmt.Errorf("sim: velocity and acceleration textures must hold %d slots", n)
	}
	return &Stepper{provider: p, pos: pos, vel: vel, acc: acc}, nil
}

func (st *Stepper) AddMetric(m Metric)     { st.metrics = append(st.metrics, m) }
func (st *Stepper) AddObserver(o Observer) { st.observers = append(st.observers, o) }

func (st *Stepper) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := int(cfg.Duration / cfg.Dt)
	result := &Result{Metrics: make(map[string]float64)}

	for _, m := range st.metrics {
		m.Reset()
	}

	if !st.primed {
		if err := st.provider.Accelerations(st.pos, st.acc); err != nil {
			return nil, fmt.Errorf("sim: initial force pass: %w", err)
		}
		st.primed = true
	}

	t := 0.0
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		snap := Snapshot{
			Pos: st.pos, Vel: st.vel, Acc: st.acc,
			Bounds: particleBounds(st.pos), Time: t, Step: i,
		}
		for _, m := range st.metrics {
			m.Observe(snap)
		}
		for _, obs := range st.observers {
			obs.OnStep(snap)
		}

		if err := st.step(cfg.Dt); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}

		t += cfg.Dt
		result.StepsTaken++

		if cfg.SortEvery > 0 && (i+1)%cfg.SortEvery == 0 {
			st.resort()
		}
		if cfg.ValidateState && !st.finite() {
			result.Errors = append(result.Errors,
				SimError{Time: t, Step: i, Message: "non-finite state"})
			break
		}
	}

	for _, m := range st.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

// Advance runs a single kick-drift-kick cycle outside Run, for callers that
// drive the loop themselves (the live view).
func (st *Stepper) Advance(dt float64) error {
	if dt <= 0 {
		return fmt.Errorf("sim: dt must be positive, got %f", dt)
	}
	if !st.primed {
		if err := st.provider.Accelerations(st.pos, st.acc); err != nil {
			return fmt.Errorf("sim: initial force pass: %w", err)
		}
		st.primed = true
	}
	return st.step(dt)
}

// step advances one kick-drift-kick cycle. The half kicks straddle the
// force pass, so acc always matches pos on loop entry.
func (st *Stepper) step(dt float64) error {
	n := st.pos.Texels()
	half := float32(dt) * 0.5

	for i := 0; i < n; i++ {
		p := st.pos.At(i)
		if p[3] <= 0 {
			continue
		}
		v := st.vel.At(i)
		a := st.acc.At(i)
		v[0] += a[0] * half
		v[1] += a[1] * half
		v[2] += a[2] * half
		st.vel.Set(i, v)
		p[0] += v[0] * float32(dt)
		p[1] += v[1] * float32(dt)
		p[2] += v[2] * float32(dt)
		st.pos.Set(i, p)
	}

	if err := st.provider.Accelerations(st.pos, st.acc); err != nil {
		return fmt.Errorf("sim: force pass: %w", err)
	}

	for i := 0; i < n; i++ {
		if st.pos.At(i)[3] <= 0 {
			continue
		}
		v := st.vel.At(i)
		a := st.acc.At(i)
		v[0] += a[0] * half
		v[1] += a[1] * half
		v[2] += a[2] * half
		st.vel.Set(i, v)
	}
	return nil
}

// resort reorders particles along the Hilbert curve. Velocity and
// acceleration follow the same permutation: the next step's opening half
// kick reads acc, so it must stay slot-aligned with pos.
func (st *Stepper) resort() {
	b := particleBounds(st.pos)
	if !b.Valid() {
		return
	}
	perm := order.Permutation(order.Keys(st.pos, b, order.DefaultBits))
	st.permute(st.pos, perm)
	st.permute(st.vel, perm)
	st.permute(st.acc, perm)
}

func (st *Stepper) permute(tex *device.Texture, perm []int) {
	if len(st.scratch) < len(perm) {
		st.scratch = make([][4]float32, len(perm))
	}
	for i, j := range perm {
		st.scratch[i] = tex.At(j)
	}
	for i := range perm {
		tex.Set(i, st.scratch[i])
	}
}

func (st *Stepper) finite() bool {
	for i := 0; i < st.pos.Texels(); i++ {
		p := st.pos.At(i)
		if p[3] <= 0 {
			continue
		}
		v := st.vel.At(i)
		for k := 0; k < 3; k++ {
			if math.IsNaN(float64(p[k])) || math.IsInf(float64(p[k]), 0) ||
				math.IsNaN(float64(v[k])) || math.IsInf(float64(v[k]), 0) {
				return false
			}
		}
	}
	return true
}

func validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("sim: dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("sim: duration must be positive, got %f", cfg.Duration)
	}
	return nil
}

func particleBounds(pos *device.Texture) geom.Bounds {
	var b geom.Bounds
	for i := 0; i < pos.Texels(); i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		b = b.AddPoint(geom.Vec3{X: float64(s[0]), Y: float64(s[1]), Z: float64(s[2])})
	}
	return b
}
