package metrics

import (
	"math"

	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/sim"
)

// MomentumDrift tracks the largest change in total linear momentum
// magnitude since the first observation. Gravity is internal, so any drift
// is integration or force-pass error.
type MomentumDrift struct {
	initial geom.Vec3
	max     float64
	samples int
}

func NewMomentumDrift() *MomentumDrift { return &MomentumDrift{} }

func (m *MomentumDrift) Name() string { return "momentum_drift" }

func (m *MomentumDrift) Observe(s sim.Snapshot) {
	p := totalMomentum(s)
	if m.samples == 0 {
		m.initial = p
	}
	m.samples++
	m.max = math.Max(m.max, p.Sub(m.initial).Norm())
}

func (m *MomentumDrift) Value() float64 { return m.max }

func (m *MomentumDrift) Reset() {
	m.initial = geom.Vec3{}
	m.max = 0
	m.samples = 0
}

// CenterOfMassDrift tracks how far the barycenter wanders from its initial
// position, corrected for its initial velocity.
type CenterOfMassDrift struct {
	com0    geom.Vec3
	vel0    geom.Vec3
	t0      float64
	max     float64
	samples int
}

func NewCenterOfMassDrift() *CenterOfMassDrift { return &CenterOfMassDrift{} }

func (c *CenterOfMassDrift) Name() string { return "com_drift" }

func (c *CenterOfMassDrift) Observe(s sim.Snapshot) {
	com, vel, mass := barycenter(s)
	if mass <= 0 {
		return
	}
	if c.samples == 0 {
		c.com0 = com
		c.vel0 = vel
		c.t0 = s.Time
	}
	c.samples++

	expected := c.com0.Add(c.vel0.Scale(s.Time - c.t0))
	c.max = math.Max(c.max, com.Sub(expected).Norm())
}

func (c *CenterOfMassDrift) Value() float64 { return c.max }

func (c *CenterOfMassDrift) Reset() {
	*c = CenterOfMassDrift{}
}

func totalMomentum(s sim.Snapshot) geom.Vec3 {
	var p geom.Vec3
	for i := 0; i < s.Pos.Texels(); i++ {
		m := float64(s.Pos.At(i)[3])
		if m <= 0 {
			continue
		}
		v := s.Vel.At(i)
		p = p.Add(geom.Vec3{
			X: m * float64(v[0]), Y: m * float64(v[1]), Z: m * float64(v[2]),
		})
	}
	return p
}

func barycenter(s sim.Snapshot) (com, vel geom.Vec3, mass float64) {
	for i := 0; i < s.Pos.Texels(); i++ {
		p := s.Pos.At(i)
		m := float64(p[3])
		if m <= 0 {
			continue
		}
		mass += m
		com = com.Add(geom.Vec3{
			X: m * float64(p[0]), Y: m * float64(p[1]), Z: m * float64(p[2]),
		})
		v := s.Vel.At(i)
		vel = vel.Add(geom.Vec3{
			X: m * float64(v[0]), Y: m * float64(v[1]), Z: m * float64(v[2]),
		})
	}
	if mass > 0 {
		com = com.Scale(1 / mass)
		vel = vel.Scale(1 / mass)
	}
	return
}
