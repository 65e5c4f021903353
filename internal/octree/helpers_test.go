package octree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

func threeLevels() []voxel.LevelSpec {
	return []voxel.LevelSpec{
		{GridSize: 16, SlicesPerRow: 4},
		{GridSize: 8, SlicesPerRow: 4},
		{GridSize: 4, SlicesPerRow: 2},
	}
}

func newSolver(t *testing.T, cfg Config) *Solver {
	t.Helper()
	s, err := New(device.NewCPU(), cfg, Resources{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Dispose)
	return s
}

func setParticle(s *Solver, i int, p geom.Vec3, mass float64) {
	s.Positions().Set(i, [4]float32{float32(p.X), float32(p.Y), float32(p.Z), float32(mass)})
}

func forceAt(s *Solver, i int) geom.Vec3 {
	f := s.Forces().At(i)
	return geom.Vec3{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}

// scatterParticles fills n slots with deterministic pseudo-random positions
// in [-span, span]^3 and distinct masses.
func scatterParticles(s *Solver, n int, span float64, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		p := geom.Vec3{
			X: (rng.Float64()*2 - 1) * span,
			Y: (rng.Float64()*2 - 1) * span,
			Z: (rng.Float64()*2 - 1) * span,
		}
		setParticle(s, i, p, 0.5+rng.Float64())
	}
}

// directReference is the brute-force softened monopole sum used as the
// accuracy yardstick for the traversal.
func directReference(s *Solver, n int, g, softening float64) []geom.Vec3 {
	out := make([]geom.Vec3, n)
	soft2 := softening * softening
	for i := 0; i < n; i++ {
		pi := s.Positions().At(i)
		xi := geom.Vec3{X: float64(pi[0]), Y: float64(pi[1]), Z: float64(pi[2])}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			pj := s.Positions().At(j)
			if pj[3] <= 0 {
				continue
			}
			xj := geom.Vec3{X: float64(pj[0]), Y: float64(pj[1]), Z: float64(pj[2])}
			r := xi.Sub(xj)
			d2 := r.Dot(r) + soft2
			d3 := d2 * math.Sqrt(d2)
			out[i] = out[i].Add(r.Scale(-g * float64(pj[3]) / d3))
		}
	}
	return out
}

func rmsError(got []geom.Vec3, want []geom.Vec3) float64 {
	sum := 0.0
	for i := range got {
		d := got[i].Sub(want[i])
		sum += d.Dot(d)
	}
	return math.Sqrt(sum / float64(len(got)))
}
