package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/okanon/octograv/internal/device"
)

// Initialize fills the position and velocity textures with one of the
// built-in distributions. Slots beyond n are zeroed and read as padding
// (mass 0) by every downstream pass.
func Initialize(name string, pos, vel *device.Texture, n int, seed int64, g float64) error {
	if pos == nil || vel == nil {
		return fmt.Errorf("sim: initialize needs position and velocity textures")
	}
	if n < 1 || n > pos.Texels() || n > vel.Texels() {
		return fmt.Errorf("sim: %d particles do not fit the textures", n)
	}
	pos.Clear()
	vel.Clear()

	rng := rand.New(rand.NewSource(seed))
	switch name {
	case "cube", "uniform":
		uniformCube(rng, pos, vel, n, 1.0, 1.0, g)
	case "plummer":
		plummer(rng, pos, vel, n, 0.5, 1.0, g)
	case "disk":
		disk(rng, pos, vel, n, 1.5, 1.0, g)
	case "pair", "binary":
		binaryPair(pos, vel, 1.0, 0.5, 0.5, g)
	default:
		return fmt.Errorf("sim: unknown distribution %q", name)
	}
	return nil
}

// uniformCube scatters mass in a cube of half-width size with small random
// velocities. It collapses under gravity, which makes it a good stress
// input for the tree rebuild.
func uniformCube(rng *rand.Rand, pos, vel *device.Texture, n int, size, totalMass, g float64) {
	m := float32(totalMass / float64(n))
	vScale := float32(0.1 * math.Sqrt(g*totalMass/size))
	for i := 0; i < n; i++ {
		pos.Set(i, [4]float32{
			float32(size * (2*rng.Float64() - 1)),
			float32(size * (2*rng.Float64() - 1)),
			float32(size * (2*rng.Float64() - 1)),
			m,
		})
		vel.Set(i, [4]float32{
			vScale * float32(2*rng.Float64()-1),
			vScale * float32(2*rng.Float64()-1),
			vScale * float32(2*rng.Float64()-1),
			0,
		})
	}
}

// plummer samples the isotropic Plummer sphere with Aarseth's rejection
// scheme. Radii past 10 scale lengths are resampled so a single outlier
// cannot blow up the bounding box.
func plummer(rng *rand.Rand, pos, vel *device.Texture, n int, scale, totalMass, g float64) {
	m := float32(totalMass / float64(n))
	for i := 0; i < n; i++ {
		var r float64
		for {
			u := rng.Float64()
			if u == 0 {
				continue
			}
			r = scale / math.Sqrt(math.Pow(u, -2.0/3.0)-1)
			if r < 10*scale {
				break
			}
		}
		px, py, pz := isotropic(rng, r)

		// Speed fraction q of escape velocity, density q^2 (1-q^2)^3.5.
		var q float64
		for {
			q = rng.Float64()
			y := rng.Float64() * 0.1
			if y < q*q*math.Pow(1-q*q, 3.5) {
				break
			}
		}
		vesc := math.Sqrt(2*g*totalMass) / math.Pow(r*r+scale*scale, 0.25)
		vx, vy, vz := isotropic(rng, q*vesc)

		pos.Set(i, [4]float32{float32(px), float32(py), float32(pz), m})
		vel.Set(i, [4]float32{float32(vx), float32(vy), float32(vz), 0})
	}
}

// disk builds a central mass with a thin Keplerian disk around it. Slot 0
// is the central body.
func disk(rng *rand.Rand, pos, vel *device.Texture, n int, radius, centralMass, g float64) {
	pos.Set(0, [4]float32{0, 0, 0, float32(centralMass)})
	vel.Set(0, [4]float32{})
	if n < 2 {
		return
	}
	m := float32(0.05 * centralMass / float64(n-1))
	inner := 0.2 * radius
	for i := 1; i < n; i++ {
		r := inner + (radius-inner)*math.Sqrt(rng.Float64())
		phi := 2 * math.Pi * rng.Float64()
		z := 0.02 * radius * (2*rng.Float64() - 1)

		vc := math.Sqrt(g * centralMass / r)
		pos.Set(i, [4]float32{
			float32(r * math.Cos(phi)),
			float32(r * math.Sin(phi)),
			float32(z),
			m,
		})
		vel.Set(i, [4]float32{
			float32(-vc * math.Sin(phi)),
			float32(vc * math.Cos(phi)),
			0,
			0,
		})
	}
}

// binaryPair puts two bodies on a circular orbit about their barycenter.
func binaryPair(pos, vel *device.Texture, sep, m1, m2, g float64) {
	total := m1 + m2
	vRel := math.Sqrt(g * total / sep)

	r1 := sep * m2 / total
	r2 := sep * m1 / total
	pos.Set(0, [4]float32{float32(-r1), 0, 0, float32(m1)})
	pos.Set(1, [4]float32{float32(r2), 0, 0, float32(m2)})
	vel.Set(0, [4]float32{0, float32(-vRel * m2 / total), 0, 0})
	vel.Set(1, [4]float32{0, float32(vRel * m1 / total), 0, 0})
}

func isotropic(rng *rand.Rand, radius float64) (x, y, z float64) {
	cosT := 2*rng.Float64() - 1
	sinT := math.Sqrt(1 - cosT*cosT)
	phi := 2 * math.Pi * rng.Float64()
	return radius * sinT * math.Cos(phi),
		radius * sinT * math.Sin(phi),
		radius * cosT
}
