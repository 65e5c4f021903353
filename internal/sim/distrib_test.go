package sim

import (
	"math"
	"testing"
)

func TestInitializeUnknownName(t *testing.T) {
	pos, vel, _ := newBuffers(t, 8)
	if err := Initialize("klingon", pos, vel, 8, 1, 1); err == nil {
		t.Fatal("unknown distribution accepted")
	}
}

func TestInitializeRejectsOversizedCount(t *testing.T) {
	pos, vel, _ := newBuffers(t, 4)
	if err := Initialize("cube", pos, vel, 9, 1, 1); err == nil {
		t.Fatal("particle count beyond texture capacity accepted")
	}
}

func TestInitializeZeroesPadding(t *testing.T) {
	pos, vel, _ := newBuffers(t, 8)
	pos.Set(7, [4]float32{5, 5, 5, 5})
	if err := Initialize("cube", pos, vel, 4, 1, 1); err != nil {
		t.Fatal(err)
	}
	for i := 4; i < 8; i++ {
		if pos.At(i) != ([4]float32{}) {
			t.Errorf("slot %d not cleared: %v", i, pos.At(i))
		}
	}
}

func TestInitializeDeterministic(t *testing.T) {
	posA, velA, _ := newBuffers(t, 16)
	posB, velB, _ := newBuffers(t, 16)
	if err := Initialize("plummer", posA, velA, 16, 42, 1); err != nil {
		t.Fatal(err)
	}
	if err := Initialize("plummer", posB, velB, 16, 42, 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i++ {
		if posA.At(i) != posB.At(i) || velA.At(i) != velB.At(i) {
			t.Fatalf("slot %d differs between identical seeds", i)
		}
	}
}

func TestPlummerBoundedAndBound(t *testing.T) {
	pos, vel, _ := newBuffers(t, 256)
	const n, g, total, scale = 256, 1.0, 1.0, 0.5
	if err := Initialize("plummer", pos, vel, n, 3, g); err != nil {
		t.Fatal(err)
	}

	var mass float64
	for i := 0; i < n; i++ {
		p := pos.At(i)
		mass += float64(p[3])
		r := math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2]))
		if r >= 10*scale {
			t.Errorf("particle %d at radius %v, beyond the resample cutoff", i, r)
		}
		// Speed never exceeds local escape velocity.
		v := vel.At(i)
		speed := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2]))
		vesc := math.Sqrt(2*g*total) / math.Pow(r*r+scale*scale, 0.25)
		if speed > vesc {
			t.Errorf("particle %d unbound: v=%v vesc=%v", i, speed, vesc)
		}
	}
	if math.Abs(mass-total) > 1e-4 {
		t.Errorf("total mass %v, want %v", mass, total)
	}
}

func TestDiskOrbitsAreCircular(t *testing.T) {
	pos, vel, _ := newBuffers(t, 64)
	const g = 1.0
	if err := Initialize("disk", pos, vel, 64, 5, g); err != nil {
		t.Fatal(err)
	}

	central := float64(pos.At(0)[3])
	if central <= 0 {
		t.Fatal("slot 0 must hold the central mass")
	}
	for i := 1; i < 64; i++ {
		p := pos.At(i)
		v := vel.At(i)
		r := math.Sqrt(float64(p[0]*p[0] + p[1]*p[1]))
		speed := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
		want := math.Sqrt(g * central / r)
		if math.Abs(speed-want) > 1e-3*want {
			t.Errorf("orbiter %d speed %v, want Keplerian %v at r=%v", i, speed, want, r)
		}
		// Velocity is tangential.
		if dot := float64(p[0]*v[0] + p[1]*v[1]); math.Abs(dot) > 1e-4 {
			t.Errorf("orbiter %d has radial velocity component %v", i, dot)
		}
	}
}

func TestBinaryPairMomentumFree(t *testing.T) {
	pos, vel, _ := newBuffers(t, 2)
	if err := Initialize("pair", pos, vel, 2, 0, 1); err != nil {
		t.Fatal(err)
	}
	var px, py float64
	for i := 0; i < 2; i++ {
		m := float64(pos.At(i)[3])
		px += m * float64(vel.At(i)[0])
		py += m * float64(vel.At(i)[1])
	}
	if math.Abs(px) > 1e-7 || math.Abs(py) > 1e-7 {
		t.Errorf("net momentum (%v, %v)", px, py)
	}
}
