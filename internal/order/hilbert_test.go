package order

import (
	"math"
	"math/rand"
	"testing"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

func TestEncodeDistinctCells(t *testing.T) {
	seen := make(map[uint64]bool)
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			for z := uint32(0); z < 4; z++ {
				k := Encode(2, x, y, z)
				if k >= 64 {
					t.Fatalf("key %d out of range for 2-bit curve", k)
				}
				if seen[k] {
					t.Fatalf("key %d visited twice", k)
				}
				seen[k] = true
			}
		}
	}
	if len(seen) != 64 {
		t.Fatalf("curve visited %d of 64 cells", len(seen))
	}
}

func TestEncodeAdjacency(t *testing.T) {
	// Consecutive curve indices must sit in face-adjacent cells. Invert by
	// brute force over the 4^3 grid.
	cell := make(map[uint64][3]uint32)
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			for z := uint32(0); z < 4; z++ {
				cell[Encode(2, x, y, z)] = [3]uint32{x, y, z}
			}
		}
	}
	for k := uint64(0); k < 63; k++ {
		a, b := cell[k], cell[k+1]
		d := 0
		for i := 0; i < 3; i++ {
			di := int(a[i]) - int(b[i])
			if di < 0 {
				di = -di
			}
			d += di
		}
		if d != 1 {
			t.Fatalf("steps %d -> %d jump distance %d", k, k+1, d)
		}
	}
}

func TestSortIsPermutation(t *testing.T) {
	c := device.NewCPU()
	pos, _ := c.NewTexture(64, 1)
	rng := rand.New(rand.NewSource(7))
	masses := make(map[float32]bool)
	for i := 0; i < 64; i++ {
		m := float32(i + 1)
		masses[m] = true
		pos.Set(i, [4]float32{
			rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1, m,
		})
	}
	b := geom.NewBounds(geom.Vec3{X: -1, Y: -1, Z: -1}, geom.Vec3{X: 1, Y: 1, Z: 1})

	perm := Sort(pos, b, DefaultBits)
	if len(perm) != 64 {
		t.Fatalf("permutation length %d", len(perm))
	}
	seen := make(map[int]bool)
	for _, j := range perm {
		if seen[j] {
			t.Fatalf("index %d appears twice", j)
		}
		seen[j] = true
	}
	for i := 0; i < 64; i++ {
		if !masses[pos.At(i)[3]] {
			t.Fatalf("slot %d holds unknown mass %v after sort", i, pos.At(i)[3])
		}
		delete(masses, pos.At(i)[3])
	}
}

func TestSortImprovesLocality(t *testing.T) {
	c := device.NewCPU()
	pos, _ := c.NewTexture(512, 1)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 512; i++ {
		pos.Set(i, [4]float32{
			rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1, 1,
		})
	}
	b := geom.NewBounds(geom.Vec3{X: -1, Y: -1, Z: -1}, geom.Vec3{X: 1, Y: 1, Z: 1})

	before := neighbourDistance(pos)
	Sort(pos, b, DefaultBits)
	after := neighbourDistance(pos)

	if after >= before {
		t.Errorf("mean neighbour distance %v did not improve on %v", after, before)
	}
}

func TestSortPushesEmptySlotsBack(t *testing.T) {
	c := device.NewCPU()
	pos, _ := c.NewTexture(4, 1)
	pos.Set(0, [4]float32{0, 0, 0, 0}) // padding slot
	pos.Set(1, [4]float32{0.5, 0, 0, 2})
	pos.Set(2, [4]float32{0, 0, 0, 0}) // padding slot
	pos.Set(3, [4]float32{-0.5, 0, 0, 3})
	b := geom.NewBounds(geom.Vec3{X: -1, Y: -1, Z: -1}, geom.Vec3{X: 1, Y: 1, Z: 1})

	Sort(pos, b, DefaultBits)

	if pos.At(0)[3] <= 0 || pos.At(1)[3] <= 0 {
		t.Error("occupied slots must sort ahead of padding")
	}
	if pos.At(2)[3] != 0 || pos.At(3)[3] != 0 {
		t.Error("padding slots must sort to the back")
	}
}

func TestApplyMatchesPermutation(t *testing.T) {
	c := device.NewCPU()
	src, _ := c.NewTexture(4, 1)
	dst, _ := c.NewTexture(4, 1)
	for i := 0; i < 4; i++ {
		src.Set(i, [4]float32{float32(i), 0, 0, 1})
	}
	Apply(src, dst, []int{3, 1, 0, 2})
	want := []float32{3, 1, 0, 2}
	for i, w := range want {
		if dst.At(i)[0] != w {
			t.Errorf("slot %d = %v, want %v", i, dst.At(i)[0], w)
		}
	}
}

func neighbourDistance(pos *device.Texture) float64 {
	var sum float64
	n := pos.Texels()
	for i := 1; i < n; i++ {
		a, b := pos.At(i-1), pos.At(i)
		dx := float64(a[0] - b[0])
		dy := float64(a[1] - b[1])
		dz := float64(a[2] - b[2])
		sum += math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return sum / float64(n-1)
}
