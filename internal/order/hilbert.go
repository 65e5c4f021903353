// Package order sorts particle slots along a 3D Hilbert curve. Aggregation
// and traversal touch memory per voxel, so keeping spatial neighbours
// adjacent in the particle texture keeps their writes adjacent too.
package order

import (
	"sort"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

// DefaultBits is the curve resolution used by the simulator. 10 bits per
// axis distinguishes 2^30 cells, far below float32 position resolution.
const DefaultBits = 10

// Encode maps a quantized 3D coordinate to its Hilbert curve index.
// Each of x, y, z must fit in bits bits. Uses the transposed-coordinate
// form of Skilling's algorithm.
func Encode(bits uint, x, y, z uint32) uint64 {
	c := [3]uint32{x, y, z}

	// Gray-decode in place, top bit down.
	for q := uint32(1) << (bits - 1); q > 1; q >>= 1 {
		p := q - 1
		for i := 0; i < 3; i++ {
			if c[i]&q != 0 {
				c[0] ^= p
			} else {
				t := (c[0] ^ c[i]) & p
				c[0] ^= t
				c[i] ^= t
			}
		}
	}
	c[1] ^= c[0]
	c[2] ^= c[1]
	t := uint32(0)
	for q := uint32(1) << (bits - 1); q > 1; q >>= 1 {
		if c[2]&q != 0 {
			t ^= q - 1
		}
	}
	for i := 0; i < 3; i++ {
		c[i] ^= t
	}

	// Interleave the transposed coordinates into a single key.
	var key uint64
	for b := int(bits) - 1; b >= 0; b-- {
		for i := 0; i < 3; i++ {
			key = key<<1 | uint64((c[i]>>uint(b))&1)
		}
	}
	return key
}

// Keys computes the Hilbert key of every occupied slot in pos, quantized
// against b. Slots with non-positive mass get the maximum key so they sort
// to the back.
func Keys(pos *device.Texture, b geom.Bounds, bits uint) []uint64 {
	n := pos.Texels()
	keys := make([]uint64, n)
	ext := b.MaxExtent()
	scale := 0.0
	if ext > 0 {
		scale = float64(uint32(1)<<bits-1) / ext
	}
	for i := 0; i < n; i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			keys[i] = ^uint64(0)
			continue
		}
		qx := quantize(float64(s[0])-b.Min.X, scale, bits)
		qy := quantize(float64(s[1])-b.Min.Y, scale, bits)
		qz := quantize(float64(s[2])-b.Min.Z, scale, bits)
		keys[i] = Encode(bits, qx, qy, qz)
	}
	return keys
}

// Permutation returns slot indices sorted by Hilbert key. The result is a
// valid permutation of 0..len(keys)-1; ties keep their original order.
func Permutation(keys []uint64) []int {
	perm := make([]int, len(keys))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return keys[perm[a]] < keys[perm[b]]
	})
	return perm
}

// Apply rewrites dst so dst slot i holds src slot perm[i]. src and dst must
// not alias.
func Apply(src, dst *device.Texture, perm []int) {
	for i, j := range perm {
		dst.Set(i, src.At(j))
	}
}

// Sort reorders the particle texture in place along the Hilbert curve and
// returns the permutation applied, so callers can reorder companion
// textures (velocities) to match.
func Sort(pos *device.Texture, b geom.Bounds, bits uint) []int {
	perm := Permutation(Keys(pos, b, bits))
	scratch := make([][4]float32, len(perm))
	for i, j := range perm {
		scratch[i] = pos.At(j)
	}
	for i, s := range scratch {
		pos.Set(i, s)
	}
	return perm
}

func quantize(v, scale float64, bits uint) uint32 {
	q := int64(v * scale)
	max := int64(uint32(1)<<bits - 1)
	if q < 0 {
		return 0
	}
	if q > max {
		return uint32(max)
	}
	return uint32(q)
}
