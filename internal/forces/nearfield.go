package forces

import (
	"fmt"
	"math"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

// NearField restores the pairwise interactions the octree traversal
// deliberately skips: particles sharing a finest-level voxel never see each
// other through the pyramid, so this pass direct-sums each voxel's members
// and adds the result on top of an existing force texture.
type NearField struct {
	Level     voxel.LevelSpec
	G         float64
	Softening float64
}

func NewNearField(level voxel.LevelSpec, g, softening float64) *NearField {
	return &NearField{Level: level, G: g, Softening: softening}
}

// Accumulate adds intra-voxel pairwise accelerations into dst. b must be
// the same world box the aggregation used, or bucket assignment will not
// line up with the traversal's.
func (nf *NearField) Accumulate(pos, dst *device.Texture, b geom.Bounds) error {
	if pos == nil || dst == nil {
		return fmt.Errorf("forces: near field needs position and force textures")
	}
	if !b.Valid() {
		return fmt.Errorf("forces: near field needs valid world bounds")
	}

	buckets := make(map[int][]int)
	for i := 0; i < pos.Texels(); i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		ix, iy, iz := nf.Level.VoxelOf(geom.Vec3{
			X: float64(s[0]), Y: float64(s[1]), Z: float64(s[2]),
		}, b)
		t := nf.Level.Texel(ix, iy, iz)
		buckets[t] = append(buckets[t], i)
	}

	eps2 := nf.Softening * nf.Softening
	for _, members := range buckets {
		if len(members) < 2 {
			continue
		}
		for _, i := range members {
			pi := pos.At(i)
			xi, yi, zi := float64(pi[0]), float64(pi[1]), float64(pi[2])

			var ax, ay, az float64
			for _, j := range members {
				if j == i {
					continue
				}
				pj := pos.At(j)
				rx := xi - float64(pj[0])
				ry := yi - float64(pj[1])
				rz := zi - float64(pj[2])
				r2 := rx*rx + ry*ry + rz*rz + eps2

				rInv := 1.0 / math.Sqrt(r2)
				f := -nf.G * float64(pj[3]) * rInv * rInv * rInv
				ax += f * rx
				ay += f * ry
				az += f * rz
			}

			cur := dst.At(i)
			dst.Set(i, [4]float32{
				cur[0] + float32(ax),
				cur[1] + float32(ay),
				cur[2] + float32(az),
				0,
			})
		}
	}

	return nil
}
