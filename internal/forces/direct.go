package forces

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/okanon/octograv/internal/device"
)

// Direct is the O(N^2) softened summation. It is exact up to float
// precision and serves as the accuracy reference for the tree code.
type Direct struct {
	G         float64
	Softening float64
	workers   int
}

func NewDirect(g, softening float64) *Direct {
	return &Direct{G: g, Softening: softening, workers: runtime.NumCPU()}
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Accelerations(pos, dst *device.Texture) error {
	if pos == nil || dst == nil {
		return fmt.Errorf("forces: direct needs position and force textures")
	}
	if dst.Texels() < pos.Texels() {
		return fmt.Errorf("forces: force texture holds %d slots, need %d",
			dst.Texels(), pos.Texels())
	}

	n := pos.Texels()
	eps2 := d.Softening * d.Softening

	chunk := (n + d.workers - 1) / d.workers
	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				pi := pos.At(i)
				if pi[3] <= 0 {
					dst.Set(i, [4]float32{})
					continue
				}
				xi, yi, zi := float64(pi[0]), float64(pi[1]), float64(pi[2])

				var ax, ay, az float64
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					pj := pos.At(j)
					if pj[3] <= 0 {
						continue
					}
					rx := xi - float64(pj[0])
					ry := yi - float64(pj[1])
					rz := zi - float64(pj[2])
					r2 := rx*rx + ry*ry + rz*rz + eps2

					rInv := 1.0 / math.Sqrt(r2)
					r3Inv := rInv * rInv * rInv

					f := -d.G * float64(pj[3]) * r3Inv
					ax += f * rx
					ay += f * ry
					az += f * rz
				}
				dst.Set(i, [4]float32{float32(ax), float32(ay), float32(az), 0})
			}
		}(lo, hi)
	}
	wg.Wait()

	return nil
}
