package device

import (
	"fmt"
	"sync"

	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

func checkMoments(m MomentSet, lv voxel.LevelSpec, what string) error {
	for _, t := range []*Texture{m.A0, m.A1, m.A2} {
		if err := checkTexture(t, what); err != nil {
			return err
		}
		if t.W != lv.TexWidth() || t.H != lv.TexHeight() {
			return fmt.Errorf("device: %s moment texture is %dx%d, level needs %dx%d",
				what, t.W, t.H, lv.TexWidth(), lv.TexHeight())
		}
	}
	return nil
}

func (c *CPU) Aggregate(pos *Texture, b geom.Bounds, lv voxel.LevelSpec, dst MomentSet) error {
	if err := checkTexture(pos, "positions"); err != nil {
		return err
	}
	if err := checkMoments(dst, lv, "level 0"); err != nil {
		return err
	}
	if !b.Valid() {
		return fmt.Errorf("device: aggregate needs valid world bounds")
	}

	dst.A0.Clear()
	dst.A1.Clear()
	dst.A2.Clear()

	n := pos.Texels()
	texels := dst.A0.Texels()

	// One moment grid per worker; merged after the deposit pass. This is
	// the CPU stand-in for additive blending: contributions to a shared
	// voxel always sum, regardless of scheduling.
	workers := c.workers
	if workers > n {
		workers = 1
	}
	shards := make([][]float32, workers)
	for w := range shards {
		shards[w] = make([]float32, texels*12)
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(grid []float32, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				p := pos.At(i)
				m := p[3]
				if m <= 0 {
					continue
				}
				x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
				ix, iy, iz := lv.VoxelOf(geom.Vec3{X: x, Y: y, Z: z}, b)
				o := lv.Texel(ix, iy, iz) * 12

				mx := float64(m) * x
				my := float64(m) * y
				mz := float64(m) * z

				grid[o+0] += float32(mx)
				grid[o+1] += float32(my)
				grid[o+2] += float32(mz)
				grid[o+3] += m

				grid[o+4] += float32(mx * x)
				grid[o+5] += float32(my * y)
				grid[o+6] += float32(mz * z)
				grid[o+7] += float32(mx * y)

				grid[o+8] += float32(mx * z)
				grid[o+9] += float32(my * z)
			}
		}(shards[w], lo, hi)
	}
	wg.Wait()

	c.parallel(texels, func(lo, hi int) {
		for t := lo; t < hi; t++ {
			var acc [12]float32
			for _, grid := range shards {
				o := t * 12
				for k := 0; k < 10; k++ {
					acc[k] += grid[o+k]
				}
			}
			dst.A0.Set(t, [4]float32{acc[0], acc[1], acc[2], acc[3]})
			dst.A1.Set(t, [4]float32{acc[4], acc[5], acc[6], acc[7]})
			dst.A2.Set(t, [4]float32{acc[8], acc[9], 0, 0})
		}
	})

	return nil
}

func (c *CPU) BuildPyramid(child MomentSet, childLv voxel.LevelSpec, parent MomentSet, parentLv voxel.LevelSpec) error {
	if err := checkMoments(child, childLv, "child level"); err != nil {
		return err
	}
	if err := checkMoments(parent, parentLv, "parent level"); err != nil {
		return err
	}
	if childLv.GridSize != 2*parentLv.GridSize {
		return fmt.Errorf("device: pyramid step needs child grid %d = 2 x parent grid %d",
			childLv.GridSize, parentLv.GridSize)
	}

	g := parentLv.GridSize
	c.parallel(g*g*g, func(lo, hi int) {
		for v := lo; v < hi; v++ {
			px := v % g
			py := (v / g) % g
			pz := v / (g * g)

			var a0, a1, a2 [4]float32
			for dz := 0; dz < 2; dz++ {
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						t := childLv.Texel(2*px+dx, 2*py+dy, 2*pz+dz)
						c0 := child.A0.At(t)
						c1 := child.A1.At(t)
						c2 := child.A2.At(t)
						for k := 0; k < 4; k++ {
							a0[k] += c0[k]
							a1[k] += c1[k]
							a2[k] += c2[k]
						}
					}
				}
			}

			t := parentLv.Texel(px, py, pz)
			parent.A0.Set(t, a0)
			parent.A1.Set(t, a1)
			parent.A2.Set(t, a2)
		}
	})

	return nil
}

func (c *CPU) BuildOccupancy(m MomentSet, lv voxel.LevelSpec, dst *Texture) error {
	if err := checkMoments(m, lv, "occupancy source"); err != nil {
		return err
	}
	if err := checkTexture(dst, "occupancy"); err != nil {
		return err
	}
	if dst.W != lv.TexWidth() || dst.H != lv.TexHeight() {
		return fmt.Errorf("device: occupancy texture is %dx%d, level needs %dx%d",
			dst.W, dst.H, lv.TexWidth(), lv.TexHeight())
	}

	c.parallel(dst.Texels(), func(lo, hi int) {
		for t := lo; t < hi; t++ {
			occ := float32(0)
			if m.A0.At(t)[3] > 0 {
				occ = 1
			}
			dst.Set(t, [4]float32{occ, 0, 0, 0})
		}
	})
	return nil
}
