package device

import (
	"fmt"
	"math"

	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

// Traverse walks the moment pyramid coarse to fine for every particle.
//
// A voxel contributes at the coarsest level whose acceptance test
// (cellSize/(dist+eps) < theta) passes. Finer levels re-scan the whole grid
// but only accept voxels whose parent-sized test fails, so each region of
// space is counted exactly once. Level 0 accepts everything left over,
// which makes theta=0 degenerate into a finest-level direct summation.
// The voxel containing the particle itself is excluded at every level.
// Because every ancestor of the self voxel is itself a self voxel, a voxel
// sharing the particle's parent cell can never contribute at a coarser
// level; it is accepted here even when the parent-sized test passes.
func (c *CPU) Traverse(pos *Texture, b geom.Bounds, levels []voxel.LevelSpec,
	moments []MomentSet, occupancy []*Texture, p TraverseParams, forces *Texture) error {

	if err := checkTexture(pos, "positions"); err != nil {
		return err
	}
	if err := checkTexture(forces, "forces"); err != nil {
		return err
	}
	if len(levels) == 0 || len(moments) != len(levels) {
		return fmt.Errorf("device: traverse needs one moment set per level, got %d sets for %d levels",
			len(moments), len(levels))
	}
	if len(levels) > c.Limits().MaxLevels {
		return fmt.Errorf("device: level count %d exceeds backend budget %d",
			len(levels), c.Limits().MaxLevels)
	}
	for i, m := range moments {
		if err := checkMoments(m, levels[i], fmt.Sprintf("level %d", i)); err != nil {
			return err
		}
	}
	if p.UseOccupancy && len(occupancy) != len(levels) {
		return fmt.Errorf("device: occupancy pruning enabled but %d masks for %d levels",
			len(occupancy), len(levels))
	}
	if !b.Valid() {
		return fmt.Errorf("device: traverse needs valid world bounds")
	}

	c.parallel(pos.Texels(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			slot := pos.At(i)
			if slot[3] <= 0 {
				forces.Set(i, [4]float32{})
				continue
			}
			x := geom.Vec3{X: float64(slot[0]), Y: float64(slot[1]), Z: float64(slot[2])}
			f := c.traverseOne(x, b, levels, moments, occupancy, p)
			forces.Set(i, [4]float32{float32(f.X), float32(f.Y), float32(f.Z), 0})
		}
	})

	return nil
}

func (c *CPU) traverseOne(x geom.Vec3, b geom.Bounds, levels []voxel.LevelSpec,
	moments []MomentSet, occupancy []*Texture, p TraverseParams) geom.Vec3 {

	soft2 := p.Softening * p.Softening
	coarsest := len(levels) - 1
	var force geom.Vec3

	for level := coarsest; level >= 0; level-- {
		lv := levels[level]
		m := moments[level]
		var occ *Texture
		if p.UseOccupancy {
			occ = occupancy[level]
		}

		cell := lv.CellSize(b)
		sx, sy, sz := lv.VoxelOf(x, b)
		g := lv.GridSize
		hasParent := level < coarsest

		for iz := 0; iz < g; iz++ {
			for iy := 0; iy < g; iy++ {
				for ix := 0; ix < g; ix++ {
					t := lv.Texel(ix, iy, iz)
					if occ != nil && occ.At(t)[0] < 0.5 {
						continue
					}

					a0 := m.A0.At(t)
					mass := float64(a0[3])
					if mass <= epsMass {
						continue
					}
					if ix == sx && iy == sy && iz == sz {
						continue
					}

					com := geom.Vec3{
						X: float64(a0[0]) / mass,
						Y: float64(a0[1]) / mass,
						Z: float64(a0[2]) / mass,
					}
					r := x.Sub(com)
					dist := r.Norm()

					parentIsSelf := hasParent &&
						ix/2 == sx/2 && iy/2 == sy/2 && iz/2 == sz/2
					if !acceptAt(level, coarsest, cell, dist, p.Theta, parentIsSelf) {
						continue
					}

					d2 := dist*dist + soft2
					d := math.Sqrt(d2)
					d3 := d2 * d

					// Monopole: attraction toward the cell's center of mass.
					force = force.Add(r.Scale(-p.G * mass / d3))

					if level > 0 {
						force = force.Add(quadrupoleTerm(m.A1.At(t), m.A2.At(t), com, mass, r, d2, p.G))
					}
				}
			}
		}
	}

	return force
}

// acceptAt bands the acceptance test so that each voxel of space
// contributes at exactly one level: the coarsest one where the opening
// test passes and the voxel is still separable from the particle's own
// cell. passHere tests this level's cell; passParent tests the
// twice-coarser cell covering the same point. A voxel whose parent is the
// particle's parent would be excluded as self at every coarser level, so
// deferring it upward would drop its mass entirely; parentIsSelf forces
// acceptance at this level instead.
func acceptAt(level, coarsest int, cell, dist, theta float64, parentIsSelf bool) bool {
	passHere := cell/(dist+epsDist) < theta
	passParent := !parentIsSelf && (2*cell/(dist+epsDist)) < theta

	switch {
	case coarsest == 0:
		return true
	case level == coarsest:
		return passHere
	case level == 0:
		return !passParent
	default:
		return passHere && !passParent
	}
}

// quadrupoleTerm recovers the parallel-axis corrected second-moment tensor
// and returns the trace plus directional force corrections:
//
//	a = G * (3 Q r / d^5 - 15/2 (r'Qr) r / d^7 + 3/2 tr(Q) r / d^5)
func quadrupoleTerm(a1, a2 [4]float32, com geom.Vec3, mass float64, r geom.Vec3, d2, g float64) geom.Vec3 {
	qxx := float64(a1[0]) - com.X*com.X*mass
	qyy := float64(a1[1]) - com.Y*com.Y*mass
	qzz := float64(a1[2]) - com.Z*com.Z*mass
	qxy := float64(a1[3]) - com.X*com.Y*mass
	qxz := float64(a2[0]) - com.X*com.Z*mass
	qyz := float64(a2[1]) - com.Y*com.Z*mass

	qr := geom.Vec3{
		X: qxx*r.X + qxy*r.Y + qxz*r.Z,
		Y: qxy*r.X + qyy*r.Y + qyz*r.Z,
		Z: qxz*r.X + qyz*r.Y + qzz*r.Z,
	}
	rqr := r.Dot(qr)
	trq := qxx + qyy + qzz

	d := math.Sqrt(d2)
	d5 := d2 * d2 * d
	d7 := d5 * d2

	return qr.Scale(3 * g / d5).
		Add(r.Scale(-7.5 * g * rqr / d7)).
		Add(r.Scale(1.5 * g * trq / d5))
}
