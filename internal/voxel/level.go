// Package voxel maps the dense octree levels onto 2D texture memory.
//
// Each level is a cubic grid of side GridSize, packed as z-slices tiled into
// rows of SlicesPerRow slices. A GridSize=16, SlicesPerRow=4 level therefore
// occupies a 64x64 texture. Level 0 is the finest grid; each coarser level
// halves the resolution, so 8 children collapse into one parent voxel.
package voxel

import (
	"fmt"
	"math"

	"github.com/okanon/octograv/internal/geom"
)

// LevelSpec is the static configuration of one octree level.
type LevelSpec struct {
	GridSize     int `yaml:"grid_size"`
	SlicesPerRow int `yaml:"slices_per_row"`
}

// TexWidth is the packed 2D width of the level in texels.
func (l LevelSpec) TexWidth() int { return l.GridSize * l.SlicesPerRow }

// TexHeight is the packed 2D height of the level in texels.
func (l LevelSpec) TexHeight() int {
	rows := (l.GridSize + l.SlicesPerRow - 1) / l.SlicesPerRow
	return l.GridSize * rows
}

// Voxels is the voxel count of the level.
func (l LevelSpec) Voxels() int { return l.GridSize * l.GridSize * l.GridSize }

// CellSize is the world-space side of one voxel over the given bounds.
// Cells are cubic: the longest axis of the box sets the scale.
func (l LevelSpec) CellSize(b geom.Bounds) float64 {
	return b.MaxExtent() / float64(l.GridSize)
}

// Texel maps a 3D voxel coordinate to the linear texel index of the packed
// 2D layout.
func (l LevelSpec) Texel(ix, iy, iz int) int {
	u := (iz%l.SlicesPerRow)*l.GridSize + ix
	v := (iz/l.SlicesPerRow)*l.GridSize + iy
	return v*l.TexWidth() + u
}

// Coord is the inverse of Texel.
func (l LevelSpec) Coord(texel int) (ix, iy, iz int) {
	w := l.TexWidth()
	u := texel % w
	v := texel / w
	ix = u % l.GridSize
	iy = v % l.GridSize
	iz = (v/l.GridSize)*l.SlicesPerRow + u/l.GridSize
	return
}

// VoxelOf maps a world position into this level's grid over bounds b,
// clamping to [0, GridSize) on every axis.
func (l LevelSpec) VoxelOf(p geom.Vec3, b geom.Bounds) (ix, iy, iz int) {
	cell := l.CellSize(b)
	if cell <= 0 {
		return 0, 0, 0
	}
	ix = clampIndex(int(math.Floor((p.X-b.Min.X)/cell)), l.GridSize)
	iy = clampIndex(int(math.Floor((p.Y-b.Min.Y)/cell)), l.GridSize)
	iz = clampIndex(int(math.Floor((p.Z-b.Min.Z)/cell)), l.GridSize)
	return
}

// Center is the world-space center of voxel (ix,iy,iz) over bounds b.
func (l LevelSpec) Center(ix, iy, iz int, b geom.Bounds) geom.Vec3 {
	cell := l.CellSize(b)
	return geom.Vec3{
		X: b.Min.X + (float64(ix)+0.5)*cell,
		Y: b.Min.Y + (float64(iy)+0.5)*cell,
		Z: b.Min.Z + (float64(iz)+0.5)*cell,
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// ValidateChain checks that levels form a proper pyramid: level 0 finest,
// every coarser level exactly half the resolution of its child, and every
// level tiling its texture exactly.
func ValidateChain(levels []LevelSpec) error {
	if len(levels) == 0 {
		return fmt.Errorf("voxel: at least one level required")
	}
	for i, l := range levels {
		if l.GridSize < 1 {
			return fmt.Errorf("voxel: level %d has grid size %d", i, l.GridSize)
		}
		if l.SlicesPerRow < 1 || l.GridSize%l.SlicesPerRow != 0 {
			return fmt.Errorf("voxel: level %d slices-per-row %d does not tile grid size %d",
				i, l.SlicesPerRow, l.GridSize)
		}
		if i > 0 && levels[i-1].GridSize != 2*l.GridSize {
			return fmt.Errorf("voxel: level %d grid size %d is not half of level %d grid size %d",
				i, l.GridSize, i-1, levels[i-1].GridSize)
		}
	}
	return nil
}
