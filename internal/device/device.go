package device

import (
	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

// Limits describes what a backend can hold at once.
type Limits struct {
	// MaxLevels caps the pyramid depth. Moments are bound as three
	// level-indexed arrays, so the cap reflects memory and indexing
	// limits rather than one texture unit per level.
	MaxLevels int

	// MaxTextureSize is the largest texture side the backend accepts.
	MaxTextureSize int

	// DegradedAccumulation is set when additive accumulation runs through
	// a reduced-precision fixed-point path instead of native float blending.
	DegradedAccumulation bool
}

// TraverseParams are the physics scalars of the multipole traversal.
type TraverseParams struct {
	Theta     float64
	G         float64
	Softening float64

	// UseOccupancy enables occupancy-mask pruning. It may only change
	// traversal cost, never the numeric result.
	UseOccupancy bool
}

// Backend executes the gravity pipeline passes. Every call is synchronous:
// when it returns without error, the output texture's host mirror holds the
// result. Implementations must leave outputs untouched on error.
type Backend interface {
	Name() string
	Available() bool
	Limits() Limits

	NewTexture(w, h int) (*Texture, error)
	Upload(t *Texture) error
	Download(t *Texture) error
	Free(t *Texture)

	// ReduceBounds computes the axis-aligned box of every slot with
	// positive mass. The returned bounds are invalid when no slot
	// qualifies; callers fall back to a default box.
	ReduceBounds(pos *Texture) (geom.Bounds, error)

	// Aggregate clears dst and deposits every particle's monopole and
	// second moments into its level voxel. Contributions to a shared
	// voxel sum; they never overwrite.
	Aggregate(pos *Texture, b geom.Bounds, lv voxel.LevelSpec, dst MomentSet) error

	// BuildPyramid sums each parent voxel from its 8 children. Raw
	// moments add linearly; no re-centering happens at build time.
	BuildPyramid(child MomentSet, childLv voxel.LevelSpec, parent MomentSet, parentLv voxel.LevelSpec) error

	// BuildOccupancy writes 1 into dst for every voxel with positive
	// aggregated mass, 0 otherwise.
	BuildOccupancy(m MomentSet, lv voxel.LevelSpec, dst *Texture) error

	// Traverse evaluates the per-particle multipole force over the whole
	// pyramid and writes (fx, fy, fz, 0) into forces.
	Traverse(pos *Texture, b geom.Bounds, levels []voxel.LevelSpec,
		moments []MomentSet, occupancy []*Texture, p TraverseParams, forces *Texture) error

	Cleanup()
}

var active Backend

func init() {
	active = AutoSelect()
}

// Set replaces the active backend, cleaning up the previous one.
func Set(b Backend) {
	if active != nil {
		active.Cleanup()
	}
	active = b
}

// Get returns the active backend.
func Get() Backend {
	return active
}

// AutoSelect prefers the OpenGL backend when compiled in and usable.
func AutoSelect() Backend {
	gl := NewOpenGL()
	if gl.Available() {
		return gl
	}
	return NewCPU()
}
