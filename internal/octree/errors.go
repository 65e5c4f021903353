package octree

import "errors"

// Configuration and device errors surfaced by the solver. Numerical
// degeneracies (empty voxels, zero separation, empty bounds) are handled by
// epsilon guards inside the kernels and never reach these.
var (
	// ErrBadConfig indicates a malformed particle count, physics scalar
	// or level chain.
	ErrBadConfig = errors.New("octree: malformed solver configuration")

	// ErrLevelBudget indicates the level count exceeds what the backend
	// can bind at once.
	ErrLevelBudget = errors.New("octree: level count exceeds texture-unit budget")

	// ErrMissingResource indicates a required texture was not supplied
	// and could not be allocated.
	ErrMissingResource = errors.New("octree: missing required input texture")

	// ErrTextureSize indicates a borrowed texture cannot hold the
	// configured particle count or level extent.
	ErrTextureSize = errors.New("octree: borrowed texture has wrong extent")

	// ErrNoBounds indicates a pass ran before a bounds reduction (or
	// explicit SetBounds) produced a world box.
	ErrNoBounds = errors.New("octree: world bounds not reduced")

	// ErrDisposed indicates use after Dispose.
	ErrDisposed = errors.New("octree: solver disposed")
)
