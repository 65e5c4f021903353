// Package forces hosts the interchangeable gravity back-ends: the direct
// all-pairs sum, the particle-mesh spectral solver and the same-voxel
// near-field correction. The octree solver satisfies the same contract.
package forces

import "github.com/okanon/octograv/internal/device"

// Provider computes per-particle gravitational accelerations. pos holds
// (x, y, z, mass) slots; slots with non-positive mass are skipped and get a
// zero result. dst receives (ax, ay, az, 0) per slot.
type Provider interface {
	Name() string
	Accelerations(pos, dst *device.Texture) error
}
