// Package device provides the compute backends that execute the gravity
// pipeline passes.
//
// The package automatically selects the best available backend:
//
//   - OpenGL: compute-shader execution of all passes (build with -tags gl)
//   - CPU: always-available fallback with worker-parallel kernels
//
// Backends operate on Texture values: flat RGBA float32 images that hold
// particle slots or packed voxel grids. Every pass is synchronous; outputs
// are readable once the call returns (hardware backends download results
// into the host mirror as part of the call).
//
//	backend := device.Get()
//	bounds, err := backend.ReduceBounds(positions)
package device
