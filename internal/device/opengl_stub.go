//go:build !gl

package device

import (
	"fmt"

	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

// OpenGL is unavailable in builds without the gl tag. Every pass falls
// through to the CPU backend.
type OpenGL struct{}

func NewOpenGL() *OpenGL { return &OpenGL{} }

// InitContext is a no-op without the gl tag.
func (o *OpenGL) InitContext() error {
	return fmt.Errorf("device: opengl backend not compiled in (build with -tags gl)")
}

func (o *OpenGL) Name() string    { return "opengl (not available)" }
func (o *OpenGL) Available() bool { return false }
func (o *OpenGL) Cleanup()        {}

func (o *OpenGL) Limits() Limits { return NewCPU().Limits() }

func (o *OpenGL) NewTexture(w, h int) (*Texture, error) { return NewCPU().NewTexture(w, h) }
func (o *OpenGL) Upload(t *Texture) error               { return nil }
func (o *OpenGL) Download(t *Texture) error             { return nil }
func (o *OpenGL) Free(t *Texture)                       { NewCPU().Free(t) }

func (o *OpenGL) ReduceBounds(pos *Texture) (geom.Bounds, error) {
	return NewCPU().ReduceBounds(pos)
}

func (o *OpenGL) Aggregate(pos *Texture, b geom.Bounds, lv voxel.LevelSpec, dst MomentSet) error {
	return NewCPU().Aggregate(pos, b, lv, dst)
}

func (o *OpenGL) BuildPyramid(child MomentSet, childLv voxel.LevelSpec, parent MomentSet, parentLv voxel.LevelSpec) error {
	return NewCPU().BuildPyramid(child, childLv, parent, parentLv)
}

func (o *OpenGL) BuildOccupancy(m MomentSet, lv voxel.LevelSpec, dst *Texture) error {
	return NewCPU().BuildOccupancy(m, lv, dst)
}

func (o *OpenGL) Traverse(pos *Texture, b geom.Bounds, levels []voxel.LevelSpec,
	moments []MomentSet, occupancy []*Texture, p TraverseParams, forces *Texture) error {
	return NewCPU().Traverse(pos, b, levels, moments, occupancy, p, forces)
}
