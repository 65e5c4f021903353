// Package octree implements the multilevel moment-pyramid gravity solver:
// bounds reduction, moment aggregation, pyramid build and the multipole
// traversal, orchestrated over a compute backend.
package octree

import (
	"fmt"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

// boundsMargin pads the reduced box so particles sitting exactly on a face
// do not clamp into boundary voxels.
const boundsMargin = 1e-3

// Config fixes the solver's shape at construction.
type Config struct {
	Particles int
	// Levels is ordered finest to coarsest; each coarser grid is half
	// the resolution of its child.
	Levels    []voxel.LevelSpec
	Theta     float64
	G         float64
	Softening float64
	// Occupancy materializes a per-level mask used to prune traversal.
	// It never changes the force result.
	Occupancy bool
}

// Slot declares how the solver acquires one of its textures. A borrowed
// texture belongs to the caller and survives Dispose; an allocated one is
// owned and destroyed by the solver.
type Slot struct {
	tex      *device.Texture
	borrowed bool
}

// Borrow hands the solver a caller-owned texture.
func Borrow(t *device.Texture) Slot { return Slot{tex: t, borrowed: true} }

// Alloc asks the solver to allocate and own the texture.
func Alloc() Slot { return Slot{} }

// Resources selects ownership for the solver's boundary textures.
// The zero value allocates everything.
type Resources struct {
	Positions Slot
	Forces    Slot
}

// Solver owns (or borrows) every texture of the pipeline and runs the
// passes in their required order. It is not safe for concurrent use; two
// independently constructed solvers never alias resources.
type Solver struct {
	backend device.Backend
	cfg     Config

	positions *device.Texture
	forces    *device.Texture
	moments   []device.MomentSet
	occupancy []*device.Texture

	owned    []*device.Texture
	bounds   geom.Bounds
	disposed bool
}

// New validates cfg, adopts or allocates the boundary textures and
// allocates the moment pyramid.
func New(backend device.Backend, cfg Config, res Resources) (*Solver, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrBadConfig)
	}
	if cfg.Particles <= 0 {
		return nil, fmt.Errorf("%w: particle count %d", ErrBadConfig, cfg.Particles)
	}
	if cfg.Theta < 0 || cfg.Softening < 0 {
		return nil, fmt.Errorf("%w: theta and softening must be non-negative", ErrBadConfig)
	}
	if err := voxel.ValidateChain(cfg.Levels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	if limit := backend.Limits().MaxLevels; len(cfg.Levels) > limit {
		return nil, fmt.Errorf("%w: %d levels, backend allows %d",
			ErrLevelBudget, len(cfg.Levels), limit)
	}

	s := &Solver{backend: backend, cfg: cfg}

	pw, ph := device.ParticleTexSize(cfg.Particles)
	var err error
	if s.positions, err = s.adopt(res.Positions, pw, ph, "positions"); err != nil {
		s.Dispose()
		return nil, err
	}
	if s.forces, err = s.adopt(res.Forces, pw, ph, "forces"); err != nil {
		s.Dispose()
		return nil, err
	}

	for _, lv := range cfg.Levels {
		var m device.MomentSet
		if m.A0, err = s.alloc(lv.TexWidth(), lv.TexHeight()); err != nil {
			s.Dispose()
			return nil, err
		}
		if m.A1, err = s.alloc(lv.TexWidth(), lv.TexHeight()); err != nil {
			s.Dispose()
			return nil, err
		}
		if m.A2, err = s.alloc(lv.TexWidth(), lv.TexHeight()); err != nil {
			s.Dispose()
			return nil, err
		}
		s.moments = append(s.moments, m)

		var occ *device.Texture
		if cfg.Occupancy {
			if occ, err = s.alloc(lv.TexWidth(), lv.TexHeight()); err != nil {
				s.Dispose()
				return nil, err
			}
		}
		s.occupancy = append(s.occupancy, occ)
	}

	return s, nil
}

func (s *Solver) adopt(slot Slot, w, h int, what string) (*device.Texture, error) {
	if slot.borrowed {
		if slot.tex == nil {
			return nil, fmt.Errorf("%w: borrowed %s is nil", ErrMissingResource, what)
		}
		if slot.tex.Texels() < w*h {
			return nil, fmt.Errorf("%w: %s holds %d texels, need %d",
				ErrTextureSize, what, slot.tex.Texels(), w*h)
		}
		return slot.tex, nil
	}
	return s.alloc(w, h)
}

func (s *Solver) alloc(w, h int) (*device.Texture, error) {
	t, err := s.backend.NewTexture(w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingResource, err)
	}
	s.owned = append(s.owned, t)
	return t, nil
}

// Positions exposes the particle array: one slot per particle holding
// (x, y, z, mass). Slots with non-positive mass are ignored by every pass.
func (s *Solver) Positions() *device.Texture { return s.positions }

// Forces exposes the output array written by Traverse.
func (s *Solver) Forces() *device.Texture { return s.forces }

// Moments exposes one level's moment set, finest first.
func (s *Solver) Moments(level int) device.MomentSet { return s.moments[level] }

// Occupancy exposes one level's mask, or nil when masks are disabled.
func (s *Solver) Occupancy(level int) *device.Texture { return s.occupancy[level] }

// Bounds is the padded world box from the last reduction.
func (s *Solver) Bounds() geom.Bounds { return s.bounds }

// Config returns the construction-time configuration.
func (s *Solver) Config() Config { return s.cfg }

// Name implements the force-provider contract.
func (s *Solver) Name() string { return "octree" }

// ReduceBounds recomputes the world box from the current positions.
// When no particle carries mass the solver falls back to a default box so
// the remaining passes stay well defined.
func (s *Solver) ReduceBounds() (geom.Bounds, error) {
	if s.disposed {
		return geom.Bounds{}, ErrDisposed
	}
	b, err := s.backend.ReduceBounds(s.positions)
	if err != nil {
		return geom.Bounds{}, err
	}
	if !b.Valid() {
		b = geom.DefaultBounds()
	}
	s.bounds = b.Pad(boundsMargin)
	return s.bounds, nil
}

// SetBounds installs an explicit world box, bypassing reduction.
func (s *Solver) SetBounds(b geom.Bounds) {
	s.bounds = b
}

// Aggregate deposits all particles into the finest level's moments.
func (s *Solver) Aggregate() error {
	if s.disposed {
		return ErrDisposed
	}
	if !s.bounds.Valid() {
		return ErrNoBounds
	}
	return s.backend.Aggregate(s.positions, s.bounds, s.cfg.Levels[0], s.moments[0])
}

// BuildPyramid chains every level transition, summing 8 children into each
// parent voxel, and refreshes the occupancy masks when enabled.
func (s *Solver) BuildPyramid() error {
	if s.disposed {
		return ErrDisposed
	}
	for i := 1; i < len(s.cfg.Levels); i++ {
		err := s.backend.BuildPyramid(
			s.moments[i-1], s.cfg.Levels[i-1],
			s.moments[i], s.cfg.Levels[i])
		if err != nil {
			return err
		}
	}
	if s.cfg.Occupancy {
		for i, lv := range s.cfg.Levels {
			if err := s.backend.BuildOccupancy(s.moments[i], lv, s.occupancy[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Traverse evaluates per-particle forces over the whole pyramid.
func (s *Solver) Traverse() error {
	if s.disposed {
		return ErrDisposed
	}
	if !s.bounds.Valid() {
		return ErrNoBounds
	}
	return s.backend.Traverse(s.positions, s.bounds, s.cfg.Levels, s.moments,
		s.occupancy, s.params(), s.forces)
}

func (s *Solver) params() device.TraverseParams {
	return device.TraverseParams{
		Theta:        s.cfg.Theta,
		G:            s.cfg.G,
		Softening:    s.cfg.Softening,
		UseOccupancy: s.cfg.Occupancy,
	}
}

// Step runs the full pipeline in its required order.
func (s *Solver) Step() error {
	if _, err := s.ReduceBounds(); err != nil {
		return err
	}
	if err := s.Aggregate(); err != nil {
		return err
	}
	if err := s.BuildPyramid(); err != nil {
		return err
	}
	return s.Traverse()
}

// Accelerations implements forces.Provider against caller-supplied arrays:
// the pipeline runs with pos as input and dst as output while the moment
// pyramid stays internal. pos and dst must match the configured slot count.
func (s *Solver) Accelerations(pos, dst *device.Texture) error {
	if s.disposed {
		return ErrDisposed
	}
	if pos == nil || dst == nil {
		return ErrMissingResource
	}

	b, err := s.backend.ReduceBounds(pos)
	if err != nil {
		return err
	}
	if !b.Valid() {
		b = geom.DefaultBounds()
	}
	s.bounds = b.Pad(boundsMargin)

	if err := s.backend.Aggregate(pos, s.bounds, s.cfg.Levels[0], s.moments[0]); err != nil {
		return err
	}
	for i := 1; i < len(s.cfg.Levels); i++ {
		err := s.backend.BuildPyramid(
			s.moments[i-1], s.cfg.Levels[i-1],
			s.moments[i], s.cfg.Levels[i])
		if err != nil {
			return err
		}
	}
	if s.cfg.Occupancy {
		for i, lv := range s.cfg.Levels {
			if err := s.backend.BuildOccupancy(s.moments[i], lv, s.occupancy[i]); err != nil {
				return err
			}
		}
	}
	return s.backend.Traverse(pos, s.bounds, s.cfg.Levels, s.moments,
		s.occupancy, s.params(), dst)
}

// Dispose releases every owned texture. Borrowed textures are left alone.
// Safe to call repeatedly; never panics.
func (s *Solver) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for _, t := range s.owned {
		s.backend.Free(t)
	}
	s.owned = nil
	s.moments = nil
	s.occupancy = nil
}
