package octree

import (
	"errors"
	"testing"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/voxel"
)

// tinyBackend caps the level budget so the budget check is exercisable
// with reasonable grid sizes.
type tinyBackend struct {
	*device.CPU
}

func (tinyBackend) Limits() device.Limits {
	return device.Limits{MaxLevels: 2, MaxTextureSize: 1 << 14}
}

func TestNewRejectsBadConfig(t *testing.T) {
	backend := device.NewCPU()
	levels := threeLevels()

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"zero particles", Config{Particles: 0, Levels: levels}, ErrBadConfig},
		{"no levels", Config{Particles: 4}, ErrBadConfig},
		{"negative theta", Config{Particles: 4, Levels: levels, Theta: -1}, ErrBadConfig},
		{"broken chain", Config{Particles: 4, Levels: []voxel.LevelSpec{
			{GridSize: 16, SlicesPerRow: 4},
			{GridSize: 4, SlicesPerRow: 2},
		}}, ErrBadConfig},
		{"bad tiling", Config{Particles: 4, Levels: []voxel.LevelSpec{
			{GridSize: 8, SlicesPerRow: 3},
		}}, ErrBadConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(backend, tt.cfg, Resources{}); !errors.Is(err, tt.want) {
				t.Errorf("New = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRejectsLevelBudget(t *testing.T) {
	cfg := Config{Particles: 4, Levels: threeLevels()}
	_, err := New(tinyBackend{device.NewCPU()}, cfg, Resources{})
	if !errors.Is(err, ErrLevelBudget) {
		t.Errorf("New = %v, want %v", err, ErrLevelBudget)
	}
}

func TestNewRejectsNilBorrow(t *testing.T) {
	cfg := Config{Particles: 4, Levels: threeLevels()}
	_, err := New(device.NewCPU(), cfg, Resources{Positions: Borrow(nil)})
	if !errors.Is(err, ErrMissingResource) {
		t.Errorf("New = %v, want %v", err, ErrMissingResource)
	}
}

func TestNewRejectsUndersizedBorrow(t *testing.T) {
	backend := device.NewCPU()
	small, err := backend.NewTexture(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Particles: 100, Levels: threeLevels()}
	_, err = New(backend, cfg, Resources{Positions: Borrow(small)})
	if !errors.Is(err, ErrTextureSize) {
		t.Errorf("New = %v, want %v", err, ErrTextureSize)
	}
}

func TestAggregateBeforeBounds(t *testing.T) {
	s := newSolver(t, Config{Particles: 4, Levels: threeLevels()})
	if err := s.Aggregate(); !errors.Is(err, ErrNoBounds) {
		t.Errorf("Aggregate = %v, want %v", err, ErrNoBounds)
	}
	if err := s.Traverse(); !errors.Is(err, ErrNoBounds) {
		t.Errorf("Traverse = %v, want %v", err, ErrNoBounds)
	}
}

func TestDisposeReleasesOwnedOnly(t *testing.T) {
	backend := device.NewCPU()
	pos, err := backend.NewTexture(2, 2)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{Particles: 4, Levels: threeLevels()}
	s, err := New(backend, cfg, Resources{Positions: Borrow(pos)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	owned := s.Moments(0).A0
	forces := s.Forces()

	s.Dispose()
	s.Dispose() // idempotent

	if pos.Pix == nil {
		t.Error("borrowed positions texture was freed")
	}
	if owned.Pix != nil {
		t.Error("owned moment texture was not freed")
	}
	if forces.Pix != nil {
		t.Error("owned forces texture was not freed")
	}

	if err := s.Aggregate(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Aggregate after dispose = %v, want %v", err, ErrDisposed)
	}
}

func TestReduceBoundsFallback(t *testing.T) {
	s := newSolver(t, Config{Particles: 4, Levels: threeLevels()})
	// No slot carries mass: the solver must fall back to a usable box.
	b, err := s.ReduceBounds()
	if err != nil {
		t.Fatalf("ReduceBounds: %v", err)
	}
	if !b.Valid() || b.MaxExtent() <= 0 {
		t.Errorf("fallback bounds unusable: %v", b)
	}
}

func TestReduceBoundsIdempotent(t *testing.T) {
	s := newSolver(t, Config{Particles: 16, Levels: threeLevels()})
	scatterParticles(s, 16, 3.0, 7)

	b1, err := s.ReduceBounds()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := s.ReduceBounds()
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Errorf("bounds changed across identical reductions: %v vs %v", b1, b2)
	}
}
