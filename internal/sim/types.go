package sim

import (
	"fmt"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

// Snapshot is the per-step view handed to metrics and observers. The
// textures are the live simulation buffers; callers must not mutate them.
type Snapshot struct {
	Pos    *device.Texture
	Vel    *device.Texture
	Acc    *device.Texture
	Bounds geom.Bounds
	Time   float64
	Step   int
}

// Metric accumulates a scalar over a run.
type Metric interface {
	Name() string
	Observe(s Snapshot)
	Value() float64
	Reset()
}

// Observer is called once per step before the state advances.
type Observer interface {
	OnStep(s Snapshot)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(s Snapshot)

func (f ObserverFunc) OnStep(s Snapshot) { f(s) }

type Config struct {
	Dt       float64
	Duration float64
	// SortEvery re-sorts particles along the Hilbert curve every N steps
	// so spatially close particles stay close in the texture. 0 disables.
	SortEvery int
	// ValidateState stops the run when a position or velocity goes
	// non-finite instead of silently integrating garbage.
	ValidateState bool
	Seed          int64
}

type Result struct {
	StepsTaken int
	Metrics    map[string]float64
	Errors     []error
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("sim: step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
