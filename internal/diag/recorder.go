package diag

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/okanon/octograv/internal/sim"
)

// StepRecord is one row of the per-step telemetry CSV.
type StepRecord struct {
	Step      int     `csv:"step"`
	Time      float64 `csv:"time"`
	Particles int     `csv:"particles"`
	Extent    float64 `csv:"extent"`
	MeanSpeed float64 `csv:"mean_speed"`
	MaxSpeed  float64 `csv:"max_speed"`
	MaxAccel  float64 `csv:"max_accel"`
}

// Recorder observes simulation steps and appends telemetry rows to a CSV
// file. A nil Recorder is a no-op, so callers can wire it unconditionally.
type Recorder struct {
	file          *os.File
	every         int
	headerWritten bool
}

// NewRecorder opens dir/telemetry.csv for writing. every controls sampling:
// a row is written each time step%every == 0. An empty dir disables
// recording and returns nil.
func NewRecorder(dir string, every int) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if every < 1 {
		every = 1
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("diag: creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, fmt.Errorf("diag: creating telemetry.csv: %w", err)
	}
	return &Recorder{file: f, every: every}, nil
}

func (r *Recorder) OnStep(s sim.Snapshot) {
	if r == nil || s.Step%r.every != 0 {
		return
	}

	speeds := Summarize(Magnitudes(s.Pos, s.Vel))
	accels := Summarize(Magnitudes(s.Pos, s.Acc))

	rec := StepRecord{
		Step:      s.Step,
		Time:      s.Time,
		Particles: speeds.Count,
		MeanSpeed: speeds.Mean,
		MaxSpeed:  speeds.Max,
		MaxAccel:  accels.Max,
	}
	if s.Bounds.Valid() {
		rec.Extent = s.Bounds.MaxExtent()
	}
	// Write errors surface on Close; a failed row must not stop the run.
	_ = r.write(rec)
}

func (r *Recorder) write(rec StepRecord) error {
	rows := []StepRecord{rec}
	if !r.headerWritten {
		r.headerWritten = true
		return gocsv.Marshal(rows, r.file)
	}
	return gocsv.MarshalWithoutHeaders(rows, r.file)
}

// Close flushes and closes the telemetry file.
func (r *Recorder) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}
