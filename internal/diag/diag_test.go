package diag

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/sim"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, 5})
	if s.Count != 5 || s.Mean != 3 || s.Min != 1 || s.Max != 5 || s.Median != 3 {
		t.Errorf("summary = %+v", s)
	}
	if math.Abs(s.Std-math.Sqrt(2.5)) > 1e-12 {
		t.Errorf("std = %v", s.Std)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if s := Summarize(nil); s != (Summary{}) {
		t.Errorf("empty sample produced %+v", s)
	}
}

func TestMagnitudesSkipPadding(t *testing.T) {
	c := device.NewCPU()
	pos, _ := c.NewTexture(3, 1)
	vel, _ := c.NewTexture(3, 1)
	pos.Set(0, [4]float32{0, 0, 0, 1})
	pos.Set(2, [4]float32{0, 0, 0, 2})
	vel.Set(0, [4]float32{3, 4, 0, 0})
	vel.Set(1, [4]float32{99, 0, 0, 0}) // padding slot, must be ignored
	vel.Set(2, [4]float32{0, 0, 1, 0})

	got := Magnitudes(pos, vel)
	if len(got) != 2 || got[0] != 5 || got[1] != 1 {
		t.Errorf("magnitudes = %v", got)
	}
}

func TestRecorderDisabled(t *testing.T) {
	r, err := NewRecorder("", 1)
	if err != nil || r != nil {
		t.Fatalf("empty dir should disable recording, got %v, %v", r, err)
	}
	// Nil receiver must be safe.
	r.OnStep(sim.Snapshot{})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderWritesSampledRows(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 2)
	if err != nil {
		t.Fatal(err)
	}

	c := device.NewCPU()
	pos, _ := c.NewTexture(2, 1)
	vel, _ := c.NewTexture(2, 1)
	acc, _ := c.NewTexture(2, 1)
	pos.Set(0, [4]float32{0, 0, 0, 1})
	vel.Set(0, [4]float32{1, 0, 0, 0})

	for i := 0; i < 4; i++ {
		r.OnStep(sim.Snapshot{Pos: pos, Vel: vel, Acc: acc, Step: i, Time: float64(i)})
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Header plus steps 0 and 2.
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "step,") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,") || !strings.HasPrefix(lines[2], "2,") {
		t.Errorf("unexpected sampling: %q", lines[1:])
	}
}
