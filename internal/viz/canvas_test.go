package viz

import (
	"strings"
	"testing"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

func TestCanvasSetAndClear(t *testing.T) {
	c := NewCanvas(4, 2)
	c.Set(0, 0)
	if c.Grid[0][0] != 0x2801 {
		t.Errorf("top-left dot = %x", c.Grid[0][0])
	}
	c.Set(1, 3)
	if c.Grid[0][0] != 0x2801|0x80 {
		t.Errorf("bottom-right dot = %x", c.Grid[0][0])
	}
	// Out of range must be dropped, not wrap.
	c.Set(-1, 0)
	c.Set(100, 100)

	c.Clear()
	for _, row := range c.Grid {
		for _, r := range row {
			if r != 0x2800 {
				t.Fatalf("clear left %x", r)
			}
		}
	}
}

func TestCanvasLineEndpoints(t *testing.T) {
	c := NewCanvas(8, 8)
	c.Line(0, 0, 15, 31)
	if c.Grid[0][0] == 0x2800 {
		t.Error("line start not drawn")
	}
	if c.Grid[7][7] == 0x2800 {
		t.Error("line end not drawn")
	}
}

func TestScatterDrawsOccupiedSlots(t *testing.T) {
	cpu := device.NewCPU()
	pos, _ := cpu.NewTexture(2, 1)
	pos.Set(0, [4]float32{0, 0, 0, 1})

	c := NewCanvas(20, 10)
	Scatter(c, NewCamera(), pos, geom.DefaultBounds())

	if !strings.ContainsFunc(c.String(), func(r rune) bool { return r > 0x2800 && r != '\n' }) {
		t.Error("scatter drew nothing")
	}
}

func TestScatterInvalidBoundsIsEmptyCanvas(t *testing.T) {
	cpu := device.NewCPU()
	pos, _ := cpu.NewTexture(2, 1)
	pos.Set(0, [4]float32{0, 0, 0, 1})

	c := NewCanvas(10, 5)
	c.Set(3, 3)
	Scatter(c, NewCamera(), pos, geom.Bounds{})

	for _, row := range c.Grid {
		for _, r := range row {
			if r != 0x2800 {
				t.Fatal("invalid bounds should clear and draw nothing")
			}
		}
	}
}
