// Package export writes particle snapshots to standalone SVG files.
package export

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

// SnapshotSVG renders the occupied slots of pos as an orthographic XY
// projection. Dot area scales with the cube root of mass so heavy bodies
// stand out without drowning the field.
func SnapshotSVG(pos *device.Texture, b geom.Bounds, size int) string {
	if pos == nil || !b.Valid() || size < 1 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g fill="#7fd4ff" fill-opacity="0.8">
`, size, size, size, size))

	center := b.Center()
	scale := 0.0
	if e := b.MaxExtent(); e > 0 {
		scale = float64(size) / e * 0.9
	}

	var maxMass float32
	for i := 0; i < pos.Texels(); i++ {
		if m := pos.At(i)[3]; m > maxMass {
			maxMass = m
		}
	}
	if maxMass <= 0 {
		return ""
	}

	half := float64(size) / 2
	for i := 0; i < pos.Texels(); i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		x := (float64(s[0])-center.X)*scale + half
		y := half - (float64(s[1])-center.Y)*scale
		r := 0.6 + 2.4*math.Cbrt(float64(s[3]/maxMass))
		sb.WriteString(fmt.Sprintf("<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", x, y, r))
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// WriteSnapshot renders pos to path.
func WriteSnapshot(path string, pos *device.Texture, b geom.Bounds, size int) error {
	svg := SnapshotSVG(pos, b, size)
	if svg == "" {
		return fmt.Errorf("export: nothing to render")
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
