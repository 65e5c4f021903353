package viz

import (
	"math"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

// Camera is a rotate-and-project view onto the particle cloud. Rotation is
// applied about the world axes, then a perspective divide against a fixed
// eye distance.
type Camera struct {
	RotX, RotY float64
	Zoom       float64
	distance   float64
}

func NewCamera() *Camera {
	return &Camera{Zoom: 1.0, distance: 4.0}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(16, c.Zoom*1.25) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.05, c.Zoom/1.25) }

func (c *Camera) rotate(p geom.Vec3) geom.Vec3 {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	return p
}

// project maps a unit-cube point to canvas sub-pixels. ok is false when the
// point lands behind the eye or off-screen.
func (c *Camera) project(p geom.Vec3, sw, sh int) (x, y int, ok bool) {
	r := c.rotate(p).Scale(c.Zoom)
	if r.Z >= c.distance-0.1 {
		return 0, 0, false
	}
	scale := c.distance / (c.distance - r.Z)
	half := float64(min(sw, sh)) / 2.2
	x = int(r.X*scale*half) + sw/2
	y = int(-r.Y*scale*half) + sh/2
	return x, y, x >= 0 && x < sw && y >= 0 && y < sh
}

// Scatter draws the occupied slots of pos onto the canvas, normalized so
// the given bounds fill the view, plus the bounding box edges for
// orientation.
func Scatter(c *Canvas, cam *Camera, pos *device.Texture, b geom.Bounds) {
	c.Clear()
	if pos == nil || !b.Valid() {
		return
	}
	sw, sh := c.Width*2, c.Height*4
	center := b.Center()
	inv := 1.0
	if e := b.MaxExtent(); e > 0 {
		inv = 2.0 / e
	}

	drawBox(c, cam, b, center, inv, sw, sh)

	for i := 0; i < pos.Texels(); i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		p := geom.Vec3{
			X: (float64(s[0]) - center.X) * inv,
			Y: (float64(s[1]) - center.Y) * inv,
			Z: (float64(s[2]) - center.Z) * inv,
		}
		if x, y, ok := cam.project(p, sw, sh); ok {
			c.Set(x, y)
		}
	}
}

var boxEdges = [12][2]int{
	{0, 1}, {1, 3}, {3, 2}, {2, 0},
	{4, 5}, {5, 7}, {7, 6}, {6, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func drawBox(c *Canvas, cam *Camera, b geom.Bounds, center geom.Vec3, inv float64, sw, sh int) {
	var corners [8]geom.Vec3
	for i := range corners {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		corners[i] = p.Sub(center).Scale(inv)
	}
	for _, e := range boxEdges {
		x0, y0, ok0 := cam.project(corners[e[0]], sw, sh)
		x1, y1, ok1 := cam.project(corners[e[1]], sw, sh)
		if ok0 && ok1 {
			c.Line(x0, y0, x1, y1)
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
