// Package geom provides the small vector and bounding-box types shared by
// the gravity pipeline.
package geom

import "math"

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(w Vec3) Vec3      { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }
func (v Vec3) Sub(w Vec3) Vec3      { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(w Vec3) float64   { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }
func (v Vec3) Norm() float64        { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Min(w Vec3) Vec3 {
	return Vec3{math.Min(v.X, w.X), math.Min(v.Y, w.Y), math.Min(v.Z, w.Z)}
}

func (v Vec3) Max(w Vec3) Vec3 {
	return Vec3{math.Max(v.X, w.X), math.Max(v.Y, w.Y), math.Max(v.Z, w.Z)}
}

// Bounds is an axis-aligned box. The zero value is an empty box that any
// point or box can be unioned into.
type Bounds struct {
	Min, Max Vec3
	valid    bool
}

// NewBounds returns the box spanning min..max.
func NewBounds(min, max Vec3) Bounds {
	return Bounds{Min: min, Max: max, valid: true}
}

// DefaultBounds is the fallback box used when no particle carries mass and
// a bounds reduction cannot produce a meaningful result.
func DefaultBounds() Bounds {
	return NewBounds(Vec3{-1, -1, -1}, Vec3{1, 1, 1})
}

func (b Bounds) Valid() bool { return b.valid }

func (b Bounds) Extent() Vec3 { return b.Max.Sub(b.Min) }

// MaxExtent is the longest axis of the box. Voxel grids built over the box
// use cubic cells of size MaxExtent/gridSize.
func (b Bounds) MaxExtent() float64 {
	e := b.Extent()
	return math.Max(e.X, math.Max(e.Y, e.Z))
}

func (b Bounds) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// AddPoint grows the box to contain p.
func (b Bounds) AddPoint(p Vec3) Bounds {
	if !b.valid {
		return NewBounds(p, p)
	}
	return Bounds{Min: b.Min.Min(p), Max: b.Max.Max(p), valid: true}
}

// Pad grows the box by frac of its max extent on every side, with a floor
// so a degenerate (single point) box still gets nonzero volume. Bounds fed
// to the aggregator are padded so boundary particles do not clamp onto the
// box faces.
func (b Bounds) Pad(frac float64) Bounds {
	if !b.valid {
		return b
	}
	m := b.MaxExtent() * frac
	if m < 1e-6 {
		m = 1e-6
	}
	d := Vec3{m, m, m}
	return Bounds{Min: b.Min.Sub(d), Max: b.Max.Add(d), valid: true}
}

func (b Bounds) Contains(p Vec3) bool {
	return b.valid &&
		p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}
