package device

import (
	"github.com/okanon/octograv/internal/geom"
)

// reduceBlock is the input footprint of one reduction texel per pass.
const reduceBlock = 4

// minmax is one intermediate reduction texel: a candidate box plus a
// validity flag. Invalid entries saw no positive-mass slot and are skipped,
// never zero-padded, so empty regions cannot bias the box toward the origin.
type minmax struct {
	min, max [3]float32
	valid    bool
}

func (c *CPU) ReduceBounds(pos *Texture) (geom.Bounds, error) {
	if err := checkTexture(pos, "positions"); err != nil {
		return geom.Bounds{}, err
	}

	cur := c.reduceFirst(pos)
	w := (pos.W + reduceBlock - 1) / reduceBlock
	h := (pos.H + reduceBlock - 1) / reduceBlock

	for w > 1 || h > 1 {
		nw := (w + reduceBlock - 1) / reduceBlock
		nh := (h + reduceBlock - 1) / reduceBlock
		next := make([]minmax, nw*nh)

		c.parallel(nw*nh, func(lo, hi int) {
			for o := lo; o < hi; o++ {
				ox, oy := o%nw, o/nw
				acc := minmax{}
				for dy := 0; dy < reduceBlock; dy++ {
					for dx := 0; dx < reduceBlock; dx++ {
						x := ox*reduceBlock + dx
						y := oy*reduceBlock + dy
						if x >= w || y >= h {
							continue
						}
						acc = acc.merge(cur[y*w+x])
					}
				}
				next[o] = acc
			}
		})

		cur, w, h = next, nw, nh
	}

	root := cur[0]
	if !root.valid {
		return geom.Bounds{}, nil
	}
	return geom.NewBounds(
		geom.Vec3{X: float64(root.min[0]), Y: float64(root.min[1]), Z: float64(root.min[2])},
		geom.Vec3{X: float64(root.max[0]), Y: float64(root.max[1]), Z: float64(root.max[2])},
	), nil
}

// reduceFirst folds the positions texture into the first intermediate
// level, dropping slots with non-positive mass.
func (c *CPU) reduceFirst(pos *Texture) []minmax {
	w := (pos.W + reduceBlock - 1) / reduceBlock
	h := (pos.H + reduceBlock - 1) / reduceBlock
	out := make([]minmax, w*h)

	c.parallel(w*h, func(lo, hi int) {
		for o := lo; o < hi; o++ {
			ox, oy := o%w, o/w
			acc := minmax{}
			for dy := 0; dy < reduceBlock; dy++ {
				for dx := 0; dx < reduceBlock; dx++ {
					x := ox*reduceBlock + dx
					y := oy*reduceBlock + dy
					if x >= pos.W || y >= pos.H {
						continue
					}
					p := pos.At(y*pos.W + x)
					if p[3] <= 0 {
						continue
					}
					acc = acc.merge(minmax{
						min:   [3]float32{p[0], p[1], p[2]},
						max:   [3]float32{p[0], p[1], p[2]},
						valid: true,
					})
				}
			}
			out[o] = acc
		}
	})
	return out
}

func (a minmax) merge(b minmax) minmax {
	if !b.valid {
		return a
	}
	if !a.valid {
		return b
	}
	for i := 0; i < 3; i++ {
		if b.min[i] < a.min[i] {
			a.min[i] = b.min[i]
		}
		if b.max[i] > a.max[i] {
			a.max[i] = b.max[i]
		}
	}
	return a
}
