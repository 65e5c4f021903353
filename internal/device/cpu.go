package device

import (
	"fmt"
	"runtime"
	"sync"
)

// Kernel epsilon guards. Voxels below epsMass are treated as empty;
// epsDist keeps the acceptance ratio finite at zero separation.
const (
	epsMass = 1e-10
	epsDist = 1e-9
)

// CPU is the always-available backend. Kernels run worker-parallel over
// chunked index ranges; scatter passes accumulate into per-worker grids
// that are merged once all workers finish, so voxel sums are race-free.
type CPU struct {
	workers int
}

func NewCPU() *CPU {
	return &CPU{workers: runtime.NumCPU()}
}

func (c *CPU) Name() string    { return "cpu" }
func (c *CPU) Available() bool { return true }
func (c *CPU) Cleanup()        {}

func (c *CPU) Limits() Limits {
	return Limits{
		MaxLevels:      16,
		MaxTextureSize: 1 << 14,
	}
}

func (c *CPU) NewTexture(w, h int) (*Texture, error) {
	max := c.Limits().MaxTextureSize
	if w < 1 || h < 1 || w > max || h > max {
		return nil, fmt.Errorf("device: texture extent %dx%d out of range", w, h)
	}
	return &Texture{W: w, H: h, Pix: make([]float32, w*h*4)}, nil
}

// Upload and Download are no-ops: the host mirror is the storage.
func (c *CPU) Upload(t *Texture) error   { return nil }
func (c *CPU) Download(t *Texture) error { return nil }

func (c *CPU) Free(t *Texture) {
	if t == nil || t.freed {
		return
	}
	t.freed = true
	t.Pix = nil
}

// parallel splits [0, n) across workers. Small ranges run inline.
func (c *CPU) parallel(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if n < 4096 || c.workers < 2 {
		fn(0, n)
		return
	}

	chunk := (n + c.workers - 1) / c.workers
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

func checkTexture(t *Texture, what string) error {
	if t == nil || t.Pix == nil {
		return fmt.Errorf("device: missing required input texture: %s", what)
	}
	return nil
}
