package forces

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/dsputils"
	"github.com/mjibson/go-dsp/fft"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
)

// PM is the particle-mesh spectral solver: nearest-grid-point mass deposit,
// FFT Poisson solve, finite-difference gradient, gather. Good far-field
// accuracy at O(N + n^3 log n); near-field structure below one mesh cell is
// smoothed away, which is what the near-field pass exists to restore.
type PM struct {
	GridSize int
	G        float64
	// BoxPad fractionally enlarges the particle box so the periodic
	// images of the FFT stay separated from the live mass.
	BoxPad float64
}

func NewPM(gridSize int, g float64) *PM {
	return &PM{GridSize: gridSize, G: g, BoxPad: 0.5}
}

func (p *PM) Name() string { return "pm" }

func (p *PM) Accelerations(pos, dst *device.Texture) error {
	if pos == nil || dst == nil {
		return fmt.Errorf("forces: pm needs position and force textures")
	}
	n := p.GridSize
	if n < 4 || n&(n-1) != 0 {
		return fmt.Errorf("forces: pm grid size %d must be a power of two >= 4", n)
	}

	b := particleBox(pos)
	if !b.Valid() {
		dst.Clear()
		return nil
	}
	b = b.Pad(p.BoxPad)
	box := b.MaxExtent()
	cell := box / float64(n)
	cellVol := cell * cell * cell

	// NGP deposit of mass density.
	rho := make([]complex128, n*n*n)
	slots := pos.Texels()
	for i := 0; i < slots; i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		ix, iy, iz := meshIndex(s, b, cell, n)
		rho[(iz*n+iy)*n+ix] += complex(float64(s[3])/cellVol, 0)
	}

	// Poisson solve in k-space: phi_k = -4 pi G rho_k / k^2.
	rhoK := fft.FFTN(dsputils.MakeMatrix(rho, []int{n, n, n}))
	for iz := 0; iz < n; iz++ {
		kz := waveNumber(iz, n, box)
		for iy := 0; iy < n; iy++ {
			ky := waveNumber(iy, n, box)
			for ix := 0; ix < n; ix++ {
				kx := waveNumber(ix, n, box)
				k2 := kx*kx + ky*ky + kz*kz
				idx := []int{iz, iy, ix}
				if k2 == 0 {
					rhoK.SetValue(0, idx)
					continue
				}
				v := rhoK.Value(idx)
				rhoK.SetValue(v*complex(-4*math.Pi*p.G/k2, 0), idx)
			}
		}
	}
	phiM := fft.IFFTN(rhoK)

	phi := make([]float64, n*n*n)
	for iz := 0; iz < n; iz++ {
		for iy := 0; iy < n; iy++ {
			for ix := 0; ix < n; ix++ {
				phi[(iz*n+iy)*n+ix] = real(phiM.Value([]int{iz, iy, ix}))
			}
		}
	}

	// Central-difference gradient, gathered at each particle's cell.
	inv2h := 1.0 / (2 * cell)
	at := func(ix, iy, iz int) float64 {
		ix = clampMesh(ix, n)
		iy = clampMesh(iy, n)
		iz = clampMesh(iz, n)
		return phi[(iz*n+iy)*n+ix]
	}
	for i := 0; i < slots; i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			dst.Set(i, [4]float32{})
			continue
		}
		ix, iy, iz := meshIndex(s, b, cell, n)
		ax := -(at(ix+1, iy, iz) - at(ix-1, iy, iz)) * inv2h
		ay := -(at(ix, iy+1, iz) - at(ix, iy-1, iz)) * inv2h
		az := -(at(ix, iy, iz+1) - at(ix, iy, iz-1)) * inv2h
		dst.Set(i, [4]float32{float32(ax), float32(ay), float32(az), 0})
	}

	return nil
}

func particleBox(pos *device.Texture) geom.Bounds {
	var b geom.Bounds
	for i := 0; i < pos.Texels(); i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		b = b.AddPoint(geom.Vec3{X: float64(s[0]), Y: float64(s[1]), Z: float64(s[2])})
	}
	return b
}

func meshIndex(s [4]float32, b geom.Bounds, cell float64, n int) (ix, iy, iz int) {
	ix = clampMesh(int(math.Floor((float64(s[0])-b.Min.X)/cell)), n)
	iy = clampMesh(int(math.Floor((float64(s[1])-b.Min.Y)/cell)), n)
	iz = clampMesh(int(math.Floor((float64(s[2])-b.Min.Z)/cell)), n)
	return
}

func clampMesh(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func waveNumber(i, n int, box float64) float64 {
	if i > n/2 {
		i -= n
	}
	return 2 * math.Pi * float64(i) / box
}
