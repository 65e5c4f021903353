package device

// Texture is a W x H RGBA float32 image. It backs both particle arrays
// (one slot per particle, row-major) and packed voxel grids. The host pixel
// store is authoritative for the CPU backend; hardware backends keep a GPU
// object in sync through Upload and Download.
type Texture struct {
	W, H int
	Pix  []float32 // RGBA interleaved, len = W*H*4

	handle uint32 // GPU buffer name, unused by the CPU backend
	freed  bool
}

// Texels is the texel count of the texture.
func (t *Texture) Texels() int { return t.W * t.H }

// At returns the RGBA value of a linear texel index.
func (t *Texture) At(texel int) [4]float32 {
	i := texel * 4
	return [4]float32{t.Pix[i], t.Pix[i+1], t.Pix[i+2], t.Pix[i+3]}
}

// Set overwrites the RGBA value of a linear texel index.
func (t *Texture) Set(texel int, v [4]float32) {
	i := texel * 4
	t.Pix[i], t.Pix[i+1], t.Pix[i+2], t.Pix[i+3] = v[0], v[1], v[2], v[3]
}

// Clear zeroes every channel.
func (t *Texture) Clear() {
	for i := range t.Pix {
		t.Pix[i] = 0
	}
}

// MomentSet groups the three moment attachments of one octree level:
// A0 monopole (m*x, m*y, m*z, m), A1 (m*x2, m*y2, m*z2, m*xy) and
// A2 (m*xz, m*yz, 0, 0) second moments.
type MomentSet struct {
	A0, A1, A2 *Texture
}

// ParticleTexSize returns the 2D extent used to store n particle slots,
// row-major. The last row may be partially used; unused slots carry
// non-positive mass and are ignored by every pass.
func ParticleTexSize(n int) (w, h int) {
	if n <= 0 {
		return 1, 1
	}
	w = 1
	for w*w < n {
		w *= 2
	}
	h = (n + w - 1) / w
	return w, h
}

// SlotCoord returns the 2D coordinate of particle i in a texture of width w.
func SlotCoord(i, w int) (x, y int) { return i % w, i / w }
