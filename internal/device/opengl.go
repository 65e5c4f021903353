//go:build gl

package device

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/voxel"
)

// fixedScale is the fixed-point quantum of the aggregation atomics.
// Moments accumulate as int32 in units of 1/fixedScale, which caps the
// representable per-voxel sum at about 32768 mass units.
const fixedScale = 1 << 16

const glWorkGroup = 256

// OpenGL runs every pass as a compute shader over SSBO-backed textures.
// A current GL context is required; call InitContext once one exists.
type OpenGL struct {
	initialized bool

	progReduceFirst uint32
	progReduceStep  uint32
	progAggregate   uint32
	progDecode      uint32
	progPyramid     uint32
	progOccupancy   uint32
	progTraverse    uint32
}

func NewOpenGL() *OpenGL { return &OpenGL{} }

// InitContext compiles the pass programs against the calling goroutine's
// current GL context.
func (o *OpenGL) InitContext() error {
	if err := gl.Init(); err != nil {
		return fmt.Errorf("device: opengl init: %w", err)
	}

	progs := []struct {
		dst *uint32
		src string
	}{
		{&o.progReduceFirst, shaderReduceFirst},
		{&o.progReduceStep, shaderReduceStep},
		{&o.progAggregate, shaderAggregate},
		{&o.progDecode, shaderDecode},
		{&o.progPyramid, shaderPyramid},
		{&o.progOccupancy, shaderOccupancy},
		{&o.progTraverse, shaderTraverse},
	}
	for _, p := range progs {
		prog, err := compileComputeProgram(p.src)
		if err != nil {
			o.Cleanup()
			return err
		}
		*p.dst = prog
	}

	o.initialized = true
	return nil
}

func (o *OpenGL) Name() string {
	if o.initialized {
		return "opengl"
	}
	return "opengl (no context)"
}

func (o *OpenGL) Available() bool { return o.initialized }

func (o *OpenGL) Limits() Limits {
	return Limits{
		MaxLevels:            8,
		MaxTextureSize:       1 << 13,
		DegradedAccumulation: true,
	}
}

func (o *OpenGL) Cleanup() {
	for _, p := range []uint32{
		o.progReduceFirst, o.progReduceStep, o.progAggregate, o.progDecode,
		o.progPyramid, o.progOccupancy, o.progTraverse,
	} {
		if p != 0 {
			gl.DeleteProgram(p)
		}
	}
	o.initialized = false
}

func (o *OpenGL) NewTexture(w, h int) (*Texture, error) {
	max := o.Limits().MaxTextureSize
	if w < 1 || h < 1 || w > max || h > max {
		return nil, fmt.Errorf("device: texture extent %dx%d out of range", w, h)
	}
	t := &Texture{W: w, H: h, Pix: make([]float32, w*h*4)}
	gl.GenBuffers(1, &t.handle)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, t.handle)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(t.Pix)*4, nil, gl.DYNAMIC_DRAW)
	return t, nil
}

func (o *OpenGL) Upload(t *Texture) error {
	if err := checkTexture(t, "upload target"); err != nil {
		return err
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, t.handle)
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(t.Pix)*4, gl.Ptr(t.Pix))
	return nil
}

func (o *OpenGL) Download(t *Texture) error {
	if err := checkTexture(t, "download target"); err != nil {
		return err
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, t.handle)
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(t.Pix)*4, gl.Ptr(t.Pix))
	return nil
}

func (o *OpenGL) Free(t *Texture) {
	if t == nil || t.freed {
		return
	}
	if t.handle != 0 {
		gl.DeleteBuffers(1, &t.handle)
		t.handle = 0
	}
	t.freed = true
	t.Pix = nil
}

func (o *OpenGL) ReduceBounds(pos *Texture) (geom.Bounds, error) {
	if !o.initialized {
		return geom.Bounds{}, fmt.Errorf("device: opengl backend not initialized")
	}
	if err := o.Upload(pos); err != nil {
		return geom.Bounds{}, err
	}

	w := (pos.W + reduceBlock - 1) / reduceBlock
	h := (pos.H + reduceBlock - 1) / reduceBlock
	minA, maxA := newScratch(w*h), newScratch(w*h)
	minB, maxB := newScratch(w*h), newScratch(w*h)
	defer releaseScratch(minA, maxA, minB, maxB)

	gl.UseProgram(o.progReduceFirst)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, pos.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, minA)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, maxA)
	setInt(o.progReduceFirst, "srcW", pos.W)
	setInt(o.progReduceFirst, "srcH", pos.H)
	setInt(o.progReduceFirst, "dstW", w)
	setInt(o.progReduceFirst, "dstH", h)
	dispatch(w * h)

	src := [2]uint32{minA, maxA}
	dst := [2]uint32{minB, maxB}
	for w > 1 || h > 1 {
		nw := (w + reduceBlock - 1) / reduceBlock
		nh := (h + reduceBlock - 1) / reduceBlock

		gl.UseProgram(o.progReduceStep)
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, src[0])
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, src[1])
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, dst[0])
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 3, dst[1])
		setInt(o.progReduceStep, "srcW", w)
		setInt(o.progReduceStep, "srcH", h)
		setInt(o.progReduceStep, "dstW", nw)
		setInt(o.progReduceStep, "dstH", nh)
		dispatch(nw * nh)

		src, dst = dst, src
		w, h = nw, nh
	}

	var mn, mx [4]float32
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, src[0])
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, 16, unsafe.Pointer(&mn[0]))
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, src[1])
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, 16, unsafe.Pointer(&mx[0]))

	if mn[3] <= 0 {
		return geom.Bounds{}, nil
	}
	return geom.NewBounds(
		geom.Vec3{X: float64(mn[0]), Y: float64(mn[1]), Z: float64(mn[2])},
		geom.Vec3{X: float64(mx[0]), Y: float64(mx[1]), Z: float64(mx[2])},
	), nil
}

func (o *OpenGL) Aggregate(pos *Texture, b geom.Bounds, lv voxel.LevelSpec, dst MomentSet) error {
	if !o.initialized {
		return fmt.Errorf("device: opengl backend not initialized")
	}
	if err := checkMoments(dst, lv, "level 0"); err != nil {
		return err
	}
	if !b.Valid() {
		return fmt.Errorf("device: aggregate needs valid world bounds")
	}
	if err := o.Upload(pos); err != nil {
		return err
	}

	texels := lv.TexWidth() * lv.TexHeight()
	accum := newIntScratch(texels * 12)
	defer gl.DeleteBuffers(1, &accum)

	gl.UseProgram(o.progAggregate)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, pos.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, accum)
	setInt(o.progAggregate, "numSlots", pos.Texels())
	setInt(o.progAggregate, "gridSize", lv.GridSize)
	setInt(o.progAggregate, "slicesPerRow", lv.SlicesPerRow)
	setVec3(o.progAggregate, "boundsMin", b.Min)
	setFloat(o.progAggregate, "cellSize", float32(lv.CellSize(b)))
	setFloat(o.progAggregate, "fixedScale", fixedScale)
	dispatch(pos.Texels())

	gl.UseProgram(o.progDecode)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, accum)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, dst.A0.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, dst.A1.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 3, dst.A2.handle)
	setInt(o.progDecode, "numTexels", texels)
	setFloat(o.progDecode, "fixedScale", fixedScale)
	dispatch(texels)

	return o.downloadMoments(dst)
}

func (o *OpenGL) BuildPyramid(child MomentSet, childLv voxel.LevelSpec, parent MomentSet, parentLv voxel.LevelSpec) error {
	if !o.initialized {
		return fmt.Errorf("device: opengl backend not initialized")
	}
	if err := checkMoments(child, childLv, "child level"); err != nil {
		return err
	}
	if err := checkMoments(parent, parentLv, "parent level"); err != nil {
		return err
	}
	if childLv.GridSize != 2*parentLv.GridSize {
		return fmt.Errorf("device: pyramid step needs child grid %d = 2 x parent grid %d",
			childLv.GridSize, parentLv.GridSize)
	}

	gl.UseProgram(o.progPyramid)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, child.A0.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, child.A1.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, child.A2.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 3, parent.A0.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 4, parent.A1.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 5, parent.A2.handle)
	setInt(o.progPyramid, "childGrid", childLv.GridSize)
	setInt(o.progPyramid, "childSpr", childLv.SlicesPerRow)
	setInt(o.progPyramid, "parentGrid", parentLv.GridSize)
	setInt(o.progPyramid, "parentSpr", parentLv.SlicesPerRow)
	g := parentLv.GridSize
	dispatch(g * g * g)

	return o.downloadMoments(parent)
}

func (o *OpenGL) BuildOccupancy(m MomentSet, lv voxel.LevelSpec, dst *Texture) error {
	if !o.initialized {
		return fmt.Errorf("device: opengl backend not initialized")
	}
	if err := checkMoments(m, lv, "occupancy source"); err != nil {
		return err
	}
	if err := checkTexture(dst, "occupancy"); err != nil {
		return err
	}

	gl.UseProgram(o.progOccupancy)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, m.A0.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, dst.handle)
	setInt(o.progOccupancy, "numTexels", dst.Texels())
	dispatch(dst.Texels())

	return o.Download(dst)
}

func (o *OpenGL) Traverse(pos *Texture, b geom.Bounds, levels []voxel.LevelSpec,
	moments []MomentSet, occupancy []*Texture, p TraverseParams, forces *Texture) error {

	if !o.initialized {
		return fmt.Errorf("device: opengl backend not initialized")
	}
	if len(levels) == 0 || len(moments) != len(levels) {
		return fmt.Errorf("device: traverse needs one moment set per level, got %d sets for %d levels",
			len(moments), len(levels))
	}
	if len(levels) > o.Limits().MaxLevels {
		return fmt.Errorf("device: level count %d exceeds backend budget %d",
			len(levels), o.Limits().MaxLevels)
	}
	if !b.Valid() {
		return fmt.Errorf("device: traverse needs valid world bounds")
	}
	if err := o.Upload(pos); err != nil {
		return err
	}

	// Concatenate per-level moments into three fixed bindings plus an
	// offset table; binding count stays constant for any level count.
	total := 0
	table := make([]int32, 0, len(levels)*4)
	for i, lv := range levels {
		table = append(table, int32(lv.GridSize), int32(lv.SlicesPerRow), int32(total), 0)
		total += lv.TexWidth() * lv.TexHeight()
		if err := checkMoments(moments[i], lv, fmt.Sprintf("level %d", i)); err != nil {
			return err
		}
	}

	a0 := newScratch(total)
	a1 := newScratch(total)
	a2 := newScratch(total)
	occ := newScratch(total)
	defer releaseScratch(a0, a1, a2, occ)

	for i, lv := range levels {
		off := int(table[i*4+2]) * 16
		size := lv.TexWidth() * lv.TexHeight() * 16
		copyInto(moments[i].A0.handle, a0, off, size)
		copyInto(moments[i].A1.handle, a1, off, size)
		copyInto(moments[i].A2.handle, a2, off, size)
		if p.UseOccupancy {
			if i >= len(occupancy) || occupancy[i] == nil {
				return fmt.Errorf("device: occupancy pruning enabled but mask missing for level %d", i)
			}
			copyInto(occupancy[i].handle, occ, off, size)
		}
	}

	var tableBuf uint32
	gl.GenBuffers(1, &tableBuf)
	defer gl.DeleteBuffers(1, &tableBuf)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, tableBuf)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(table)*4, gl.Ptr(table), gl.STATIC_DRAW)

	gl.UseProgram(o.progTraverse)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, pos.handle)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, a0)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, a1)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 3, a2)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 4, occ)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 5, tableBuf)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 6, forces.handle)
	setInt(o.progTraverse, "numSlots", pos.Texels())
	setInt(o.progTraverse, "numLevels", len(levels))
	setVec3(o.progTraverse, "boundsMin", b.Min)
	setFloat(o.progTraverse, "maxExtent", float32(b.MaxExtent()))
	setFloat(o.progTraverse, "theta", float32(p.Theta))
	setFloat(o.progTraverse, "gravity", float32(p.G))
	setFloat(o.progTraverse, "softening", float32(p.Softening))
	useOcc := 0
	if p.UseOccupancy {
		useOcc = 1
	}
	setInt(o.progTraverse, "useOccupancy", useOcc)
	dispatch(pos.Texels())

	return o.Download(forces)
}

func (o *OpenGL) downloadMoments(m MomentSet) error {
	for _, t := range []*Texture{m.A0, m.A1, m.A2} {
		if err := o.Download(t); err != nil {
			return err
		}
	}
	return nil
}

func dispatch(n int) {
	groups := (n + glWorkGroup - 1) / glWorkGroup
	gl.DispatchCompute(uint32(groups), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
}

func newScratch(texels int) uint32 {
	var buf uint32
	gl.GenBuffers(1, &buf)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, texels*16, nil, gl.DYNAMIC_DRAW)
	return buf
}

func newIntScratch(n int) uint32 {
	var buf uint32
	gl.GenBuffers(1, &buf)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
	zero := make([]int32, n)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, n*4, gl.Ptr(zero), gl.DYNAMIC_DRAW)
	return buf
}

func releaseScratch(bufs ...uint32) {
	for _, b := range bufs {
		buf := b
		gl.DeleteBuffers(1, &buf)
	}
}

func copyInto(src, dst uint32, dstOffset, size int) {
	gl.BindBuffer(gl.COPY_READ_BUFFER, src)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, dst)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, dstOffset, size)
}

func setInt(prog uint32, name string, v int) {
	gl.Uniform1i(gl.GetUniformLocation(prog, gl.Str(name+"\x00")), int32(v))
}

func setFloat(prog uint32, name string, v float32) {
	gl.Uniform1f(gl.GetUniformLocation(prog, gl.Str(name+"\x00")), v)
}

func setVec3(prog uint32, name string, v geom.Vec3) {
	gl.Uniform3f(gl.GetUniformLocation(prog, gl.Str(name+"\x00")),
		float32(v.X), float32(v.Y), float32(v.Z))
}

func compileComputeProgram(source string) (uint32, error) {
	content := source + "\x00"

	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csources, free := gl.Strs(content)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("device: compute shader compile: %v", log)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	gl.DeleteShader(shader)
	if status == gl.FALSE {
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("device: compute program link failed")
	}
	return program, nil
}
