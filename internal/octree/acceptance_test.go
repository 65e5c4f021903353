package octree_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/geom"
	"github.com/okanon/octograv/internal/octree"
	"github.com/okanon/octograv/internal/voxel"
)

var _ = Describe("Solver", func() {
	var s *octree.Solver

	newPair := func(levels []voxel.LevelSpec) *octree.Solver {
		s, err := octree.New(device.NewCPU(), octree.Config{
			Particles: 2,
			Levels:    levels,
			Theta:     0.5,
			G:         3e-4,
			Softening: 0.2,
		}, octree.Resources{})
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	AfterEach(func() {
		if s != nil {
			s.Dispose()
			s = nil
		}
	})

	Describe("two-body acceptance case", func() {
		BeforeEach(func() {
			s = newPair([]voxel.LevelSpec{{GridSize: 4, SlicesPerRow: 2}})
			s.Positions().Set(0, [4]float32{-1, 0, 0, 1})
			s.Positions().Set(1, [4]float32{1, 0, 0, 1})
			s.SetBounds(geom.NewBounds(geom.Vec3{X: -2, Y: -2, Z: -2}, geom.Vec3{X: 2, Y: 2, Z: 2}))

			Expect(s.Aggregate()).To(Succeed())
			Expect(s.BuildPyramid()).To(Succeed())
			Expect(s.Traverse()).To(Succeed())
		})

		It("pulls each particle toward the other along x", func() {
			f0 := s.Forces().At(0)
			f1 := s.Forces().At(1)
			Expect(f0[0]).To(BeNumerically(">", 0))
			Expect(f1[0]).To(BeNumerically("<", 0))
		})

		It("keeps transverse components near zero", func() {
			for slot := 0; slot < 2; slot++ {
				f := s.Forces().At(slot)
				Expect(f[1]).To(BeNumerically("~", 0, 1e-4))
				Expect(f[2]).To(BeNumerically("~", 0, 1e-4))
			}
		})

		It("produces equal and opposite forces", func() {
			f0 := s.Forces().At(0)
			f1 := s.Forces().At(1)
			Expect(f0[0] + f1[0]).To(BeNumerically("~", 0, 1e-7))
		})
	})

	Describe("aggregation", func() {
		It("sums distinct contributions landing in one voxel", func() {
			s = newPair([]voxel.LevelSpec{{GridSize: 4, SlicesPerRow: 2}})
			s.Positions().Set(0, [4]float32{0.1, 0.1, 0.1, 1.5})
			s.Positions().Set(1, [4]float32{0.2, 0.2, 0.2, 2.5})
			s.SetBounds(geom.NewBounds(geom.Vec3{X: -2, Y: -2, Z: -2}, geom.Vec3{X: 2, Y: 2, Z: 2}))

			Expect(s.Aggregate()).To(Succeed())

			lv := s.Config().Levels[0]
			ix, iy, iz := lv.VoxelOf(geom.Vec3{X: 0.1, Y: 0.1, Z: 0.1}, s.Bounds())
			a0 := s.Moments(0).A0.At(lv.Texel(ix, iy, iz))
			Expect(a0[3]).To(BeNumerically("~", 4.0, 1e-5))
		})
	})

	Describe("bounds reduction", func() {
		It("falls back to a default box when nothing has mass", func() {
			s = newPair(threeLevelChain())
			b, err := s.ReduceBounds()
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Valid()).To(BeTrue())
			Expect(b.MaxExtent()).To(BeNumerically(">", 0))
		})
	})
})

func threeLevelChain() []voxel.LevelSpec {
	return []voxel.LevelSpec{
		{GridSize: 16, SlicesPerRow: 4},
		{GridSize: 8, SlicesPerRow: 4},
		{GridSize: 4, SlicesPerRow: 2},
	}
}
