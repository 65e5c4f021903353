package config

import "github.com/okanon/octograv/internal/voxel"

var shallowChain = []voxel.LevelSpec{
	{GridSize: 16, SlicesPerRow: 4},
	{GridSize: 8, SlicesPerRow: 4},
}

var deepChain = []voxel.LevelSpec{
	{GridSize: 128, SlicesPerRow: 16},
	{GridSize: 64, SlicesPerRow: 8},
	{GridSize: 32, SlicesPerRow: 8},
	{GridSize: 16, SlicesPerRow: 4},
	{GridSize: 8, SlicesPerRow: 4},
}

var Presets = map[string]*Config{
	"binary": {
		Backend: "cpu", Particles: 2, Distribution: "pair",
		Theta: 0.5, G: 1.0, Softening: 0.0,
		Dt: 0.001, Duration: 30.0, Levels: shallowChain,
	},
	"plummer-small": {
		Backend: "auto", Particles: 2048, Distribution: "plummer",
		Theta: 0.6, G: 1.0, Softening: 0.05, Occupancy: true,
		Dt: 0.01, Duration: 10.0, Seed: 1, SortEvery: 16, SampleEvery: 10,
		Levels: DefaultConfig().Levels,
	},
	"plummer-large": {
		Backend: "auto", Particles: 65536, Distribution: "plummer",
		Theta: 0.7, G: 1.0, Softening: 0.02, Occupancy: true,
		Dt: 0.005, Duration: 5.0, Seed: 1, SortEvery: 8, SampleEvery: 20,
		Levels: deepChain,
	},
	"disk": {
		Backend: "auto", Particles: 8192, Distribution: "disk",
		Theta: 0.5, G: 1.0, Softening: 0.01, Occupancy: true, NearField: true,
		Dt: 0.002, Duration: 20.0, Seed: 2, SortEvery: 16, SampleEvery: 10,
		Levels: DefaultConfig().Levels,
	},
	"collapse": {
		Backend: "auto", Particles: 16384, Distribution: "cube",
		Theta: 0.6, G: 1.0, Softening: 0.05, Occupancy: true,
		Dt: 0.005, Duration: 8.0, Seed: 3, SortEvery: 8, SampleEvery: 10,
		Levels: DefaultConfig().Levels,
	},
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	// Copy so callers can tweak without mutating the preset table.
	c := *cfg
	c.Levels = append([]voxel.LevelSpec(nil), cfg.Levels...)
	return &c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
