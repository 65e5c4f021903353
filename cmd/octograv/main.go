package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/okanon/octograv/internal/config"
	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/diag"
	"github.com/okanon/octograv/internal/export"
	"github.com/okanon/octograv/internal/forces"
	"github.com/okanon/octograv/internal/metrics"
	"github.com/okanon/octograv/internal/octree"
	"github.com/okanon/octograv/internal/sim"
	"github.com/okanon/octograv/internal/viz"
)

var (
	configFile   string
	preset       string
	backendName  string
	distribution string
	particles    int
	theta        float64
	gConst       float64
	softening    float64
	dt           float64
	duration     float64
	seed         int64
	outputDir    string
	snapshotPath string
	trackEnergy  bool
	benchSteps   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "octograv",
		Short: "multilevel octree gravity simulator",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation headless",
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&outputDir, "out", "", "telemetry output directory")
	runCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "write final state as SVG")
	runCmd.Flags().BoolVar(&trackEnergy, "energy", false, "track energy drift (O(N^2) per sample)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run with live terminal visualization",
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark force providers across particle counts",
		RunE:  benchProviders,
	}
	benchCmd.Flags().StringVar(&backendName, "backend", "auto", "compute backend (auto, cpu, opengl)")
	benchCmd.Flags().IntVar(&benchSteps, "steps", 10, "steps per measurement")

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "compare tree accuracy against the direct sum",
		RunE:  compareAccuracy,
	}
	compareCmd.Flags().StringVar(&backendName, "backend", "auto", "compute backend (auto, cpu, opengl)")
	compareCmd.Flags().IntVar(&particles, "n", 512, "particle count")
	compareCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPARTICLES\tDISTRIBUTION\tTHETA\tLEVELS")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%d\t%s\t%.2f\t%d\n",
					name, p.Particles, p.Distribution, p.Theta, len(p.Levels))
			}
			return w.Flush()
		},
	}

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "show compute backend availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tAVAILABLE\tMAX LEVELS\tMAX TEXTURE")
			for _, b := range []device.Backend{device.NewCPU(), device.NewOpenGL()} {
				lim := b.Limits()
				fmt.Fprintf(w, "%s\t%v\t%d\t%d\n",
					b.Name(), b.Available(), lim.MaxLevels, lim.MaxTextureSize)
			}
			return w.Flush()
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the default configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, compareCmd, presetsCmd, backendsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use a built-in preset")
	cmd.Flags().StringVar(&backendName, "backend", "", "compute backend (auto, cpu, opengl)")
	cmd.Flags().StringVar(&distribution, "dist", "", "initial distribution (cube, plummer, disk, pair)")
	cmd.Flags().IntVar(&particles, "n", 0, "particle count")
	cmd.Flags().Float64Var(&theta, "theta", -1, "opening angle")
	cmd.Flags().Float64Var(&gConst, "g", -1, "gravitational constant")
	cmd.Flags().Float64Var(&softening, "softening", -1, "plummer softening length")
	cmd.Flags().Float64Var(&dt, "dt", 0, "timestep")
	cmd.Flags().Float64Var(&duration, "time", 0, "duration")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
}

// resolveConfig layers preset, config file and explicit flags, in that
// order of increasing precedence.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q (available: %v)", preset, config.ListPresets())
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Backend = backendName
	}
	if f.Changed("dist") {
		cfg.Distribution = distribution
	}
	if f.Changed("n") {
		cfg.Particles = particles
	}
	if f.Changed("theta") {
		cfg.Theta = theta
	}
	if f.Changed("g") {
		cfg.G = gConst
	}
	if f.Changed("softening") {
		cfg.Softening = softening
	}
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func selectBackend(name string) (device.Backend, error) {
	switch name {
	case "", "auto":
		return device.AutoSelect(), nil
	case "cpu":
		return device.NewCPU(), nil
	case "opengl":
		gl := device.NewOpenGL()
		if !gl.Available() {
			return nil, fmt.Errorf("opengl backend is not available in this build")
		}
		return gl, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// lab bundles everything a configured run needs.
type lab struct {
	backend device.Backend
	solver  *octree.Solver
	stepper *sim.Stepper
	pos     *device.Texture
	vel     *device.Texture
	acc     *device.Texture
}

func buildLab(cfg *config.Config) (*lab, error) {
	backend, err := selectBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	pw, ph := device.ParticleTexSize(cfg.Particles)
	pos, err := backend.NewTexture(pw, ph)
	if err != nil {
		return nil, err
	}
	vel, err := backend.NewTexture(pw, ph)
	if err != nil {
		return nil, err
	}
	acc, err := backend.NewTexture(pw, ph)
	if err != nil {
		return nil, err
	}

	if err := sim.Initialize(cfg.Distribution, pos, vel, cfg.Particles, cfg.Seed, cfg.G); err != nil {
		return nil, err
	}
	if err := backend.Upload(pos); err != nil {
		return nil, err
	}
	if err := backend.Upload(vel); err != nil {
		return nil, err
	}

	solver, err := octree.New(backend, octree.Config{
		Particles: cfg.Particles,
		Levels:    cfg.Levels,
		Theta:     cfg.Theta,
		G:         cfg.G,
		Softening: cfg.Softening,
		Occupancy: cfg.Occupancy,
	}, octree.Resources{
		Positions: octree.Borrow(pos),
		Forces:    octree.Borrow(acc),
	})
	if err != nil {
		return nil, err
	}

	var provider forces.Provider = solver
	if cfg.NearField && len(cfg.Levels) > 0 {
		provider = &correctedProvider{
			solver: solver,
			near:   forces.NewNearField(cfg.Levels[0], cfg.G, cfg.Softening),
		}
	}

	stepper, err := sim.NewStepper(provider, pos, vel, acc)
	if err != nil {
		solver.Dispose()
		return nil, err
	}
	return &lab{backend: backend, solver: solver, stepper: stepper,
		pos: pos, vel: vel, acc: acc}, nil
}

func (l *lab) dispose() {
	l.solver.Dispose()
	l.backend.Free(l.pos)
	l.backend.Free(l.vel)
	l.backend.Free(l.acc)
}

// correctedProvider adds the same-voxel near-field pass on top of the tree
// traversal.
type correctedProvider struct {
	solver *octree.Solver
	near   *forces.NearField
}

func (p *correctedProvider) Name() string { return "octree+nearfield" }

func (p *correctedProvider) Accelerations(pos, dst *device.Texture) error {
	if err := p.solver.Accelerations(pos, dst); err != nil {
		return err
	}
	return p.near.Accumulate(pos, dst, p.solver.Bounds())
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	l, err := buildLab(cfg)
	if err != nil {
		return err
	}
	defer l.dispose()

	momentum := metrics.NewMomentumDrift()
	com := metrics.NewCenterOfMassDrift()
	l.stepper.AddMetric(momentum)
	l.stepper.AddMetric(com)
	if trackEnergy {
		l.stepper.AddMetric(metrics.NewEnergyDrift(cfg.G, cfg.Softening))
	}

	recorder, err := diag.NewRecorder(cfg.OutputDir, cfg.SampleEvery)
	if err != nil {
		return err
	}
	if recorder != nil {
		l.stepper.AddObserver(recorder)
		defer recorder.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s on %s: %d particles, theta %.2f, %d levels\n",
		cfg.Distribution, l.backend.Name(), cfg.Particles, cfg.Theta, len(cfg.Levels))

	start := time.Now()
	result, err := l.stepper.Run(ctx, sim.Config{
		Dt:            cfg.Dt,
		Duration:      cfg.Duration,
		SortEvery:     cfg.SortEvery,
		ValidateState: true,
		Seed:          cfg.Seed,
	})
	elapsed := time.Since(start)
	if err != nil && err != context.Canceled {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "steps\t%d\n", result.StepsTaken)
	fmt.Fprintf(w, "elapsed\t%v\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Fprintf(w, "steps/sec\t%.1f\n", float64(result.StepsTaken)/elapsed.Seconds())
	}
	for name, val := range result.Metrics {
		fmt.Fprintf(w, "%s\t%.6g\n", name, val)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, runErr := range result.Errors {
		fmt.Printf("warning: %v\n", runErr)
	}

	if snapshotPath != "" {
		if err := l.backend.Download(l.pos); err != nil {
			return err
		}
		b, err := l.solver.ReduceBounds()
		if err != nil {
			return err
		}
		if err := export.WriteSnapshot(snapshotPath, l.pos, b, 1024); err != nil {
			return err
		}
		fmt.Printf("snapshot: %s\n", snapshotPath)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	l, err := buildLab(cfg)
	if err != nil {
		return err
	}
	defer l.dispose()

	m := viz.NewModel(func() error {
		return l.stepper.Advance(cfg.Dt)
	}, l.pos, l.vel, l.backend.Name(), cfg.Dt)

	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}

func benchProviders(cmd *cobra.Command, args []string) error {
	backend, err := selectBackend(backendName)
	if err != nil {
		return err
	}

	sizes := []int{1024, 4096, 16384}
	fmt.Printf("benchmarking on %s (%d steps each)\n\n", backend.Name(), benchSteps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tN\tSTEPS\tTIME\tSTEPS/SEC")

	for _, n := range sizes {
		cfg := config.DefaultConfig()
		cfg.Particles = n
		cfg.Backend = backendName
		cfg.Distribution = "plummer"

		l, err := buildLab(cfg)
		if err != nil {
			return err
		}
		if err := benchRow(w, l.stepper, "octree", n, cfg.Dt); err != nil {
			l.dispose()
			return err
		}
		l.dispose()

		// The direct sum is the reference; beyond a few thousand bodies
		// it dominates the table, so cap it.
		if n <= 4096 {
			if err := benchDirect(w, backend, n, cfg); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func benchDirect(w *tabwriter.Writer, backend device.Backend, n int, cfg *config.Config) error {
	pw, ph := device.ParticleTexSize(n)
	pos, err := backend.NewTexture(pw, ph)
	if err != nil {
		return err
	}
	defer backend.Free(pos)
	vel, err := backend.NewTexture(pw, ph)
	if err != nil {
		return err
	}
	defer backend.Free(vel)
	acc, err := backend.NewTexture(pw, ph)
	if err != nil {
		return err
	}
	defer backend.Free(acc)

	if err := sim.Initialize("plummer", pos, vel, n, cfg.Seed, cfg.G); err != nil {
		return err
	}
	st, err := sim.NewStepper(forces.NewDirect(cfg.G, cfg.Softening), pos, vel, acc)
	if err != nil {
		return err
	}
	return benchRow(w, st, "direct", n, cfg.Dt)
}

func benchRow(w *tabwriter.Writer, st *sim.Stepper, name string, n int, stepDt float64) error {
	start := time.Now()
	result, err := st.Run(context.Background(), sim.Config{
		Dt:       stepDt,
		Duration: stepDt * float64(benchSteps),
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	perSec := 0.0
	if elapsed > 0 {
		perSec = float64(result.StepsTaken) / elapsed.Seconds()
	}
	fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%.1f\n",
		name, n, result.StepsTaken, elapsed.Round(time.Millisecond), perSec)
	return nil
}

func compareAccuracy(cmd *cobra.Command, args []string) error {
	backend, err := selectBackend(backendName)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.Particles = particles
	if seed != 0 {
		cfg.Seed = seed
	}

	pw, ph := device.ParticleTexSize(cfg.Particles)
	pos, err := backend.NewTexture(pw, ph)
	if err != nil {
		return err
	}
	defer backend.Free(pos)
	vel, err := backend.NewTexture(pw, ph)
	if err != nil {
		return err
	}
	defer backend.Free(vel)
	ref, err := backend.NewTexture(pw, ph)
	if err != nil {
		return err
	}
	defer backend.Free(ref)

	if err := sim.Initialize("plummer", pos, vel, cfg.Particles, cfg.Seed, cfg.G); err != nil {
		return err
	}
	direct := forces.NewDirect(cfg.G, cfg.Softening)
	if err := direct.Accelerations(pos, ref); err != nil {
		return err
	}

	fmt.Printf("octree vs direct, %d particles on %s\n\n", cfg.Particles, backend.Name())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THETA\tRMS REL ERROR")

	for _, th := range []float64{0.0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		solver, err := octree.New(backend, octree.Config{
			Particles: cfg.Particles,
			Levels:    cfg.Levels,
			Theta:     th,
			G:         cfg.G,
			Softening: cfg.Softening,
			Occupancy: true,
		}, octree.Resources{Positions: octree.Borrow(pos), Forces: octree.Alloc()})
		if err != nil {
			return err
		}
		err = solver.Accelerations(pos, solver.Forces())
		if err != nil {
			solver.Dispose()
			return err
		}
		rms := rmsRelError(pos, solver.Forces(), ref)
		solver.Dispose()
		fmt.Fprintf(w, "%.2f\t%.3e\n", th, rms)
	}
	return w.Flush()
}

func rmsRelError(pos, got, want *device.Texture) float64 {
	var sum float64
	var count int
	for i := 0; i < pos.Texels(); i++ {
		if pos.At(i)[3] <= 0 {
			continue
		}
		g := got.At(i)
		r := want.At(i)
		var d2, r2 float64
		for k := 0; k < 3; k++ {
			d := float64(g[k] - r[k])
			d2 += d * d
			r2 += float64(r[k]) * float64(r[k])
		}
		if r2 > 0 {
			sum += d2 / r2
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
