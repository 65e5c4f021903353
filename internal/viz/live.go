package viz

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/okanon/octograv/internal/device"
	"github.com/okanon/octograv/internal/diag"
	"github.com/okanon/octograv/internal/geom"
)

const (
	canvasWidth     = 72
	canvasHeight    = 28
	historyCapacity = 240
	stepsPerFrame   = 2
)

type TickMsg time.Time

// singleStep advances the simulation by one dt. The view calls it a fixed
// number of times per frame instead of running to a duration.
type singleStep func() error

// Model is the bubbletea state for the live particle view.
type Model struct {
	step    singleStep
	pos     *device.Texture
	vel     *device.Texture
	backend string
	dt      float64

	canvas  *Canvas
	camera  *Camera
	t       float64
	steps   int
	running bool
	history []float64
	err     error
}

// NewModel wires the live view to the simulation buffers. step advances the
// system by one dt when called.
func NewModel(step func() error, pos, vel *device.Texture, backend string, dt float64) Model {
	return Model{
		step:    step,
		pos:     pos,
		vel:     vel,
		backend: backend,
		dt:      dt,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		camera:  NewCamera(),
		running: true,
		history: make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		}
	case TickMsg:
		if m.running && m.err == nil {
			for i := 0; i < stepsPerFrame; i++ {
				if err := m.step(); err != nil {
					m.err = err
					m.running = false
					break
				}
				m.t += m.dt
				m.steps++
			}
			m.observe()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) observe() {
	speeds := diag.Summarize(diag.Magnitudes(m.pos, m.vel))
	if len(m.history) >= historyCapacity {
		m.history = m.history[1:]
	}
	m.history = append(m.history, speeds.Mean)
}

func (m Model) View() string {
	b := particleBounds(m.pos)
	Scatter(m.canvas, m.camera, m.pos, b)

	stats := m.statsPanel(b)
	main := lipgloss.JoinHorizontal(lipgloss.Top,
		canvasStyle.Render(m.canvas.String()),
		statsStyle.Render(stats),
	)

	help := helpStyle.Render("space pause · x/X y/Y rotate · +/- zoom · q quit")
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("octograv live"), main, help)
}

func (m Model) statsPanel(b geom.Bounds) string {
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}

	status := "running"
	if !m.running {
		status = pausedStyle.Render("paused")
	}
	if m.err != nil {
		status = pausedStyle.Render("error: " + m.err.Error())
	}

	s := row("status", status)
	s += row("backend", m.backend)
	s += row("time", fmt.Sprintf("%.3f", m.t))
	s += row("steps", fmt.Sprintf("%d", m.steps))
	s += row("particles", fmt.Sprintf("%d", len(diag.Masses(m.pos))))
	if b.Valid() {
		s += row("extent", fmt.Sprintf("%.3f", b.MaxExtent()))
	}

	if len(m.history) >= 2 {
		graph := asciigraph.Plot(m.history,
			asciigraph.Height(6),
			asciigraph.Width(30),
			asciigraph.Caption("mean speed"))
		s += graphStyle.Render(graph)
	}
	return s
}

func particleBounds(pos *device.Texture) geom.Bounds {
	var b geom.Bounds
	if pos == nil {
		return b
	}
	for i := 0; i < pos.Texels(); i++ {
		s := pos.At(i)
		if s[3] <= 0 {
			continue
		}
		b = b.AddPoint(geom.Vec3{X: float64(s[0]), Y: float64(s[1]), Z: float64(s[2])})
	}
	return b
}
