// Package viz renders a running simulation in the terminal: a live energy
// trace with per-step statistics.
package viz

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"pairlab/internal/engine"
	"pairlab/internal/potential"
)

const historyCapacity = 400

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// Model steps the engine on a tick and renders the energy history.
type Model struct {
	eng    *engine.Engine
	frame  *potential.Frame
	vel    []float64
	masses []float64
	dt     float64
	fps    int

	initCoords []float64
	name       string

	t             float64
	steps         int
	running       bool
	last          *engine.StepResult
	runErr        error
	energyHistory []float64
	initialEnergy float64
}

func NewModel(eng *engine.Engine, frame *potential.Frame, masses []float64, dt float64, fps int, name string) Model {
	init := make([]float64, len(frame.Coords))
	copy(init, frame.Coords)

	return Model{
		eng:           eng,
		frame:         frame,
		vel:           make([]float64, len(frame.Coords)),
		masses:        masses,
		dt:            dt,
		fps:           fps,
		initCoords:    init,
		name:          name,
		running:       true,
		energyHistory: make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		}
	case TickMsg:
		if m.running && m.runErr == nil {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) step() {
	res, err := m.eng.Advance(m.frame, m.vel, m.masses, m.dt)
	if err != nil {
		// a failed step invalidates the run; freeze and show it
		m.runErr = err
		m.running = false
		return
	}

	m.t += m.dt
	m.steps++
	m.last = res
	if m.steps == 1 {
		m.initialEnergy = res.Energy
	}

	m.energyHistory = append(m.energyHistory, res.Energy)
	if len(m.energyHistory) > historyCapacity {
		m.energyHistory = m.energyHistory[1:]
	}
}

func (m *Model) reset() {
	copy(m.frame.Coords, m.initCoords)
	for i := range m.vel {
		m.vel[i] = 0
	}
	m.t = 0
	m.steps = 0
	m.last = nil
	m.runErr = nil
	m.running = true
	m.energyHistory = m.energyHistory[:0]
}

func (m Model) View() string {
	header := headerStyle.Render(fmt.Sprintf("pairlab live — %s", m.name))

	rows := []string{
		statRow("time", fmt.Sprintf("%.4f", m.t)),
		statRow("steps", fmt.Sprintf("%d", m.steps)),
	}
	if m.last != nil {
		drift := 0.0
		if m.initialEnergy != 0 {
			drift = (m.last.Energy - m.initialEnergy) / m.initialEnergy
		}
		rows = append(rows,
			statRow("energy", fmt.Sprintf("%.9f", m.last.Energy)),
			statRow("drift", fmt.Sprintf("%+.2e", drift)),
			statRow("max force", fmt.Sprintf("%.6f", m.last.MaxForce)),
		)
	}
	state := "running"
	if !m.running {
		state = "paused"
	}
	rows = append(rows, statRow("state", state))
	stats := statsStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	var graph string
	if len(m.energyHistory) > 1 {
		graph = graphStyle.Render(asciigraph.Plot(m.energyHistory,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption("total energy"),
		))
	}

	out := lipgloss.JoinVertical(lipgloss.Left, header, stats, graph)
	if m.runErr != nil {
		out = lipgloss.JoinVertical(lipgloss.Left, out,
			errorStyle.Render(fmt.Sprintf("run aborted: %v", m.runErr)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out,
		helpStyle.Render("space pause · r reset · q quit"))
}

func statRow(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
