package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quasilyte/glitch"
	"github.com/quasilyte/glitch/internal/config"
	"github.com/quasilyte/glitch/lofi"
	"github.com/quasilyte/glitch/processor"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f0f"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	cursorStyle = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	modeStyles  = map[glitch.SourceMode]lipgloss.Style{
		glitch.SourceFree:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888")),
		glitch.SourceLoop:   lipgloss.NewStyle().Foreground(lipgloss.Color("#0af")),
		glitch.SourceSkip:   lipgloss.NewStyle().Foreground(lipgloss.Color("#fa0")),
		glitch.SourceRepeat: lipgloss.NewStyle().Foreground(lipgloss.Color("#f44")),
	}
)

// control is a single editable row of the control surface.
type control struct {
	name   string
	format func(p *processor.Params) string
	adjust func(p *processor.Params, delta int)
}

var controls = []control{
	{
		name:   "analog",
		format: func(p *processor.Params) string { return bar(p.AnalogFX) },
		adjust: func(p *processor.Params, delta int) { p.AnalogFX += 0.05 * float64(delta) },
	},
	{
		name:   "digital",
		format: func(p *processor.Params) string { return bar(p.DigitalFX) },
		adjust: func(p *processor.Params, delta int) { p.DigitalFX += 0.05 * float64(delta) },
	},
	{
		name:   "lofi",
		format: func(p *processor.Params) string { return bar(p.LofiFX) },
		adjust: func(p *processor.Params, delta int) { p.LofiFX += 0.05 * float64(delta) },
	},
	{
		name:   "dry/wet",
		format: func(p *processor.Params) string { return bar(p.DryWet) },
		adjust: func(p *processor.Params, delta int) { p.DryWet += 0.05 * float64(delta) },
	},
	{
		name:   "clock",
		format: func(p *processor.Params) string { return p.ClockMode.String() },
		adjust: func(p *processor.Params, delta int) {
			if p.ClockMode == glitch.ClockInternal {
				p.ClockMode = glitch.ClockHost
			} else {
				p.ClockMode = glitch.ClockInternal
			}
		},
	},
	{
		name:   "speed",
		format: func(p *processor.Params) string { return fmt.Sprintf("%.0f ms", p.ClockSpeed) },
		adjust: func(p *processor.Params, delta int) { p.ClockSpeed += 20 * float64(delta) },
	},
	{
		name:   "note",
		format: func(p *processor.Params) string { return p.ClockNote.String() },
		adjust: func(p *processor.Params, delta int) {
			all := glitch.Subdivisions()
			p.ClockNote = all[cycle(int(p.ClockNote), delta, len(all))]
		},
	},
	{
		name:   "buffer",
		format: func(p *processor.Params) string { return fmt.Sprintf("%.0f ms", p.BufferLength) },
		adjust: func(p *processor.Params, delta int) { p.BufferLength += 50 * float64(delta) },
	},
	{
		name:   "repeats",
		format: func(p *processor.Params) string { return fmt.Sprint(p.Repeats) },
		adjust: func(p *processor.Params, delta int) { p.Repeats += delta },
	},
	{
		name:   "distortion",
		format: func(p *processor.Params) string { return p.Distortion.String() },
		adjust: func(p *processor.Params, delta int) {
			if p.Distortion == lofi.KindBitcrush {
				p.Distortion = lofi.KindSaturation
			} else {
				p.Distortion = lofi.KindBitcrush
			}
		},
	},
	{
		name:   "codec",
		format: func(p *processor.Params) string { return p.Codec.String() },
		adjust: func(p *processor.Params, delta int) {
			kinds := []lofi.Kind{lofi.KindNone, lofi.KindMuLaw, lofi.KindOpus}
			for i, k := range kinds {
				if k == p.Codec {
					p.Codec = kinds[cycle(i, delta, len(kinds))]
					break
				}
			}
		},
	},
	{
		name:   "downsampling",
		format: func(p *processor.Params) string { return fmt.Sprintf("x%d", p.Downsampling) },
		adjust: func(p *processor.Params, delta int) { p.Downsampling += delta },
	},
}

func cycle(i, delta, n int) int {
	return ((i+delta)%n + n) % n
}

func bar(v float64) string {
	const width = 20
	filled := int(v*width + 0.5)
	return strings.Repeat("█", filled) + dimStyle.Render(strings.Repeat("·", width-filled)) + fmt.Sprintf(" %.2f", v)
}

type model struct {
	audio  *liveAudio
	params *processor.ParamStore
	preset string

	numChannels int
	cursor      int
	status      string
	quitting    bool
}

type refreshMsg time.Time

func refresh() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return refresh()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}

		case "j", "down":
			if m.cursor < len(controls)-1 {
				m.cursor++
			}

		case "h", "left":
			m.params.Update(func(p *processor.Params) { controls[m.cursor].adjust(p, -1) })

		case "l", "right":
			m.params.Update(func(p *processor.Params) { controls[m.cursor].adjust(p, 1) })

		case "s":
			m.status = m.save()
		}

	case refreshMsg:
		return m, refresh()
	}

	return m, nil
}

func (m model) save() string {
	path, err := config.PresetPath(m.preset)
	if err != nil {
		return err.Error()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err.Error()
	}
	cfg.Params = m.params.Load()
	if err := cfg.Save(path); err != nil {
		return err.Error()
	}
	return "saved " + path
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("glitch live"))
	sb.WriteString("\n\n")

	p := m.params.Load()
	for i, c := range controls {
		line := fmt.Sprintf("%-13s %s", c.name, c.format(&p))
		if i == m.cursor {
			line = cursorStyle.Render(activeStyle.Render(line))
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	sb.WriteString("\n")
	for ch, mode := range m.audio.ChannelModes(m.numChannels) {
		style := modeStyles[mode]
		fmt.Fprintf(&sb, "ch%d %s  ", ch, style.Render(fmt.Sprintf("%-6s", mode)))
	}
	if m.audio.reversed.Load() {
		sb.WriteString(modeStyles[glitch.SourceRepeat].Render("reverse"))
	}
	sb.WriteString("\n\n")

	help := "↑/↓ select  ←/→ adjust  s save preset  q quit"
	if m.status != "" {
		help = m.status
	}
	sb.WriteString(statusStyle.Render(help))
	sb.WriteByte('\n')
	return sb.String()
}
