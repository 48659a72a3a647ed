package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/render"
	"github.com/fdg312/informes-hub/internal/submission"
)

const eventBuffer = 64

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Padding(0, 1)
	warningStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type connCheckedMsg struct{ state connectivity.State }

type snapshotMsg struct{ snap submission.Snapshot }

type submitErrMsg struct{ err error }

// model is the live view: a spinner while the backend is checked, the
// estimated progress bar while the request runs, the report at the end.
type model struct {
	ctx    context.Context
	app    *app
	submit submitFunc
	events chan tea.Msg

	spinner  spinner.Model
	progress progress.Model
	renderer *glamour.TermRenderer

	checking bool
	conn     connectivity.State
	snap     submission.Snapshot
	err      error
	report   string
}

func newModel(ctx context.Context, a *app, submit submitFunc, renderer *glamour.TermRenderer) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return model{
		ctx:      ctx,
		app:      a,
		submit:   submit,
		events:   make(chan tea.Msg, eventBuffer),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		renderer: renderer,
		checking: true,
	}
}

// runTUI drives submit through the interactive view and returns the
// final snapshot.
func runTUI(ctx context.Context, a *app, submit submitFunc) (submission.Snapshot, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return submission.Snapshot{}, fmt.Errorf("markdown renderer: %w", err)
	}

	m := newModel(ctx, a, submit, renderer)
	unsubscribe := a.ctrl.Subscribe(func(s submission.Snapshot) {
		select {
		case m.events <- snapshotMsg{snap: s}:
		default:
			// only intermediate progress can be dropped; terminal
			// snapshots are re-read from the controller below
		}
	})
	defer unsubscribe()

	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return submission.Snapshot{}, err
	}
	fm := final.(model)
	if fm.err != nil {
		return submission.Snapshot{}, fm.err
	}
	return a.ctrl.Snapshot(), nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.check(), m.waitForEvent())
}

func (m model) check() tea.Cmd {
	return func() tea.Msg {
		return connCheckedMsg{state: m.app.monitor.CheckNow(m.ctx)}
	}
}

func (m model) start() tea.Cmd {
	return func() tea.Msg {
		if err := m.submit(m.ctx); err != nil {
			return submitErrMsg{err: err}
		}
		return nil
	}
}

func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.progress.Width = min(msg.Width-4, 80)
		return m, nil

	case connCheckedMsg:
		m.checking = false
		m.conn = msg.state
		// the controller gates on connectivity itself
		return m, m.start()

	case submitErrMsg:
		m.err = msg.err
		return m, tea.Quit

	case snapshotMsg:
		m.snap = msg.snap
		cmds := []tea.Cmd{m.waitForEvent(), m.progress.SetPercent(float64(m.snap.Progress) / 100)}
		if m.snap.Phase.Terminal() {
			if m.snap.Phase == submission.PhaseSucceeded {
				m.report = m.renderReport(render.Present(m.snap.Report))
			}
			return m, tea.Quit
		}
		return m, tea.Batch(cmds...)

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) renderReport(v render.View) string {
	md := render.Markdown(v)
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Informes técnicos") + "\n\n")

	if m.checking {
		b.WriteString(m.spinner.View() + " " + m.conn.Label() + "\n")
		return b.String()
	}

	if m.conn.Connected() {
		b.WriteString(okStyle.Render("● "+m.conn.Label()) + "\n")
	} else {
		b.WriteString(errStyle.Render("● "+m.conn.Label()) + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errStyle.Render(m.err.Error()) + "\n")
		return b.String()
	}

	switch m.snap.Phase {
	case submission.PhaseSubmitting:
		b.WriteString("\n" + m.spinner.View() + " Generando informe...\n")
		b.WriteString(m.progress.View() + "\n")
		b.WriteString(helpStyle.Render("progreso estimado") + "\n")
	case submission.PhaseFailed:
		b.WriteString("\n" + errStyle.Render(m.snap.ErrorMessage()) + "\n")
	case submission.PhaseSucceeded:
		b.WriteString("\n" + severityHeader(render.Present(m.snap.Report).Counts) + "\n")
		b.WriteString(m.report)
		return b.String()
	}

	b.WriteString("\n" + helpStyle.Render("q para salir") + "\n")
	return b.String()
}

func severityHeader(c render.Counts) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		criticalStyle.Render(fmt.Sprintf("%d críticos", c.Critical)),
		" ",
		warningStyle.Render(fmt.Sprintf("%d advertencias", c.Warning)),
		" ",
		infoStyle.Render(fmt.Sprintf("%d secciones", c.Total)),
	)
}
