package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/host"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI",
	Long: `Tui shows the module state as it initializes and offers a run action
once the module is ready. Keys: r or enter runs, i retries a failed
initialization, q quits.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// controllerAPI is the part of host.Controller the UI drives.
type controllerAPI interface {
	State() host.State
	TriggerRun() (*host.Request, error)
	Retry() error
}

type stateMsg struct {
	state host.State
}

type retryDoneMsg struct {
	err error
}

type runDoneMsg struct {
	err      error
	id       string
	result   string
	duration time.Duration
}

type tuiModel struct {
	ctrl     controllerAPI
	err      error
	title    string
	result   string
	lastID   string
	spinner  spinner.Model
	state    host.State
	duration time.Duration
	running  bool
	retrying bool
	runs     int
}

func newTUIModel(ctrl controllerAPI, title string) *tuiModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = labelStyle
	return &tuiModel{
		ctrl:    ctrl,
		title:   title,
		spinner: s,
		state:   host.State{Status: host.StatusInitializing},
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.readState)
}

func (m *tuiModel) readState() tea.Msg {
	return stateMsg{state: m.ctrl.State()}
}

// retry runs off the UI loop: Retry reports the new state through the
// state hook, which sends to the program.
func (m *tuiModel) retry() tea.Msg {
	return retryDoneMsg{err: m.ctrl.Retry()}
}

// canRun reports whether the run action is enabled.
func (m *tuiModel) canRun() bool {
	return m.state.Status == host.StatusReady && !m.running
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "r", "enter":
			if !m.canRun() {
				return m, nil
			}
			req, err := m.ctrl.TriggerRun()
			if err != nil {
				m.err = err
				return m, nil
			}
			m.running = true
			m.err = nil
			m.result = ""
			m.lastID = req.ID
			return m, waitRun(req)
		case "i":
			if m.state.Status != host.StatusError || m.retrying {
				return m, nil
			}
			m.retrying = true
			return m, m.retry
		}

	case retryDoneMsg:
		m.retrying = false
		m.err = msg.err
		return m, m.readState

	case stateMsg:
		m.state = msg.state
		return m, nil

	case runDoneMsg:
		if msg.id != m.lastID {
			return m, nil
		}
		m.running = false
		m.runs++
		m.result = msg.result
		m.err = msg.err
		m.duration = msg.duration
		return m, m.readState

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// waitRun resolves req off the UI loop.
func waitRun(req *host.Request) tea.Cmd {
	return func() tea.Msg {
		result, err := req.Wait(context.Background())
		return runDoneMsg{
			id:       req.ID,
			result:   result,
			err:      err,
			duration: time.Since(req.Started()),
		}
	}
}

func (m *tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Offload: " + m.title))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Module: "))
	switch m.state.Status {
	case host.StatusInitializing:
		b.WriteString(m.spinner.View() + " initializing")
	case host.StatusReady:
		b.WriteString(resultStyle.Render("ready"))
	case host.StatusError:
		b.WriteString(errorStyle.Render("error"))
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.state.Message))
	}
	b.WriteString("\n\n")

	if m.canRun() {
		b.WriteString(buttonStyle.Render("Run proof"))
	} else {
		b.WriteString(disabledStyle.Render("Run proof"))
	}
	if m.running {
		b.WriteString(" " + m.spinner.View() + " running " + helpStyle.Render(m.lastID))
	}
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + errors.Message(m.err)))
		b.WriteString("\n\n")
	case m.runs > 0 && !m.running:
		b.WriteString(resultStyle.Render(m.result))
		b.WriteString(helpStyle.Render(fmt.Sprintf("  %s, %s", m.lastID, m.duration.Round(time.Millisecond))))
		b.WriteString("\n\n")
	}

	help := "q: quit"
	switch {
	case m.canRun():
		help = "r/enter: run • " + help
	case m.state.Status == host.StatusError:
		help = "i: retry init • " + help
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func runTUI(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.InvalidInput(errors.PhaseConfig, "tui needs an interactive terminal, use 'offload run' instead")
	}

	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	title := a.cfg.Module.Path
	if title == "" {
		title = "demo " + a.cfg.Module.Demo
	}

	p, ctrl := newTUIProgram(a.controller, title, tea.WithAltScreen())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ctrl.Dispose(ctx)
	}()

	_, err = p.Run()
	return err
}

// newTUIProgram starts a controller whose state changes are sent to the
// returned program.
func newTUIProgram(start func(...host.Option) *host.Controller, title string, opts ...tea.ProgramOption) (*tea.Program, *host.Controller) {
	var p *tea.Program
	ready := make(chan struct{})
	ctrl := start(host.OnStateChange(func(s host.State) {
		<-ready
		p.Send(stateMsg{state: s})
	}))
	p = tea.NewProgram(newTUIModel(ctrl, title), opts...)
	close(ready)
	return p, ctrl
}
