package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/formflow/internal/adapters/transport/terminal"
	"github.com/bnema/formflow/internal/application"
)

// formWait tells whether the frame on top of a session has its form on
// the terminal yet.
type formWait struct {
	ctx     context.Context
	session *application.Session
	sender  *terminal.Sender
}

// settled is true once the top frame's form was written, or when nothing
// is left on the stack.
func (w *formWait) settled() bool {
	frame, ok := w.session.Current()
	if !ok {
		return true
	}
	delivery, ok := w.sender.Last()
	return ok && delivery.Frame == frame.Seq
}

// next returns a command that blocks until the sender writes again. It
// returns nil and true when there is nothing to wait for.
func (w *formWait) next() (tea.Cmd, bool) {
	changed := w.sender.Changed()
	if w.settled() {
		return nil, true
	}
	return func() tea.Msg {
		select {
		case <-changed:
			return senderWroteMsg{}
		case <-w.ctx.Done():
			return loadingStoppedMsg{err: w.ctx.Err()}
		}
	}, false
}

func (w *formWait) screen() string {
	if frame, ok := w.session.Current(); ok {
		return frame.Screen
	}
	return ""
}

type senderWroteMsg struct{}

type loadingStoppedMsg struct {
	err error
}

type loadingModel struct {
	spinner spinner.Model
	wait    *formWait
	first   tea.Cmd
	screen  string
	err     error
	done    bool
}

func newLoadingModel(wait *formWait, first tea.Cmd) loadingModel {
	return loadingModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
		),
		wait:   wait,
		first:  first,
		screen: wait.screen(),
	}
}

func (m loadingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.first)
}

func (m loadingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case senderWroteMsg:
		// A timeout or a failed load may have moved the session to
		// another frame that is itself still loading.
		cmd, settled := m.wait.next()
		if settled {
			m.done = true
			return m, tea.Quit
		}
		m.screen = m.wait.screen()
		return m, cmd
	case loadingStoppedMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m loadingModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Loading %s...", m.spinner.View(), m.screen)
}

// awaitForm shows a spinner naming the loading screen until its form is
// written to the terminal.
func awaitForm(output io.Writer, wait *formWait) error {
	first, settled := wait.next()
	if settled {
		return nil
	}

	p := tea.NewProgram(
		newLoadingModel(wait, first),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(wait.ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("show loading spinner: %w", err)
	}

	result, ok := finalModel.(loadingModel)
	if !ok {
		return fmt.Errorf("unexpected final loading model type %T", finalModel)
	}
	return result.err
}
