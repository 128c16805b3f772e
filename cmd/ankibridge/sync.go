package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/anki-bridge/backend"
	"github.com/wippyai/anki-bridge/progress"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newSyncMediaCommand(opts *rootOptions) *cobra.Command {
	var hkey, endpoint string
	cmd := &cobra.Command{
		Use:   "sync-media",
		Short: "Sync the media folder with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := backend.MediaSyncAuth{
				HKey:        opts.cfg.Sync.HKey,
				Endpoint:    opts.cfg.Sync.Endpoint,
				MediaFolder: opts.cfg.Collection.MediaFolder,
				MediaDB:     opts.cfg.Collection.MediaDB,
			}
			if hkey != "" {
				auth.HKey = hkey
			}
			if endpoint != "" {
				auth.Endpoint = endpoint
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return syncInteractive(ctx, opts, auth, f)
			}
			return syncPlain(ctx, opts, auth, out)
		},
	}
	cmd.Flags().StringVar(&hkey, "hkey", "", "sync key (overrides config)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "media sync endpoint (overrides config)")
	return cmd
}

// syncPlain prints one line per progress event. Interrupting the process
// asks the engine to stop at its next progress notification.
func syncPlain(ctx context.Context, opts *rootOptions, auth backend.MediaSyncAuth, out io.Writer) error {
	canceller := progress.NewCanceller(ctx, func(ev progress.Event) bool {
		opts.logger.Debug("sync progress", zap.Stringer("event", ev))
		fmt.Fprintln(out, ev)
		return true
	})
	err := opts.withBackend(ctx, func(b *backend.Backend) error {
		return b.SyncMedia(ctx, auth)
	}, backend.WithProgressObserver(canceller.Observe))
	if backend.IsInterrupted(err) {
		fmt.Fprintln(out, "sync interrupted")
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "sync complete")
	return nil
}

func syncInteractive(ctx context.Context, opts *rootOptions, auth backend.MediaSyncAuth, out *os.File) error {
	canceller := progress.NewCanceller(ctx, nil)
	m := newSyncModel(canceller)
	p := tea.NewProgram(m, tea.WithOutput(out))

	observer := func(ev progress.Event) bool {
		p.Send(syncProgressMsg{event: ev})
		return canceller.Observe(ev)
	}
	go func() {
		err := opts.withBackend(ctx, func(b *backend.Backend) error {
			return b.SyncMedia(ctx, auth)
		}, backend.WithProgressObserver(observer))
		p.Send(syncDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	return final.(*syncModel).err
}

type syncProgressMsg struct {
	event progress.Event
}

type syncDoneMsg struct {
	err error
}

// syncModel shows a spinner and the steps reported so far. Quitting before
// the engine finishes requests an interruption and waits for it.
type syncModel struct {
	err       error
	canceller *progress.Canceller
	steps     []string
	spinner   spinner.Model
	stopping  bool
	done      bool
}

func newSyncModel(canceller *progress.Canceller) *syncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = stepStyle
	return &syncModel{canceller: canceller, spinner: s}
}

func (m *syncModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *syncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			m.stopping = true
			m.canceller.Cancel()
		}

	case syncProgressMsg:
		m.steps = append(m.steps, msg.event.String())

	case syncDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *syncModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Media Sync"))
	b.WriteString("\n\n")
	for _, step := range m.steps {
		b.WriteString("  ")
		b.WriteString(stepStyle.Render(step))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.done && backend.IsInterrupted(m.err):
		b.WriteString(errorStyle.Render("Sync interrupted"))
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.done:
		b.WriteString(resultStyle.Render("Sync complete"))
	case m.stopping:
		b.WriteString(m.spinner.View() + " stopping...")
	default:
		b.WriteString(m.spinner.View() + " syncing")
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q stop"))
	}
	b.WriteString("\n")
	return b.String()
}
