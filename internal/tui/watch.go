package tui

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mrz1836/forge/internal/checkpoint"
)

// WatchConfig configures the live session dashboard.
type WatchConfig struct {
	// Interval is the refresh interval.
	Interval time.Duration
	// BellEnabled rings the terminal bell when a session starts needing the operator.
	BellEnabled bool
	// Bell receives the BEL character.
	Bell io.Writer
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Interval:    2 * time.Second,
		BellEnabled: true,
		Bell:        io.Discard,
	}
}

// SessionLister lists stored sessions.
type SessionLister interface {
	List(ctx context.Context) ([]checkpoint.Summary, error)
}

// WatchModel is the Bubble Tea model behind 'forge list --watch'.
type WatchModel struct {
	sessions   []checkpoint.Summary
	attention  map[string]bool
	lastUpdate time.Time
	config     WatchConfig
	width      int
	quitting   bool
	err        error
	lister     SessionLister
	bar        *ProgressBar

	baseCtx context.Context //nolint:containedctx // Bubble Tea commands run outside the caller
}

// TickMsg signals time for a refresh.
type TickMsg time.Time

// RefreshMsg carries the result of a refresh.
type RefreshMsg struct {
	Sessions []checkpoint.Summary
	Err      error
}

// BellMsg reports that the bell was rung.
type BellMsg struct{}

// NewWatchModel creates a WatchModel polling lister.
func NewWatchModel(ctx context.Context, lister SessionLister, cfg WatchConfig) *WatchModel {
	if cfg.Bell == nil {
		cfg.Bell = io.Discard
	}
	return &WatchModel{
		attention: make(map[string]bool),
		config:    cfg,
		width:     80,
		lister:    lister,
		bar:       NewProgressBar(12),
		baseCtx:   ctx,
	}
}

// Init loads the first snapshot and starts the timer.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

// Update handles key presses, resizes, ticks and refresh results.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case TickMsg:
		return m, m.refresh()
	case RefreshMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, m.tick()
		}
		m.sessions = msg.Sessions
		sortByAttention(m.sessions)
		m.lastUpdate = time.Now()
		m.err = nil
		return m, tea.Batch(m.tick(), m.checkForBell())
	}
	return m, nil
}

// View renders the dashboard.
func (m *WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(StyleBold.Render("forge sessions"))
	b.WriteString("\n\n")
	if m.err != nil {
		_, _ = fmt.Fprintf(&b, "Error: %v\n", m.err)
	}

	if len(m.sessions) == 0 {
		b.WriteString("No sessions. Run 'forge run <goal>' to start one.\n")
	} else {
		table := NewTable(&b, []TableColumn{
			{Name: "THREAD", Width: 36},
			{Name: "STATUS", Width: 22},
			{Name: "NEXT", Width: 16},
			{Name: "TASKS", Width: 20},
		})
		table.WriteHeader()
		for _, s := range m.sessions {
			table.WriteRow(s.ThreadID, FormatStatus(s.Status), NodeLabel(s.NextNode), TaskProgress(m.bar, s.CompletedTasks, s.TotalTasks))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	if !m.lastUpdate.IsZero() {
		_, _ = fmt.Fprintf(&b, "\nLast updated: %s", m.lastUpdate.Format("15:04:05"))
	}
	b.WriteString("\nPress 'q' to quit\n")
	return b.String()
}

// Sessions returns the current snapshot.
func (m *WatchModel) Sessions() []checkpoint.Summary {
	return m.sessions
}

// Err returns the error from the last refresh.
func (m *WatchModel) Err() error {
	return m.err
}

// IsQuitting reports whether the model is shutting down.
func (m *WatchModel) IsQuitting() bool {
	return m.quitting
}

func (m *WatchModel) tick() tea.Cmd {
	return tea.Tick(m.config.Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *WatchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx := m.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		sessions, err := m.lister.List(ctx)
		if err != nil {
			return RefreshMsg{Err: fmt.Errorf("failed to list sessions: %w", err)}
		}
		return RefreshMsg{Sessions: sessions}
	}
}

// checkForBell rings once per session that newly needs the operator.
func (m *WatchModel) checkForBell() tea.Cmd {
	ring := false
	seen := make(map[string]bool, len(m.sessions))
	for _, s := range m.sessions {
		seen[s.ThreadID] = true
		now := needsOperator(s)
		if now && !m.attention[s.ThreadID] {
			ring = true
		}
		m.attention[s.ThreadID] = now
	}
	for id := range m.attention {
		if !seen[id] {
			delete(m.attention, id)
		}
	}
	if !ring || !m.config.BellEnabled {
		return nil
	}
	w := m.config.Bell
	return func() tea.Msg {
		_, _ = io.WriteString(w, "\a")
		return BellMsg{}
	}
}

func (m *WatchModel) footer() string {
	count := 0
	var first *checkpoint.Summary
	for i := range m.sessions {
		if needsOperator(m.sessions[i]) {
			count++
			if first == nil {
				first = &m.sessions[i]
			}
		}
	}

	word := "sessions"
	if len(m.sessions) == 1 {
		word = "session"
	}
	summary := fmt.Sprintf("%d %s", len(m.sessions), word)
	if count > 0 {
		verb := "need"
		if count == 1 {
			verb = "needs"
		}
		summary += fmt.Sprintf(", %d %s attention", count, verb)
	}
	if first != nil {
		if action := SuggestedAction(first.Status, first.Paused); action != "" {
			summary += "\nRun: " + action + " " + first.ThreadID
		}
	}
	return summary
}

func needsOperator(s checkpoint.Summary) bool {
	return s.Paused || IsAttentionStatus(s.Status)
}

// sortByAttention moves sessions needing the operator first and keeps the
// store's newest-first order otherwise.
func sortByAttention(sessions []checkpoint.Summary) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return needsOperator(sessions[i]) && !needsOperator(sessions[j])
	})
}

// NodeLabel turns a node name like "spec_approval" into "Spec Approval".
func NodeLabel(node string) string {
	if node == "" {
		return "-"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(node, "_", " "))
}

// RunWatch runs the dashboard until the user quits or ctx ends.
func RunWatch(ctx context.Context, lister SessionLister, cfg WatchConfig, in io.Reader, out io.Writer) error {
	model := NewWatchModel(ctx, lister, cfg)
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
