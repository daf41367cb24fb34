package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/ui"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// maxRecent bounds the event log shown under the device list
const maxRecent = 8

// Messages
type announcementMsg discovery.Announcement
type streamClosedMsg struct{}
type errMsg struct{ err error }

// monitorKeyMap defines key bindings for the monitor screen
type monitorKeyMap struct {
	Clear key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Quit}}
}

var monitorKeys = monitorKeyMap{
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear log"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

type logEntry struct {
	at   time.Time
	text string
}

// MonitorModel shows the known devices and updates them from Hello and Bye
// announcements as they arrive.
type MonitorModel struct {
	devices wsd.TargetSet
	recent  []logEntry
	events  <-chan discovery.Announcement
	errs    <-chan error
	err     error

	spinner spinner.Model
	help    help.Model
	width   int
	done    bool
}

// NewMonitorModel creates a model showing initial and consuming events.
// errs may be nil.
func NewMonitorModel(initial wsd.TargetSet, events <-chan discovery.Announcement, errs <-chan error) MonitorModel {
	devices := wsd.NewTargetSet()
	for _, t := range initial {
		devices.Add(t)
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return MonitorModel{
		devices: devices,
		events:  events,
		errs:    errs,
		spinner: s,
		help:    help.New(),
		width:   ui.MinTerminalWidth,
	}
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.waitForError())
}

func (m MonitorModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		a, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return announcementMsg(a)
	}
}

func (m MonitorModel) waitForError() tea.Cmd {
	if m.errs == nil {
		return nil
	}
	return func() tea.Msg {
		err, ok := <-m.errs
		if !ok {
			return nil
		}
		return errMsg{err}
	}
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, monitorKeys.Quit):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, monitorKeys.Clear):
			m.recent = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case announcementMsg:
		a := discovery.Announcement(msg)
		if a.Hello {
			m.devices.Add(a.Target)
		} else {
			m.devices.Remove(a.Target.EpRefAddr)
		}
		m.recent = append(m.recent, logEntry{at: time.Now(), text: ui.FormatAnnouncement(a)})
		if len(m.recent) > maxRecent {
			m.recent = m.recent[len(m.recent)-maxRecent:]
		}
		return m, m.waitForEvent()

	case errMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m MonitorModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("WSD Monitor"))
	b.WriteString("\n")
	if !m.done {
		b.WriteString(m.spinner.View() + SubtitleStyle.Render(fmt.Sprintf("listening for announcements • %d devices", len(m.devices))))
	}
	b.WriteString("\n\n")

	if len(m.devices) == 0 {
		b.WriteString(HelpStyle.Render("  No devices known yet"))
		b.WriteString("\n")
	}
	for _, t := range m.devices.Sorted() {
		b.WriteString(DeviceStyle.Render(t.EpRefAddr))
		b.WriteString("  ")
		b.WriteString(HelpStyle.Render(strings.Join(t.XAddrs.Sorted(), " ")))
		b.WriteString("\n")
	}

	if len(m.recent) > 0 {
		lines := make([]string, 0, len(m.recent))
		for _, e := range m.recent {
			lines = append(lines, e.at.Format("15:04:05")+" "+e.text)
		}
		b.WriteString("\n")
		b.WriteString(LogBoxStyle.Width(max(m.width-4, 20)).Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n" + ErrorStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + m.help.View(monitorKeys) + "\n")
	return b.String()
}

// Devices returns the devices currently shown
func (m MonitorModel) Devices() wsd.TargetSet {
	return m.devices
}

// Err returns the error that stopped the monitor, if any
func (m MonitorModel) Err() error {
	return m.err
}

// RunMonitor runs the monitor until the user quits, ctx ends, or events
// is closed.
func RunMonitor(ctx context.Context, initial wsd.TargetSet, events <-chan discovery.Announcement, errs <-chan error) error {
	p := tea.NewProgram(NewMonitorModel(initial, events, errs), tea.WithContext(ctx), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("monitor ui: %w", err)
	}
	if fm, ok := final.(MonitorModel); ok {
		return fm.Err()
	}
	return nil
}
