package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

func target(addr string) wsd.TargetService {
	return wsd.TargetService{
		EpRefAddr: addr,
		Types:     wsd.NewStringSet(wsd.PrintDeviceType),
		XAddrs:    wsd.NewStringSet("http://192.0.2.1/" + addr),
	}
}

func update(t *testing.T, m MonitorModel, msg tea.Msg) (MonitorModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(MonitorModel)
	if !ok {
		t.Fatalf("Update() returned %T", next)
	}
	return nm, cmd
}

func TestMonitorModelAnnouncements(t *testing.T) {
	events := make(chan discovery.Announcement, 1)
	m := NewMonitorModel(wsd.NewTargetSet(target("urn:a")), events, nil)

	m, cmd := update(t, m, announcementMsg(discovery.Announcement{Hello: true, Target: target("urn:b")}))
	if cmd == nil {
		t.Error("Hello should wait for the next event")
	}
	if _, ok := m.Devices().Get("urn:b"); !ok {
		t.Error("Hello did not add the target")
	}

	m, _ = update(t, m, announcementMsg(discovery.Announcement{Target: target("urn:a")}))
	if _, ok := m.Devices().Get("urn:a"); ok {
		t.Error("Bye did not remove the target")
	}

	view := m.View()
	if !strings.Contains(view, "urn:b") || !strings.Contains(view, "Bye") {
		t.Errorf("View() = %q", view)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if strings.Contains(m.View(), "Bye") {
		t.Error("clear did not empty the log")
	}
}

func TestMonitorModelLogBounded(t *testing.T) {
	m := NewMonitorModel(nil, make(chan discovery.Announcement), nil)
	for i := 0; i < maxRecent+5; i++ {
		m, _ = update(t, m, announcementMsg(discovery.Announcement{Hello: true, Target: target("urn:x")}))
	}
	if len(m.recent) != maxRecent {
		t.Errorf("len(recent) = %d, want %d", len(m.recent), maxRecent)
	}
}

func TestMonitorModelStops(t *testing.T) {
	m := NewMonitorModel(nil, make(chan discovery.Announcement), nil)

	stopped, cmd := update(t, m, errMsg{errors.New("socket closed")})
	if cmd == nil || stopped.Err() == nil {
		t.Error("error should stop the monitor")
	}
	if !strings.Contains(stopped.View(), "socket closed") {
		t.Error("error not shown")
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("ctrl+c should quit")
	}

	_, cmd = update(t, m, streamClosedMsg{})
	if cmd == nil {
		t.Error("closed stream should quit")
	}
}

func TestMonitorModelWaitForEvent(t *testing.T) {
	events := make(chan discovery.Announcement, 1)
	m := NewMonitorModel(nil, events, nil)

	events <- discovery.Announcement{Hello: true, Target: target("urn:c")}
	msg := m.waitForEvent()()
	if a, ok := msg.(announcementMsg); !ok || a.Target.EpRefAddr != "urn:c" {
		t.Errorf("waitForEvent() = %#v", msg)
	}

	close(events)
	if _, ok := m.waitForEvent()().(streamClosedMsg); !ok {
		t.Error("closed channel should produce streamClosedMsg")
	}

	if m.waitForError() != nil {
		t.Error("nil error channel should give a nil command")
	}
}
