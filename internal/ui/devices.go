package ui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/printer"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// DeviceRow is one line of a device listing
type DeviceRow struct {
	Target   wsd.TargetService
	Info     wsd.TargetInfo
	Nickname string
}

// ID is the manufacturer and model joined into one token
func (r DeviceRow) ID() string {
	id := r.Info.DisplayName()
	id = strings.ReplaceAll(id, " ", "_")
	return strings.ReplaceAll(id, ".", "")
}

// Addr is host:port of the first transport address
func (r DeviceRow) Addr() string {
	for _, a := range r.Target.XAddrs.Sorted() {
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return ""
}

// Kinds lists the device classes, e.g. "Printer|Scanner"
func (r DeviceRow) Kinds() string {
	var kinds []string
	if r.Target.IsPrinter() {
		kinds = append(kinds, "Printer")
	}
	if r.Target.IsScanner() {
		kinds = append(kinds, "Scanner")
	}
	return strings.Join(kinds, "|")
}

// Line renders the row as "Manufacturer_Model @ host:port [Printer|Scanner]"
func (r DeviceRow) Line() string {
	line := fmt.Sprintf("%s @ %s [%s]", r.ID(), r.Addr(), r.Kinds())
	if r.Nickname != "" {
		line += " (" + r.Nickname + ")"
	}
	return line
}

// RenderDeviceList renders rows for the terminal. Plain output has one
// indented Line per row.
func RenderDeviceList(rows []DeviceRow, styled bool) string {
	var b strings.Builder
	b.WriteString("\n WSD devices:\n")
	if !styled {
		for _, r := range rows {
			b.WriteString("    " + r.Line() + "\n")
		}
		return b.String()
	}

	if len(rows) == 0 {
		b.WriteString(MutedStyle.Render("    no devices found") + "\n")
		return b.String()
	}

	idWidth, addrWidth := len("DEVICE"), len("ADDRESS")
	for _, r := range rows {
		idWidth = max(idWidth, lipgloss.Width(r.ID()))
		addrWidth = max(addrWidth, len(r.Addr()))
	}

	b.WriteString("    " + TableHeaderStyle.Render(padRight("DEVICE", idWidth)+"  "+padRight("ADDRESS", addrWidth)+"  KIND") + "\n")
	for _, r := range rows {
		kind := r.Kinds()
		if r.Target.IsPrinter() {
			kind = KindPrinterStyle.Render(kind)
		} else {
			kind = KindScannerStyle.Render(kind)
		}
		line := TableCellStyle.Render(padRight(r.ID(), idWidth)) + "  " +
			TableCellStyle.Render(padRight(r.Addr(), addrWidth)) + "  " + kind
		if r.Nickname != "" {
			line += "  " + MutedStyle.Render(r.Nickname)
		}
		b.WriteString("    " + line + "\n")
	}
	return b.String()
}

// RenderTargetInfo renders the WS-Transfer metadata of a target
func RenderTargetInfo(t wsd.TargetService, info wsd.TargetInfo, hosted []wsd.HostedService) string {
	r := NewSuccessResult(info.FriendlyName)
	if r.Title == "" {
		r.Title = info.DisplayName()
	}
	r.AddDetail("Endpoint", t.EpRefAddr)
	r.AddDetail("Addresses", strings.Join(t.XAddrs.Sorted(), " "))
	r.AddDetail("Types", t.Types.String())
	r.AddDetail("Manufacturer", info.Manufacturer)
	r.AddDetail("Model", strings.TrimSpace(info.ModelName+" "+info.ModelNumber))
	if info.FirmwareVersion != "" {
		r.AddDetail("Firmware", info.FirmwareVersion)
	}
	if info.SerialNumber != "" {
		r.AddDetail("Serial", info.SerialNumber)
	}
	if info.PresentationURL != "" {
		r.AddDetail("Presentation", info.PresentationURL)
	}
	for _, h := range hosted {
		r.AddDetail("Service", fmt.Sprintf("%s [%s]", h.EpRefAddr, h.Types))
	}
	return r.Render()
}

// RenderPrinterElements draws the state of a print service. A printer
// reporting anything but a plain state reason gets a warning box.
func RenderPrinterElements(e *printer.Elements) string {
	r := NewSuccessResult("Printer")
	if d := e.Description; d != nil {
		if d.Name != "" {
			r.Title = d.Name
		}
		if d.Location != "" {
			r.AddDetail("Location", d.Location)
		}
		if d.PagesPerMinute > 0 {
			r.AddDetail("Speed", fmt.Sprintf("%d ppm", d.PagesPerMinute))
		}
		r.AddDetail("Color", fmt.Sprint(d.ColorSupported))
	}
	if s := e.Status; s != nil {
		r.AddDetail("State", s.State)
		if s.PrimaryReason != "" && s.PrimaryReason != "None" {
			r.Type = ResultWarning
			r.AddDetail("Reason", s.PrimaryReason)
		}
		r.AddDetail("Queued jobs", fmt.Sprint(s.QueuedJobCount))
	}
	if c := e.Configuration; c != nil {
		for _, supply := range c.Consumables {
			level := "unknown"
			if supply.Level >= 0 {
				level = fmt.Sprintf("%d%%", supply.Level)
			}
			name := supply.Color
			if name == "" {
				name = supply.Type
			}
			r.AddDetail(name, level)
		}
	}
	return r.Render()
}

// FormatAnnouncement renders a Hello or Bye as one line
func FormatAnnouncement(a discovery.Announcement) string {
	marker, verb := HelloMarker, "Hello"
	if !a.Hello {
		marker, verb = ByeMarker, "Bye"
	}
	return fmt.Sprintf("%s %-5s %s [%s]", marker, verb, a.Target.EpRefAddr, a.Target.Types)
}
