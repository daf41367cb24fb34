package soap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wsdtool/wsdtool/internal/wsd"
)

type targetXML struct {
	Address         string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing EndpointReference>Address"`
	Types           string `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery Types"`
	Scopes          string `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery Scopes"`
	XAddrs          string `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery XAddrs"`
	MetadataVersion string `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery MetadataVersion"`
}

func (t targetXML) toTarget() wsd.TargetService {
	mv, _ := strconv.Atoi(strings.TrimSpace(t.MetadataVersion))
	return wsd.TargetService{
		EpRefAddr:   strings.TrimSpace(t.Address),
		Types:       wsd.ParseStringSet(t.Types),
		Scopes:      wsd.ParseStringSet(t.Scopes),
		XAddrs:      wsd.ParseStringSet(t.XAddrs),
		MetaVersion: mv,
	}
}

type probeMatchesXML struct {
	Matches []targetXML `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery ProbeMatch"`
}

type resolveMatchesXML struct {
	Match *targetXML `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery ResolveMatch"`
}

func expectAction(m *Message, want wsd.Action) error {
	if m.Action != want {
		return fmt.Errorf("%w: action %q, want %q", ErrMalformed, m.Header.Action, want.URI())
	}
	return nil
}

// DecodeHello extracts the announcement from a Hello message.
func DecodeHello(m *Message) (*wsd.HelloMessage, error) {
	if err := expectAction(m, wsd.ActionHello); err != nil {
		return nil, err
	}
	var t targetXML
	if err := m.Find(NSDiscovery, "Hello", &t); err != nil {
		return nil, fmt.Errorf("hello body: %w", err)
	}
	target := t.toTarget()
	if target.EpRefAddr == "" {
		return nil, fmt.Errorf("%w: hello without endpoint address", ErrMalformed)
	}
	return &wsd.HelloMessage{Header: m.Header, Target: target}, nil
}

// DecodeBye extracts the announcement from a Bye message.
func DecodeBye(m *Message) (*wsd.ByeMessage, error) {
	if err := expectAction(m, wsd.ActionBye); err != nil {
		return nil, err
	}
	var t targetXML
	if err := m.Find(NSDiscovery, "Bye", &t); err != nil {
		return nil, fmt.Errorf("bye body: %w", err)
	}
	target := t.toTarget()
	if target.EpRefAddr == "" {
		return nil, fmt.Errorf("%w: bye without endpoint address", ErrMalformed)
	}
	return &wsd.ByeMessage{Header: m.Header, Target: target}, nil
}

// DecodeProbeMatches extracts every match from a ProbeMatches message.
// Matches without an endpoint address are skipped.
func DecodeProbeMatches(m *Message) (*wsd.ProbeMatchesMessage, error) {
	if err := expectAction(m, wsd.ActionProbeMatches); err != nil {
		return nil, err
	}
	var pm probeMatchesXML
	if err := m.Find(NSDiscovery, "ProbeMatches", &pm); err != nil {
		return nil, fmt.Errorf("probe matches body: %w", err)
	}
	out := &wsd.ProbeMatchesMessage{Header: m.Header}
	for _, x := range pm.Matches {
		t := x.toTarget()
		if t.EpRefAddr == "" {
			continue
		}
		out.Matches = append(out.Matches, t)
	}
	return out, nil
}

// DecodeResolveMatches extracts the match, if any, from a ResolveMatches
// message.
func DecodeResolveMatches(m *Message) (*wsd.ResolveMatchesMessage, error) {
	if err := expectAction(m, wsd.ActionResolveMatches); err != nil {
		return nil, err
	}
	var rm resolveMatchesXML
	if err := m.Find(NSDiscovery, "ResolveMatches", &rm); err != nil {
		return nil, fmt.Errorf("resolve matches body: %w", err)
	}
	out := &wsd.ResolveMatchesMessage{Header: m.Header}
	if rm.Match != nil {
		t := rm.Match.toTarget()
		if t.EpRefAddr != "" {
			out.Match = &t
		}
	}
	return out, nil
}
