package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wsdtool/wsdtool/internal/wsd"
)

var (
	// ErrMalformed is returned for payloads that are not a SOAP 1.2 envelope.
	ErrMalformed = errors.New("malformed soap message")

	// ErrNotFound is returned when a looked-up element is absent.
	ErrNotFound = errors.New("element not found")
)

// Message is a parsed SOAP envelope. The header is decoded eagerly; body
// elements are decoded on demand with Find and DecodeBody, which walk the
// original bytes so that namespace declarations on ancestors stay in scope.
type Message struct {
	Header wsd.Header
	Action wsd.Action

	// BodyName is the first element inside soap:Body, zero for empty bodies.
	BodyName xml.Name

	raw   []byte
	fault *Fault
}

type envelopeXML struct {
	XMLName xml.Name  `xml:"http://www.w3.org/2003/05/soap-envelope Envelope"`
	Header  headerXML `xml:"http://www.w3.org/2003/05/soap-envelope Header"`
}

type headerXML struct {
	Action    string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing Action"`
	MessageID string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing MessageID"`
	RelatesTo string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing RelatesTo"`
	To        string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing To"`
	From      string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing From>Address"`

	AppSequence *appSequenceXML `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery AppSequence"`
}

type appSequenceXML struct {
	InstanceID    string `xml:"InstanceId,attr"`
	SequenceID    string `xml:"SequenceId,attr"`
	MessageNumber string `xml:"MessageNumber,attr"`
}

// Parse decodes a SOAP envelope. Faults are detected here and exposed
// through Fault; Parse itself only fails on malformed input.
func Parse(data []byte) (*Message, error) {
	var env envelopeXML
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := &Message{
		Header: wsd.Header{
			Action:    strings.TrimSpace(env.Header.Action),
			MessageID: strings.TrimSpace(env.Header.MessageID),
			RelatesTo: strings.TrimSpace(env.Header.RelatesTo),
			To:        strings.TrimSpace(env.Header.To),
			From:      strings.TrimSpace(env.Header.From),
		},
		raw: data,
	}
	m.Action = wsd.ParseAction(m.Header.Action)

	if seq := env.Header.AppSequence; seq != nil {
		m.Header.AppSequence = wsd.AppSequence{
			InstanceID:    parseInt(seq.InstanceID),
			SequenceID:    parseInt(seq.SequenceID),
			MessageNumber: parseInt(seq.MessageNumber),
		}
	}

	name, err := m.bodyName()
	if err != nil {
		return nil, err
	}
	m.BodyName = name

	if name.Space == NSSoap && name.Local == "Fault" {
		var f faultXML
		if err := m.DecodeBody(&f); err != nil {
			return nil, err
		}
		m.fault = f.toFault()
	}

	return m, nil
}

// Raw returns the bytes the message was parsed from.
func (m *Message) Raw() []byte {
	return m.raw
}

// Fault returns the decoded fault, or nil when the body is not a fault.
func (m *Message) Fault() *Fault {
	return m.fault
}

// IsFault reports whether the message carries a soap:Fault.
func (m *Message) IsFault() bool {
	return m.fault != nil
}

// Err returns the fault as an error, or nil.
func (m *Message) Err() error {
	if m.fault == nil {
		return nil
	}
	return m.fault
}

// DecodeBody decodes the first element inside soap:Body into v.
func (m *Message) DecodeBody(v any) error {
	d := xml.NewDecoder(bytes.NewReader(m.raw))
	inBody := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if inBody {
				if err := d.DecodeElement(v, &se); err != nil {
					return fmt.Errorf("%w: decode %s: %v", ErrMalformed, se.Name.Local, err)
				}
				return nil
			}
			if se.Name.Space == NSSoap && se.Name.Local == "Body" {
				inBody = true
			}
		case xml.EndElement:
			if inBody {
				return ErrNotFound
			}
		}
	}
}

// Find decodes the first element named {space}local anywhere in the
// envelope into v.
func (m *Message) Find(space, local string, v any) error {
	found := false
	err := m.walk(space, local, func(d *xml.Decoder, se xml.StartElement) (bool, error) {
		found = true
		return false, d.DecodeElement(v, &se)
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// FindText returns the trimmed character data of the first element named
// {space}local.
func (m *Message) FindText(space, local string) (string, error) {
	var s string
	if err := m.Find(space, local, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// FindAll decodes every element named {space}local. Matches nested inside
// an earlier match are not visited.
func FindAll[T any](m *Message, space, local string) ([]T, error) {
	var out []T
	err := m.walk(space, local, func(d *xml.Decoder, se xml.StartElement) (bool, error) {
		var v T
		if err := d.DecodeElement(&v, &se); err != nil {
			return false, err
		}
		out = append(out, v)
		return true, nil
	})
	return out, err
}

func (m *Message) walk(space, local string, fn func(*xml.Decoder, xml.StartElement) (bool, error)) error {
	d := xml.NewDecoder(bytes.NewReader(m.raw))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Space != space || se.Name.Local != local {
			continue
		}
		more, err := fn(d, se)
		if err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrMalformed, local, err)
		}
		if !more {
			return nil
		}
	}
}

func (m *Message) bodyName() (xml.Name, error) {
	d := xml.NewDecoder(bytes.NewReader(m.raw))
	inBody := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return xml.Name{}, fmt.Errorf("%w: missing soap:Body", ErrMalformed)
		}
		if err != nil {
			return xml.Name{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if inBody {
				return se.Name, nil
			}
			if se.Name.Space == NSSoap && se.Name.Local == "Body" {
				inBody = true
			}
		case xml.EndElement:
			if inBody {
				return xml.Name{}, nil
			}
		}
	}
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
