package scan

import (
	"errors"
	"fmt"

	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// ErrUnexpectedEvent is returned by DecodeEvent for actions that are not
// scanner events.
var ErrUnexpectedEvent = errors.New("not a scanner event")

// Event is a decoded scanner event. An elements change can carry up to
// three payloads; every other action sets exactly one field.
type Event struct {
	Action wsd.Action

	Description   *ScannerDescription
	Configuration *ScannerConfiguration
	DefaultTicket *ScanTicket

	Summary       *StatusSummary
	Condition     *Condition
	Cleared       *ConditionCleared
	Job           *JobStatus
	JobEnded      *JobSummary
	ScanAvailable *ScanAvailable
}

// DecodeEvent decodes the payload of a scanner event notification
func DecodeEvent(msg *soap.Message) (Event, error) {
	ev := Event{Action: msg.Action}

	var err error
	switch msg.Action {
	case wsd.ActionScannerElementsChange:
		ev.Description, err = findOptional[ScannerDescription](msg, "ScannerDescription")
		if err == nil {
			ev.Configuration, err = findOptional[ScannerConfiguration](msg, "ScannerConfiguration")
		}
		if err == nil {
			ev.DefaultTicket, err = findOptional[ScanTicket](msg, "DefaultScanTicket")
		}
		if err == nil && ev.Description == nil && ev.Configuration == nil && ev.DefaultTicket == nil {
			err = soap.ErrNotFound
		}
	case wsd.ActionScannerStatusSummary:
		ev.Summary, err = find[StatusSummary](msg, "StatusSummary")
	case wsd.ActionScannerStatusCondition:
		ev.Condition, err = find[Condition](msg, "DeviceCondition")
	case wsd.ActionScannerStatusConditionCleared:
		ev.Cleared, err = find[ConditionCleared](msg, "DeviceConditionCleared")
	case wsd.ActionJobStatus:
		ev.Job, err = find[JobStatus](msg, "JobStatus")
		if err == nil {
			ev.Job.normalize()
		}
	case wsd.ActionJobEndState:
		ev.JobEnded, err = find[JobSummary](msg, "JobEndState")
		if err == nil {
			ev.JobEnded.normalize()
		}
	case wsd.ActionScanAvailable:
		ev.ScanAvailable, err = find[ScanAvailable](msg, "ScanAvailableEvent")
	default:
		return ev, fmt.Errorf("%w: %s", ErrUnexpectedEvent, msg.Header.Action)
	}
	if err != nil {
		return ev, fmt.Errorf("decode %s: %w", msg.Action, err)
	}
	return ev, nil
}

// Elements is the reply to GetScannerElements
type Elements struct {
	Description   ScannerDescription
	Configuration ScannerConfiguration
	Status        *ScannerStatus
	DefaultTicket ScanTicket
}

func decodeElements(msg *soap.Message) (*Elements, error) {
	var (
		e      Elements
		status statusXML
	)
	if err := msg.Find(soap.NSScan, "ScannerDescription", &e.Description); err != nil {
		return nil, fmt.Errorf("description: %w", err)
	}
	if err := msg.Find(soap.NSScan, "ScannerConfiguration", &e.Configuration); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	if err := msg.Find(soap.NSScan, "ScannerStatus", &status); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if err := msg.Find(soap.NSScan, "DefaultScanTicket", &e.DefaultTicket); err != nil {
		return nil, fmt.Errorf("default ticket: %w", err)
	}
	e.Status = status.decode()
	return &e, nil
}

func find[T any](msg *soap.Message, local string) (*T, error) {
	v := new(T)
	if err := msg.Find(soap.NSScan, local, v); err != nil {
		return nil, err
	}
	return v, nil
}

func findOptional[T any](msg *soap.Message, local string) (*T, error) {
	v, err := find[T](msg, local)
	if errors.Is(err, soap.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
