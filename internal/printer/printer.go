// Package printer reads printer state with WS-Print GetPrinterElements.
package printer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/soapclient"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// Description is the printer's self description
type Description struct {
	Name           string `xml:"PrinterName"`
	Info           string `xml:"PrinterInfo"`
	Location       string `xml:"PrinterLocation"`
	ColorSupported bool   `xml:"ColorSupported"`
	DeviceID       string `xml:"DeviceId"`
	PagesPerMinute int    `xml:"PagesPerMinute"`
}

// Status is the printer's current state
type Status struct {
	State          string   `xml:"PrinterState"`
	PrimaryReason  string   `xml:"PrinterPrimaryStateReason"`
	Reasons        []string `xml:"PrinterStateReasons>PrinterStateReason"`
	QueuedJobCount int      `xml:"QueuedJobCount"`
}

// Consumable is one supply, such as a toner cartridge. Level is a
// percentage, or negative when the printer cannot tell.
type Consumable struct {
	Type  string `xml:"Type"`
	Color string `xml:"Color"`
	Level int    `xml:"Level"`
}

// Configuration is the installed printer configuration
type Configuration struct {
	Consumables []Consumable `xml:"Consumables>ConsumableEntry"`
}

// Elements are the printer elements a reply carried. Printers may mark
// any of them invalid, which leaves it nil.
type Elements struct {
	Description   *Description
	Configuration *Configuration
	Status        *Status
}

// Client performs WS-Print operations against a hosted print service
type Client struct {
	soap *soapclient.Client
	log  *zap.Logger
}

// NewClient creates a print client
func NewClient(c *soapclient.Client) *Client {
	return &Client{soap: c, log: logging.Named("printer")}
}

// GetPrinterElements fetches the description, configuration and status
// of the printer behind svc.
func (c *Client) GetPrinterElements(ctx context.Context, svc wsd.HostedService) (*Elements, error) {
	msg, err := c.soap.Call(ctx, []string{svc.EpRefAddr}, soap.TemplateGetPrinterElements, soap.Fields{"To": svc.EpRefAddr})
	if err != nil {
		return nil, fmt.Errorf("get printer elements: %w", err)
	}

	var e Elements
	if e.Description, err = findOptional[Description](msg, "PrinterDescription"); err != nil {
		return nil, fmt.Errorf("get printer elements: description: %w", err)
	}
	if e.Configuration, err = findOptional[Configuration](msg, "PrinterConfiguration"); err != nil {
		return nil, fmt.Errorf("get printer elements: configuration: %w", err)
	}
	if e.Status, err = findOptional[Status](msg, "PrinterStatus"); err != nil {
		return nil, fmt.Errorf("get printer elements: status: %w", err)
	}
	if e.Description == nil && e.Configuration == nil && e.Status == nil {
		return nil, fmt.Errorf("get printer elements: %w", soap.ErrNotFound)
	}

	c.log.Debug("Printer elements", zap.String("service", svc.EpRefAddr), zap.Bool("status", e.Status != nil))
	return &e, nil
}

func findOptional[T any](msg *soap.Message, local string) (*T, error) {
	v := new(T)
	err := msg.Find(soap.NSPrint, local, v)
	if errors.Is(err, soap.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
