// Package transfer retrieves device metadata with WS-Transfer Get.
package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/soapclient"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// Metadata section dialects
const (
	DialectThisModel    = "http://schemas.xmlsoap.org/ws/2006/02/devprof/ThisModel"
	DialectThisDevice   = "http://schemas.xmlsoap.org/ws/2006/02/devprof/ThisDevice"
	DialectRelationship = "http://schemas.xmlsoap.org/ws/2006/02/devprof/Relationship"
)

// Client performs WS-Transfer Get against targets
type Client struct {
	soap *soapclient.Client
}

// NewClient creates a transfer client
func NewClient(c *soapclient.Client) *Client {
	return &Client{soap: c}
}

// Get asks target for its model, device and hosted service metadata.
// A target without transport addresses fails with ErrUnreachable.
func (c *Client) Get(ctx context.Context, target wsd.TargetService) (wsd.TargetInfo, []wsd.HostedService, error) {
	msg, err := c.get(ctx, target)
	if err != nil {
		return wsd.TargetInfo{}, nil, err
	}

	var meta metadataXML
	if err := msg.Find(soap.NSMex, "Metadata", &meta); err != nil {
		return wsd.TargetInfo{}, nil, fmt.Errorf("get %s: metadata: %w", target.EpRefAddr, err)
	}

	info, hosted := meta.decode()
	return info, hosted, nil
}

// Ping checks that target answers a WS-Transfer Get
func (c *Client) Ping(ctx context.Context, target wsd.TargetService) error {
	_, err := c.get(ctx, target)
	return err
}

func (c *Client) get(ctx context.Context, target wsd.TargetService) (*soap.Message, error) {
	if !target.Usable() {
		return nil, fmt.Errorf("%w: %s has no transport address", transport.ErrUnreachable, target.EpRefAddr)
	}

	msg, err := c.soap.Call(ctx, target.XAddrs.Sorted(), soap.TemplateTransferGet, soap.Fields{"To": target.EpRefAddr})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target.EpRefAddr, err)
	}
	return msg, nil
}

type metadataXML struct {
	Sections []sectionXML `xml:"http://schemas.xmlsoap.org/ws/2004/09/mex MetadataSection"`
}

type sectionXML struct {
	Dialect      string           `xml:"Dialect,attr"`
	ThisModel    *thisModelXML    `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ThisModel"`
	ThisDevice   *thisDeviceXML   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ThisDevice"`
	Relationship *relationshipXML `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof Relationship"`
}

type thisModelXML struct {
	Manufacturer    []string `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof Manufacturer"`
	ManufacturerURL string   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ManufacturerUrl"`
	ModelName       []string `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ModelName"`
	ModelNumber     string   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ModelNumber"`
	ModelURL        string   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ModelUrl"`
	PresentationURL string   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof PresentationUrl"`
	DeviceCategory  string   `xml:"http://schemas.microsoft.com/windows/pnpx/2005/10 DeviceCategory"`
}

type thisDeviceXML struct {
	FriendlyName    []string `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof FriendlyName"`
	FirmwareVersion string   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof FirmwareVersion"`
	SerialNumber    string   `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof SerialNumber"`
}

type relationshipXML struct {
	Type   string      `xml:"Type,attr"`
	Hosted []hostedXML `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof Hosted"`
}

type hostedXML struct {
	Address        string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing EndpointReference>Address"`
	Types          string `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof Types"`
	ServiceID      string `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ServiceId"`
	HardwareID     string `xml:"http://schemas.microsoft.com/windows/pnpx/2005/10 HardwareId"`
	CompatibleID   string `xml:"http://schemas.microsoft.com/windows/pnpx/2005/10 CompatibleId"`
	ServiceAddress string `xml:"http://schemas.xmlsoap.org/ws/2006/02/devprof ServiceAddress"`
}

func (m metadataXML) decode() (wsd.TargetInfo, []wsd.HostedService) {
	var info wsd.TargetInfo
	var hosted []wsd.HostedService

	for _, s := range m.Sections {
		switch {
		case s.Dialect == DialectThisModel && s.ThisModel != nil:
			tm := s.ThisModel
			info.Manufacturer = first(tm.Manufacturer)
			info.ManufacturerURL = strings.TrimSpace(tm.ManufacturerURL)
			info.ModelName = first(tm.ModelName)
			info.ModelNumber = strings.TrimSpace(tm.ModelNumber)
			info.ModelURL = strings.TrimSpace(tm.ModelURL)
			info.PresentationURL = strings.TrimSpace(tm.PresentationURL)
			info.DeviceCategory = wsd.ParseStringSet(tm.DeviceCategory)
		case s.Dialect == DialectThisDevice && s.ThisDevice != nil:
			td := s.ThisDevice
			info.FriendlyName = first(td.FriendlyName)
			info.FirmwareVersion = strings.TrimSpace(td.FirmwareVersion)
			info.SerialNumber = strings.TrimSpace(td.SerialNumber)
		case s.Dialect == DialectRelationship && s.Relationship != nil:
			for _, h := range s.Relationship.Hosted {
				hosted = append(hosted, wsd.HostedService{
					EpRefAddr:      strings.TrimSpace(h.Address),
					Types:          wsd.ParseStringSet(h.Types),
					ServiceID:      strings.TrimSpace(h.ServiceID),
					HardwareID:     strings.TrimSpace(h.HardwareID),
					CompatibleID:   strings.TrimSpace(h.CompatibleID),
					ServiceAddress: strings.TrimSpace(h.ServiceAddress),
				})
			}
		}
	}
	return info, hosted
}

// first returns the first non-empty localized value
func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// FindService returns the first hosted service carrying type t
func FindService(hosted []wsd.HostedService, t string) (wsd.HostedService, bool) {
	for _, h := range hosted {
		if h.HasType(t) {
			return h, true
		}
	}
	return wsd.HostedService{}, false
}
