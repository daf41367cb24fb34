package wsd

import "fmt"

// AppSequence orders announcements coming from one device instance.
type AppSequence struct {
	InstanceID    int64
	SequenceID    int64
	MessageNumber int64
}

// IsZero reports whether no sequence was present on the wire.
func (a AppSequence) IsZero() bool {
	return a == AppSequence{}
}

// Newer reports whether a comes after prev. A higher instance id means the
// device restarted, so everything it sends is newer.
func (a AppSequence) Newer(prev AppSequence) bool {
	if a.InstanceID != prev.InstanceID {
		return a.InstanceID > prev.InstanceID
	}
	if a.SequenceID != prev.SequenceID {
		return a.SequenceID > prev.SequenceID
	}
	return a.MessageNumber > prev.MessageNumber
}

func (a AppSequence) String() string {
	return fmt.Sprintf("%d/%d/%d", a.InstanceID, a.SequenceID, a.MessageNumber)
}

// Header is the WS-Addressing metadata of an envelope.
type Header struct {
	Action      string
	MessageID   string
	RelatesTo   string
	To          string
	From        string
	AppSequence AppSequence
}

// HelloMessage announces a device joining the network.
type HelloMessage struct {
	Header Header
	Target TargetService
}

// ByeMessage announces a device leaving. Target usually only carries the
// endpoint address.
type ByeMessage struct {
	Header Header
	Target TargetService
}

// ProbeMatchesMessage answers a Probe.
type ProbeMatchesMessage struct {
	Header  Header
	Matches []TargetService
}

// ResolveMatchesMessage answers a Resolve. Match is nil when the reply
// carried no ResolveMatch element.
type ResolveMatchesMessage struct {
	Header Header
	Match  *TargetService
}

// HostedService is a service exposed by a device, as listed in the
// Relationship metadata section.
type HostedService struct {
	EpRefAddr      string
	Types          StringSet
	ServiceID      string
	HardwareID     string
	CompatibleID   string
	ServiceAddress string
}

// HasType reports whether the service carries the given type.
func (h HostedService) HasType(t string) bool {
	return h.Types.Has(t)
}

// TargetInfo is the device description returned by WS-Transfer Get.
type TargetInfo struct {
	Manufacturer    string
	ManufacturerURL string
	ModelName       string
	ModelNumber     string
	ModelURL        string
	PresentationURL string
	DeviceCategory  StringSet
	FriendlyName    string
	FirmwareVersion string
	SerialNumber    string
}

// DisplayName is the short label used when listing devices.
func (i TargetInfo) DisplayName() string {
	return fmt.Sprintf("%s_%s", i.Manufacturer, i.ModelName)
}
