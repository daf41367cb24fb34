// Package soap builds and parses the SOAP 1.2 envelopes exchanged with WSD
// devices.
//
// Requests are rendered from embedded templates. Every call to Build gets a
// fresh urn:uuid message id which callers use to correlate replies:
//
//	req, err := soap.Build(soap.TemplateProbe, soap.Fields{"Types": "wscn:ScanDeviceType"})
//
// Replies are parsed with Parse. The header is decoded up front and body
// elements are pulled out by namespace and local name:
//
//	msg, err := soap.Parse(data)
//	if f := msg.Fault(); f != nil {
//		return f
//	}
//	id, err := msg.FindText(soap.NSEventing, "Identifier")
//
// The package also carries the xsd:dateTime and xsd:duration helpers used
// by WS-Eventing expirations.
package soap
