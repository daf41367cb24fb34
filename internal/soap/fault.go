package soap

import (
	"errors"
	"fmt"
	"strings"
)

// Fault is a decoded soap:Fault. It is returned as an error by every
// request/response operation that receives one and is never retried.
type Fault struct {
	Code    string
	Subcode string
	Reason  string
	Detail  string
}

func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString("soap fault")
	if f.Code != "" {
		fmt.Fprintf(&b, " %s", f.Code)
	}
	if f.Subcode != "" {
		fmt.Fprintf(&b, "/%s", f.Subcode)
	}
	if f.Reason != "" {
		fmt.Fprintf(&b, ": %s", f.Reason)
	}
	return b.String()
}

// IsFault reports whether err wraps a *Fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// AsFault extracts the fault from err.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

type faultXML struct {
	Code struct {
		Value   string `xml:"http://www.w3.org/2003/05/soap-envelope Value"`
		Subcode struct {
			Value string `xml:"http://www.w3.org/2003/05/soap-envelope Value"`
		} `xml:"http://www.w3.org/2003/05/soap-envelope Subcode"`
	} `xml:"http://www.w3.org/2003/05/soap-envelope Code"`
	Reason struct {
		Text []string `xml:"http://www.w3.org/2003/05/soap-envelope Text"`
	} `xml:"http://www.w3.org/2003/05/soap-envelope Reason"`
	Detail struct {
		Inner string `xml:",innerxml"`
	} `xml:"http://www.w3.org/2003/05/soap-envelope Detail"`
}

func (f faultXML) toFault() *Fault {
	out := &Fault{
		Code:    strings.TrimSpace(f.Code.Value),
		Subcode: strings.TrimSpace(f.Code.Subcode.Value),
		Detail:  strings.TrimSpace(f.Detail.Inner),
	}
	if len(f.Reason.Text) > 0 {
		out.Reason = strings.TrimSpace(f.Reason.Text[0])
	}
	return out
}
