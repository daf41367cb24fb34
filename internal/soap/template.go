package soap

import (
	"bytes"
	"embed"
	"encoding/xml"
	"fmt"
	"text/template"

	"github.com/google/uuid"
)

//go:embed templates/*.xml
var templateFS embed.FS

// Template names a request body template.
type Template string

const (
	TemplateProbe                  Template = "probe.xml"
	TemplateResolve                Template = "resolve.xml"
	TemplateTransferGet            Template = "transfer_get.xml"
	TemplateSubscribe              Template = "subscribe.xml"
	TemplateRenew                  Template = "renew.xml"
	TemplateUnsubscribe            Template = "unsubscribe.xml"
	TemplateGetStatus              Template = "get_status.xml"
	TemplateScanAvailableSubscribe Template = "scan_available_subscribe.xml"
	TemplateGetScannerElements     Template = "get_scanner_elements.xml"
	TemplateCreateScanJob          Template = "create_scan_job.xml"
	TemplateRetrieveImage          Template = "retrieve_image.xml"
	TemplateCancelJob              Template = "cancel_job.xml"
	TemplateGetActiveJobs          Template = "get_active_jobs.xml"
	TemplateGetJobHistory          Template = "get_job_history.xml"
	TemplateValidateScanTicket     Template = "validate_scan_ticket.xml"
	TemplateGetJobElements         Template = "get_job_elements.xml"
	TemplateGetPrinterElements     Template = "get_printer_elements.xml"
)

var templates = template.Must(
	template.New("soap").Option("missingkey=zero").ParseFS(templateFS, "templates/*.xml"),
)

// Fields are the substitution values for a template. Values are escaped
// before substitution; missing keys render as empty strings.
type Fields map[string]string

// Request is a rendered request body together with its message id.
type Request struct {
	MessageID string
	Body      []byte
}

// NewMessageID returns a fresh urn:uuid message id.
func NewMessageID() string {
	return "urn:uuid:" + uuid.NewString()
}

// Build renders the template with fields and a fresh message id. A
// MessageID already present in fields is kept, which tests use to get
// deterministic output.
func Build(name Template, fields Fields) (*Request, error) {
	id := fields["MessageID"]
	if id == "" {
		id = NewMessageID()
	}

	data := make(map[string]string, len(fields)+1)
	data["MessageID"] = id
	for k, v := range fields {
		var buf bytes.Buffer
		if err := xml.EscapeText(&buf, []byte(v)); err != nil {
			return nil, fmt.Errorf("escape field %s: %w", k, err)
		}
		data[k] = buf.String()
	}

	var out bytes.Buffer
	if err := templates.ExecuteTemplate(&out, string(name), data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	return &Request{MessageID: id, Body: out.Bytes()}, nil
}
