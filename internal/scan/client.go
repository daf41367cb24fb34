package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/soapclient"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// Fault subcodes the scan service reports for expected conditions
const (
	SubcodeNoImagesAvailable = "ClientErrorNoImagesAvailable"
	SubcodeJobIDNotFound     = "ClientErrorJobIdNotFound"
)

// Client performs WS-Scan operations against a hosted scan service
type Client struct {
	soap *soapclient.Client
	log  *zap.Logger
}

// NewClient creates a scan client
func NewClient(c *soapclient.Client) *Client {
	return &Client{soap: c, log: logging.Named("scan")}
}

// GetScannerElements fetches the description, configuration, status and
// default ticket of the scanner.
func (c *Client) GetScannerElements(ctx context.Context, svc wsd.HostedService) (*Elements, error) {
	msg, err := c.call(ctx, svc, soap.TemplateGetScannerElements, nil)
	if err != nil {
		return nil, fmt.Errorf("get scanner elements: %w", err)
	}
	e, err := decodeElements(msg)
	if err != nil {
		return nil, fmt.Errorf("get scanner elements: %w", err)
	}
	return e, nil
}

// CreateScanJob starts a scan with ticket. scanID and destToken identify a
// device-initiated scan and are empty otherwise.
func (c *Client) CreateScanJob(ctx context.Context, svc wsd.HostedService, ticket ScanTicket, scanID, destToken string) (ScanJob, error) {
	fields := ticket.Fields()
	fields["ScanIdentifier"] = scanID
	fields["DestinationToken"] = destToken

	msg, err := c.call(ctx, svc, soap.TemplateCreateScanJob, fields)
	if err != nil {
		return ScanJob{}, fmt.Errorf("create scan job: %w", err)
	}

	var job ScanJob
	if err := msg.Find(soap.NSScan, "CreateScanJobResponse", &job); err != nil {
		return ScanJob{}, fmt.Errorf("create scan job: %w", err)
	}
	c.log.Info("Scan job created", zap.Int("job", job.ID), zap.String("service", svc.EpRefAddr))
	return job, nil
}

// Validation is the scanner's verdict on a ticket. Corrected is the
// ticket the scanner would accept instead, when it offers one.
type Validation struct {
	Valid     bool
	Corrected *ScanTicket
}

type validationXML struct {
	Valid     string      `xml:"ValidTicket"`
	Corrected *ScanTicket `xml:"ValidScanTicket"`
}

// ValidateScanTicket asks the scanner whether it can run ticket as is
func (c *Client) ValidateScanTicket(ctx context.Context, svc wsd.HostedService, ticket ScanTicket) (Validation, error) {
	msg, err := c.call(ctx, svc, soap.TemplateValidateScanTicket, ticket.Fields())
	if err != nil {
		return Validation{}, fmt.Errorf("validate scan ticket: %w", err)
	}

	var v validationXML
	if err := msg.Find(soap.NSScan, "ValidationInfo", &v); err != nil {
		return Validation{}, fmt.Errorf("validate scan ticket: %w", err)
	}
	valid, err := parseBool(v.Valid)
	if err != nil {
		return Validation{}, fmt.Errorf("validate scan ticket: %w", err)
	}
	return Validation{Valid: valid, Corrected: v.Corrected}, nil
}

// JobElements describes a job: its status, the ticket it was created
// with, the parameters actually used and the names of its documents.
type JobElements struct {
	Status    JobStatus
	Ticket    *ScanTicket
	Params    *DocumentParams
	Documents []string
}

type documentsXML struct {
	Params DocumentParams `xml:"DocumentFinalParameters"`
	Names  []string       `xml:"Document>DocumentDescription>DocumentName"`
}

// GetJobElements fetches the elements of jobID. Ticket and document
// details are optional in replies and stay nil when absent.
func (c *Client) GetJobElements(ctx context.Context, svc wsd.HostedService, jobID int) (*JobElements, error) {
	msg, err := c.call(ctx, svc, soap.TemplateGetJobElements, soap.Fields{"JobID": strconv.Itoa(jobID)})
	if err != nil {
		return nil, fmt.Errorf("get job elements %d: %w", jobID, err)
	}

	status, err := find[JobStatus](msg, "JobStatus")
	if err != nil {
		return nil, fmt.Errorf("get job elements %d: %w", jobID, err)
	}
	status.normalize()
	e := &JobElements{Status: *status}

	if e.Ticket, err = findOptional[ScanTicket](msg, "ScanTicket"); err != nil {
		return nil, fmt.Errorf("get job elements %d: %w", jobID, err)
	}
	docs, err := findOptional[documentsXML](msg, "Documents")
	if err != nil {
		return nil, fmt.Errorf("get job elements %d: %w", jobID, err)
	}
	if docs != nil {
		e.Params = &docs.Params
		e.Documents = docs.Names
	}
	return e, nil
}

// CancelJob aborts job. It reports false when the scanner no longer knows
// the job.
func (c *Client) CancelJob(ctx context.Context, svc wsd.HostedService, jobID int) (bool, error) {
	_, err := c.call(ctx, svc, soap.TemplateCancelJob, soap.Fields{"JobID": strconv.Itoa(jobID)})
	if f, ok := soap.AsFault(err); ok && subcodeIs(f, SubcodeJobIDNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cancel job %d: %w", jobID, err)
	}
	return true, nil
}

// GetActiveJobs lists the jobs the scanner is working on
func (c *Client) GetActiveJobs(ctx context.Context, svc wsd.HostedService) ([]JobSummary, error) {
	return c.jobList(ctx, svc, soap.TemplateGetActiveJobs)
}

// GetJobHistory lists recently ended jobs. Many devices keep none.
func (c *Client) GetJobHistory(ctx context.Context, svc wsd.HostedService) ([]JobSummary, error) {
	return c.jobList(ctx, svc, soap.TemplateGetJobHistory)
}

func (c *Client) jobList(ctx context.Context, svc wsd.HostedService, tmpl soap.Template) ([]JobSummary, error) {
	msg, err := c.call(ctx, svc, tmpl, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(string(tmpl), ".xml"), err)
	}
	jobs, err := soap.FindAll[JobSummary](msg, soap.NSScan, "JobSummary")
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].normalize()
	}
	return jobs, nil
}

// Image is one retrieved document
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// RetrieveImage fetches the next image of job. It returns false once the
// scanner reports that no images are left.
func (c *Client) RetrieveImage(ctx context.Context, svc wsd.HostedService, job ScanJob, docName string) (*Image, bool, error) {
	resp, err := c.soap.CallRaw(ctx, []string{svc.EpRefAddr}, soap.TemplateRetrieveImage, soap.Fields{
		"To":           svc.EpRefAddr,
		"JobID":        strconv.Itoa(job.ID),
		"JobToken":     job.Token,
		"DocumentName": docName,
	})
	if err != nil {
		return nil, false, fmt.Errorf("retrieve image: %w", err)
	}

	mediaType, params, err := mime.ParseMediaType(resp.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		msg, perr := soap.Parse(resp.Body)
		if perr != nil {
			return nil, false, fmt.Errorf("retrieve image: %w", perr)
		}
		if f := msg.Fault(); f != nil {
			if subcodeIs(f, SubcodeNoImagesAvailable) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("retrieve image: %w", f)
		}
		return nil, false, fmt.Errorf("retrieve image: %w: reply has no attachment", soap.ErrMalformed)
	}

	img, err := readAttachment(resp.Body, params["boundary"])
	if err != nil {
		return nil, false, fmt.Errorf("retrieve image: %w", err)
	}
	img.Name = docName
	c.log.Debug("Image retrieved",
		zap.Int("job", job.ID),
		zap.String("type", img.ContentType),
		zap.Int("bytes", len(img.Data)))
	return img, true, nil
}

// readAttachment returns the first non-SOAP part of a multipart/related
// body. The first part is the envelope, the image follows.
func readAttachment(body []byte, boundary string) (*Image, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart reply without boundary", soap.ErrMalformed)
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: multipart reply has no image part", soap.ErrMalformed)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", soap.ErrMalformed, err)
		}

		ct := part.Header.Get("Content-Type")
		if isEnvelopePart(ct) {
			part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read image part: %w", err)
		}
		return &Image{ContentType: ct, Data: data}, nil
	}
}

func isEnvelopePart(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/xop+xml" || mt == "application/soap+xml"
}

func (c *Client) call(ctx context.Context, svc wsd.HostedService, tmpl soap.Template, fields soap.Fields) (*soap.Message, error) {
	if fields == nil {
		fields = soap.Fields{}
	}
	fields["To"] = svc.EpRefAddr
	return c.soap.Call(ctx, []string{svc.EpRefAddr}, tmpl, fields)
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: invalid boolean %q", soap.ErrMalformed, s)
}

func subcodeIs(f *soap.Fault, name string) bool {
	sub := f.Subcode
	if i := strings.LastIndexByte(sub, ':'); i >= 0 {
		sub = sub[i+1:]
	}
	return sub == name
}
