package scan

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// DefaultMaxImages caps a job whose ticket does not say how many images
// to expect, such as an ADF scan.
const DefaultMaxImages = 100

const cancelTimeout = 5 * time.Second

// ErrTicketRejected is returned when the scanner refuses its own default
// ticket and offers no correction.
var ErrTicketRejected = errors.New("scanner rejected the scan ticket")

// JobRunner carries out device-initiated scans. It creates a job with the
// scanner's default ticket and writes every retrieved image to OutputDir.
type JobRunner struct {
	Client    *Client
	OutputDir string
	MaxImages int

	log *zap.Logger
}

// NewJobRunner creates a runner writing into dir
func NewJobRunner(c *Client, dir string) *JobRunner {
	return &JobRunner{
		Client:    c,
		OutputDir: dir,
		MaxImages: DefaultMaxImages,
		log:       logging.Named("scanjob"),
	}
}

// HandleScanAvailable runs the scan announced by ev
func (r *JobRunner) HandleScanAvailable(ctx context.Context, svc wsd.HostedService, destToken string, ev ScanAvailable) error {
	_, err := r.Run(ctx, svc, ev.ScanIdentifier, destToken)
	return err
}

// Run validates the default ticket, creates a job and retrieves its
// images. It returns the paths of the files written, including those
// written before a failure. A job that fails part way is cancelled.
func (r *JobRunner) Run(ctx context.Context, svc wsd.HostedService, scanID, destToken string) ([]string, error) {
	elems, err := r.Client.GetScannerElements(ctx, svc)
	if err != nil {
		return nil, err
	}
	ticket, err := r.checkTicket(ctx, svc, elems.DefaultTicket)
	if err != nil {
		return nil, err
	}

	job, err := r.Client.CreateScanJob(ctx, svc, ticket, scanID, destToken)
	if err != nil {
		return nil, err
	}

	written, err := r.retrieve(ctx, svc, job, ticket)
	if err != nil {
		r.cancel(svc, job.ID)
		return written, err
	}

	r.logJob(ctx, svc, job.ID)
	return written, nil
}

// checkTicket returns ticket, or the scanner's correction of it when the
// scanner rejects it.
func (r *JobRunner) checkTicket(ctx context.Context, svc wsd.HostedService, ticket ScanTicket) (ScanTicket, error) {
	v, err := r.Client.ValidateScanTicket(ctx, svc, ticket)
	if err != nil {
		return ScanTicket{}, err
	}
	if v.Valid {
		return ticket, nil
	}
	if v.Corrected == nil {
		return ScanTicket{}, ErrTicketRejected
	}
	r.log.Info("Scanner corrected the default ticket",
		zap.String("format", v.Corrected.Params.Format),
		zap.String("source", v.Corrected.Params.InputSource))
	return *v.Corrected, nil
}

func (r *JobRunner) retrieve(ctx context.Context, svc wsd.HostedService, job ScanJob, ticket ScanTicket) ([]string, error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	limit := ticket.Params.ImagesToTransfer
	if limit <= 0 {
		limit = r.maxImages()
	}

	var written []string
	for n := 0; n < limit; n++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		name := fmt.Sprintf("scan_%d_%03d", job.ID, n)
		img, more, err := r.Client.RetrieveImage(ctx, svc, job, name)
		if err != nil {
			return written, err
		}
		if !more {
			break
		}

		path := filepath.Join(r.OutputDir, name+extension(img.ContentType, ticket.Params.Format))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		r.log.Info("Image saved", zap.String("path", path), zap.Int("bytes", len(img.Data)))
		written = append(written, path)
	}
	return written, nil
}

// cancel runs on its own deadline so that it still reaches the scanner
// after the job's context is done.
func (r *JobRunner) cancel(svc wsd.HostedService, jobID int) {
	ctx, done := context.WithTimeout(context.Background(), cancelTimeout)
	defer done()

	ok, err := r.Client.CancelJob(ctx, svc, jobID)
	switch {
	case err != nil:
		r.log.Warn("Failed to cancel scan job", zap.Int("job", jobID), zap.Error(err))
	case ok:
		r.log.Info("Scan job cancelled", zap.Int("job", jobID))
	default:
		r.log.Debug("Scan job already gone", zap.Int("job", jobID))
	}
}

func (r *JobRunner) logJob(ctx context.Context, svc wsd.HostedService, jobID int) {
	e, err := r.Client.GetJobElements(ctx, svc, jobID)
	if err != nil {
		r.log.Debug("No job elements", zap.Int("job", jobID), zap.Error(err))
		return
	}
	r.log.Info("Scan job finished",
		zap.Int("job", jobID),
		zap.String("state", e.Status.State),
		zap.Strings("reasons", e.Status.Reasons),
		zap.Int("scans", e.Status.ScansCompleted),
		zap.Strings("documents", e.Documents))
}

func (r *JobRunner) maxImages() int {
	if r.MaxImages <= 0 {
		return DefaultMaxImages
	}
	return r.MaxImages
}

// extension picks a file extension from the part's content type, falling
// back to the ticket format.
func extension(contentType, format string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	case "image/bmp":
		return ".bmp"
	case "application/pdf":
		return ".pdf"
	}

	switch f := strings.ToLower(format); {
	case f == "jfif" || f == "exif":
		return ".jpg"
	case f == "png":
		return ".png"
	case strings.HasPrefix(f, "tiff"):
		return ".tif"
	case strings.HasPrefix(f, "pdf"):
		return ".pdf"
	case f == "dib":
		return ".bmp"
	}
	return ".bin"
}
