package scan

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/wsdtool/wsdtool/internal/soap"
)

// Field tags below carry local names only. encoding/xml then matches the
// element in any namespace, which copes with devices that mix the sca and
// wscn prefixes or redeclare the scan namespace.

// Condition is an active scanner condition, such as a paper jam
type Condition struct {
	ID        int    `xml:"Id,attr"`
	Time      string `xml:"Time"`
	Name      string `xml:"Name"`
	Component string `xml:"Component"`
	Severity  string `xml:"Severity"`
}

// ConditionCleared reports that the condition with ID went away
type ConditionCleared struct {
	ID        int    `xml:"ConditionId"`
	ClearTime string `xml:"ConditionClearTime"`
}

// StatusSummary is the payload of a status summary event
type StatusSummary struct {
	State   string   `xml:"ScannerState"`
	Reasons []string `xml:"ScannerStateReasons>ScannerStateReason"`
}

// JobStatus describes a scan job. State holds JobState for running jobs
// and JobCompletedState for finished ones.
type JobStatus struct {
	ID             int      `xml:"JobId"`
	State          string   `xml:"JobState"`
	CompletedState string   `xml:"JobCompletedState"`
	Reasons        []string `xml:"JobStateReasons>JobStateReason"`
	ScansCompleted int      `xml:"ScansCompleted"`
	CreatedTime    string   `xml:"JobCreatedTime"`
	CompletedTime  string   `xml:"JobCompletedTime"`
}

func (j *JobStatus) normalize() {
	if j.State == "" {
		j.State = j.CompletedState
	}
}

// JobSummary is a job status with its name and owner, as reported by job
// lists and job end events.
type JobSummary struct {
	Name     string `xml:"JobName"`
	UserName string `xml:"JobOriginatingUserName"`
	JobStatus
}

// ScannerDescription identifies the scanner to humans
type ScannerDescription struct {
	Name     string `xml:"ScannerName"`
	Info     string `xml:"ScannerInfo"`
	Location string `xml:"ScannerLocation"`
}

// Size is a width and height pair, in thousandths of an inch or in DPI
// depending on context.
type Size struct {
	Width  int `xml:"Width"`
	Height int `xml:"Height"`
}

// Range is an inclusive range of supported values
type Range struct {
	Min int `xml:"MinValue"`
	Max int `xml:"MaxValue"`
}

// DeviceSettings are the capabilities shared by every input source
type DeviceSettings struct {
	Formats            []string `xml:"FormatsSupported>FormatValue"`
	CompressionQuality Range    `xml:"CompressionQualityFactorSupported"`
	ContentTypes       []string `xml:"ContentTypesSupported>ContentTypeValue"`
	SizeAutoDetect     bool     `xml:"DocumentSizeAutoDetectSupported"`
	AutoExposure       bool     `xml:"AutoExposureSupported"`
	Brightness         bool     `xml:"BrightnessSupported"`
	Contrast           bool     `xml:"ContrastSupported"`
	ScalingWidth       Range    `xml:"ScalingRangeSupported>ScalingWidth"`
	ScalingHeight      Range    `xml:"ScalingRangeSupported>ScalingHeight"`
	Rotations          []int    `xml:"RotationsSupported>RotationValue"`
}

// SourceSettings are the capabilities of one input source. The device
// prefixes every child with the source name (PlatenColor, ADFFrontColor...),
// so decoding matches on the suffix.
type SourceSettings struct {
	OpticalResolution Size
	Widths            []int
	Heights           []int
	Colors            []string
	MinimumSize       Size
	MaximumSize       Size
}

func (s *SourceSettings) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case strings.HasSuffix(name, "OpticalResolution"):
				err = d.DecodeElement(&s.OpticalResolution, &t)
			case strings.HasSuffix(name, "Resolutions"):
				var r struct {
					Widths  []int `xml:"Widths>Width"`
					Heights []int `xml:"Heights>Height"`
				}
				err = d.DecodeElement(&r, &t)
				s.Widths, s.Heights = r.Widths, r.Heights
			case strings.HasSuffix(name, "Color"):
				var c struct {
					Entries []string `xml:"ColorEntry"`
				}
				err = d.DecodeElement(&c, &t)
				s.Colors = c.Entries
			case strings.HasSuffix(name, "MinimumSize"):
				err = d.DecodeElement(&s.MinimumSize, &t)
			case strings.HasSuffix(name, "MaximumSize"):
				err = d.DecodeElement(&s.MaximumSize, &t)
			default:
				err = d.Skip()
			}
			if err != nil {
				return err
			}
		}
	}
}

// ADFSettings describes the automatic document feeder
type ADFSettings struct {
	Duplex bool            `xml:"ADFSupportsDuplex"`
	Front  *SourceSettings `xml:"ADFFront"`
	Back   *SourceSettings `xml:"ADFBack"`
}

// ScannerConfiguration lists what the scanner can do. Platen and ADF are
// nil when the device lacks them.
type ScannerConfiguration struct {
	Settings DeviceSettings  `xml:"DeviceSettings"`
	Platen   *SourceSettings `xml:"Platen"`
	ADF      *ADFSettings    `xml:"ADF"`
}

// Region is a scan area, offsets and size in thousandths of an inch
type Region struct {
	XOffset int `xml:"ScanRegionXOffset"`
	YOffset int `xml:"ScanRegionYOffset"`
	Width   int `xml:"ScanRegionWidth"`
	Height  int `xml:"ScanRegionHeight"`
}

// MediaSide holds the per-side scan parameters
type MediaSide struct {
	ColorProcessing string  `xml:"ColorProcessing"`
	Resolution      Size    `xml:"Resolution"`
	Region          *Region `xml:"ScanRegion"`
}

// DocumentParams are the parameters of a scan
type DocumentParams struct {
	Format             string     `xml:"Format"`
	CompressionQuality int        `xml:"CompressionQualityFactor"`
	ImagesToTransfer   int        `xml:"ImagesToTransfer"`
	InputSource        string     `xml:"InputSource"`
	ContentType        string     `xml:"ContentType"`
	SizeAutoDetect     bool       `xml:"InputSize>DocumentAutoDetect"`
	InputSize          Size       `xml:"InputSize>InputMediaSize"`
	AutoExposure       bool       `xml:"Exposure>AutoExposure"`
	Contrast           int        `xml:"Exposure>ExposureSettings>Contrast"`
	Brightness         int        `xml:"Exposure>ExposureSettings>Brightness"`
	Sharpness          int        `xml:"Exposure>ExposureSettings>Sharpness"`
	ScalingWidth       int        `xml:"Scaling>ScalingWidth"`
	ScalingHeight      int        `xml:"Scaling>ScalingHeight"`
	Rotation           int        `xml:"Rotation"`
	Front              *MediaSide `xml:"MediaSides>MediaFront"`
	Back               *MediaSide `xml:"MediaSides>MediaBack"`
}

// ScanTicket is a job description plus its document parameters
type ScanTicket struct {
	JobName     string         `xml:"JobDescription>JobName"`
	JobUserName string         `xml:"JobDescription>JobOriginatingUserName"`
	JobInfo     string         `xml:"JobDescription>JobInformation"`
	Params      DocumentParams `xml:"DocumentParameters"`
}

// Fields renders the ticket for CreateScanJob and ValidateScanTicket requests
func (t ScanTicket) Fields() soap.Fields {
	f := soap.Fields{
		"JobName":          t.JobName,
		"JobUserName":      t.JobUserName,
		"Format":           t.Params.Format,
		"ImagesToTransfer": strconv.Itoa(t.Params.ImagesToTransfer),
		"InputSource":      t.Params.InputSource,
		"ContentType":      t.Params.ContentType,
	}
	if front := t.Params.Front; front != nil {
		f["ColorProcessing"] = front.ColorProcessing
		f["ResolutionWidth"] = strconv.Itoa(front.Resolution.Width)
		f["ResolutionHeight"] = strconv.Itoa(front.Resolution.Height)
	}
	return f
}

// ImageInfo describes the raster of one side
type ImageInfo struct {
	PixelsPerLine int `xml:"PixelsPerLine"`
	NumberOfLines int `xml:"NumberOfLines"`
	BytesPerLine  int `xml:"BytesPerLine"`
}

// ScanJob is a job created on the scanner. Token authorises image
// retrieval.
type ScanJob struct {
	ID     int            `xml:"JobId"`
	Token  string         `xml:"JobToken"`
	Front  *ImageInfo     `xml:"ImageInformation>MediaFrontImageInfo"`
	Back   *ImageInfo     `xml:"ImageInformation>MediaBackImageInfo"`
	Params DocumentParams `xml:"DocumentFinalParameters"`
}

// ScanAvailable is a device-initiated scan request. ClientContext is the
// value this client registered when subscribing.
type ScanAvailable struct {
	ClientContext  string `xml:"ClientContext"`
	ScanIdentifier string `xml:"ScanIdentifier"`
}
