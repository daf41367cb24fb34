package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/soapclient"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

func envelope(action wsd.Action, relatesTo, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"
  xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:sca="http://schemas.microsoft.com/windows/2006/08/wdp/scan">
 <soap:Header>
  <wsa:Action>%s</wsa:Action>
  <wsa:MessageID>urn:uuid:reply</wsa:MessageID>
  <wsa:RelatesTo>%s</wsa:RelatesTo>
 </soap:Header>
 <soap:Body>%s</soap:Body>
</soap:Envelope>`, action.URI(), relatesTo, body)
}

func parse(t *testing.T, data string) *soap.Message {
	t.Helper()
	msg, err := soap.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return msg
}

const elementsBody = `<sca:GetScannerElementsResponse><sca:ScannerElements>
 <sca:ElementData Name="sca:ScannerDescription" Valid="true">
  <sca:ScannerDescription>
   <sca:ScannerName>Office Scanner</sca:ScannerName>
   <sca:ScannerInfo>2nd floor</sca:ScannerInfo>
   <sca:ScannerLocation>Room 204</sca:ScannerLocation>
  </sca:ScannerDescription>
 </sca:ElementData>
 <sca:ElementData Name="sca:ScannerConfiguration" Valid="true">
  <sca:ScannerConfiguration>
   <sca:DeviceSettings>
    <sca:FormatsSupported><sca:FormatValue>jfif</sca:FormatValue><sca:FormatValue>pdf-a</sca:FormatValue></sca:FormatsSupported>
    <sca:CompressionQualityFactorSupported><sca:MinValue>1</sca:MinValue><sca:MaxValue>100</sca:MaxValue></sca:CompressionQualityFactorSupported>
    <sca:ContentTypesSupported><sca:ContentTypeValue>Auto</sca:ContentTypeValue></sca:ContentTypesSupported>
    <sca:DocumentSizeAutoDetectSupported>false</sca:DocumentSizeAutoDetectSupported>
    <sca:AutoExposureSupported>true</sca:AutoExposureSupported>
    <sca:BrightnessSupported>1</sca:BrightnessSupported>
    <sca:ContrastSupported>0</sca:ContrastSupported>
    <sca:ScalingRangeSupported>
     <sca:ScalingWidth><sca:MinValue>1</sca:MinValue><sca:MaxValue>1000</sca:MaxValue></sca:ScalingWidth>
     <sca:ScalingHeight><sca:MinValue>1</sca:MinValue><sca:MaxValue>1000</sca:MaxValue></sca:ScalingHeight>
    </sca:ScalingRangeSupported>
    <sca:RotationsSupported><sca:RotationValue>0</sca:RotationValue><sca:RotationValue>180</sca:RotationValue></sca:RotationsSupported>
   </sca:DeviceSettings>
   <sca:Platen>
    <sca:PlatenOpticalResolution><sca:Width>600</sca:Width><sca:Height>600</sca:Height></sca:PlatenOpticalResolution>
    <sca:PlatenResolutions>
     <sca:Widths><sca:Width>300</sca:Width><sca:Width>600</sca:Width></sca:Widths>
     <sca:Heights><sca:Height>300</sca:Height><sca:Height>600</sca:Height></sca:Heights>
    </sca:PlatenResolutions>
    <sca:PlatenColor><sca:ColorEntry>RGB24</sca:ColorEntry><sca:ColorEntry>Grayscale8</sca:ColorEntry></sca:PlatenColor>
    <sca:PlatenMinimumSize><sca:Width>1</sca:Width><sca:Height>1</sca:Height></sca:PlatenMinimumSize>
    <sca:PlatenMaximumSize><sca:Width>8500</sca:Width><sca:Height>11690</sca:Height></sca:PlatenMaximumSize>
   </sca:Platen>
   <sca:ADF>
    <sca:ADFSupportsDuplex>true</sca:ADFSupportsDuplex>
    <sca:ADFFront>
     <sca:ADFOpticalResolution><sca:Width>300</sca:Width><sca:Height>300</sca:Height></sca:ADFOpticalResolution>
     <sca:ADFColor><sca:ColorEntry>BlackAndWhite1</sca:ColorEntry></sca:ADFColor>
    </sca:ADFFront>
   </sca:ADF>
  </sca:ScannerConfiguration>
 </sca:ElementData>
 <sca:ElementData Name="sca:ScannerStatus" Valid="true">
  <sca:ScannerStatus>
   <sca:ScannerCurrentTime>2024-01-01T10:00:00Z</sca:ScannerCurrentTime>
   <sca:ScannerState>Idle</sca:ScannerState>
   <sca:ActiveConditions>
    <sca:DeviceCondition Id="3">
     <sca:Time>2024-01-01T09:00:00Z</sca:Time>
     <sca:Name>CoverOpen</sca:Name>
     <sca:Component>ADF</sca:Component>
     <sca:Severity>Warning</sca:Severity>
    </sca:DeviceCondition>
   </sca:ActiveConditions>
   <sca:ScannerStateReasons><sca:ScannerStateReason>None</sca:ScannerStateReason></sca:ScannerStateReasons>
   <sca:ConditionHistory>
    <sca:ConditionHistoryEntry Id="1">
     <sca:Time>2024-01-01T08:00:00Z</sca:Time>
     <sca:Name>Jam</sca:Name>
     <sca:Component>Platen</sca:Component>
     <sca:Severity>Critical</sca:Severity>
     <sca:ClearTime>2024-01-01T08:05:00Z</sca:ClearTime>
    </sca:ConditionHistoryEntry>
   </sca:ConditionHistory>
  </sca:ScannerStatus>
 </sca:ElementData>
 <sca:ElementData Name="sca:DefaultScanTicket" Valid="true">
  <sca:DefaultScanTicket>
   <sca:JobDescription>
    <sca:JobName>Scan</sca:JobName>
    <sca:JobOriginatingUserName>wsd</sca:JobOriginatingUserName>
   </sca:JobDescription>
   <sca:DocumentParameters>
    <sca:Format>jfif</sca:Format>
    <sca:ImagesToTransfer>2</sca:ImagesToTransfer>
    <sca:InputSource>Platen</sca:InputSource>
    <sca:ContentType>Auto</sca:ContentType>
    <sca:MediaSides>
     <sca:MediaFront>
      <sca:ColorProcessing>RGB24</sca:ColorProcessing>
      <sca:Resolution><sca:Width>300</sca:Width><sca:Height>300</sca:Height></sca:Resolution>
      <sca:ScanRegion>
       <sca:ScanRegionXOffset>0</sca:ScanRegionXOffset>
       <sca:ScanRegionYOffset>0</sca:ScanRegionYOffset>
       <sca:ScanRegionWidth>8500</sca:ScanRegionWidth>
       <sca:ScanRegionHeight>11690</sca:ScanRegionHeight>
      </sca:ScanRegion>
     </sca:MediaFront>
    </sca:MediaSides>
   </sca:DocumentParameters>
  </sca:DefaultScanTicket>
 </sca:ElementData>
</sca:ScannerElements></sca:GetScannerElementsResponse>`

const createJobBody = `<sca:CreateScanJobResponse>
 <sca:JobId>42</sca:JobId>
 <sca:JobToken>tok-42</sca:JobToken>
 <sca:ImageInformation>
  <sca:MediaFrontImageInfo>
   <sca:PixelsPerLine>2550</sca:PixelsPerLine>
   <sca:NumberOfLines>3507</sca:NumberOfLines>
   <sca:BytesPerLine>7650</sca:BytesPerLine>
  </sca:MediaFrontImageInfo>
 </sca:ImageInformation>
 <sca:DocumentFinalParameters><sca:Format>jfif</sca:Format></sca:DocumentFinalParameters>
</sca:CreateScanJobResponse>`

func faultBody(subcode string) string {
	return fmt.Sprintf(`<soap:Fault>
 <soap:Code><soap:Value>soap:Sender</soap:Value>
  <soap:Subcode><soap:Value>wscn:%s</soap:Value></soap:Subcode></soap:Code>
 <soap:Reason><soap:Text>no</soap:Text></soap:Reason>
</soap:Fault>`, subcode)
}

const validBody = `<sca:ValidateScanTicketResponse><sca:ValidationInfo>
 <sca:ValidTicket>true</sca:ValidTicket>
</sca:ValidationInfo></sca:ValidateScanTicketResponse>`

const correctedBody = `<sca:ValidateScanTicketResponse><sca:ValidationInfo>
 <sca:ValidTicket>false</sca:ValidTicket>
 <sca:ValidScanTicket>
  <sca:JobDescription><sca:JobName>Scan</sca:JobName></sca:JobDescription>
  <sca:DocumentParameters>
   <sca:Format>png</sca:Format>
   <sca:ImagesToTransfer>1</sca:ImagesToTransfer>
   <sca:InputSource>Platen</sca:InputSource>
  </sca:DocumentParameters>
 </sca:ValidScanTicket>
</sca:ValidationInfo></sca:ValidateScanTicketResponse>`

const rejectedBody = `<sca:ValidateScanTicketResponse><sca:ValidationInfo>
 <sca:ValidTicket>0</sca:ValidTicket>
</sca:ValidationInfo></sca:ValidateScanTicketResponse>`

const jobElementsBody = `<sca:GetJobElementsResponse><sca:JobElements>
 <sca:ElementData Name="sca:JobStatus" Valid="true">
  <sca:JobStatus>
   <sca:JobId>42</sca:JobId>
   <sca:JobCompletedState>Completed</sca:JobCompletedState>
   <sca:JobStateReasons><sca:JobStateReason>JobCompletedSuccessfully</sca:JobStateReason></sca:JobStateReasons>
   <sca:ScansCompleted>2</sca:ScansCompleted>
  </sca:JobStatus>
 </sca:ElementData>
 <sca:ElementData Name="sca:Documents" Valid="true">
  <sca:Documents>
   <sca:DocumentFinalParameters><sca:Format>jfif</sca:Format><sca:ImagesToTransfer>2</sca:ImagesToTransfer></sca:DocumentFinalParameters>
   <sca:Document><sca:DocumentDescription><sca:DocumentName>scan_42_000</sca:DocumentName></sca:DocumentDescription></sca:Document>
   <sca:Document><sca:DocumentDescription><sca:DocumentName>scan_42_001</sca:DocumentName></sca:DocumentDescription></sca:Document>
  </sca:Documents>
 </sca:ElementData>
</sca:JobElements></sca:GetJobElementsResponse>`

// fakeScanner answers scan requests by action. It hands out images until
// its supply runs out. validation overrides the ValidateScanTicket reply
// and broken makes every RetrieveImage fail.
type fakeScanner struct {
	mu         sync.Mutex
	images     int
	validation string
	broken     bool
	created    []string
	requests   []wsd.Action
}

func (f *fakeScanner) sawAction(a wsd.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == a {
			return true
		}
	}
	return false
}

func (f *fakeScanner) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	req, err := soap.Parse(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.Action)

	id := req.Header.MessageID
	reply := func(status int, action wsd.Action, body string) {
		w.Header().Set("Content-Type", transport.ContentType)
		w.WriteHeader(status)
		io.WriteString(w, envelope(action, id, body))
	}

	switch req.Action {
	case wsd.ActionGetScannerElements:
		reply(http.StatusOK, wsd.ActionGetScannerElementsResponse, elementsBody)
	case wsd.ActionCreateScanJob:
		f.created = append(f.created, string(data))
		reply(http.StatusOK, wsd.ActionCreateScanJobResponse, createJobBody)
	case wsd.ActionValidateScanTicket:
		body := f.validation
		if body == "" {
			body = validBody
		}
		reply(http.StatusOK, wsd.ActionValidateScanTicketResponse, body)
	case wsd.ActionGetJobElements:
		reply(http.StatusOK, wsd.ActionGetJobElementsResponse, jobElementsBody)
	case wsd.ActionCancelJob:
		reply(http.StatusInternalServerError, wsd.ActionFault, faultBody(SubcodeJobIDNotFound))
	case wsd.ActionGetActiveJobs:
		reply(http.StatusOK, wsd.ActionGetActiveJobsResponse, `<sca:GetActiveJobsResponse><sca:ActiveJobs>
 <sca:JobSummary><sca:JobId>42</sca:JobId><sca:JobState>Processing</sca:JobState><sca:ScansCompleted>1</sca:ScansCompleted>
  <sca:JobName>Scan</sca:JobName><sca:JobOriginatingUserName>wsd</sca:JobOriginatingUserName></sca:JobSummary>
</sca:ActiveJobs></sca:GetActiveJobsResponse>`)
	case wsd.ActionGetJobHistory:
		reply(http.StatusOK, wsd.ActionGetJobHistoryResponse, `<sca:GetJobHistoryResponse><sca:JobHistory>
 <sca:JobSummary><sca:JobId>41</sca:JobId><sca:JobCompletedState>Aborted</sca:JobCompletedState><sca:JobName>Scan</sca:JobName></sca:JobSummary>
</sca:JobHistory></sca:GetJobHistoryResponse>`)
	case wsd.ActionRetrieveImage:
		if f.broken {
			reply(http.StatusInternalServerError, wsd.ActionFault, faultBody("ServerErrorInternalError"))
			return
		}
		if f.images == 0 {
			reply(http.StatusInternalServerError, wsd.ActionFault, faultBody(SubcodeNoImagesAvailable))
			return
		}
		f.images--
		writeImage(w, id, []byte(fmt.Sprintf("JPEGDATA-%d", f.images)))
	default:
		http.Error(w, "unexpected action", http.StatusBadRequest)
	}
}

func writeImage(w http.ResponseWriter, relatesTo string, data []byte) {
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", `application/xop+xml; type="application/soap+xml"`)
	h.Set("Content-ID", "<soap>")
	p, _ := mw.CreatePart(h)
	io.WriteString(p, envelope(wsd.ActionRetrieveImageResponse, relatesTo,
		`<sca:RetrieveImageResponse><sca:ScanData/></sca:RetrieveImageResponse>`))

	h = textproto.MIMEHeader{}
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Transfer-Encoding", "binary")
	h.Set("Content-ID", "<image>")
	p, _ = mw.CreatePart(h)
	p.Write(data)
	mw.Close()

	w.Header().Set("Content-Type", fmt.Sprintf(`multipart/related; type="application/xop+xml"; boundary=%q`, mw.Boundary()))
	io.WriteString(w, buf.String())
}

func newTestService(t *testing.T, f *fakeScanner) (*Client, wsd.HostedService) {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	c := NewClient(soapclient.New(transport.NewClient(time.Second), "urn:uuid:client"))
	return c, wsd.HostedService{EpRefAddr: server.URL + "/scan", Types: wsd.NewStringSet(wsd.ScannerServiceType)}
}

func TestScannerStatusRaiseClear(t *testing.T) {
	s := NewScannerStatus()
	s.Raise(Condition{ID: 7, Name: "Jam"})
	s.Raise(Condition{ID: 8, Name: "CoverOpen"})

	if !s.Clear(7, "T1") {
		t.Fatal("Clear(7) = false, want true")
	}
	if _, ok := s.Active[7]; ok {
		t.Error("condition 7 still active after clear")
	}
	if got := s.History["T1"]; got.ID != 7 || got.Name != "Jam" {
		t.Errorf("History[T1] = %+v, want condition 7", got)
	}
	if len(s.Active) != 1 {
		t.Errorf("len(Active) = %d, want 1", len(s.Active))
	}

	if s.Clear(99, "T2") {
		t.Error("Clear(99) = true for an unknown condition")
	}
	if _, ok := s.History["T2"]; ok {
		t.Error("unknown clear recorded in history")
	}

	s.ApplySummary(StatusSummary{State: "Stopped", Reasons: []string{"MediaJam"}})
	if s.State != "Stopped" || len(s.Reasons) != 1 {
		t.Errorf("after summary: state %q reasons %v", s.State, s.Reasons)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name   string
		action wsd.Action
		body   string
		check  func(t *testing.T, ev Event)
	}{
		{
			name:   "condition",
			action: wsd.ActionScannerStatusCondition,
			body: `<sca:ScannerStatusConditionEvent><sca:DeviceCondition Id="7">
 <sca:Time>2024-01-01T09:00:00Z</sca:Time><sca:Name>Jam</sca:Name>
 <sca:Component>ADF</sca:Component><sca:Severity>Critical</sca:Severity>
</sca:DeviceCondition></sca:ScannerStatusConditionEvent>`,
			check: func(t *testing.T, ev Event) {
				c := ev.Condition
				if c == nil || c.ID != 7 || c.Name != "Jam" || c.Component != "ADF" || c.Severity != "Critical" {
					t.Errorf("Condition = %+v", c)
				}
			},
		},
		{
			name:   "condition cleared",
			action: wsd.ActionScannerStatusConditionCleared,
			body: `<sca:ScannerStatusConditionClearedEvent><sca:DeviceConditionCleared>
 <sca:ConditionId> 7 </sca:ConditionId><sca:ConditionClearTime>T1</sca:ConditionClearTime>
</sca:DeviceConditionCleared></sca:ScannerStatusConditionClearedEvent>`,
			check: func(t *testing.T, ev Event) {
				if ev.Cleared == nil || ev.Cleared.ID != 7 || ev.Cleared.ClearTime != "T1" {
					t.Errorf("Cleared = %+v", ev.Cleared)
				}
			},
		},
		{
			name:   "status summary",
			action: wsd.ActionScannerStatusSummary,
			body: `<sca:ScannerStatusSummaryEvent><sca:StatusSummary>
 <sca:ScannerState>Processing</sca:ScannerState>
 <sca:ScannerStateReasons><sca:ScannerStateReason>None</sca:ScannerStateReason></sca:ScannerStateReasons>
</sca:StatusSummary></sca:ScannerStatusSummaryEvent>`,
			check: func(t *testing.T, ev Event) {
				if ev.Summary == nil || ev.Summary.State != "Processing" || len(ev.Summary.Reasons) != 1 {
					t.Errorf("Summary = %+v", ev.Summary)
				}
			},
		},
		{
			name:   "job status completed",
			action: wsd.ActionJobStatus,
			body: `<sca:JobStatusEvent><sca:JobStatus>
 <sca:JobId>42</sca:JobId><sca:JobCompletedState>Completed</sca:JobCompletedState>
 <sca:JobStateReasons><sca:JobStateReason>JobCompletedSuccessfully</sca:JobStateReason></sca:JobStateReasons>
 <sca:ScansCompleted>3</sca:ScansCompleted>
</sca:JobStatus></sca:JobStatusEvent>`,
			check: func(t *testing.T, ev Event) {
				j := ev.Job
				if j == nil || j.ID != 42 || j.State != "Completed" || j.ScansCompleted != 3 || len(j.Reasons) != 1 {
					t.Errorf("Job = %+v", j)
				}
			},
		},
		{
			name:   "job end state",
			action: wsd.ActionJobEndState,
			body: `<sca:JobEndStateEvent><sca:JobEndState>
 <sca:JobId>42</sca:JobId><sca:JobCompletedState>Aborted</sca:JobCompletedState>
 <sca:JobName>Scan</sca:JobName><sca:JobOriginatingUserName>alex</sca:JobOriginatingUserName>
</sca:JobEndState></sca:JobEndStateEvent>`,
			check: func(t *testing.T, ev Event) {
				j := ev.JobEnded
				if j == nil || j.ID != 42 || j.State != "Aborted" || j.Name != "Scan" || j.UserName != "alex" {
					t.Errorf("JobEnded = %+v", j)
				}
			},
		},
		{
			name:   "elements change",
			action: wsd.ActionScannerElementsChange,
			body: `<sca:ScannerElementsChangeEvent><sca:ElementChanges>
 <sca:ElementData Name="sca:ScannerDescription" Valid="true">
  <sca:ScannerDescription><sca:ScannerName>Renamed</sca:ScannerName></sca:ScannerDescription>
 </sca:ElementData>
</sca:ElementChanges></sca:ScannerElementsChangeEvent>`,
			check: func(t *testing.T, ev Event) {
				if ev.Description == nil || ev.Description.Name != "Renamed" {
					t.Errorf("Description = %+v", ev.Description)
				}
				if ev.Configuration != nil || ev.DefaultTicket != nil {
					t.Error("absent elements decoded")
				}
			},
		},
		{
			name:   "scan available",
			action: wsd.ActionScanAvailable,
			body: `<sca:ScanAvailableEvent>
 <sca:ClientContext>ctx-1</sca:ClientContext><sca:ScanIdentifier>scan-9</sca:ScanIdentifier>
</sca:ScanAvailableEvent>`,
			check: func(t *testing.T, ev Event) {
				if ev.ScanAvailable == nil || ev.ScanAvailable.ClientContext != "ctx-1" || ev.ScanAvailable.ScanIdentifier != "scan-9" {
					t.Errorf("ScanAvailable = %+v", ev.ScanAvailable)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(parse(t, envelope(tt.action, "", tt.body)))
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if ev.Action != tt.action {
				t.Errorf("Action = %v, want %v", ev.Action, tt.action)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent(parse(t, envelope(wsd.ActionHello, "", "<x/>")))
	if !errors.Is(err, ErrUnexpectedEvent) {
		t.Errorf("non-scan action: error = %v, want ErrUnexpectedEvent", err)
	}

	_, err = DecodeEvent(parse(t, envelope(wsd.ActionScannerStatusCondition, "", "<sca:ScannerStatusConditionEvent/>")))
	if !errors.Is(err, soap.ErrNotFound) {
		t.Errorf("missing payload: error = %v, want ErrNotFound", err)
	}

	_, err = DecodeEvent(parse(t, envelope(wsd.ActionScannerElementsChange, "", "<sca:ScannerElementsChangeEvent/>")))
	if !errors.Is(err, soap.ErrNotFound) {
		t.Errorf("empty elements change: error = %v, want ErrNotFound", err)
	}
}

func TestGetScannerElements(t *testing.T) {
	c, svc := newTestService(t, &fakeScanner{})

	e, err := c.GetScannerElements(context.Background(), svc)
	if err != nil {
		t.Fatalf("GetScannerElements() error = %v", err)
	}

	if e.Description.Name != "Office Scanner" || e.Description.Location != "Room 204" {
		t.Errorf("Description = %+v", e.Description)
	}

	cfg := e.Configuration
	if len(cfg.Settings.Formats) != 2 || cfg.Settings.CompressionQuality.Max != 100 {
		t.Errorf("Settings = %+v", cfg.Settings)
	}
	if !cfg.Settings.AutoExposure || !cfg.Settings.Brightness || cfg.Settings.Contrast {
		t.Errorf("support flags = %+v", cfg.Settings)
	}
	if len(cfg.Settings.Rotations) != 2 || cfg.Settings.Rotations[1] != 180 {
		t.Errorf("Rotations = %v", cfg.Settings.Rotations)
	}
	if cfg.Platen == nil {
		t.Fatal("Platen missing")
	}
	if cfg.Platen.OpticalResolution.Width != 600 || len(cfg.Platen.Widths) != 2 || len(cfg.Platen.Colors) != 2 {
		t.Errorf("Platen = %+v", cfg.Platen)
	}
	if cfg.Platen.MaximumSize.Height != 11690 {
		t.Errorf("Platen.MaximumSize = %+v", cfg.Platen.MaximumSize)
	}
	if cfg.ADF == nil || !cfg.ADF.Duplex || cfg.ADF.Front == nil || cfg.ADF.Back != nil {
		t.Fatalf("ADF = %+v", cfg.ADF)
	}
	if cfg.ADF.Front.OpticalResolution.Width != 300 || cfg.ADF.Front.Colors[0] != "BlackAndWhite1" {
		t.Errorf("ADF.Front = %+v", cfg.ADF.Front)
	}

	st := e.Status
	if st.State != "Idle" || st.Time != "2024-01-01T10:00:00Z" {
		t.Errorf("Status = %+v", st)
	}
	if c, ok := st.Active[3]; !ok || c.Name != "CoverOpen" {
		t.Errorf("Active = %+v", st.Active)
	}
	if h, ok := st.History["2024-01-01T08:05:00Z"]; !ok || h.ID != 1 || h.Name != "Jam" {
		t.Errorf("History = %+v", st.History)
	}

	tkt := e.DefaultTicket
	if tkt.JobName != "Scan" || tkt.Params.ImagesToTransfer != 2 || tkt.Params.Front == nil {
		t.Fatalf("DefaultTicket = %+v", tkt)
	}
	if tkt.Params.Front.Resolution.Width != 300 || tkt.Params.Front.Region == nil || tkt.Params.Front.Region.Width != 8500 {
		t.Errorf("MediaFront = %+v", tkt.Params.Front)
	}
}

func TestTicketFields(t *testing.T) {
	tkt := ScanTicket{
		JobName: "Scan",
		Params: DocumentParams{
			Format:           "jfif",
			ImagesToTransfer: 1,
			Front:            &MediaSide{ColorProcessing: "RGB24", Resolution: Size{Width: 300, Height: 200}},
		},
	}
	f := tkt.Fields()
	if f["ImagesToTransfer"] != "1" || f["ResolutionWidth"] != "300" || f["ResolutionHeight"] != "200" || f["ColorProcessing"] != "RGB24" {
		t.Errorf("Fields() = %v", f)
	}
}

func TestRetrieveImage(t *testing.T) {
	fake := &fakeScanner{images: 1}
	c, svc := newTestService(t, fake)
	ctx := context.Background()
	job := ScanJob{ID: 42, Token: "tok-42"}

	img, more, err := c.RetrieveImage(ctx, svc, job, "page")
	if err != nil {
		t.Fatalf("RetrieveImage() error = %v", err)
	}
	if !more || img == nil {
		t.Fatal("first RetrieveImage() reported no image")
	}
	if img.ContentType != "image/jpeg" || string(img.Data) != "JPEGDATA-0" || img.Name != "page" {
		t.Errorf("image = %s %q %q", img.ContentType, img.Data, img.Name)
	}

	img, more, err = c.RetrieveImage(ctx, svc, job, "page")
	if err != nil {
		t.Fatalf("RetrieveImage() after last image error = %v", err)
	}
	if more || img != nil {
		t.Error("RetrieveImage() returned an image after the last one")
	}
}

func TestCancelJobNotFound(t *testing.T) {
	c, svc := newTestService(t, &fakeScanner{})

	ok, err := c.CancelJob(context.Background(), svc, 42)
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if ok {
		t.Error("CancelJob() = true for an unknown job")
	}
}

func TestGetActiveJobs(t *testing.T) {
	c, svc := newTestService(t, &fakeScanner{})

	jobs, err := c.GetActiveJobs(context.Background(), svc)
	if err != nil {
		t.Fatalf("GetActiveJobs() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 42 || jobs[0].State != "Processing" || jobs[0].Name != "Scan" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestGetJobHistory(t *testing.T) {
	c, svc := newTestService(t, &fakeScanner{})

	jobs, err := c.GetJobHistory(context.Background(), svc)
	if err != nil {
		t.Fatalf("GetJobHistory() error = %v", err)
	}
	// Ended jobs only carry a completed state
	if len(jobs) != 1 || jobs[0].ID != 41 || jobs[0].State != "Aborted" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestJobRunner(t *testing.T) {
	fake := &fakeScanner{images: 5}
	c, svc := newTestService(t, fake)
	dir := filepath.Join(t.TempDir(), "out")

	r := NewJobRunner(c, dir)
	err := r.HandleScanAvailable(context.Background(), svc, "dest-1", ScanAvailable{ClientContext: "ctx", ScanIdentifier: "scan-9"})
	if err != nil {
		t.Fatalf("HandleScanAvailable() error = %v", err)
	}

	// The default ticket asks for two images.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("wrote %d files, want 2", len(entries))
	}
	if entries[0].Name() != "scan_42_000.jpg" {
		t.Errorf("first file = %s", entries[0].Name())
	}

	if !fake.sawAction(wsd.ActionValidateScanTicket) || !fake.sawAction(wsd.ActionGetJobElements) {
		t.Error("runner skipped ticket validation or the final job elements")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.created) != 1 {
		t.Fatalf("CreateScanJob called %d times", len(fake.created))
	}
	req := fake.created[0]
	for _, want := range []string{"<sca:ScanIdentifier>scan-9</sca:ScanIdentifier>", "<sca:DestinationToken>dest-1</sca:DestinationToken>", "<sca:Format>jfif</sca:Format>"} {
		if !strings.Contains(req, want) {
			t.Errorf("CreateScanJob request missing %s", want)
		}
	}
}

func TestJobRunnerStopsWhenImagesRunOut(t *testing.T) {
	fake := &fakeScanner{images: 1}
	c, svc := newTestService(t, fake)

	r := NewJobRunner(c, t.TempDir())
	paths, err := r.Run(context.Background(), svc, "", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("Run() wrote %d files, want 1", len(paths))
	}
}

func TestValidateScanTicket(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantValid  bool
		wantFormat string
	}{
		{"valid", validBody, true, ""},
		{"corrected", correctedBody, false, "png"},
		{"rejected", rejectedBody, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, svc := newTestService(t, &fakeScanner{validation: tt.body})

			v, err := c.ValidateScanTicket(context.Background(), svc, ScanTicket{JobName: "Scan"})
			if err != nil {
				t.Fatalf("ValidateScanTicket() error = %v", err)
			}
			if v.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", v.Valid, tt.wantValid)
			}
			switch {
			case tt.wantFormat == "" && v.Corrected != nil:
				t.Errorf("Corrected = %+v, want nil", v.Corrected)
			case tt.wantFormat != "" && (v.Corrected == nil || v.Corrected.Params.Format != tt.wantFormat):
				t.Errorf("Corrected = %+v, want format %s", v.Corrected, tt.wantFormat)
			}
		})
	}
}

func TestValidateScanTicketBadBoolean(t *testing.T) {
	body := `<sca:ValidateScanTicketResponse><sca:ValidationInfo><sca:ValidTicket>maybe</sca:ValidTicket></sca:ValidationInfo></sca:ValidateScanTicketResponse>`
	c, svc := newTestService(t, &fakeScanner{validation: body})

	_, err := c.ValidateScanTicket(context.Background(), svc, ScanTicket{})
	if !errors.Is(err, soap.ErrMalformed) {
		t.Errorf("ValidateScanTicket() error = %v, want ErrMalformed", err)
	}
}

func TestGetJobElements(t *testing.T) {
	c, svc := newTestService(t, &fakeScanner{})

	e, err := c.GetJobElements(context.Background(), svc, 42)
	if err != nil {
		t.Fatalf("GetJobElements() error = %v", err)
	}
	if e.Status.ID != 42 || e.Status.State != "Completed" || e.Status.ScansCompleted != 2 {
		t.Errorf("Status = %+v", e.Status)
	}
	if e.Ticket != nil {
		t.Errorf("Ticket = %+v, want nil", e.Ticket)
	}
	if e.Params == nil || e.Params.Format != "jfif" || e.Params.ImagesToTransfer != 2 {
		t.Errorf("Params = %+v", e.Params)
	}
	if len(e.Documents) != 2 || e.Documents[1] != "scan_42_001" {
		t.Errorf("Documents = %v", e.Documents)
	}
}

func TestJobRunnerUsesCorrectedTicket(t *testing.T) {
	fake := &fakeScanner{images: 5, validation: correctedBody}
	c, svc := newTestService(t, fake)

	paths, err := NewJobRunner(c, t.TempDir()).Run(context.Background(), svc, "", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The correction asks for one png image.
	if len(paths) != 1 || filepath.Ext(paths[0]) != ".jpg" {
		t.Errorf("paths = %v", paths)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.created) != 1 || !strings.Contains(fake.created[0], "<sca:Format>png</sca:Format>") {
		t.Errorf("CreateScanJob did not use the corrected ticket")
	}
}

func TestJobRunnerRejectedTicket(t *testing.T) {
	fake := &fakeScanner{images: 1, validation: rejectedBody}
	c, svc := newTestService(t, fake)

	_, err := NewJobRunner(c, t.TempDir()).Run(context.Background(), svc, "", "")
	if !errors.Is(err, ErrTicketRejected) {
		t.Fatalf("Run() error = %v, want ErrTicketRejected", err)
	}
	if fake.sawAction(wsd.ActionCreateScanJob) {
		t.Error("job created for a rejected ticket")
	}
}

func TestJobRunnerCancelsFailedJob(t *testing.T) {
	fake := &fakeScanner{images: 2, broken: true}
	c, svc := newTestService(t, fake)

	_, err := NewJobRunner(c, t.TempDir()).Run(context.Background(), svc, "", "")
	if err == nil {
		t.Fatal("Run() succeeded with a failing scanner")
	}
	if !fake.sawAction(wsd.ActionCancelJob) {
		t.Error("failed job was not cancelled")
	}
	if fake.sawAction(wsd.ActionGetJobElements) {
		t.Error("job elements fetched for a failed job")
	}
}

func TestJobRunnerCancelsOnContextDone(t *testing.T) {
	fake := &fakeScanner{images: 5}
	c, svc := newTestService(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewJobRunner(c, t.TempDir())
	// Create the job on a live context, then retrieve on the cancelled one.
	job, err := c.CreateScanJob(context.Background(), svc, ScanTicket{}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.retrieve(ctx, svc, job, ScanTicket{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("retrieve() error = %v, want context.Canceled", err)
	}
	r.cancel(svc, job.ID)
	if !fake.sawAction(wsd.ActionCancelJob) {
		t.Error("CancelJob not sent after the context ended")
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		contentType, format, want string
	}{
		{"image/jpeg", "", ".jpg"},
		{"image/png; charset=binary", "", ".png"},
		{"application/octet-stream", "tiff-single-uncompressed", ".tif"},
		{"", "exif", ".jpg"},
		{"", "dib", ".bmp"},
		{"", "xps", ".bin"},
	}
	for _, tt := range tests {
		if got := extension(tt.contentType, tt.format); got != tt.want {
			t.Errorf("extension(%q, %q) = %q, want %q", tt.contentType, tt.format, got, tt.want)
		}
	}
}
