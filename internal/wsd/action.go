package wsd

// Action identifies a SOAP action the toolkit understands. The set is
// closed: unknown URIs parse to ActionUnknown and are dropped by callers.
type Action int

const (
	ActionUnknown Action = iota

	ActionHello
	ActionBye
	ActionProbe
	ActionProbeMatches
	ActionResolve
	ActionResolveMatches

	ActionFault

	ActionTransferGet
	ActionTransferGetResponse

	ActionSubscribe
	ActionSubscribeResponse
	ActionRenew
	ActionRenewResponse
	ActionUnsubscribe
	ActionUnsubscribeResponse
	ActionGetStatus
	ActionGetStatusResponse
	ActionSubscriptionEnd

	ActionScannerElementsChange
	ActionScannerStatusSummary
	ActionScannerStatusCondition
	ActionScannerStatusConditionCleared
	ActionJobStatus
	ActionJobEndState
	ActionScanAvailable

	ActionGetScannerElements
	ActionGetScannerElementsResponse
	ActionCreateScanJob
	ActionCreateScanJobResponse
	ActionRetrieveImage
	ActionRetrieveImageResponse
	ActionCancelJob
	ActionCancelJobResponse
	ActionGetActiveJobs
	ActionGetActiveJobsResponse
	ActionGetJobHistory
	ActionGetJobHistoryResponse
	ActionValidateScanTicket
	ActionValidateScanTicketResponse
	ActionGetJobElements
	ActionGetJobElementsResponse

	ActionGetPrinterElements
	ActionGetPrinterElementsResponse
)

const (
	discoveryBase = "http://schemas.xmlsoap.org/ws/2005/04/discovery/"
	eventingBase  = "http://schemas.xmlsoap.org/ws/2004/08/eventing/"
	transferBase  = "http://schemas.xmlsoap.org/ws/2004/09/transfer/"
	scanBase      = "http://schemas.microsoft.com/windows/2006/08/wdp/scan/"
	printBase     = "http://schemas.microsoft.com/windows/2006/08/wdp/print/"
)

var actionURIs = map[Action]string{
	ActionHello:          discoveryBase + "Hello",
	ActionBye:            discoveryBase + "Bye",
	ActionProbe:          discoveryBase + "Probe",
	ActionProbeMatches:   discoveryBase + "ProbeMatches",
	ActionResolve:        discoveryBase + "Resolve",
	ActionResolveMatches: discoveryBase + "ResolveMatches",

	ActionFault: "http://schemas.xmlsoap.org/ws/2004/08/addressing/fault",

	ActionTransferGet:         transferBase + "Get",
	ActionTransferGetResponse: transferBase + "GetResponse",

	ActionSubscribe:           eventingBase + "Subscribe",
	ActionSubscribeResponse:   eventingBase + "SubscribeResponse",
	ActionRenew:               eventingBase + "Renew",
	ActionRenewResponse:       eventingBase + "RenewResponse",
	ActionUnsubscribe:         eventingBase + "Unsubscribe",
	ActionUnsubscribeResponse: eventingBase + "UnsubscribeResponse",
	ActionGetStatus:           eventingBase + "GetStatus",
	ActionGetStatusResponse:   eventingBase + "GetStatusResponse",
	ActionSubscriptionEnd:     eventingBase + "SubscriptionEnd",

	ActionScannerElementsChange:         scanBase + "ScannerElementsChangeEvent",
	ActionScannerStatusSummary:          scanBase + "ScannerStatusSummaryEvent",
	ActionScannerStatusCondition:        scanBase + "ScannerStatusConditionEvent",
	ActionScannerStatusConditionCleared: scanBase + "ScannerStatusConditionClearedEvent",
	ActionJobStatus:                     scanBase + "JobStatusEvent",
	ActionJobEndState:                   scanBase + "JobEndStateEvent",
	ActionScanAvailable:                 scanBase + "ScanAvailableEvent",

	ActionGetScannerElements:         scanBase + "GetScannerElements",
	ActionGetScannerElementsResponse: scanBase + "GetScannerElementsResponse",
	ActionCreateScanJob:              scanBase + "CreateScanJob",
	ActionCreateScanJobResponse:      scanBase + "CreateScanJobResponse",
	ActionRetrieveImage:              scanBase + "RetrieveImage",
	ActionRetrieveImageResponse:      scanBase + "RetrieveImageResponse",
	ActionCancelJob:                  scanBase + "CancelJob",
	ActionCancelJobResponse:          scanBase + "CancelJobResponse",
	ActionGetActiveJobs:              scanBase + "GetActiveJobs",
	ActionGetActiveJobsResponse:      scanBase + "GetActiveJobsResponse",
	ActionGetJobHistory:              scanBase + "GetJobHistory",
	ActionGetJobHistoryResponse:      scanBase + "GetJobHistoryResponse",
	ActionValidateScanTicket:         scanBase + "ValidateScanTicket",
	ActionValidateScanTicketResponse: scanBase + "ValidateScanTicketResponse",
	ActionGetJobElements:             scanBase + "GetJobElements",
	ActionGetJobElementsResponse:     scanBase + "GetJobElementsResponse",

	ActionGetPrinterElements:         printBase + "GetPrinterElements",
	ActionGetPrinterElementsResponse: printBase + "GetPrinterElementsResponse",
}

var actionsByURI = func() map[string]Action {
	m := make(map[string]Action, len(actionURIs))
	for a, uri := range actionURIs {
		m[uri] = a
	}
	return m
}()

// ParseAction maps an action URI to its Action.
func ParseAction(uri string) Action {
	if a, ok := actionsByURI[uri]; ok {
		return a
	}
	// Some devices report the fault action under the soap namespace.
	if uri == "http://www.w3.org/2005/08/addressing/soap/fault" {
		return ActionFault
	}
	return ActionUnknown
}

// URI returns the wire form of the action, or an empty string for
// ActionUnknown.
func (a Action) URI() string {
	return actionURIs[a]
}

// IsScanEvent reports whether the action is a WS-Scan event notification.
func (a Action) IsScanEvent() bool {
	return a >= ActionScannerElementsChange && a <= ActionScanAvailable
}

func (a Action) String() string {
	if uri, ok := actionURIs[a]; ok {
		return uri
	}
	return "unknown"
}

// ScannerEventActions lists the scanner events a monitor subscribes to,
// in subscription order.
var ScannerEventActions = []Action{
	ActionScannerElementsChange,
	ActionScannerStatusSummary,
	ActionScannerStatusCondition,
	ActionJobStatus,
	ActionScannerStatusConditionCleared,
	ActionJobEndState,
}
