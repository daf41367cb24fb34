// Package scan implements the WS-Scan operations and event payloads a
// scanner monitor needs.
//
// Payload types decode straight from the SOAP body. ScannerStatus is kept
// up to date by applying events:
//
//	status.Raise(cond)            // condition event
//	status.Clear(id, clearTime)   // condition cleared event
//	status.ApplySummary(summary)  // status summary event
//
// JobRunner handles device-initiated scans. It validates the default
// ticket, creates a job with it and saves every image it can retrieve,
// cancelling the job if retrieval breaks off.
package scan
