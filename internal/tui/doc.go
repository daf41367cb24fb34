// Package tui implements the interactive terminal view of wsdtool monitor.
//
// MonitorModel is a Bubble Tea model fed by a channel of discovery
// announcements. It keeps its own copy of the device set, adding targets
// on Hello and removing them on Bye, and shows the most recent events in a
// log box. Persisting the announcements is the caller's job; the model
// only displays them.
package tui
