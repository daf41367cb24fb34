// Package discovery implements the multicast half of WS-Discovery.
//
// An Engine sends Probe and Resolve messages to 239.255.255.250:3702 and
// collects the unicast replies on the same socket, or joins the group to
// receive Hello and Bye announcements.
//
// # Probe
//
// There is no end-of-matches signal on the wire. A probe finishes once
// its timeout passes without a new correlated ProbeMatches:
//
//	engine := discovery.NewEngine(nil)
//	targets, err := engine.Probe(ctx, 3*time.Second, wsd.NewStringSet(wsd.ScanDeviceType))
//
// # Correlation
//
// Replies whose RelatesTo does not name the outstanding request are
// dropped, as are repeated message ids. Announcements are also ordered by
// their AppSequence per endpoint, so a late or replayed Hello never
// overrides a newer one.
//
// # Announcements
//
//	err := engine.Monitor(ctx, func(ctx context.Context, a discovery.Announcement) error {
//	    fmt.Println(a)
//	    return nil
//	})
//
// Monitor returns nil when ctx is cancelled.
package discovery
