// Package transport moves WSD bytes: SOAP over HTTP POST to a device's
// transport addresses, and UDP datagrams to and from the WS-Discovery
// multicast group.
//
// # HTTP
//
// A Client posts one envelope and returns the reply body. Timeouts are
// retried twice with a randomized delay that doubles up to a cap; every
// other failure is returned at once. PostAny tries each address of a
// target in turn and wraps the last failure in ErrUnreachable:
//
//	c := transport.NewClient(2 * time.Second)
//	resp, addr, err := c.PostAny(ctx, target.XAddrs.Sorted(), body)
//
// Failures are reported as *Error with a Kind, so callers can tell a
// refused connection from an HTTP status:
//
//	var te *transport.Error
//	if errors.As(err, &te) && te.Kind == transport.KindHTTP {
//	    ...
//	}
//
// # Multicast
//
// UDPDialer opens either an ephemeral socket for Probe and Resolve, whose
// replies arrive unicast on the same port, or a socket joined to
// 239.255.255.250:3702 for Hello and Bye. Both satisfy PacketConn, which
// tests replace with an in-memory fake.
package transport
