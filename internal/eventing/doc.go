// Package eventing manages WS-Eventing subscriptions and receives the
// notifications they produce.
//
// Client covers the request side: Subscribe, Renew, Unsubscribe and
// GetStatus. A Subscription moves from subscribed to unsubscribed on
// Unsubscribe, on Abandon, or when GetStatus returns a fault; operations
// on an unsubscribed one fail with ErrNotSubscribed without touching the
// network.
//
// Listener is the receive side. It runs an HTTP server on the notify
// address, answers every POST with 202 Accepted before decoding, and puts
// each decoded payload on the queue for its category. Consumers poll the
// queues with Drain or block on Get. ScanAvailable events are not queued;
// they are matched against Destinations and handed to a
// ScanAvailableHandler in a goroutine the listener waits for on Shutdown.
package eventing
