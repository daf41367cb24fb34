package eventing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/scan"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

const (
	// maxEventSize bounds an event body
	maxEventSize = 1 << 20

	readHeaderTimeout = 10 * time.Second
)

// ScanAvailableHandler acts on a device-initiated scan
type ScanAvailableHandler interface {
	HandleScanAvailable(ctx context.Context, svc wsd.HostedService, destToken string, ev scan.ScanAvailable) error
}

// Destination is a scan destination registered with a device
type Destination struct {
	Service wsd.HostedService
	Token   string
}

// Destinations maps client contexts to the destinations registered under
// them.
type Destinations struct {
	mu sync.RWMutex
	m  map[string]Destination
}

// NewDestinations creates an empty map
func NewDestinations() *Destinations {
	return &Destinations{m: make(map[string]Destination)}
}

// Register records dest under clientContext
func (d *Destinations) Register(clientContext string, dest Destination) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[clientContext] = dest
}

// Remove forgets clientContext
func (d *Destinations) Remove(clientContext string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, clientContext)
}

// Lookup returns the destination registered under clientContext
func (d *Destinations) Lookup(clientContext string) (Destination, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dest, ok := d.m[clientContext]
	return dest, ok
}

// Listener receives event notifications over HTTP and routes them to
// Queues. Every POST is acknowledged with 202 before it is decoded.
type Listener struct {
	Queues       *Queues
	Destinations *Destinations

	// ScanHandler runs device-initiated scans. Nil ignores them.
	ScanHandler ScanAvailableHandler

	// OnSubscriptionEnd is called when a device ends a subscription
	OnSubscriptionEnd func(msg *soap.Message)

	addr     string
	server   *http.Server
	listener net.Listener
	serveErr chan error

	mu         sync.Mutex
	stopped    bool
	closing    bool
	jobs       sync.WaitGroup
	jobCtx     context.Context
	cancelJobs context.CancelFunc

	log *zap.Logger
}

// NewListener creates a listener for addr, such as ":6666"
func NewListener(addr string, queues *Queues) *Listener {
	if queues == nil {
		queues = NewQueues(DefaultQueueCapacity)
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	return &Listener{
		Queues:       queues,
		Destinations: NewDestinations(),
		addr:         addr,
		serveErr:     make(chan error, 1),
		jobCtx:       jobCtx,
		cancelJobs:   cancel,
		log:          logging.Named("listener"),
	}
}

// Start binds the address and serves in a background goroutine
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}
	l.listener = ln
	l.server = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	l.log.Info("Listening for events", zap.String("addr", ln.Addr().String()))

	go func() {
		err := l.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		l.serveErr <- err
	}()
	return nil
}

// Addr returns the bound address, nil before Start
func (l *Listener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// ServeHTTP acknowledges a notification, then decodes and routes it
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.ContentLength)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventSize))
	if err != nil {
		l.log.Warn("Failed to read event body", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", transport.ContentType)
	w.Header().Set("Content-Length", "0")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusAccepted)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	logging.LogSOAPMessage("recv", r.RemoteAddr, body)
	l.dispatch(r.RemoteAddr, body)
}

func (l *Listener) dispatch(peer string, body []byte) {
	msg, err := soap.Parse(body)
	if err != nil {
		l.log.Warn("Dropping malformed event", zap.String("remote_addr", peer), zap.Error(err))
		return
	}

	switch {
	case msg.Action == wsd.ActionSubscriptionEnd:
		l.log.Info("Subscription ended by device", zap.String("remote_addr", peer))
		if l.OnSubscriptionEnd != nil {
			l.OnSubscriptionEnd(msg)
		}
		return
	case !msg.Action.IsScanEvent():
		l.log.Debug("Dropping unknown event", zap.String("action", msg.Header.Action))
		return
	}

	ev, err := scan.DecodeEvent(msg)
	if err != nil {
		l.log.Warn("Dropping undecodable event", zap.String("action", msg.Header.Action), zap.Error(err))
		return
	}

	if ev.ScanAvailable != nil {
		l.scanAvailable(*ev.ScanAvailable)
		return
	}

	for _, c := range l.Queues.Put(ev) {
		l.log.Debug("Event queued", zap.Stringer("category", c))
	}
}

func (l *Listener) scanAvailable(ev scan.ScanAvailable) {
	dest, ok := l.Destinations.Lookup(ev.ClientContext)
	if !ok {
		l.log.Warn("Scan available for unknown client context", zap.String("context", ev.ClientContext))
		return
	}
	if l.ScanHandler == nil {
		l.log.Info("Ignoring device-initiated scan", zap.String("scan", ev.ScanIdentifier))
		return
	}

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		l.log.Warn("Ignoring device-initiated scan during shutdown", zap.String("scan", ev.ScanIdentifier))
		return
	}
	l.jobs.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.jobs.Done()
		l.log.Info("Starting device-initiated scan",
			zap.String("scan", ev.ScanIdentifier),
			zap.String("service", dest.Service.EpRefAddr))
		if err := l.ScanHandler.HandleScanAvailable(l.jobCtx, dest.Service, dest.Token, ev); err != nil {
			l.log.Error("Scan job failed", zap.String("scan", ev.ScanIdentifier), zap.Error(err))
		}
	}()
}

// Shutdown stops accepting notifications, waits for in-flight handlers
// and scan jobs, and returns. Queued events stay available. When ctx ends
// first, running scan jobs are cancelled and ctx.Err() is returned.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	l.log.Info("Shutting down listener...")

	// Handlers still running after a timed out server shutdown must not
	// start jobs the wait below would miss.
	var err error
	if l.server != nil {
		err = l.server.Shutdown(ctx)
		if serr := <-l.serveErr; serr != nil && err == nil {
			err = serr
		}
	}
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l.log.Warn("Shutdown timeout, cancelling scan jobs")
		l.cancelJobs()
		<-done
		if err == nil {
			err = ctx.Err()
		}
	}
	l.cancelJobs()
	return err
}
