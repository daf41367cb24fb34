// Package scanmon keeps a live view of a scanner by subscribing to its
// events.
package scanmon

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/eventing"
	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/scan"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

const pollInterval = 100 * time.Millisecond

// Options configures a Monitor
type Options struct {
	// NotifyAddr is the URL the scanner posts events to. It must reach the
	// listener passed to New.
	NotifyAddr string

	// Expires is requested for every subscription. Zero asks for none.
	Expires eventing.Expiration

	// DisplayName, when set, also registers this client as a scan
	// destination under that name.
	DisplayName string
}

// Jobs is the job view of a monitor
type Jobs struct {
	Active []scan.JobStatus
	Ended  []scan.JobSummary
}

// Changes reports which views have unread events
type Changes struct {
	Description   bool
	Configuration bool
	DefaultTicket bool
	Status        bool
	Jobs          bool
}

// Any reports whether anything changed
func (c Changes) Any() bool {
	return c.Description || c.Configuration || c.DefaultTicket || c.Status || c.Jobs
}

// Monitor tracks one scan service. Getters apply the events queued since
// the last call and return the result.
type Monitor struct {
	Service wsd.HostedService

	events   *eventing.Client
	listener *eventing.Listener
	queues   *eventing.Queues

	sub     *eventing.Subscription
	scanSub *eventing.Subscription
	context string

	mu            sync.Mutex
	description   scan.ScannerDescription
	configuration scan.ScannerConfiguration
	ticket        scan.ScanTicket
	status        *scan.ScannerStatus
	active        map[int]scan.JobStatus
	ended         []scan.JobSummary

	log *zap.Logger
}

// New reads the scanner's current elements and subscribes to its events.
// The monitor takes ownership of listener, which must already be started.
func New(ctx context.Context, scanClient *scan.Client, events *eventing.Client, listener *eventing.Listener, svc wsd.HostedService, opts Options) (*Monitor, error) {
	elems, err := scanClient.GetScannerElements(ctx, svc)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		Service:       svc,
		events:        events,
		listener:      listener,
		queues:        listener.Queues,
		description:   elems.Description,
		configuration: elems.Configuration,
		ticket:        elems.DefaultTicket,
		status:        elems.Status,
		active:        make(map[int]scan.JobStatus),
		log:           logging.Named("scanmon"),
	}

	m.sub, err = events.Subscribe(ctx, svc, eventing.ScannerEventsFilter, opts.NotifyAddr, opts.Expires)
	if err != nil {
		return nil, err
	}

	if opts.DisplayName != "" {
		m.context = "client_" + uuid.NewString()
		sub, token, err := events.SubscribeScanAvailable(ctx, svc, opts.NotifyAddr, opts.DisplayName, m.context, opts.Expires)
		if err != nil {
			_ = events.Unsubscribe(ctx, m.sub)
			return nil, err
		}
		m.scanSub = sub
		listener.Destinations.Register(m.context, eventing.Destination{Service: svc, Token: token})
	}

	m.log.Info("Monitoring scanner",
		zap.String("service", svc.EpRefAddr),
		zap.String("name", m.description.Name))
	return m, nil
}

// Description returns the scanner description, updated with queued
// changes.
func (m *Monitor) Description() scan.ScannerDescription {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.queues.Descriptions.Drain() {
		m.description = d
	}
	return m.description
}

// Configuration returns the scanner configuration, updated with queued
// changes.
func (m *Monitor) Configuration() scan.ScannerConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.queues.Configurations.Drain() {
		m.configuration = c
	}
	return m.configuration
}

// DefaultTicket returns the default scan ticket, updated with queued
// changes.
func (m *Monitor) DefaultTicket() scan.ScanTicket {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.queues.DefaultTickets.Drain() {
		m.ticket = t
	}
	return m.ticket
}

// Status applies queued condition and summary events and returns a copy
// of the scanner status.
func (m *Monitor) Status() scan.ScannerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.queues.Conditions.Drain() {
		m.status.Raise(c)
	}
	for _, c := range m.queues.Cleared.Drain() {
		if !m.status.Clear(c.ID, c.ClearTime) {
			m.log.Debug("Cleared condition was not active", zap.Int("id", c.ID))
		}
	}
	for _, s := range m.queues.Summaries.Drain() {
		m.status.ApplySummary(s)
	}

	out := *m.status
	out.Reasons = slices.Clone(m.status.Reasons)
	out.Active = maps.Clone(m.status.Active)
	out.History = maps.Clone(m.status.History)
	return out
}

// Jobs applies queued job events. Active jobs are ordered by id, ended
// jobs by arrival.
func (m *Monitor) Jobs() Jobs {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.queues.Jobs.Drain() {
		m.active[j.ID] = j
	}
	for _, j := range m.queues.EndedJobs.Drain() {
		delete(m.active, j.ID)
		m.ended = append(m.ended, j)
	}

	ids := slices.Sorted(maps.Keys(m.active))
	out := Jobs{Ended: slices.Clone(m.ended)}
	for _, id := range ids {
		out.Active = append(out.Active, m.active[id])
	}
	return out
}

// Changed reports which getters have unread events without applying them
func (m *Monitor) Changed() Changes {
	q := m.queues
	return Changes{
		Description:   q.Len(eventing.CategoryDescription) > 0,
		Configuration: q.Len(eventing.CategoryConfiguration) > 0,
		DefaultTicket: q.Len(eventing.CategoryDefaultTicket) > 0,
		Status: q.Len(eventing.CategoryStatusSummary) > 0 ||
			q.Len(eventing.CategoryConditionRaised) > 0 ||
			q.Len(eventing.CategoryConditionCleared) > 0,
		Jobs: q.Len(eventing.CategoryJobStatus) > 0 || q.Len(eventing.CategoryJobEnded) > 0,
	}
}

// Wait blocks until a status, condition or job event is queued, or ctx
// is done.
func (m *Monitor) Wait(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for !m.Changed().Any() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Renew extends the subscriptions by exp
func (m *Monitor) Renew(ctx context.Context, exp eventing.Expiration) error {
	if err := m.events.Renew(ctx, m.sub, exp); err != nil {
		return err
	}
	if m.scanSub != nil && m.scanSub.State() == eventing.StateSubscribed {
		return m.events.Renew(ctx, m.scanSub, exp)
	}
	return nil
}

// SubscriptionEnded drops the subscription a SubscriptionEnd named, or
// every subscription when id is empty. Dropped subscriptions are neither
// renewed nor unsubscribed. It reports whether status events have stopped.
func (m *Monitor) SubscriptionEnded(id string) bool {
	for _, sub := range []*eventing.Subscription{m.sub, m.scanSub} {
		if sub == nil || (id != "" && sub.ID != id) {
			continue
		}
		m.log.Info("Subscription ended by scanner", zap.String("subscription", sub.ID))
		sub.Abandon()
	}
	return m.sub.State() != eventing.StateSubscribed
}

// Close stops the listener, then unsubscribes. Subscriptions the device
// already dropped are not an error.
func (m *Monitor) Close(ctx context.Context) error {
	var errs []error
	if err := m.listener.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown listener: %w", err))
	}

	for _, sub := range []*eventing.Subscription{m.sub, m.scanSub} {
		if sub == nil {
			continue
		}
		if err := m.events.Unsubscribe(ctx, sub); err != nil && !errors.Is(err, eventing.ErrNotSubscribed) {
			errs = append(errs, err)
		}
	}
	if m.context != "" {
		m.listener.Destinations.Remove(m.context)
	}
	return errors.Join(errs...)
}
