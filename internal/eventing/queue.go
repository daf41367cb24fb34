package eventing

import (
	"context"
	"sync"

	"github.com/wsdtool/wsdtool/internal/scan"
)

// DefaultQueueCapacity bounds each event queue
const DefaultQueueCapacity = 256

// Queue is a bounded FIFO safe for concurrent producers and consumers.
// When full, Put drops the oldest item.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  int

	// ready holds a token while items may be available
	ready chan struct{}
}

// NewQueue creates a queue holding at most capacity items
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue[T]{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Put appends v, evicting the oldest item when the queue is full
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// Get removes and returns the oldest item, waiting until one is available
// or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryGet(); ok {
			return v, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryGet removes and returns the oldest item without waiting
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return v, true
}

// Drain removes and returns every queued item, oldest first
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were evicted because the queue was full
func (q *Queue[T]) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Category names an event queue
type Category int

const (
	CategoryDescription Category = iota
	CategoryConfiguration
	CategoryDefaultTicket
	CategoryStatusSummary
	CategoryConditionRaised
	CategoryConditionCleared
	CategoryJobStatus
	CategoryJobEnded
)

var categoryNames = [...]string{
	"description-changed",
	"configuration-changed",
	"default-ticket-changed",
	"status-summary",
	"condition-raised",
	"condition-cleared",
	"job-status",
	"job-ended",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// Queues holds one queue per event category
type Queues struct {
	Descriptions   *Queue[scan.ScannerDescription]
	Configurations *Queue[scan.ScannerConfiguration]
	DefaultTickets *Queue[scan.ScanTicket]
	Summaries      *Queue[scan.StatusSummary]
	Conditions     *Queue[scan.Condition]
	Cleared        *Queue[scan.ConditionCleared]
	Jobs           *Queue[scan.JobStatus]
	EndedJobs      *Queue[scan.JobSummary]
}

// NewQueues creates the category queues, each bounded by capacity
func NewQueues(capacity int) *Queues {
	return &Queues{
		Descriptions:   NewQueue[scan.ScannerDescription](capacity),
		Configurations: NewQueue[scan.ScannerConfiguration](capacity),
		DefaultTickets: NewQueue[scan.ScanTicket](capacity),
		Summaries:      NewQueue[scan.StatusSummary](capacity),
		Conditions:     NewQueue[scan.Condition](capacity),
		Cleared:        NewQueue[scan.ConditionCleared](capacity),
		Jobs:           NewQueue[scan.JobStatus](capacity),
		EndedJobs:      NewQueue[scan.JobSummary](capacity),
	}
}

// Put routes the payloads of ev to their queues and returns the
// categories that received one.
func (q *Queues) Put(ev scan.Event) []Category {
	var out []Category
	if ev.Description != nil {
		q.Descriptions.Put(*ev.Description)
		out = append(out, CategoryDescription)
	}
	if ev.Configuration != nil {
		q.Configurations.Put(*ev.Configuration)
		out = append(out, CategoryConfiguration)
	}
	if ev.DefaultTicket != nil {
		q.DefaultTickets.Put(*ev.DefaultTicket)
		out = append(out, CategoryDefaultTicket)
	}
	if ev.Summary != nil {
		q.Summaries.Put(*ev.Summary)
		out = append(out, CategoryStatusSummary)
	}
	if ev.Condition != nil {
		q.Conditions.Put(*ev.Condition)
		out = append(out, CategoryConditionRaised)
	}
	if ev.Cleared != nil {
		q.Cleared.Put(*ev.Cleared)
		out = append(out, CategoryConditionCleared)
	}
	if ev.Job != nil {
		q.Jobs.Put(*ev.Job)
		out = append(out, CategoryJobStatus)
	}
	if ev.JobEnded != nil {
		q.EndedJobs.Put(*ev.JobEnded)
		out = append(out, CategoryJobEnded)
	}
	return out
}

// Len returns the number of items queued in category c
func (q *Queues) Len(c Category) int {
	switch c {
	case CategoryDescription:
		return q.Descriptions.Len()
	case CategoryConfiguration:
		return q.Configurations.Len()
	case CategoryDefaultTicket:
		return q.DefaultTickets.Len()
	case CategoryStatusSummary:
		return q.Summaries.Len()
	case CategoryConditionRaised:
		return q.Conditions.Len()
	case CategoryConditionCleared:
		return q.Cleared.Len()
	case CategoryJobStatus:
		return q.Jobs.Len()
	case CategoryJobEnded:
		return q.EndedJobs.Len()
	}
	return 0
}
