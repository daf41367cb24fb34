package eventing

import (
	"errors"
	"strings"
	"sync"

	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// ErrNotSubscribed is returned for operations on a subscription that was
// never established or has ended.
var ErrNotSubscribed = errors.New("not subscribed")

// State is the lifecycle state of a subscription
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribed
)

func (s State) String() string {
	if s == StateSubscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// Subscription is an event subscription held with a hosted service.
// Expiration is what the device granted and is not enforced locally.
type Subscription struct {
	ID         string
	FilterURI  string
	Service    wsd.HostedService
	NotifyAddr string

	// ManagerAddr is the subscription manager the device named, tried
	// before the service address for renew, unsubscribe and get status.
	ManagerAddr string

	mu      sync.Mutex
	expires Expiration
	state   State
}

// Expires returns the last granted expiration
func (s *Subscription) Expires() Expiration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires
}

// State returns the current lifecycle state
func (s *Subscription) State() State {
	if s == nil {
		return StateUnsubscribed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Abandon drops the subscription locally without telling the device. The
// device keeps sending events until it expires.
func (s *Subscription) Abandon() {
	s.setState(StateUnsubscribed)
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Subscription) setExpires(e Expiration) {
	s.mu.Lock()
	s.expires = e
	s.mu.Unlock()
}

func (s *Subscription) active() error {
	if s == nil || s.ID == "" || s.State() != StateSubscribed {
		return ErrNotSubscribed
	}
	return nil
}

// addrs lists where manager operations go: the manager first, then the
// service itself.
func (s *Subscription) addrs() []string {
	out := make([]string, 0, 2)
	if s.ManagerAddr != "" {
		out = append(out, s.ManagerAddr)
	}
	if s.Service.EpRefAddr != "" && s.Service.EpRefAddr != s.ManagerAddr {
		out = append(out, s.Service.EpRefAddr)
	}
	return out
}

// EndedSubscription returns the identifier of the subscription a
// SubscriptionEnd message ends, or "" when the message names none.
func EndedSubscription(msg *soap.Message) string {
	id, err := msg.FindText(soap.NSEventing, "Identifier")
	if err != nil {
		return ""
	}
	return id
}

// ActionFilter builds a devprof Action filter matching every given action
func ActionFilter(actions ...wsd.Action) string {
	uris := make([]string, 0, len(actions))
	for _, a := range actions {
		uris = append(uris, a.URI())
	}
	return strings.Join(uris, " ")
}

// ScannerEventsFilter matches every scanner event except ScanAvailable,
// which needs its own subscription.
var ScannerEventsFilter = ActionFilter(wsd.ScannerEventActions...)
