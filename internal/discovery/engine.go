package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

const (
	// DefaultProbeTimeout is the silence that ends a probe
	DefaultProbeTimeout = 3 * time.Second

	// DefaultResolveTimeout is how long a resolve waits for its match.
	// Only one device should answer, so it is shorter than a probe.
	DefaultResolveTimeout = time.Second

	// seenCapacity is the number of message ids remembered for
	// duplicate suppression
	seenCapacity = 128
)

// ErrClosed is returned by Next after the listener was closed
var ErrClosed = errors.New("announcement listener closed")

// Engine runs the multicast side of WS-Discovery: probe, resolve and
// Hello/Bye listening.
type Engine struct {
	// Dialer opens the multicast sockets
	Dialer transport.Dialer

	// ResolveTimeout bounds the wait for a ResolveMatches
	ResolveTimeout time.Duration

	log *zap.Logger
}

// NewEngine creates an engine using dialer. A nil dialer uses real UDP
// sockets.
func NewEngine(dialer transport.Dialer) *Engine {
	if dialer == nil {
		dialer = &transport.UDPDialer{}
	}
	return &Engine{
		Dialer:         dialer,
		ResolveTimeout: DefaultResolveTimeout,
		log:            logging.Named("discovery"),
	}
}

// Probe multicasts one Probe and gathers ProbeMatches until timeout passes
// without a new correlated reply. A non-empty types filter is embedded in
// the request. Malformed or unrelated packets are dropped.
//
// Silence is not an error: nobody answering yields an empty set.
func (e *Engine) Probe(ctx context.Context, timeout time.Duration, types wsd.StringSet) (wsd.TargetSet, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	req, err := soap.Build(soap.TemplateProbe, soap.Fields{"Types": types.String()})
	if err != nil {
		return nil, err
	}

	conn, err := e.Dialer.DialMulticast(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(ctx, req.Body); err != nil {
		return nil, fmt.Errorf("send probe: %w", err)
	}

	found := wsd.NewTargetSet()
	seen := newMessageRing(seenCapacity)
	deadline := time.Now().Add(timeout)

	for {
		rctx, cancel := context.WithDeadline(ctx, deadline)
		dgram, err := conn.Receive(rctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return found, ctx.Err()
			}
			if errors.Is(err, transport.ErrTimeout) {
				break
			}
			return found, fmt.Errorf("receive probe matches: %w", err)
		}

		pm, ok := e.decodeProbeMatches(dgram, req.MessageID, seen)
		if !ok {
			continue
		}
		for _, t := range pm.Matches {
			if !t.MatchesTypes(types) {
				continue
			}
			found.Add(t)
			e.log.Debug("Probe match", zap.String("target", t.EpRefAddr), zap.Stringer("from", addrStringer{dgram}))
		}
		deadline = time.Now().Add(timeout)
	}

	e.log.Info("Probe finished", zap.Int("matches", len(found)))
	return found, nil
}

func (e *Engine) decodeProbeMatches(dgram transport.Datagram, messageID string, seen *messageRing) (*wsd.ProbeMatchesMessage, bool) {
	msg, err := soap.Parse(dgram.Data)
	if err != nil {
		e.log.Debug("Dropping malformed packet", zap.Stringer("from", addrStringer{dgram}), zap.Error(err))
		return nil, false
	}
	if msg.Action != wsd.ActionProbeMatches {
		e.log.Debug("Dropping packet", zap.String("action", msg.Header.Action))
		return nil, false
	}
	if msg.Header.RelatesTo != messageID {
		e.log.Debug("Dropping unrelated reply", zap.String("relatesTo", msg.Header.RelatesTo))
		return nil, false
	}
	if seen.Seen(msg.Header.MessageID) {
		e.log.Debug("Dropping duplicate", zap.String("messageId", msg.Header.MessageID))
		return nil, false
	}
	pm, err := soap.DecodeProbeMatches(msg)
	if err != nil {
		e.log.Debug("Dropping malformed probe matches", zap.Error(err))
		return nil, false
	}
	return pm, true
}

// Resolve multicasts a Resolve for target and waits ResolveTimeout for the
// matching reply. When nobody answers, target is returned unchanged with
// resolved set to false. A malformed correlated reply is an error.
func (e *Engine) Resolve(ctx context.Context, target wsd.TargetService) (wsd.TargetService, bool, error) {
	req, err := soap.Build(soap.TemplateResolve, soap.Fields{"Address": target.EpRefAddr})
	if err != nil {
		return target, false, err
	}

	conn, err := e.Dialer.DialMulticast(ctx)
	if err != nil {
		return target, false, err
	}
	defer conn.Close()

	if err := conn.Send(ctx, req.Body); err != nil {
		return target, false, fmt.Errorf("send resolve: %w", err)
	}

	timeout := e.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		dgram, err := conn.Receive(rctx)
		if err != nil {
			if ctx.Err() != nil {
				return target, false, ctx.Err()
			}
			if errors.Is(err, transport.ErrTimeout) {
				e.log.Debug("Resolve timed out", zap.String("target", target.EpRefAddr))
				return target, false, nil
			}
			return target, false, fmt.Errorf("receive resolve matches: %w", err)
		}

		msg, err := soap.Parse(dgram.Data)
		if err != nil {
			return target, false, fmt.Errorf("resolve %s: %w", target.EpRefAddr, err)
		}
		if msg.Action != wsd.ActionResolveMatches || msg.Header.RelatesTo != req.MessageID {
			e.log.Debug("Dropping unrelated packet",
				zap.String("action", msg.Header.Action),
				zap.String("relatesTo", msg.Header.RelatesTo))
			continue
		}

		rm, err := soap.DecodeResolveMatches(msg)
		if err != nil {
			return target, false, fmt.Errorf("resolve %s: %w", target.EpRefAddr, err)
		}
		if rm.Match == nil || rm.Match.EpRefAddr != target.EpRefAddr {
			e.log.Debug("Dropping resolve match for another endpoint", zap.Stringer("from", addrStringer{dgram}))
			continue
		}

		e.log.Debug("Resolved", zap.String("target", rm.Match.EpRefAddr), zap.Stringer("xaddrs", rm.Match.XAddrs))
		return *rm.Match, true, nil
	}
}

type addrStringer struct {
	d transport.Datagram
}

func (a addrStringer) String() string {
	if a.d.From == nil {
		return ""
	}
	return a.d.From.String()
}
