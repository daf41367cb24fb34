package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// Announcement is a Hello or Bye received on the multicast group.
// A Bye target may carry only its endpoint address.
type Announcement struct {
	Hello  bool
	Target wsd.TargetService
	Header wsd.Header
}

func (a Announcement) String() string {
	kind := "bye"
	if a.Hello {
		kind = "hello"
	}
	return fmt.Sprintf("%s %s", kind, a.Target.EpRefAddr)
}

// AnnouncementListener receives Hello and Bye messages
type AnnouncementListener struct {
	conn transport.PacketConn
	seen *messageRing
	log  *zap.Logger

	mu       sync.Mutex
	closed   bool
	sequence map[string]wsd.AppSequence
}

// ListenAnnouncements joins the multicast group. The caller must Close the
// returned listener.
func (e *Engine) ListenAnnouncements(ctx context.Context) (*AnnouncementListener, error) {
	conn, err := e.Dialer.ListenMulticast(ctx)
	if err != nil {
		return nil, err
	}
	return &AnnouncementListener{
		conn:     conn,
		seen:     newMessageRing(seenCapacity),
		log:      e.log,
		sequence: make(map[string]wsd.AppSequence),
	}, nil
}

// Next blocks until the next Hello or Bye. Malformed packets, other
// actions, repeated message ids and announcements older than the last one
// seen from the same endpoint are skipped.
func (l *AnnouncementListener) Next(ctx context.Context) (Announcement, error) {
	for {
		if l.isClosed() {
			return Announcement{}, ErrClosed
		}

		dgram, err := l.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Announcement{}, ctx.Err()
			}
			if l.isClosed() {
				return Announcement{}, ErrClosed
			}
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			return Announcement{}, fmt.Errorf("receive announcement: %w", err)
		}

		a, ok := l.decode(dgram)
		if ok {
			return a, nil
		}
	}
}

func (l *AnnouncementListener) decode(dgram transport.Datagram) (Announcement, bool) {
	msg, err := soap.Parse(dgram.Data)
	if err != nil {
		l.log.Debug("Dropping malformed packet", zap.Stringer("from", addrStringer{dgram}), zap.Error(err))
		return Announcement{}, false
	}

	var a Announcement
	switch msg.Action {
	case wsd.ActionHello:
		hello, err := soap.DecodeHello(msg)
		if err != nil {
			l.log.Debug("Dropping malformed hello", zap.Error(err))
			return Announcement{}, false
		}
		a = Announcement{Hello: true, Target: hello.Target, Header: hello.Header}
	case wsd.ActionBye:
		bye, err := soap.DecodeBye(msg)
		if err != nil {
			l.log.Debug("Dropping malformed bye", zap.Error(err))
			return Announcement{}, false
		}
		a = Announcement{Target: bye.Target, Header: bye.Header}
	default:
		return Announcement{}, false
	}

	if l.seen.Seen(a.Header.MessageID) {
		l.log.Debug("Dropping duplicate announcement", zap.String("messageId", a.Header.MessageID))
		return Announcement{}, false
	}
	if !l.advance(a.Target.EpRefAddr, a.Header.AppSequence) {
		l.log.Debug("Dropping stale announcement",
			zap.String("target", a.Target.EpRefAddr),
			zap.Stringer("appSequence", a.Header.AppSequence))
		return Announcement{}, false
	}
	return a, true
}

// advance records seq for addr and reports whether it is newer than the
// last sequence seen. Announcements without a sequence always pass.
func (l *AnnouncementListener) advance(addr string, seq wsd.AppSequence) bool {
	if seq.IsZero() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.sequence[addr]; ok && !seq.Newer(prev) {
		return false
	}
	l.sequence[addr] = seq
	return true
}

func (l *AnnouncementListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close leaves the multicast group. A blocked Next returns ErrClosed.
func (l *AnnouncementListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.conn.Close()
}

// Monitor listens for announcements and calls fn for each one until ctx is
// cancelled, which is reported as a nil error. An error from fn stops the
// loop and is returned.
func (e *Engine) Monitor(ctx context.Context, fn func(context.Context, Announcement) error) error {
	l, err := e.ListenAnnouncements(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	e.log.Info("Monitoring announcements")
	for {
		a, err := l.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		e.log.Debug("Announcement", zap.Stringer("announcement", a))
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
}
