package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/wsdtool/wsdtool/internal/logging"
)

const (
	// MulticastGroup is the WS-Discovery IPv4 multicast group
	MulticastGroup = "239.255.255.250"

	// MulticastPort is the WS-Discovery port
	MulticastPort = 3702

	// MulticastTTL keeps discovery traffic on the local link
	MulticastTTL = 1

	maxDatagramSize = 65536
)

// GroupAddr is the UDP address of the discovery multicast group
var GroupAddr = &net.UDPAddr{IP: net.ParseIP(MulticastGroup), Port: MulticastPort}

// Datagram is a received UDP payload and its sender
type Datagram struct {
	Data []byte
	From net.Addr
}

// PacketConn sends to the multicast group and receives replies or
// announcements.
type PacketConn interface {
	// Send writes payload to the multicast group
	Send(ctx context.Context, payload []byte) error

	// Receive blocks for the next datagram. It returns ErrTimeout when
	// the context deadline passes and ctx.Err() when it is cancelled.
	Receive(ctx context.Context) (Datagram, error)

	Close() error
}

// Dialer opens multicast connections
type Dialer interface {
	// DialMulticast opens a socket on an ephemeral port. Unicast replies
	// to a Probe or Resolve sent from it arrive on the same socket.
	DialMulticast(ctx context.Context) (PacketConn, error)

	// ListenMulticast joins the group on the discovery port to receive
	// Hello and Bye announcements.
	ListenMulticast(ctx context.Context) (PacketConn, error)
}

// UDPDialer is the Dialer backed by real sockets
type UDPDialer struct {
	// Interface restricts group membership to one interface. Nil joins
	// every multicast capable interface.
	Interface *net.Interface

	// TTL overrides MulticastTTL when positive
	TTL int
}

// DialMulticast opens an ephemeral UDP socket for probe and resolve
func (d *UDPDialer) DialMulticast(ctx context.Context) (PacketConn, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open multicast socket: %w", err)
	}
	conn := pc.(*net.UDPConn)

	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(d.ttl()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set multicast ttl: %w", err)
	}
	if d.Interface != nil {
		if err := p.SetMulticastInterface(d.Interface); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set multicast interface %s: %w", d.Interface.Name, err)
		}
	}
	_ = conn.SetReadBuffer(1 << 20)

	logging.Debug("Opened multicast socket", zap.String("local", conn.LocalAddr().String()))
	return &udpConn{conn: conn}, nil
}

// ListenMulticast binds the discovery port and joins the group
func (d *UDPDialer) ListenMulticast(ctx context.Context) (PacketConn, error) {
	conn, err := net.ListenMulticastUDP("udp4", d.Interface, GroupAddr)
	if err != nil {
		return nil, fmt.Errorf("join multicast group: %w", err)
	}

	p := ipv4.NewPacketConn(conn)
	_ = p.SetMulticastTTL(d.ttl())

	if d.Interface == nil {
		joined := 0
		ifaces, _ := net.Interfaces()
		for i := range ifaces {
			ifi := &ifaces[i]
			if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
				continue
			}
			if err := p.JoinGroup(ifi, &net.UDPAddr{IP: GroupAddr.IP}); err != nil {
				logging.Debug("Join group failed", zap.String("interface", ifi.Name), zap.Error(err))
				continue
			}
			joined++
		}
		logging.Debug("Listening for announcements", zap.Int("interfaces", joined))
	}
	_ = conn.SetReadBuffer(1 << 20)

	return &udpConn{conn: conn}, nil
}

func (d *UDPDialer) ttl() int {
	if d.TTL > 0 {
		return d.TTL
	}
	return MulticastTTL
}

type udpConn struct {
	conn *net.UDPConn
}

func (c *udpConn) Send(ctx context.Context, payload []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	logging.LogSOAPMessage("send", GroupAddr.String(), payload)
	if _, err := c.conn.WriteToUDP(payload, GroupAddr); err != nil {
		return Classify(err, GroupAddr.String())
	}
	return nil
}

func (c *udpConn) Receive(ctx context.Context) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	// Unblock the read when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, maxDatagramSize)
	n, from, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Datagram{}, ctx.Err()
		}
		if isNetTimeout(err) {
			return Datagram{}, ErrTimeout
		}
		return Datagram{}, Classify(err, c.conn.LocalAddr().String())
	}

	logging.LogSOAPMessage("recv", from.String(), buf[:n])
	return Datagram{Data: buf[:n], From: from}, nil
}

func (c *udpConn) Close() error {
	return c.conn.Close()
}
