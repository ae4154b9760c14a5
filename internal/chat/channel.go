package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/codefionn/turing/internal/consts"
	"github.com/codefionn/turing/internal/logger"
)

// Sender publishes messages of one user to the group of one document.
type Sender struct {
	conn     *net.UDPConn
	from     string
	document string
}

// NewSender opens a sender to group:port. document is the document URI the
// messages are about.
func NewSender(group netip.Addr, port int, from, document string) (*Sender, error) {
	raddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(group, uint16(port)))
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat sender to %s: %w", raddr, err)
	}

	if group.IsMulticast() {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastTTL(1); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set multicast TTL: %w", err)
		}
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable multicast loopback: %w", err)
		}
	}

	return &Sender{conn: conn, from: from, document: document}, nil
}

// Send publishes text.
func (s *Sender) Send(text string) error {
	data, err := Encode(Message{From: s.from, Document: s.document, Text: text, SentAt: time.Now()})
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
	}
	return nil
}

// Close closes the sender.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Receiver reads the messages sent to one group.
type Receiver struct {
	conn  *ipv4.PacketConn
	raw   net.PacketConn
	group *net.UDPAddr
	ifi   *net.Interface
	log   *logger.Logger
}

// NewReceiver listens on port and joins group on ifi. A nil ifi lets the system
// pick the interface. A unicast group only listens, without joining. The port
// is bound shared so several receivers on one host can follow the same group.
func NewReceiver(group netip.Addr, port int, ifi *net.Interface) (*Receiver, error) {
	listenAddr := netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(port))
	if !group.IsMulticast() {
		listenAddr = netip.AddrPortFrom(group, uint16(port))
	}
	lc := net.ListenConfig{Control: reuseAddr}
	raw, err := lc.ListenPacket(context.Background(), "udp4", listenAddr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen for chat on %s: %w", listenAddr, err)
	}

	r := &Receiver{
		conn:  ipv4.NewPacketConn(raw),
		raw:   raw,
		group: &net.UDPAddr{IP: group.AsSlice()},
		ifi:   ifi,
		log:   logger.Global().WithPrefix("chat"),
	}
	if group.IsMulticast() {
		if err := r.conn.JoinGroup(ifi, r.group); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to join chat group %s: %w", group, err)
		}
	}
	return r, nil
}

// LocalAddr returns the address the receiver listens on.
func (r *Receiver) LocalAddr() net.Addr {
	return r.raw.LocalAddr()
}

// Receive blocks until a valid message arrives or ctx is done. Datagrams that
// are not chat messages are skipped.
func (r *Receiver) Receive(ctx context.Context) (Message, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = r.raw.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, consts.ChatDatagramSize+1)
	for {
		n, _, src, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				_ = r.raw.SetReadDeadline(time.Time{})
				return Message{}, ctx.Err()
			}
			return Message{}, fmt.Errorf("failed to receive chat message: %w", err)
		}

		m, err := Decode(buf[:n])
		if err != nil {
			r.log.Debug("Dropped datagram from %s: %v", src, err)
			continue
		}
		return m, nil
	}
}

// Close leaves the group and closes the receiver.
func (r *Receiver) Close() error {
	var leaveErr error
	if r.group.IP.IsMulticast() {
		leaveErr = r.conn.LeaveGroup(r.ifi, r.group)
	}
	return errors.Join(leaveErr, r.raw.Close())
}
