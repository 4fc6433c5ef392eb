package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrNoEchoReply indicates an ICMP echo went unanswered.
var ErrNoEchoReply = errors.New("no echo reply")

// TCPReacher checks reachability by completing a TCP handshake with a
// host:port target.
type TCPReacher struct {
	Timeout time.Duration
}

// Reach implements Reacher.
func (r TCPReacher) Reach(ctx context.Context, host string) error {
	d := net.Dialer{Timeout: r.Timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	return conn.Close()
}

// ICMPReacher checks reachability with a single ICMP echo over a raw
// socket. It needs CAP_NET_RAW.
type ICMPReacher struct {
	Timeout time.Duration
}

// Reach implements Reacher.
func (r ICMPReacher) Reach(ctx context.Context, host string) error {
	dst, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("listen icmp: %w", err)
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: 1, Data: []byte("vpnqa")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("marshal echo: %w", err)
	}

	deadline := time.Now().Add(r.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	if _, err := conn.WriteTo(wb, dst); err != nil {
		return fmt.Errorf("send echo to %s: %w", host, err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return fmt.Errorf("%w from %s: %w", ErrNoEchoReply, host, err)
		}
		if peer.String() != dst.String() {
			continue
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.ID == id {
			return nil
		}
	}
}
