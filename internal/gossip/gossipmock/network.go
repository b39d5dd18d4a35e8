// Package gossipmock provides an in-memory multicast group for exercising
// gossip nodes without sockets.
package gossipmock

import (
	"net"
	"sync"

	"github.com/cockroachdb/errors"

	"gossipcast/internal/gossip"
)

const inboxSize = 64

type datagram struct {
	payload []byte
	from    net.Addr
	err     error
}

// Network is a set of joined channels. Every datagram sent by a member is
// delivered to all members, the sender included. Delivery is best effort: a
// full inbox drops the datagram.
type Network struct {
	mu      sync.Mutex
	members map[*Channel]struct{}
	joinErr error
	nextIP  byte
	joins   int
}

// NewNetwork creates an empty group.
func NewNetwork() *Network {
	return &Network{members: make(map[*Channel]struct{})}
}

// Join implements gossip.JoinFunc.
func (n *Network) Join(cfg gossip.GroupConfig) (gossip.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.joinErr != nil {
		return nil, n.joinErr
	}
	n.nextIP++
	n.joins++
	c := &Channel{
		network: n,
		addr:    &net.UDPAddr{IP: net.IPv4(127, 0, 0, n.nextIP), Port: cfg.Port},
		inbox:   make(chan datagram, inboxSize),
		closed:  make(chan struct{}),
	}
	n.members[c] = struct{}{}
	return c, nil
}

// FailJoins makes every following Join return err. A nil err restores joins.
func (n *Network) FailJoins(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joinErr = err
}

// Members returns the channels currently joined.
func (n *Network) Members() []*Channel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Channel, 0, len(n.members))
	for c := range n.members {
		out = append(out, c)
	}
	return out
}

// Joins counts successful joins since the network was created.
func (n *Network) Joins() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.joins
}

// Broadcast delivers payload to every member as if sent from from.
func (n *Network) Broadcast(payload []byte, from net.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for c := range n.members {
		c.deliver(payload, from)
	}
}

func (n *Network) leave(c *Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.members, c)
}

// Channel is one member of a Network.
type Channel struct {
	network *Network
	addr    net.Addr
	inbox   chan datagram
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	sendErr  error
	closeErr error
	sent     int
}

// Addr is the source address peers see for this channel.
func (c *Channel) Addr() net.Addr { return c.addr }

// FailSends makes every following Send return err.
func (c *Channel) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// FailClose makes Close return err after leaving the network.
func (c *Channel) FailClose(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// Sent counts successful sends.
func (c *Channel) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Inject delivers payload to this channel only.
func (c *Channel) Inject(payload []byte, from net.Addr) { c.deliver(payload, from) }

// InjectError queues a receive that returns err along with payload, in order
// with the datagrams around it.
func (c *Channel) InjectError(payload []byte, from net.Addr, err error) {
	c.enqueue(datagram{payload: append([]byte(nil), payload...), from: from, err: err})
}

// Send delivers b to every member, this channel included.
func (c *Channel) Send(b []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	err := c.sendErr
	if err == nil {
		c.sent++
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.network.Broadcast(b, c.addr)
	return nil
}

func (c *Channel) Receive(buf []byte) (int, net.Addr, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case d := <-c.inbox:
		return copy(buf, d.payload), d.from, d.err
	}
}

// Close leaves the network and unblocks Receive. Datagrams still queued are
// dropped.
func (c *Channel) Close() error {
	c.once.Do(func() {
		c.network.leave(c)
		close(c.closed)
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return errors.Wrap(c.closeErr, "close mock channel")
	}
	return nil
}

func (c *Channel) deliver(payload []byte, from net.Addr) {
	select {
	case <-c.closed:
		return
	default:
	}
	c.enqueue(datagram{payload: append([]byte(nil), payload...), from: from})
}

func (c *Channel) enqueue(d datagram) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.inbox <- d:
	default:
	}
}
