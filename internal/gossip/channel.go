package gossip

import (
	"net"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/ipv4"
)

// GroupConfig locates the multicast group and tunes the socket joined to it.
type GroupConfig struct {
	// Addr is the IPv4 multicast group address.
	Addr string
	// Port is the UDP port shared by all members.
	Port int
	// Interface names the interface to join on. Empty lets the system choose.
	Interface string
	// DisableLoopback stops the host from receiving its own heartbeats, which
	// also hides nodes running on the same host from each other.
	DisableLoopback bool
	// TTL is the multicast hop limit of outgoing heartbeats.
	TTL int
}

// Merge fills the unset fields of cfg from def.
func (cfg GroupConfig) Merge(def GroupConfig) GroupConfig {
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}
	return cfg
}

// String returns the group as host:port.
func (cfg GroupConfig) String() string {
	return net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port))
}

// UDPAddr validates the group and returns it as a UDP address.
func (cfg GroupConfig) UDPAddr() (*net.UDPAddr, error) {
	ip := net.ParseIP(cfg.Addr).To4()
	if ip == nil || !ip.IsMulticast() {
		return nil, errors.Wrapf(ErrInvalidConfig, "group %q is not an IPv4 multicast address", cfg.Addr)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.Wrapf(ErrInvalidConfig, "group port %d out of range", cfg.Port)
	}
	return &net.UDPAddr{IP: ip, Port: cfg.Port}, nil
}

// Channel is a joined group. Close leaves the group, releases the socket and
// unblocks a pending Receive. Receive marks errors caused only by a datagram
// larger than buf with ErrOversized.
type Channel interface {
	Send(b []byte) error
	Receive(buf []byte) (int, net.Addr, error)
	Close() error
}

// JoinFunc opens a Channel on a group.
type JoinFunc func(GroupConfig) (Channel, error)

type groupChannel struct {
	conn  *net.UDPConn
	pc    *ipv4.PacketConn
	group *net.UDPAddr
	ifi   *net.Interface
	once  sync.Once
	err   error
}

// JoinGroup binds the group port and joins the multicast group.
func JoinGroup(cfg GroupConfig) (Channel, error) {
	group, err := cfg.UDPAddr()
	if err != nil {
		return nil, err
	}
	var ifi *net.Interface
	if cfg.Interface != "" {
		if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
			return nil, errors.Wrapf(err, "lookup interface %s", cfg.Interface)
		}
	}
	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", group)
	}
	c := &groupChannel{conn: conn, pc: ipv4.NewPacketConn(conn), group: group, ifi: ifi}
	if err := c.configure(cfg); err != nil {
		return nil, errors.CombineErrors(err, conn.Close())
	}
	return c, nil
}

func (c *groupChannel) configure(cfg GroupConfig) error {
	if err := c.pc.SetMulticastLoopback(!cfg.DisableLoopback); err != nil {
		return errors.Wrap(err, "set multicast loopback")
	}
	if cfg.TTL > 0 {
		if err := c.pc.SetMulticastTTL(cfg.TTL); err != nil {
			return errors.Wrap(err, "set multicast ttl")
		}
	}
	if c.ifi != nil {
		if err := c.pc.SetMulticastInterface(c.ifi); err != nil {
			return errors.Wrap(err, "set multicast interface")
		}
	}
	return nil
}

func (c *groupChannel) Send(b []byte) error {
	_, err := c.conn.WriteToUDP(b, c.group)
	return err
}

func (c *groupChannel) Receive(buf []byte) (int, net.Addr, error) {
	n, from, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if isMessageTooLong(err) {
			return n, udpAddr(from), mark(err, ErrOversized, "receive")
		}
		return n, nil, err
	}
	return n, from, nil
}

func isMessageTooLong(err error) bool { return errors.Is(err, errMessageTooLong) }

// udpAddr keeps a nil *net.UDPAddr from becoming a non-nil net.Addr.
func udpAddr(a *net.UDPAddr) net.Addr {
	if a == nil {
		return nil
	}
	return a
}

// Close runs both the leave and the close step even if the first fails.
func (c *groupChannel) Close() error {
	c.once.Do(func() {
		var leaveErr, closeErr error
		if err := c.pc.LeaveGroup(c.ifi, &net.UDPAddr{IP: c.group.IP}); err != nil {
			leaveErr = errors.Wrapf(err, "leave group %s", c.group)
		}
		if err := c.conn.Close(); err != nil {
			closeErr = errors.Wrap(err, "close group socket")
		}
		c.err = errors.CombineErrors(leaveErr, closeErr)
	})
	return c.err
}
