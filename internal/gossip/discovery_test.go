package gossip_test

import (
	"net"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gossipcast/internal/gossip"
)

func cidr(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	Expect(err).ToNot(HaveOccurred())
	n.IP = ip
	return n
}

func staticInterfaces(ifaces ...gossip.Interface) func() ([]gossip.Interface, error) {
	return func() ([]gossip.Interface, error) { return ifaces, nil }
}

var _ = Describe("Resolver", func() {
	var fallbackCalls int
	fallback := func(addr string, err error) func() (string, error) {
		return func() (string, error) {
			fallbackCalls++
			return addr, err
		}
	}
	BeforeEach(func() { fallbackCalls = 0 })

	It("Should skip loopback and down interfaces", func() {
		r := gossip.Resolver{
			Interfaces: staticInterfaces(
				gossip.Interface{Name: "lo", Flags: net.FlagUp | net.FlagLoopback, Addrs: []net.Addr{cidr("127.0.0.1/8")}},
				gossip.Interface{Name: "eth0", Addrs: []net.Addr{cidr("192.168.1.5/24")}},
				gossip.Interface{Name: "eth1", Flags: net.FlagUp | net.FlagMulticast, Addrs: []net.Addr{
					cidr("fe80::1/64"),
					cidr("10.1.2.3/16"),
					cidr("10.9.9.9/16"),
				}},
			),
			Fallback: fallback("", errors.New("unused")),
		}
		addr, err := r.Resolve()
		Expect(err).ToNot(HaveOccurred())
		Expect(addr).To(Equal("10.1.2.3"))
		Expect(fallbackCalls).To(BeZero())
	})

	It("Should skip loopback addresses on regular interfaces", func() {
		r := gossip.Resolver{
			Interfaces: staticInterfaces(gossip.Interface{Name: "eth0", Flags: net.FlagUp, Addrs: []net.Addr{
				cidr("127.0.0.2/8"),
				&net.IPAddr{IP: net.ParseIP("172.16.0.4")},
			}}),
			Fallback: fallback("", errors.New("unused")),
		}
		Expect(r.Resolve()).To(Equal("172.16.0.4"))
	})

	It("Should prefer the first qualifying interface", func() {
		r := gossip.Resolver{
			Interfaces: staticInterfaces(
				gossip.Interface{Name: "eth0", Flags: net.FlagUp, Addrs: []net.Addr{cidr("10.0.0.7/8")}},
				gossip.Interface{Name: "eth1", Flags: net.FlagUp, Addrs: []net.Addr{cidr("10.0.0.8/8")}},
			),
		}
		Expect(r.Resolve()).To(Equal("10.0.0.7"))
	})

	It("Should use the fallback when no interface qualifies", func() {
		r := gossip.Resolver{
			Interfaces: staticInterfaces(
				gossip.Interface{Name: "lo", Flags: net.FlagUp | net.FlagLoopback, Addrs: []net.Addr{cidr("127.0.0.1/8")}},
				gossip.Interface{Name: "eth0", Flags: net.FlagUp, Addrs: []net.Addr{cidr("2001:db8::1/64")}},
			),
			Fallback: fallback("192.0.2.1", nil),
		}
		Expect(r.Resolve()).To(Equal("192.0.2.1"))
		Expect(fallbackCalls).To(Equal(1))
	})

	It("Should fail with a resolution error when interfaces cannot be listed", func() {
		r := gossip.Resolver{
			Interfaces: func() ([]gossip.Interface, error) { return nil, errors.New("netlink unavailable") },
			Fallback:   fallback("192.0.2.1", nil),
		}
		_, err := r.Resolve()
		Expect(errors.Is(err, gossip.ErrResolution)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("netlink unavailable"))
		Expect(fallbackCalls).To(BeZero())
	})

	It("Should fail with a resolution error when the fallback fails", func() {
		r := gossip.Resolver{
			Interfaces: staticInterfaces(),
			Fallback:   fallback("", errors.New("no such host")),
		}
		_, err := r.Resolve()
		Expect(errors.Is(err, gossip.ErrResolution)).To(BeTrue())
	})
})
