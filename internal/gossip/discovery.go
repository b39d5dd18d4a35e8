package gossip

import (
	"net"
	"os"

	"github.com/cockroachdb/errors"
)

// Interface is the part of a network interface the resolver looks at.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// Resolver determines the address a node advertises. Both sources are
// replaceable; zero values use the host's interfaces and hostname lookup.
type Resolver struct {
	Interfaces func() ([]Interface, error)
	Fallback   func() (string, error)
}

// ResolveLocalAddress resolves with the system sources.
func ResolveLocalAddress() (string, error) { return Resolver{}.Resolve() }

// Resolve returns the first IPv4, non-loopback address of the first interface
// that is up and not a loopback interface. Enumeration order is whatever the
// platform reports, so on multi-homed hosts the pick is not guaranteed stable
// across machines. When no interface qualifies the fallback is used.
func (r Resolver) Resolve() (string, error) {
	list := r.Interfaces
	if list == nil {
		list = SystemInterfaces
	}
	ifaces, err := list()
	if err != nil {
		return "", mark(err, ErrResolution, "enumerate network interfaces")
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		for _, a := range ifi.Addrs {
			if v4 := addrIP(a).To4(); v4 != nil && !v4.IsLoopback() {
				return v4.String(), nil
			}
		}
	}
	fallback := r.Fallback
	if fallback == nil {
		fallback = HostFallback
	}
	addr, err := fallback()
	if err != nil {
		return "", mark(err, ErrResolution, "resolve local host")
	}
	return addr, nil
}

// SystemInterfaces lists the host's interfaces. An interface whose addresses
// cannot be read is reported without addresses.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, ifi := range ifaces {
		addrs, _ := ifi.Addrs()
		out = append(out, Interface{Name: ifi.Name, Flags: ifi.Flags, Addrs: addrs})
	}
	return out, nil
}

// HostFallback resolves the hostname and prefers a non-loopback IPv4 result,
// accepting a loopback one when nothing else is returned.
func HostFallback() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return "", err
	}
	var first net.IP
	for _, ip := range ips {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		if !v4.IsLoopback() {
			return v4.String(), nil
		}
		if first == nil {
			first = v4
		}
	}
	if first == nil {
		return "", errors.Newf("no IPv4 address for host %q", host)
	}
	return first.String(), nil
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
