package gossip

import (
	"net"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// Identity is the (id, address) pair a node advertises. It doubles as the
// decoded form of a heartbeat.
type Identity struct {
	ID      string
	Address string
}

func (i Identity) String() string { return i.ID + string(Delimiter) + i.Address }

// Validate checks that the identity can be advertised: a non-empty id without
// the delimiter or surrounding whitespace, and an IPv4 address.
func (i Identity) Validate() error {
	if i.ID == "" {
		return errors.Wrap(ErrInvalidConfig, "node id is empty")
	}
	if strings.TrimSpace(i.ID) != i.ID {
		return errors.Wrapf(ErrInvalidConfig, "node id %q has surrounding whitespace", i.ID)
	}
	if strings.ContainsRune(i.ID, Delimiter) {
		return errors.Wrapf(ErrInvalidConfig, "node id %q contains %q", i.ID, Delimiter)
	}
	if ip := net.ParseIP(i.Address); ip == nil || ip.To4() == nil || strings.Contains(i.Address, ":") {
		return errors.Wrapf(ErrInvalidConfig, "address %q is not an IPv4 literal", i.Address)
	}
	return nil
}

// EncodeHeartbeat renders the wire form "<id>:<address>".
func EncodeHeartbeat(i Identity) ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}
	b := []byte(i.String())
	if len(b) > MaxDatagramSize {
		return nil, errors.Wrapf(ErrInvalidConfig, "heartbeat is %d bytes, limit is %d", len(b), MaxDatagramSize)
	}
	return b, nil
}

// DecodeHeartbeat parses a received datagram. ok is false for anything that is
// not exactly two non-empty fields around a single delimiter, for invalid
// UTF-8 and for datagrams over MaxDatagramSize.
func DecodeHeartbeat(b []byte) (i Identity, ok bool) {
	if len(b) == 0 || len(b) > MaxDatagramSize || !utf8.Valid(b) {
		return Identity{}, false
	}
	parts := strings.Split(string(b), string(Delimiter))
	if len(parts) != 2 {
		return Identity{}, false
	}
	i.ID, i.Address = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if i.ID == "" || i.Address == "" {
		return Identity{}, false
	}
	return i, true
}
