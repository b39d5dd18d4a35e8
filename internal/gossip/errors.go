package gossip

import "github.com/cockroachdb/errors"

// Failure classes of a node. Concrete errors are marked with one of these, so
// callers match them with errors.Is.
var (
	// ErrResolution means no local address could be determined.
	ErrResolution = errors.New("local address resolution failed")
	// ErrChannelJoin means the multicast group could not be bound or joined.
	ErrChannelJoin = errors.New("group channel join failed")
	// ErrSend means a heartbeat could not be written to the group.
	ErrSend = errors.New("heartbeat send failed")
	// ErrReceive means the group channel stopped delivering datagrams.
	ErrReceive = errors.New("heartbeat receive failed")
	// ErrOversized marks a receive that failed only because the datagram was
	// larger than the buffer. The listener discards such datagrams.
	ErrOversized = errors.New("datagram too large")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid gossip config")
	// ErrAlreadyStarted is returned when Run is called on a node that is not
	// in the created state.
	ErrAlreadyStarted = errors.New("node already started")
)

func mark(err error, class error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), class)
}
