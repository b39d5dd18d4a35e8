package gossip

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Listener receives heartbeats from the group and merges them into a
// Membership table.
type Listener struct {
	channel  Channel
	table    *Membership
	observer Observer
	state    atomic.Uint32
}

// NewListener creates a listener merging heartbeats from ch into table. A nil
// obs discards events.
func NewListener(ch Channel, table *Membership, obs Observer) *Listener {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Listener{channel: ch, table: table, observer: obs}
}

// State returns the current state of the receive loop.
func (l *Listener) State() ListenerState { return ListenerState(l.state.Load()) }

// Run blocks in the receive loop. It returns nil once the channel is closed
// after ctx was cancelled, and an ErrReceive error for any other receive
// failure. Malformed datagrams, and receives failing with ErrOversized, are
// reported to the observer and skipped.
func (l *Listener) Run(ctx context.Context) error {
	l.setState(ListenerListening)
	// One spare byte so oversized datagrams are detected instead of silently
	// truncated to a valid-looking prefix.
	buf := make([]byte, MaxDatagramSize+1)
	for {
		n, from, err := l.channel.Receive(buf)
		if err != nil && errors.Is(err, ErrOversized) {
			l.observer.HeartbeatDiscarded(from, n)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				l.setState(ListenerStopped)
				return nil
			}
			l.setState(ListenerFailed)
			return mark(err, ErrReceive, "receive heartbeat")
		}
		member, ok := DecodeHeartbeat(buf[:n])
		if !ok {
			l.observer.HeartbeatDiscarded(from, n)
			continue
		}
		changed := l.table.Put(member.ID, member.Address)
		l.observer.HeartbeatMerged(from, member, changed)
	}
}

func (l *Listener) setState(s ListenerState) { l.state.Store(uint32(s)) }
