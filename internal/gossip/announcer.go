package gossip

import (
	"context"
	"time"
)

// Announcer periodically sends the node's heartbeat to the group.
type Announcer struct {
	channel  Channel
	self     Identity
	payload  []byte
	interval time.Duration
	observer Observer
}

// NewAnnouncer encodes self once; the payload never changes for a run.
func NewAnnouncer(ch Channel, self Identity, interval time.Duration, obs Observer) (*Announcer, error) {
	payload, err := EncodeHeartbeat(self)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Announcer{channel: ch, self: self, payload: payload, interval: interval, observer: obs}, nil
}

// Run sends a heartbeat immediately and then once per interval until ctx is
// cancelled (nil) or a send fails (ErrSend). Failed sends are not retried.
func (a *Announcer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := a.channel.Send(a.payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return mark(err, ErrSend, "send heartbeat")
		}
		a.observer.HeartbeatSent(a.self)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
