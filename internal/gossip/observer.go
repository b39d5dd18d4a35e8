package gossip

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Loop names passed to Observer.LoopFailed.
const (
	LoopAnnouncer = "announcer"
	LoopListener  = "listener"
	LoopChannel   = "channel"
)

// Observer receives the events of a node. Calls are made synchronously from
// the announcer and listener goroutines, so implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	HeartbeatSent(self Identity)
	HeartbeatMerged(from net.Addr, member Identity, changed bool)
	HeartbeatDiscarded(from net.Addr, size int)
	StateChanged(from, to State)
	LoopFailed(loop string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) HeartbeatSent(Identity)                   {}
func (NopObserver) HeartbeatMerged(net.Addr, Identity, bool) {}
func (NopObserver) HeartbeatDiscarded(net.Addr, int)         {}
func (NopObserver) StateChanged(State, State)                {}
func (NopObserver) LoopFailed(string, error)                 {}

// MultiObserver fans every event out to each member in order.
type MultiObserver []Observer

func (m MultiObserver) HeartbeatSent(self Identity) {
	for _, o := range m {
		o.HeartbeatSent(self)
	}
}

func (m MultiObserver) HeartbeatMerged(from net.Addr, member Identity, changed bool) {
	for _, o := range m {
		o.HeartbeatMerged(from, member, changed)
	}
}

func (m MultiObserver) HeartbeatDiscarded(from net.Addr, size int) {
	for _, o := range m {
		o.HeartbeatDiscarded(from, size)
	}
}

func (m MultiObserver) StateChanged(from, to State) {
	for _, o := range m {
		o.StateChanged(from, to)
	}
}

func (m MultiObserver) LoopFailed(loop string, err error) {
	for _, o := range m {
		o.LoopFailed(loop, err)
	}
}

// LogObserver writes node events to a logrus logger.
type LogObserver struct {
	Logger logrus.FieldLogger
}

// NewLogObserver tags every entry with the local node id.
func NewLogObserver(logger logrus.FieldLogger, nodeID string) LogObserver {
	return LogObserver{Logger: logger.WithField("node", nodeID)}
}

func (l LogObserver) HeartbeatSent(self Identity) {
	l.Logger.WithField("heartbeat", self.String()).Debug("Sent heartbeat")
}

func (l LogObserver) HeartbeatMerged(from net.Addr, member Identity, changed bool) {
	entry := l.Logger.WithFields(logrus.Fields{
		"peer":    member.ID,
		"address": member.Address,
		"from":    addrString(from),
	})
	if changed {
		entry.Info("Updated cluster member")
		return
	}
	entry.Debug("Received heartbeat")
}

func (l LogObserver) HeartbeatDiscarded(from net.Addr, size int) {
	l.Logger.WithFields(logrus.Fields{"from": addrString(from), "size": size}).Debug("Discarded malformed heartbeat")
}

func (l LogObserver) StateChanged(from, to State) {
	l.Logger.WithFields(logrus.Fields{"from": from.String(), "state": to.String()}).Info("Node state changed")
}

func (l LogObserver) LoopFailed(loop string, err error) {
	l.Logger.WithField("loop", loop).WithError(err).Error("Gossip loop failed")
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
