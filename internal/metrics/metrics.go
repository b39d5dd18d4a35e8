// Package metrics exposes node events as Prometheus metrics.
package metrics

import (
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gossipcast/internal/gossip"
)

const namespace = "gossipcast"

// Received heartbeat results.
const (
	ResultMerged    = "merged"
	ResultUpdated   = "updated"
	ResultDiscarded = "discarded"
)

// Metrics is a gossip.Observer that records node events on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	sent         prometheus.Counter
	received     *prometheus.CounterVec
	state        *prometheus.GaugeVec
	loopFailures *prometheus.CounterVec
	requests     *prometheus.CounterVec
	buildInfo    *prometheus.GaugeVec
	table        atomic.Pointer[gossip.Membership]
}

var _ gossip.Observer = (*Metrics)(nil)

// New registers the node metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeats sent to the multicast group.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_received_total",
			Help:      "Heartbeats received, by how they affected the membership table.",
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_state",
			Help:      "Current node state (1 for the active state, 0 otherwise).",
		}, []string{"state"}),
		loopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_failures_total",
			Help:      "Failures of the announcer, listener and channel.",
		}, []string{"loop"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by path and status class.",
		}, []string{"path", "status"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		}, []string{"version"}),
	}
	start := time.Now()
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(start).Seconds() })
	size := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "members",
		Help:      "Entries in the membership table, the local node included.",
	}, func() float64 {
		if t := m.table.Load(); t != nil {
			return float64(t.Len())
		}
		return 0
	})

	for _, r := range []string{ResultMerged, ResultUpdated, ResultDiscarded} {
		m.received.WithLabelValues(r)
	}
	for _, l := range []string{gossip.LoopAnnouncer, gossip.LoopListener, gossip.LoopChannel} {
		m.loopFailures.WithLabelValues(l)
	}
	m.setState(gossip.StateCreated)

	m.Registry.MustRegister(m.sent, m.received, m.state, m.loopFailures, m.requests, m.buildInfo, uptime, size)
	return m
}

// WatchTable reports the size of t as gossipcast_members.
func (m *Metrics) WatchTable(t *gossip.Membership) { m.table.Store(t) }

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// HeartbeatSent counts a sent heartbeat.
func (m *Metrics) HeartbeatSent(gossip.Identity) { m.sent.Inc() }

func (m *Metrics) HeartbeatMerged(_ net.Addr, _ gossip.Identity, changed bool) {
	if changed {
		m.received.WithLabelValues(ResultUpdated).Inc()
		return
	}
	m.received.WithLabelValues(ResultMerged).Inc()
}

func (m *Metrics) HeartbeatDiscarded(net.Addr, int) {
	m.received.WithLabelValues(ResultDiscarded).Inc()
}

func (m *Metrics) StateChanged(_, to gossip.State) { m.setState(to) }

func (m *Metrics) LoopFailed(loop string, _ error) {
	m.loopFailures.WithLabelValues(loop).Inc()
}

func (m *Metrics) setState(active gossip.State) {
	for _, s := range gossip.States() {
		v := 0.0
		if s == active {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument counts the requests served by next under path.
func (m *Metrics) Instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.requests.WithLabelValues(path, strconv.Itoa(sw.status/100)+"xx").Inc()
	})
}
