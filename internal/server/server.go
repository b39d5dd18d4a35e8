// Package server runs a gossip node together with its gRPC and HTTP surfaces.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gossipcast/internal/common"
	"gossipcast/internal/config"
	"gossipcast/internal/gossip"
	grpcx "gossipcast/internal/grpc"
	"gossipcast/internal/metrics"
)

// Server owns a node and the listeners that expose it.
type Server struct {
	cfg     config.ServerConfig
	logger  logrus.FieldLogger
	node    *gossip.Node
	metrics *metrics.Metrics
	grpc    *grpcx.Server
	grpcLis net.Listener
	http    *HTTPListener
}

// Options replaces parts of the node setup, mainly for tests.
type Options struct {
	Join     gossip.JoinFunc
	Resolver gossip.Resolver
	Version  string
}

// New creates the node and binds every listener. Nothing is sent or served
// until Run.
func New(cfg config.ServerConfig, logger logrus.FieldLogger, opts Options) (*Server, error) {
	m := metrics.New()
	m.SetBuildInfo(opts.Version)

	nodeCfg := cfg.NodeConfig()
	nodeCfg.Join = opts.Join
	nodeCfg.Resolver = opts.Resolver
	nodeCfg.Observer = gossip.MultiObserver{gossip.NewLogObserver(logger, cfg.NodeName), m}
	node, err := gossip.New(nodeCfg)
	if err != nil {
		return nil, err
	}
	m.WatchTable(node.Table())

	s := &Server{cfg: cfg, logger: logger, node: node, metrics: m}
	if s.grpc, err = grpcx.NewServer(node, cfg.TLS, logger); err != nil {
		return nil, err
	}
	if s.grpcLis, err = net.Listen("tcp", cfg.GrpcAddr); err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", cfg.GrpcAddr)
	}
	if cfg.MetricsAddr != "" {
		if s.http, err = NewHTTPListener(cfg.MetricsAddr, s.Handler(), logger); err != nil {
			return nil, errors.CombineErrors(err, s.grpcLis.Close())
		}
	}
	return s, nil
}

// Node returns the gossip node.
func (s *Server) Node() *gossip.Node { return s.node }

// GRPCAddr is the bound address of the membership service.
func (s *Server) GRPCAddr() net.Addr { return s.grpcLis.Addr() }

// HTTPAddr is the bound address of /metrics and /healthz, nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.http == nil {
		return nil
	}
	return s.http.Addr()
}

// Handler serves /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Instrument("/metrics", s.metrics.Handler()))
	mux.Handle("/healthz", s.metrics.Instrument("/healthz", HealthHandler(s.node)))
	return mux
}

// Run serves until ctx is cancelled or the node fails. Every listener is shut
// down before Run returns.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"node":    s.node.Identity().ID,
		"address": s.node.Identity().Address,
		"group":   s.cfg.Group().String(),
	}).Info("Starting gossipcast node")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.node.Run(gctx) })
	g.Go(func() error { return s.grpc.Serve(s.grpcLis) })
	g.Go(func() error {
		<-gctx.Done()
		s.grpc.Stop()
		return nil
	})
	if s.http != nil {
		g.Go(func() error { return s.http.Serve(gctx) })
	}
	err := g.Wait()
	s.logger.Info("Server exited.")
	return err
}

// HealthHandler reports 200 while the node is starting or running and 503
// otherwise, with the node status as JSON.
func HealthHandler(node common.MembershipProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		state := node.State()
		body := map[string]any{
			"id":      node.Identity().ID,
			"address": node.Identity().Address,
			"state":   state.String(),
			"members": len(node.Membership()),
		}
		if err := node.Err(); err != nil {
			body["error"] = err.Error()
		}
		code := http.StatusOK
		if state != gossip.StateRunning && state != gossip.StateStarting {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
}
