package grpc

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	"gossipcast/internal/common"
	"gossipcast/internal/config"
)

// Server serves the membership of a gossip node over gRPC.
type Server struct {
	server *grpc.Server
	logger logrus.FieldLogger
}

// NewServer creates a server answering from node. TLS is enabled when tlsCfg
// names a certificate and key.
func NewServer(node common.MembershipProvider, tlsCfg config.TLSConfig, logger logrus.FieldLogger) (*Server, error) {
	var opts []grpc.ServerOption

	if tlsCfg.Enabled() {
		if tlsCfg.CertFile == "" || tlsCfg.KeyFile == "" {
			return nil, errors.New("TLS is enabled but cert or key file is not specified")
		}
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load TLS cert/key")
		}
		opts = append(opts, grpc.Creds(credentials.NewServerTLSFromCert(&cert)))
	}

	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     15 * time.Second,
		MaxConnectionAge:      30 * time.Second,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  5 * time.Second,
		Timeout:               1 * time.Second,
	}
	opts = append(opts, grpc.KeepaliveParams(kaParams))

	s := &Server{server: grpc.NewServer(opts...), logger: logger}
	RegisterMembershipServer(s.server, &membershipService{node: node})
	return s, nil
}

// Serve accepts connections on lis until Stop is called. It returns nil after
// Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.WithField("addr", lis.Addr().String()).Info("gRPC server listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "gRPC server failed")
	}
	return nil
}

// Stop waits for in-flight calls to finish and closes every listener.
func (s *Server) Stop() {
	s.logger.Info("Stopping gRPC server...")
	s.server.GracefulStop()
	s.logger.Info("gRPC server stopped")
}
