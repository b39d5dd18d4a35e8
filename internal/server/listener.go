package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// HTTPListener serves an http.Handler until its context is cancelled.
type HTTPListener struct {
	addr     string
	handler  http.Handler
	logger   logrus.FieldLogger
	listener net.Listener
}

// NewHTTPListener binds addr. Binding happens here so port conflicts surface
// before the node joins the group.
func NewHTTPListener(addr string, handler http.Handler, logger logrus.FieldLogger) (*HTTPListener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen for HTTP connections on %s", addr)
	}
	return &HTTPListener{addr: addr, handler: handler, logger: logger, listener: lis}, nil
}

// Addr is the bound address.
func (l *HTTPListener) Addr() net.Addr { return l.listener.Addr() }

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (l *HTTPListener) Serve(ctx context.Context) error {
	srv := &http.Server{Handler: l.handler, ReadHeaderTimeout: 5 * time.Second}
	l.logger.WithField("addr", l.listener.Addr().String()).Info("Starting HTTP listener")

	errC := make(chan error, 1)
	go func() { errC <- srv.Serve(l.listener) }()

	select {
	case err := <-errC:
		return errors.Wrap(err, "HTTP listener failed")
	case <-ctx.Done():
	}
	l.logger.Info("Shutting down HTTP listener...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP shutdown")
	}
	<-errC
	l.logger.Info("HTTP listener closed.")
	return nil
}
