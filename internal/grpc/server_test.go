package grpc_test

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"gossipcast/internal/config"
	"gossipcast/internal/gossip"
	"gossipcast/internal/gossip/gossipmock"
	grpcx "gossipcast/internal/grpc"
)

var _ = Describe("Membership service", func() {
	var (
		network *gossipmock.Network
		node    *gossip.Node
		client  *grpcx.Client
		served  chan error
		server  *grpcx.Server
	)

	start := func(ctx context.Context, cfg gossip.Config) {
		var err error
		node, err = gossip.StartNode(ctx, cfg)
		Expect(err).ToNot(HaveOccurred())

		logger, _ := test.NewNullLogger()
		server, err = grpcx.NewServer(node, config.TLSConfig{}, logger)
		Expect(err).ToNot(HaveOccurred())
		lis := bufconn.Listen(1 << 20)
		served = make(chan error, 1)
		go func(server *grpcx.Server, served chan<- error) {
			served <- server.Serve(lis)
		}(server, served)

		client, err = grpcx.Dial("passthrough:///bufnet", grpc.WithContextDialer(
			func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) },
		))
		Expect(err).ToNot(HaveOccurred())
	}

	nodeConfig := func(id, addr string) gossip.Config {
		return gossip.Config{ID: id, Address: addr, Interval: 10 * time.Millisecond, Join: network.Join}
	}

	BeforeEach(func() { network = gossipmock.NewNetwork() })
	AfterEach(func() {
		Expect(client.Close()).To(Succeed())
		server.Stop()
		Eventually(served).Should(Receive(BeNil()))
		_ = node.Stop()
	})

	It("Should return the node's membership table", func(ctx SpecContext) {
		start(ctx, nodeConfig("A", "10.0.0.1"))
		peer, err := gossip.StartNode(ctx, nodeConfig("B", "10.0.0.2"))
		Expect(err).ToNot(HaveOccurred())
		defer func() { Expect(peer.Stop()).To(Succeed()) }()

		Eventually(func() (map[string]string, error) {
			return client.Snapshot(ctx)
		}).Should(Equal(map[string]string{"A": "10.0.0.1", "B": "10.0.0.2"}))
	}, SpecTimeout(10*time.Second))

	It("Should describe a running node", func(ctx SpecContext) {
		start(ctx, nodeConfig("A", "10.0.0.1"))
		status, err := client.Status(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(grpcx.Status{ID: "A", Address: "10.0.0.1", State: "running", Members: 1}))
	}, SpecTimeout(10*time.Second))

	It("Should report why a node failed", func(ctx SpecContext) {
		start(ctx, nodeConfig("A", "10.0.0.1"))
		network.Members()[0].FailSends(errors.New("network unreachable"))
		Eventually(node.Done()).Should(BeClosed())

		status, err := client.Status(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(status.State).To(Equal("failed"))
		Expect(status.Error).To(ContainSubstring("network unreachable"))

		members, err := client.Snapshot(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(members).To(HaveKeyWithValue("A", "10.0.0.1"))
	}, SpecTimeout(10*time.Second))
})

var _ = Describe("NewServer", func() {
	It("Should refuse a TLS config with a missing key", func() {
		logger, _ := test.NewNullLogger()
		_, err := grpcx.NewServer(nil, config.TLSConfig{CertFile: "tls.crt"}, logger)
		Expect(err).To(HaveOccurred())
	})

	It("Should fail when the certificate cannot be loaded", func() {
		logger, _ := test.NewNullLogger()
		_, err := grpcx.NewServer(nil, config.TLSConfig{CertFile: "absent.crt", KeyFile: "absent.key"}, logger)
		Expect(err).To(MatchError(ContainSubstring("TLS cert/key")))
	})
})
