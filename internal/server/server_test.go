package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"

	"gossipcast/internal/config"
	"gossipcast/internal/gossip"
	"gossipcast/internal/gossip/gossipmock"
	grpcx "gossipcast/internal/grpc"
	"gossipcast/internal/server"
)

func serverConfig(id, addr string) config.ServerConfig {
	return config.ServerConfig{
		NodeName:    id,
		Address:     addr,
		LogLevel:    "info",
		GrpcAddr:    "127.0.0.1:0",
		MetricsAddr: "127.0.0.1:0",
		Gossip: config.GossipConfig{
			GroupAddr: gossip.DefaultGroupAddr,
			Port:      gossip.DefaultPort,
			Interval:  10 * time.Millisecond,
			Loopback:  true,
			TTL:       1,
		},
	}
}

func get(url string) (int, string) {
	resp, err := http.Get(url)
	Expect(err).ToNot(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).ToNot(HaveOccurred())
	return resp.StatusCode, string(body)
}

var _ = Describe("Server", func() {
	var (
		network *gossipmock.Network
		srv     *server.Server
		cancel  context.CancelFunc
		errC    chan error
		exited  chan struct{}
	)
	BeforeEach(func() {
		network = gossipmock.NewNetwork()
		logger, _ := test.NewNullLogger()
		var err error
		srv, err = server.New(serverConfig("A", "10.0.0.1"), logger, server.Options{Join: network.Join, Version: "test"})
		Expect(err).ToNot(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		errC, exited = make(chan error, 1), make(chan struct{})
		go func(srv *server.Server, errC chan<- error, exited chan struct{}) {
			defer close(exited)
			errC <- srv.Run(ctx)
		}(srv, errC, exited)
		Eventually(srv.Node().State).Should(Equal(gossip.StateRunning))
	})
	AfterEach(func() {
		cancel()
		Eventually(exited, 10*time.Second).Should(BeClosed())
	})

	It("Should report a healthy node", func() {
		code, body := get("http://" + srv.HTTPAddr().String() + "/healthz")
		Expect(code).To(Equal(http.StatusOK))
		var status map[string]any
		Expect(json.Unmarshal([]byte(body), &status)).To(Succeed())
		Expect(status).To(HaveKeyWithValue("id", "A"))
		Expect(status).To(HaveKeyWithValue("state", "running"))
	})

	It("Should expose node metrics", func() {
		Eventually(func() string {
			_, body := get("http://" + srv.HTTPAddr().String() + "/metrics")
			return body
		}).Should(And(
			ContainSubstring(`gossipcast_node_state{state="running"} 1`),
			ContainSubstring("gossipcast_members 1"),
			ContainSubstring(`gossipcast_build_info{version="test"} 1`),
		))
	})

	It("Should serve the membership over gRPC", func(ctx SpecContext) {
		peer, err := gossip.StartNode(ctx, gossip.Config{ID: "B", Address: "10.0.0.2", Interval: 10 * time.Millisecond, Join: network.Join})
		Expect(err).ToNot(HaveOccurred())
		defer func() { _ = peer.Stop() }()

		client, err := grpcx.Dial(srv.GRPCAddr().String())
		Expect(err).ToNot(HaveOccurred())
		defer func() { Expect(client.Close()).To(Succeed()) }()
		Eventually(func() (map[string]string, error) {
			return client.Snapshot(ctx)
		}).Should(Equal(map[string]string{"A": "10.0.0.1", "B": "10.0.0.2"}))
	}, SpecTimeout(10*time.Second))

	It("Should shut everything down when the context is cancelled", func() {
		cancel()
		Eventually(errC, 10*time.Second).Should(Receive(BeNil()))
		Expect(srv.Node().State()).To(Equal(gossip.StateStopped))
		Expect(network.Members()).To(BeEmpty())
		_, err := http.Get("http://" + srv.HTTPAddr().String() + "/healthz")
		Expect(err).To(HaveOccurred())
	})

	It("Should return the node failure", func() {
		network.Members()[0].FailSends(errors.New("network unreachable"))
		var err error
		Eventually(errC, 10*time.Second).Should(Receive(&err))
		Expect(errors.Is(err, gossip.ErrSend)).To(BeTrue())
	})
})

var _ = Describe("HealthHandler", func() {
	It("Should answer 503 for a stopped node", func() {
		node, err := gossip.New(gossip.Config{ID: "A", Address: "10.0.0.1", Join: gossipmock.NewNetwork().Join})
		Expect(err).ToNot(HaveOccurred())
		Expect(node.Stop()).To(Succeed())
		rec := httptest.NewRecorder()
		server.HealthHandler(node).ServeHTTP(rec, nil)
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Body.String()).To(ContainSubstring(`"state":"stopped"`))
	})
})
