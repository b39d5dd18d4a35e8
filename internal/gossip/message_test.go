package gossip_test

import (
	"strings"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gossipcast/internal/gossip"
)

var _ = Describe("Heartbeat", func() {
	Describe("EncodeHeartbeat", func() {
		It("Should join the id and address with the delimiter", func() {
			b, err := gossip.EncodeHeartbeat(gossip.Identity{ID: "A", Address: "10.0.0.1"})
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal("A:10.0.0.1"))
		})

		DescribeTable("Should reject identities that cannot be advertised",
			func(id gossip.Identity) {
				_, err := gossip.EncodeHeartbeat(id)
				Expect(errors.Is(err, gossip.ErrInvalidConfig)).To(BeTrue())
			},
			Entry("empty id", gossip.Identity{Address: "10.0.0.1"}),
			Entry("id with delimiter", gossip.Identity{ID: "a:b", Address: "10.0.0.1"}),
			Entry("id with whitespace", gossip.Identity{ID: " a", Address: "10.0.0.1"}),
			Entry("ipv6 address", gossip.Identity{ID: "a", Address: "fe80::1"}),
			Entry("mapped ipv4 address", gossip.Identity{ID: "a", Address: "::ffff:10.0.0.1"}),
			Entry("hostname", gossip.Identity{ID: "a", Address: "localhost"}),
			Entry("oversized id", gossip.Identity{ID: strings.Repeat("a", 250), Address: "10.0.0.1"}),
		)
	})

	Describe("DecodeHeartbeat", func() {
		It("Should parse a well formed heartbeat", func() {
			id, ok := gossip.DecodeHeartbeat([]byte("A:10.0.0.1"))
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(gossip.Identity{ID: "A", Address: "10.0.0.1"}))
		})

		It("Should trim whitespace around both fields", func() {
			id, ok := gossip.DecodeHeartbeat([]byte(" node-a : 10.0.0.1 \n"))
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(gossip.Identity{ID: "node-a", Address: "10.0.0.1"}))
		})

		It("Should not validate the advertised address", func() {
			id, ok := gossip.DecodeHeartbeat([]byte("B:some-host"))
			Expect(ok).To(BeTrue())
			Expect(id.Address).To(Equal("some-host"))
		})

		DescribeTable("Should discard malformed datagrams",
			func(payload []byte) {
				_, ok := gossip.DecodeHeartbeat(payload)
				Expect(ok).To(BeFalse())
			},
			Entry("empty", []byte("")),
			Entry("no delimiter", []byte("node-a 10.0.0.1")),
			Entry("two delimiters", []byte("node-a:10.0.0.1:4446")),
			Entry("only a delimiter", []byte(":")),
			Entry("empty id", []byte(":10.0.0.1")),
			Entry("blank id", []byte("   :10.0.0.1")),
			Entry("blank address", []byte("node-a:  ")),
			Entry("invalid utf-8", []byte{0xff, 0xfe, ':', '1'}),
			Entry("oversized", []byte(strings.Repeat("a", gossip.MaxDatagramSize)+":10.0.0.1")),
		)
	})
})
