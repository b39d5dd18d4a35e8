package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status is a decoded Status response.
type Status struct {
	ID      string
	Address string
	State   string
	Members int
	Error   string
}

// Client queries the membership service of a node.
type Client struct {
	conn *grpc.ClientConn
}

// ClientOptions returns the dial options used by Dial: plaintext unless
// useTLS is set, and keepalive pings on idle connections.
func ClientOptions(useTLS bool) []grpc.DialOption {
	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             2 * time.Second,
			PermitWithoutStream: true,
		}),
	}
}

// Dial creates a client for target. opts are applied after ClientOptions(false).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, append(ClientOptions(false), opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create client for %s", target)
	}
	return &Client{conn: conn}, nil
}

// Snapshot fetches the node's membership table.
func (c *Client) Snapshot(ctx context.Context) (map[string]string, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, snapshotMethod, &emptypb.Empty{}, out); err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	members := make(map[string]string, len(out.GetFields()))
	for id, v := range out.GetFields() {
		members[id] = v.GetStringValue()
	}
	return members, nil
}

// Status fetches the node's identity and state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statusMethod, &emptypb.Empty{}, out); err != nil {
		return Status{}, errors.Wrap(err, "status")
	}
	f := out.GetFields()
	return Status{
		ID:      f[FieldID].GetStringValue(),
		Address: f[FieldAddress].GetStringValue(),
		State:   f[FieldState].GetStringValue(),
		Members: int(f[FieldMembers].GetNumberValue()),
		Error:   f[FieldError].GetStringValue(),
	}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }
