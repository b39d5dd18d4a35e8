package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"gossipcast/internal/common"
)

const (
	ServiceName    = "gossipcast.v1.Membership"
	snapshotMethod = "/" + ServiceName + "/Snapshot"
	statusMethod   = "/" + ServiceName + "/Status"
)

// Status fields.
const (
	FieldID      = "id"
	FieldAddress = "address"
	FieldState   = "state"
	FieldMembers = "members"
	FieldError   = "error"
)

// MembershipServer is the server API of the membership service. Both methods
// take no arguments and answer with a well-known Struct so the service needs
// no generated code.
type MembershipServer interface {
	// Snapshot returns the membership table as id -> address.
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Status describes the local node.
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// MembershipServiceDesc describes the gossipcast.v1.Membership service.
var MembershipServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: snapshotHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gossipcast/v1/membership.proto",
}

// RegisterMembershipServer registers srv on s.
func RegisterMembershipServer(s grpc.ServiceRegistrar, srv MembershipServer) {
	s.RegisterService(&MembershipServiceDesc, srv)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MembershipServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MembershipServer).Snapshot(ctx, req.(*emptypb.Empty))
	})
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MembershipServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MembershipServer).Status(ctx, req.(*emptypb.Empty))
	})
}

// membershipService answers from a gossip node.
type membershipService struct {
	node common.MembershipProvider
}

func (s *membershipService) Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.node.Membership()
	fields := make(map[string]any, len(snap))
	for id, addr := range snap {
		fields[id] = addr
	}
	return structpb.NewStruct(fields)
}

func (s *membershipService) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	self := s.node.Identity()
	fields := map[string]any{
		FieldID:      self.ID,
		FieldAddress: self.Address,
		FieldState:   s.node.State().String(),
		FieldMembers: len(s.node.Membership()),
	}
	if err := s.node.Err(); err != nil {
		fields[FieldError] = err.Error()
	}
	return structpb.NewStruct(fields)
}
