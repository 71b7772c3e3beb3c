// Package api declares the calsync.v1.CalendarSync gRPC service: its
// messages, a JSON codec, the service descriptor and a typed client.
package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "calsync.v1.CalendarSync"

// FullMethod returns the gRPC method path for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// CalendarSyncServer is implemented by the daemon.
type CalendarSyncServer interface {
	ListIntegrations(context.Context, *ListIntegrationsRequest) (*ListIntegrationsResponse, error)
	BeginAuthorization(context.Context, *BeginAuthorizationRequest) (*BeginAuthorizationResponse, error)
	AwaitAuthorization(context.Context, *FlowRequest) (*IntegrationResponse, error)
	CancelAuthorization(context.Context, *FlowRequest) (*Empty, error)
	SetSyncEnabled(context.Context, *SetSyncEnabledRequest) (*IntegrationResponse, error)
	RemoveIntegration(context.Context, *IntegrationRequest) (*Empty, error)
	DeactivateIntegration(context.Context, *IntegrationRequest) (*IntegrationResponse, error)
	RefreshIntegration(context.Context, *IntegrationRequest) (*IntegrationResponse, error)
	SyncWindow(context.Context, *SyncWindowRequest) (*SyncWindowResponse, error)
	ResolveConflict(context.Context, *ResolveConflictRequest) (*ResolveConflictResponse, error)
	ResolveConflicts(context.Context, *ResolveConflictsRequest) (*ResolveConflictsResponse, error)
	ConflictAudit(context.Context, *ConflictRequest) (*ConflictAuditResponse, error)
}

func unary[Req, Resp any](name string, call func(CalendarSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CalendarSyncServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CalendarSyncServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalendarSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListIntegrations", CalendarSyncServer.ListIntegrations),
		unary("BeginAuthorization", CalendarSyncServer.BeginAuthorization),
		unary("AwaitAuthorization", CalendarSyncServer.AwaitAuthorization),
		unary("CancelAuthorization", CalendarSyncServer.CancelAuthorization),
		unary("SetSyncEnabled", CalendarSyncServer.SetSyncEnabled),
		unary("RemoveIntegration", CalendarSyncServer.RemoveIntegration),
		unary("DeactivateIntegration", CalendarSyncServer.DeactivateIntegration),
		unary("RefreshIntegration", CalendarSyncServer.RefreshIntegration),
		unary("SyncWindow", CalendarSyncServer.SyncWindow),
		unary("ResolveConflict", CalendarSyncServer.ResolveConflict),
		unary("ResolveConflicts", CalendarSyncServer.ResolveConflicts),
		unary("ConflictAudit", CalendarSyncServer.ConflictAudit),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "calsync/v1/calendar_sync",
}

func RegisterCalendarSyncServer(s grpc.ServiceRegistrar, srv CalendarSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the service over a connection, always with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListIntegrations(ctx context.Context, in *ListIntegrationsRequest, opts ...grpc.CallOption) (*ListIntegrationsResponse, error) {
	return invoke[ListIntegrationsResponse](ctx, c.cc, "ListIntegrations", in, opts)
}

func (c *Client) BeginAuthorization(ctx context.Context, in *BeginAuthorizationRequest, opts ...grpc.CallOption) (*BeginAuthorizationResponse, error) {
	return invoke[BeginAuthorizationResponse](ctx, c.cc, "BeginAuthorization", in, opts)
}

func (c *Client) AwaitAuthorization(ctx context.Context, in *FlowRequest, opts ...grpc.CallOption) (*IntegrationResponse, error) {
	return invoke[IntegrationResponse](ctx, c.cc, "AwaitAuthorization", in, opts)
}

func (c *Client) CancelAuthorization(ctx context.Context, in *FlowRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "CancelAuthorization", in, opts)
}

func (c *Client) SetSyncEnabled(ctx context.Context, in *SetSyncEnabledRequest, opts ...grpc.CallOption) (*IntegrationResponse, error) {
	return invoke[IntegrationResponse](ctx, c.cc, "SetSyncEnabled", in, opts)
}

func (c *Client) RemoveIntegration(ctx context.Context, in *IntegrationRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "RemoveIntegration", in, opts)
}

func (c *Client) DeactivateIntegration(ctx context.Context, in *IntegrationRequest, opts ...grpc.CallOption) (*IntegrationResponse, error) {
	return invoke[IntegrationResponse](ctx, c.cc, "DeactivateIntegration", in, opts)
}

func (c *Client) RefreshIntegration(ctx context.Context, in *IntegrationRequest, opts ...grpc.CallOption) (*IntegrationResponse, error) {
	return invoke[IntegrationResponse](ctx, c.cc, "RefreshIntegration", in, opts)
}

func (c *Client) SyncWindow(ctx context.Context, in *SyncWindowRequest, opts ...grpc.CallOption) (*SyncWindowResponse, error) {
	return invoke[SyncWindowResponse](ctx, c.cc, "SyncWindow", in, opts)
}

func (c *Client) ResolveConflict(ctx context.Context, in *ResolveConflictRequest, opts ...grpc.CallOption) (*ResolveConflictResponse, error) {
	return invoke[ResolveConflictResponse](ctx, c.cc, "ResolveConflict", in, opts)
}

func (c *Client) ResolveConflicts(ctx context.Context, in *ResolveConflictsRequest, opts ...grpc.CallOption) (*ResolveConflictsResponse, error) {
	return invoke[ResolveConflictsResponse](ctx, c.cc, "ResolveConflicts", in, opts)
}

func (c *Client) ConflictAudit(ctx context.Context, in *ConflictRequest, opts ...grpc.CallOption) (*ConflictAuditResponse, error) {
	return invoke[ConflictAuditResponse](ctx, c.cc, "ConflictAudit", in, opts)
}
