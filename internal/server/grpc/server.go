// Package grpc exposes the engine to the UI over the calsync.v1.CalendarSync
// gRPC service.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/calsync/internal/api"
	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/resolution"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// Integrations is the registry surface the endpoint needs.
type Integrations interface {
	ListByUser(ctx context.Context, userID string) ([]models.Integration, error)
	Get(ctx context.Context, id string) (models.Integration, error)
	Reload(ctx context.Context, userID string) ([]models.Integration, error)
	SetSyncEnabled(ctx context.Context, id string, enabled bool) (models.Integration, error)
	Remove(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) (models.Integration, error)
}

// Refresher forces a credential refresh.
type Refresher interface {
	Refresh(ctx context.Context, id string) (models.Integration, error)
}

// Authorizations starts and looks up interactive authorization flows.
type Authorizations interface {
	Start(ctx context.Context, userID string, provider models.Provider) (*authflow.Flow, error)
	Flow(id string) (*authflow.Flow, bool)
}

// Syncer builds calendar views.
type Syncer interface {
	SyncWindow(ctx context.Context, userID string, start, end time.Time) (models.CalendarView, error)
}

// Resolver records conflict decisions.
type Resolver interface {
	Conflict(ctx context.Context, id string) (models.SyncConflict, error)
	Resolve(ctx context.Context, actor, id string, action models.ResolutionAction) (models.SyncConflict, error)
	ResolveAll(ctx context.Context, actor string, ids []string, action models.ResolutionAction) (resolution.BatchResult, error)
	Audit(ctx context.Context, id string) ([]models.ResolutionRecord, error)
}

// Services groups the engine components served by the endpoint.
type Services struct {
	Integrations   Integrations
	Refresher      Refresher
	Authorizations Authorizations
	Syncer         Syncer
	Resolver       Resolver
}

type GRPCServer struct {
	address   string
	svc       Services
	logger    logging.Logger
	jwtSecret []byte
}

var _ api.CalendarSyncServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, svc Services, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		svc:       svc,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer builds a grpc.Server with the service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.accessTokenInterceptor),
	}, opts...)
	srv := grpc.NewServer(opts...)
	api.RegisterCalendarSyncServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
