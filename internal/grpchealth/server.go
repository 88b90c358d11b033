// Package grpchealth exposes the standard grpc.health.v1 service, backed by
// periodic dependency probes, and a small client for probing it.
package grpchealth

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Server serves health status for the whole process ("") and for every
// named dependency.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checks     map[string]Check
	interval   time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	failed map[string]bool
}

// NewServer registers the health service. A zero interval probes every 10s.
func NewServer(checks map[string]Check, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		checks:     checks,
		interval:   interval,
		logger:     logger.Named("grpc_health"),
		failed:     map[string]bool{},
	}
}

// Run probes once, serves on lis and keeps probing until ctx is cancelled.
// It then stops the server gracefully.
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
	}()
	s.logger.Info("grpc health service listening", zap.String("addr", lis.Addr().String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpcServer.GracefulStop()
			err := <-errCh
			if errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe runs every check and publishes the resulting statuses.
func (s *Server) Probe(ctx context.Context) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.checks[name](checkCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(name, status)
		s.logTransition(name, err)
	}
	s.health.SetServingStatus("", overall)
}

func (s *Server) logTransition(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasFailed := s.failed[name]
	switch {
	case err != nil && !wasFailed:
		s.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
	case err == nil && wasFailed:
		s.logger.Info("dependency recovered", zap.String("dependency", name))
	}
	s.failed[name] = err != nil
}
