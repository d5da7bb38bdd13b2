package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"duo-chat/observability"
	"duo-chat/storage"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ChatServiceName is the service name reported through grpc.health.v1.
const ChatServiceName = "duo-chat.ChatService"

// HealthServer exposes grpc.health.v1 and reports the chat service as
// serving while its backing tree answers.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	tree     storage.Tree
	monitor  *observability.SelfMonitor
	interval time.Duration
	log      *slog.Logger
}

// NewHealthServer builds the server. monitor is optional, when set each
// probe also logs the process footprint.
func NewHealthServer(log *slog.Logger, tree storage.Tree, monitor *observability.SelfMonitor, interval time.Duration) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	h.SetServingStatus(ChatServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return &HealthServer{server: s, health: h, tree: tree, monitor: monitor, interval: interval, log: log}
}

// Serve blocks until the listener fails or Stop is called. The store
// probe runs until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	go s.probe(ctx)
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC health server error: %w", err)
	}
	return nil
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *HealthServer) probe(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check reads a path that never exists: a not-found answer proves the
// store is reachable.
func (s *HealthServer) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if _, err := s.tree.Get(probeCtx, "health/probe"); err != nil && !errors.Is(err, storage.ErrNodeNotFound) {
		s.log.Warn("Store probe failed", "error", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ChatServiceName, status)

	if s.monitor == nil {
		return
	}
	stats, err := s.monitor.Stats()
	if err != nil {
		s.log.Warn("Failed to collect self stats", "error", err)
		return
	}
	s.log.Debug("Process stats", "pid", stats.PID, "rss_bytes", stats.RSSBytes,
		"cpu_percent", stats.CPUPercent, "threads", stats.Threads, "status", status.String())
}
