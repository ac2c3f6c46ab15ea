// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/errors"
)

// ServiceName is the gRPC health service name reported for the gateway.
const ServiceName = "switchboard.Gateway"

const healthRefresh = 10 * time.Second

// healthServer exposes the standard gRPC health protocol. While the gateway
// is serving, the component registry decides between SERVING and NOT_SERVING.
type healthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	registry *core.HealthRegistry
	serving  atomic.Bool
	logger   *slog.Logger
}

func startHealthServer(ctx context.Context, addr string, registry *core.HealthRegistry, logger *slog.Logger) (*healthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New(errors.CodeConfig, "listen on grpc health address "+addr, err)
	}

	hs := &healthServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		listener: lis,
		registry: registry,
		logger:   logger,
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)
	hs.publish(healthpb.HealthCheckResponse_NOT_SERVING)

	go func() {
		if err := hs.server.Serve(lis); err != nil {
			logger.Warn("gateway.health.serve_stopped", slog.String("error", err.Error()))
		}
	}()
	go hs.refresh(ctx)

	logger.Info("gateway.health.listening", slog.String("addr", lis.Addr().String()))
	return hs, nil
}

// Addr returns the bound listener address.
func (h *healthServer) Addr() string { return h.listener.Addr().String() }

func (h *healthServer) setServing(serving bool) {
	h.serving.Store(serving)
	h.evaluate(context.Background())
}

func (h *healthServer) refresh(ctx context.Context) {
	ticker := time.NewTicker(healthRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate(ctx)
		}
	}
}

func (h *healthServer) evaluate(ctx context.Context) {
	if !h.serving.Load() {
		h.publish(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	_, overall := h.registry.CheckAll(ctx)
	if overall == core.HealthUnhealthy {
		h.publish(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.publish(healthpb.HealthCheckResponse_SERVING)
}

func (h *healthServer) publish(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

func (h *healthServer) stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
