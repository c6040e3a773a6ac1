// health.go: gRPC health reporting for installed bundles
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PlatformHealthService is the health service name of the platform as a
// whole. The empty name is the gRPC convention for overall server health.
const PlatformHealthService = ""

// HealthReporter publishes one gRPC health service per bundle, named after
// its symbolic name: SERVING while the bundle is ACTIVE, NOT_SERVING in any
// other state.
type HealthReporter struct {
	server *health.Server
}

// NewHealthReporter creates a reporter whose platform status starts as
// NOT_SERVING.
func NewHealthReporter() *HealthReporter {
	srv := health.NewServer()
	srv.SetServingStatus(PlatformHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{server: srv}
}

// Register mounts the health service on a gRPC server.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// BundleChanged updates the status of one bundle.
func (h *HealthReporter) BundleChanged(symbolicName string, state BundleState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == StateActive {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(symbolicName, status)
}

// SetPlatformServing updates the overall platform status.
func (h *HealthReporter) SetPlatformServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(PlatformHealthService, status)
}

// Check answers a health query in-process, the same way a remote client
// would see it.
func (h *HealthReporter) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}
