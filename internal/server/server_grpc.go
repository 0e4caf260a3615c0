package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/izzyreal/fakeipa/internal/logging"
)

// HealthService is the service name reported next to the overall ("")
// status.
const HealthService = "fakeipa.AgentAPI"

const defaultHealthProbeInterval = 10 * time.Second

type GRPCHealthConfig struct {
	ListenAddr    string
	ProbeInterval time.Duration
}

// startGRPCHealth serves the standard gRPC health service. Its status
// follows the HTTP router's /healthz.
func startGRPCHealth(ctx context.Context, cfg GRPCHealthConfig, router http.Handler, log logging.Logger) (func(), error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return func() {}, nil
	}
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc health on %s: %w", cfg.ListenAddr, err)
	}
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = defaultHealthProbeInterval
	}

	grpcSrv, hs := newHealthServer()
	go func() {
		if err := grpcSrv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("grpc health server failed")
		}
	}()
	log.WithField("addr", listener.Addr().String()).Info("grpc health endpoint started")

	probeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			updateHealth(probeCtx, hs, router, log)
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
		hs.Shutdown()
		grpcSrv.GracefulStop()
	}, nil
}

func newHealthServer() (*grpc.Server, *health.Server) {
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return grpcSrv, hs
}

func updateHealth(ctx context.Context, hs *health.Server, router http.Handler, log logging.Logger) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := probeRouter(ctx, router); err != nil {
		log.WithError(err).Warn("health probe failed")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(HealthService, st)
}

// probeRouter runs GET /healthz through router in-process.
func probeRouter(ctx context.Context, router http.Handler) error {
	if router == nil {
		return status.Error(codes.Internal, "health probe has no router")
	}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		trimmed := strings.TrimSpace(string(raw))
		if trimmed == "" {
			trimmed = http.StatusText(resp.StatusCode)
		}
		return status.Errorf(httpStatusToGRPCCode(resp.StatusCode), "http %d: %s", resp.StatusCode, trimmed)
	}
	return nil
}

func httpStatusToGRPCCode(statusCode int) codes.Code {
	switch statusCode {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.FailedPrecondition
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusMethodNotAllowed:
		return codes.Unimplemented
	default:
		if statusCode >= 500 {
			return codes.Internal
		}
		return codes.Unknown
	}
}
