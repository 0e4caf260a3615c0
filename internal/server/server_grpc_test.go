package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newHealthTestClient(t *testing.T) (healthpb.HealthClient, *health.Server) {
	t.Helper()
	listener := bufconn.Listen(1024 * 1024)
	grpcSrv, hs := newHealthServer()
	go func() {
		_ = grpcSrv.Serve(listener)
	}()
	t.Cleanup(func() {
		grpcSrv.Stop()
		_ = listener.Close()
	})

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn), hs
}

func checkHealth(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestGRPCHealthFollowsRouter(t *testing.T) {
	client, hs := newHealthTestClient(t)
	logger, hook := logtest.NewNullLogger()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, client, ""))

	updateHealth(context.Background(), hs, newTestServer(t, &fakeFleet{}), logger)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, client, HealthService))

	broken := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	updateHealth(context.Background(), hs, broken, logger)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, client, HealthService))
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Data["error"].(error).Error(), "http 503: down")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestProbeRouterMapsStatus(t *testing.T) {
	t.Parallel()
	assert.NoError(t, probeRouter(context.Background(), newTestServer(t, &fakeFleet{})))

	err := probeRouter(context.Background(), http.NotFoundHandler())
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = probeRouter(context.Background(), nil)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHTTPStatusToGRPCCode(t *testing.T) {
	t.Parallel()
	cases := map[int]codes.Code{
		http.StatusBadRequest:          codes.InvalidArgument,
		http.StatusUnauthorized:        codes.Unauthenticated,
		http.StatusConflict:            codes.FailedPrecondition,
		http.StatusServiceUnavailable:  codes.Internal,
		http.StatusTeapot:              codes.Unknown,
		http.StatusMethodNotAllowed:    codes.Unimplemented,
		http.StatusInternalServerError: codes.Internal,
	}
	for in, want := range cases {
		assert.Equal(t, want, httpStatusToGRPCCode(in), "status %d", in)
	}
}
