package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"chat-router/internal/mocks"
)

func dialHealth(t *testing.T, store Pinger) (healthpb.HealthClient, *Server) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := New(store)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn), srv
}

func TestHealthFollowsStore(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	client, srv := dialHealth(t, store)
	ctx := context.Background()

	store.On("Ping", mock.Anything).Return(nil).Once()
	srv.check(ctx)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	store.On("Ping", mock.Anything).Return(assert.AnError).Once()
	srv.check(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestWatchStopsWithContext(t *testing.T) {
	store := new(mocks.MessageRepositoryMock)
	store.On("Ping", mock.Anything).Return(nil)
	_, srv := dialHealth(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	store.AssertCalled(t, "Ping", mock.Anything)
}
