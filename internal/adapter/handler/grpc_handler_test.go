package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func newTestGRPCClient(t *testing.T, app *testApp) *OrderServiceClient {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	RegisterOrderServiceServer(server, NewGRPCHandler(app.orders, zap.NewNop()))

	go func() {
		server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewOrderServiceClient(conn)
}

func grpcOrderRequest(session string) *CreateOrderRequest {
	return &CreateOrderRequest{
		SessionID:       session,
		CustomerName:    "Park",
		CustomerEmail:   "park@test.com",
		ShippingAddress: "2 Side St",
	}
}

func TestGRPC_CreateAndGetOrder(t *testing.T) {
	app := newTestApp(t)
	client := newTestGRPCClient(t, app)
	ctx := context.Background()

	require.NoError(t, app.carts.AddLine(ctx, "g1", 1, 1))

	created, err := client.CreateOrder(ctx, grpcOrderRequest("g1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "PENDING", created.Status)
	require.Len(t, created.Items, 1)

	fetched, err := client.GetOrder(ctx, &GetOrderRequest{ID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.True(t, created.TotalAmount.Equal(fetched.TotalAmount))
}

func TestGRPC_ErrorCodes(t *testing.T) {
	app := newTestApp(t)
	client := newTestGRPCClient(t, app)
	ctx := context.Background()

	_, err := client.CreateOrder(ctx, grpcOrderRequest("empty"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	require.NoError(t, app.carts.AddLine(ctx, "greedy", 1, 5))
	_, err = client.CreateOrder(ctx, grpcOrderRequest("greedy"))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.GetOrder(ctx, &GetOrderRequest{ID: 404})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetOrder(ctx, &GetOrderRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req := grpcOrderRequest("greedy")
	req.CustomerEmail = ""
	_, err = client.CreateOrder(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
