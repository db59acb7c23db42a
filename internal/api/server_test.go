package api

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"parish/internal/config"
	"parish/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPC(t *testing.T, env *testEnv, cfg config.APIConfig) *grpc.ClientConn {
	t.Helper()
	logger := zerolog.New(io.Discard)

	lis := bufconn.Listen(1 << 20)
	srv, err := newGRPCServer(cfg, env.svc, lis, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func TestGRPCListResources(t *testing.T) {
	env := newTestEnv(t)
	conn := startGRPC(t, env, config.APIConfig{})

	out, err := invoke(context.Background(), conn, methodListResources, nil)
	require.NoError(t, err)

	list := out.GetFields()["resources"].GetListValue().GetValues()
	require.Len(t, list, 2)
	assert.Equal(t, "Main Hall", list[0].GetStructValue().GetFields()["name"].GetStringValue())
}

func TestGRPCCheckAvailability(t *testing.T) {
	env := newTestEnv(t)
	conn := startGRPC(t, env, config.APIConfig{})
	ctx := context.Background()

	start := tomorrowAt(9)
	b := &models.Booking{ResourceID: 1, MemberName: "Anna", Start: start, End: start.Add(time.Hour)}
	require.NoError(t, env.svc.Bookings.CreateBooking(ctx, b))

	out, err := invoke(ctx, conn, methodCheckAvailability, map[string]any{
		"resource_id": 1,
		"start":       start.Add(30 * time.Minute).Format(time.RFC3339),
		"end":         start.Add(90 * time.Minute).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.False(t, out.GetFields()["available"].GetBoolValue())
	assert.Len(t, out.GetFields()["conflicts"].GetListValue().GetValues(), 1)

	out, err = invoke(ctx, conn, methodCheckAvailability, map[string]any{
		"resource_id": 1,
		"start":       start.Add(time.Hour).Format(time.RFC3339),
		"end":         start.Add(2 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.True(t, out.GetFields()["available"].GetBoolValue())

	_, err = invoke(ctx, conn, methodCheckAvailability, map[string]any{"resource_id": 1, "start": "x"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(ctx, conn, methodCheckAvailability, map[string]any{
		"resource_id": 42,
		"start":       start.Format(time.RFC3339),
		"end":         start.Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCGetStatistics(t *testing.T) {
	env := newTestEnv(t)
	conn := startGRPC(t, env, config.APIConfig{})
	ctx := context.Background()

	p := &models.Programme{Name: "Bible study", Type: "study", Status: models.ProgrammeActive}
	require.NoError(t, env.svc.Programmes.Create(ctx, p))

	out, err := invoke(ctx, conn, methodGetStatistics, map[string]any{"refresh": true})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.GetFields()["total_programmes"].GetNumberValue())
	assert.Equal(t, float64(1), out.GetFields()["programmes_by_type"].GetStructValue().GetFields()["study"].GetNumberValue())
}

func TestGRPCAuth(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "k1", Extra: "e1", Name: "kiosk", Permissions: []string{PermReadResources}},
			},
		},
	}
	conn := startGRPC(t, env, cfg)

	_, err := invoke(context.Background(), conn, methodListResources, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "k1", "x-api-extra", "e1")
	_, err = invoke(ctx, conn, methodListResources, nil)
	assert.NoError(t, err)

	_, err = invoke(ctx, conn, methodGetStatistics, nil)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	// health is always open
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: parishServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	conn := startGRPC(t, env, config.APIConfig{})

	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "rid-7")
	in, err := structpb.NewStruct(nil)
	require.NoError(t, err)

	var header metadata.MD
	require.NoError(t, conn.Invoke(ctx, methodListResources, in, new(structpb.Struct), grpc.Header(&header)))
	assert.Equal(t, []string{"rid-7"}, header.Get(requestIDMetadataKey))
}

func TestBuildTLSConfigRequiresFiles(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.crt", KeyFile: "missing.key"})
	assert.Error(t, err)
}
