package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parish/internal/models"
	"parish/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	parishServiceName       = "parish.v1.ParishService"
	methodCheckAvailability = "/" + parishServiceName + "/CheckAvailability"
	methodGetStatistics     = "/" + parishServiceName + "/GetStatistics"
	methodListResources     = "/" + parishServiceName + "/ListResources"
)

// ParishServer is the gRPC surface. Requests and responses are
// google.protobuf.Struct so no generated code is required.
type ParishServer interface {
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResources(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterParishServer registers srv on s.
func RegisterParishServer(s grpc.ServiceRegistrar, srv ParishServer) {
	s.RegisterService(&parishServiceDesc, srv)
}

var parishServiceDesc = grpc.ServiceDesc{
	ServiceName: parishServiceName,
	HandlerType: (*ParishServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: unaryHandler(methodCheckAvailability, ParishServer.CheckAvailability)},
		{MethodName: "GetStatistics", Handler: unaryHandler(methodGetStatistics, ParishServer.GetStatistics)},
		{MethodName: "ListResources", Handler: unaryHandler(methodListResources, ParishServer.ListResources)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parish/v1/parish.proto",
}

type structMethod func(ParishServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ParishServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ParishServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// parishService adapts the application services to ParishServer.
type parishService struct {
	bookings   *service.BookingService
	resources  *service.ResourceService
	programmes *service.ProgrammeService
}

func newParishService(svc Services) *parishService {
	return &parishService{
		bookings:   svc.Bookings,
		resources:  svc.Resources,
		programmes: svc.Programmes,
	}
}

// CheckAvailability expects resource_id and RFC 3339 start/end.
func (s *parishService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	resourceID := int64(fields["resource_id"].GetNumberValue())
	if resourceID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "resource_id is required")
	}
	start, err := time.Parse(time.RFC3339, fields["start"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid start; expected RFC3339")
	}
	end, err := time.Parse(time.RFC3339, fields["end"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid end; expected RFC3339")
	}

	free, conflicts, err := s.bookings.CheckAvailability(ctx, resourceID, start, end)
	if err != nil {
		return nil, grpcError(err)
	}
	if conflicts == nil {
		conflicts = []models.Booking{}
	}
	return toStruct(map[string]any{
		"resource_id": resourceID,
		"available":   free,
		"conflicts":   conflicts,
	})
}

func (s *parishService) GetStatistics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		st  *models.Statistics
		err error
	)
	if req.GetFields()["refresh"].GetBoolValue() {
		st, err = s.programmes.Refresh(ctx)
	} else {
		st, err = s.programmes.Statistics(ctx)
	}
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(st)
}

func (s *parishService) ListResources(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resources, err := s.resources.List(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"resources": resources})
}

// toStruct goes through JSON so struct tags decide field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
