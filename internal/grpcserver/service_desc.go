package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "parking.v1.ParkingService"

const (
	entryFullMethod         = "/" + ServiceName + "/Entry"
	exitFullMethod          = "/" + ServiceName + "/Exit"
	setSpotStatusFullMethod = "/" + ServiceName + "/SetSpotStatus"
)

// ParkingServiceServer is the server API for the parking service.
type ParkingServiceServer interface {
	Entry(ctx context.Context, request *EntryRequest) (*Ticket, error)
	Exit(ctx context.Context, request *ExitRequest) (*ExitResponse, error)
	SetSpotStatus(ctx context.Context, request *SetSpotStatusRequest) (*Spot, error)
}

// RegisterParkingServiceServer registers server on registrar.
func RegisterParkingServiceServer(registrar grpc.ServiceRegistrar, server ParkingServiceServer) {
	registrar.RegisterService(&parkingServiceDesc, server)
}

var parkingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ParkingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Entry", Handler: entryHandler},
		{MethodName: "Exit", Handler: exitHandler},
		{MethodName: "SetSpotStatus", Handler: setSpotStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parking/v1/parking_service",
}

func entryHandler(server interface{}, ctx context.Context, decode func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	request := new(EntryRequest)
	if err := decode(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return server.(ParkingServiceServer).Entry(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: entryFullMethod}
	handler := func(ctx context.Context, request interface{}) (interface{}, error) {
		return server.(ParkingServiceServer).Entry(ctx, request.(*EntryRequest))
	}
	return interceptor(ctx, request, info, handler)
}

func exitHandler(server interface{}, ctx context.Context, decode func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	request := new(ExitRequest)
	if err := decode(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return server.(ParkingServiceServer).Exit(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: exitFullMethod}
	handler := func(ctx context.Context, request interface{}) (interface{}, error) {
		return server.(ParkingServiceServer).Exit(ctx, request.(*ExitRequest))
	}
	return interceptor(ctx, request, info, handler)
}

func setSpotStatusHandler(server interface{}, ctx context.Context, decode func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	request := new(SetSpotStatusRequest)
	if err := decode(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return server.(ParkingServiceServer).SetSpotStatus(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: setSpotStatusFullMethod}
	handler := func(ctx context.Context, request interface{}) (interface{}, error) {
		return server.(ParkingServiceServer).SetSpotStatus(ctx, request.(*SetSpotStatusRequest))
	}
	return interceptor(ctx, request, info, handler)
}

// ParkingServiceClient calls the parking service using the JSON codec.
type ParkingServiceClient struct {
	connection grpc.ClientConnInterface
}

// NewParkingServiceClient returns a client over connection.
func NewParkingServiceClient(connection grpc.ClientConnInterface) *ParkingServiceClient {
	return &ParkingServiceClient{connection: connection}
}

func (client *ParkingServiceClient) Entry(ctx context.Context, request *EntryRequest, options ...grpc.CallOption) (*Ticket, error) {
	response := new(Ticket)
	if err := client.connection.Invoke(ctx, entryFullMethod, request, response, withJSONCodec(options)...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ParkingServiceClient) Exit(ctx context.Context, request *ExitRequest, options ...grpc.CallOption) (*ExitResponse, error) {
	response := new(ExitResponse)
	if err := client.connection.Invoke(ctx, exitFullMethod, request, response, withJSONCodec(options)...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ParkingServiceClient) SetSpotStatus(ctx context.Context, request *SetSpotStatusRequest, options ...grpc.CallOption) (*Spot, error) {
	response := new(Spot)
	if err := client.connection.Invoke(ctx, setSpotStatusFullMethod, request, response, withJSONCodec(options)...); err != nil {
		return nil, err
	}
	return response, nil
}

func withJSONCodec(options []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, options...)
}
