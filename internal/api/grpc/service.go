package grpcapi

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the control service.
const ServiceName = "recorder.v1.ControlService"

// Full method names.
const (
	MethodStartRecording = "/" + ServiceName + "/StartRecording"
	MethodStopRecording  = "/" + ServiceName + "/StopRecording"
	MethodTranscribe     = "/" + ServiceName + "/Transcribe"
	MethodEnhance        = "/" + ServiceName + "/Enhance"
	MethodStatus         = "/" + ServiceName + "/Status"
	MethodListen         = "/" + ServiceName + "/Listen"
)

// ListenStream is the server side of the bidirectional Listen stream.
type ListenStream = grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]

// ControlServer is the server API of the control service. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the
// HTTP API.
type ControlServer interface {
	StartRecording(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRecording(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transcribe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Enhance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Listen(ListenStream) error
}

type unaryMethod func(ControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func listenHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ControlServer).Listen(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartRecording", Handler: unaryHandler(MethodStartRecording, ControlServer.StartRecording)},
		{MethodName: "StopRecording", Handler: unaryHandler(MethodStopRecording, ControlServer.StopRecording)},
		{MethodName: "Transcribe", Handler: unaryHandler(MethodTranscribe, ControlServer.Transcribe)},
		{MethodName: "Enhance", Handler: unaryHandler(MethodEnhance, ControlServer.Enhance)},
		{MethodName: "Status", Handler: unaryHandler(MethodStatus, ControlServer.Status)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Listen",
			Handler:       listenHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "recorder/v1/control.proto",
}

// ToStruct converts a JSON-serializable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
