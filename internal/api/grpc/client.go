package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the control service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return FromStruct(resp, out)
}

// StartRecording begins a manual recording.
func (c *Client) StartRecording(ctx context.Context, out any, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodStartRecording, struct{}{}, out, opts...)
}

// StopRecording ends the manual recording.
func (c *Client) StopRecording(ctx context.Context, out any, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodStopRecording, struct{}{}, out, opts...)
}

// Transcribe transcribes a recording; in is a TranscribeRequest.
func (c *Client) Transcribe(ctx context.Context, in, out any, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodTranscribe, in, out, opts...)
}

// Enhance turns text into a note; in is an EnhancementRequest.
func (c *Client) Enhance(ctx context.Context, in, out any, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodEnhance, in, out, opts...)
}

// Status reports the session.
func (c *Client) Status(ctx context.Context, out any, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodStatus, struct{}{}, out, opts...)
}

// Listen opens the live event stream.
func (c *Client) Listen(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodListen, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}
