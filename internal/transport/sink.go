package transport

import (
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// FrameSink receives frames streamed by the grpc transport.
type FrameSink interface {
	Receive(ctx context.Context, sessionID string, frame []byte) error
}

var frameSinkDesc = grpc.ServiceDesc{
	ServiceName: "mediatx.v1.FrameSink",
	HandlerType: (*FrameSink)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Send",
			Handler:       frameSinkSendHandler,
			ClientStreams: true,
		},
	},
	Metadata: "mediatx/v1/frame_sink.proto",
}

// RegisterFrameSink serves sink on DefaultGRPCMethod.
func RegisterFrameSink(s grpc.ServiceRegistrar, sink FrameSink) {
	s.RegisterService(&frameSinkDesc, sink)
}

func frameSinkSendHandler(srv any, stream grpc.ServerStream) error {
	sink := srv.(FrameSink)
	ctx := stream.Context()

	var session string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(strings.ToLower(SessionHeader)); len(v) > 0 {
			session = v[0]
		}
	}

	for {
		var frame wrapperspb.BytesValue
		err := stream.RecvMsg(&frame)
		if errors.Is(err, io.EOF) {
			return stream.SendMsg(&emptypb.Empty{})
		}
		if err != nil {
			return err
		}
		if err := sink.Receive(ctx, session, frame.GetValue()); err != nil {
			return err
		}
	}
}
