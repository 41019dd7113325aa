package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"firestige.xyz/mediatx/internal/config"
)

func init() {
	Register(config.ProtoGRPC, dialGRPC)
}

// DefaultGRPCMethod is the client-streaming method frames are sent on when
// the transport path is empty.
const DefaultGRPCMethod = "/mediatx.v1.FrameSink/Send"

const grpcCloseWait = 2 * time.Second

// grpcWriter streams frames as BytesValue messages on one client stream.
type grpcWriter struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	ctx    context.Context // stream context
	cancel context.CancelFunc
}

func grpcMethod(path string) string {
	if path == "" {
		return DefaultGRPCMethod
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func dialGRPC(ctx context.Context, opts Options) (Writer, error) {
	conn, err := grpc.NewClient(
		opts.Remote.HostPort(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}

	// The stream outlives the dial context; it ends on Close.
	streamCtx, cancel := context.WithCancel(context.Background())
	if opts.SessionID != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, strings.ToLower(SessionHeader), opts.SessionID)
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	desc := &grpc.StreamDesc{StreamName: "Send", ClientStreams: true}
	stream, err := conn.NewStream(streamCtx, desc, grpcMethod(opts.Path))
	if err != nil {
		cancel()
		conn.Close()
		return nil, err
	}
	return &grpcWriter{conn: conn, stream: stream, ctx: streamCtx, cancel: cancel}, nil
}

// WriteFrame sends one frame. A done ctx cancels the whole stream, which is
// the only way to unblock a SendMsg waiting on flow control.
func (w *grpcWriter) WriteFrame(ctx context.Context, _ uint32, frame []byte) error {
	stop := context.AfterFunc(ctx, w.cancel)
	defer stop()

	err := w.stream.SendMsg(wrapperspb.Bytes(frame))
	if errors.Is(err, io.EOF) {
		// the server ended the stream; the real status comes from RecvMsg
		if rerr := w.stream.RecvMsg(new(emptypb.Empty)); rerr != nil {
			return rerr
		}
	}
	return err
}

// Close half-closes the stream and waits briefly for the sink's reply. A
// stream already cancelled by an aborted write is just released.
func (w *grpcWriter) Close() error {
	defer w.conn.Close()
	defer w.cancel()

	if w.ctx.Err() != nil {
		return nil
	}

	if err := w.stream.CloseSend(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	go func() { reply <- w.stream.RecvMsg(new(emptypb.Empty)) }()

	t := time.NewTimer(grpcCloseWait)
	defer t.Stop()
	select {
	case err := <-reply:
		return err
	case <-t.C:
		return fmt.Errorf("grpc sink did not acknowledge within %v", grpcCloseWait)
	}
}
