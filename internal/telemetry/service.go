package telemetry

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "vrcore.telemetry.v1.Telemetry"
	streamFramesMethod = "/" + ServiceName + "/StreamFrames"
	getStatsMethod     = "/" + ServiceName + "/GetStats"
)

// TelemetryServer is the server API of the telemetry service.
type TelemetryServer interface {
	// StreamFrames sends frame stats until the client goes away. The
	// request may set "every" to receive only every Nth tick.
	StreamFrames(req *structpb.Struct, stream grpc.ServerStream) error
	// GetStats returns session and publisher counters.
	GetStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// StatsFunc supplies extra counters for GetStats, typically the warp
// session's.
type StatsFunc func() map[string]any

// Server implements TelemetryServer on a Publisher.
type Server struct {
	publisher *Publisher
	stats     StatsFunc
}

var _ TelemetryServer = (*Server)(nil)

func NewServer(p *Publisher, stats StatsFunc) *Server {
	return &Server{publisher: p, stats: stats}
}

func (s *Server) StreamFrames(req *structpb.Struct, stream grpc.ServerStream) error {
	every := uint64(1)
	if v, ok := req.GetFields()["every"]; ok {
		n := v.GetNumberValue()
		if n < 1 {
			return status.Errorf(codes.InvalidArgument, "every must be >= 1, got %v", n)
		}
		every = uint64(n)
	}
	id, c, err := s.publisher.addClient(every)
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.publisher.removeClient(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "telemetry stopped")
		case f := <-c.frameCh:
			if err := stream.SendMsg(f.ToStruct()); err != nil {
				return err
			}
		}
	}
}

func (s *Server) GetStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ps := s.publisher.Stats()
	m := map[string]any{
		"frames":  float64(ps.FrameCount),
		"dropped": float64(ps.Dropped),
		"clients": float64(ps.ClientCount),
		"running": ps.Running,
	}
	if s.stats != nil {
		for k, v := range s.stats() {
			m[k] = v
		}
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TelemetryServer).StreamFrames(req, stream)
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).GetStats(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).GetStats(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceDesc describes the telemetry service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStats", Handler: getStatsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFrames", Handler: streamFramesHandler, ServerStreams: true},
	},
	Metadata: "vrcore/telemetry",
}

// RegisterService registers the telemetry service with the server.
func RegisterService(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the telemetry service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatsMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FrameStream receives frame stats from StreamFrames.
type FrameStream struct {
	stream grpc.ClientStream
}

// StreamFrames opens a stream delivering every Nth tick; every < 1 means
// all ticks.
func (c *Client) StreamFrames(ctx context.Context, every int, opts ...grpc.CallOption) (*FrameStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamFramesMethod, opts...)
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if every >= 1 {
		req.Fields["every"] = structpb.NewNumberValue(float64(every))
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{stream: stream}, nil
}

// Recv blocks for the next frame.
func (s *FrameStream) Recv() (FrameStats, error) {
	m := new(structpb.Struct)
	if err := s.stream.RecvMsg(m); err != nil {
		return FrameStats{}, err
	}
	return StatsFromStruct(m)
}
