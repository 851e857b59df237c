package battlev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Battleships_Game_FullMethodName is the fully-qualified method name of the Game stream.
const Battleships_Game_FullMethodName = "/battleships.v1.Battleships/Game"

// BattleshipsServer is the server API for the Battleships service.
type BattleshipsServer interface {
	// Game runs one player's session: a Join followed by moves and reports,
	// answered by turn, move and report events.
	Game(Battleships_GameServer) error
}

// Battleships_GameServer is the server side of the Game stream.
type Battleships_GameServer = grpc.BidiStreamingServer[Request, Response]

// Battleships_GameClient is the client side of the Game stream.
type Battleships_GameClient = grpc.BidiStreamingClient[Request, Response]

// UnimplementedBattleshipsServer can be embedded to have forward compatible implementations.
type UnimplementedBattleshipsServer struct{}

// Game returns codes.Unimplemented.
func (UnimplementedBattleshipsServer) Game(Battleships_GameServer) error {
	return status.Error(codes.Unimplemented, "method Game not implemented")
}

func _Battleships_Game_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(BattleshipsServer).Game(&grpc.GenericServerStream[Request, Response]{ServerStream: stream})
}

// Battleships_ServiceDesc is the grpc.ServiceDesc for the Battleships service.
var Battleships_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "battleships.v1.Battleships",
	HandlerType: (*BattleshipsServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Game",
			Handler:       _Battleships_Game_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "battleships/v1/battleships.proto",
}

// RegisterBattleshipsServer registers srv on s.
func RegisterBattleshipsServer(s grpc.ServiceRegistrar, srv BattleshipsServer) {
	s.RegisterService(&Battleships_ServiceDesc, srv)
}

// BattleshipsClient is the client API for the Battleships service.
type BattleshipsClient interface {
	Game(ctx context.Context, opts ...grpc.CallOption) (Battleships_GameClient, error)
}

type battleshipsClient struct {
	cc grpc.ClientConnInterface
}

// NewBattleshipsClient wraps cc. Calls use the JSON codec automatically.
func NewBattleshipsClient(cc grpc.ClientConnInterface) BattleshipsClient {
	return &battleshipsClient{cc: cc}
}

func (c *battleshipsClient) Game(ctx context.Context, opts ...grpc.CallOption) (Battleships_GameClient, error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod(), grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &Battleships_ServiceDesc.Streams[0], Battleships_Game_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[Request, Response]{ClientStream: stream}, nil
}
