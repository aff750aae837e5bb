package signaling

import (
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
)

// GRPCServer serves the same six signaling operations as the WebSocket
// Hub, over a single bidirectional-streaming "Signal" RPC whose wire
// messages are the same JSON-RPC 2.0 Request/Response shapes (spec §4.7
// "semantics are identical").
type GRPCServer struct {
	handler Handler
	mu      sync.RWMutex
	streams map[string]grpc.ServerStream
}

// NewGRPCServer constructs a GRPCServer and registers it against grpcSrv
// using a hand-written ServiceDesc, avoiding a protoc/protoreflect
// dependency entirely.
func NewGRPCServer(grpcSrv *grpc.Server) *GRPCServer {
	s := &GRPCServer{streams: make(map[string]grpc.ServerStream)}
	s.handler = NewRegistry(s.push)
	grpcSrv.RegisterService(&signalingServiceDesc, s)
	return s
}

func (s *GRPCServer) push(peerID, method string, params any) {
	s.mu.RLock()
	stream, ok := s.streams[peerID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	_ = stream.SendMsg(notification(method, params))
}

// signalingServiceDesc is hand-written in place of protoc-generated
// registration, since the codec above carries JSON instead of protobuf
// wire bytes.
var signalingServiceDesc = grpc.ServiceDesc{
	ServiceName: "signaling.Signaling",
	HandlerType: (*GRPCServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Signal",
			Handler:       signalStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "signaling",
}

func signalStreamHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*GRPCServer)
	var peerID string

	defer func() {
		if peerID != "" {
			s.mu.Lock()
			delete(s.streams, peerID)
			s.mu.Unlock()
		}
	}()

	for {
		var req Request
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}

		resp := s.dispatch(&peerID, stream, req)
		if err := stream.SendMsg(resp); err != nil {
			return err
		}
	}
}

// dispatch mirrors Hub.dispatch's method table; params arrive generically
// decoded (the JSON codec unmarshals into `any`), so each case re-marshals
// and decodes into its typed shape rather than trusting a type assertion.
func (s *GRPCServer) dispatch(peerID *string, stream grpc.ServerStream, req Request) Response {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "params not serializable")
	}

	switch req.Method {
	case "announce":
		var p AnnounceParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid announce params")
		}
		result, err := s.handler.Announce(p.PeerID, p.Capabilities, p.UserData)
		if err != nil {
			return errorResponse(req.ID, CodePeerNotFound, err.Error())
		}
		*peerID = p.PeerID
		s.mu.Lock()
		s.streams[p.PeerID] = stream
		s.mu.Unlock()
		return Response{JSONRPC: "2.0", ID: req.ID, Result: result}

	case "offer":
		var p OfferParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid offer params")
		}
		if err := s.handler.Offer(p); err != nil {
			return errorResponse(req.ID, CodeOfferInvalid, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "answer":
		var p OfferParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid answer params")
		}
		if err := s.handler.Answer(p); err != nil {
			return errorResponse(req.ID, CodeAnswerInvalid, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "ice_candidate":
		var p ICECandidateParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid ice_candidate params")
		}
		if err := s.handler.ICECandidate(p); err != nil {
			return errorResponse(req.ID, CodeICEInvalid, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "disconnect":
		var p DisconnectParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid disconnect params")
		}
		if err := s.handler.Disconnect(p); err != nil {
			return errorResponse(req.ID, CodeInternal, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "list_peers":
		return Response{JSONRPC: "2.0", ID: req.ID, Result: s.handler.ListPeers()}

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method "+req.Method)
	}
}
