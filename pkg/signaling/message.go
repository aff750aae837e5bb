// Package signaling implements the transport-agnostic WebRTC signaling
// surface: announce/offer/answer/ice_candidate/disconnect/list_peers, over
// either JSON-RPC 2.0/WebSocket or a custom-codec gRPC bidirectional
// stream, with identical semantics (spec §4.7, §6.4).
package signaling

import "github.com/mediarun/pipeline-runtime/pkg/rterr"

// Kind errors for the signaling subsystem (spec §7 "Signaling" taxonomy).
const (
	KindParseError      rterr.Kind = "signaling.parse_error"
	KindInvalidRequest  rterr.Kind = "signaling.invalid_request"
	KindMethodNotFound  rterr.Kind = "signaling.method_not_found"
	KindInvalidParams   rterr.Kind = "signaling.invalid_params"
	KindInternal        rterr.Kind = "signaling.internal"
	KindPeerNotFound    rterr.Kind = "signaling.peer_not_found"
	KindOfferInvalid    rterr.Kind = "signaling.offer_invalid"
	KindAnswerInvalid   rterr.Kind = "signaling.answer_invalid"
	KindICEInvalid      rterr.Kind = "signaling.ice_invalid"
	KindSessionLimit    rterr.Kind = "signaling.session_limit"
)

// JSON-RPC 2.0 / application error codes (spec §4.7 "Error codes").
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodePeerNotFound   = -32000
	CodeOfferInvalid   = -32002
	CodeAnswerInvalid  = -32003
	CodeICEInvalid     = -32004
	CodeSessionLimit   = -32005
)

// DisconnectReason enumerates the allowed `disconnect` reasons (spec §4.7).
type DisconnectReason string

const (
	ReasonUserRequested DisconnectReason = "user_requested"
	ReasonNetworkError  DisconnectReason = "network_error"
	ReasonTimeout       DisconnectReason = "timeout"
	ReasonError         DisconnectReason = "error"
	ReasonUnknown       DisconnectReason = "unknown"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope (used for both replies and
// server-initiated notifications, which omit ID).
type Response struct {
	JSONRPC string     `json:"jsonrpc"`
	Result  any        `json:"result,omitempty"`
	Error   *RPCError  `json:"error,omitempty"`
	ID      any        `json:"id,omitempty"`
	Method  string     `json:"method,omitempty"` // set on server-pushed notifications
	Params  any        `json:"params,omitempty"` // set on server-pushed notifications
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorResponse(id any, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func notification(method string, params any) Response {
	return Response{JSONRPC: "2.0", Method: method, Params: params}
}

// AnnounceParams is the `announce` request body.
type AnnounceParams struct {
	PeerID       string   `json:"peer_id"`
	Capabilities []string `json:"capabilities"`
	UserData     any      `json:"user_data,omitempty"`
}

// AnnounceResult is the `announce` response body.
type AnnounceResult struct {
	Status     string `json:"status"`
	ServerTime int64  `json:"server_time"`
	PeerID     string `json:"peer_id"`
	SessionKey string `json:"session_key,omitempty"`
}

// PeerAnnouncedNotification is pushed to every other peer after an
// announce (spec §4.7: "server then notifies all other peers with
// peer.announced(...)").
type PeerAnnouncedNotification struct {
	PeerID       string   `json:"peer_id"`
	Capabilities []string `json:"capabilities"`
}

// OfferParams / AnswerParams share the same shape (spec §4.7 "answer —
// mirror of offer").
type OfferParams struct {
	From                     string `json:"from"`
	To                       string `json:"to"`
	SDP                      string `json:"sdp"`
	CanTrickleIceCandidates  bool   `json:"can_trickle_ice_candidates"`
	RequestID                string `json:"request_id"`
}

// ForwardedResult is returned to the sender of an offer/answer.
type ForwardedResult struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// ICECandidateParams is the `ice_candidate` request body.
type ICECandidateParams struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Candidate    string `json:"candidate"`
	SDPMLineIndex int   `json:"sdp_m_line_index"`
	SDPMid       string `json:"sdp_mid"`
	RequestID    string `json:"request_id"`
}

// DisconnectParams is the `disconnect` request body.
type DisconnectParams struct {
	From      string           `json:"from"`
	To        string           `json:"to"`
	Reason    DisconnectReason `json:"reason"`
	RequestID string           `json:"request_id,omitempty"`
}

// ListPeersResult is one entry of the `list_peers` response body.
type ListPeersResult struct {
	PeerID          string   `json:"peer_id"`
	ConnectionState string   `json:"connection_state"`
	Capabilities    []string `json:"capabilities"`
}
