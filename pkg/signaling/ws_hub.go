package signaling

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// wsClient is one announced peer's WebSocket connection.
type wsClient struct {
	peerID string
	conn   *websocket.Conn
	send   chan Response
	hub    *Hub
}

// Hub serves JSON-RPC 2.0 signaling over WebSocket, dispatching the six
// operations to a Handler and routing server-pushed notifications back to
// the right connection (spec §4.7, §6.4).
type Hub struct {
	handler Handler
	log     zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewHub constructs a Hub. It wires itself as the Handler's notify
// callback, so Handler-originated pushes (peer.announced, forwarded
// offers, etc.) reach the right socket.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{log: log, clients: make(map[string]*wsClient)}
	h.handler = NewRegistry(h.push)
	return h
}

// push delivers a server-initiated notification to one peer's socket, if
// currently connected.
func (h *Hub) push(peerID, method string, params any) {
	h.mu.RLock()
	c, ok := h.clients[peerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- notification(method, params):
	default:
		h.log.Warn().Str("peer_id", peerID).Msg("signaling send buffer full, dropping notification")
	}
}

// ServeHTTP upgrades the connection and serves it until closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan Response, 64), hub: h}
	go c.writePump()
	c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		if c.peerID != "" {
			c.hub.mu.Lock()
			delete(c.hub.clients, c.peerID)
			c.hub.mu.Unlock()
		}
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.send <- errorResponse(nil, CodeParseError, "invalid JSON")
			continue
		}
		resp := c.hub.dispatch(c, req)
		c.send <- resp
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case resp, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(resp); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one JSON-RPC request to the Handler and builds its
// response envelope.
func (h *Hub) dispatch(c *wsClient, req Request) Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "missing jsonrpc/method")
	}

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
		result, err := h.handler.Announce(p.PeerID, p.Capabilities, p.UserData)
		if err != nil {
			return errorResponse(req.ID, CodePeerNotFound, err.Error())
		}
		c.peerID = p.PeerID
		h.mu.Lock()
		h.clients[p.PeerID] = c
		h.mu.Unlock()
		return Response{JSONRPC: "2.0", ID: req.ID, Result: result}

	case "offer":
		var p OfferParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid offer params")
		}
		if err := h.handler.Offer(p); err != nil {
			return errorResponse(req.ID, CodeOfferInvalid, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "answer":
		var p OfferParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid answer params")
		}
		if err := h.handler.Answer(p); err != nil {
			return errorResponse(req.ID, CodeAnswerInvalid, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "ice_candidate":
		var p ICECandidateParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid ice_candidate params")
		}
		if err := h.handler.ICECandidate(p); err != nil {
			return errorResponse(req.ID, CodeICEInvalid, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "disconnect":
		var p DisconnectParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid disconnect params")
		}
		if err := h.handler.Disconnect(p); err != nil {
			return errorResponse(req.ID, CodeInternal, err.Error())
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ForwardedResult{Status: "forwarded", RequestID: p.RequestID}}

	case "list_peers":
		return Response{JSONRPC: "2.0", ID: req.ID, Result: h.handler.ListPeers()}

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method "+req.Method)
	}
}
