package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgEvaluationResult MessageType = "evaluation_result"
	MsgBadgeCompleted   MessageType = "badge_completed"
	MsgTyping           MessageType = "typing"
	MsgError            MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans server events out to the connections watching a session. A
// session may have several connections (multiple tabs); all receive every
// event.
type Hub struct {
	conns map[string]map[*Connection]bool // sessionID -> connections

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage

	log *zap.Logger
}

// Connection represents one WebSocket subscriber.
type Connection struct {
	SessionID string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message addressed to one session's subscribers.
type BroadcastMessage struct {
	SessionID  string
	Message    *Message
	Disconnect bool
}

// NewHub creates a new WebSocket hub
func NewHub(log *zap.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[*Connection]bool)
			}
			h.conns[conn.SessionID][conn] = true
			h.mu.Unlock()
			h.log.Debug("ws subscriber connected", zap.String("session", conn.SessionID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if subs, ok := h.conns[conn.SessionID]; ok && subs[conn] {
				delete(subs, conn)
				close(conn.Send)
				if len(subs) == 0 {
					delete(h.conns, conn.SessionID)
				}
				h.log.Debug("ws subscriber disconnected", zap.String("session", conn.SessionID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			subs := h.conns[msg.SessionID]
			if msg.Disconnect {
				for conn := range subs {
					close(conn.Send)
				}
				delete(h.conns, msg.SessionID)
				h.mu.Unlock()
				continue
			}
			data, _ := json.Marshal(msg.Message)
			for conn := range subs {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToSession sends a message to every subscriber of a session
// (implements service.Broadcaster)
func (h *Hub) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Warn("ws payload marshal failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
}

// DisconnectSession closes all of a session's subscribers (implements
// service.Broadcaster)
func (h *Hub) DisconnectSession(sessionID string) {
	h.broadcast <- &BroadcastMessage{
		SessionID:  sessionID,
		Disconnect: true,
	}
}
