package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"heartsync-backend/internal/metrics"
	"heartsync-backend/internal/repository"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Websocket event types
const (
	EventCoupleStatus       = "couple_status"
	EventCoupleConnected    = "couple_connected"
	EventCoupleDisconnected = "couple_disconnected"
	EventStreakUpdated      = "streak_updated"
	EventNudge              = "nudge"
	EventPartnerStatus      = "partner_status"
	EventPing               = "ping"
	EventPong               = "pong"
	EventError              = "error"
)

const wsWriteTimeout = 10 * time.Second

// ErrUserOffline is returned when a message targets a user without an open socket
var ErrUserOffline = errors.New("user is not connected")

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
	From      string `json:"from,omitempty"`
	Online    *bool  `json:"online,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// WSConn is the part of *websocket.Conn the hub writes to
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type wsClient struct {
	conn WSConn
	// gorilla connections allow one concurrent writer
	mu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	store   repository.Store
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(store repository.Store) *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
		store:   store,
	}
}

// Register registers a new WebSocket connection for a user, closing any previous one
func (h *WSHub) Register(ctx context.Context, userID string, conn WSConn) {
	h.mu.Lock()
	if existing, ok := h.clients[userID]; ok {
		existing.conn.Close()
	} else {
		metrics.WSConnectionsActive.Inc()
	}
	h.clients[userID] = &wsClient{conn: conn}
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")

	partnerID := h.partnerID(ctx, userID)
	h.sendCoupleStatus(userID, partnerID)
	h.notifyPartnerStatus(userID, partnerID, true)
}

// Unregister removes conn if it is still the user's current connection
func (h *WSHub) Unregister(ctx context.Context, userID string, conn WSConn) {
	h.mu.Lock()
	client, ok := h.clients[userID]
	if !ok || client.conn != conn {
		h.mu.Unlock()
		return
	}
	delete(h.clients, userID)
	h.mu.Unlock()

	conn.Close()
	metrics.WSConnectionsActive.Dec()
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")

	h.notifyPartnerStatus(userID, h.partnerID(ctx, userID), false)
}

// CloseAll closes every open connection; used on shutdown since hijacked sockets outlive http.Server.Shutdown
func (h *WSHub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
		metrics.WSConnectionsActive.Dec()
	}
	log.Info().Int("connections", len(clients)).Msg("WebSocket connections closed")
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return ErrUserOffline
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.drop(userID, client)
		return fmt.Errorf("failed to send message: %w", err)
	}

	metrics.WSMessagesTotal.WithLabelValues("out", message.Type).Inc()
	return nil
}

// drop removes a client whose write failed; the read loop sees the closed socket and exits
func (h *WSHub) drop(userID string, client *wsClient) {
	h.mu.Lock()
	if current, ok := h.clients[userID]; ok && current == client {
		delete(h.clients, userID)
		metrics.WSConnectionsActive.Dec()
	}
	h.mu.Unlock()
	client.conn.Close()
}

// HandleMessage processes one message read from userID's socket
func (h *WSHub) HandleMessage(ctx context.Context, userID string, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(userID, "invalid message format")
		return
	}
	metrics.WSMessagesTotal.WithLabelValues("in", msg.Type).Inc()

	switch msg.Type {
	case EventPing:
		_ = h.SendToUser(userID, WSMessage{Type: EventPong, Timestamp: time.Now().UnixMilli()})

	case EventNudge:
		partnerID := h.partnerID(ctx, userID)
		if partnerID == "" {
			h.sendError(userID, "You are not connected to a partner")
			return
		}
		if !h.IsOnline(partnerID) {
			h.sendError(userID, "Partner is offline")
			return
		}
		nudge := WSMessage{
			Type:      EventNudge,
			From:      userID,
			Message:   msg.Message,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := h.SendToUser(partnerID, nudge); err != nil {
			log.Error().Err(err).Str("user_id", partnerID).Msg("Failed to deliver nudge")
			h.sendError(userID, "Failed to deliver nudge")
		}

	default:
		h.sendError(userID, "Unknown message type")
	}
}

func (h *WSHub) sendError(userID, message string) {
	_ = h.SendToUser(userID, WSMessage{Type: EventError, Message: message})
}

func (h *WSHub) partnerID(ctx context.Context, userID string) string {
	couple, err := h.store.Couples().GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to look up couple")
		}
		return ""
	}
	return couple.PartnerOf(userID)
}

func (h *WSHub) sendCoupleStatus(userID, partnerID string) {
	status := map[string]any{"connected": partnerID != ""}
	if partnerID != "" {
		status["partnerId"] = partnerID
		status["partnerOnline"] = h.IsOnline(partnerID)
	}
	if err := h.SendToUser(userID, WSMessage{Type: EventCoupleStatus, Data: status}); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send couple status")
	}
}

// notifyPartnerStatus notifies the partner about online/offline status
func (h *WSHub) notifyPartnerStatus(userID, partnerID string, online bool) {
	if partnerID == "" || !h.IsOnline(partnerID) {
		return
	}
	message := WSMessage{Type: EventPartnerStatus, From: userID, Online: &online}
	if err := h.SendToUser(partnerID, message); err != nil {
		log.Error().Err(err).Str("user_id", partnerID).Msg("Failed to notify partner status")
	}
}
