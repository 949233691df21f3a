// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sipeed/emoclaw/pkg/bus"
	"github.com/sipeed/emoclaw/pkg/config"
	"github.com/sipeed/emoclaw/pkg/logger"
)

const writeTimeout = 10 * time.Second

// wsIncoming is the JSON message a client sends.
type wsIncoming struct {
	Content    string `json:"content"`
	SenderID   string `json:"sender_id,omitempty"`
	BaseAnswer string `json:"base_answer,omitempty"`
}

// wsOutgoing is the JSON message sent to a client. Type is one of the bus
// message kinds.
type wsOutgoing struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	MessageID string `json:"message_id,omitempty"`
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// WebSocketChannel is a server-side WebSocket channel. Each connection is
// one chat; the sender is the connection's client_id unless an authenticated
// client names one with sender_id.
type WebSocketChannel struct {
	*BaseChannel
	config   config.WebSocketConfig
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	clients  map[string]*wsClient // chatID -> client
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewWebSocketChannel(cfg config.WebSocketConfig, msgBus *bus.MessageBus) *WebSocketChannel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketChannel{
		BaseChannel: NewBaseChannel("websocket", msgBus, nil),
		config:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler serves the websocket endpoint on the configured path.
func (c *WebSocketChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(c.config.Path, c.handleWS)
	return mux
}

func (c *WebSocketChannel) Start(ctx context.Context) error {
	logger.InfoC("websocket", "Starting WebSocket channel server")

	ln, err := net.Listen("tcp", c.config.Addr())
	if err != nil {
		return fmt.Errorf("websocket listen: %w", err)
	}
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.setRunning(true)

	logger.InfoCF("websocket", "WebSocket server listening", map[string]any{
		"addr": ln.Addr().String(),
		"path": c.config.Path,
	})

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("websocket", "Server error", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Addr is the bound listener address once Start has succeeded.
func (c *WebSocketChannel) Addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *WebSocketChannel) Stop(ctx context.Context) error {
	logger.InfoC("websocket", "Stopping WebSocket channel")
	c.setRunning(false)
	c.cancel()

	c.mu.Lock()
	for chatID, client := range c.clients {
		logger.DebugCF("websocket", "Closing client connection", map[string]any{
			"chat_id": chatID,
		})
		client.conn.Close()
	}
	c.clients = make(map[string]*wsClient)
	c.mu.Unlock()

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logger.ErrorCF("websocket", "Server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return err
		}
	}

	logger.InfoC("websocket", "WebSocket channel stopped")
	return nil
}

func (c *WebSocketChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.RLock()
	client, ok := c.clients[msg.ChatID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no connection for chat %s", msg.ChatID)
	}

	if err := client.write(wsOutgoing{Type: msg.Kind, Content: msg.Content, MessageID: msg.MessageID}); err != nil {
		logger.ErrorCF("websocket", "Failed to send message", map[string]any{
			"chat_id": msg.ChatID,
			"error":   err.Error(),
		})
		return err
	}
	return nil
}

func (c *WebSocketChannel) authorized(r *http.Request) bool {
	if c.config.APIKey == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.config.APIKey)) == 1
}

func (c *WebSocketChannel) handleWS(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("websocket", "Upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	chatID := "ws:" + clientID

	logger.InfoCF("websocket", "New WebSocket connection", map[string]any{
		"client_id":   clientID,
		"remote_addr": r.RemoteAddr,
	})

	client := &wsClient{conn: conn}
	c.mu.Lock()
	if old, ok := c.clients[chatID]; ok {
		old.conn.Close()
	}
	c.clients[chatID] = client
	c.mu.Unlock()

	go c.readPump(client, clientID, chatID)
}

// Connected reports whether chatID has a live connection.
func (c *WebSocketChannel) Connected(chatID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.clients[chatID]
	return ok
}

func (c *WebSocketChannel) readPump(client *wsClient, clientID, chatID string) {
	defer func() {
		c.mu.Lock()
		if c.clients[chatID] == client {
			delete(c.clients, chatID)
		}
		c.mu.Unlock()
		client.conn.Close()

		logger.InfoCF("websocket", "Client disconnected", map[string]any{
			"client_id": clientID,
		})
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.ErrorCF("websocket", "Read error", map[string]any{
					"client_id": clientID,
					"error":     err.Error(),
				})
			}
			return
		}

		var incoming wsIncoming
		if err := json.Unmarshal(message, &incoming); err != nil || strings.TrimSpace(incoming.Content) == "" {
			_ = client.write(wsOutgoing{Type: bus.KindError, Content: "expected a JSON object with a non-empty content field"})
			continue
		}

		// sender_id selects whose profile and route a turn updates, so only
		// clients that authenticated with the API key may set it.
		senderID := clientID
		if incoming.SenderID != "" && c.config.APIKey != "" {
			senderID = incoming.SenderID
		}

		logger.DebugCF("websocket", "Received message", map[string]any{
			"client_id": clientID,
			"sender_id": senderID,
		})

		c.HandleMessage(c.ctx, senderID, chatID, incoming.Content, incoming.BaseAnswer, map[string]string{
			"client_id": clientID,
		})
	}
}
