package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ads-hunter/backend/internal/auth"
	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const wsWriteTimeout = 5 * time.Second

// wsClient is one dashboard connection. The websocket conn is not safe for
// concurrent writers, so every write goes through mu.
type wsClient struct {
	conn  *websocket.Conn
	types map[string]bool // nil means every event type
	mu    sync.Mutex
}

func (c *wsClient) wants(eventType string) bool {
	return c.types == nil || c.types[eventType]
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub pushes hunt events to the connected members of the owning tenant.
type WSHub struct {
	cfg        *config.Config
	subscriber events.Subscriber
	log        *zap.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*wsClient]struct{}
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:        cfg,
		subscriber: subscriber,
		log:        log.Named("ws"),
		clients:    make(map[uuid.UUID]map[*wsClient]struct{}),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	if err := h.subscriber.Subscribe(ctx, events.StreamHunt, h.route); err != nil {
		h.log.Error("hub subscribe failed", zap.Error(err))
	}
}

// route delivers tenant-scoped events to that tenant only; events without a
// tenant go to everyone.
func (h *WSHub) route(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	var targets []*wsClient
	h.mu.RLock()
	if event.TenantID == "" {
		for _, set := range h.clients {
			targets = appendWanted(targets, set, event.Type)
		}
	} else if tenantID, err := uuid.Parse(event.TenantID); err == nil {
		targets = appendWanted(targets, h.clients[tenantID], event.Type)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.log.Debug("dropping ws client", zap.Error(err))
			_ = c.conn.Close()
		}
	}
}

func appendWanted(dst []*wsClient, set map[*wsClient]struct{}, eventType string) []*wsClient {
	for c := range set {
		if c.wants(eventType) {
			dst = append(dst, c)
		}
	}
	return dst
}

func (h *WSHub) add(tenantID uuid.UUID, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tenantID] == nil {
		h.clients[tenantID] = make(map[*wsClient]struct{})
	}
	h.clients[tenantID][c] = struct{}{}
}

func (h *WSHub) remove(tenantID uuid.UUID, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[tenantID], c)
	if len(h.clients[tenantID]) == 0 {
		delete(h.clients, tenantID)
	}
}

// WSUpgradeMiddleware rejects plain HTTP requests to the websocket route.
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}

// parseTypes reads the optional comma separated ?types= filter.
func parseTypes(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// HandleWS authenticates with ?token= since browsers cannot set headers on the upgrade.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	defer conn.Close()

	reject := func(msg string) {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+msg+`"}`))
	}

	token := conn.Query("token")
	if token == "" {
		reject("missing token")
		return
	}
	claims, err := auth.ParseJWT(h.cfg.JWTSecret, token)
	if err != nil {
		reject("invalid token")
		return
	}
	tenantID, err := claims.TenantID()
	if err != nil {
		reject("invalid token")
		return
	}

	client := &wsClient{conn: conn, types: parseTypes(conn.Query("types"))}
	h.add(tenantID, client)
	defer h.remove(tenantID, client)

	// Inbound frames are ignored; the read only detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
