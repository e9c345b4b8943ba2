package realtime

import (
	"net/http"
	"strings"

	pkgauth "github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/civicconnect/civic-backend/pkg/auth/session"
	"github.com/civicconnect/civic-backend/pkg/config"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/gorilla/websocket"
)

// HandlerParams configure the websocket endpoint.
type HandlerParams struct {
	Hub            *Hub
	JWT            config.JWTConfig
	Sessions       session.AccessSessionChecker
	Realtime       config.RealtimeConfig
	AllowedOrigins []string
	Logger         *logger.Logger
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	jwt      config.JWTConfig
	sessions session.AccessSessionChecker
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
	logg     *logger.Logger
}

func NewHandler(p HandlerParams) *Handler {
	origins := map[string]struct{}{}
	allowAll := false
	for _, o := range p.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		origins[strings.ToLower(o)] = struct{}{}
	}
	return &Handler{
		hub:      p.Hub,
		jwt:      p.JWT,
		sessions: p.Sessions,
		cfg:      p.Realtime,
		logg:     p.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAll {
					return true
				}
				_, ok := origins[strings.ToLower(origin)]
				return ok
			},
		},
	}
}

// ServeHTTP authenticates the token query parameter (or bearer header) before
// upgrading. The connection is bound to that identity for its lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			token = strings.TrimSpace(raw[7:])
		}
	}
	if token == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	claims, err := pkgauth.ParseAccessToken(h.jwt, token)
	if err != nil || claims.ID == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if h.sessions != nil {
		ok, err := h.sessions.HasSession(ctx, claims.ID)
		if err != nil {
			h.logg.Error(ctx, "realtime session check failed", err)
			http.Error(w, "session check failed", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "session unavailable", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the failure response
		h.logg.Warn(h.logg.WithField(ctx, "upgrade_error", err.Error()), "websocket upgrade failed")
		return
	}

	actor := pkgauth.Actor{UserID: claims.UserID, Role: claims.Role}
	client := NewClient(actor, h.cfg.SendBuffer)
	connCtx := h.logg.WithFields(ctx, map[string]any{
		"connection_id": client.ID(),
		"user_id":       actor.UserID.String(),
		"actor_role":    string(actor.Role),
	})
	h.logg.Info(connCtx, "realtime connection opened")
	h.hub.Serve(connCtx, conn, client, SessionConfig{
		WriteTimeout:   h.cfg.WriteTimeout,
		PingInterval:   h.cfg.PingInterval,
		MaxMessageSize: h.cfg.MaxMessageSize,
	})
	h.logg.Info(connCtx, "realtime connection closed")
}
