package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/civicconnect/civic-backend/api/controllers"
	"github.com/civicconnect/civic-backend/api/middleware"
	"github.com/civicconnect/civic-backend/internal/auth"
	"github.com/civicconnect/civic-backend/internal/comments"
	"github.com/civicconnect/civic-backend/internal/issues"
	"github.com/civicconnect/civic-backend/internal/notifications"
	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/auth/session"
	"github.com/civicconnect/civic-backend/pkg/config"
	"github.com/civicconnect/civic-backend/pkg/logger"
	pkgredis "github.com/civicconnect/civic-backend/pkg/redis"
)

// RedisStore is the Redis surface used by the auth throttle, idempotency
// replay and readiness check.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Params carries every dependency the HTTP surface needs.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         RedisStore
	Sessions      session.AccessSessionChecker
	Auth          auth.Service
	Users         users.Service
	Issues        issues.Service
	Comments      comments.Service
	Notifications notifications.Service
	Queue         controllers.EventEnqueuer
	Realtime      http.Handler
	Metrics       http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	// guests have no email, so only the per-IP budget applies
	guestPolicy := middleware.NewAuthRateLimitPolicy(
		"guest",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		0,
	)
	limiter := middleware.NewClientRateLimiter(middleware.ClientRateLimiterConfig{
		Rate:    rate.Limit(cfg.RateLimit.RequestsPerSecond),
		Burst:   cfg.RateLimit.Burst,
		IdleTTL: cfg.RateLimit.IdleTTL,
	})

	var redisStore RedisStore
	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["database"] = p.DB
	}
	if p.Redis != nil {
		redisStore = p.Redis
		deps["redis"] = p.Redis
	}

	authenticated := middleware.Auth(cfg.JWT, p.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}
	if p.Realtime != nil {
		// the websocket handshake authenticates from the query token itself
		r.Get("/ws", p.Realtime.ServeHTTP)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore(redisStore), logg))
		if redisStore != nil {
			r.With(middleware.AuthRateLimit(loginPolicy, redisStore, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, redisStore, logg)).Post("/register", controllers.AuthRegister(p.Auth, logg))
			r.With(middleware.AuthRateLimit(guestPolicy, redisStore, logg)).Post("/guest", controllers.AuthGuest(p.Auth, logg))
		} else {
			r.Post("/login", controllers.AuthLogin(p.Auth, logg))
			r.Post("/register", controllers.AuthRegister(p.Auth, logg))
			r.Post("/guest", controllers.AuthGuest(p.Auth, logg))
		}
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(p.Auth, cfg.JWT, logg))

		r.With(authenticated).Get("/profile", controllers.ProfileGet(p.Users, logg))
		r.With(authenticated).Put("/profile", controllers.ProfileUpdate(p.Users, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(limiter, logg)).Get("/issues/stats", controllers.IssueStats(p.Issues, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RateLimit(limiter, logg))
			r.Use(middleware.Idempotency(idempotencyStore(redisStore), logg))

			r.Route("/issues", func(r chi.Router) {
				r.Post("/", controllers.CreateIssue(p.Issues, logg))
				r.Get("/", controllers.ListIssues(p.Issues, logg))
				r.Get("/mine", controllers.ListMyIssues(p.Issues, logg))
				r.Get("/nearby", controllers.NearbyIssues(p.Issues, logg))
				r.Get("/reporter/{userId}", controllers.ListIssuesByReporter(p.Issues, logg))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", controllers.GetIssue(p.Issues, logg))
					r.Put("/", controllers.UpdateIssue(p.Issues, logg))
					r.Delete("/", controllers.DeleteIssue(p.Issues, logg))
					r.Post("/upvote", controllers.UpvoteIssue(p.Issues, logg))
					r.Delete("/upvote", controllers.RemoveIssueUpvote(p.Issues, logg))
					r.Get("/comments", controllers.ListComments(p.Comments, logg))
					r.Post("/comments", controllers.AddComment(p.Comments, logg))
				})
			})

			r.Route("/comments/{commentId}", func(r chi.Router) {
				r.Put("/", controllers.UpdateComment(p.Comments, logg))
				r.Delete("/", controllers.DeleteComment(p.Comments, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Get("/stats", controllers.NotificationStats(p.Notifications, logg))
				r.Put("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
				r.Put("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))

				r.Get("/issues/stats", controllers.IssueStats(p.Issues, logg))
				r.Put("/issues/{id}/assign", controllers.AdminAssignIssue(p.Issues, logg))
				r.Put("/issues/{id}/status", controllers.AdminChangeIssueStatus(p.Issues, logg))

				r.Get("/users", controllers.AdminListUsers(p.Users, logg))
				r.Post("/users", controllers.AdminCreateStaff(p.Auth, logg))
				r.Patch("/users/{userId}", controllers.AdminUpdateUser(p.Users, logg))
				r.Post("/users/{userId}/message", controllers.AdminSendMessage(p.Queue, logg))

				r.Post("/announcement", controllers.AdminBroadcastAnnouncement(p.Queue, logg))
				r.Get("/notifications", controllers.AdminListNotifications(p.Notifications, logg))
			})
		})
	})

	return r
}

// idempotencyStore avoids handing a typed nil to the middleware.
func idempotencyStore(store RedisStore) pkgredis.IdempotencyStore {
	if store == nil {
		return nil
	}
	return store
}
