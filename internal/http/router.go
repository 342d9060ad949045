// Package httpapi assembles the Gin engine for the complaint intake service:
// the middleware chain, the conversational endpoints under /sessions, and the
// operator surface under /complaints. All dependencies (DB, LLM client,
// mailer) are injected here so tests can swap any of them.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tbourn/go-complaint-backend/internal/config"
	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/http/handlers"
	"github.com/tbourn/go-complaint-backend/internal/http/middleware"
	"github.com/tbourn/go-complaint-backend/internal/llm"
	"github.com/tbourn/go-complaint-backend/internal/notifications"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// RegisterRoutes attaches the middleware chain and every endpoint to r, then
// mounts the versioned API under cfg.APIBasePath. Pass a nil llmClient to
// build a Gemini client from cfg.LLM; tests pass a fake instead.
//
// Ordering constraints in the chain:
//   - RequestID precedes the logger so every line carries the id
//   - the idempotency validator precedes the rate limiter so a replayed turn
//     is never throttled
//   - recovery sits after the logger so panics are logged with context
func RegisterRoutes(r *gin.Engine, db *gorm.DB, llmClient llm.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Tracing first so every downstream span nests under the request
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// Correlation id
	r.Use(middleware.RequestID())

	// Access logging with PII scrubbing; identity headers masked by default
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))

	// Panic recovery to the JSON error envelope
	r.Use(middleware.Recovery())

	// Body cap, 1 MiB is generous for a single turn
	r.Use(limitBody(1 << 20))

	// Prometheus instrumentation and scrape endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Idempotency validation, ahead of the rate limiter
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, sessionID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, sessionID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// Token-bucket limiting keyed per user, session, or IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.TurnKey())
	r.Use(rl.Handler())

	// CORS: allow all when no origins are configured
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: controller ← llm/store/notifier, services ← controller/db
	if llmClient == nil {
		llmClient = llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		})
	}
	mailer := notifications.NewEscalationMailer(notifications.SMTPConfig{
		Enabled:    cfg.SMTP.Enabled,
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		User:       cfg.SMTP.User,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		To:         cfg.SMTP.To,
		StartTLS:   cfg.SMTP.StartTLS,
		SkipVerify: cfg.SMTP.SkipVerify,
	})
	ctrl := &convo.Controller{
		LLM:           llmClient,
		Store:         services.NewGormStore(db),
		Notifier:      mailer,
		HistoryWindow: cfg.HistoryWindow,
	}
	sessionSvc := services.NewSessionService(ctrl)
	sessionSvc.MaxPromptRunes = cfg.MaxPromptRunes
	compSvc := services.NewComplaintService(db)
	h := handlers.New(sessionSvc, compSvc, db)
	h.IdempotencyTTL = cfg.IdempotencyTTL

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Sessions (conversational intake)
		api.POST("/sessions/:id/messages", h.Converse)
		api.GET("/sessions/:id/messages", h.SessionHistory)
		api.DELETE("/sessions/:id", h.ClearSession)

		// Complaints (operator surface)
		api.GET("/complaints", h.ListComplaints)
		api.GET("/complaints/:id", h.GetComplaint)
		api.GET("/complaints/:id/messages", h.ListComplaintMessages)
		api.PUT("/complaints/:id/status", h.UpdateComplaintStatus)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
