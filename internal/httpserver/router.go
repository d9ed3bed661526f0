package httpserver

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"onboarding/internal/handler"
	"onboarding/internal/service/auth"
	"onboarding/pkg/rbac"
)

// Pinger reports dependency health for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connected reports whether a broker connection is up.
type Connected interface {
	IsConnected() bool
}

type Options struct {
	ServiceName  string
	StaticDir    string
	AllowOrigins []string
	RequireAdmin bool
	CookieName   string
}

type Handlers struct {
	Journey *handler.JourneyHandler
	Admin   *handler.AdminHandler
	Auth    *handler.AuthHandler
	Outbox  *handler.OutboxHandler
}

func NewRouter(
	h Handlers,
	authService *auth.Service,
	opts Options,
	logger *zap.Logger,
	db Pinger,
	publisher Connected,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(TraceID(), RequestLog(logger), CORS(opts.AllowOrigins))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/login", h.Auth.Login)

	api := r.Group("/api")
	{
		api.GET("/users", h.Journey.ListUsers)
		api.GET("/journey", h.Journey.GetJourney)
		api.POST("/events", h.Journey.PostEvent)
		api.POST("/reset", h.Journey.Reset)
	}

	adminGroup := api.Group("/admin")
	guard := func(permission string) gin.HandlerFunc {
		if !opts.RequireAdmin {
			return func(c *gin.Context) { c.Next() }
		}
		return RequirePermission(authService, opts.CookieName, permission)
	}
	{
		adminGroup.GET("/journeys", guard(rbac.PermissionManageJourneys), h.Admin.ListJourneys)
		adminGroup.POST("/journeys", guard(rbac.PermissionManageJourneys), h.Admin.CreateJourney)
		adminGroup.POST("/journeys/reset", guard(rbac.PermissionManageJourneys), h.Admin.ResetJourneys)
		adminGroup.DELETE("/journeys/:id", guard(rbac.PermissionManageJourneys), h.Admin.DeleteJourney)
		adminGroup.GET("/users", guard(rbac.PermissionManageJourneys), h.Admin.ListUsers)
		adminGroup.POST("/assign-journey", guard(rbac.PermissionManageJourneys), h.Admin.AssignJourney)
		adminGroup.GET("/overview", guard(rbac.PermissionViewOverview), h.Admin.Overview)
		if h.Outbox != nil {
			adminGroup.POST("/outbox/replay", guard(rbac.PermissionReplayOutbox), h.Outbox.ReplayEvent)
			adminGroup.POST("/outbox/replay-failed", guard(rbac.PermissionReplayOutbox), h.Outbox.ReplayFailed)
		}
	}

	if opts.StaticDir != "" {
		if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
			mountStatic(r, opts.StaticDir)
		} else {
			logger.Warn("Static dir not found, serving API only", zap.String("static_dir", opts.StaticDir))
		}
	}

	return r
}

// mountStatic serves the browser clients. "/" serves login.html; other paths
// map to files under dir. Files are served as-is so /index.html is not
// redirected to "/".
func mountStatic(r *gin.Engine, dir string) {
	r.GET("/", func(c *gin.Context) {
		serveFile(c, filepath.Join(dir, "login.html"))
	})
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
			return
		}
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+c.Request.URL.Path)))
		serveFile(c, name)
	})
}

func serveFile(c *gin.Context, name string) {
	f, err := os.Open(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}
