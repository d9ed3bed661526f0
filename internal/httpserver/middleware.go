package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"onboarding/internal/service/auth"
	"onboarding/pkg/metrics"
	"onboarding/pkg/trace"
	"onboarding/pkg/util"
)

// CORS allows the browser clients to call the API. Credentials are only
// allowed for an explicit origin list; with none configured any origin may
// call without them.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", trace.HeaderName},
		ExposeHeaders: []string{trace.HeaderName},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// TraceID takes X-Trace-ID from the request, else the otel trace id, else a
// fresh uuid, and stores it on the request context and response.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(trace.HeaderName))
		if traceID == "" {
			if sc := oteltrace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Set("trace_id", traceID)
		c.Writer.Header().Set(trace.HeaderName, traceID)
		c.Next()
	}
}

// RequestLog logs one line per request and records its latency.
func RequestLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), latency)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", c.GetString("trace_id")),
		}
		switch {
		case status >= 500:
			logger.Error("HTTP Request", fields...)
		case status >= 400:
			logger.Warn("HTTP Request", fields...)
		default:
			logger.Info("HTTP Request", fields...)
		}
	}
}

// RequirePermission rejects requests whose session token does not grant permission.
func RequirePermission(authService *auth.Service, cookieName, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Login påkrævet."})
			return
		}

		claims, err := authService.Authorize(token, permission)
		if err != nil {
			if claims != nil {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Adgang nægtet."})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Ugyldig session."})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}
