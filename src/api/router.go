package api

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hearthlane/termbroker/internal/authn"
	"github.com/hearthlane/termbroker/internal/session"
	"github.com/hearthlane/termbroker/internal/store"
	"github.com/hearthlane/termbroker/src/handler"
)

// SetupRouter configures all the routes for the terminal broker.
// If disableRequestLogging is true, the logrus middleware is skipped.
// If enableProcessingTime is true, the Server-Timing header middleware is added.
func SetupRouter(manager *session.Manager, st *store.Store, auth authn.Authenticator, disableRequestLogging bool, enableProcessingTime bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())

	if enableProcessingTime {
		r.Use(processingTimeMiddleware())
	}
	if !disableRequestLogging {
		r.Use(logrusMiddleware())
	}

	sessionHandler := handler.NewSessionHandler(manager, st, auth)
	bridgeHandler := handler.NewTerminalBridgeHandler(manager, st, auth)
	systemHandler := handler.NewSystemHandler(manager)

	head := headHandler()

	r.GET("/health", systemHandler.HandleHealth)
	r.HEAD("/health", head)

	api := r.Group("/api")
	{
		api.GET("/sessions", sessionHandler.HandleListSessions)
		api.HEAD("/sessions", head)
		api.POST("/sessions", sessionHandler.HandleCreateSession)
		api.DELETE("/sessions/:id", sessionHandler.HandleKillSession)

		api.GET("/settings", sessionHandler.HandleGetSettings)
		api.PUT("/settings", sessionHandler.HandlePutSettings)
	}

	r.GET("/ws/terminal/:id", bridgeHandler.HandleAttach)

	return r
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// headHandler returns a simple 200 OK for HEAD requests to check endpoint existence.
func headHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}

// noCacheMiddleware adds no-cache headers to all responses to prevent caching issues.
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Writer.Header().Set("Pragma", "no-cache")
		c.Writer.Header().Set("Expires", "0")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")

		c.Next()
	}
}

// sensitiveQueryParams contains query parameter names that should be redacted from logs.
var sensitiveQueryParams = []string{
	"api_key", "apikey", "api-key",
	"token", "access_token", "refresh_token", "auth_token", "bearer",
	"password", "passwd", "pwd",
	"secret", "client_secret", "api_secret",
	"key", "private_key", "encryption_key",
	"authorization", "auth",
	"credential", "credentials",
	"session", "session_id", "sessionid",
	"jwt",
}

// redactSecrets redacts sensitive information from a URL path with query string.
func redactSecrets(pathWithQuery string) string {
	parts := strings.SplitN(pathWithQuery, "?", 2)
	if len(parts) != 2 {
		return pathWithQuery
	}

	basePath := parts[0]
	queryString := parts[1]

	values, err := url.ParseQuery(queryString)
	if err != nil {
		return redactQueryPatterns(pathWithQuery)
	}

	hasSecrets := false
	for _, param := range sensitiveQueryParams {
		if values.Get(param) != "" {
			hasSecrets = true
			break
		}
		for key := range values {
			if strings.EqualFold(key, param) {
				hasSecrets = true
				break
			}
		}
	}

	if !hasSecrets {
		return pathWithQuery
	}

	for key := range values {
		for _, param := range sensitiveQueryParams {
			if strings.EqualFold(key, param) {
				values.Set(key, "[REDACTED]")
				break
			}
		}
	}

	return basePath + "?" + values.Encode()
}

// redactQueryPatterns redacts secrets using regex patterns when URL parsing fails.
func redactQueryPatterns(pathWithQuery string) string {
	result := pathWithQuery
	for _, param := range sensitiveQueryParams {
		pattern := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(param) + `=)[^&\s]*`)
		result = pattern.ReplaceAllString(result, "${1}[REDACTED]")
	}
	return result
}

func logrusMiddleware() gin.HandlerFunc {
	var skip map[string]struct{}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		sanitizedPath := redactSecrets(path)

		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		if _, ok := skip[path]; ok {
			return
		}

		if len(c.Errors) > 0 {
			logrus.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		} else {
			msg := fmt.Sprintf("%s %s %d %d %dms", c.Request.Method, sanitizedPath, statusCode, dataLength, latency)
			switch {
			case statusCode >= http.StatusInternalServerError:
				logrus.Error(msg)
			case statusCode >= http.StatusBadRequest:
				logrus.Error(msg)
			default:
				logrus.Info(msg)
			}
		}
	}
}
