package server

import (
	"net/http"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the JazzCash routes behind request logging, panic recovery
// and, when storefront origins are configured, CORS.
func NewRouter(h *Handler, store config.Store, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logger.RequestLogger(log), gin.Recovery())

	if len(store.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     store.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", h.Health)
	r.GET("/jazzcash/method", h.PaymentMethod)
	r.POST("/orders/:id/jazzcash", h.Checkout)
	r.POST("/jazzcash/callback", h.Callback)

	return r
}

// NewHTTPServer wraps handler with the timeouts used in production.
func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
