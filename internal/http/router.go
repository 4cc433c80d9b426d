package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"turbotalk/internal/domain"
)

const (
	CustomerChatPath = "/chat/conversations"
	DemoChatPath     = "/dashboard/owner/chatbot/conversations"
)

// Handlers agrupa los handlers que monta el router.
type Handlers struct {
	Auth         *AuthHandler
	Dashboard    *DashboardHandler
	CustomerChat *ChatHandler
	DemoChat     *ChatHandler
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	sessions gin.HandlerFunc,
	h Handlers,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	app := r.Group("", sessions)

	auth := app.Group("/auth")
	auth.POST("/signup", h.Auth.SignUp)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/session", h.Auth.Session)
	app.GET("/routes/decide", h.Auth.DecideRoute)

	mountChat(app.Group(CustomerChatPath), h.CustomerChat)

	customer := app.Group("/dashboard/customer", RequireRole(domain.RoleCustomer))
	customer.GET("", h.Dashboard.Customer)

	owner := app.Group("/dashboard/owner", RequireRole(domain.RoleOwner))
	owner.GET("", h.Dashboard.Owner)
	mountChat(owner.Group("/chatbot/conversations"), h.DemoChat)

	return r
}

func mountChat(g *gin.RouterGroup, h *ChatHandler) {
	g.POST("", h.CreateConversation)
	g.GET("/:id", h.GetConversation)
	g.POST("/:id/messages", h.PostMessage)
	g.DELETE("/:id", h.DeleteConversation)
	g.GET("/:id/events", h.StreamEvents)
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
