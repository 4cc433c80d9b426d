package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"turbotalk/internal/service"
)

// DashboardHandler responde las pantallas protegidas por rol.
type DashboardHandler struct {
	demoConversations string
}

// NewDashboardHandler crea una instancia de DashboardHandler con dependencias necesarias.
func NewDashboardHandler(demoConversations string) *DashboardHandler {
	return &DashboardHandler{demoConversations: demoConversations}
}

// Customer maneja GET /dashboard/customer.
func (h *DashboardHandler) Customer(c *gin.Context) {
	h.render(c, "customer", gin.H{"chat": CustomerChatPath})
}

// Owner maneja GET /dashboard/owner.
func (h *DashboardHandler) Owner(c *gin.Context) {
	h.render(c, "owner", gin.H{"chatbot_demo": h.demoConversations})
}

func (h *DashboardHandler) render(c *gin.Context, name string, links gin.H) {
	store, ok := GetSessionStore(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	session, _ := store.Current()
	c.JSON(http.StatusOK, gin.H{
		"dashboard": name,
		"user":      session.Identity,
		"links":     links,
		"logout":    "/auth/logout",
		"home":      service.DefaultPath(session.Role),
	})
}
