package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"turbotalk/internal/domain"
	"turbotalk/internal/service"
)

const sseHeartbeatInterval = 15 * time.Second

// ChatHandler mantiene dependencias para las conversaciones de una persona.
type ChatHandler struct {
	logger  *zap.Logger
	chat    *service.ChatService
	persona service.Persona
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chat *service.ChatService, persona service.Persona) *ChatHandler {
	return &ChatHandler{
		logger:  logger.With(zap.String("persona", string(persona))),
		chat:    chat,
		persona: persona,
	}
}

type conversationView struct {
	ID        string           `json:"id"`
	Persona   service.Persona  `json:"persona"`
	Messages  []domain.Message `json:"messages"`
	Composing bool             `json:"composing"`
}

func newConversationView(conv *service.Conversation, messages []domain.Message) conversationView {
	if messages == nil {
		messages = []domain.Message{}
	}
	return conversationView{
		ID:        conv.ID(),
		Persona:   conv.Persona(),
		Messages:  messages,
		Composing: conv.Composing(),
	}
}

// CreateConversation maneja POST /conversations.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	conv, err := h.chat.Mount(h.persona, c.GetString(clientIDKey))
	if err != nil {
		h.logger.Error("mount conversation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": newConversationView(conv, conv.All())})
}

// GetConversation maneja GET /conversations/:id?after=N.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	after, ok := afterParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": newConversationView(conv, conv.Since(after))})
}

// PostMessage maneja POST /conversations/:id/messages.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, ok := h.conversation(c); !ok {
		return
	}

	msg, accepted, err := h.chat.Submit(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.logger.Error("submit message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not post message"})
		return
	}
	if !accepted {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// DeleteConversation maneja DELETE /conversations/:id.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if _, ok := h.conversation(c); !ok {
		return
	}
	if err := h.chat.Unmount(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// StreamEvents maneja GET /conversations/:id/events como Server-Sent Events.
// Emite "message" por cada mensaje nuevo, "composing" en cada cambio y "closed" al descartarse.
func (h *ChatHandler) StreamEvents(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	after, ok := afterParam(c)
	if !ok {
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	composing := false
	first := true
	for {
		// Tomar el canal antes de leer para no perder cambios intermedios.
		changed := conv.Changed()
		for _, msg := range conv.Since(after) {
			c.SSEvent("message", msg)
			after = msg.ID
		}
		if now := conv.Composing(); first || now != composing {
			composing = now
			c.SSEvent("composing", gin.H{"composing": composing})
		}
		first = false
		if conv.Closed() {
			c.SSEvent("closed", gin.H{"id": conv.ID()})
			c.Writer.Flush()
			return
		}
		c.Writer.Flush()

		select {
		case <-changed:
		case <-heartbeat.C:
			// Un stream abierto mantiene viva la conversacion.
			_, _ = h.chat.Get(conv.ID())
			c.SSEvent("heartbeat", gin.H{"ts": time.Now().UTC()})
			c.Writer.Flush()
		case <-ctx.Done():
			h.logger.Debug("event stream closed by client", zap.String("conversation_id", conv.ID()))
			return
		}
	}
}

// conversation busca la conversacion del path y verifica que sea de esta persona
// y de este cliente.
func (h *ChatHandler) conversation(c *gin.Context) (*service.Conversation, bool) {
	conv, err := h.chat.GetOwned(c.Param("id"), c.GetString(clientIDKey))
	if err != nil || conv.Persona() != h.persona {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}
	return conv, true
}

func afterParam(c *gin.Context) (int64, bool) {
	raw := c.Query("after")
	if raw == "" {
		return 0, true
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
		return 0, false
	}
	return after, true
}
