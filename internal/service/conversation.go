package service

import (
	"errors"
	"sync"
	"time"

	"turbotalk/internal/domain"
)

var ErrConversationClosed = errors.New("conversation closed")

// Conversation es un log ordenado y append-only de mensajes.
// Los ids empiezan en 1 y nunca se reutilizan.
type Conversation struct {
	id      string
	persona Persona
	owner   string
	now     func() time.Time

	mu        sync.RWMutex
	messages  []domain.Message
	nextID    int64
	composing int
	closed    bool
	changed   chan struct{}
	pending   map[*PendingResponse]struct{}
	tail      *PendingResponse
	lastSeen  time.Time
}

func NewConversation(id string, persona Persona) *Conversation {
	return &Conversation{
		id:      id,
		persona: persona,
		now:     time.Now,
		nextID:  1,
		changed: make(chan struct{}),
		pending: make(map[*PendingResponse]struct{}),
	}
}

func (c *Conversation) ID() string       { return c.id }
func (c *Conversation) Persona() Persona { return c.persona }

// Owner es el contexto de navegacion que monto la conversacion.
func (c *Conversation) Owner() string { return c.owner }

func (c *Conversation) touch(at time.Time) {
	c.mu.Lock()
	if at.After(c.lastSeen) {
		c.lastSeen = at
	}
	c.mu.Unlock()
}

// idleSince indica si nadie la toco desde cutoff y no hay respuestas pendientes.
func (c *Conversation) idleSince(cutoff time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.composing == 0 && c.lastSeen.Before(cutoff)
}

// Append asigna id y timestamp y agrega el mensaje al final.
func (c *Conversation) Append(speaker domain.Speaker, text string) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.Message{}, ErrConversationClosed
	}
	msg := domain.Message{
		ID:        c.nextID,
		Speaker:   speaker,
		Text:      text,
		CreatedAt: c.now().UTC(),
	}
	c.nextID++
	c.messages = append(c.messages, msg)
	c.notifyLocked()
	return msg, nil
}

// All devuelve una copia; los llamadores no pueden mutar el log.
func (c *Conversation) All() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Since devuelve los mensajes con id mayor a afterID.
func (c *Conversation) Since(afterID int64) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Message
	for _, msg := range c.messages {
		if msg.ID > afterID {
			out = append(out, msg)
		}
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Composing es true mientras haya al menos una respuesta pendiente.
func (c *Conversation) Composing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.composing > 0
}

func (c *Conversation) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Changed devuelve un canal que se cierra en la proxima mutacion.
func (c *Conversation) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Close descarta la conversacion y abandona las respuestas pendientes.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := make([]*PendingResponse, 0, len(c.pending))
	for p := range c.pending {
		pending = append(pending, p)
	}
	c.pending = make(map[*PendingResponse]struct{})
	c.composing = 0
	c.notifyLocked()
	c.mu.Unlock()

	for _, p := range pending {
		p.Abandon()
	}
}

// track registra una respuesta pendiente y devuelve la anterior en la cola.
func (c *Conversation) track(p *PendingResponse) (*PendingResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	prev := c.tail
	c.tail = p
	c.pending[p] = struct{}{}
	c.composing++
	c.notifyLocked()
	return prev, true
}

func (c *Conversation) untrack(p *PendingResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[p]; !ok {
		return
	}
	delete(c.pending, p)
	if c.tail == p {
		c.tail = nil
	}
	if c.composing > 0 {
		c.composing--
	}
	c.notifyLocked()
}

func (c *Conversation) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
