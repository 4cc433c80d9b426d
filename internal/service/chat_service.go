package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"turbotalk/internal/domain"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnknownPersona       = errors.New("unknown persona")
)

// ChatService mantiene las conversaciones montadas y conecta modelo, scheduler y resolver.
type ChatService struct {
	logger    *zap.Logger
	scheduler *ResponseScheduler
	personas  map[Persona]PersonaConfig
	now       func() time.Time

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

func NewChatService(logger *zap.Logger, scheduler *ResponseScheduler, personas map[Persona]PersonaConfig) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if personas == nil {
		personas = DefaultPersonas(nil)
	}
	return &ChatService{
		logger:        logger,
		scheduler:     scheduler,
		personas:      personas,
		now:           time.Now,
		conversations: make(map[string]*Conversation),
	}
}

// Mount crea una conversacion con los mensajes iniciales de la persona.
// owner identifica al contexto de navegacion que la usa.
func (s *ChatService) Mount(persona Persona, owner string) (*Conversation, error) {
	cfg, ok := s.personas[persona]
	if !ok {
		return nil, ErrUnknownPersona
	}
	conv := NewConversation(uuid.NewString(), persona)
	conv.owner = owner
	conv.touch(s.now())
	for _, seed := range cfg.seed {
		if _, err := conv.Append(seed.speaker, seed.text); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.conversations[conv.ID()] = conv
	s.mu.Unlock()

	s.logger.Info("conversation mounted",
		zap.String("conversation_id", conv.ID()),
		zap.String("persona", string(persona)),
		zap.String("owner", owner),
	)
	return conv, nil
}

func (s *ChatService) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrConversationNotFound
	}
	conv.touch(s.now())
	return conv, nil
}

// GetOwned es Get restringido al dueño; para cualquier otro la conversacion no existe.
func (s *ChatService) GetOwned(id, owner string) (*Conversation, error) {
	conv, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if conv.Owner() != owner {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Unmount descarta la conversacion; las respuestas pendientes se abandonan.
func (s *ChatService) Unmount(id string) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()
	if !ok {
		return ErrConversationNotFound
	}
	conv.Close()
	s.logger.Info("conversation unmounted", zap.String("conversation_id", id))
	return nil
}

// Submit agrega el mensaje del usuario y programa la respuesta.
// Con texto vacio (tras trim) no hace nada y devuelve false.
func (s *ChatService) Submit(ctx context.Context, id, text string) (domain.Message, bool, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, false, nil
	}
	conv, err := s.Get(id)
	if err != nil {
		return domain.Message{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, false, err
	}
	cfg := s.personas[conv.Persona()]

	msg, err := conv.Append(domain.SpeakerUser, text)
	if err != nil {
		if errors.Is(err, ErrConversationClosed) {
			return domain.Message{}, false, ErrConversationNotFound
		}
		return domain.Message{}, false, err
	}
	s.scheduler.Schedule(conv, cfg.Resolver, text)
	return msg, true, nil
}

// Sweep descarta las conversaciones sin accesos durante idle, como si su
// superficie se hubiera desmontado.
func (s *ChatService) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	var stale []*Conversation
	s.mu.Lock()
	for id, conv := range s.conversations {
		if conv.idleSince(cutoff) {
			delete(s.conversations, id)
			stale = append(stale, conv)
		}
	}
	s.mu.Unlock()

	for _, conv := range stale {
		conv.Close()
		s.logger.Info("idle conversation discarded", zap.String("conversation_id", conv.ID()))
	}
	return len(stale)
}

func (s *ChatService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Shutdown descarta todas las conversaciones montadas.
func (s *ChatService) Shutdown() {
	s.mu.Lock()
	convs := s.conversations
	s.conversations = make(map[string]*Conversation)
	s.mu.Unlock()
	for _, conv := range convs {
		conv.Close()
	}
}
