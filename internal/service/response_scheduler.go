package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"turbotalk/internal/domain"
)

// DefaultResponseDelay emula la latencia de un agente humano.
const DefaultResponseDelay = 1500 * time.Millisecond

// PendingResponse es el handle de una respuesta programada.
type PendingResponse struct {
	abandon chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newPendingResponse() *PendingResponse {
	return &PendingResponse{
		abandon: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Abandon cancela la respuesta. Es idempotente y nunca falla.
func (p *PendingResponse) Abandon() {
	p.once.Do(func() { close(p.abandon) })
}

// Done se cierra cuando la respuesta se agrego o fue abandonada.
func (p *PendingResponse) Done() <-chan struct{} {
	return p.done
}

func (p *PendingResponse) abandoned() bool {
	select {
	case <-p.abandon:
		return true
	default:
		return false
	}
}

// ResponseScheduler agrega la respuesta del asistente despues de un delay fijo
// sin bloquear al llamador. Las respuestas de una conversacion se encadenan
// para llegar en el orden en que se enviaron los mensajes.
type ResponseScheduler struct {
	delay   time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

func NewResponseScheduler(delay time.Duration, logger *zap.Logger, metrics *Metrics) *ResponseScheduler {
	if delay < 0 {
		delay = DefaultResponseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseScheduler{delay: delay, logger: logger, metrics: metrics}
}

func (s *ResponseScheduler) Delay() time.Duration { return s.delay }

func (s *ResponseScheduler) Schedule(conv *Conversation, resolver *IntentResolver, userText string) *PendingResponse {
	p := newPendingResponse()
	prev, ok := conv.track(p)
	if !ok {
		p.Abandon()
		close(p.done)
		return p
	}
	s.metrics.responseScheduled()
	go s.run(conv, resolver, userText, p, prev)
	return p
}

func (s *ResponseScheduler) run(conv *Conversation, resolver *IntentResolver, userText string, p, prev *PendingResponse) {
	abandoned := true
	defer close(p.done)
	defer func() { s.metrics.responseFinished(abandoned) }()
	defer conv.untrack(p)

	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.abandon:
		s.logger.Debug("scheduled response abandoned", zap.String("conversation_id", conv.ID()))
		return
	}

	if prev != nil {
		select {
		case <-prev.Done():
		case <-p.abandon:
			return
		}
	}
	if p.abandoned() {
		return
	}

	rule := resolver.Classify(userText)
	msg, err := conv.Append(domain.SpeakerAssistant, rule.Response)
	if err != nil {
		s.logger.Debug("conversation gone before reply", zap.String("conversation_id", conv.ID()))
		return
	}
	abandoned = false
	s.metrics.intentMatched(conv.Persona(), rule.Name)
	s.logger.Info("assistant replied",
		zap.String("conversation_id", conv.ID()),
		zap.Int64("message_id", msg.ID),
		zap.String("intent", rule.Name),
	)
}
