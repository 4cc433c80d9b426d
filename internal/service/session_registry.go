package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionRegistry entrega un SessionStore por contexto de navegacion.
// Cada store se restaura desde el almacen la primera vez que se ve al cliente
// y se revalida en cada acceso posterior.
type SessionRegistry struct {
	logger   *zap.Logger
	provider IdentityProvider
	tokens   *TokenService
	storage  StateStorage
	limiter  AttemptLimiter
	metrics  *Metrics
	now      func() time.Time

	mu     sync.Mutex
	stores map[string]*registryEntry
}

type registryEntry struct {
	store    *SessionStore
	lastSeen time.Time
}

func NewSessionRegistry(logger *zap.Logger, provider IdentityProvider, tokens *TokenService, storage StateStorage, limiter AttemptLimiter, metrics *Metrics) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storage == nil {
		storage = NewMemoryStateStorage()
	}
	return &SessionRegistry{
		logger:   logger,
		provider: provider,
		tokens:   tokens,
		storage:  storage,
		limiter:  limiter,
		metrics:  metrics,
		now:      time.Now,
		stores:   make(map[string]*registryEntry),
	}
}

func (r *SessionRegistry) ForClient(ctx context.Context, clientID string) *SessionStore {
	r.mu.Lock()
	entry, ok := r.stores[clientID]
	if !ok {
		entry = &registryEntry{store: r.newStore(clientID)}
		r.stores[clientID] = entry
	}
	entry.lastSeen = r.now()
	store := entry.store
	r.mu.Unlock()

	first := false
	store.restoreOnce.Do(func() {
		first = true
		if _, restored := store.Restore(ctx); restored {
			r.logger.Debug("session restored", zap.String("client_id", clientID))
		}
	})
	if !first {
		store.Revalidate(ctx)
	}
	return store
}

// Forget descarta el store en memoria; el registro persistido queda intacto.
func (r *SessionRegistry) Forget(clientID string) {
	r.mu.Lock()
	r.forgetLocked(clientID)
	r.mu.Unlock()
}

func (r *SessionRegistry) forgetLocked(clientID string) {
	delete(r.stores, clientID)
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Sweep olvida los stores sin accesos durante idle. Un cliente que vuelve
// se restaura desde el almacen.
func (r *SessionRegistry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, entry := range r.stores {
		if entry.lastSeen.Before(cutoff) {
			r.forgetLocked(id)
			n++
		}
	}
	return n
}

func (r *SessionRegistry) newStore(clientID string) *SessionStore {
	return NewSessionStore(SessionStoreDeps{
		Logger:   r.logger.With(zap.String("client_id", clientID)),
		Provider: r.provider,
		Tokens:   r.tokens,
		Storage:  ScopeStorage(r.storage, clientID),
		Limiter:  r.limiter,
		Metrics:  r.metrics,
	})
}
