package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"turbotalk/internal/domain"
)

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// SessionSnapshot es la vista de solo lectura que consume el guard.
type SessionSnapshot struct {
	State   SessionState
	Session domain.Session
}

var (
	ErrSignupFailed    = errors.New("signup failed")
	ErrTooManyAttempts = errors.New("too many sign-in attempts")
)

// SignupError lleva el motivo legible del fallo de alta.
type SignupError struct {
	Reason string
	Err    error
}

func (e *SignupError) Error() string { return "signup failed: " + e.Reason }

func (e *SignupError) Is(target error) bool { return target == ErrSignupFailed }

func (e *SignupError) Unwrap() error { return e.Err }

// SessionStore mantiene la sesion de un contexto de navegacion.
// Las mutaciones pasan solo por Restore, SignIn, SignUp y SignOut y se serializan con writeMu.
type SessionStore struct {
	logger   *zap.Logger
	provider IdentityProvider
	tokens   *TokenService
	storage  StateStorage
	limiter  AttemptLimiter
	metrics  *Metrics

	writeMu     sync.Mutex
	restoreOnce sync.Once

	mu      sync.RWMutex
	state   SessionState
	session domain.Session
}

type SessionStoreDeps struct {
	Logger   *zap.Logger
	Provider IdentityProvider
	Tokens   *TokenService
	Storage  StateStorage
	Limiter  AttemptLimiter
	Metrics  *Metrics
}

func NewSessionStore(deps SessionStoreDeps) *SessionStore {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storage := deps.Storage
	if storage == nil {
		storage = NewMemoryStateStorage()
	}
	return &SessionStore{
		logger:   logger,
		provider: deps.Provider,
		tokens:   deps.Tokens,
		storage:  storage,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
	}
}

func (s *SessionStore) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{State: s.state, Session: s.session}
}

func (s *SessionStore) Current() (domain.Session, bool) {
	snap := s.Snapshot()
	return snap.Session, snap.State == StateAuthenticated
}

func (s *SessionStore) set(state SessionState, session domain.Session) {
	s.mu.Lock()
	s.state = state
	s.session = session
	s.mu.Unlock()
}

// Restore reconstruye la sesion desde el almacen. Cualquier registro
// incompleto o invalido se borra y se trata como "sin sesion".
func (s *SessionStore) Restore(ctx context.Context) (domain.Session, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session, found, err := s.readPersisted(ctx)
	if err != nil {
		s.logger.Warn("discarding persisted session", zap.Error(err))
		s.clearPersisted(ctx)
		s.set(StateUnauthenticated, domain.Session{})
		return domain.Session{}, false
	}
	if !found {
		s.set(StateUnauthenticated, domain.Session{})
		return domain.Session{}, false
	}
	s.set(StateAuthenticated, session)
	return session, true
}

// Revalidate baja la sesion a Unauthenticated cuando el token vencio o el
// registro persistido ya no esta. Si hay una mutacion en curso no hace nada:
// esa mutacion define el estado.
func (s *SessionStore) Revalidate(ctx context.Context) bool {
	if s.Snapshot().State != StateAuthenticated {
		return false
	}
	if !s.writeMu.TryLock() {
		return false
	}
	defer s.writeMu.Unlock()

	snap := s.Snapshot()
	if snap.State != StateAuthenticated {
		return false
	}
	reason := ""
	if s.tokens != nil {
		if _, err := s.tokens.Parse(snap.Session.Token); err != nil {
			reason = err.Error()
		}
	}
	if reason == "" {
		token, ok, err := s.storage.Get(ctx, storageKeyToken)
		switch {
		case err != nil:
			s.logger.Warn("revalidate session: storage read failed", zap.Error(err))
			return true
		case !ok || token != snap.Session.Token:
			reason = "persisted record gone"
		}
	}
	if reason == "" {
		return true
	}

	s.logger.Info("session expired",
		zap.String("user_id", snap.Session.Identity.ID),
		zap.String("reason", reason),
	)
	s.clearPersisted(ctx)
	s.set(StateUnauthenticated, domain.Session{})
	return false
}

var errCorruptSession = errors.New("corrupt persisted session")

func (s *SessionStore) readPersisted(ctx context.Context) (domain.Session, bool, error) {
	values := make(map[string]string, len(sessionStorageKeys))
	for _, key := range sessionStorageKeys {
		val, ok, err := s.storage.Get(ctx, key)
		if err != nil {
			return domain.Session{}, false, fmt.Errorf("read %s: %w", key, err)
		}
		if ok {
			values[key] = val
		}
	}
	if len(values) == 0 {
		return domain.Session{}, false, nil
	}
	if len(values) != len(sessionStorageKeys) {
		return domain.Session{}, false, fmt.Errorf("%w: partial record", errCorruptSession)
	}

	var identity domain.Identity
	if err := json.Unmarshal([]byte(values[storageKeyUser]), &identity); err != nil {
		return domain.Session{}, false, fmt.Errorf("%w: %v", errCorruptSession, err)
	}
	if strings.TrimSpace(identity.ID) == "" || strings.TrimSpace(identity.Email) == "" || identity.Role == "" {
		return domain.Session{}, false, fmt.Errorf("%w: identity missing fields", errCorruptSession)
	}
	role, ok := domain.ParseRole(values[storageKeyRole])
	if !ok || role != identity.Role {
		return domain.Session{}, false, fmt.Errorf("%w: role tag mismatch", errCorruptSession)
	}
	if s.tokens != nil {
		claims, err := s.tokens.Parse(values[storageKeyToken])
		if err != nil {
			return domain.Session{}, false, fmt.Errorf("%w: %v", errCorruptSession, err)
		}
		if claims.UserID != identity.ID || claims.Role != string(role) {
			return domain.Session{}, false, fmt.Errorf("%w: token does not match identity", errCorruptSession)
		}
	}
	return domain.Session{Identity: identity, Role: role, Token: values[storageKeyToken]}, true, nil
}

func (s *SessionStore) clearPersisted(ctx context.Context) {
	if err := s.storage.Delete(ctx, sessionStorageKeys...); err != nil {
		s.logger.Warn("clear persisted session failed", zap.Error(err))
	}
}

// SignIn verifica credenciales con el proveedor y carga el rol del perfil.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	email = normalizeEmail(email)
	if s.limiter != nil && !s.limiter.Allow(ctx, email) {
		s.metrics.authAttempt("signin", "rate_limited")
		return domain.Session{}, ErrTooManyAttempts
	}

	prev := s.Snapshot()
	s.set(StateAuthenticating, domain.Session{})
	fail := func(err error) (domain.Session, error) {
		s.set(prev.State, prev.Session)
		s.metrics.authAttempt("signin", "failure")
		return domain.Session{}, err
	}

	id, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return fail(ErrInvalidCredentials)
		}
		s.logger.Error("identity provider sign in failed", zap.Error(err))
		return fail(fmt.Errorf("sign in: %w", err))
	}
	profile, err := s.provider.GetProfile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return fail(fmt.Errorf("%w: profile missing", ErrInvalidCredentials))
		}
		s.logger.Error("profile lookup failed", zap.Error(err), zap.String("user_id", id))
		return fail(fmt.Errorf("sign in: %w", err))
	}

	session, err := s.establish(ctx, domain.Identity{ID: profile.ID, Email: profile.Email, Role: profile.Role})
	if err != nil {
		return fail(fmt.Errorf("sign in: %w", err))
	}
	if s.limiter != nil {
		s.limiter.Reset(ctx, email)
	}
	s.metrics.authAttempt("signin", "success")
	s.logger.Info("signed in", zap.String("user_id", session.Identity.ID), zap.String("role", string(session.Role)))
	return session, nil
}

// SignUp crea identidad y perfil. El rol queda fijo desde aca.
func (s *SessionStore) SignUp(ctx context.Context, email, password string, role domain.Role) (domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.Snapshot()
	fail := func(reason string, err error) (domain.Session, error) {
		s.set(prev.State, prev.Session)
		s.metrics.authAttempt("signup", "failure")
		return domain.Session{}, &SignupError{Reason: reason, Err: err}
	}
	if !role.Valid() {
		return fail("invalid role", ErrInvalidRole)
	}

	s.set(StateAuthenticating, domain.Session{})
	email = normalizeEmail(email)
	id, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		reason := signupReason(err)
		if reason == signupReasonGeneric {
			s.logger.Error("identity provider sign up failed", zap.Error(err))
		}
		return fail(reason, err)
	}
	if err := s.provider.CreateProfile(ctx, id, email, role); err != nil {
		s.logger.Error("create profile failed", zap.Error(err), zap.String("user_id", id))
		return fail("could not create profile", err)
	}

	session, err := s.establish(ctx, domain.Identity{ID: id, Email: email, Role: role})
	if err != nil {
		return fail("could not persist session", err)
	}
	s.metrics.authAttempt("signup", "success")
	s.logger.Info("signed up", zap.String("user_id", id), zap.String("role", string(role)))
	return session, nil
}

const signupReasonGeneric = "could not create account"

// signupReason solo expone motivos conocidos; el resto queda en el log.
func signupReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		return "invalid email"
	case errors.Is(err, ErrWeakPassword):
		return "password too short"
	case errors.Is(err, ErrEmailTaken):
		return "email already registered"
	case errors.Is(err, ErrInvalidRole):
		return "invalid role"
	default:
		return signupReasonGeneric
	}
}

// SignOut limpia memoria y almacen sin condiciones.
func (s *SessionStore) SignOut(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.clearPersisted(ctx)
	s.set(StateUnauthenticated, domain.Session{})
}

func (s *SessionStore) establish(ctx context.Context, identity domain.Identity) (domain.Session, error) {
	if s.tokens == nil {
		return domain.Session{}, errors.New("token service not configured")
	}
	token, err := s.tokens.Issue(identity)
	if err != nil {
		return domain.Session{}, err
	}
	record, err := json.Marshal(identity)
	if err != nil {
		return domain.Session{}, err
	}
	ttl := s.tokens.TTL()
	writes := []struct{ key, value string }{
		{storageKeyToken, token},
		{storageKeyRole, string(identity.Role)},
		{storageKeyUser, string(record)},
	}
	for _, w := range writes {
		if err := s.storage.Set(ctx, w.key, w.value, ttl); err != nil {
			s.clearPersisted(ctx)
			return domain.Session{}, fmt.Errorf("persist %s: %w", w.key, err)
		}
	}
	session := domain.Session{Identity: identity, Role: identity.Role, Token: token}
	s.set(StateAuthenticated, session)
	return session, nil
}
