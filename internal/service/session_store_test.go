package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"turbotalk/internal/domain"
)

type sessionFixture struct {
	provider *AccountProvider
	tokens   *TokenService
	storage  StateStorage
}

func newSessionFixture() *sessionFixture {
	return &sessionFixture{
		provider: newTestAccountProvider(),
		tokens:   NewTokenService("secret", time.Hour),
		storage:  NewMemoryStateStorage(),
	}
}

func (f *sessionFixture) store() *SessionStore {
	return NewSessionStore(SessionStoreDeps{
		Logger:   zap.NewNop(),
		Provider: f.provider,
		Tokens:   f.tokens,
		Storage:  f.storage,
	})
}

func TestSessionStore_SignUpSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()

	session, err := f.store().SignUp(ctx, "new@example.com", "secret1", domain.RoleOwner)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session.Role != domain.RoleOwner || session.Token == "" {
		t.Fatalf("unexpected session %+v", session)
	}

	restarted := f.store()
	restored, ok := restarted.Restore(ctx)
	if !ok {
		t.Fatalf("expected session after restart")
	}
	if restored.Role != domain.RoleOwner || restored.Identity.Email != "new@example.com" {
		t.Fatalf("expected same role and email, got %+v", restored)
	}
	if restarted.Snapshot().State != StateAuthenticated {
		t.Fatalf("expected authenticated state")
	}
}

func TestSessionStore_SignOutClearsStorage(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.store().SignIn(ctx, "owner@example.com", "ownerpass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	store := f.store()
	if _, ok := store.Restore(ctx); !ok {
		t.Fatalf("expected restored session")
	}
	store.SignOut(ctx)
	if _, ok := store.Current(); ok {
		t.Fatalf("expected no in-memory session after sign out")
	}
	if _, ok := store.Restore(ctx); ok {
		t.Fatalf("expected no session after sign out and restore")
	}
	for _, key := range sessionStorageKeys {
		if _, ok, _ := f.storage.Get(ctx, key); ok {
			t.Fatalf("expected key %s cleared", key)
		}
	}
}

func TestSessionStore_SignInRoleComesFromProfile(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}

	session, err := f.store().SignIn(ctx, " Customer@Example.com", "custpass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.Role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %q", session.Role)
	}
}

func TestSessionStore_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := f.store()

	if _, err := store.SignIn(ctx, "owner@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if store.Snapshot().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated after failed sign in")
	}
	if _, ok, _ := f.storage.Get(ctx, storageKeyToken); ok {
		t.Fatalf("expected nothing persisted")
	}
}

func TestSessionStore_SignInWithoutProfile(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if _, err := f.provider.SignUp(ctx, "orphan@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := f.store().SignIn(ctx, "orphan@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionStore_SignUpFailures(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	store := f.store()

	_, err := store.SignUp(ctx, "bad", "secret1", domain.RoleCustomer)
	var signupErr *SignupError
	if !errors.As(err, &signupErr) || !errors.Is(err, ErrSignupFailed) {
		t.Fatalf("expected SignupError, got %v", err)
	}
	if signupErr.Reason != "invalid email" {
		t.Fatalf("expected reason %q, got %q", "invalid email", signupErr.Reason)
	}

	if _, err := store.SignUp(ctx, "a@example.com", "secret1", domain.Role("admin")); !errors.Is(err, ErrSignupFailed) {
		t.Fatalf("expected ErrSignupFailed for invalid role, got %v", err)
	}
	if _, err := store.SignUp(ctx, "a@example.com", "secret1", domain.RoleCustomer); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := store.SignUp(ctx, "a@example.com", "secret1", domain.RoleOwner); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected wrapped ErrEmailTaken, got %v", err)
	}
	if session, ok := store.Current(); !ok || session.Role != domain.RoleCustomer {
		t.Fatalf("expected previous session kept after failed sign up, got %+v", session)
	}
}

func TestSessionStore_RestoreSelfHeals(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	validToken, err := f.tokens.Issue(domain.Identity{ID: "u1", Email: "a@example.com", Role: domain.RoleOwner})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	foreignToken, err := NewTokenService("other", time.Hour).Issue(domain.Identity{ID: "u1", Email: "a@example.com", Role: domain.RoleOwner})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := map[string]map[string]string{
		"malformed json": {storageKeyToken: validToken, storageKeyRole: "owner", storageKeyUser: "{not json"},
		"missing email":  {storageKeyToken: validToken, storageKeyRole: "owner", storageKeyUser: `{"id":"u1","role":"owner"}`},
		"partial record": {storageKeyToken: validToken, storageKeyUser: `{"id":"u1","email":"a@example.com","role":"owner"}`},
		"role mismatch":  {storageKeyToken: validToken, storageKeyRole: "customer", storageKeyUser: `{"id":"u1","email":"a@example.com","role":"customer"}`},
		"unknown role":   {storageKeyToken: validToken, storageKeyRole: "admin", storageKeyUser: `{"id":"u1","email":"a@example.com","role":"admin"}`},
		"foreign token":  {storageKeyToken: foreignToken, storageKeyRole: "owner", storageKeyUser: `{"id":"u1","email":"a@example.com","role":"owner"}`},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			storage := NewMemoryStateStorage()
			for k, v := range values {
				if err := storage.Set(ctx, k, v, 0); err != nil {
					t.Fatalf("set: %v", err)
				}
			}
			store := NewSessionStore(SessionStoreDeps{Provider: f.provider, Tokens: f.tokens, Storage: storage})
			if _, ok := store.Restore(ctx); ok {
				t.Fatalf("expected no session")
			}
			for _, key := range sessionStorageKeys {
				if _, ok, _ := storage.Get(ctx, key); ok {
					t.Fatalf("expected key %s cleared", key)
				}
			}
		})
	}

	t.Run("valid record", func(t *testing.T) {
		storage := NewMemoryStateStorage()
		_ = storage.Set(ctx, storageKeyToken, validToken, 0)
		_ = storage.Set(ctx, storageKeyRole, "owner", 0)
		_ = storage.Set(ctx, storageKeyUser, `{"id":"u1","email":"a@example.com","role":"owner"}`, 0)
		store := NewSessionStore(SessionStoreDeps{Provider: f.provider, Tokens: f.tokens, Storage: storage})
		if session, ok := store.Restore(ctx); !ok || session.Role != domain.RoleOwner {
			t.Fatalf("expected owner session, got %+v ok=%v", session, ok)
		}
	})
}

type blockingProvider struct {
	IdentityProvider
	entered chan struct{}
	release chan struct{}
}

func (b *blockingProvider) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	close(b.entered)
	<-b.release
	return b.IdentityProvider.SignInWithPassword(ctx, email, password)
}

func TestSessionStore_AuthenticatingDefersGuard(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	provider := &blockingProvider{IdentityProvider: f.provider, entered: make(chan struct{}), release: make(chan struct{})}
	store := NewSessionStore(SessionStoreDeps{Provider: provider, Tokens: f.tokens, Storage: f.storage})

	errCh := make(chan error, 1)
	go func() {
		_, err := store.SignIn(ctx, "owner@example.com", "ownerpass")
		errCh <- err
	}()

	<-provider.entered
	if got := Decide(store.Snapshot(), domain.RoleOwner); got.Kind != VerdictDefer {
		t.Fatalf("expected defer while authenticating, got %+v", got)
	}
	close(provider.release)
	if err := <-errCh; err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if got := Decide(store.Snapshot(), domain.RoleOwner); got.Kind != VerdictAllow {
		t.Fatalf("expected allow after sign in, got %+v", got)
	}
}

func TestSessionStore_SignInRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	store := NewSessionStore(SessionStoreDeps{
		Provider: f.provider,
		Tokens:   f.tokens,
		Storage:  f.storage,
		Limiter:  NewAttemptLimiter(time.Minute, 2),
	})

	for i := 0; i < 2; i++ {
		if _, err := store.SignIn(ctx, "x@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := store.SignIn(ctx, "x@example.com", "nope"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestSessionRegistry_RestoresPerClient(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	reg := NewSessionRegistry(zap.NewNop(), f.provider, f.tokens, f.storage, nil, nil)

	if _, err := reg.ForClient(ctx, "browser-a").SignIn(ctx, "owner@example.com", "ownerpass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, ok := reg.ForClient(ctx, "browser-b").Current(); ok {
		t.Fatalf("expected browser-b to stay signed out")
	}

	reg.Forget("browser-a")
	session, ok := reg.ForClient(ctx, "browser-a").Current()
	if !ok || session.Role != domain.RoleOwner {
		t.Fatalf("expected browser-a restored as owner, got %+v ok=%v", session, ok)
	}
}

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func TestSessionStore_RevalidateExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	clock := &fakeClock{at: time.Now()}
	f.tokens.now = clock.now
	store := f.store()

	if _, err := store.SignUp(ctx, "owner2@example.com", "secret1", domain.RoleOwner); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if !store.Revalidate(ctx) {
		t.Fatalf("expected fresh session to stay valid")
	}

	clock.advance(2 * time.Hour)
	if store.Revalidate(ctx) {
		t.Fatalf("expected expired session to be dropped")
	}
	if store.Snapshot().State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated after expiry")
	}
	if got := Decide(store.Snapshot(), domain.RoleOwner); got.Kind != VerdictRedirect || got.Path != LoginPath {
		t.Fatalf("expected redirect to login, got %+v", got)
	}
	for _, key := range sessionStorageKeys {
		if _, ok, _ := f.storage.Get(ctx, key); ok {
			t.Fatalf("expected key %s cleared", key)
		}
	}
}

func TestSessionStore_RevalidateSkipsWhileAuthenticating(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	provider := &blockingProvider{IdentityProvider: f.provider, entered: make(chan struct{}), release: make(chan struct{})}
	store := NewSessionStore(SessionStoreDeps{Provider: provider, Tokens: f.tokens, Storage: f.storage})

	errCh := make(chan error, 1)
	go func() {
		_, err := store.SignIn(ctx, "owner@example.com", "ownerpass")
		errCh <- err
	}()
	<-provider.entered
	if store.Revalidate(ctx) {
		t.Fatalf("expected no session while authenticating")
	}
	if store.Snapshot().State != StateAuthenticating {
		t.Fatalf("expected authenticating state untouched")
	}
	close(provider.release)
	if err := <-errCh; err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func TestSessionRegistry_ExpiredTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	clock := &fakeClock{at: time.Now()}
	f.tokens.now = clock.now
	reg := NewSessionRegistry(zap.NewNop(), f.provider, f.tokens, f.storage, nil, nil)

	if _, err := reg.ForClient(ctx, "browser-a").SignUp(ctx, "late@example.com", "secret1", domain.RoleOwner); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if got := Decide(reg.ForClient(ctx, "browser-a").Snapshot(), domain.RoleOwner); got.Kind != VerdictAllow {
		t.Fatalf("expected allow before expiry, got %+v", got)
	}

	clock.advance(f.tokens.TTL() + time.Minute)
	if got := Decide(reg.ForClient(ctx, "browser-a").Snapshot(), domain.RoleOwner); got.Kind != VerdictRedirect || got.Path != LoginPath {
		t.Fatalf("expected redirect to login after expiry, got %+v", got)
	}
}

func TestSessionRegistry_StorageExpirySignsOut(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	reg := NewSessionRegistry(zap.NewNop(), f.provider, f.tokens, f.storage, nil, nil)

	if _, err := reg.ForClient(ctx, "browser-a").SignUp(ctx, "short@example.com", "secret1", domain.RoleCustomer); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	// Simula la expiracion de las claves en el almacen (TTL de Redis o memoria).
	scoped := ScopeStorage(f.storage, "browser-a")
	if err := scoped.Delete(ctx, sessionStorageKeys...); err != nil {
		t.Fatalf("delete: %v", err)
	}

	store := reg.ForClient(ctx, "browser-a")
	if _, ok := store.Current(); ok {
		t.Fatalf("expected session dropped once persisted record expired")
	}
	if got := Decide(store.Snapshot(), domain.RoleCustomer); got.Kind != VerdictRedirect || got.Path != LoginPath {
		t.Fatalf("expected redirect to login, got %+v", got)
	}
}

func TestSessionRegistry_SweepForgetsIdleStores(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture()
	if err := SeedDemoAccounts(ctx, zap.NewNop(), f.provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clock := &fakeClock{at: time.Now()}
	reg := NewSessionRegistry(zap.NewNop(), f.provider, f.tokens, f.storage, nil, nil)
	reg.now = clock.now

	if _, err := reg.ForClient(ctx, "signed-in").SignIn(ctx, "owner@example.com", "ownerpass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	for i := 0; i < 50; i++ {
		reg.ForClient(ctx, "anon-"+strconv.Itoa(i))
	}
	clock.advance(20 * time.Minute)
	reg.ForClient(ctx, "active")

	if n := reg.Sweep(10 * time.Minute); n != 51 {
		t.Fatalf("expected 51 idle stores swept, got %d", n)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected only the active store kept, got %d", reg.Len())
	}
	if session, ok := reg.ForClient(ctx, "signed-in").Current(); !ok || session.Role != domain.RoleOwner {
		t.Fatalf("expected swept client restored from storage, got %+v ok=%v", session, ok)
	}
}

type failingSignUpProvider struct {
	IdentityProvider
}

func (failingSignUpProvider) SignUp(context.Context, string, string) (string, error) {
	return "", errors.New(`pq: relation "users" does not exist`)
}

func TestSessionStore_SignUpHidesInternalErrors(t *testing.T) {
	f := newSessionFixture()
	store := NewSessionStore(SessionStoreDeps{
		Provider: failingSignUpProvider{IdentityProvider: f.provider},
		Tokens:   f.tokens,
		Storage:  f.storage,
	})

	_, err := store.SignUp(context.Background(), "a@example.com", "secret1", domain.RoleOwner)
	var signupErr *SignupError
	if !errors.As(err, &signupErr) {
		t.Fatalf("expected SignupError, got %v", err)
	}
	if signupErr.Reason != signupReasonGeneric {
		t.Fatalf("expected generic reason, got %q", signupErr.Reason)
	}
}
