package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"turbotalk/internal/domain"
	"turbotalk/internal/repository"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too short")
	ErrEmailTaken         = errors.New("email already registered")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrInvalidRole        = errors.New("invalid role")
)

// IdentityProvider es el limite con el proveedor de identidades.
// Cualquier error es recuperable y se reporta como resultado.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
	CreateProfile(ctx context.Context, id, email string, role domain.Role) error
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
}

// AccountProvider implementa IdentityProvider sobre los repositorios locales.
type AccountProvider struct {
	logger   *zap.Logger
	users    repository.UserRepository
	profiles repository.ProfileRepository
}

func NewAccountProvider(logger *zap.Logger, users repository.UserRepository, profiles repository.ProfileRepository) *AccountProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountProvider{
		logger:   logger,
		users:    users,
		profiles: profiles,
	}
}

func (p *AccountProvider) SignUp(ctx context.Context, emailAddr, password string) (string, error) {
	if p.users == nil {
		return "", errors.New("account provider not configured")
	}
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return "", ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return user.ID, nil
}

func (p *AccountProvider) SignInWithPassword(ctx context.Context, emailAddr, password string) (string, error) {
	if p.users == nil {
		return "", errors.New("account provider not configured")
	}
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	user, err := p.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if user.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return user.ID, nil
}

func (p *AccountProvider) CreateProfile(ctx context.Context, id, emailAddr string, role domain.Role) error {
	if p.profiles == nil {
		return errors.New("account provider not configured")
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	return p.profiles.Create(ctx, domain.Profile{
		ID:        id,
		Email:     normalizeEmail(emailAddr),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
}

func (p *AccountProvider) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	if p.profiles == nil {
		return domain.Profile{}, errors.New("account provider not configured")
	}
	profile, err := p.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, ErrProfileNotFound
		}
		return domain.Profile{}, err
	}
	return profile, nil
}

// DemoAccount son las credenciales precargadas de la pantalla de login.
type DemoAccount struct {
	Email    string
	Password string
	Role     domain.Role
}

var DemoAccounts = []DemoAccount{
	{Email: "owner@example.com", Password: "ownerpass", Role: domain.RoleOwner},
	{Email: "customer@example.com", Password: "custpass", Role: domain.RoleCustomer},
}

// SeedDemoAccounts da de alta las cuentas demo; las existentes se ignoran.
func SeedDemoAccounts(ctx context.Context, logger *zap.Logger, provider IdentityProvider) error {
	for _, acc := range DemoAccounts {
		id, err := provider.SignUp(ctx, acc.Email, acc.Password)
		if errors.Is(err, ErrEmailTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", acc.Email, err)
		}
		if err := provider.CreateProfile(ctx, id, acc.Email, acc.Role); err != nil {
			return fmt.Errorf("seed profile %s: %w", acc.Email, err)
		}
		if logger != nil {
			logger.Info("demo account seeded", zap.String("email", acc.Email), zap.String("role", string(acc.Role)))
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
