package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dm-service/internal/apperrors"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// ErrBadCredentials is returned by Login for an unknown user or a wrong password.
var ErrBadCredentials = fmt.Errorf("wrong username or password: %w", apperrors.ErrNotAuthorized)

// Session is the result of a successful login.
type Session struct {
	Token     string      `json:"access_token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// Accounts registers users and opens and closes their sessions.
type Accounts struct {
	users  repositories.UserRepository
	tokens *Authenticator
	logger *slog.Logger
	cost   int
}

func NewAccounts(users repositories.UserRepository, tokens *Authenticator, logger *slog.Logger) *Accounts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accounts{users: users, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost}
}

func (a *Accounts) Register(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, fmt.Errorf("register: username and password are required: %w", apperrors.ErrInvalidOperation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("register: %w", apperrors.ErrInvalidOperation)
	}
	u, err := a.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		return models.User{}, a.fail(ctx, "register", err)
	}
	return u, nil
}

func (a *Accounts) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := a.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperrors.ErrNotFound) {
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, a.fail(ctx, "login", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrBadCredentials
	}
	token, expiresAt, err := a.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, a.fail(ctx, "login", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

func (a *Accounts) Logout(ctx context.Context, token string) error {
	if err := a.tokens.Revoke(ctx, token); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return fmt.Errorf("logout: %w", apperrors.ErrInvalidOperation)
		}
		return a.fail(ctx, "logout", err)
	}
	return nil
}

func (a *Accounts) fail(ctx context.Context, op string, err error) error {
	if apperrors.IsDomain(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.logger.ErrorContext(ctx, "account failure", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, apperrors.ErrInternal)
}
