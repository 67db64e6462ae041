// Package auth resolves credentials and session tokens to an account.
// The ledger only ever sees the resulting core.AccountID.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"expensee/internal/core"
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type (
	Role string

	Account struct {
		ID           core.AccountID `json:"id"`
		Username     string         `json:"username"`
		Email        string         `json:"email"`
		Name         string         `json:"name"`
		Role         Role           `json:"role"`
		PasswordHash string         `json:"-"`
		CreatedAt    time.Time      `json:"createdAt"`
	}

	// ProfileUpdate carries the self-service fields of an account.
	ProfileUpdate struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Session struct {
		Token     string         `json:"token"`
		AccountID core.AccountID `json:"-"`
		CreatedAt time.Time      `json:"createdAt"`
		ExpiresAt time.Time      `json:"expiresAt"`
	}

	RegisterRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
		Role     Role   `json:"role,omitempty"`
	}

	// CredentialStore persists accounts and sessions.
	CredentialStore interface {
		// CreateAccount fails with ErrAccountExists when the username or
		// email is already registered.
		CreateAccount(ctx context.Context, a Account) error
		AccountByUsername(ctx context.Context, username string) (Account, error)
		AccountByID(ctx context.Context, id core.AccountID) (Account, error)
		// UpdateAccount stores email, name, role and password hash. It fails
		// with ErrAccountExists when the email belongs to another account.
		UpdateAccount(ctx context.Context, a Account) error
		// AllAccounts returns every registered account, oldest first.
		AllAccounts(ctx context.Context) ([]Account, error)
		CreateSession(ctx context.Context, s Session) error
		SessionByToken(ctx context.Context, token string) (Session, error)
		ExtendSession(ctx context.Context, token string, expiresAt time.Time) error
		DeleteSession(ctx context.Context, token string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("username or email already exists")
	ErrSessionExpired     = errors.New("session expired")
	ErrMissingFields      = errors.New("all fields are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrForbidden          = errors.New("admin role required")
)

func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }

// Service implements registration, login and token authentication.
type Service struct {
	store CredentialStore
	ttl   time.Duration
	cost  int
	now   func() time.Time
}

func NewService(store CredentialStore, ttl time.Duration, bcryptCost int) *Service {
	return &Service{store: store, ttl: ttl, cost: bcryptCost, now: time.Now}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Email == "" || req.Name == "" || req.Password == "" {
		return Account{}, &core.ValidationError{Field: "account", Err: ErrMissingFields}
	}
	if err := validateEmail(req.Email); err != nil {
		return Account{}, err
	}
	if err := validatePassword("password", req.Password); err != nil {
		return Account{}, err
	}
	role := req.Role
	if role != RoleAdmin {
		role = RoleUser
	}

	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	acct := Account{
		ID:           core.AccountID(uuid.NewString()),
		Username:     req.Username,
		Email:        req.Email,
		Name:         req.Name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account registered", "account_id", acct.ID, "username", acct.Username)
	return acct, nil
}

// UpdateProfile changes the display name and email of an account.
func (s *Service) UpdateProfile(ctx context.Context, id core.AccountID, upd ProfileUpdate) (Account, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Email = strings.TrimSpace(strings.ToLower(upd.Email))
	if upd.Name == "" || upd.Email == "" {
		return Account{}, &core.ValidationError{Field: "account", Err: ErrMissingFields}
	}
	if err := validateEmail(upd.Email); err != nil {
		return Account{}, err
	}
	acct, err := s.store.AccountByID(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("load account: %w", err)
	}
	acct.Name, acct.Email = upd.Name, upd.Email
	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	slog.InfoContext(ctx, "Profile updated", "account_id", acct.ID)
	return acct, nil
}

// ChangePassword replaces the password after checking the current one.
// Existing sessions stay valid.
func (s *Service) ChangePassword(ctx context.Context, id core.AccountID, current, next string) error {
	if current == "" || next == "" {
		return &core.ValidationError{Field: "password", Err: ErrMissingFields}
	}
	if err := validatePassword("newPassword", next); err != nil {
		return err
	}
	acct, err := s.store.AccountByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if !CheckPassword(acct.PasswordHash, current) {
		slog.WarnContext(ctx, "Password change rejected", "account_id", acct.ID)
		return &core.ValidationError{Field: "currentPassword", Err: ErrInvalidCredentials}
	}
	if acct.PasswordHash, err = HashPassword(next, s.cost); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	slog.InfoContext(ctx, "Password changed", "account_id", acct.ID)
	return nil
}

// ListAccounts returns all accounts. Only admins may call it.
func (s *Service) ListAccounts(ctx context.Context, caller Account) ([]Account, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	accts, err := s.store.AllAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accts, nil
}

// CreateAccount registers an account on behalf of an admin, who may grant
// the admin role.
func (s *Service) CreateAccount(ctx context.Context, caller Account, req RegisterRequest) (Account, error) {
	if !caller.IsAdmin() {
		return Account{}, ErrForbidden
	}
	acct, err := s.Register(ctx, req)
	if err != nil {
		return Account{}, err
	}
	slog.InfoContext(ctx, "Account created by admin", "account_id", acct.ID, "admin_id", caller.ID, "role", acct.Role)
	return acct, nil
}

// Login checks the password and opens a new session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, Account, error) {
	acct, err := s.store.AccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if core.IsNotFound(err) {
			return Session{}, Account{}, ErrInvalidCredentials
		}
		return Session{}, Account{}, fmt.Errorf("load account: %w", err)
	}
	if !CheckPassword(acct.PasswordHash, password) {
		slog.WarnContext(ctx, "Login failed", "username", acct.Username)
		return Session{}, Account{}, ErrInvalidCredentials
	}
	sess, err := s.openSession(ctx, acct.ID)
	if err != nil {
		return Session{}, Account{}, err
	}
	return sess, acct, nil
}

func (s *Service) openSession(ctx context.Context, id core.AccountID) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	now := s.now().UTC()
	sess := Session{Token: token, AccountID: id, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Authenticate resolves a bearer token. Sessions past half of their lifetime
// are extended so active users stay signed in.
func (s *Service) Authenticate(ctx context.Context, token string) (Account, error) {
	if token == "" {
		return Account{}, ErrInvalidCredentials
	}
	sess, err := s.store.SessionByToken(ctx, token)
	if err != nil {
		if core.IsNotFound(err) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, fmt.Errorf("load session: %w", err)
	}
	now := s.now().UTC()
	if !now.Before(sess.ExpiresAt) {
		_ = s.store.DeleteSession(ctx, token)
		return Account{}, ErrSessionExpired
	}
	if sess.ExpiresAt.Sub(now) < s.ttl/2 {
		if err := s.store.ExtendSession(ctx, token, now.Add(s.ttl)); err != nil {
			slog.WarnContext(ctx, "Failed to extend session", "error", err)
		}
	}
	acct, err := s.store.AccountByID(ctx, sess.AccountID)
	if err != nil {
		return Account{}, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.store.DeleteSession(ctx, token); err != nil && !core.IsNotFound(err) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes sessions that can no longer authenticate.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().UTC())
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return &core.ValidationError{Field: "email", Err: ErrInvalidEmail}
	}
	return nil
}

func validatePassword(field, pw string) error {
	if len(pw) < 8 {
		return &core.ValidationError{Field: field, Err: ErrWeakPassword}
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
