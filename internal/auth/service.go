package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/avatar"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Config holds token settings.
type Config struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service manages accounts and their tokens.
type Service struct {
	store   Store
	cfg     Config
	avatars avatar.Uploader
	log     zerolog.Logger
	now     func() time.Time
	cost    int
}

// NewService creates an account service. A nil uploader disables avatars.
func NewService(store Store, cfg Config, avatars avatar.Uploader, log zerolog.Logger) *Service {
	if avatars == nil {
		avatars = avatar.Disabled{}
	}
	return &Service{store: store, cfg: cfg, avatars: avatars, log: log, now: time.Now, cost: bcrypt.DefaultCost}
}

// SignUpInput registers a new account.
type SignUpInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
}

// SignUp creates the account and signs it in.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (User, TokenPair, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, TokenPair{}, err
		}
		s.log.Error().Err(err).Str("email", email).Msg("create user failed")
		return User{}, TokenPair{}, fmt.Errorf("create user: %w", err)
	}
	tokens, err := s.issue(ctx, u)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	s.log.Info().Str("user", u.ID).Msg("user signed up")
	return u, tokens, nil
}

// SignIn checks the password and issues a token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		s.log.Error().Err(err).Msg("load user failed")
		return User{}, TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issue(ctx, *u)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	return *u, tokens, nil
}

// Refresh exchanges a live refresh token for a new pair and revokes the old one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	stored, err := s.liveRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := s.store.UserByID(ctx, stored.UserID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return TokenPair{}, ErrInvalidToken
	}
	revoked, err := s.store.RevokeRefreshToken(ctx, stored.Hash, s.now().UTC())
	if err != nil {
		s.log.Error().Err(err).Str("user", u.ID).Msg("revoke refresh token failed")
		return TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	// a concurrent refresh already spent this token
	if !revoked {
		return TokenPair{}, ErrInvalidToken
	}
	return s.issue(ctx, *u)
}

// SignOut revokes a refresh token. Signing out twice succeeds.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	claims, err := Parse(refreshToken, s.cfg.SigningKey, s.cfg.Issuer)
	if err != nil || claims.Kind != kindRefresh {
		return ErrInvalidToken
	}
	if _, err := s.store.RevokeRefreshToken(ctx, hashToken(refreshToken), s.now().UTC()); err != nil {
		s.log.Error().Err(err).Str("user", claims.Subject).Msg("revoke refresh token failed")
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Session returns the current user.
func (s *Service) Session(ctx context.Context, userID string) (User, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// UpdateInput changes profile fields; nil fields are kept.
type UpdateInput struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	FullName *string `json:"full_name"`
}

// UpdateUser applies the profile changes.
func (s *Service) UpdateUser(ctx context.Context, userID string, in UpdateInput) (User, error) {
	u, err := s.Session(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if in.Email != nil {
		if u.Email, err = normalizeEmail(*in.Email); err != nil {
			return User{}, err
		}
	}
	if in.Password != nil {
		if u.PasswordHash, err = s.hash(*in.Password); err != nil {
			return User{}, err
		}
	}
	if in.FullName != nil {
		u.FullName = strings.TrimSpace(*in.FullName)
	}
	return s.save(ctx, u)
}

// UploadAvatar stores the picture and records its URL on the user.
func (s *Service) UploadAvatar(ctx context.Context, userID string, obj avatar.Object) (User, error) {
	u, err := s.Session(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := avatar.Validate(&obj); err != nil {
		return User{}, err
	}
	obj.Key = "avatar-" + u.ID
	url, err := s.avatars.Upload(ctx, obj)
	if err != nil {
		if errors.Is(err, avatar.ErrDisabled) {
			return User{}, err
		}
		s.log.Error().Err(err).Str("user", u.ID).Msg("avatar upload failed")
		return User{}, fmt.Errorf("upload avatar: %w", err)
	}
	u.AvatarURL = url
	return s.save(ctx, u)
}

func (s *Service) save(ctx context.Context, u User) (User, error) {
	u.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrNotFound) {
			return User{}, err
		}
		s.log.Error().Err(err).Str("user", u.ID).Msg("update user failed")
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (s *Service) issue(ctx context.Context, u User) (TokenPair, error) {
	tokens, err := Issue(u.ID, u.Email, s.cfg.Issuer, s.cfg.SigningKey, s.now(), s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	err = s.store.SaveRefreshToken(ctx, RefreshToken{
		Hash:      hashToken(tokens.RefreshToken),
		UserID:    u.ID,
		ExpiresAt: tokens.RefreshExp,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user", u.ID).Msg("save refresh token failed")
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return tokens, nil
}

func (s *Service) liveRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	claims, err := Parse(token, s.cfg.SigningKey, s.cfg.Issuer)
	if err != nil || claims.Kind != kindRefresh {
		return nil, ErrInvalidToken
	}
	stored, err := s.store.RefreshToken(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if stored == nil || stored.RevokedAt != nil || !s.now().Before(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return stored, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ValidationError{Field: "email", Message: "invalid email address"}
	}
	return email, nil
}

// hashToken is the stored form of a refresh token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
