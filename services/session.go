package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// SessionService issues and validates refresh tokens. A token is
// "<session id>.<secret>"; only a bcrypt hash of the secret is stored.
type SessionService struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

func NewSessionService(db *gorm.DB, ttl time.Duration) *SessionService {
	return &SessionService{DB: db, TTL: ttl, Now: time.Now}
}

func splitRefreshToken(token string) (string, string, error) {
	sessionID, secret, ok := strings.Cut(token, ".")
	if !ok || sessionID == "" || secret == "" {
		return "", "", ErrInvalidRefreshToken
	}
	return sessionID, secret, nil
}

// Create opens a session and returns the refresh token handed to the client
func (s *SessionService) Create(ctx context.Context, userID uint) (string, *models.Session, error) {
	secret := uuid.NewString()
	hash, err := utils.HashPassword(secret)
	if err != nil {
		return "", nil, err
	}

	session := &models.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		RefreshTokenHash: hash,
		ExpiresAt:        s.Now().Add(s.TTL),
	}
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, err
	}
	return session.ID + "." + secret, session, nil
}

// Validate returns the session behind a refresh token. Expired sessions are
// deleted on sight.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.Session, error) {
	sessionID, secret, err := splitRefreshToken(token)
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := s.DB.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	if session.ExpiresAt.Before(s.Now()) {
		_ = s.Revoke(ctx, sessionID)
		return nil, ErrInvalidRefreshToken
	}
	if !utils.CheckPassword(session.RefreshTokenHash, secret) {
		return nil, ErrInvalidRefreshToken
	}
	return &session, nil
}

// Rotate validates a refresh token, revokes its session and opens a new one
func (s *SessionService) Rotate(ctx context.Context, token string) (string, *models.Session, error) {
	session, err := s.Validate(ctx, token)
	if err != nil {
		return "", nil, err
	}
	if err := s.Revoke(ctx, session.ID); err != nil {
		return "", nil, err
	}
	return s.Create(ctx, session.UserID)
}

func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	return s.DB.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.Session{}).Error
}

// RevokeToken revokes the session named by a refresh token without checking
// the secret, matching logout semantics.
func (s *SessionService) RevokeToken(ctx context.Context, token string) error {
	sessionID, _, _ := strings.Cut(token, ".")
	if sessionID == "" {
		return nil
	}
	return s.Revoke(ctx, sessionID)
}
