package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	purposeAccess        = "access"
	purposePasswordReset = "password-reset"
)

var (
	// ErrInvalidToken covers tampered, expired, and wrong-purpose tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

type claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Manager issues and verifies the two token kinds the service needs: bearer
// access tokens for logged-in users and time-boxed password-reset tokens.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
	resetTTL  time.Duration
}

func NewManager(secret string, accessTTL, resetTTL time.Duration) *Manager {
	return &Manager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		resetTTL:  resetTTL,
	}
}

// IssueAccess signs an access token carrying the user id as subject.
func (m *Manager) IssueAccess(userID int64) (string, error) {
	return m.sign(strconv.FormatInt(userID, 10), purposeAccess, m.accessTTL)
}

// ParseAccess verifies an access token and returns the user id it names.
func (m *Manager) ParseAccess(tokenString string) (int64, error) {
	subject, err := m.verify(tokenString, purposeAccess)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// IssueReset signs a password-reset token carrying the account email as
// subject. It expires after the configured reset TTL (one hour by default).
func (m *Manager) IssueReset(email string) (string, error) {
	return m.sign(email, purposePasswordReset, m.resetTTL)
}

// VerifyReset checks a reset token and returns the email it was issued for.
// Expired, tampered, and wrong-purpose tokens all fail with ErrInvalidToken.
func (m *Manager) VerifyReset(tokenString string) (string, error) {
	return m.verify(tokenString, purposePasswordReset)
}

func (m *Manager) sign(subject, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := &claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (m *Manager) verify(tokenString, purpose string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if c.Purpose != purpose {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
