package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oryxcrm/branchgate/internal/models"
)

// SessionClaims is the payload of a session reference token.
type SessionClaims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	BranchID  string `json:"branch_id"`
	Superuser bool   `json:"superuser,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and validates session reference tokens for allowed
// logins. Session lifecycle beyond issuance (refresh, revocation) lives in
// the surrounding platform, not in the access engine.
type SessionIssuer struct {
	secret string
	expiry time.Duration
}

func NewSessionIssuer(secret string, expiry time.Duration) *SessionIssuer {
	return &SessionIssuer{
		secret: secret,
		expiry: expiry,
	}
}

// Issue creates a signed session token for an allowed user.
func (si *SessionIssuer) Issue(user *models.User) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID:    user.ID,
		Username:  user.Username,
		BranchID:  user.BranchID,
		Superuser: user.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(si.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(si.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a session token.
func (si *SessionIssuer) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(si.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session claims")
	}

	return claims, nil
}
