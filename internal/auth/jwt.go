package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// --- Context Keys ---

// contextKey is a custom type used for context keys to avoid collisions.
type contextKey string

const sessionKey contextKey = "session"

const issuer = "wolf-backend"

// ErrInvalidToken is returned for malformed, badly signed or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// --- JWT Claims ---

// CustomClaims includes standard JWT claims plus the user id.
type CustomClaims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// NewAccessToken generates a signed HS256 access token and returns its expiry.
func NewAccessToken(userID uuid.UUID, jwtSecret string, expiration time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(expiration)
	claims := CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signedToken, expiresAt, nil
}

// ParseAccessToken validates tokenString and returns the session it carries.
func ParseAccessToken(tokenString, jwtSecret string) (*Session, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	session := &Session{UserID: claims.UserID, AccessToken: tokenString}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
