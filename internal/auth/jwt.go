// Package auth issues and verifies the JWT credentials that back both
// the REST middleware and the websocket authenticate handshake.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMissing is returned when no token was supplied at all.
	ErrTokenMissing = errors.New("no token provided")

	// ErrTokenInvalid is returned for malformed, expired, or tampered
	// tokens. The underlying parse error is wrapped for logging but the
	// distinction is never surfaced to clients.
	ErrTokenInvalid = errors.New("invalid token")
)

// Principal is the verified identity bound to a session. Both fields
// come from verified token claims, never from client-supplied payloads.
type Principal struct {
	UserID      uuid.UUID
	DisplayName string
}

// Claims is the payload inside every token. It embeds the registered
// claims so expiry and issuer handling come from the library.
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 token for a user.
func GenerateToken(userID uuid.UUID, username, displayName, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "ripplechat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verifier validates bearer tokens against the process-wide signing
// key. It holds no mutable state; Verify is safe to call concurrently
// and repeatedly.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the token's signature and expiry and returns the
// Principal carried in its claims. It fails with ErrTokenMissing for an
// empty token and ErrTokenInvalid for everything else that is wrong.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Accept only HMAC. A token signed with "none" or an
			// asymmetric method is rejected before signature checking,
			// which closes the algorithm-confusion hole.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(v.secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &Principal{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
	}, nil
}
