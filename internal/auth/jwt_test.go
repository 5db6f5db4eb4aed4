package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-key"

func TestVerifyValidToken(t *testing.T) {
	req := require.New(t)
	userID := uuid.New()

	token, err := GenerateToken(userID, "alice", "Alice", testSecret, time.Hour)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	principal, err := verifier.Verify(token)
	req.NoError(err)
	req.Equal(userID, principal.UserID)
	req.Equal("Alice", principal.DisplayName)
}

func TestVerifySubjectMatchesUserID(t *testing.T) {
	req := require.New(t)
	userID := uuid.New()

	token, err := GenerateToken(userID, "alice", "Alice", testSecret, time.Hour)
	req.NoError(err)

	// The registered subject claim carries the same identity as the
	// custom user_id claim.
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	req.NoError(err)
	claims := parsed.Claims.(*Claims)
	req.Equal(userID.String(), claims.Subject)
	req.Equal(userID, claims.UserID)
}

func TestVerifyMissingToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	_, err := verifier.Verify("")
	require.ErrorIs(t, err, ErrTokenMissing)
}

func TestVerifyTamperedToken(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(uuid.New(), "alice", "Alice", testSecret, time.Hour)
	req.NoError(err)

	// Flip a character in the signature segment.
	tampered := token[:len(token)-2] + "xx"

	verifier := NewVerifier(testSecret)
	_, err = verifier.Verify(tampered)
	req.ErrorIs(err, ErrTokenInvalid)
}

func TestVerifyExpiredToken(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(uuid.New(), "alice", "Alice", testSecret, -time.Minute)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	_, err = verifier.Verify(token)
	req.ErrorIs(err, ErrTokenInvalid)
}

func TestVerifyWrongSecret(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(uuid.New(), "alice", "Alice", "other-key", time.Hour)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	_, err = verifier.Verify(token)
	req.ErrorIs(err, ErrTokenInvalid)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	req := require.New(t)

	// A token asserting alg=none must fail before any claim is
	// trusted.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:   uuid.New(),
		Username: "mallory",
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	verifier := NewVerifier(testSecret)
	_, err = verifier.Verify(token)
	req.ErrorIs(err, ErrTokenInvalid)
}
