package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims SessionClaims, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           7,
		OrgID:            "org-1",
	}, testSecret)

	session, err := v.Verify(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, 7, session.UserID)
	assert.Equal(t, "org-1", session.OrgID)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		UserID:           7,
	}, testSecret)

	_, err := v.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, SessionClaims{UserID: 7}, []byte("other-secret"))

	_, err := v.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, SessionClaims{OrgID: "org-1"}, testSecret)

	_, err := v.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	_, err := v.Verify(context.Background(), "not-a-token")
	assert.Error(t, err)
}
