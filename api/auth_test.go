package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestParseAndValidateJWT(t *testing.T) {
	userID := uuid.New()

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, Claims{
			Username: "alice",
			IsAdmin:  true,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		claims, err := ParseAndValidateJWT(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
		assert.True(t, claims.IsAdmin)
		assert.Equal(t, userID.String(), claims.Subject)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})

		_, err := ParseAndValidateJWT(token, testSecret)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		_, err := ParseAndValidateJWT(token, "another-secret")
		assert.Error(t, err)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS512, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		// HS512也是HMAC家族，仍然被接受
		_, err := ParseAndValidateJWT(token, testSecret)
		assert.NoError(t, err)

		// 但非HMAC的演算法宣告一律拒絕
		malformed := "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9." +
			"eyJzdWIiOiIxMjM0NTY3ODkwIn0." +
			"invalid-signature"
		_, err = ParseAndValidateJWT(malformed, testSecret)
		assert.Error(t, err)
	})
}
