package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken_ValidToken(t *testing.T) {
	v := NewVerifier("secret-1")
	signed := signToken(t, "secret-1", &Claims{
		UserID:   "u1",
		BranchID: "branch-1",
		IsAdmin:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	claims, err := v.VerifyToken(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "branch-1", claims.BranchID)
	assert.True(t, claims.IsAdmin)
}

func TestVerifyToken_MissingHeader(t *testing.T) {
	v := NewVerifier("secret-1")

	_, err := v.VerifyToken(httptest.NewRequest("GET", "/", nil))
	assert.Error(t, err)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	v := NewVerifier("secret-1")
	signed := signToken(t, "another-secret", &Claims{UserID: "u1"})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	_, err := v.VerifyToken(r)
	assert.Error(t, err)
}

func TestVerifyToken_ExpiredToken(t *testing.T) {
	v := NewVerifier("secret-1")
	signed := signToken(t, "secret-1", &Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	_, err := v.VerifyToken(r)
	assert.Error(t, err)
}

func TestVerifyToken_MissingUserID(t *testing.T) {
	v := NewVerifier("secret-1")
	signed := signToken(t, "secret-1", &Claims{BranchID: "branch-1"})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	_, err := v.VerifyToken(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_id")
}

func TestVerifyToken_RejectsNonHMACAlgorithm(t *testing.T) {
	v := NewVerifier("secret-1")
	// alg=none не проходит проверку метода подписи
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	_, err = v.VerifyToken(r)
	assert.Error(t, err)
}
