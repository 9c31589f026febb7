package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	SetSecret("test-secret")

	token, err := Sign("user-1", "session-1", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	SetSecret("test-secret")

	expired, err := Sign("user-1", "s", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired)
	assert.Error(t, err)

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{UserID: "user-1"})
	signed, err := foreign.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = Parse(signed)
	assert.Error(t, err)

	_, err = Parse("not-a-token")
	assert.Error(t, err)
}
