package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interbroker/bridge-api/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := auth.NewService("test-secret")
	service.RegisterAPICredentials("key-1", "secret-1")

	token, err := service.GenerateToken(auth.Credentials{APIKey: "key-1", APISecret: "secret-1"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "key-1", claims.ClientID)
	assert.Contains(t, claims.Permissions, "trade")
}

func TestGenerateTokenBadCredentials(t *testing.T) {
	service := auth.NewService("test-secret")
	service.RegisterAPICredentials("key-1", "secret-1")

	_, err := service.GenerateToken(auth.Credentials{APIKey: "key-1", APISecret: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := auth.NewService("secret-a")
	issuer.RegisterAPICredentials("key-1", "secret-1")
	token, err := issuer.GenerateToken(auth.Credentials{APIKey: "key-1", APISecret: "secret-1"})
	require.NoError(t, err)

	verifier := auth.NewService("secret-b")
	_, err = verifier.ValidateToken(token.Token)
	assert.Error(t, err)
}
