package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:     "secret",
		Issuer:     "shesecure",
		Expiration: time.Hour,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := jwtConfig()

	token, err := GenerateToken(cfg, "u1", "counselor")
	require.NoError(t, err)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "counselor", claims.Role)
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	cfg := jwtConfig()
	other := cfg
	other.Issuer = "someone-else"

	token, err := GenerateToken(other, "u1", "user")
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := jwtConfig()
	cfg.Expiration = -time.Minute

	token, err := GenerateToken(cfg, "u1", "user")
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	assert.Error(t, err)
}
