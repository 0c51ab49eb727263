package claims

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/resumepress/internal/common"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secretKey"), 30*time.Minute)

	token, err := issuer.Issue("uploads/anon/k1", "h1")
	require.NoError(t, err)

	key, hash, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uploads/anon/k1", key)
	assert.Equal(t, "h1", hash)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secretKey"), -time.Minute)

	token, err := issuer.Issue("uploads/anon/k1", "h1")
	require.NoError(t, err)

	_, _, err = issuer.Verify(token)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secretKey"), time.Minute)
	other := NewTokenIssuer([]byte("otherKey"), time.Minute)

	token, err := issuer.Issue("uploads/anon/k1", "h1")
	require.NoError(t, err)

	_, _, err = other.Verify(token)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secretKey"), time.Minute)

	_, _, err := issuer.Verify("not.a.token")
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}
