package consistency

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookmark_MintedTokenIsLive(t *testing.T) {
	b := NewBookmarks("secret", 30*time.Second)
	token := b.Mint()
	assert.True(t, b.Live(token))
}

func TestBookmark_ExpiresAfterValidity(t *testing.T) {
	b := NewBookmarks("secret", 30*time.Second)

	minted := time.Now()
	b.now = func() time.Time { return minted }
	token := b.Mint()

	b.now = func() time.Time { return minted.Add(29 * time.Second) }
	assert.True(t, b.Live(token))

	b.now = func() time.Time { return minted.Add(31 * time.Second) }
	assert.False(t, b.Live(token))
}

func TestBookmark_RejectsTamperingAndGarbage(t *testing.T) {
	b := NewBookmarks("secret", 30*time.Second)
	token := b.Mint()

	ts, _, _ := strings.Cut(token, ".")

	assert.False(t, b.Live(""))
	assert.False(t, b.Live("not-a-token"))
	assert.False(t, b.Live(ts+".forged-signature"))

	other := NewBookmarks("different-secret", 30*time.Second)
	assert.False(t, other.Live(token), "a token signed under another secret is dead")
}

func TestBookmark_FutureTimestampIsDead(t *testing.T) {
	b := NewBookmarks("secret", 30*time.Second)

	minted := time.Now()
	b.now = func() time.Time { return minted.Add(time.Minute) }
	token := b.Mint()

	b.now = func() time.Time { return minted }
	assert.False(t, b.Live(token))
}

func TestWithConsistency(t *testing.T) {
	b := NewBookmarks("secret", 30*time.Second)

	token, err := WithConsistency(b, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, b.Live(token))

	token, err = WithConsistency(b, func() error { return errors.New("write failed") })
	assert.Error(t, err)
	assert.Empty(t, token, "a failed write mints nothing")
}
