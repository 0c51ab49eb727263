// Package consistency owns read-your-writes bookmarks, snapshot publication
// and the privacy filter. Every path that makes a public page observable goes
// through here so the filtered snapshot is the only thing that ever reaches a
// cache.
package consistency

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bookmarks mints and checks opaque read-your-writes tokens. A token is the
// write's timestamp signed with the server secret; a reader presenting a live
// one is routed past the cache to the primary. Tokens are self-contained, no
// server-side state.
type Bookmarks struct {
	secret   []byte
	validity time.Duration

	now func() time.Time
}

func NewBookmarks(secret string, validity time.Duration) *Bookmarks {
	return &Bookmarks{
		secret:   []byte(secret),
		validity: validity,
		now:      time.Now,
	}
}

func (b *Bookmarks) sign(ts string) string {
	mac := hmac.New(sha256.New, b.secret)
	mac.Write([]byte(ts))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Mint returns a bookmark for a write that just happened.
func (b *Bookmarks) Mint() string {
	ts := strconv.FormatInt(b.now().UnixNano(), 10)
	return ts + "." + b.sign(ts)
}

// Live reports whether the token is authentic and still within the validity
// window. Anything else, including an empty or mangled token, degrades to an
// unconstrained read rather than an error.
func (b *Bookmarks) Live(token string) bool {
	ts, sig, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	if !hmac.Equal([]byte(b.sign(ts)), []byte(sig)) {
		return false
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := b.now().Sub(time.Unix(0, nanos))
	return age >= 0 && age <= b.validity
}

// WithConsistency runs a write and returns its bookmark. The caller
// propagates the bookmark to the response so the client can attach it to its
// next read.
func WithConsistency(b *Bookmarks, fn func() error) (string, error) {
	if err := fn(); err != nil {
		return "", fmt.Errorf("consistent write failed: %w", err)
	}
	return b.Mint(), nil
}
