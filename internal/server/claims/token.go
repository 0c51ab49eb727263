// Package claims binds anonymous uploads to authenticated owners exactly
// once, via a signed, time-boxed claim-check token.
package claims

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/resumepress/internal/common"
)

// uploadClaims is the signed content of a claim-check token. The server
// never trusts a storage key that did not come out of a valid signature.
type uploadClaims struct {
	jwt.RegisteredClaims
	StorageKey  string `json:"sk"`
	ContentHash string `json:"ch"`
}

// TokenIssuer mints and verifies claim-check tokens (HS256).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue signs a token over the anonymous storage key and content hash.
// The token expires after the configured window and is then unusable even
// if never claimed.
func (i *TokenIssuer) Issue(storageKey, contentHash string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, uploadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
		},
		StorageKey:  storageKey,
		ContentHash: contentHash,
	})
	return token.SignedString(i.secret)
}

// Verify checks signature and expiry and returns the embedded storage key
// and content hash. Every failure mode maps to common.ErrInvalidToken; the
// client's only recourse is to re-upload.
func (i *TokenIssuer) Verify(tokenString string) (storageKey, contentHash string, err error) {
	claims := &uploadClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", errors.Join(common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.StorageKey == "" || claims.ContentHash == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.StorageKey, claims.ContentHash, nil
}
