// Package unsubscribe issues and verifies stateless unsubscribe tokens.
//
// A token carries the contact ID and the issue time, signed with HMAC-SHA256.
// The signing key is derived from the configured secret with HKDF.
package unsubscribe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptySecret      = errors.New("empty unsubscribe secret")
	ErrMalformedToken   = errors.New("malformed unsubscribe token")
	ErrInvalidSignature = errors.New("invalid unsubscribe token signature")
	ErrTokenExpired     = errors.New("unsubscribe token expired")
)

const keyInfo = "outreach/unsubscribe/v1"

var encoding = base64.RawURLEncoding

type Signer struct {
	key []byte
	ttl time.Duration
}

// NewSigner derives the signing key from secret. A zero ttl means tokens never expire.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive unsubscribe key: %w", err)
	}

	return &Signer{
		key: key,
		ttl: ttl,
	}, nil
}

func (s *Signer) Issue(contactID uint64, issuedAt time.Time) string {
	payload := encoding.EncodeToString([]byte(fmt.Sprintf("%d:%d", contactID, issuedAt.Unix())))
	return payload + "." + encoding.EncodeToString(s.sign(payload))
}

// Verify checks the signature and expiry of token and returns the contact ID it carries.
func (s *Signer) Verify(token string, now time.Time) (uint64, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || payload == "" || sig == "" {
		return 0, ErrMalformedToken
	}

	gotSig, err := encoding.DecodeString(sig)
	if err != nil {
		return 0, ErrMalformedToken
	}

	if !hmac.Equal(gotSig, s.sign(payload)) {
		return 0, ErrInvalidSignature
	}

	raw, err := encoding.DecodeString(payload)
	if err != nil {
		return 0, ErrMalformedToken
	}

	idStr, tsStr, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, ErrMalformedToken
	}

	contactID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, ErrMalformedToken
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, ErrMalformedToken
	}

	if s.ttl > 0 && now.After(time.Unix(ts, 0).Add(s.ttl)) {
		return 0, ErrTokenExpired
	}

	return contactID, nil
}

func (s *Signer) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
