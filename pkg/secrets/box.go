// Package secrets seals coupon codes and descriptions before they reach a Coupon Store and
// opens them on the way out. Stores only ever see ciphertext.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrInvalidCiphertext is returned when a sealed value cannot be decoded or authenticated.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// CouponSecret is the part of a coupon that only its owner, or a buyer whose code has been
// provisioned, may see.
type CouponSecret struct {
	Code       string `json:"code"`
	CVV        string `json:"cvv,omitempty"`
	CardExpiry string `json:"card_expiry,omitempty"`
}

// Empty reports whether no field is set.
func (s CouponSecret) Empty() bool {
	return s.Code == "" && s.CVV == "" && s.CardExpiry == ""
}

// Box seals and opens values with a single symmetric key.
type Box struct {
	key [keySize]byte
}

// NewBox creates a Box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", keySize, len(key))
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// NewBoxFromBase64 creates a Box from a standard base64 encoded key.
func NewBoxFromBase64(encoded string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret key: %w", err)
	}
	return NewBox(key)
}

// Seal encrypts plaintext. The empty string seals to the empty string.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidCiphertext
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// SealSecret encrypts a CouponSecret. An empty secret seals to the empty string.
func (b *Box) SealSecret(s CouponSecret) (string, error) {
	if s.Empty() {
		return "", nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal coupon secret: %w", err)
	}
	return b.Seal(string(raw))
}

// OpenSecret decrypts a value produced by SealSecret.
func (b *Box) OpenSecret(sealed string) (CouponSecret, error) {
	var s CouponSecret
	plain, err := b.Open(sealed)
	if err != nil || plain == "" {
		return s, err
	}
	if err := json.Unmarshal([]byte(plain), &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal coupon secret: %w", err)
	}
	return s, nil
}
