// Package secret seals OAuth tokens before they are written to the database.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	prefix    = "sb1:"
	nonceSize = 24
)

var ErrMalformed = errors.New("malformed sealed value")

// Box encrypts short strings with NaCl secretbox. A Box with an empty key is a
// passthrough, which keeps local development usable without a key.
type Box struct {
	key     [32]byte
	enabled bool
}

func NewBox(key string) *Box {
	b := &Box{}
	if key != "" {
		b.key = sha256.Sum256([]byte(key))
		b.enabled = true
	}
	return b
}

func (b *Box) Seal(plain string) (string, error) {
	if !b.enabled || plain == "" {
		return plain, nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is so
// rows written before a key was configured stay readable.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if !b.enabled {
		return "", errors.New("sealed value found but no encryption key configured")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrMalformed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrMalformed
	}
	return string(plain), nil
}
