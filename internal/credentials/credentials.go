// Package credentials seals provider credentials at rest with NaCl secretbox.
package credentials

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrInvalidKey = errors.New("credentials key must be 32 bytes")
	ErrOpen       = errors.New("credentials cannot be opened")
	ErrMissing    = errors.New("credentials missing")
)

// Credentials are provider-specific fields, e.g. api_key, account_sid, instance_id.
type Credentials map[string]string

type Box struct {
	key [32]byte
}

func NewBox(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// Seal returns nonce || ciphertext.
func (b *Box) Seal(c Credentials) ([]byte, error) {
	plain, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &b.key), nil
}

func (b *Box) Open(sealed []byte) (Credentials, error) {
	if len(sealed) == 0 {
		return nil, ErrMissing
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrOpen
	}
	var c Credentials
	if err := json.Unmarshal(plain, &c); err != nil {
		return nil, ErrOpen
	}
	return c, nil
}
