// Package secret seals OAuth tokens before they are written to the database.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

var ErrNoKey = errors.New("secret: ENCRYPTION_KEY is not set")

type Box struct{ aead cipher.AEAD }

// New derives a 256-bit key from passphrase with scrypt. An empty passphrase
// yields a Box whose Seal and Open always fail with ErrNoKey.
func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return &Box{}, nil
	}
	key, err := scrypt.Key([]byte(passphrase), []byte("reviewdesk/token-box"), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

func (b *Box) Seal(plain string) (string, error) {
	if b.aead == nil {
		return "", ErrNoKey
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := b.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (b *Box) Open(sealed string) (string, error) {
	if b.aead == nil {
		return "", ErrNoKey
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("secret: sealed token too short")
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plain), nil
}
