// Package crypto seals calendar credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	formatV1  byte = 1
	keyIDSize      = 4
	keySize        = 32
)

var (
	// ErrNoKeys is returned when a keyring is built without keys.
	ErrNoKeys = errors.New("encryption key is empty")
	// ErrUnknownKey is returned for ciphertext sealed with a key that is no
	// longer in the keyring.
	ErrUnknownKey = errors.New("ciphertext sealed with unknown key")
	// ErrMalformed is returned for ciphertext that is not in keyring format.
	ErrMalformed = errors.New("malformed ciphertext")
)

type keyID [keyIDSize]byte

type sealingKey struct {
	id   keyID
	aead cipher.AEAD
}

// Keyring encrypts with its primary key and decrypts with any key it holds,
// so keys can be rotated without re-encrypting stored credentials.
//
// Sealed layout: version (1) | key id (4) | nonce (12) | AES-GCM ciphertext.
// The version and key id are authenticated as associated data.
type Keyring struct {
	primary *sealingKey
	keys    map[keyID]*sealingKey
}

// ParseKeyring builds a keyring from a comma-separated list of base64
// 32-byte keys. The first key is primary.
func ParseKeyring(encoded string) (*Keyring, error) {
	var keys []string
	for _, k := range strings.Split(encoded, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return NewKeyring(keys...)
}

// NewKeyring builds a keyring from base64 keys, primary first.
func NewKeyring(encodedKeys ...string) (*Keyring, error) {
	if len(encodedKeys) == 0 {
		return nil, ErrNoKeys
	}
	ring := &Keyring{keys: make(map[keyID]*sealingKey, len(encodedKeys))}
	for i, encoded := range encodedKeys {
		k, err := newSealingKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i+1, err)
		}
		if _, dup := ring.keys[k.id]; dup {
			return nil, fmt.Errorf("key %d: duplicate key", i+1)
		}
		ring.keys[k.id] = k
		if ring.primary == nil {
			ring.primary = k
		}
	}
	return ring, nil
}

func newSealingKey(encoded string) (*sealingKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes", keySize)
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	k := &sealingKey{aead: aead}
	copy(k.id[:], sum[:keyIDSize])
	return k, nil
}

// PrimaryKeyID returns the hex id of the key new ciphertext is sealed with.
func (r *Keyring) PrimaryKeyID() string {
	return fmt.Sprintf("%x", r.primary.id[:])
}

// Encrypt seals plaintext with the primary key.
func (r *Keyring) Encrypt(plaintext []byte) ([]byte, error) {
	k := r.primary
	header := make([]byte, 0, 1+keyIDSize+k.aead.NonceSize())
	header = append(header, formatV1)
	header = append(header, k.id[:]...)

	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := append(header, nonce...)
	return k.aead.Seal(out, nonce, plaintext, header[:1+keyIDSize]), nil
}

// Decrypt opens ciphertext sealed by any key in the ring.
func (r *Keyring) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 1+keyIDSize || ciphertext[0] != formatV1 {
		return nil, ErrMalformed
	}
	var id keyID
	copy(id[:], ciphertext[1:1+keyIDSize])
	k, ok := r.keys[id]
	if !ok {
		return nil, ErrUnknownKey
	}

	body := ciphertext[1+keyIDSize:]
	nonceSize := k.aead.NonceSize()
	if len(body) < nonceSize {
		return nil, ErrMalformed
	}
	plaintext, err := k.aead.Open(nil, body[:nonceSize], body[nonceSize:], ciphertext[:1+keyIDSize])
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}
