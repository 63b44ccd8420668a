package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoCipher is returned when credentials must be sealed but no
// encryption key is configured.
var ErrNoCipher = errors.New("credentials cipher not configured")

// Cipher encrypts credential blobs at rest.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Credentials are the secrets needed to reach one calendar. OAuth providers
// use the token fields; CalDAV uses username and password.
type Credentials struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Username     string    `json:"username,omitempty"`
	Password     string    `json:"password,omitempty"`
}

// IsZero reports whether no secret is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// Token converts OAuth fields for use with an oauth2.Config.
func (c Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// CredentialSealer converts credentials to and from the sealed blob stored
// on a ConnectedCalendar.
type CredentialSealer struct {
	cipher Cipher
}

// NewCredentialSealer creates a sealer. cipher may be nil, in which case
// only empty credentials can be sealed.
func NewCredentialSealer(cipher Cipher) *CredentialSealer {
	return &CredentialSealer{cipher: cipher}
}

// Seal encrypts creds. Empty credentials seal to nil.
func (s *CredentialSealer) Seal(creds Credentials) ([]byte, error) {
	if creds.IsZero() {
		return nil, nil
	}
	if s.cipher == nil {
		return nil, ErrNoCipher
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}
	return sealed, nil
}

// Open decrypts a sealed blob. A nil blob opens to empty credentials.
func (s *CredentialSealer) Open(sealed []byte) (Credentials, error) {
	var creds Credentials
	if len(sealed) == 0 {
		return creds, nil
	}
	if s.cipher == nil {
		return creds, ErrNoCipher
	}
	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return creds, fmt.Errorf("decrypt credentials: %w", err)
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}
