// Package vault encrypts tenant provider credentials at rest.
//
// The current format authenticates the ciphertext:
//
//	hex(salt):hex(nonce):hex(tag):hex(ciphertext)
//
// with a per-call random salt, scrypt key derivation, and AES-256-GCM.
// Values written before the format change have only two segments
// (hex(iv):hex(ciphertext)), a fixed derivation salt, and unauthenticated
// AES-256-CTR; Decrypt still accepts them so existing configs keep working.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrNoSecret means the vault was constructed without a master secret.
	ErrNoSecret = errors.New("vault: master secret is not configured")

	// ErrCiphertext means the stored value is corrupt, truncated, or was
	// tampered with.
	ErrCiphertext = errors.New("vault: ciphertext is invalid")
)

const (
	saltLen  = 16
	nonceLen = 12
	tagLen   = 16
	keyLen   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// legacySalt is the fixed derivation salt of the two-segment format.
var legacySalt = []byte("chatgate-static-salt")

// Vault derives per-value keys from a long-lived master secret.
// Encrypt and Decrypt are pure and safe for concurrent use.
type Vault struct {
	secret []byte
}

// New creates a Vault. The master secret must be non-empty.
func New(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrNoSecret
	}
	return &Vault{secret: []byte(masterSecret)}, nil
}

// deriveKey stretches the master secret with scrypt.
func (v *Vault) deriveKey(salt []byte) ([]byte, error) {
	key, err := scrypt.Key(v.secret, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext into the four-segment authenticated format.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens a value in either the four-segment authenticated format or
// the legacy two-segment format.
func (v *Vault) Decrypt(serialized string) (string, error) {
	parts := strings.Split(serialized, ":")
	switch len(parts) {
	case 2:
		return v.decryptLegacy(parts)
	case 4:
		return v.decryptGCM(parts)
	default:
		return "", fmt.Errorf("%w: expected 2 or 4 segments, got %d", ErrCiphertext, len(parts))
	}
}

func (v *Vault) decryptGCM(parts []string) (string, error) {
	salt, err := hex.DecodeString(parts[0])
	if err != nil || len(salt) != saltLen {
		return "", fmt.Errorf("%w: bad salt segment", ErrCiphertext)
	}
	nonce, err := hex.DecodeString(parts[1])
	if err != nil || len(nonce) != nonceLen {
		return "", fmt.Errorf("%w: bad nonce segment", ErrCiphertext)
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagLen {
		return "", fmt.Errorf("%w: bad tag segment", ErrCiphertext)
	}
	ct, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext segment", ErrCiphertext)
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrCiphertext)
	}
	return string(plaintext), nil
}

// decryptLegacy handles the pre-migration iv:ciphertext format.
func (v *Vault) decryptLegacy(parts []string) (string, error) {
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv segment", ErrCiphertext)
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext segment", ErrCiphertext)
	}

	key, err := v.deriveKey(legacySalt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	plaintext := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ct)
	return string(plaintext), nil
}

// EncryptLegacy seals plaintext in the two-segment format. It exists only so
// tests can produce legacy values; new writes always use Encrypt.
func (v *Vault) EncryptLegacy(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	key, err := v.deriveKey(legacySalt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	ct := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ct, []byte(plaintext))

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}
