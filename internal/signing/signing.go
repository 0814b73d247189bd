// Package signing provides HMAC-SHA256 signing and verification for webhook
// bodies, with the signing key optionally unwrapped through a cloud KMS.
package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"gocloud.dev/secrets"

	apperrors "github.com/allisson/escrowd/internal/errors"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// Signer signs webhook bodies and verifies signatures on received ones.
type Signer interface {
	// Sign returns the hex-encoded HMAC-SHA256 of body.
	Sign(body []byte) string

	// Verify reports whether signature matches body in constant time.
	Verify(body []byte, signature string) bool
}

// hmacSigner implements Signer with a static key.
type hmacSigner struct {
	key []byte
}

// NewSigner creates a Signer with the given key.
func NewSigner(key []byte) Signer {
	return &hmacSigner{key: key}
}

// Sign returns the hex-encoded HMAC-SHA256 of body.
func (s *hmacSigner) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body in constant time.
func (s *hmacSigner) Verify(body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// KeyConfig describes where the signing key comes from. When KMSURI is set the
// key is the KMS-decrypted EncryptedKey ciphertext; otherwise PlainKey is used
// as-is.
type KeyConfig struct {
	PlainKey     string
	KMSURI       string
	EncryptedKey string
}

// LoadKey resolves the signing key at startup. Supported KMS URIs:
// gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://.
func LoadKey(ctx context.Context, cfg KeyConfig) ([]byte, error) {
	if cfg.KMSURI == "" {
		return []byte(cfg.PlainKey), nil
	}

	keeper, err := secrets.OpenKeeper(ctx, cfg.KMSURI)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open KMS keeper")
	}
	defer keeper.Close() //nolint:errcheck

	ciphertext, err := base64.StdEncoding.DecodeString(cfg.EncryptedKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decode encrypted signing key")
	}

	key, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decrypt signing key")
	}

	return key, nil
}
