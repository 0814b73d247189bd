package signing

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"
)

func TestSigner(t *testing.T) {
	signer := NewSigner([]byte("test-signing-key"))
	body := []byte(`{"chain_id":80002,"escrow_address":"0x14","event_type":"escrow_created"}`)

	t.Run("Success_RoundTrip", func(t *testing.T) {
		signature := signer.Sign(body)
		assert.NotEmpty(t, signature)
		assert.True(t, signer.Verify(body, signature))
	})

	t.Run("Success_DeterministicForSameBody", func(t *testing.T) {
		assert.Equal(t, signer.Sign(body), signer.Sign(body))
	})

	t.Run("Error_TamperedBodyRejected", func(t *testing.T) {
		signature := signer.Sign(body)
		assert.False(t, signer.Verify([]byte(`{"chain_id":1}`), signature))
	})

	t.Run("Error_WrongKeyRejected", func(t *testing.T) {
		other := NewSigner([]byte("another-key"))
		assert.False(t, other.Verify(body, signer.Sign(body)))
	})

	t.Run("Error_MalformedSignatureRejected", func(t *testing.T) {
		assert.False(t, signer.Verify(body, "not-hex"))
	})
}

func TestLoadKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_PlainKey", func(t *testing.T) {
		key, err := LoadKey(ctx, KeyConfig{PlainKey: "plain-key"})
		require.NoError(t, err)
		assert.Equal(t, []byte("plain-key"), key)
	})

	t.Run("Success_KMSDecryptedKey", func(t *testing.T) {
		// base64key:// is the local keeper driver, usable without cloud access.
		kmsKey := base64.URLEncoding.EncodeToString(make([]byte, 32))
		uri := "base64key://" + kmsKey

		keeper, err := secrets.OpenKeeper(ctx, uri)
		require.NoError(t, err)
		ciphertext, err := keeper.Encrypt(ctx, []byte("wrapped-signing-key"))
		require.NoError(t, err)
		require.NoError(t, keeper.Close())

		key, err := LoadKey(ctx, KeyConfig{
			KMSURI:       uri,
			EncryptedKey: base64.StdEncoding.EncodeToString(ciphertext),
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("wrapped-signing-key"), key)
	})

	t.Run("Error_BadCiphertext", func(t *testing.T) {
		kmsKey := base64.URLEncoding.EncodeToString(make([]byte, 32))
		_, err := LoadKey(ctx, KeyConfig{
			KMSURI:       "base64key://" + kmsKey,
			EncryptedKey: "%%% not base64 %%%",
		})
		assert.Error(t, err)
	})
}
