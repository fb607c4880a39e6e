package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	signer, err := NewSigner(nil)
	require.NoError(t, err)

	msg := []byte("signed message")
	sig := signer.Sign(msg)
	require.Len(t, sig, SignatureSize)

	verifier, err := NewVerifier([]byte(signer.VerHex()))
	require.NoError(t, err)
	assert.True(t, verifier.Verify(sig, msg))
	assert.False(t, verifier.Verify(sig, []byte("tampered message")))
	assert.False(t, verifier.Verify(sig[:10], msg))

	// Free functions accept raw and hex forms alike.
	freeSig, err := Sign(msg, []byte(signer.KeyHex()))
	require.NoError(t, err)
	assert.Equal(t, sig, freeSig)
	assert.True(t, Verify(sig, msg, signer.VerKey()))
	assert.True(t, Verify(sig, msg, []byte(signer.VerHex())))
	assert.False(t, Verify(sig, msg, []byte("short")))
}

func TestEncryptDecrypt(t *testing.T) {
	alice, err := NewPrivateer(nil)
	require.NoError(t, err)
	bob, err := NewPrivateer(nil)
	require.NoError(t, err)

	msg := []byte("for bob only")
	cipher, nonce, err := alice.Encrypt(msg, bob.Publican())
	require.NoError(t, err)
	require.Len(t, nonce, NonceSize)
	assert.Len(t, cipher, len(msg)+Overhead)

	plain, err := bob.Decrypt(cipher, nonce, alice.Publican())
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	t.Run("corrupt cipher", func(t *testing.T) {
		bad := append([]byte(nil), cipher...)
		bad[0] ^= 0xff
		_, err := bob.Decrypt(bad, nonce, alice.Publican())
		assert.ErrorIs(t, err, ErrDecrypt)
		assert.ErrorIs(t, err, ErrCrypto)
	})

	t.Run("wrong sender key", func(t *testing.T) {
		eve, err := NewPrivateer(nil)
		require.NoError(t, err)
		_, err = bob.Decrypt(cipher, nonce, eve.Publican())
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("short nonce", func(t *testing.T) {
		_, err := Decrypt(cipher, nonce[:8], alice.Publican().Key(), []byte(bob.KeyHex()))
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestKeyHexRoundTrip(t *testing.T) {
	priv, err := NewPrivateer(nil)
	require.NoError(t, err)

	again, err := NewPrivateer([]byte(priv.KeyHex()))
	require.NoError(t, err)
	assert.Equal(t, priv.KeyHex(), again.KeyHex())
	assert.Equal(t, priv.PubHex(), again.PubHex())

	pub, err := NewPublican([]byte(priv.PubHex()))
	require.NoError(t, err)
	raw, err := hex.DecodeString(priv.PubHex())
	require.NoError(t, err)
	assert.Equal(t, raw, pub.Key())

	signer, err := NewSigner(nil)
	require.NoError(t, err)
	same, err := NewSigner(signer.Seed())
	require.NoError(t, err)
	assert.Equal(t, signer.VerHex(), same.VerHex())
}

func TestDecodeKeyRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		key  []byte
	}{
		{"too short", make([]byte, 10)},
		{"too long", make([]byte, 100)},
		{"bad hex", []byte("zz" + hex.EncodeToString(make([]byte, 31)))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeKey(tc.key, KeySize)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}
