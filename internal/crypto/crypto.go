// Package crypto provides the signing and authenticated encryption primitives
// used by road packets: ed25519 signatures for the foot and curve25519
// box encryption for the coat.
//
// Key material is accepted either raw or hex encoded. Hex round trips to the
// same raw bytes.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// Key and envelope sizes.
const (
	SeedSize      = ed25519.SeedSize
	VerKeySize    = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
	KeySize       = 32 // curve25519 private and public keys
	NonceSize     = 24
	Overhead      = box.Overhead
)

var (
	// ErrCrypto is the class of all signature and encryption failures.
	ErrCrypto = errors.New("crypto")
	// ErrInvalidKey is returned for key material of the wrong size or encoding.
	ErrInvalidKey = fmt.Errorf("%w: invalid key", ErrCrypto)
	// ErrDecrypt is returned when a cipher fails authentication.
	ErrDecrypt = fmt.Errorf("%w: decryption failed", ErrCrypto)
)

// DecodeKey returns the raw form of key, which may be raw bytes of the given
// size or the hex encoding of such bytes.
func DecodeKey(key []byte, size int) ([]byte, error) {
	switch len(key) {
	case size:
		raw := make([]byte, size)
		copy(raw, key)
		return raw, nil
	case 2 * size:
		raw := make([]byte, size)
		if _, err := hex.Decode(raw, key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: got %d bytes, want %d raw or %d hex", ErrInvalidKey, len(key), size, 2*size)
	}
}

func randomKey(size int) []byte {
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("crypto: entropy source failed: %v", err))
	}
	return key
}

// Sign returns the ed25519 signature of msg. priv is a seed or a full
// private key, raw or hex.
func Sign(msg, priv []byte) ([]byte, error) {
	// A hex seed and a raw private key share a length, so the seed forms win.
	if seed, err := DecodeKey(priv, SeedSize); err == nil {
		return ed25519.Sign(ed25519.NewKeyFromSeed(seed), msg), nil
	}
	raw, err := DecodeKey(priv, ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(ed25519.PrivateKey(raw), msg), nil
}

// Verify reports whether sig is a valid signature of msg under pub. Any
// malformed input yields false.
func Verify(sig, msg, pub []byte) bool {
	key, err := DecodeKey(pub, VerKeySize)
	if err != nil || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key), msg, sig)
}

// Encrypt seals msg for the holder of recipientPub using senderPriv and a
// fresh random nonce.
func Encrypt(msg, recipientPub, senderPriv []byte) (cipher, nonce []byte, err error) {
	pub, err := DecodeKey(recipientPub, KeySize)
	if err != nil {
		return nil, nil, err
	}
	priv, err := DecodeKey(senderPriv, KeySize)
	if err != nil {
		return nil, nil, err
	}
	var n [NonceSize]byte
	copy(n[:], randomKey(NonceSize))
	cipher = box.Seal(nil, msg, &n, (*[KeySize]byte)(pub), (*[KeySize]byte)(priv))
	return cipher, n[:], nil
}

// Decrypt opens a cipher produced by Encrypt.
func Decrypt(cipher, nonce, senderPub, recipientPriv []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrDecrypt, len(nonce))
	}
	pub, err := DecodeKey(senderPub, KeySize)
	if err != nil {
		return nil, err
	}
	priv, err := DecodeKey(recipientPriv, KeySize)
	if err != nil {
		return nil, err
	}
	msg, ok := box.Open(nil, cipher, (*[NonceSize]byte)(nonce), (*[KeySize]byte)(pub), (*[KeySize]byte)(priv))
	if !ok {
		return nil, ErrDecrypt
	}
	return msg, nil
}

// PublicFor derives the curve25519 public key of priv.
func PublicFor(priv []byte) ([]byte, error) {
	key, err := DecodeKey(priv, KeySize)
	if err != nil {
		return nil, err
	}
	return curve25519.X25519(key, curve25519.Basepoint)
}
