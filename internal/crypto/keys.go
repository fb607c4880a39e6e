package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Signer holds an ed25519 signing key.
type Signer struct {
	seed []byte
	key  ed25519.PrivateKey
}

// NewSigner builds a Signer from a raw or hex seed. A nil seed generates a
// fresh random key.
func NewSigner(seed []byte) (*Signer, error) {
	if seed == nil {
		seed = randomKey(SeedSize)
	}
	raw, err := DecodeKey(seed, SeedSize)
	if err != nil {
		return nil, err
	}
	return &Signer{seed: raw, key: ed25519.NewKeyFromSeed(raw)}, nil
}

// Sign returns the signature of msg.
func (s *Signer) Sign(msg []byte) []byte { return ed25519.Sign(s.key, msg) }

// Seed returns the raw seed.
func (s *Signer) Seed() []byte { return append([]byte(nil), s.seed...) }

// KeyHex returns the hex encoded seed.
func (s *Signer) KeyHex() string { return hex.EncodeToString(s.seed) }

// VerKey returns the raw verify key matching this signer.
func (s *Signer) VerKey() []byte {
	return append([]byte(nil), s.key.Public().(ed25519.PublicKey)...)
}

// VerHex returns the hex encoded verify key.
func (s *Signer) VerHex() string { return hex.EncodeToString(s.VerKey()) }

// Verifier checks signatures made by a remote Signer.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier builds a Verifier from a raw or hex verify key.
func NewVerifier(key []byte) (*Verifier, error) {
	raw, err := DecodeKey(key, VerKeySize)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: ed25519.PublicKey(raw)}, nil
}

// Verify reports whether sig is a valid signature of msg.
func (v *Verifier) Verify(sig, msg []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(v.key, msg, sig)
}

// Key returns the raw verify key.
func (v *Verifier) Key() []byte { return append([]byte(nil), v.key...) }

// KeyHex returns the hex encoded verify key.
func (v *Verifier) KeyHex() string { return hex.EncodeToString(v.key) }

// Privateer holds a curve25519 private key used to seal and open coats.
type Privateer struct {
	key []byte
	pub []byte
}

// NewPrivateer builds a Privateer from a raw or hex key. A nil key generates
// a fresh random key.
func NewPrivateer(key []byte) (*Privateer, error) {
	if key == nil {
		key = randomKey(KeySize)
	}
	raw, err := DecodeKey(key, KeySize)
	if err != nil {
		return nil, err
	}
	pub, err := PublicFor(raw)
	if err != nil {
		return nil, err
	}
	return &Privateer{key: raw, pub: pub}, nil
}

// Encrypt seals msg for the holder of pub.
func (p *Privateer) Encrypt(msg []byte, pub *Publican) (cipher, nonce []byte, err error) {
	return Encrypt(msg, pub.key, p.key)
}

// Decrypt opens a cipher sealed by the holder of pub.
func (p *Privateer) Decrypt(cipher, nonce []byte, pub *Publican) ([]byte, error) {
	return Decrypt(cipher, nonce, pub.key, p.key)
}

// KeyHex returns the hex encoded private key.
func (p *Privateer) KeyHex() string { return hex.EncodeToString(p.key) }

// Publican returns the public half of this key.
func (p *Privateer) Publican() *Publican { return &Publican{key: append([]byte(nil), p.pub...)} }

// PubHex returns the hex encoded public key.
func (p *Privateer) PubHex() string { return hex.EncodeToString(p.pub) }

// Publican holds a remote curve25519 public key.
type Publican struct {
	key []byte
}

// NewPublican builds a Publican from a raw or hex key.
func NewPublican(key []byte) (*Publican, error) {
	raw, err := DecodeKey(key, KeySize)
	if err != nil {
		return nil, err
	}
	return &Publican{key: raw}, nil
}

// Key returns the raw public key.
func (p *Publican) Key() []byte { return append([]byte(nil), p.key...) }

// KeyHex returns the hex encoded public key.
func (p *Publican) KeyHex() string { return hex.EncodeToString(p.key) }
