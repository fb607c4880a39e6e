// Package road implements UDP road stacks: the signed and optionally
// encrypted packet codec, tray segmentation and the RoadStack.
package road

import (
	"errors"
	"fmt"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/crypto"
	"github.com/1ureka/raet/internal/segment"
)

var (
	// ErrFraming is returned for malformed packets.
	ErrFraming = fmt.Errorf("road %w", segment.ErrFraming)
	// ErrPacketSize is returned when a packet would exceed the size cap.
	ErrPacketSize = fmt.Errorf("%w: packet too large", ErrFraming)
	// ErrUnknownPeer is returned when the key for a uid is unknown.
	ErrUnknownPeer = errors.New("road: unknown peer")
	// ErrSignature is returned when a foot does not verify.
	ErrSignature = fmt.Errorf("%w: bad signature", crypto.ErrCrypto)
	// ErrMissingSignature is returned for an unsigned packet where a
	// signature is required.
	ErrMissingSignature = fmt.Errorf("%w: missing signature", crypto.ErrCrypto)
)

// Keyring supplies key material for coats and feet.
type Keyring interface {
	Signer() *crypto.Signer
	Privateer() *crypto.Privateer
	// Peer returns the remote with uid.
	Peer(uid uint32) (*RemoteEstate, bool)
}

// Packet is one decoded or encoded road datagram.
type Packet struct {
	Head   Head
	Coat   []byte
	Foot   []byte
	Packed []byte
}

// footSize returns the foot length for kind.
func footSize(kind FootKind) int {
	if kind == FootNaCl {
		return crypto.SignatureSize
	}
	return 0
}

// PackCoat serializes b by the head's body kind and encrypts it for the
// destination when the coat kind asks for it.
func PackCoat(h Head, b body.Body, keys Keyring) ([]byte, error) {
	plain, err := body.Pack(h.BodyKind, b)
	if err != nil {
		return nil, err
	}
	switch h.CoatKind {
	case CoatNada:
		return plain, nil
	case CoatNaCl:
		peer, ok := keys.Peer(h.DE)
		if !ok || peer.Publican == nil {
			return nil, fmt.Errorf("%w: no public key for uid %d", ErrUnknownPeer, h.DE)
		}
		cipher, nonce, err := keys.Privateer().Encrypt(plain, peer.Publican)
		if err != nil {
			return nil, err
		}
		return append(cipher, nonce...), nil
	default:
		return nil, fmt.Errorf("%w: unknown coat kind %d", ErrFraming, h.CoatKind)
	}
}

// OpenCoat reverses PackCoat for a packet received from h.SE.
func OpenCoat(h Head, coat []byte, keys Keyring) (body.Body, error) {
	plain := coat
	switch h.CoatKind {
	case CoatNada:
	case CoatNaCl:
		if len(coat) < crypto.NonceSize {
			return nil, fmt.Errorf("%w: coat shorter than nonce", crypto.ErrDecrypt)
		}
		peer, ok := keys.Peer(h.SE)
		if !ok || peer.Publican == nil {
			return nil, fmt.Errorf("%w: no public key for uid %d", ErrUnknownPeer, h.SE)
		}
		split := len(coat) - crypto.NonceSize
		var err error
		plain, err = keys.Privateer().Decrypt(coat[:split], coat[split:], peer.Publican)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown coat kind %d", ErrFraming, h.CoatKind)
	}
	return body.Unpack(h.BodyKind, plain)
}

// Frame assembles head, coat and foot into a packet without a size check.
// The head's length fields are filled in here. The foot signs everything
// before it.
func Frame(h Head, coat []byte, keys Keyring) (*Packet, error) {
	h.FootLen = footSize(h.FootKind)
	e, err := h.encode()
	if err != nil {
		return nil, err
	}
	total := len(e.buf) + len(coat) + h.FootLen
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketSize, total)
	}
	h.PacketLen = total
	packed := make([]byte, 0, total)
	packed = append(packed, e.buf...)
	putHex(packed[e.plAt:e.plAt+4], uint64(total))
	packed = append(packed, coat...)
	switch h.FootKind {
	case FootNada:
	case FootNaCl:
		packed = append(packed, keys.Signer().Sign(packed)...)
	default:
		return nil, fmt.Errorf("%w: unknown foot kind %d", ErrFraming, h.FootKind)
	}
	headLen := len(e.buf)
	return &Packet{
		Head:   h,
		Coat:   packed[headLen : headLen+len(coat)],
		Foot:   packed[headLen+len(coat):],
		Packed: packed,
	}, nil
}

// Pack frames a whole message into one packet of at most maxSize bytes.
func Pack(h Head, b body.Body, keys Keyring, maxSize int) (*Packet, error) {
	p, err := Prepack(h, b, keys)
	if err != nil {
		return nil, err
	}
	if len(p.Packed) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPacketSize, len(p.Packed), maxSize)
	}
	return p, nil
}

// Prepack frames a whole message into one packet whatever its size, so the
// caller can decide whether to segment.
func Prepack(h Head, b body.Body, keys Keyring) (*Packet, error) {
	coat, err := PackCoat(h, b, keys)
	if err != nil {
		return nil, err
	}
	return Frame(h, coat, keys)
}

// Parse decodes the head of raw and splits off coat and foot. The foot is
// not checked; see Verify.
func Parse(raw []byte) (*Packet, error) {
	h, headLen, err := decodeHead(raw)
	if err != nil {
		return nil, err
	}
	if h.HeadLen != headLen {
		return nil, fmt.Errorf("%w: hl %d but head is %d bytes", ErrFraming, h.HeadLen, headLen)
	}
	if h.PacketLen != len(raw) {
		return nil, fmt.Errorf("%w: pl %d but packet is %d bytes", ErrFraming, h.PacketLen, len(raw))
	}
	if h.FootLen != footSize(h.FootKind) {
		return nil, fmt.Errorf("%w: fl %d for %s foot", ErrFraming, h.FootLen, h.FootKind)
	}
	if headLen+h.FootLen > len(raw) {
		return nil, fmt.Errorf("%w: foot overruns packet", ErrFraming)
	}
	if h.SC < 1 || h.SN >= h.SC {
		return nil, fmt.Errorf("%w: segment %d of %d", ErrFraming, h.SN, h.SC)
	}
	footAt := len(raw) - h.FootLen
	return &Packet{
		Head:   h,
		Coat:   raw[headLen:footAt],
		Foot:   raw[footAt:],
		Packed: raw,
	}, nil
}

// Verify checks the foot against the source's verify key. An unsigned
// packet passes unless required is set.
func (p *Packet) Verify(keys Keyring, required bool) error {
	switch p.Head.FootKind {
	case FootNada:
		if required {
			return ErrMissingSignature
		}
		return nil
	case FootNaCl:
		peer, ok := keys.Peer(p.Head.SE)
		if !ok || peer.Verifier == nil {
			return fmt.Errorf("%w: no verify key for uid %d", ErrUnknownPeer, p.Head.SE)
		}
		signed := p.Packed[:len(p.Packed)-len(p.Foot)]
		if !peer.Verifier.Verify(p.Foot, signed) {
			return fmt.Errorf("%w: from uid %d", ErrSignature, p.Head.SE)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown foot kind %d", ErrFraming, p.Head.FootKind)
	}
}

// Unpack parses, verifies and opens a single, unsegmented packet.
func Unpack(raw []byte, keys Keyring, required bool) (*Packet, body.Body, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Verify(keys, required); err != nil {
		return p, nil, err
	}
	if p.Head.SC != 1 {
		return p, nil, fmt.Errorf("%w: segment %d of %d needs reassembly", ErrFraming, p.Head.SN, p.Head.SC)
	}
	b, err := OpenCoat(p.Head, p.Coat, keys)
	if err != nil {
		return p, nil, err
	}
	return p, b, nil
}
