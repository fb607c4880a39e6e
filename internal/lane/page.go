// Package lane implements local unix datagram lane stacks: the plain text
// page codec, book segmentation, yards and the LaneStack.
//
// Lanes are trusted local channels, so pages carry no coat or foot.
package lane

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/1ureka/raet/internal/segment"
)

const (
	Tag = "RAET"
	// MaxPageSize is the largest page the head can describe.
	MaxPageSize = 0xFFFF

	term = "\n\n"
	// sidWidth is the fixed width of the si field.
	sidWidth = 18
)

var (
	// ErrFraming is returned for malformed pages.
	ErrFraming = fmt.Errorf("lane %w", segment.ErrFraming)
	// ErrPageSize is returned when a page would exceed the size cap.
	ErrPageSize = fmt.Errorf("%w: page too large", ErrFraming)

	prefix = []byte("ri " + Tag + "\n")
)

// PageKind tags what a page carries.
type PageKind uint8

const (
	PageMessage PageKind = iota
	pageKindCount
)

func (k PageKind) Valid() bool { return k < pageKindCount }

func (k PageKind) String() string {
	if k == PageMessage {
		return "message"
	}
	return fmt.Sprintf("page(%d)", uint8(k))
}

// Head holds the wire fields of a page. Every field is always emitted.
type Head struct {
	Version uint8    // vn
	Kind    PageKind // pk
	SN      string   // sn: source yard name
	DN      string   // dn: destination yard name
	SI      uint32   // si
	BI      uint32   // bi
	PN      int      // pn
	PC      int      // pc
}

var fieldNames = [...]string{"ri", "vn", "pk", "sn", "dn", "si", "bi", "pn", "pc"}

// ValidName reports whether s can be used as a lane or yard name: non
// empty, no whitespace and no dots.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '.' })
}

// encodedHead is a serialized head with the offsets of pn and pc, which
// are rewritten per page.
type encodedHead struct {
	buf  []byte
	pnAt int
	pcAt int
}

func (h *Head) encode() (encodedHead, error) {
	var e encodedHead
	if !h.Kind.Valid() {
		return e, fmt.Errorf("%w: unknown page kind %d", ErrFraming, h.Kind)
	}
	if !ValidName(h.SN) || !ValidName(h.DN) {
		return e, fmt.Errorf("%w: bad yard name %q or %q", ErrFraming, h.SN, h.DN)
	}
	if h.PC < 1 || h.PC > MaxPageSize || h.PN < 0 || h.PN >= h.PC {
		return e, fmt.Errorf("%w: page %d of %d", ErrFraming, h.PN, h.PC)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ri %.4s\n", Tag)
	fmt.Fprintf(&buf, "vn %x\n", h.Version)
	fmt.Fprintf(&buf, "pk %x\n", uint8(h.Kind))
	fmt.Fprintf(&buf, "sn %s\n", h.SN)
	fmt.Fprintf(&buf, "dn %s\n", h.DN)
	fmt.Fprintf(&buf, "si %0*x\n", sidWidth, h.SI)
	fmt.Fprintf(&buf, "bi %x\n", h.BI)
	buf.WriteString("pn ")
	e.pnAt = buf.Len()
	fmt.Fprintf(&buf, "%04x\n", h.PN)
	buf.WriteString("pc ")
	e.pcAt = buf.Len()
	fmt.Fprintf(&buf, "%04x\n", h.PC)
	buf.WriteString(term[1:])
	e.buf = buf.Bytes()
	return e, nil
}

// patch writes page number pn of pc into a copy of the head.
func (e encodedHead) patch(pn, pc int) []byte {
	out := append([]byte(nil), e.buf...)
	putHex(out[e.pnAt:e.pnAt+4], uint64(pn))
	putHex(out[e.pcAt:e.pcAt+4], uint64(pc))
	return out
}

func putHex(dst []byte, v uint64) {
	const digits = "0123456789abcdef"
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = digits[v&0xF]
		v >>= 4
	}
}

func decodeHead(raw []byte) (Head, int, error) {
	var h Head
	if !bytes.HasPrefix(raw, prefix) {
		return h, 0, fmt.Errorf("%w: unrecognized head", ErrFraming)
	}
	end := bytes.Index(raw, []byte(term))
	if end < 0 {
		return h, 0, fmt.Errorf("%w: unterminated head", ErrFraming)
	}
	lines := strings.Split(string(raw[:end]), "\n")
	if len(lines) != len(fieldNames) {
		return h, 0, fmt.Errorf("%w: %d head fields, want %d", ErrFraming, len(lines), len(fieldNames))
	}
	for i, line := range lines {
		name, value, ok := strings.Cut(line, " ")
		if !ok || name != fieldNames[i] {
			return h, 0, fmt.Errorf("%w: head line %d is %q, want field %s", ErrFraming, i, line, fieldNames[i])
		}
		if err := h.parse(name, value); err != nil {
			return h, 0, err
		}
	}
	if h.PC < 1 || h.PN >= h.PC {
		return h, 0, fmt.Errorf("%w: page %d of %d", ErrFraming, h.PN, h.PC)
	}
	return h, end + len(term), nil
}

func (h *Head) parse(name, value string) error {
	hex := func(width, bits int) (uint64, error) {
		if width > 0 && len(value) != width {
			return 0, fmt.Errorf("%w: field %s must be %d hex digits, got %q", ErrFraming, name, width, value)
		}
		v, err := strconv.ParseUint(value, 16, bits)
		if err != nil {
			return 0, fmt.Errorf("%w: field %s: %v", ErrFraming, name, err)
		}
		return v, nil
	}
	switch name {
	case "ri":
		if value != Tag {
			return fmt.Errorf("%w: bad tag %q", ErrFraming, value)
		}
	case "vn":
		v, err := hex(0, 8)
		if err != nil {
			return err
		}
		h.Version = uint8(v)
	case "pk":
		v, err := hex(0, 8)
		if err != nil {
			return err
		}
		h.Kind = PageKind(v)
		if !h.Kind.Valid() {
			return fmt.Errorf("%w: unknown page kind %d", ErrFraming, v)
		}
	case "sn", "dn":
		if !ValidName(value) {
			return fmt.Errorf("%w: bad yard name %q", ErrFraming, value)
		}
		if name == "sn" {
			h.SN = value
		} else {
			h.DN = value
		}
	case "si":
		v, err := hex(sidWidth, 64)
		if err != nil {
			return err
		}
		if v > 0xFFFFFFFF {
			return fmt.Errorf("%w: si %#x out of range", ErrFraming, v)
		}
		h.SI = uint32(v)
	case "bi":
		v, err := hex(0, 32)
		if err != nil {
			return err
		}
		h.BI = uint32(v)
	case "pn", "pc":
		v, err := hex(4, 16)
		if err != nil {
			return err
		}
		if name == "pn" {
			h.PN = int(v)
		} else {
			h.PC = int(v)
		}
	default:
		return fmt.Errorf("%w: unknown field %q", ErrFraming, name)
	}
	return nil
}

// Page is one lane datagram.
type Page struct {
	Head    Head
	Payload []byte
	Packed  []byte
}

// Prepack frames payload as a single page whatever its size.
func Prepack(h Head, payload []byte) (*Page, error) {
	e, err := h.encode()
	if err != nil {
		return nil, err
	}
	packed := append(e.buf, payload...)
	return &Page{Head: h, Payload: packed[len(e.buf):], Packed: packed}, nil
}

// Pack frames payload as a single page of at most maxSize bytes.
func Pack(h Head, payload []byte, maxSize int) (*Page, error) {
	p, err := Prepack(h, payload)
	if err != nil {
		return nil, err
	}
	if len(p.Packed) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPageSize, len(p.Packed), maxSize)
	}
	return p, nil
}

// Parse decodes a page.
func Parse(raw []byte) (*Page, error) {
	h, headLen, err := decodeHead(raw)
	if err != nil {
		return nil, err
	}
	return &Page{Head: h, Payload: raw[headLen:], Packed: raw}, nil
}
