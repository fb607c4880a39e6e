package road

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/1ureka/raet/internal/body"
)

// Protocol tag and head framing.
const (
	Tag           = "RAET"
	MaxHeadSize   = 0xFF
	MaxPacketSize = 0xFFFF

	raetTerm = "\n\n"
	jsonTerm = "\r\n\r\n"
)

var (
	raetPrefix = []byte("ri " + Tag + "\n")
	jsonPrefix = []byte(`{"ri":"` + Tag + `"`)
)

// Head holds the wire fields of a packet. The zero value plus SC=1 is the
// all-defaults head; see NewHead.
type Head struct {
	Version    uint8      // vn
	PacketKind PacketKind // pk
	PacketLen  int        // pl
	Kind       HeadKind   // hk
	HeadLen    int        // hl
	SE         uint32     // se
	DE         uint32     // de
	SI         uint32     // si
	TI         uint32     // ti
	TrnsKind   TrnsKind   // tk
	DT         float64    // dt
	SN         int        // sn
	SC         int        // sc
	ML         int        // ml
	BodyKind   body.Kind  // bk
	CoatKind   CoatKind   // ck
	FootKind   FootKind   // fk
	FootLen    int        // fl
	Flags      Flags      // fg
}

// NewHead returns a head with every field at its default.
func NewHead() Head { return Head{SC: 1} }

type fieldFormat uint8

const (
	fmtHex fieldFormat = iota
	fmtHex2
	fmtHex4
	fmtFloat
	fmtTag
)

type fieldSpec struct {
	name   string
	format fieldFormat
	always bool
}

// fields is the head field table in wire order. Encode and decode both go
// through it.
var fields = [...]fieldSpec{
	{"ri", fmtTag, true},
	{"vn", fmtHex, false},
	{"pk", fmtHex, false},
	{"pl", fmtHex4, true},
	{"hk", fmtHex, false},
	{"hl", fmtHex2, true},
	{"se", fmtHex, false},
	{"de", fmtHex, false},
	{"si", fmtHex, false},
	{"ti", fmtHex, false},
	{"tk", fmtHex, false},
	{"dt", fmtFloat, false},
	{"sn", fmtHex, false},
	{"sc", fmtHex, false},
	{"ml", fmtHex, false},
	{"bk", fmtHex, false},
	{"ck", fmtHex, false},
	{"fk", fmtHex, false},
	{"fl", fmtHex, false},
	{"fg", fmtHex2, false},
}

var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(fields))
	for i, f := range fields {
		m[f.name] = i
	}
	return m
}()

// number returns the integer value of field name.
func (h *Head) number(name string) uint64 {
	switch name {
	case "vn":
		return uint64(h.Version)
	case "pk":
		return uint64(h.PacketKind)
	case "pl":
		return uint64(h.PacketLen)
	case "hk":
		return uint64(h.Kind)
	case "hl":
		return uint64(h.HeadLen)
	case "se":
		return uint64(h.SE)
	case "de":
		return uint64(h.DE)
	case "si":
		return uint64(h.SI)
	case "ti":
		return uint64(h.TI)
	case "tk":
		return uint64(h.TrnsKind)
	case "sn":
		return uint64(h.SN)
	case "sc":
		return uint64(h.SC)
	case "ml":
		return uint64(h.ML)
	case "bk":
		return uint64(h.BodyKind)
	case "ck":
		return uint64(h.CoatKind)
	case "fk":
		return uint64(h.FootKind)
	case "fl":
		return uint64(h.FootLen)
	case "fg":
		return uint64(h.Flags)
	default:
		panic("road: no numeric field " + name)
	}
}

func (h *Head) setNumber(name string, v uint64) error {
	fits := func(max uint64) error {
		if v > max {
			return fmt.Errorf("%w: field %s value %#x out of range", ErrFraming, name, v)
		}
		return nil
	}
	var err error
	switch name {
	case "vn":
		if err = fits(0xFF); err == nil {
			h.Version = uint8(v)
		}
	case "pk":
		if err = fits(0xFF); err == nil {
			h.PacketKind = PacketKind(v)
			if !h.PacketKind.Valid() {
				err = fmt.Errorf("%w: unknown packet kind %d", ErrFraming, v)
			}
		}
	case "pl":
		if err = fits(MaxPacketSize); err == nil {
			h.PacketLen = int(v)
		}
	case "hk":
		if err = fits(0xFF); err == nil {
			h.Kind = HeadKind(v)
			if !h.Kind.Valid() {
				err = fmt.Errorf("%w: unknown head kind %d", ErrFraming, v)
			}
		}
	case "hl":
		if err = fits(MaxHeadSize); err == nil {
			h.HeadLen = int(v)
		}
	case "se":
		if err = fits(0xFFFFFFFF); err == nil {
			h.SE = uint32(v)
		}
	case "de":
		if err = fits(0xFFFFFFFF); err == nil {
			h.DE = uint32(v)
		}
	case "si":
		if err = fits(0xFFFFFFFF); err == nil {
			h.SI = uint32(v)
		}
	case "ti":
		if err = fits(0xFFFFFFFF); err == nil {
			h.TI = uint32(v)
		}
	case "tk":
		if err = fits(0xFF); err == nil {
			h.TrnsKind = TrnsKind(v)
			if !h.TrnsKind.Valid() {
				err = fmt.Errorf("%w: unknown transaction kind %d", ErrFraming, v)
			}
		}
	case "sn":
		if err = fits(0xFFFF); err == nil {
			h.SN = int(v)
		}
	case "sc":
		if err = fits(0xFFFF); err == nil {
			h.SC = int(v)
		}
	case "ml":
		if err = fits(0xFFFFFFFF); err == nil {
			h.ML = int(v)
		}
	case "bk":
		var k body.Kind
		if k, err = body.ParseKind(v); err != nil {
			err = fmt.Errorf("%w: %v", ErrFraming, err)
		} else {
			h.BodyKind = k
		}
	case "ck":
		if err = fits(0xFF); err == nil {
			h.CoatKind = CoatKind(v)
			if !h.CoatKind.Valid() {
				err = fmt.Errorf("%w: unknown coat kind %d", ErrFraming, v)
			}
		}
	case "fk":
		if err = fits(0xFF); err == nil {
			h.FootKind = FootKind(v)
			if !h.FootKind.Valid() {
				err = fmt.Errorf("%w: unknown foot kind %d", ErrFraming, v)
			}
		}
	case "fl":
		if err = fits(MaxPacketSize); err == nil {
			h.FootLen = int(v)
		}
	case "fg":
		if err = fits(0xFF); err == nil {
			h.Flags = Flags(v)
		}
	default:
		err = fmt.Errorf("%w: unknown field %q", ErrFraming, name)
	}
	return err
}

// format renders field i and reports whether it holds its default value.
func (h *Head) format(i int) (string, bool) {
	f := fields[i]
	switch f.format {
	case fmtTag:
		return Tag, false
	case fmtFloat:
		return strconv.FormatFloat(h.DT, 'f', 6, 64), h.DT == 0
	case fmtHex2:
		v := h.number(f.name)
		return fmt.Sprintf("%02x", v), v == 0
	case fmtHex4:
		v := h.number(f.name)
		return fmt.Sprintf("%04x", v), v == 0
	default:
		v := h.number(f.name)
		def := uint64(0)
		if f.name == "sc" {
			def = 1
		}
		return strconv.FormatUint(v, 16), v == def
	}
}

// parse decodes one field value according to its table format.
func (h *Head) parse(name, value string) error {
	i, ok := fieldIndex[name]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", ErrFraming, name)
	}
	switch fields[i].format {
	case fmtTag:
		if value != Tag {
			return fmt.Errorf("%w: bad tag %q", ErrFraming, value)
		}
		return nil
	case fmtFloat:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: field dt: %v", ErrFraming, err)
		}
		h.DT = v
		return nil
	case fmtHex2, fmtHex4:
		width := 2
		if fields[i].format == fmtHex4 {
			width = 4
		}
		if len(value) != width {
			return fmt.Errorf("%w: field %s must be %d hex digits, got %q", ErrFraming, name, width, value)
		}
	}
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return fmt.Errorf("%w: field %s: %v", ErrFraming, name, err)
	}
	return h.setNumber(name, v)
}

// encodedHead is a serialized head with the offsets of its fixed width
// length fields.
type encodedHead struct {
	buf  []byte
	plAt int
	hlAt int
}

// encode serializes h in its own head kind. pl and hl are written as zeros;
// hl is patched before returning.
func (h *Head) encode() (encodedHead, error) {
	var (
		e   encodedHead
		buf bytes.Buffer
	)
	switch h.Kind {
	case HeadRaet:
		for i, f := range fields {
			v, def := h.format(i)
			if def && !f.always {
				continue
			}
			buf.WriteString(f.name)
			buf.WriteByte(' ')
			switch f.name {
			case "pl":
				e.plAt = buf.Len()
			case "hl":
				e.hlAt = buf.Len()
			}
			buf.WriteString(v)
			buf.WriteByte('\n')
		}
		buf.WriteString(raetTerm[1:])
	case HeadJSON:
		buf.WriteByte('{')
		first := true
		for i, f := range fields {
			v, def := h.format(i)
			if def && !f.always {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			fmt.Fprintf(&buf, "%q:\"", f.name)
			switch f.name {
			case "pl":
				e.plAt = buf.Len()
			case "hl":
				e.hlAt = buf.Len()
			}
			buf.WriteString(v)
			buf.WriteByte('"')
		}
		buf.WriteByte('}')
		buf.WriteString(jsonTerm)
	default:
		return e, fmt.Errorf("%w: unknown head kind %d", ErrFraming, h.Kind)
	}

	e.buf = buf.Bytes()
	if len(e.buf) > MaxHeadSize {
		return e, fmt.Errorf("%w: head is %d bytes, limit %d", ErrFraming, len(e.buf), MaxHeadSize)
	}
	h.HeadLen = len(e.buf)
	putHex(e.buf[e.hlAt:e.hlAt+2], uint64(h.HeadLen))
	return e, nil
}

// putHex writes v as zero padded lowercase hex filling dst.
func putHex(dst []byte, v uint64) {
	const digits = "0123456789abcdef"
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = digits[v&0xF]
		v >>= 4
	}
}

// decodeHead parses the head at the start of raw and returns it with its
// byte length.
func decodeHead(raw []byte) (Head, int, error) {
	h := NewHead()
	switch {
	case bytes.HasPrefix(raw, raetPrefix):
		end := bytes.Index(raw, []byte(raetTerm))
		if end < 0 {
			return h, 0, fmt.Errorf("%w: unterminated head", ErrFraming)
		}
		size := end + len(raetTerm)
		if size > MaxHeadSize {
			return h, 0, fmt.Errorf("%w: head is %d bytes, limit %d", ErrFraming, size, MaxHeadSize)
		}
		seen := make(map[string]bool, len(fields))
		for _, line := range strings.Split(string(raw[:end]), "\n") {
			name, value, ok := strings.Cut(line, " ")
			if !ok {
				return h, 0, fmt.Errorf("%w: bad head line %q", ErrFraming, line)
			}
			if seen[name] {
				return h, 0, fmt.Errorf("%w: repeated field %q", ErrFraming, name)
			}
			seen[name] = true
			if err := h.parse(name, value); err != nil {
				return h, 0, err
			}
		}
		if h.Kind != HeadRaet {
			return h, 0, fmt.Errorf("%w: head kind %s in raet encoding", ErrFraming, h.Kind)
		}
		return h, size, nil

	case bytes.HasPrefix(raw, jsonPrefix):
		end := bytes.Index(raw, []byte(jsonTerm))
		if end < 0 {
			return h, 0, fmt.Errorf("%w: unterminated head", ErrFraming)
		}
		size := end + len(jsonTerm)
		if size > MaxHeadSize {
			return h, 0, fmt.Errorf("%w: head is %d bytes, limit %d", ErrFraming, size, MaxHeadSize)
		}
		var values map[string]string
		if err := json.Unmarshal(raw[:end], &values); err != nil {
			return h, 0, fmt.Errorf("%w: json head: %v", ErrFraming, err)
		}
		for name, value := range values {
			if err := h.parse(name, value); err != nil {
				return h, 0, err
			}
		}
		if h.Kind != HeadJSON {
			return h, 0, fmt.Errorf("%w: head kind %s in json encoding", ErrFraming, h.Kind)
		}
		return h, size, nil

	default:
		return h, 0, fmt.Errorf("%w: unrecognized head", ErrFraming)
	}
}
