package road

import "fmt"

// HeadKind selects the head encoding.
type HeadKind uint8

const (
	// HeadRaet is the line oriented "name value" encoding ended by a blank
	// line.
	HeadRaet HeadKind = iota
	// HeadJSON is a flat JSON object of string values ended by CRLFCRLF.
	HeadJSON
	headKindCount
)

func (k HeadKind) Valid() bool { return k < headKindCount }

func (k HeadKind) String() string {
	switch k {
	case HeadRaet:
		return "raet"
	case HeadJSON:
		return "json"
	default:
		return fmt.Sprintf("head(%d)", uint8(k))
	}
}

// PacketKind tags what a packet carries. Only Message is handled by the
// stack; the rest belong to the transaction layer.
type PacketKind uint8

const (
	PacketMessage PacketKind = iota
	PacketAck
	PacketNack
	PacketResend
	PacketDone
	PacketJoin
	PacketAllow
	PacketAlive
	packetKindCount
)

var packetKindNames = [...]string{
	PacketMessage: "message",
	PacketAck:     "ack",
	PacketNack:    "nack",
	PacketResend:  "resend",
	PacketDone:    "done",
	PacketJoin:    "join",
	PacketAllow:   "allow",
	PacketAlive:   "alive",
}

func (k PacketKind) Valid() bool { return k < packetKindCount }

func (k PacketKind) String() string {
	if k.Valid() {
		return packetKindNames[k]
	}
	return fmt.Sprintf("packet(%d)", uint8(k))
}

// TrnsKind tags the transaction a packet belongs to.
type TrnsKind uint8

const (
	TrnsMessage TrnsKind = iota
	TrnsJoin
	TrnsAllow
	TrnsAlive
	trnsKindCount
)

func (k TrnsKind) Valid() bool { return k < trnsKindCount }

func (k TrnsKind) String() string {
	switch k {
	case TrnsMessage:
		return "message"
	case TrnsJoin:
		return "join"
	case TrnsAllow:
		return "allow"
	case TrnsAlive:
		return "alive"
	default:
		return fmt.Sprintf("trns(%d)", uint8(k))
	}
}

// CoatKind selects body encryption.
type CoatKind uint8

const (
	CoatNada CoatKind = iota
	// CoatNaCl is a curve25519 box; the coat is cipher followed by nonce.
	CoatNaCl
	coatKindCount
)

func (k CoatKind) Valid() bool { return k < coatKindCount }

func (k CoatKind) String() string {
	switch k {
	case CoatNada:
		return "nada"
	case CoatNaCl:
		return "nacl"
	default:
		return fmt.Sprintf("coat(%d)", uint8(k))
	}
}

// FootKind selects the packet signature.
type FootKind uint8

const (
	FootNada FootKind = iota
	// FootNaCl is an ed25519 signature over head and coat.
	FootNaCl
	footKindCount
)

func (k FootKind) Valid() bool { return k < footKindCount }

func (k FootKind) String() string {
	switch k {
	case FootNada:
		return "nada"
	case FootNaCl:
		return "nacl"
	default:
		return fmt.Sprintf("foot(%d)", uint8(k))
	}
}

// Flags is the fg bitfield. Bits are listed most significant first.
type Flags uint8

const (
	// FlagAll asks for every segment of a message.
	FlagAll Flags = 1 << (7 - iota)
	// FlagSegmented marks one segment of a multi packet message.
	FlagSegmented
	FlagNack
	FlagCorrespondent
	FlagDuplicate
	FlagVacuous
	FlagBroadcast
	FlagWait
)

var flagNames = [8]string{"af", "sf", "nf", "cf", "df", "vf", "bf", "wf"}

// Has reports whether every bit of f is set.
func (fg Flags) Has(f Flags) bool { return fg&f == f }

func (fg Flags) String() string {
	s := ""
	for i, name := range flagNames {
		if fg&(1<<(7-i)) != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	if s == "" {
		return "-"
	}
	return s
}

// HeadKindByName resolves a configuration name such as "json".
func HeadKindByName(name string) (HeadKind, error) {
	for k := HeadKind(0); k < headKindCount; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: head kind %q", ErrFraming, name)
}

// CoatKindByName resolves a configuration name such as "nacl".
func CoatKindByName(name string) (CoatKind, error) {
	for k := CoatKind(0); k < coatKindCount; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: coat kind %q", ErrFraming, name)
}

// FootKindByName resolves a configuration name such as "nacl".
func FootKindByName(name string) (FootKind, error) {
	for k := FootKind(0); k < footKindCount; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: foot kind %q", ErrFraming, name)
}
