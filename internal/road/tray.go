package road

import (
	"fmt"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/segment"
)

// TrayIndex keys an in-flight segmented message. On the receive side local
// and remote are swapped relative to the packet's se and de.
type TrayIndex struct {
	Local  uint32
	Remote uint32
	SI     uint32
	TI     uint32
}

func (i TrayIndex) String() string {
	return fmt.Sprintf("%d<>%d si=%x ti=%x", i.Local, i.Remote, i.SI, i.TI)
}

// TxTray packs one outbound message into packets.
type TxTray struct {
	Head    Head
	Body    body.Body
	Packets []*Packet
}

// NewTxTray returns a tray for b under head h.
func NewTxTray(h Head, b body.Body) *TxTray {
	return &TxTray{Head: h, Body: b}
}

// Index returns the tray key as seen by the sender.
func (t *TxTray) Index() TrayIndex {
	return TrayIndex{Local: t.Head.SE, Remote: t.Head.DE, SI: t.Head.SI, TI: t.Head.TI}
}

// Pack encodes the body once and emits a single packet when it fits in
// maxSize, or else splits the coat across as many segments as needed.
func (t *TxTray) Pack(keys Keyring, maxSize int) error {
	coat, err := PackCoat(t.Head, t.Body, keys)
	if err != nil {
		return err
	}
	whole, err := Frame(t.Head, coat, keys)
	if err == nil && len(whole.Packed) <= maxSize {
		t.Packets = []*Packet{whole}
		return nil
	}

	// Size the segment budget against the widest head a segment can have.
	proto := t.Head
	proto.Flags |= FlagSegmented
	proto.SN = segment.MaxCount
	proto.SC = segment.MaxCount
	proto.ML = len(coat)
	empty, err := Frame(proto, nil, keys)
	if err != nil {
		return err
	}
	chunks, err := segment.Split(coat, maxSize-len(empty.Packed))
	if err != nil {
		return err
	}

	t.Packets = make([]*Packet, 0, len(chunks))
	for i, chunk := range chunks {
		h := t.Head
		h.Flags |= FlagSegmented
		h.SN = i
		h.SC = len(chunks)
		h.ML = len(coat)
		p, err := Frame(h, chunk, keys)
		if err != nil {
			return err
		}
		if len(p.Packed) > maxSize {
			return fmt.Errorf("%w: segment %d is %d bytes, limit %d", ErrPacketSize, i, len(p.Packed), maxSize)
		}
		t.Packets = append(t.Packets, p)
	}
	return nil
}

// Datagrams returns the packed bytes of every packet.
func (t *TxTray) Datagrams() [][]byte {
	out := make([][]byte, len(t.Packets))
	for i, p := range t.Packets {
		out[i] = p.Packed
	}
	return out
}

// RxTray collects the segments of one inbound message.
type RxTray struct {
	Index TrayIndex
	Head  Head
	slots *segment.Slots
}

// NewRxTray starts a tray from the first segment seen.
func NewRxTray(p *Packet) (*RxTray, error) {
	slots, err := segment.NewSlots(p.Head.SC)
	if err != nil {
		return nil, err
	}
	return &RxTray{Index: rxIndex(p.Head), Head: p.Head, slots: slots}, nil
}

func rxIndex(h Head) TrayIndex {
	return TrayIndex{Local: h.DE, Remote: h.SE, SI: h.SI, TI: h.TI}
}

// Add stores one segment. It reports whether the segment was a duplicate.
func (t *RxTray) Add(p *Packet) (bool, error) {
	if p.Head.SC != t.Head.SC || p.Head.ML != t.Head.ML {
		return false, fmt.Errorf("%w: segment %d declares %d/%d, tray has %d/%d",
			segment.ErrSegmentation, p.Head.SN, p.Head.SC, p.Head.ML, t.Head.SC, t.Head.ML)
	}
	return t.slots.Put(p.Head.SN, p.Coat)
}

// Complete reports whether every segment has arrived.
func (t *RxTray) Complete() bool { return t.slots.Complete() }

// Missing returns missing segment indexes in [begin, end), bounded by the
// highest index seen.
func (t *RxTray) Missing(begin, end int) []int { return t.slots.Missing(begin, end) }

// Open joins the segments, checks the declared message length and decodes
// the body.
func (t *RxTray) Open(keys Keyring) (body.Body, error) {
	coat := t.slots.Join()
	if len(coat) != t.Head.ML {
		return nil, fmt.Errorf("%w: joined %d bytes, ml %d", segment.ErrSegmentation, len(coat), t.Head.ML)
	}
	return OpenCoat(t.Head, coat, keys)
}
