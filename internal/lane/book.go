package lane

import (
	"fmt"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/segment"
)

// BookIndex keys an in-flight paged message by yard names, session and
// book id. On the receive side local and remote are swapped relative to
// the page's sn and dn.
type BookIndex struct {
	Local  string
	Remote string
	SI     uint32
	BI     uint32
}

func (i BookIndex) String() string {
	return fmt.Sprintf("%s<>%s si=%x bi=%x", i.Local, i.Remote, i.SI, i.BI)
}

// TxBook pages one outbound message.
type TxBook struct {
	Head  Head
	Body  body.Body
	Pages [][]byte
}

// NewTxBook returns a book for b under head h.
func NewTxBook(h Head, b body.Body) *TxBook {
	return &TxBook{Head: h, Body: b}
}

// Index returns the book key as seen by the sender.
func (b *TxBook) Index() BookIndex {
	return BookIndex{Local: b.Head.SN, Remote: b.Head.DN, SI: b.Head.SI, BI: b.Head.BI}
}

// Pack serializes the body once by kind and emits one page when it fits in
// maxSize, or else as many pages as needed. The head is encoded once and
// only its page number and count are rewritten per page.
func (b *TxBook) Pack(kind body.Kind, maxSize int) error {
	flat, err := body.Pack(kind, b.Body)
	if err != nil {
		return err
	}
	h := b.Head
	h.PN, h.PC = 0, 1
	e, err := h.encode()
	if err != nil {
		return err
	}
	if len(e.buf)+len(flat) <= maxSize {
		b.Pages = [][]byte{append(e.buf, flat...)}
		return nil
	}

	chunks, err := segment.Split(flat, maxSize-len(e.buf))
	if err != nil {
		return err
	}
	b.Pages = make([][]byte, len(chunks))
	for i, chunk := range chunks {
		b.Pages[i] = append(e.patch(i, len(chunks)), chunk...)
	}
	return nil
}

// RxBook collects the pages of one inbound message.
type RxBook struct {
	Index BookIndex
	Head  Head
	slots *segment.Slots
}

// NewRxBook starts a book from the first page seen.
func NewRxBook(p *Page) (*RxBook, error) {
	slots, err := segment.NewSlots(p.Head.PC)
	if err != nil {
		return nil, err
	}
	return &RxBook{Index: rxIndex(p.Head), Head: p.Head, slots: slots}, nil
}

func rxIndex(h Head) BookIndex {
	return BookIndex{Local: h.DN, Remote: h.SN, SI: h.SI, BI: h.BI}
}

// Add stores one page. It reports whether the page was a duplicate.
func (b *RxBook) Add(p *Page) (bool, error) {
	if p.Head.PC != b.Head.PC {
		return false, fmt.Errorf("%w: page %d declares count %d, book has %d",
			segment.ErrSegmentation, p.Head.PN, p.Head.PC, b.Head.PC)
	}
	return b.slots.Put(p.Head.PN, p.Payload)
}

// Complete reports whether every page has arrived.
func (b *RxBook) Complete() bool { return b.slots.Complete() }

// Missing returns missing page numbers in [begin, end), bounded by the
// highest page number seen.
func (b *RxBook) Missing(begin, end int) []int { return b.slots.Missing(begin, end) }

// Open joins the pages and decodes the body.
func (b *RxBook) Open(kind body.Kind) (body.Body, error) {
	return body.Unpack(kind, b.slots.Join())
}
