package lane

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/lot"
	"github.com/1ureka/raet/internal/segment"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

// Config is the immutable configuration of a lane stack.
type Config struct {
	Name    string
	UID     uint32
	Lane    string
	Dirpath string

	MaxPageSize int
	// BodyKind is shared by every yard on the lane; pages do not carry it.
	BodyKind body.Kind
	// Accept admits yards that are not yet known on first contact.
	Accept bool

	RxBatch   int
	DoneCache int
}

// DefaultConfig returns the stock lane settings: 64 KiB pages, JSON bodies
// and open admission.
func DefaultConfig() Config {
	return Config{
		UID:         1,
		Lane:        "lane",
		Dirpath:     filepath.Join(os.TempDir(), "raet"),
		MaxPageSize: MaxPageSize,
		BodyKind:    body.JSON,
		Accept:      true,
		DoneCache:   1024,
	}
}

// HA returns the socket path of the yard the config describes.
func (c Config) HA() string { return ComputeHA(c.Dirpath, c.Lane, c.Name) }

// LaneStack is a stack of yards exchanging pages on one lane.
type LaneStack struct {
	*stack.Stack[*RemoteYard]

	cfg    Config
	local  *LocalYard
	keeper keeping.Keeper
	done   *lru.Cache[BookIndex, struct{}]
}

// NewLaneStack builds a lane stack over tr, which should be bound to the
// yard's host address. A local record held by keeper wins over cfg, as in
// road stacks.
func NewLaneStack(cfg Config, tr transport.Datagram, keeper keeping.Keeper) (*LaneStack, error) {
	if !cfg.BodyKind.Valid() {
		return nil, fmt.Errorf("%w: body kind %s", ErrFraming, cfg.BodyKind)
	}
	if cfg.MaxPageSize <= 0 || cfg.MaxPageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: max page size %d", ErrPageSize, cfg.MaxPageSize)
	}
	if cfg.DoneCache <= 0 {
		cfg.DoneCache = DefaultConfig().DoneCache
	}
	done, err := lru.New[BookIndex, struct{}](cfg.DoneCache)
	if err != nil {
		return nil, err
	}
	s := &LaneStack{cfg: cfg, keeper: keeper, done: done}

	var remotes map[string]keeping.Record
	rec, found := keeping.Record{}, false
	if keeper != nil {
		if rec, found, err = keeper.LoadLocal(); err != nil {
			return nil, err
		}
		if found {
			if remotes, err = keeper.LoadAllRemotes(); err != nil {
				return nil, err
			}
		}
	}
	if found {
		dir := filepath.Dir(rec.HA)
		s.local, err = NewLocalYard(rec.UID, rec.Name, rec.Lane, dir, rec.SID)
	} else {
		name := cfg.Name
		if name == "" {
			name = "yard-" + uuid.NewString()[:8]
		}
		uid := cfg.UID
		if uid == 0 {
			uid = 1
		}
		s.local, err = NewLocalYard(uid, name, cfg.Lane, cfg.Dirpath, lot.SeedSID())
	}
	if err != nil {
		return nil, err
	}
	if found {
		s.local.NextSID()
	}

	s.Stack = stack.New[*RemoteYard](stack.Options{Name: s.local.Name, RxBatch: cfg.RxBatch},
		&s.local.Lot, tr, s, true)

	for _, r := range remotes {
		remote, err := NewRemoteYard(r.UID, r.Name, r.HA)
		if err != nil {
			return nil, fmt.Errorf("restore yard %q: %w", r.Name, err)
		}
		if err := s.Remotes.Add(remote); err != nil {
			return nil, fmt.Errorf("restore yard %q: %w", r.Name, err)
		}
	}
	if found {
		util.LogInfo("[%s] restored yard with %d remotes, session %x", s.local.Name, len(remotes), s.local.SID)
	}

	s.Hooks.Added = s.dumpRemote
	s.Hooks.Removed = func(r *RemoteYard) {
		if s.keeper != nil {
			if err := s.keeper.ClearRemote(r.lot.Name); err != nil {
				util.LogWarning("[%s] %v", s.Name, err)
			}
		}
	}
	if s.keeper != nil {
		if err := s.keeper.DumpLocal(s.local.Record()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Config returns the stack configuration.
func (s *LaneStack) Config() Config { return s.cfg }

// Yard returns the local yard.
func (s *LaneStack) Yard() *LocalYard { return s.local }

// AddYard registers a yard on this stack's lane by name, with the next free
// uid.
func (s *LaneStack) AddYard(name string) (*RemoteYard, error) {
	remote, err := NewRemoteYard(s.nextUID(), name, ComputeHA(s.local.Dirpath, s.local.Lane, name))
	if err != nil {
		return nil, err
	}
	if err := s.AddRemote(remote); err != nil {
		return nil, err
	}
	return remote, nil
}

// TransmitTo queues msg for the yard called name. An empty name picks the
// first remote.
func (s *LaneStack) TransmitTo(msg body.Body, name string) error {
	if name == "" {
		return s.Transmit(msg, 0)
	}
	remote, ok := s.Remotes.ByName(name)
	if !ok {
		s.Stats.Inc(stack.StatInvalidDestination)
		return fmt.Errorf("%w: yard %q", stack.ErrInvalidDestination, name)
	}
	return s.Transmit(msg, remote.lot.UID)
}

func (s *LaneStack) nextUID() uint32 {
	uid := s.local.UID
	for _, r := range s.Remotes.All() {
		uid = max(uid, r.lot.UID)
	}
	uid++
	if uid == 0 {
		// Wrapped: take the lowest free uid instead.
		for uid = 1; ; uid++ {
			if _, taken := s.Remotes.ByUID(uid); !taken && uid != s.local.UID {
				break
			}
		}
	}
	return uid
}

func (s *LaneStack) dumpRemote(r *RemoteYard) {
	if s.keeper == nil {
		return
	}
	if err := s.keeper.DumpRemote(r.Record()); err != nil {
		util.LogWarning("[%s] %v", s.Name, err)
	}
}

// PackTx pages msg for remote as a new book of the local session.
func (s *LaneStack) PackTx(msg stack.TxMsg, remote *RemoteYard) ([][]byte, error) {
	h := Head{
		Kind: PageMessage,
		SN:   s.local.Name,
		DN:   remote.lot.Name,
		SI:   s.local.SID,
		BI:   s.local.NextBI(),
	}
	book := NewTxBook(h, msg.Body)
	if err := book.Pack(s.cfg.BodyKind, s.cfg.MaxPageSize); err != nil {
		return nil, err
	}
	if len(book.Pages) > 1 {
		util.LogDebug("[%s] message %s split into %d pages", s.Name, book.Index(), len(book.Pages))
	}
	return book.Pages, nil
}

// ProcessRx parses and routes one inbound page. Unknown yards are admitted
// when the stack accepts them. Every drop is counted.
func (s *LaneStack) ProcessRx(w stack.Wire) {
	p, err := Parse(w.Data)
	if err != nil {
		s.drop(stack.StatParsingError, w.Addr, err)
		return
	}
	h := p.Head
	if h.DN != s.local.Name {
		s.drop(stack.StatMisaddressed, w.Addr, fmt.Errorf("dn %q", h.DN))
		return
	}
	remote, ok := s.Remotes.ByName(h.SN)
	if !ok {
		if remote, ok = s.admit(h.SN, w.Addr); !ok {
			return
		}
	}
	if !s.checkSession(remote, h.SI, w.Addr) {
		return
	}

	if h.PC == 1 {
		b, err := body.Unpack(s.cfg.BodyKind, p.Payload)
		if err != nil {
			s.drop(stack.StatParsingError, w.Addr, err)
			return
		}
		s.Deliver(b, remote)
		return
	}
	s.addPage(remote, p, w.Addr)
}

// admit registers a yard first heard from at addr. The yard must be on this
// lane.
func (s *LaneStack) admit(name, addr string) (*RemoteYard, bool) {
	if !s.cfg.Accept {
		s.drop(stack.StatUnacceptedSource, addr, fmt.Errorf("yard %q not accepted", name))
		return nil, false
	}
	ha := addr
	if ha == "" {
		ha = ComputeHA(s.local.Dirpath, s.local.Lane, name)
	}
	laneName, yardName, err := ParseHA(ha)
	if err != nil || laneName != s.local.Lane || yardName != name {
		s.drop(stack.StatUnacceptedSource, addr, fmt.Errorf("yard %q at %q is not on lane %q", name, ha, s.local.Lane))
		return nil, false
	}
	remote, err := NewRemoteYard(s.nextUID(), name, ha)
	if err == nil {
		err = s.AddRemote(remote)
	}
	if err != nil {
		s.drop(stack.StatUnacceptedSource, addr, err)
		return nil, false
	}
	s.Stats.Inc(stack.StatRemoteAdmitted)
	util.LogDebug("[%s] admitted yard %s", s.Name, remote.lot.String())
	return remote, true
}

func (s *LaneStack) checkSession(remote *RemoteYard, si uint32, addr string) bool {
	if si == 0 || si == remote.RSID {
		return true
	}
	if !lot.ValidateSID(si, remote.RSID) {
		s.drop(stack.StatStaleSession, addr, fmt.Errorf("si %x behind %x", si, remote.RSID))
		return false
	}
	if n := remote.reapStale(si); n > 0 {
		s.Stats.Add(stack.StatStaleBook, uint64(n))
		util.LogDebug("[%s] reaped %d stale books from %s", s.Name, n, remote.lot.Name)
	}
	s.forgetDone(remote.lot.Name, si)
	remote.RSID = si
	s.dumpRemote(remote)
	return true
}

// forgetDone drops completed book indexes from name's sessions other than si.
func (s *LaneStack) forgetDone(name string, si uint32) {
	for _, idx := range s.done.Keys() {
		if idx.Remote == name && idx.SI != si {
			s.done.Remove(idx)
		}
	}
}

func (s *LaneStack) addPage(remote *RemoteYard, p *Page, addr string) {
	idx := rxIndex(p.Head)
	if s.done.Contains(idx) {
		s.drop(stack.StatDuplicateSegment, addr, fmt.Errorf("late page %d of %s", p.Head.PN, idx))
		return
	}
	book, ok := remote.books[idx]
	if !ok {
		var err error
		if book, err = NewRxBook(p); err != nil {
			s.drop(stack.StatSegmentationError, addr, err)
			return
		}
		remote.books[idx] = book
	}
	dup, err := book.Add(p)
	if err != nil {
		s.drop(stack.StatSegmentationError, addr, err)
		return
	}
	if dup {
		s.drop(stack.StatDuplicateSegment, addr, fmt.Errorf("page %d of %s", p.Head.PN, idx))
		return
	}
	if !book.Complete() {
		return
	}

	delete(remote.books, idx)
	s.done.Add(idx, struct{}{})
	b, err := book.Open(s.cfg.BodyKind)
	if err != nil {
		stat := stack.StatParsingError
		if errors.Is(err, segment.ErrSegmentation) {
			stat = stack.StatSegmentationError
		}
		s.drop(stat, addr, err)
		return
	}
	s.Deliver(b, remote)
}

func (s *LaneStack) drop(stat, addr string, err error) {
	s.Stats.Inc(stat)
	util.LogDebug("[%s] drop from %s: %s: %v", s.Name, addr, stat, err)
}
