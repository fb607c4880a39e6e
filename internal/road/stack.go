package road

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/crypto"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/lot"
	"github.com/1ureka/raet/internal/segment"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

// Config is the immutable configuration of a road stack.
type Config struct {
	Name string
	UID  uint32
	HA   string
	// SigKey and PriKey are raw or hex keys. Empty keys are generated.
	SigKey string
	PriKey string

	MaxPacketSize int
	HeadKind      HeadKind
	BodyKind      body.Kind
	CoatKind      CoatKind
	// FootKind FootNaCl also makes inbound signatures mandatory.
	FootKind FootKind

	RxBatch int
	// DoneCache is how many delivered segmented messages are remembered to
	// drop their late duplicate segments.
	DoneCache int
}

// DefaultConfig returns the stock road settings: 1024 byte packets, JSON
// bodies, encrypted coats and signed feet.
func DefaultConfig() Config {
	return Config{
		UID:           1,
		HA:            "0.0.0.0:7530",
		MaxPacketSize: 1024,
		HeadKind:      HeadRaet,
		BodyKind:      body.JSON,
		CoatKind:      CoatNaCl,
		FootKind:      FootNaCl,
		DoneCache:     1024,
	}
}

func (c Config) validate() error {
	switch {
	case !c.HeadKind.Valid():
		return fmt.Errorf("%w: head kind %s", ErrFraming, c.HeadKind)
	case !c.BodyKind.Valid():
		return fmt.Errorf("%w: body kind %s", ErrFraming, c.BodyKind)
	case !c.CoatKind.Valid():
		return fmt.Errorf("%w: coat kind %s", ErrFraming, c.CoatKind)
	case !c.FootKind.Valid():
		return fmt.Errorf("%w: foot kind %s", ErrFraming, c.FootKind)
	case c.MaxPacketSize <= MaxHeadSize || c.MaxPacketSize > MaxPacketSize:
		return fmt.Errorf("%w: max packet size %d", ErrPacketSize, c.MaxPacketSize)
	}
	return nil
}

// RoadStack is a stack of estates talking signed, optionally encrypted
// packets over a datagram transport.
type RoadStack struct {
	*stack.Stack[*RemoteEstate]

	cfg    Config
	local  *LocalEstate
	keeper keeping.Keeper
	done   *lru.Cache[TrayIndex, struct{}]
}

var _ Keyring = (*RoadStack)(nil)

// NewRoadStack builds a road stack over tr. When keeper holds a previous
// local identity it wins over cfg: the stack resumes that uid, name, host
// address and keys in a new session, with the kept remotes re-added.
func NewRoadStack(cfg Config, tr transport.Datagram, keeper keeping.Keeper) (*RoadStack, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.DoneCache <= 0 {
		cfg.DoneCache = DefaultConfig().DoneCache
	}
	done, err := lru.New[TrayIndex, struct{}](cfg.DoneCache)
	if err != nil {
		return nil, err
	}
	s := &RoadStack{cfg: cfg, keeper: keeper, done: done}

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
		s.local, err = NewLocalEstate(lot.Lot{UID: rec.UID, Name: rec.Name, HA: rec.HA, SID: rec.SID},
			[]byte(rec.Sighex), []byte(rec.Prihex))
	} else {
		name := cfg.Name
		if name == "" {
			name = "road-" + uuid.NewString()[:8]
		}
		uid := cfg.UID
		if uid == 0 {
			uid = 1
		}
		s.local, err = NewLocalEstate(lot.Lot{UID: uid, Name: name, HA: cfg.HA, SID: lot.SeedSID()},
			keyOrNil(cfg.SigKey), keyOrNil(cfg.PriKey))
	}
	if err != nil {
		return nil, fmt.Errorf("local estate: %w", err)
	}
	if found {
		s.local.NextSID()
	}

	s.Stack = stack.New[*RemoteEstate](stack.Options{Name: s.local.Name, RxBatch: cfg.RxBatch},
		&s.local.Lot, tr, s, false)

	for _, r := range remotes {
		remote, err := RemoteFromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("restore remote %q: %w", r.Name, err)
		}
		if err := s.Remotes.Add(remote); err != nil {
			return nil, fmt.Errorf("restore remote %q: %w", r.Name, err)
		}
	}
	if found {
		util.LogInfo("[%s] restored uid %d with %d remotes, session %x", s.local.Name, s.local.UID, len(remotes), s.local.SID)
	}

	s.Hooks.Added = s.dumpRemote
	s.Hooks.Removed = func(r *RemoteEstate) {
		if s.keeper != nil {
			if err := s.keeper.ClearRemote(r.lot.Name); err != nil {
				util.LogWarning("[%s] %v", s.Name, err)
			}
		}
	}
	if err := s.dumpLocal(); err != nil {
		return nil, err
	}
	return s, nil
}

func keyOrNil(k string) []byte {
	if k == "" {
		return nil
	}
	return []byte(k)
}

// Config returns the stack configuration.
func (s *RoadStack) Config() Config { return s.cfg }

// Estate returns the local estate.
func (s *RoadStack) Estate() *LocalEstate { return s.local }

func (s *RoadStack) Signer() *crypto.Signer       { return s.local.signer }
func (s *RoadStack) Privateer() *crypto.Privateer { return s.local.privateer }

func (s *RoadStack) Peer(uid uint32) (*RemoteEstate, bool) { return s.Remotes.ByUID(uid) }

// Open opens the transport and records the bound address as the local
// host address.
func (s *RoadStack) Open() error {
	if err := s.Stack.Open(); err != nil {
		return err
	}
	s.local.HA = s.Transport.Addr()
	return s.dumpLocal()
}

func (s *RoadStack) dumpLocal() error {
	if s.keeper == nil {
		return nil
	}
	return s.keeper.DumpLocal(s.local.Record())
}

func (s *RoadStack) dumpRemote(r *RemoteEstate) {
	if s.keeper == nil {
		return
	}
	if err := s.keeper.DumpRemote(r.Record()); err != nil {
		util.LogWarning("[%s] %v", s.Name, err)
	}
}

// PackTx frames msg for remote as a new transaction of the local session.
func (s *RoadStack) PackTx(msg stack.TxMsg, remote *RemoteEstate) ([][]byte, error) {
	h := NewHead()
	h.Kind = s.cfg.HeadKind
	h.PacketKind = PacketMessage
	h.TrnsKind = TrnsMessage
	h.SE = s.local.UID
	h.DE = remote.lot.UID
	h.SI = s.local.SID
	h.TI = s.local.NextTI()
	h.BodyKind = s.cfg.BodyKind
	h.CoatKind = s.cfg.CoatKind
	h.FootKind = s.cfg.FootKind

	tray := NewTxTray(h, msg.Body)
	if err := tray.Pack(s, s.cfg.MaxPacketSize); err != nil {
		return nil, err
	}
	if len(tray.Packets) > 1 {
		util.LogDebug("[%s] message %s split into %d packets", s.Name, tray.Index(), len(tray.Packets))
	}
	return tray.Datagrams(), nil
}

// ProcessRx parses, authenticates and routes one inbound packet. Every drop
// is counted.
func (s *RoadStack) ProcessRx(w stack.Wire) {
	p, err := Parse(w.Data)
	if err != nil {
		s.drop(stack.StatParsingError, w.Addr, err)
		return
	}
	h := p.Head
	if h.PacketKind != PacketMessage {
		s.drop(stack.StatUnhandledPacket, w.Addr, fmt.Errorf("%s packet", h.PacketKind))
		return
	}
	if h.DE != s.local.UID {
		s.drop(stack.StatMisaddressed, w.Addr, fmt.Errorf("de %d", h.DE))
		return
	}
	remote, ok := s.Remotes.ByUID(h.SE)
	if !ok {
		s.drop(stack.StatUnknownPeer, w.Addr, fmt.Errorf("se %d", h.SE))
		return
	}
	if err := p.Verify(s, s.cfg.FootKind == FootNaCl); err != nil {
		var key string
		if remote.Verifier != nil {
			key = util.Fingerprint(remote.Verifier.Key())
		}
		s.drop(stack.StatVerificationFailure, w.Addr, fmt.Errorf("%w (key %s)", err, key))
		return
	}
	if !s.checkSession(remote, h.SI, w.Addr) {
		return
	}

	if h.SC == 1 {
		b, err := OpenCoat(h, p.Coat, s)
		if err != nil {
			s.dropOpen(w.Addr, err)
			return
		}
		s.Deliver(b, remote)
		return
	}
	s.addSegment(remote, p, w.Addr)
}

// checkSession tracks the remote's session. A new valid session replaces the
// old one and reaps the old session's trays; an older one is dropped.
func (s *RoadStack) checkSession(remote *RemoteEstate, si uint32, addr string) bool {
	if si == 0 || si == remote.RSID {
		return true
	}
	if !lot.ValidateSID(si, remote.RSID) {
		s.drop(stack.StatStaleSession, addr, fmt.Errorf("si %x behind %x", si, remote.RSID))
		return false
	}
	if n := remote.reapStale(si); n > 0 {
		s.Stats.Add(stack.StatStaleBook, uint64(n))
		util.LogDebug("[%s] reaped %d stale trays from %s", s.Name, n, remote.lot.Name)
	}
	s.forgetDone(remote.lot.UID, si)
	remote.RSID = si
	s.dumpRemote(remote)
	return true
}

// forgetDone drops completed tray indexes from uid's sessions other than si.
func (s *RoadStack) forgetDone(uid, si uint32) {
	for _, idx := range s.done.Keys() {
		if idx.Remote == uid && idx.SI != si {
			s.done.Remove(idx)
		}
	}
}

func (s *RoadStack) addSegment(remote *RemoteEstate, p *Packet, addr string) {
	idx := rxIndex(p.Head)
	if s.done.Contains(idx) {
		s.drop(stack.StatDuplicateSegment, addr, fmt.Errorf("late segment %d of %s", p.Head.SN, idx))
		return
	}
	tray, ok := remote.trays[idx]
	if !ok {
		var err error
		if tray, err = NewRxTray(p); err != nil {
			s.drop(stack.StatSegmentationError, addr, err)
			return
		}
		remote.trays[idx] = tray
	}
	dup, err := tray.Add(p)
	if err != nil {
		s.drop(stack.StatSegmentationError, addr, err)
		return
	}
	if dup {
		s.drop(stack.StatDuplicateSegment, addr, fmt.Errorf("segment %d of %s", p.Head.SN, idx))
		return
	}
	if !tray.Complete() {
		return
	}

	delete(remote.trays, idx)
	s.done.Add(idx, struct{}{})
	b, err := tray.Open(s)
	if err != nil {
		if errors.Is(err, segment.ErrSegmentation) {
			s.drop(stack.StatSegmentationError, addr, err)
		} else {
			s.dropOpen(addr, err)
		}
		return
	}
	s.Deliver(b, remote)
}

func (s *RoadStack) dropOpen(addr string, err error) {
	switch {
	case errors.Is(err, crypto.ErrDecrypt):
		s.drop(stack.StatDecryptError, addr, err)
	case errors.Is(err, ErrUnknownPeer):
		s.drop(stack.StatUnknownPeer, addr, err)
	default:
		s.drop(stack.StatParsingError, addr, err)
	}
}

func (s *RoadStack) drop(stat, addr string, err error) {
	s.Stats.Inc(stat)
	util.LogDebug("[%s] drop from %s: %s: %v", s.Name, addr, stat, err)
}
