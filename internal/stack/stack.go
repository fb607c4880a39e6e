// Package stack is the engine shared by road and lane stacks: the remote
// registry, the four FIFO queues, named stats, the service stages and send
// flow control.
//
// A Stack is single threaded. Nothing in it blocks or starts goroutines;
// the owner decides when to call a service stage. Hosts that need
// concurrent access must serialize all calls themselves.
package stack

import (
	"errors"
	"fmt"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/lot"
	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

var (
	// ErrInvalidMessage is returned by Transmit for a nil body.
	ErrInvalidMessage = errors.New("stack: invalid message")
	// ErrInvalidDestination is returned by Transmit when the destination is
	// unknown, or omitted with no remotes to default to.
	ErrInvalidDestination = errors.New("stack: invalid destination")
)

// Wire is one raw datagram with its transport address. UID names the
// destination remote of outbound datagrams and is zero on inbound ones.
type Wire struct {
	Data []byte
	Addr string
	UID  uint32
}

// RxMsg is a delivered inbound message.
type RxMsg struct {
	Body body.Body
	UID  uint32
	Name string
}

// TxMsg is an outbound message waiting to be packed.
type TxMsg struct {
	Body body.Body
	UID  uint32
}

// Handler is the variant specific half of a stack.
type Handler[R Remote] interface {
	// ProcessRx parses one inbound datagram. Drops are counted in the
	// stack stats; nothing is returned.
	ProcessRx(w Wire)
	// PackTx frames msg for remote into one or more datagrams.
	PackTx(msg TxMsg, remote R) ([][]byte, error)
}

// Hooks are optional callbacks run after registry changes made through the
// stack, including reaps.
type Hooks[R Remote] struct {
	Added   func(R)
	Removed func(R)
}

// Options configure the engine half of a stack.
type Options struct {
	Name string
	// RxBatch caps datagrams drained per ServiceReceives. Zero drains until
	// the transport is empty.
	RxBatch int
}

// Stack is the shared engine. Road and lane stacks embed it and supply a
// Handler.
type Stack[R Remote] struct {
	Name      string
	Local     *lot.Lot
	Transport transport.Datagram
	Remotes   *Registry[R]
	Stats     *Stats
	Hooks     Hooks[R]

	RxWire Queue[Wire]
	RxMsgs Queue[RxMsg]
	TxMsgs Queue[TxMsg]
	TxWire Queue[Wire]

	handler Handler[R]
	rxBatch int
}

// New returns an engine bound to local and tr. uniqueHA makes host
// addresses a registry key.
func New[R Remote](opts Options, local *lot.Lot, tr transport.Datagram, h Handler[R], uniqueHA bool) *Stack[R] {
	name := opts.Name
	if name == "" {
		name = local.Name
	}
	return &Stack[R]{
		Name:      name,
		Local:     local,
		Transport: tr,
		Remotes:   NewRegistry[R](local, uniqueHA),
		Stats:     NewStats(),
		handler:   h,
		rxBatch:   opts.RxBatch,
	}
}

// Open opens the transport.
func (s *Stack[R]) Open() error {
	if err := s.Transport.Open(); err != nil {
		return fmt.Errorf("open %s transport: %w", s.Name, err)
	}
	util.LogDebug("[%s] listening on %s", s.Name, s.Transport.Addr())
	return nil
}

// Close closes the transport. Queued items are kept.
func (s *Stack[R]) Close() error {
	return s.Transport.Close()
}

// AddRemote registers r.
func (s *Stack[R]) AddRemote(r R) error {
	if err := s.Remotes.Add(r); err != nil {
		return err
	}
	if s.Hooks.Added != nil {
		s.Hooks.Added(r)
	}
	return nil
}

// RemoveRemote unregisters r.
func (s *Stack[R]) RemoveRemote(r R) error {
	if err := s.Remotes.Remove(r); err != nil {
		return err
	}
	if s.Hooks.Removed != nil {
		s.Hooks.Removed(r)
	}
	return nil
}

// Transmit queues msg for the remote with uid. A zero uid picks the first
// remote. Failures are counted as well as returned.
func (s *Stack[R]) Transmit(msg body.Body, uid uint32) error {
	if msg == nil {
		s.Stats.Inc(StatInvalidMessage)
		return ErrInvalidMessage
	}
	if uid == 0 {
		all := s.Remotes.All()
		if len(all) == 0 {
			s.Stats.Inc(StatInvalidDestination)
			return fmt.Errorf("%w: no remotes", ErrInvalidDestination)
		}
		uid = all[0].Lot().UID
	} else if _, ok := s.Remotes.ByUID(uid); !ok {
		s.Stats.Inc(StatInvalidDestination)
		return fmt.Errorf("%w: uid %d", ErrInvalidDestination, uid)
	}
	s.TxMsgs.Push(TxMsg{Body: msg, UID: uid})
	return nil
}

// Deliver queues a reassembled inbound message from remote.
func (s *Stack[R]) Deliver(b body.Body, remote R) {
	l := remote.Lot()
	s.RxMsgs.Push(RxMsg{Body: b, UID: l.UID, Name: l.Name})
	s.Stats.Inc(StatMsgReceived)
}

// ServiceReceives drains the transport into the inbound wire queue.
func (s *Stack[R]) ServiceReceives() error {
	for n := 0; s.rxBatch <= 0 || n < s.rxBatch; n++ {
		got, err := s.ServiceReceiveOnce()
		if err != nil || !got {
			return err
		}
	}
	return nil
}

// ServiceReceiveOnce reads at most one datagram. It reports whether one was
// read.
func (s *Stack[R]) ServiceReceiveOnce() (bool, error) {
	data, addr, err := s.Transport.Receive()
	if err != nil {
		return false, fmt.Errorf("receive on %s: %w", s.Name, err)
	}
	if data == nil {
		return false, nil
	}
	s.Stats.Inc(StatRxReceived)
	s.Stats.Add(StatRxBytes, uint64(len(data)))
	s.RxWire.Push(Wire{Data: data, Addr: addr})
	return true, nil
}

// ServiceRxes parses every queued inbound datagram.
func (s *Stack[R]) ServiceRxes() {
	for s.ServiceRxOnce() {
	}
}

// ServiceRxOnce parses at most one queued inbound datagram.
func (s *Stack[R]) ServiceRxOnce() bool {
	w, ok := s.RxWire.Pop()
	if !ok {
		return false
	}
	s.handler.ProcessRx(w)
	return true
}

// ServiceTxMsgs packs every queued outbound message onto the outbound wire
// queue. Pack failures are local defects and stop the stage.
func (s *Stack[R]) ServiceTxMsgs() error {
	for {
		more, err := s.ServiceTxMsgOnce()
		if err != nil || !more {
			return err
		}
	}
}

// ServiceTxMsgOnce packs at most one queued outbound message.
func (s *Stack[R]) ServiceTxMsgOnce() (bool, error) {
	m, ok := s.TxMsgs.Pop()
	if !ok {
		return false, nil
	}
	remote, ok := s.Remotes.ByUID(m.UID)
	if !ok {
		// Removed since Transmit.
		s.Stats.Inc(StatInvalidDestination)
		util.LogDebug("[%s] dropping message for vanished uid %d", s.Name, m.UID)
		return true, nil
	}
	parts, err := s.handler.PackTx(m, remote)
	if err != nil {
		return true, fmt.Errorf("pack message for %s: %w", remote.Lot().Name, err)
	}
	ha := remote.Lot().HA
	for _, p := range parts {
		s.TxWire.Push(Wire{Data: p, Addr: ha, UID: m.UID})
	}
	s.Stats.Inc(StatMsgSent)
	return true, nil
}

// ServiceTxes hands every queued outbound datagram to the transport.
//
// A would-block send defers the datagram and blocks its address for the
// rest of the cycle, so later datagrams to that address are deferred behind
// it in order. Deferred datagrams go back on the queue at the end of the
// cycle. A send to a vanished peer reaps its remote. Any other error is
// returned after requeueing what was deferred.
func (s *Stack[R]) ServiceTxes() error {
	blocked := make(map[string]struct{})
	var deferred []Wire
	defer func() {
		for _, w := range deferred {
			s.TxWire.Push(w)
		}
	}()

	for {
		w, ok := s.TxWire.Pop()
		if !ok {
			return nil
		}
		if _, ok := blocked[w.Addr]; ok {
			deferred = append(deferred, w)
			continue
		}
		switch class, err := s.send(w); class {
		case transport.Retry:
			blocked[w.Addr] = struct{}{}
			deferred = append(deferred, w)
		case transport.Fatal:
			return err
		}
	}
}

// ServiceTxOnce sends at most one queued outbound datagram. A would-block
// datagram stays at the front of the queue.
func (s *Stack[R]) ServiceTxOnce() (bool, error) {
	w, ok := s.TxWire.Pop()
	if !ok {
		return false, nil
	}
	switch class, err := s.send(w); class {
	case transport.Retry:
		s.TxWire.PushFront(w)
	case transport.Fatal:
		return true, err
	}
	return true, nil
}

func (s *Stack[R]) send(w Wire) (transport.Class, error) {
	_, err := s.Transport.Send(w.Data, w.Addr)
	class := transport.Classify(err)
	switch class {
	case transport.Sent:
		s.Stats.Inc(StatTxSent)
		s.Stats.Add(StatTxBytes, uint64(len(w.Data)))
	case transport.Retry:
		s.Stats.Inc(StatTxDeferred)
	case transport.Reap:
		s.reap(w, err)
	case transport.Fatal:
		return class, fmt.Errorf("send to %s: %w", w.Addr, err)
	}
	return class, nil
}

func (s *Stack[R]) reap(w Wire, cause error) {
	remote, ok := s.Remotes.ByUID(w.UID)
	if !ok || remote.Lot().HA != w.Addr {
		util.LogDebug("[%s] dropping datagram for gone peer %s: %v", s.Name, w.Addr, cause)
		return
	}
	if err := s.RemoveRemote(remote); err != nil {
		util.LogDebug("[%s] reap %s: %v", s.Name, w.Addr, err)
		return
	}
	s.Stats.Inc(StatRemoteReaped)
	util.LogWarning("[%s] reaped remote %s: %v", s.Name, remote.Lot(), cause)
}

// ServiceAllRx receives, then parses everything received.
func (s *Stack[R]) ServiceAllRx() error {
	if err := s.ServiceReceives(); err != nil {
		return err
	}
	s.ServiceRxes()
	return nil
}

// ServiceAllTx packs every outbound message, then sends every datagram.
func (s *Stack[R]) ServiceAllTx() error {
	if err := s.ServiceTxMsgs(); err != nil {
		return err
	}
	return s.ServiceTxes()
}

// ServiceAll runs a full receive cycle followed by a full send cycle.
func (s *Stack[R]) ServiceAll() error {
	if err := s.ServiceAllRx(); err != nil {
		return err
	}
	return s.ServiceAllTx()
}

// ServiceOneAllRx runs each receive stage for at most one item.
func (s *Stack[R]) ServiceOneAllRx() error {
	if _, err := s.ServiceReceiveOnce(); err != nil {
		return err
	}
	s.ServiceRxOnce()
	return nil
}

// ServiceOneAllTx runs each send stage for at most one item.
func (s *Stack[R]) ServiceOneAllTx() error {
	if _, err := s.ServiceTxMsgOnce(); err != nil {
		return err
	}
	_, err := s.ServiceTxOnce()
	return err
}
