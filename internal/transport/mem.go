package transport

import (
	"fmt"
	"sync"
)

// MemNetwork is an in-process datagram network. Datagrams are delivered
// immediately into the destination's bounded queue in send order.
//
// Send failures can be injected per destination to exercise flow control.
type MemNetwork struct {
	mu       sync.Mutex
	nodes    map[string]*Mem
	capacity int
	faults   map[string][]error
}

// NewMemNetwork creates a network whose per-node queues hold capacity
// datagrams. A send to a full queue fails with ErrWouldBlock.
func NewMemNetwork(capacity int) *MemNetwork {
	return &MemNetwork{
		nodes:    make(map[string]*Mem),
		capacity: capacity,
		faults:   make(map[string][]error),
	}
}

// Node returns an unopened transport bound to addr on this network.
func (n *MemNetwork) Node(addr string) *Mem {
	return &Mem{net: n, addr: addr}
}

// Fail queues errors that the next sends to addr will return, one per send,
// before normal delivery resumes. A nil entry lets one send through.
func (n *MemNetwork) Fail(addr string, errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults[addr] = append(n.faults[addr], errs...)
}

func (n *MemNetwork) deliver(b []byte, from, to string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if errs := n.faults[to]; len(errs) > 0 {
		n.faults[to] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	dst, ok := n.nodes[to]
	if !ok {
		return fmt.Errorf("%w: no node at %s", ErrPeerGone, to)
	}
	if len(dst.inbox) >= n.capacity {
		return ErrWouldBlock
	}
	dst.inbox = append(dst.inbox, memDatagram{data: append([]byte(nil), b...), from: from})
	return nil
}

type memDatagram struct {
	data []byte
	from string
}

// Mem is one node of a MemNetwork.
type Mem struct {
	net   *MemNetwork
	addr  string
	open  bool
	inbox []memDatagram // guarded by net.mu
}

var _ Datagram = (*Mem)(nil)

func (m *Mem) Open() error {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	if _, taken := m.net.nodes[m.addr]; taken {
		return fmt.Errorf("transport: address %s in use", m.addr)
	}
	m.net.nodes[m.addr] = m
	m.open = true
	return nil
}

func (m *Mem) Send(b []byte, addr string) (int, error) {
	if !m.open {
		return 0, ErrClosed
	}
	if err := m.net.deliver(b, m.addr, addr); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (m *Mem) Receive() ([]byte, string, error) {
	if !m.open {
		return nil, "", ErrClosed
	}
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	if len(m.inbox) == 0 {
		return nil, "", nil
	}
	d := m.inbox[0]
	m.inbox[0] = memDatagram{}
	m.inbox = m.inbox[1:]
	return d.data, d.from, nil
}

func (m *Mem) Close() error {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	if m.open {
		delete(m.net.nodes, m.addr)
		m.open = false
		m.inbox = nil
	}
	return nil
}

func (m *Mem) Addr() string { return m.addr }

// Pending returns how many datagrams wait in this node's queue.
func (m *Mem) Pending() int {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	return len(m.inbox)
}
