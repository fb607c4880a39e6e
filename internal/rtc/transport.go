// Package rtc carries stack datagrams over a WebRTC DataChannel.
//
// A Transport wraps a single PeerConnection and DataChannel pair. Signaling
// is done through the exposed SDP/ICE methods (see package signaling); once
// the channel opens the Transport behaves like any other transport.Datagram
// with exactly one peer, addressed as Config.PeerAddr.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

const (
	DefaultInboxSize = 256
	DefaultLocalAddr = "rtc:local"
	DefaultPeerAddr  = "rtc:peer"
)

// Config tunes a Transport. The zero value is usable.
type Config struct {
	// ICEServers lists STUN urls. Nil means the public Google servers; an
	// empty non-nil slice means host candidates only.
	ICEServers []string
	// Loopback gathers loopback candidates, for peers on the same host.
	Loopback bool
	// InboxSize bounds the number of undelivered inbound messages. Messages
	// arriving while the inbox is full are dropped.
	InboxSize int
	LocalAddr string
	PeerAddr  string
}

func (c Config) withDefaults() Config {
	if c.ICEServers == nil {
		c.ICEServers = stunServers
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	if c.LocalAddr == "" {
		c.LocalAddr = DefaultLocalAddr
	}
	if c.PeerAddr == "" {
		c.PeerAddr = DefaultPeerAddr
	}
	return c
}

// Transport is a transport.Datagram over one DataChannel.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type Transport struct {
	cfg Config

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	gate       *gate
	inbox      chan []byte
	dropped    atomic.Uint64
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	opened  bool
	pcState webrtc.PeerConnectionState
}

var _ transport.Datagram = (*Transport)(nil)

// NewTransport creates a Transport backed by a new PeerConnection and a
// pre-negotiated DataChannel. The Transport is alive as long as the
// DataChannel is open and ctx has not been cancelled.
func NewTransport(ctx context.Context, cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()

	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		cfg:        cfg,
		pc:         pc,
		dc:         dc,
		gate:       newGate(dc),
		inbox:      make(chan []byte, cfg.InboxSize),
		openSignal: make(chan struct{}),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() {
			t.gate.open.Store(true)
			close(t.openSignal)
		})
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		t.gate.open.Store(false)
		tCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case t.inbox <- append([]byte(nil), msg.Data...):
		default:
			t.dropped.Add(1)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Writable returns a channel signalled when buffered outbound data drops
// below the low water mark after a refused send.
func (t *Transport) Writable() <-chan struct{} {
	return t.gate.drainSignal
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// Dropped returns the number of inbound messages lost to a full inbox.
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

// ---------------------------------------------------------------------------
// Datagram
// ---------------------------------------------------------------------------

// Open marks the transport usable by a stack. Sends made before the
// DataChannel is ready fail with transport.ErrWouldBlock.
func (t *Transport) Open() error {
	if t.ctx.Err() != nil {
		return transport.ErrClosed
	}
	t.mu.Lock()
	t.opened = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) isOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.opened
}

// Send queues b on the DataChannel. addr must be the configured peer
// address; the channel has no other destination.
func (t *Transport) Send(b []byte, addr string) (int, error) {
	if !t.isOpen() {
		return 0, transport.ErrClosed
	}
	if t.ctx.Err() != nil {
		return 0, fmt.Errorf("%w: data channel closed", transport.ErrPeerGone)
	}
	if addr != t.cfg.PeerAddr {
		return 0, fmt.Errorf("%w: no peer at %s", transport.ErrPeerGone, addr)
	}
	if err := t.gate.admit(len(b)); err != nil {
		return 0, err
	}
	if err := t.dc.Send(b); err != nil {
		if t.ctx.Err() != nil || t.dc.ReadyState() != webrtc.DataChannelStateOpen {
			return 0, fmt.Errorf("%w: %v", transport.ErrPeerGone, err)
		}
		return 0, err
	}
	return len(b), nil
}

// Receive returns the next inbound message, if any. Once the channel is
// closed and drained it returns transport.ErrClosed.
func (t *Transport) Receive() ([]byte, string, error) {
	if !t.isOpen() {
		return nil, "", transport.ErrClosed
	}
	select {
	case b := <-t.inbox:
		return b, t.cfg.PeerAddr, nil
	default:
	}
	if t.ctx.Err() != nil {
		return nil, "", transport.ErrClosed
	}
	return nil, "", nil
}

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.opened = false
	t.mu.Unlock()
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// Addr returns the local label of this end of the channel.
func (t *Transport) Addr() string { return t.cfg.LocalAddr }

// PeerAddr returns the address under which the peer is reached.
func (t *Transport) PeerAddr() string { return t.cfg.PeerAddr }

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// LocalDescription returns the local SDP including every candidate gathered
// so far.
func (t *Transport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

// GatheringComplete returns a channel closed once ICE gathering finishes.
// It must be obtained before SetLocalDescription.
func (t *Transport) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(t.pc)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}
