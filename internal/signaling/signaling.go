// Package signaling brings up an rtc road between two estates. A short lived
// WebSocket carries the estate announcements and the SDP/ICE exchange;
// callers receive a ready Transport plus the peer's Announce.
package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/raet/internal/road"
	"github.com/1ureka/raet/internal/rtc"
	"github.com/1ureka/raet/internal/util"
)

// ErrAnnounce is returned for a malformed peer announcement.
var ErrAnnounce = errors.New("signaling: bad announce")

// Options configures either side of the exchange.
type Options struct {
	// Local is announced to the peer.
	Local Announce
	// RTC configures the transport that is created.
	RTC rtc.Config
	// Addr is the host's WebSocket listen address; ":0" picks a port.
	Addr string
	// PIN, when set on the host, must be sent by the client as ?pin=.
	PIN string
	// OnListen is called with the bound port once the host listens.
	OnListen func(port int)
}

// Session is an established rtc road.
type Session struct {
	Transport *rtc.Transport
	Peer      Announce
}

// AnnounceFor describes a local road estate.
func AnnounceFor(e *road.LocalEstate) Announce {
	return Announce{
		UID:    e.UID,
		Name:   e.Name,
		Verhex: e.Signer().VerHex(),
		Pubhex: e.Privateer().PubHex(),
	}
}

func (a Announce) validate() error {
	switch {
	case a.UID == 0:
		return fmt.Errorf("%w: uid 0", ErrAnnounce)
	case a.Name == "":
		return fmt.Errorf("%w: empty name", ErrAnnounce)
	}
	return nil
}

// Remote builds the road remote for the peer, reachable through the
// session's transport.
func (s *Session) Remote() (*road.RemoteEstate, error) {
	return road.NewRemoteEstate(s.Peer.UID, s.Peer.Name, s.Transport.PeerAddr(),
		[]byte(s.Peer.Verhex), []byte(s.Peer.Pubhex))
}

// EstablishAsHost executes the host-side flow:
//  1. Start a WS server and wait for the client
//  2. Exchange estate announcements
//  3. Send the Offer and trickle ICE until the DataChannel opens
//  4. Close the WS server and connection
func EstablishAsHost(ctx context.Context, opts Options) (*Session, error) {
	if err := opts.Local.validate(); err != nil {
		return nil, err
	}
	if opts.Addr == "" {
		opts.Addr = ":0"
	}

	srv := newServer(opts.PIN)
	port, err := srv.start(opts.Addr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	util.LogInfo("signaling server listening on port %d", port)
	if opts.OnListen != nil {
		opts.OnListen(port)
	}

	wsConn, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for client: %w", err)
	}
	defer wsConn.Close()
	util.LogDebug("client connected")

	return establish(ctx, wsConn, opts, true)
}

// EstablishAsClient executes the client-side flow against the host at
// wsURL, answering its Offer.
func EstablishAsClient(ctx context.Context, wsURL string, opts Options) (*Session, error) {
	if err := opts.Local.validate(); err != nil {
		return nil, err
	}

	wsConn, err := connect(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogDebug("WS connected: %s", wsURL)

	return establish(ctx, wsConn, opts, false)
}

func establish(ctx context.Context, wsConn *websocket.Conn, opts Options, offer bool) (*Session, error) {
	tr, err := rtc.NewTransport(ctx, opts.RTC)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	x := newExchange(tr, wsConn)
	tr.OnICECandidate(x.trickle)

	errCh := make(chan error, 1)
	go func() {
		errCh <- x.watch() // exits once wsConn is closed by the caller
	}()

	fail := func(err error) (*Session, error) {
		tr.Close()
		return nil, err
	}

	if err := x.announce(opts.Local); err != nil {
		return fail(fmt.Errorf("failed to announce estate: %w", err))
	}
	if offer {
		if err := x.describe(webrtc.SDPTypeOffer); err != nil {
			return fail(fmt.Errorf("failed to send Offer: %w", err))
		}
	}

	select {
	case <-tr.Ready():
		util.LogDebug("WebRTC DataChannel established, closing WS")
	case err := <-errCh:
		return fail(fmt.Errorf("signaling failed: %w", err))
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	// The announcement precedes the SDP on the wire, so it is already here.
	select {
	case peer := <-x.estate:
		if err := peer.validate(); err != nil {
			return fail(err)
		}
		return &Session{Transport: tr, Peer: peer}, nil
	case err := <-errCh:
		return fail(fmt.Errorf("signaling failed: %w", err))
	case <-ctx.Done():
		return fail(ctx.Err())
	}
}
