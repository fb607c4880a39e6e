package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/raet/internal/rtc"
)

var errDuplicateEstate = errors.New("peer announced its estate twice")

// exchange is one signaling conversation over a WebSocket. It writes the
// local estate, descriptions and candidates, and applies the peer's to the
// transport.
type exchange struct {
	tr   *rtc.Transport
	conn *websocket.Conn
	wmu  sync.Mutex

	// estate receives the peer's announcement exactly once.
	estate chan Announce

	// Candidates can overtake the description they belong to.
	haveRemote bool
	pending    []webrtc.ICECandidateInit
}

func newExchange(tr *rtc.Transport, conn *websocket.Conn) *exchange {
	return &exchange{tr: tr, conn: conn, estate: make(chan Announce, 1)}
}

func (x *exchange) write(msg message) error {
	x.wmu.Lock()
	defer x.wmu.Unlock()
	return x.conn.WriteJSON(msg)
}

func (x *exchange) announce(a Announce) error {
	return x.write(message{Type: msgTypeEstate, Estate: &a})
}

// describe creates the local offer or answer, installs it and sends it.
func (x *exchange) describe(typ webrtc.SDPType) error {
	create, kind := x.tr.CreateOffer, msgTypeOffer
	if typ == webrtc.SDPTypeAnswer {
		create, kind = x.tr.CreateAnswer, msgTypeAnswer
	}
	desc, err := create()
	if err != nil {
		return fmt.Errorf("create %s: %w", kind, err)
	}
	if err := x.tr.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local %s: %w", kind, err)
	}
	return x.write(message{Type: kind, SDP: desc.SDP})
}

// trickle forwards a gathered candidate. A nil candidate ends gathering and
// is not sent; a lost candidate only narrows the options.
func (x *exchange) trickle(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return
	}
	_ = x.write(message{Type: msgTypeCandidate, Candidate: string(data)})
}

// watch applies inbound messages until the WebSocket fails or closes.
func (x *exchange) watch() error {
	for {
		var msg message
		if err := x.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case msgTypeEstate:
			if msg.Estate == nil {
				return fmt.Errorf("%w: empty estate message", ErrAnnounce)
			}
			select {
			case x.estate <- *msg.Estate:
			default:
				return errDuplicateEstate
			}

		case msgTypeOffer:
			if err := x.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
				return err
			}
			if err := x.describe(webrtc.SDPTypeAnswer); err != nil {
				return err
			}

		case msgTypeAnswer:
			if err := x.setRemote(webrtc.SDPTypeAnswer, msg.SDP); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if !x.haveRemote {
				x.pending = append(x.pending, init)
				continue
			}
			if err := x.tr.AddICECandidate(init); err != nil {
				return err
			}
		}
	}
}

func (x *exchange) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := x.tr.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return err
	}
	x.haveRemote = true
	for _, c := range x.pending {
		if err := x.tr.AddICECandidate(c); err != nil {
			return err
		}
	}
	x.pending = nil
	return nil
}
