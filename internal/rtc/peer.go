package rtc

import (
	"github.com/pion/webrtc/v4"
)

// Public STUN servers used when Config.ICEServers is nil. No TURN: the road
// between two stacks is expected to be direct once signaling is done.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection for cfg.
func newPeerConnection(cfg Config) (*webrtc.PeerConnection, error) {
	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(cfg.Loopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

// newDataChannel creates a pre-negotiated DataChannel with datagram
// semantics: unordered and never retransmitted. Both sides create it with
// ID 0, so no OnDataChannel round trip is needed.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	retransmits := uint16(0)
	id := uint16(0)

	return pc.CreateDataChannel("raet", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		Negotiated:     &negotiated,
		MaxRetransmits: &retransmits,
		ID:             &id,
	})
}
