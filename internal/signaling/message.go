package signaling

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeEstate    messageType = "estate"
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged over the WebSocket during signaling.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Estate    *Announce   `json:"estate,omitempty"`
}

// Announce introduces a road estate to its peer: enough to build the
// matching remote on the other side.
type Announce struct {
	UID    uint32 `json:"uid"`
	Name   string `json:"name"`
	Verhex string `json:"verhex"`
	Pubhex string `json:"pubhex"`
}
