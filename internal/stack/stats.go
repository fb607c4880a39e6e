package stack

import (
	"maps"
	"sync"
)

// Stat names counted by stacks.
const (
	StatInvalidMessage      = "invalid_message"
	StatInvalidDestination  = "invalid_destination"
	StatParsingError        = "parsing_error"
	StatUnknownPeer         = "unknown_peer"
	StatVerificationFailure = "verification_failure"
	StatDecryptError        = "decrypt_error"
	StatUnhandledPacket     = "unhandled_packet"
	StatMisaddressed        = "misaddressed"
	StatUnacceptedSource    = "unaccepted_source"
	StatStaleSession        = "stale_session"
	StatStaleBook           = "stale_book"
	StatDuplicateSegment    = "duplicate_segment"
	StatSegmentationError   = "segmentation_error"
	StatRemoteReaped        = "remote_reaped"
	StatRemoteAdmitted      = "remote_admitted"
	StatTxDeferred          = "tx_deferred"
	StatTxSent              = "tx_sent"
	StatTxBytes             = "tx_bytes"
	StatRxReceived          = "rx_received"
	StatRxBytes             = "rx_bytes"
	StatMsgReceived         = "msg_received"
	StatMsgSent             = "msg_sent"
)

// Stats is a set of named counters. It is the main observability surface of
// a stack and may be read from other goroutines, e.g. a metrics scrape.
type Stats struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// NewStats returns an empty counter set.
func NewStats() *Stats {
	return &Stats{counts: make(map[string]uint64)}
}

// Inc adds one to name.
func (s *Stats) Inc(name string) { s.Add(name, 1) }

// Add adds n to name.
func (s *Stats) Add(name string, n uint64) {
	s.mu.Lock()
	s.counts[name] += n
	s.mu.Unlock()
}

// Get returns the current value of name.
func (s *Stats) Get(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// Snapshot copies every counter.
func (s *Stats) Snapshot() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counts)
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	clear(s.counts)
	s.mu.Unlock()
}
