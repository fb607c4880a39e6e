// Package lot models stack endpoint identity: the uid, name, host address and
// session id shared by road estates and lane yards.
package lot

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MaxSID is the largest session id before wraparound.
const MaxSID uint32 = 0xFFFFFFFF

// Lot is the identity of one stack endpoint, local or remote.
//
// Once set, SID changes only through NextSID. Zero means no session yet.
type Lot struct {
	UID  uint32
	Name string
	HA   string
	SID  uint32
}

// NextSID advances the session id, skipping zero on wraparound, and returns
// the new value. Not safe for concurrent use.
func (l *Lot) NextSID() uint32 {
	l.SID++
	if l.SID == 0 {
		l.SID = 1
	}
	return l.SID
}

var lastSeed atomic.Uint32

// SeedSID returns the first session id for an identity with no stored
// session. It follows wall clock seconds, so an endpoint restarted without a
// keeper lands ahead of its previous session, and it never repeats within a
// process.
func SeedSID() uint32 {
	return seedSID(uint32(time.Now().Unix()))
}

func seedSID(now uint32) uint32 {
	for {
		last := lastSeed.Load()
		next := now
		if !ValidateSID(next, last) {
			next = last + 1
		}
		if next == 0 {
			next = 1
		}
		if lastSeed.CompareAndSwap(last, next) {
			return next
		}
	}
}

// ValidateSID reports whether sid may replace old. An old of zero accepts
// anything; otherwise sid must lie in the half of the 32-bit circle ahead of
// old, so equal values are rejected.
func ValidateSID(sid, old uint32) bool {
	if old == 0 {
		return true
	}
	delta := sid - old
	return delta != 0 && delta < 1<<31
}

func (l *Lot) String() string {
	return fmt.Sprintf("%s(uid=%d ha=%s sid=%d)", l.Name, l.UID, l.HA, l.SID)
}
