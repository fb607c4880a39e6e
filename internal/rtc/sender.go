package rtc

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/raet/internal/transport"
)

const (
	highWaterMark = 256 * 1024 // refuse sends while bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // signal writable when bufferedAmount drops below this
)

// gate applies open and backpressure control to a DataChannel without ever
// blocking the caller. A refused send is reported as transport.ErrWouldBlock
// and the stack retries it on a later service cycle.
type gate struct {
	dc          *webrtc.DataChannel
	open        atomic.Bool
	drainSignal chan struct{}
}

func newGate(dc *webrtc.DataChannel) *gate {
	g := &gate{
		dc:          dc,
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case g.drainSignal <- struct{}{}:
		default:
		}
	})

	return g
}

// admit reports whether n more bytes may be queued on the channel.
func (g *gate) admit(n int) error {
	if !g.open.Load() {
		return transport.ErrWouldBlock
	}
	if g.dc.BufferedAmount()+uint64(n) > uint64(highWaterMark) {
		return transport.ErrWouldBlock
	}
	return nil
}
