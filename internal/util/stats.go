package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

// StatsSource yields a snapshot of named counters, such as a stack's stats.
type StatsSource interface {
	Snapshot() map[string]uint64
}

// StartStatsReporter launches a goroutine that logs traffic of src every
// interval (10 seconds when zero). Quiet intervals are not logged. It stops
// when ctx is cancelled.
func StartStatsReporter(ctx context.Context, name string, src StatsSource, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := src.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := src.Snapshot()
				d := diff(cur, prev)
				secs := interval.Seconds()

				inS := float64(d["rx_bytes"]) / secs
				outS := float64(d["tx_bytes"]) / secs
				inM := d["msg_received"]
				outM := d["msg_sent"]
				drops := dropCount(d)

				if inM > 0 || outM > 0 || drops > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(fmt.Sprintf("[%s] %s", name, formatStats(inS, outS, inM, outM, drops)))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

func diff(cur, prev map[string]uint64) map[string]uint64 {
	d := make(map[string]uint64, len(cur))
	for k, v := range cur {
		d[k] = v - prev[k]
	}
	return d
}

// dropCount sums every counter that is not plain traffic.
func dropCount(d map[string]uint64) uint64 {
	var n uint64
	for k, v := range d {
		if strings.HasPrefix(k, "tx_") || strings.HasPrefix(k, "rx_") || strings.HasPrefix(k, "msg_") ||
			k == "remote_admitted" {
			continue
		}
		n += v
	}
	return n
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inM, outM, drops uint64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %3d↑ %3d↓ | Drop: %d",
		formatBytes(inS),
		formatBytes(outS),
		outM,
		inM,
		drops,
	)
}
