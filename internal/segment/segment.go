// Package segment holds the sizing and reassembly logic shared by road trays
// and lane books: splitting a flat buffer into wire sized chunks and
// collecting chunks back into the original buffer.
package segment

import (
	"errors"
	"fmt"
)

// MaxCount is the largest segment count a header can carry.
const MaxCount = 0xFFFF

// ErrSegmentation is returned for impossible segment sizing or when a
// reassembled message does not match its declared length.
var ErrSegmentation = errors.New("segmentation")

// ErrFraming is the root of road and lane framing errors: malformed or
// oversized heads, unknown fields, length mismatches and unknown kind tags.
var ErrFraming = errors.New("framing")

// Count returns how many segments of at most budget bytes are needed for
// total bytes. An empty buffer still takes one segment.
func Count(total, budget int) (int, error) {
	if budget <= 0 {
		return 0, fmt.Errorf("%w: no room for payload (budget %d)", ErrSegmentation, budget)
	}
	if total == 0 {
		return 1, nil
	}
	n := (total + budget - 1) / budget
	if n > MaxCount {
		return 0, fmt.Errorf("%w: %d bytes need %d segments, limit %d", ErrSegmentation, total, n, MaxCount)
	}
	return n, nil
}

// Split cuts flat into contiguous chunks of at most budget bytes. The chunks
// alias flat.
func Split(flat []byte, budget int) ([][]byte, error) {
	n, err := Count(len(flat), budget)
	if err != nil {
		return nil, err
	}
	chunks := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		lo := i * budget
		hi := min(lo+budget, len(flat))
		chunks = append(chunks, flat[lo:hi])
	}
	return chunks, nil
}
