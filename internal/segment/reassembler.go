package segment

import "fmt"

// Slots collects the segments of one multi-part message. Each declared
// segment has one slot; a nil slot is still missing.
//
// Slots is owned by a single stack and needs no locking.
type Slots struct {
	segs    [][]byte
	filled  int
	highest int
}

// NewSlots creates slots for count segments.
func NewSlots(count int) (*Slots, error) {
	s := &Slots{}
	if err := s.Reset(count); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset discards all segments and resizes to count slots.
func (s *Slots) Reset(count int) error {
	if count < 1 || count > MaxCount {
		return fmt.Errorf("%w: segment count %d", ErrSegmentation, count)
	}
	s.segs = make([][]byte, count)
	s.filled = 0
	s.highest = -1
	return nil
}

// Count returns the declared number of segments.
func (s *Slots) Count() int { return len(s.segs) }

// Filled returns how many slots hold a segment.
func (s *Slots) Filled() int { return s.filled }

// Highest returns the highest segment index seen so far, or -1.
func (s *Slots) Highest() int { return s.highest }

// Put stores data at index sn. A second segment for an already filled slot
// is ignored and reported as a duplicate.
func (s *Slots) Put(sn int, data []byte) (dup bool, err error) {
	if sn < 0 || sn >= len(s.segs) {
		return false, fmt.Errorf("%w: segment %d outside count %d", ErrSegmentation, sn, len(s.segs))
	}
	if s.segs[sn] != nil {
		return true, nil
	}
	s.segs[sn] = append(make([]byte, 0, len(data)), data...)
	s.filled++
	if sn > s.highest {
		s.highest = sn
	}
	return false, nil
}

// Complete reports whether no slot is missing.
func (s *Slots) Complete() bool { return s.filled == len(s.segs) }

// Join concatenates the segments in order. Call only when Complete.
func (s *Slots) Join() []byte {
	size := 0
	for _, seg := range s.segs {
		size += len(seg)
	}
	flat := make([]byte, 0, size)
	for _, seg := range s.segs {
		flat = append(flat, seg...)
	}
	return flat
}

// Missing returns the empty slot indexes in [begin, end). The range is
// clipped to the highest index seen so far rather than the declared count,
// so trailing segments that have not shown up yet are not reported. A
// negative end means no upper bound beyond that clip.
func (s *Slots) Missing(begin, end int) []int {
	if begin < 0 {
		begin = 0
	}
	if end < 0 || end > s.highest+1 {
		end = s.highest + 1
	}
	var missing []int
	for i := begin; i < end; i++ {
		if s.segs[i] == nil {
			missing = append(missing, i)
		}
	}
	return missing
}
