package lot

// Sequencer hands out transaction and book ids. Zero is never returned; the
// first call to Next returns 1 and the counter wraps back to 1.
//
// It belongs to one stack and is not safe for concurrent use.
type Sequencer struct {
	val uint32
}

// NewSequencer creates a sequencer whose next id is start+1.
func NewSequencer(start uint32) *Sequencer {
	return &Sequencer{val: start}
}

// Next returns the next id.
func (s *Sequencer) Next() uint32 {
	s.val++
	if s.val == 0 {
		s.val = 1
	}
	return s.val
}

// Last returns the most recently issued id, or the start value.
func (s *Sequencer) Last() uint32 {
	return s.val
}
