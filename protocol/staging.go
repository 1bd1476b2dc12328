package protocol

// StagingBuffer is the fixed-capacity scratch area raw transport reads land
// in before decoding. Bytes [0, Len()) are either fully decoded and
// forwarded, or end in a single trailing partial message; Carry moves that
// partial back to offset 0 so the next read appends directly after it.
type StagingBuffer struct {
	buf [StagingCapacity]byte
	n   int
}

// NewStagingBuffer returns an empty staging buffer.
func NewStagingBuffer() *StagingBuffer {
	return &StagingBuffer{}
}

// Writable returns the unused tail of the buffer for the next transport read.
func (s *StagingBuffer) Writable() []byte {
	return s.buf[s.n:]
}

// Advance records n freshly read bytes.
func (s *StagingBuffer) Advance(n int) {
	s.n += n
}

// Bytes returns the readable region.
func (s *StagingBuffer) Bytes() []byte {
	return s.buf[:s.n]
}

// Len returns the number of readable bytes.
func (s *StagingBuffer) Len() int {
	return s.n
}

// Carry drops the first consumed bytes and moves the remainder (at most one
// partial message) to the front of the buffer.
func (s *StagingBuffer) Carry(consumed int) {
	if consumed == 0 {
		return
	}
	copy(s.buf[:], s.buf[consumed:s.n])
	s.n -= consumed
}
