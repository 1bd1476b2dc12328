package session

import "github.com/steplock/steplock/metrics"

// messageQueue buffers decoded-ready message bytes between the receive
// worker (producer) and the tick path (consumer). The caller guards every
// method with the session's queue mutex.
//
// Invariant: offset ≤ breakpoint ≤ size ≤ cap(buf). Bytes [offset, breakpoint)
// belong to the currently consumable frame; the tick path never reads past
// the breakpoint even when more bytes have already arrived.
type messageQueue struct {
	buf        []byte
	offset     int
	breakpoint int
	size       int

	// grown counts capacity doublings, exposed for diagnostics.
	grown int
}

func newMessageQueue(capacity int) *messageQueue {
	return &messageQueue{buf: make([]byte, capacity)}
}

// push appends decoded message bytes. When the tail is too small it first
// compacts unread bytes to offset 0 and only doubles capacity if compaction
// alone is insufficient.
func (q *messageQueue) push(b []byte) {
	need := q.size + len(b)
	if need > len(q.buf) {
		unread := q.size - q.offset
		if unread+len(b) <= len(q.buf) {
			q.compact()
		} else {
			newCap := len(q.buf) * 2
			for unread+len(b) > newCap {
				newCap *= 2
			}
			grown := make([]byte, newCap)
			copy(grown, q.buf[q.offset:q.size])
			q.buf = grown
			q.breakpoint -= q.offset
			q.size = unread
			q.offset = 0
			q.grown++
			metrics.QueueGrowth.Inc()
		}
	}
	copy(q.buf[q.size:], b)
	q.size += len(b)
}

func (q *messageQueue) compact() {
	copy(q.buf, q.buf[q.offset:q.size])
	q.size -= q.offset
	q.breakpoint -= q.offset
	q.offset = 0
}

// markBreakpoint closes the current frame at the present write cursor.
func (q *messageQueue) markBreakpoint() {
	q.breakpoint = q.size
}

// takeFrame copies out the bytes of the current frame, advances the read
// cursor past them and recycles the buffer when nothing remains unread.
func (q *messageQueue) takeFrame() []byte {
	frame := append([]byte(nil), q.buf[q.offset:q.breakpoint]...)
	q.offset = q.breakpoint
	if q.offset == q.size {
		q.offset, q.breakpoint, q.size = 0, 0, 0
	}
	return frame
}

// unread reports how many appended bytes the tick path has not consumed.
func (q *messageQueue) unread() int {
	return q.size - q.offset
}
