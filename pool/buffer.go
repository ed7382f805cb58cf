package pool

// recvBuffer is a growable FIFO byte buffer. Bytes are appended at the back
// and consumed from the front by advancing an offset; storage is compacted
// lazily when appending would otherwise grow it.
type recvBuffer struct {
	data []byte
	off  int
}

// Len returns the number of unconsumed bytes.
func (b *recvBuffer) Len() int { return len(b.data) - b.off }

// Bytes returns the unconsumed bytes. The slice is valid until the next Write.
func (b *recvBuffer) Bytes() []byte { return b.data[b.off:] }

func (b *recvBuffer) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	if b.off > 0 && len(b.data)+len(p) > cap(b.data) {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	b.data = append(b.data, p...)
}

// Consume drops the first n unconsumed bytes.
func (b *recvBuffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("pool: consume past end of receive buffer")
	}
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// Next returns a copy of the first n unconsumed bytes and consumes them.
func (b *recvBuffer) Next(n int) []byte {
	out := make([]byte, n)
	copy(out, b.data[b.off:b.off+n])
	b.Consume(n)
	return out
}
