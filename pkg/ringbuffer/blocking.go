package ringbuffer

// BlockingRingBuffer wraps a [RingBuffer] and turns its read methods into
// blocking calls: instead of failing or short-reading when insufficient
// data is available, a reader sleeps until enough data arrives, until
// [BlockingRingBuffer.Unblock] is called, or until the buffer is
// terminated.
//
// Writers are unaffected — [BlockingRingBuffer.Write] simply delegates to
// the embedded buffer and wakes any waiting readers.
type BlockingRingBuffer struct {
	*RingBuffer
}

// NewBlocking wraps rb with blocking read semantics. rb must not be shared
// with another BlockingRingBuffer; it may still be written to and read from
// directly as long as callers are aware that direct reads bypass the
// blocking readers' wait loop and will race them for data.
func NewBlocking(rb *RingBuffer) *BlockingRingBuffer {
	return &BlockingRingBuffer{RingBuffer: rb}
}

// Unblock wakes every reader currently blocked on this buffer, releasing
// each with however much data is currently available — the same effect as
// a zero-byte [RingBuffer.Write]. It is the named equivalent of that legacy
// signal, kept as the documented way to interrupt a waiting reader.
func (b *BlockingRingBuffer) Unblock() error {
	return b.Write(nil, 0)
}

// waitFor blocks until cond becomes true, the zero-write unblock sequence
// advances past startSeq, or the buffer is terminated. Caller holds b.mu.
// It returns nothing: callers re-check b.terminated and the available byte
// count after return to learn which of the three ended the wait.
func (b *BlockingRingBuffer) waitFor(cond func() bool) {
	startSeq := b.zeroWriteSeq
	for {
		if b.terminated || cond() || b.zeroWriteSeq != startSeq {
			return
		}
		b.cond.Wait()
	}
}

// Read blocks until n bytes are available, an unblock signal arrives, or
// the buffer is terminated. On an unblock signal with fewer than n bytes
// available, it returns whatever is available (possibly zero) and a nil
// error — mirroring the "available" read shape, since a blocked strict
// reader has no other way to be released short of a full read.
func (b *BlockingRingBuffer) Read(buf []byte, n int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitFor(func() bool { return b.writePos-b.readPos >= int64(n) })
	if b.terminated {
		return 0, ErrTerminated
	}
	avail := b.writePos - b.readPos
	got := int64(n)
	if avail < got {
		got = avail
	}
	if got <= 0 {
		return 0, nil
	}
	b.copyOut(buf, b.readPos, int(got))
	b.readPos += got
	return int(got), nil
}

// ReadShared behaves like Read but returns a freshly allocated copy.
func (b *BlockingRingBuffer) ReadShared(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := b.Read(buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// ReadAvailable blocks only while the buffer is empty, then returns
// whatever is available up to n bytes — it does not wait for a full n
// bytes the way Read does. A caller that only wants "give me whatever has
// arrived so far" uses this instead of Read to avoid blocking past the
// first byte.
func (b *BlockingRingBuffer) ReadAvailable(buf []byte, n int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitFor(func() bool { return b.writePos > b.readPos })
	if b.terminated {
		return 0, ErrTerminated
	}
	avail := b.writePos - b.readPos
	got := int64(n)
	if avail < got {
		got = avail
	}
	if got <= 0 {
		return 0, nil
	}
	b.copyOut(buf, b.readPos, int(got))
	b.readPos += got
	return int(got), nil
}

// ReadSharedAvailable behaves like ReadAvailable but returns a freshly
// allocated copy sized to the number of bytes actually read.
func (b *BlockingRingBuffer) ReadSharedAvailable(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := b.ReadAvailable(buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// ReadAtBytePos blocks until write_pos reaches pos+n, an unblock signal
// arrives, or the buffer is terminated, then returns whatever is available
// at pos without advancing read_pos. It fails immediately with
// [ErrInvalidRange] if pos precedes the readable window.
func (b *BlockingRingBuffer) ReadAtBytePos(pos int64, buf []byte, n int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < b.readableLowerBound() {
		return 0, ErrInvalidRange
	}
	b.waitFor(func() bool { return b.writePos >= pos+int64(n) })
	if b.terminated {
		return 0, ErrTerminated
	}
	if pos < b.readableLowerBound() {
		return 0, ErrInvalidRange
	}
	avail := b.writePos - pos
	got := int64(n)
	if avail < got {
		got = avail
	}
	if got <= 0 {
		return 0, nil
	}
	b.copyOut(buf, pos, int(got))
	return int(got), nil
}

// ReadSharedAtBytePos behaves like ReadAtBytePos but returns a freshly
// allocated copy.
func (b *BlockingRingBuffer) ReadSharedAtBytePos(pos int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := b.ReadAtBytePos(pos, buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// ReadAtBytePosAvailable blocks only while nothing is yet available at
// pos, then returns whatever is available up to n bytes without advancing
// read_pos — it does not wait for the full n bytes the way ReadAtBytePos
// does. It fails immediately with [ErrInvalidRange] if pos precedes the
// readable window.
func (b *BlockingRingBuffer) ReadAtBytePosAvailable(pos int64, buf []byte, n int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < b.readableLowerBound() {
		return 0, ErrInvalidRange
	}
	b.waitFor(func() bool { return b.writePos > pos })
	if b.terminated {
		return 0, ErrTerminated
	}
	if pos < b.readableLowerBound() {
		return 0, ErrInvalidRange
	}
	avail := b.writePos - pos
	got := int64(n)
	if avail < got {
		got = avail
	}
	if got <= 0 {
		return 0, nil
	}
	b.copyOut(buf, pos, int(got))
	return int(got), nil
}

// ReadSharedAtBytePosAvailable behaves like ReadAtBytePosAvailable but
// returns a freshly allocated copy sized to the number of bytes read.
func (b *BlockingRingBuffer) ReadSharedAtBytePosAvailable(pos int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := b.ReadAtBytePosAvailable(pos, buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}
