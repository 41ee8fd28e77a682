package ringbuffer

import "sync"

// RingBuffer is a fixed-capacity, absolute-position circular byte store.
//
// The zero value is not usable; construct one with [New]. A buffer is
// configured with [RingBuffer.SetName], [RingBuffer.SetSize],
// [RingBuffer.SetInitPos], and [RingBuffer.AllowOverflow] before its first
// read or write; after that, only the I/O methods and [RingBuffer.Term]
// should be called.
//
// All methods are safe for concurrent use; a single mutex guards the
// position fields and the backing storage.
type RingBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	name string
	data []byte
	size int64

	initPos  int64
	writePos int64
	readPos  int64

	allowOverflow bool
	written       bool
	terminated    bool

	// zeroWriteSeq counts zero-byte Write calls (the "unblock" signal).
	// BlockingRingBuffer readers compare against the value observed when
	// they started waiting to detect that an unblock happened while they
	// slept.
	zeroWriteSeq int64
}

// New creates an empty, unsized ring buffer. Call [RingBuffer.SetSize]
// before any I/O.
func New() *RingBuffer {
	rb := &RingBuffer{}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// SetName assigns a debug label to the buffer. It has no semantic effect.
func (rb *RingBuffer) SetName(name string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.name = name
}

// GetName returns the buffer's debug label.
func (rb *RingBuffer) GetName() (string, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return "", ErrTerminated
	}
	return rb.name, nil
}

// SetSize allocates the backing store with capacity n. Calling it again
// with the same n is a no-op; calling it with a different non-zero n after
// the buffer already has a size returns [ErrAlreadySized].
func (rb *RingBuffer) SetSize(n int64) error {
	if n <= 0 {
		return ErrInvalidRange
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return ErrTerminated
	}
	if rb.size != 0 && rb.size != n {
		return ErrAlreadySized
	}
	if rb.size == n {
		return nil
	}
	rb.size = n
	rb.data = make([]byte, n)
	return nil
}

// GetSize returns the buffer's configured capacity.
func (rb *RingBuffer) GetSize() (int64, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return 0, ErrTerminated
	}
	return rb.size, nil
}

// SetInitPos sets init_pos, read_pos, and write_pos all to p. It fails with
// [ErrAlreadyWritten] once any bytes have been written.
func (rb *RingBuffer) SetInitPos(p int64) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return ErrTerminated
	}
	if rb.written {
		return ErrAlreadyWritten
	}
	rb.initPos = p
	rb.writePos = p
	rb.readPos = p
	return nil
}

// GetInitPos returns init_pos.
func (rb *RingBuffer) GetInitPos() (int64, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return 0, ErrTerminated
	}
	return rb.initPos, nil
}

// GetWritePos returns write_pos, the next absolute byte index to be written.
func (rb *RingBuffer) GetWritePos() (int64, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return 0, ErrTerminated
	}
	return rb.writePos, nil
}

// GetReadPos returns read_pos, the next absolute byte index to be read.
func (rb *RingBuffer) GetReadPos() (int64, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return 0, ErrTerminated
	}
	return rb.readPos, nil
}

// AllowOverflow enables or disables overflow mode. When enabled, Write never
// fails for lack of space; the oldest unread bytes are discarded instead.
func (rb *RingBuffer) AllowOverflow(allow bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.allowOverflow = allow
}

// Term marks the buffer destroyed. Every subsequent operation fails with
// [ErrTerminated]; any reader blocked in a [BlockingRingBuffer] wakes and
// observes the same failure. Term is idempotent.
func (rb *RingBuffer) Term() {
	rb.mu.Lock()
	rb.terminated = true
	rb.mu.Unlock()
	rb.cond.Broadcast()
}

// Write appends n bytes from buf, advancing write_pos by n. n may be 0, in
// which case Write returns immediately without changing any position — this
// is also the signal [BlockingRingBuffer] readers treat as "unblock me with
// whatever you have".
//
// If overflow is disallowed and n exceeds the free space (size minus the
// currently unread byte count), Write fails with [ErrOverflow] and nothing
// is written. If overflow is allowed, Write always succeeds; when it would
// otherwise overrun, the oldest unread bytes are discarded by advancing
// read_pos.
func (rb *RingBuffer) Write(buf []byte, n int) error {
	rb.mu.Lock()
	err := rb.writeLocked(buf, n)
	rb.mu.Unlock()
	rb.cond.Broadcast()
	return err
}

func (rb *RingBuffer) writeLocked(buf []byte, n int) error {
	if rb.terminated {
		return ErrTerminated
	}
	if n == 0 {
		rb.zeroWriteSeq++
		return nil
	}
	if rb.size == 0 {
		return ErrNotSized
	}
	unread := rb.writePos - rb.readPos
	free := rb.size - unread
	if int64(n) > free && !rb.allowOverflow {
		return ErrOverflow
	}

	rb.copyIn(rb.writePos, buf[:n])
	rb.writePos += int64(n)
	rb.written = true

	if rb.writePos-rb.readPos > rb.size {
		rb.readPos = rb.writePos - rb.size
	}
	return nil
}

// copyIn copies src into the backing array starting at absolute position
// pos, wrapping around the end of the array as needed. Caller holds rb.mu.
func (rb *RingBuffer) copyIn(pos int64, src []byte) {
	if excess := int64(len(src)) - rb.size; excess > 0 {
		pos += excess
		src = src[excess:]
	}
	offset := mod(pos-rb.initPos, rb.size)
	n := copy(rb.data[offset:], src)
	if n < len(src) {
		copy(rb.data, src[n:])
	}
}

// copyOut copies n bytes starting at absolute position pos out of the
// backing array into dst, wrapping as needed. Caller holds rb.mu.
func (rb *RingBuffer) copyOut(dst []byte, pos int64, n int) {
	offset := mod(pos-rb.initPos, rb.size)
	c := copy(dst[:n], rb.data[offset:])
	if c < n {
		copy(dst[c:n], rb.data)
	}
}

func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Read copies exactly n bytes into buf starting at the current read_pos and
// advances read_pos by n. If fewer than n bytes are available, it fails with
// [ErrUnderflow] and leaves every position unchanged. n may be 0, in which
// case Read returns immediately with (0, nil).
func (rb *RingBuffer) Read(buf []byte, n int) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if n == 0 {
		if rb.terminated {
			return 0, ErrTerminated
		}
		return 0, nil
	}
	if rb.terminated {
		return 0, ErrTerminated
	}
	avail := rb.writePos - rb.readPos
	if avail < int64(n) {
		return 0, ErrUnderflow
	}
	rb.copyOut(buf, rb.readPos, n)
	rb.readPos += int64(n)
	return n, nil
}

// ReadAvailable copies up to n bytes into buf starting at read_pos, advances
// read_pos by however many bytes were actually copied, and returns that
// count. Unlike Read, it never fails merely because fewer than n bytes are
// available — that is treated as an expected control signal, not an error.
func (rb *RingBuffer) ReadAvailable(buf []byte, n int) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return 0, ErrTerminated
	}
	if n == 0 {
		return 0, nil
	}
	avail := rb.writePos - rb.readPos
	got := int64(n)
	if avail < got {
		got = avail
	}
	if got <= 0 {
		return 0, nil
	}
	rb.copyOut(buf, rb.readPos, int(got))
	rb.readPos += got
	return int(got), nil
}

// ReadShared behaves like Read but returns a freshly allocated, independently
// owned copy of the bytes read instead of writing into a caller-supplied
// buffer.
func (rb *RingBuffer) ReadShared(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := rb.Read(buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// ReadSharedAvailable behaves like ReadAvailable but returns a freshly
// allocated copy sized to the number of bytes actually read.
func (rb *RingBuffer) ReadSharedAvailable(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := rb.ReadAvailable(buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// readableLowerBound returns the absolute position of the oldest byte still
// physically present in the backing array. Caller holds rb.mu.
func (rb *RingBuffer) readableLowerBound() int64 {
	lower := rb.initPos
	if overwritten := rb.writePos - rb.size; overwritten > lower {
		lower = overwritten
	}
	return lower
}

// ReadAtBytePos copies exactly n bytes starting at the absolute position pos
// into buf without moving read_pos. It fails with [ErrInvalidRange] if pos
// precedes init_pos, if pos+n exceeds write_pos, or — in overflow mode — if
// the requested range has already been discarded.
func (rb *RingBuffer) ReadAtBytePos(pos int64, buf []byte, n int) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if n == 0 {
		if rb.terminated {
			return 0, ErrTerminated
		}
		return 0, nil
	}
	if rb.terminated {
		return 0, ErrTerminated
	}
	if pos < rb.readableLowerBound() {
		return 0, ErrInvalidRange
	}
	if pos+int64(n) > rb.writePos {
		return 0, ErrInvalidRange
	}
	rb.copyOut(buf, pos, n)
	return n, nil
}

// ReadAtBytePosAvailable behaves like ReadAtBytePos but returns up to n
// bytes — however many are currently available at pos — instead of failing
// when fewer than n are available. It still fails with [ErrInvalidRange] if
// pos itself precedes the readable window.
func (rb *RingBuffer) ReadAtBytePosAvailable(pos int64, buf []byte, n int) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.terminated {
		return 0, ErrTerminated
	}
	if pos < rb.readableLowerBound() {
		return 0, ErrInvalidRange
	}
	if n == 0 {
		return 0, nil
	}
	avail := rb.writePos - pos
	got := int64(n)
	if avail < got {
		got = avail
	}
	if got <= 0 {
		return 0, nil
	}
	rb.copyOut(buf, pos, int(got))
	return int(got), nil
}

// ReadSharedAtBytePos behaves like ReadAtBytePos but returns a freshly
// allocated, independently owned copy.
func (rb *RingBuffer) ReadSharedAtBytePos(pos int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := rb.ReadAtBytePos(pos, buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// ReadSharedAtBytePosAvailable behaves like ReadAtBytePosAvailable but
// returns a freshly allocated copy sized to the number of bytes read.
func (rb *RingBuffer) ReadSharedAtBytePosAvailable(pos int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := rb.ReadAtBytePosAvailable(pos, buf, n)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}
