package ringbuffer

import "errors"

// ErrTerminated is returned by any operation performed on a buffer after
// [RingBuffer.Term] has been called.
var ErrTerminated = errors.New("ringbuffer: buffer terminated")

// ErrUnderflow is returned by the strict-count forms of Read and ReadShared
// when fewer bytes are available than requested. The positional reads
// report an unavailable range with [ErrInvalidRange] instead. Callers using
// the *Available forms never see this error; they instead get fewer bytes
// back.
var ErrUnderflow = errors.New("ringbuffer: not enough data available")

// ErrOverflow is returned by Write when n exceeds the free space and the
// buffer does not allow overflow.
var ErrOverflow = errors.New("ringbuffer: not enough space available")

// ErrAlreadySized is returned by SetSize when the buffer already has a
// non-zero size that differs from the requested one.
var ErrAlreadySized = errors.New("ringbuffer: size already set to a different value")

// ErrAlreadyWritten is returned by SetInitPos once any bytes have been
// written to the buffer.
var ErrAlreadyWritten = errors.New("ringbuffer: cannot set init position after data has been written")

// ErrInvalidRange is returned by the positional reads when the requested
// absolute position lies outside the readable window: before init_pos,
// beyond write_pos, or — in overflow mode — already discarded.
var ErrInvalidRange = errors.New("ringbuffer: position out of range")

// ErrNotSized is returned by a non-zero Write on a buffer whose SetSize has
// never been called.
var ErrNotSized = errors.New("ringbuffer: size not set")
