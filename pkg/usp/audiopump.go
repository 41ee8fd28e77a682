package usp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/ringbuffer"
)

// defaultPumpChunkSize is the number of bytes read from the ring buffer per
// AudioWrite call when no explicit chunk size is given.
const defaultPumpChunkSize = 4096

// AudioPump drains a blocking ring buffer reader in fixed-size chunks and
// forwards each chunk to a Context's upstream audio turn. It is the piece
// of glue that makes a ring buffer and a USP Context actually compose into
// a runnable capture pipeline: something outside this module still has to
// push captured audio bytes into the buffer, but once it does, the pump
// takes care of draining it.
type AudioPump struct {
	src       *ringbuffer.BlockingRingBuffer
	ctx       *Context
	chunkSize int
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// PumpOption configures an [AudioPump].
type PumpOption func(*AudioPump)

// WithChunkSize overrides the per-read chunk size. Must be positive.
func WithChunkSize(n int) PumpOption {
	return func(p *AudioPump) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithPumpLogger overrides the pump's logger.
func WithPumpLogger(logger *slog.Logger) PumpOption {
	return func(p *AudioPump) { p.logger = logger }
}

// NewAudioPump creates a pump reading from src and writing into ctx. Call
// [AudioPump.Run] to start draining.
func NewAudioPump(src *ringbuffer.BlockingRingBuffer, ctx *Context, opts ...PumpOption) *AudioPump {
	p := &AudioPump{
		src:       src,
		ctx:       ctx,
		chunkSize: defaultPumpChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drains the ring buffer until ctx is canceled, [AudioPump.Close] is
// called, or the ring buffer is terminated, calling Context.AudioWrite for
// every non-empty chunk read. It blocks until draining stops; callers
// typically invoke it in its own goroutine.
func (p *AudioPump) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return NewError(ErrorCodeWrongState, "pump already running")
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()
	defer close(p.done)

	// Cancelling ctx releases a read that is blocked waiting for data.
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			_ = p.src.Unblock()
		case <-exited:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		default:
		}

		chunk, err := p.src.ReadShared(p.chunkSize)
		if err != nil {
			if errors.Is(err, ringbuffer.ErrTerminated) {
				return nil
			}
			return err
		}
		if len(chunk) == 0 {
			continue
		}

		if werr := p.ctx.AudioWrite(ctx, chunk); werr != nil {
			p.logger.Error("usp: audio pump write failed", slog.String("error", werr.Error()))
			return werr
		}
	}
}

// Close stops a running pump without terminating the underlying ring
// buffer; it is safe to call even if Run has already returned.
func (p *AudioPump) Close() {
	p.mu.Lock()
	running := p.running
	stop := p.stop
	done := p.done
	p.running = false
	p.mu.Unlock()

	if !running {
		return
	}
	close(stop)
	_ = p.src.Unblock()
	<-done
}
