package usp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const audioCodecHeaderValue = "riff-16khz-16bit-mono-pcm"

var tracer = otel.Tracer("github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp")

// Option configures a [Context] at construction time.
type Option func(*Context)

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// WithMetrics overrides the default package-level [Metrics] instance.
func WithMetrics(m *Metrics) Option {
	return func(c *Context) { c.metrics = m }
}

// WithDNSCacheTTL overrides the default TTL used by the context's DNS cache.
func WithDNSCacheTTL(ttl time.Duration) Option {
	return func(c *Context) { c.dnsTTL = ttl }
}

// Context is a process-local USP session: configuration, auth, the owned
// Transport/Telemetry/DNSCache, and the user path handler registry. The
// zero value is not usable; construct one with [NewContext].
type Context struct {
	mu sync.Mutex

	state        ConnectionState
	endpointURL  string
	endpointKind EndpointKind
	auth         *AuthDescriptor
	language     string
	outputFormat string
	modelID      string
	audioOffset  int64
	turnStart    time.Time

	callbacks Callbacks
	userCtx   any

	handlers   []userHandler
	handlerIdx map[string]int

	creation creationTick
	dnsTTL   time.Duration

	transport *Transport
	telemetry *Telemetry
	dns       *DNSCache
	metrics   *Metrics
	logger    *slog.Logger
}

// NewContext allocates an idle context with an empty handler registry, a
// telemetry recorder whose sink is wired to forward to the transport once
// one exists, and a fresh DNS cache.
func NewContext(opts ...Option) (*Context, error) {
	c := &Context{
		state:      StateIdle,
		handlerIdx: make(map[string]int),
		creation:   newCreationTick(),
		logger:     slog.Default(),
		metrics:    DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dns = NewDNSCache(c.dnsTTL)
	c.telemetry = NewTelemetry(c.telemetrySink)
	return c, nil
}

// telemetrySink forwards a flushed telemetry payload to the transport. It
// is a plain method value, not a stored *Context field inside Telemetry,
// so Telemetry never holds a strong reference back to its owner.
func (c *Context) telemetrySink(requestID string, payload []byte) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.WriteTelemetry(context.Background(), requestID, payload)
}

// CreationTime returns how long ago this context was created.
func (c *Context) CreationTime() time.Duration {
	return c.creation.elapsed()
}

// State returns the context's current connection state.
func (c *Context) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetEndpoint installs the target URL and endpoint kind. Valid only before Connect.
func (c *Context) SetEndpoint(url string, kind EndpointKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return Wrap(ErrorCodeWrongState, "SetEndpoint requires idle state", ErrWrongState)
	}
	if url == "" {
		return Wrap(ErrorCodeInvalidArgument, "url must not be empty", ErrInvalidArgument)
	}
	c.endpointURL = url
	c.endpointKind = kind
	return nil
}

// SetAuth installs the auth descriptor used when building connect headers.
func (c *Context) SetAuth(desc AuthDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return Wrap(ErrorCodeWrongState, "SetAuth requires idle state", ErrWrongState)
	}
	if desc.Value == "" {
		return Wrap(ErrorCodeInvalidArgument, "auth value must not be empty", ErrInvalidArgument)
	}
	c.auth = &desc
	return nil
}

// SetLanguage installs the recognition language.
func (c *Context) SetLanguage(language string) error { return c.setStringField(&c.language, language) }

// SetOutputFormat installs the output format.
func (c *Context) SetOutputFormat(format string) error {
	return c.setStringField(&c.outputFormat, format)
}

// SetModelID installs the model id.
func (c *Context) SetModelID(modelID string) error { return c.setStringField(&c.modelID, modelID) }

func (c *Context) setStringField(field *string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return Wrap(ErrorCodeWrongState, "configuration requires idle state", ErrWrongState)
	}
	*field = value
	return nil
}

// SetCallbacks installs the user callback table. It rejects any table
// whose Version or Size does not match what this module expects, rather
// than silently accepting a stale or mismatched caller.
func (c *Context) SetCallbacks(table Callbacks, userCtx any) error {
	if table.Version != callbacksVersion {
		return Wrap(ErrorCodeInvalidArgument,
			fmt.Sprintf("callback table version %d, expected %d", table.Version, callbacksVersion),
			ErrInvalidArgument)
	}
	if table.Size != callbacksTableSize {
		return Wrap(ErrorCodeInvalidArgument,
			fmt.Sprintf("callback table size %d, expected %d", table.Size, callbacksTableSize),
			ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = table
	c.userCtx = userCtx
	return nil
}

func (c *Context) getCallbacks() Callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks
}

// RegisterUserPathHandler adds or replaces the handler for path in the
// insertion-ordered user handler registry. path must not collide with a
// system dispatch table entry.
func (c *Context) RegisterUserPathHandler(path string, fn UserPathHandlerFunc, userCtx any) error {
	if path == "" || fn == nil {
		return Wrap(ErrorCodeInvalidArgument, "path and fn are required", ErrInvalidArgument)
	}
	if _, reserved := systemDispatchTable[path]; reserved {
		return Wrap(ErrorCodeInvalidArgument, "path is reserved by the system dispatch table", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	h := userHandler{path: path, fn: fn, userCtx: userCtx}
	if idx, ok := c.handlerIdx[path]; ok {
		c.handlers[idx] = h
		return nil
	}
	c.handlerIdx[path] = len(c.handlers)
	c.handlers = append(c.handlers, h)
	return nil
}

// Connect performs TransportInitialize: builds the header table for the
// configured endpoint kind and auth descriptor, dials the transport, and
// wires the system error/receive callbacks. Requires an auth descriptor to
// have been set; a missing one fails with INITIALIZATION_FAILURE rather
// than falling back to any default credential.
func (c *Context) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Wrap(ErrorCodeWrongState, "Connect requires idle state", ErrWrongState)
	}
	if c.endpointURL == "" {
		c.mu.Unlock()
		return Wrap(ErrorCodeInitializationFailure, "no endpoint configured", nil)
	}
	if c.auth == nil {
		c.mu.Unlock()
		return Wrap(ErrorCodeInitializationFailure, "no auth descriptor configured", nil)
	}
	endpointURL := c.endpointURL
	endpointKind := c.endpointKind
	auth := *c.auth
	c.state = StateConnecting
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "usp.Connect", trace.WithAttributes(
		attribute.String("usp.endpoint_kind", endpointKind.String()),
	))
	defer span.End()

	headers := buildHeaders(endpointKind, auth)

	transport, err := NewTransport(ctx, endpointURL, headers, c.dns, c.logger)
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		span.RecordError(err)
		return err
	}
	transport.SetCallbacks(c.handleTransportError, c.dispatchFrame)

	c.mu.Lock()
	c.transport = transport
	c.state = StateConnected
	c.mu.Unlock()

	return nil
}

// buildHeaders constructs the request header table per §4.5: the
// audio-codec and user-agent headers for CDSDK endpoints, then the single
// header implied by the auth descriptor's type.
func buildHeaders(kind EndpointKind, auth AuthDescriptor) http.Header {
	h := http.Header{}
	if kind == EndpointCDSDK {
		h.Set("X-Output-AudioCodec", audioCodecHeaderValue)
		h.Set("User-Agent", "cognitive-services-speech-sdk-go")
	}
	switch auth.Type {
	case AuthSubscriptionKey:
		h.Set("Ocp-Apim-Subscription-Key", auth.Value)
	case AuthAuthorizationToken:
		h.Set("Authorization", "Bearer "+auth.Value)
	case AuthSearchDelegationRPS:
		h.Set("X-Search-DelegationRPSToken", auth.Value)
	}
	return h
}

// Shutdown destroys the transport. Idempotent: calling it on an already
// closed or idle context is a no-op. Waits for the transport's read loop
// and a final telemetry flush together, propagating the first error from
// either.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	transport := c.transport
	c.mu.Unlock()

	var g errgroup.Group
	if transport != nil {
		g.Go(transport.Destroy)
		g.Go(func() error {
			return c.telemetry.Flush(transport.RequestID())
		})
	}
	err := g.Wait()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return err
}

// Destroy tears down telemetry, then every installed user handler and the
// DNS cache — telemetry first, since its sink closure
// captures a reference back into this context. Destroy implies Shutdown
// if the context is still connected.
func (c *Context) Destroy() error {
	if err := c.Shutdown(); err != nil {
		c.logger.Error("usp: shutdown during destroy failed", slog.String("error", err.Error()))
	}

	c.telemetry.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = nil
	c.handlerIdx = nil
	c.dns = nil
	return nil
}

// MessageWrite sends a discrete message tagged with path. Valid only in
// the connected state.
func (c *Context) MessageWrite(ctx context.Context, path string, body []byte) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return Wrap(ErrorCodeWrongState, "MessageWrite requires connected state", ErrWrongState)
	}
	transport := c.transport
	c.mu.Unlock()
	return transport.MessageWrite(ctx, path, body)
}

// AudioWrite drives the upstream audio protocol described in §4.5: the
// first call in a turn opens the stream and records audiostream_init plus
// audio_start; subsequent calls record audiostream_data and stream
// directly. n==0 is an invalid argument, not a no-op.
func (c *Context) AudioWrite(ctx context.Context, buf []byte) error {
	if len(buf) == 0 {
		return Wrap(ErrorCodeInvalidArgument, "AudioWrite requires a non-empty buffer", ErrInvalidArgument)
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return Wrap(ErrorCodeWrongState, "AudioWrite requires connected state", ErrWrongState)
	}
	transport := c.transport
	first := c.audioOffset == 0
	c.mu.Unlock()

	reqID := transport.RequestID()

	if first {
		c.telemetry.Record(reqID, "audiostream_init")
		c.telemetry.AudioStart(reqID)
		if err := transport.StreamPrepare(ctx); err != nil {
			return err
		}
	} else {
		c.telemetry.Record(reqID, fmt.Sprintf("audiostream_data(%d)", len(buf)))
	}

	if err := transport.StreamWrite(ctx, buf); err != nil {
		return err
	}

	c.mu.Lock()
	c.audioOffset += int64(len(buf))
	c.mu.Unlock()
	return nil
}

// AudioFlush signals end-of-audio for the current turn. A no-op success
// when no audio has been written yet, so multiple code paths can call it
// idempotently at end-of-stream.
func (c *Context) AudioFlush(ctx context.Context) error {
	c.mu.Lock()
	if c.audioOffset == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return Wrap(ErrorCodeWrongState, "AudioFlush requires connected state", ErrWrongState)
	}
	transport := c.transport
	c.audioOffset = 0
	c.mu.Unlock()

	reqID := transport.RequestID()
	if err := transport.StreamFlush(ctx); err != nil {
		return err
	}
	c.telemetry.Record(reqID, "audiostream_flush")
	c.telemetry.AudioEnd(reqID)
	return nil
}
