package usp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// streamState is the Transport's byte-stream state for the current turn's
// audio body.
type streamState int

const (
	streamIdle streamState = iota
	streamStreaming
)

// RecvFunc is invoked once per inbound frame, after the Path and
// Content-Type headers have been extracted. headers always contains at
// least "Path"; "Content-Type" is always present when body is non-empty.
type RecvFunc func(headers map[string]string, body []byte)

// ErrorFunc is invoked for every asynchronous transport-level failure.
type ErrorFunc func(ev TransportErrorEvent)

// Transport is the full-duplex message+stream channel to the recognition
// service: one websocket connection, one in-flight request id, and the
// header table sent on the connection's opening handshake.
type Transport struct {
	url     string
	headers http.Header
	dns     *DNSCache
	logger  *slog.Logger

	onError ErrorFunc
	onRecv  RecvFunc

	mu        sync.Mutex
	requestID string
	state     streamState
	closed    bool

	conn      *websocket.Conn
	readDone  chan struct{}
	closeOnce sync.Once
}

// NewTransport dials url and begins the background read loop. headers are
// copied; the caller's own header table may be freed or mutated afterward
// without affecting the transport. If dns is non-nil, the connect path
// resolves the endpoint host through it instead of letting the transport's
// HTTP client hit the system resolver directly, so repeated (re)connects to
// the same endpoint share the cache's TTL and singleflight collapsing.
func NewTransport(ctx context.Context, url string, headers http.Header, dns *DNSCache, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	hdrCopy := headers.Clone()

	dialOpts := &websocket.DialOptions{HTTPHeader: hdrCopy}
	if dns != nil {
		dialOpts.HTTPClient = &http.Client{
			Transport: &http.Transport{DialContext: dnsResolvingDialer(dns)},
		}
	}

	conn, _, err := websocket.Dial(ctx, url, dialOpts)
	if err != nil {
		return nil, Wrap(ErrorCodeConnectionFailure, "dial failed", err)
	}

	t := &Transport{
		url:       url,
		headers:   hdrCopy,
		dns:       dns,
		logger:    logger,
		requestID: uuid.NewString(),
		conn:      conn,
		readDone:  make(chan struct{}),
	}
	go t.readLoop(ctx)
	return t, nil
}

// dnsResolvingDialer returns a DialContext func that resolves addr's host
// through dns before handing the first cached address to the system dialer,
// falling through to the standard resolver on a cache miss or lookup
// failure rather than failing the dial outright.
func dnsResolvingDialer(dns *DNSCache) func(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return d.DialContext(ctx, network, addr)
		}
		addrs, err := dns.Lookup(ctx, host)
		if err != nil || len(addrs) == 0 {
			return d.DialContext(ctx, network, addr)
		}
		return d.DialContext(ctx, network, net.JoinHostPort(addrs[0], port))
	}
}

// SetCallbacks installs the transport's error and receive callbacks. Must
// be called before traffic is expected; typically set once, immediately
// after NewTransport.
func (t *Transport) SetCallbacks(onError ErrorFunc, onRecv RecvFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = onError
	t.onRecv = onRecv
}

// CreateRequestID allocates a fresh turn identifier and returns it. Callers
// never construct or parse request ids directly; this is the only path
// that produces one.
func (t *Transport) CreateRequestID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestID = uuid.NewString()
	return t.requestID
}

// RequestID returns the current in-flight request id.
func (t *Transport) RequestID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestID
}

// MessageWrite sends a discrete text message tagged with path. It fails if
// the transport has been destroyed.
func (t *Transport) MessageWrite(ctx context.Context, path string, body []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return NewError(ErrorCodeWrongState, "transport is closed")
	}
	conn := t.conn
	reqID := t.requestID
	t.mu.Unlock()

	frame := encodeFrame(path, reqID, "text/plain; charset=utf-8", body)
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return Wrap(ErrorCodeTransportGeneric, "message_write failed", err)
	}
	return nil
}

// StreamPrepare opens a streaming body on the current request. It must be
// called exactly once per turn, before the first audio frame.
func (t *Transport) StreamPrepare(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return NewError(ErrorCodeWrongState, "transport is closed")
	}
	t.state = streamStreaming
	return nil
}

// StreamWrite appends bytes to the open audio stream.
func (t *Transport) StreamWrite(ctx context.Context, buf []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return NewError(ErrorCodeWrongState, "transport is closed")
	}
	if t.state != streamStreaming {
		t.mu.Unlock()
		return NewError(ErrorCodeWrongState, "stream_write without stream_prepare")
	}
	conn := t.conn
	reqID := t.requestID
	t.mu.Unlock()

	frame := encodeFrame("audio", reqID, "application/octet-stream", buf)
	if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return Wrap(ErrorCodeTransportGeneric, "stream_write failed", err)
	}
	return nil
}

// StreamFlush signals end-of-audio for the current turn.
func (t *Transport) StreamFlush(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return NewError(ErrorCodeWrongState, "transport is closed")
	}
	conn := t.conn
	reqID := t.requestID
	t.state = streamIdle
	t.mu.Unlock()

	frame := encodeFrame("audio.end", reqID, "", nil)
	if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return Wrap(ErrorCodeTransportGeneric, "stream_flush failed", err)
	}
	return nil
}

// WriteTelemetry sends a telemetry blob for requestID.
func (t *Transport) WriteTelemetry(ctx context.Context, requestID string, payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return NewError(ErrorCodeWrongState, "transport is closed")
	}
	conn := t.conn
	t.mu.Unlock()

	frame := encodeFrame("telemetry", requestID, "application/json", payload)
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return Wrap(ErrorCodeTransportGeneric, "write_telemetry failed", err)
	}
	return nil
}

// Destroy releases all resources. Idempotent.
func (t *Transport) Destroy() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "transport destroyed")
		}
		<-t.readDone
	})
	return err
}

// readLoop receives frames until the connection closes, extracting the
// Path and Content-Type headers from each and invoking onRecv, or onError
// on failure.
func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.readDone)
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			t.reportCloseError(err)
			return
		}

		headers, body, ok := decodeFrame(data, typ == websocket.MessageBinary)
		if !ok {
			t.logger.Info("usp: dropping malformed frame", slog.Int("size", len(data)))
			continue
		}

		path := headers["Path"]
		if path == "" {
			t.logger.Info("usp: dropping frame with missing Path header")
			continue
		}
		if len(body) > 0 && headers["Content-Type"] == "" {
			t.logger.Info("usp: dropping frame with body but no Content-Type", slog.String("path", path))
			continue
		}

		t.mu.Lock()
		onRecv := t.onRecv
		t.mu.Unlock()
		if onRecv != nil {
			onRecv(headers, body)
		}
	}
}

// reportCloseError classifies a websocket read error into a
// TransportErrorEvent and delivers it to onError, unless the transport was
// destroyed deliberately (in which case the error is expected and
// swallowed).
func (t *Transport) reportCloseError(err error) {
	t.mu.Lock()
	closed := t.closed
	onError := t.onError
	t.mu.Unlock()
	if closed {
		return
	}

	code := TransportErrorConnectionFailure
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
		code = TransportErrorRemoteClosed
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		code = TransportErrorAuthentication
	}

	errorCode, message := code.toErrorCode()
	if onError != nil {
		onError(TransportErrorEvent{Code: errorCode, Message: message})
	}
}

// encodeFrame builds the wire representation of one outbound frame: a
// header block of "Key: Value\r\n" lines terminated by a blank line,
// followed by the body.
func encodeFrame(path, requestID, contentType string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Path: %s\r\n", path)
	fmt.Fprintf(&buf, "X-RequestId: %s\r\n", requestID)
	if contentType != "" {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// decodeFrame parses the wire representation produced by encodeFrame,
// returning the header map and body. It returns ok=false if no header/body
// separator is found.
func decodeFrame(data []byte, _ bool) (map[string]string, []byte, bool) {
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(data, sep)
	if idx < 0 {
		return nil, nil, false
	}
	headerBlock := data[:idx]
	body := data[idx+len(sep):]

	headers := make(map[string]string)
	for _, line := range strings.Split(string(headerBlock), "\r\n") {
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, body, true
}
