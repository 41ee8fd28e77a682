package usp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startTestServer launches a test WebSocket server and hands the accepted
// connection, plus the inbound request (for header inspection), to handler.
func startTestServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransportMessageWriteCarriesPathHeader(t *testing.T) {
	received := make(chan []byte, 1)
	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		received <- data
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tr, err := NewTransport(ctx, wsURL(srv), http.Header{}, nil, nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	defer tr.Destroy()

	if err := tr.MessageWrite(ctx, "speech.config", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("MessageWrite: %v", err)
	}

	select {
	case data := <-received:
		if !strings.Contains(string(data), "Path: speech.config\r\n") {
			t.Fatalf("frame missing Path header: %q", data)
		}
		if !strings.Contains(string(data), `{"a":1}`) {
			t.Fatalf("frame missing body: %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive a frame")
	}
}

func TestTransportDispatchesRecvWithHeaders(t *testing.T) {
	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		frame := encodeFrame("turn.start", "req-1", "application/json", []byte(`{"context":{}}`))
		conn.Write(context.Background(), websocket.MessageText, frame)
		time.Sleep(50 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tr, err := NewTransport(ctx, wsURL(srv), http.Header{}, nil, nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	defer tr.Destroy()

	var mu sync.Mutex
	var gotPath, gotContentType string
	var gotBody []byte
	done := make(chan struct{})
	tr.SetCallbacks(nil, func(headers map[string]string, body []byte) {
		mu.Lock()
		gotPath = headers["Path"]
		gotContentType = headers["Content-Type"]
		gotBody = body
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onRecv was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "turn.start" {
		t.Errorf("Path = %q, want turn.start", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if string(gotBody) != `{"context":{}}` {
		t.Errorf("body = %q, want %q", gotBody, `{"context":{}}`)
	}
}

func TestTransportDropsFrameWithBodyAndNoContentType(t *testing.T) {
	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		frame := encodeFrame("speech.phrase", "req-1", "", []byte("some body"))
		conn.Write(context.Background(), websocket.MessageText, frame)
		time.Sleep(80 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tr, err := NewTransport(ctx, wsURL(srv), http.Header{}, nil, nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	defer tr.Destroy()

	var calls int
	var mu sync.Mutex
	tr.SetCallbacks(nil, func(headers map[string]string, body []byte) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("onRecv called %d times, want 0 (frame should be dropped as a protocol violation)", calls)
	}
}

func TestTransportCreateRequestIDChangesID(t *testing.T) {
	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-context.Background().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tr, err := NewTransport(ctx, wsURL(srv), http.Header{}, nil, nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	defer tr.Destroy()

	first := tr.RequestID()
	second := tr.CreateRequestID()
	if first == second {
		t.Fatalf("CreateRequestID() returned the same id as before: %q", first)
	}
	if tr.RequestID() != second {
		t.Fatalf("RequestID() = %q after CreateRequestID, want %q", tr.RequestID(), second)
	}
}

func TestTransportConsultsDNSCacheOnConnect(t *testing.T) {
	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-context.Background().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	dns := NewDNSCache(time.Hour)
	var calls int
	var mu sync.Mutex
	var lookedUpHost string
	dns.resolver = func(ctx context.Context, host string) ([]string, error) {
		mu.Lock()
		calls++
		lookedUpHost = host
		mu.Unlock()
		return []string{"127.0.0.1"}, nil
	}

	tr, err := NewTransport(ctx, wsURL(srv), http.Header{}, dns, nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	defer tr.Destroy()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatal("NewTransport never consulted the DNS cache")
	}
	if lookedUpHost != "127.0.0.1" {
		t.Fatalf("looked up host %q, want 127.0.0.1", lookedUpHost)
	}
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	frame := encodeFrame("speech.hypothesis", "req-42", "application/json", []byte(`{"text":"hi"}`))
	headers, body, ok := decodeFrame(frame, false)
	if !ok {
		t.Fatal("decodeFrame returned ok=false")
	}
	if headers["Path"] != "speech.hypothesis" {
		t.Errorf("Path = %q", headers["Path"])
	}
	if headers["X-RequestId"] != "req-42" {
		t.Errorf("X-RequestId = %q", headers["X-RequestId"])
	}
	if string(body) != `{"text":"hi"}` {
		t.Errorf("body = %q", body)
	}
}
