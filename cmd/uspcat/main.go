// Command uspcat wires a microphone-shaped byte source into a USP client
// session: bytes pushed into a ring buffer are pumped upstream as audio,
// and recognition events are printed as they arrive. It exists to exercise
// the ring buffer → audio pump → USP context pipeline end to end against a
// live endpoint.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/ringbuffer"
	"github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp"
	"github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp/region"
)

func main() {
	os.Exit(run())
}

func run() int {
	endpointURL := flag.String("endpoint", "", "USP endpoint URL; overrides -region")
	regionName := flag.String("region", "westus", "region preset used when -endpoint is not set")
	cdsdk := flag.Bool("cdsdk", false, "use the CDSDK endpoint kind")
	subscriptionKey := flag.String("key", os.Getenv("USP_SUBSCRIPTION_KEY"), "subscription key")
	bufferSize := flag.Int64("buffer-size", 1<<20, "ring buffer capacity in bytes")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on; empty disables it")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	shutdownTelemetry, err := initTelemetry(*metricsAddr)
	if err != nil {
		slog.Error("failed to initialize telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	kind := usp.EndpointDefault
	if *cdsdk {
		kind = usp.EndpointCDSDK
	}

	url := *endpointURL
	if url == "" {
		resolved, err := region.Resolve(*regionName, kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "uspcat: %v\n", err)
			return 1
		}
		url = resolved
	}

	if *subscriptionKey == "" {
		fmt.Fprintln(os.Stderr, "uspcat: -key or USP_SUBSCRIPTION_KEY is required")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := usp.NewContext(usp.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create usp context", "err", err)
		return 1
	}
	defer session.Destroy()

	if err := session.SetEndpoint(url, kind); err != nil {
		slog.Error("SetEndpoint failed", "err", err)
		return 1
	}
	if err := session.SetAuth(usp.SubscriptionKeyAuth(*subscriptionKey)); err != nil {
		slog.Error("SetAuth failed", "err", err)
		return 1
	}

	cb := usp.NewCallbacks()
	cb.OnTurnStart = func(_ any, ev usp.TurnStartEvent) { fmt.Printf("turn.start %s\n", ev.RequestID) }
	cb.OnHypothesis = func(_ any, ev usp.HypothesisEvent) { fmt.Printf("hypothesis: %s\n", ev.Raw) }
	cb.OnPhrase = func(_ any, ev usp.PhraseEvent) { fmt.Printf("phrase: %s\n", ev.Raw) }
	cb.OnTurnEnd = func(_ any, ev usp.TurnEndEvent) { fmt.Printf("turn.end %s\n", ev.RequestID) }
	cb.OnError = func(_ any, ev usp.TransportErrorEvent) { fmt.Fprintf(os.Stderr, "transport error: %s\n", ev.Message) }
	if err := session.SetCallbacks(cb, nil); err != nil {
		slog.Error("SetCallbacks failed", "err", err)
		return 1
	}

	if err := session.Connect(ctx); err != nil {
		slog.Error("Connect failed", "err", err)
		return 1
	}
	defer session.Shutdown()

	rb := ringbuffer.New()
	if err := rb.SetSize(*bufferSize); err != nil {
		slog.Error("SetSize failed", "err", err)
		return 1
	}
	blocking := ringbuffer.NewBlocking(rb)

	pump := usp.NewAudioPump(blocking, session)
	pumpErr := make(chan error, 1)
	go func() { pumpErr <- pump.Run(ctx) }()

	go feedStdin(rb)

	select {
	case <-ctx.Done():
	case err := <-pumpErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("audio pump stopped", "err", err)
		}
	}

	pump.Close()
	rb.Term()
	return 0
}

// feedStdin reads raw PCM bytes from stdin and writes them into rb, so this
// binary can be driven with `arecord ... | uspcat` without any audio
// capture code of its own.
func feedStdin(rb *ringbuffer.RingBuffer) {
	reader := bufio.NewReader(os.Stdin)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if werr := rb.Write(buf[:n], n); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
