package usp

import (
	"context"
	"log/slog"
	"time"
)

// systemDispatchTable maps the fixed set of service-defined paths to their
// handlers. It is immutable after initialization; user paths are looked up
// in a separate, per-Context registry built at [Context.RegisterUserPathHandler]
// time. Lookup for both tables is an exact path-string match.
var systemDispatchTable = map[string]func(c *Context, path, contentType string, body []byte){
	"turn.start":           (*Context).dispatchContentFrame,
	"speech.hypothesis":    (*Context).dispatchContentFrame,
	"speech.phrase":        (*Context).dispatchContentFrame,
	"speech.fragment":      (*Context).dispatchContentFrame,
	"turn.end":             func(c *Context, _, _ string, _ []byte) { c.handleTurnEnd() },
	"speech.startDetected": func(c *Context, _, _ string, _ []byte) { c.handleSpeechStart() },
	"speech.endDetected":   func(c *Context, _, _ string, _ []byte) { c.handleSpeechEnd() },
}

// dispatchFrame is installed as the Transport's RecvFunc. It resolves path
// against the system table first, then the user handler registry, and
// records a metric when neither matches.
func (c *Context) dispatchFrame(headers map[string]string, body []byte) {
	path := headers["Path"]
	contentType := headers["Content-Type"]

	c.logger.Debug("usp: dispatching frame",
		slog.String("path", path),
		slog.String("content_type", contentType),
		slog.Int("size", len(body)))

	if handler, ok := systemDispatchTable[path]; ok {
		handler(c, path, contentType, body)
		return
	}

	if c.dispatchUserHandler(path, contentType, body) {
		return
	}

	c.logger.Info("usp: unhandled response path", slog.String("path", path))
	c.metrics.RecordUnhandledResponse(context.Background(), path)
}

// dispatchUserHandler looks up a user-registered handler for path under
// the context's lock, then invokes it with the lock released, per the
// "system handlers run with the lock held only long enough to read the
// handler list" rule.
func (c *Context) dispatchUserHandler(path, contentType string, body []byte) bool {
	c.mu.Lock()
	idx, ok := c.handlerIdx[path]
	var h userHandler
	if ok {
		h = c.handlers[idx]
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	h.fn(h.userCtx, path, contentType, body)
	return true
}

// dispatchContentFrame implements the shared "Content" handler for
// turn.start, speech.hypothesis, speech.phrase, and speech.fragment: it
// requires a non-empty body, validates it against Content-Type, and
// invokes the typed callback matching path.
func (c *Context) dispatchContentFrame(path, contentType string, body []byte) {
	if len(body) == 0 {
		c.logger.Info("usp: dropping content frame with empty body", slog.String("path", path))
		return
	}
	if err := validateContent(contentType, body); err != nil {
		c.logger.Info("usp: dropping content frame with invalid body",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	raw := nulTerminate(body)[:len(body)]
	reqID := c.transport.RequestID()
	cb := c.getCallbacks()

	switch path {
	case "turn.start":
		c.mu.Lock()
		c.turnStart = time.Now()
		c.mu.Unlock()
		if cb.OnTurnStart != nil {
			cb.OnTurnStart(c.userCtx, TurnStartEvent{RequestID: reqID, Raw: raw})
		} else {
			c.logger.Info("usp: no OnTurnStart callback registered")
		}
	case "speech.hypothesis":
		if cb.OnHypothesis != nil {
			cb.OnHypothesis(c.userCtx, HypothesisEvent{RequestID: reqID, Raw: raw})
		} else {
			c.logger.Info("usp: no OnHypothesis callback registered")
		}
	case "speech.phrase":
		if cb.OnPhrase != nil {
			cb.OnPhrase(c.userCtx, PhraseEvent{RequestID: reqID, Raw: raw})
		} else {
			c.logger.Info("usp: no OnPhrase callback registered")
		}
	case "speech.fragment":
		if cb.OnFragment != nil {
			cb.OnFragment(c.userCtx, FragmentEvent{RequestID: reqID, Raw: raw})
		} else {
			c.logger.Info("usp: no OnFragment callback registered")
		}
	}
}

// handleSpeechStart delivers an empty SpeechStartEvent.
func (c *Context) handleSpeechStart() {
	cb := c.getCallbacks()
	if cb.OnSpeechStart != nil {
		cb.OnSpeechStart(c.userCtx, SpeechStartEvent{})
	} else {
		c.logger.Info("usp: no OnSpeechStart callback registered")
	}
}

// handleSpeechEnd delivers an empty SpeechEndEvent.
func (c *Context) handleSpeechEnd() {
	cb := c.getCallbacks()
	if cb.OnSpeechEnd != nil {
		cb.OnSpeechEnd(c.userCtx, SpeechEndEvent{})
	} else {
		c.logger.Info("usp: no OnSpeechEnd callback registered")
	}
}

// handleTurnEnd flushes telemetry for the current turn, records its
// duration, delivers the turn-end event, then allocates the next turn's
// request id — in that order, so a callback observing
// TurnEndEvent.RequestID still sees the turn it just finished, not the
// next one.
func (c *Context) handleTurnEnd() {
	reqID := c.transport.RequestID()

	if err := c.telemetry.Flush(reqID); err != nil {
		c.logger.Error("usp: telemetry flush failed", slog.String("request_id", reqID), slog.String("error", err.Error()))
	}

	c.mu.Lock()
	turnStart := c.turnStart
	c.turnStart = time.Time{}
	c.mu.Unlock()
	if !turnStart.IsZero() {
		c.metrics.RecordTurnDuration(context.Background(), time.Since(turnStart).Seconds())
	}

	cb := c.getCallbacks()
	if cb.OnTurnEnd != nil {
		cb.OnTurnEnd(c.userCtx, TurnEndEvent{RequestID: reqID})
	} else {
		c.logger.Info("usp: no OnTurnEnd callback registered")
	}

	c.transport.CreateRequestID()
}

// handleTransportError is installed as the Transport's ErrorFunc. It moves
// the context to the error state and forwards the event to the user
// callback, if one is registered. The connection is not closed; the caller
// decides whether to shut down.
func (c *Context) handleTransportError(ev TransportErrorEvent) {
	c.mu.Lock()
	c.state = StateError
	c.mu.Unlock()

	c.metrics.RecordTransportError(context.Background(), ev.Code)

	cb := c.getCallbacks()
	if cb.OnError != nil {
		cb.OnError(c.userCtx, ev)
	} else {
		c.logger.Info("usp: no OnError callback registered", slog.String("message", ev.Message))
	}
}
