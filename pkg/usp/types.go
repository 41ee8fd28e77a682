package usp

import "time"

// EndpointKind selects the header set a [Context] builds when connecting.
type EndpointKind int

const (
	// EndpointDefault is a plain USP endpoint: only the auth header is added.
	EndpointDefault EndpointKind = iota
	// EndpointCDSDK additionally requires the fixed audio-codec header and a
	// user-agent header.
	EndpointCDSDK
)

func (k EndpointKind) String() string {
	if k == EndpointCDSDK {
		return "cdsdk"
	}
	return "default"
}

// AuthType selects which authentication header a Context's auth descriptor
// produces on connect.
type AuthType int

const (
	AuthSubscriptionKey AuthType = iota
	AuthAuthorizationToken
	AuthSearchDelegationRPS
)

// AuthDescriptor carries exactly one credential, per AuthType.
type AuthDescriptor struct {
	Type  AuthType
	Value string
}

// SubscriptionKeyAuth builds an AuthDescriptor for the Ocp-Apim-Subscription-Key header.
func SubscriptionKeyAuth(key string) AuthDescriptor {
	return AuthDescriptor{Type: AuthSubscriptionKey, Value: key}
}

// AuthorizationTokenAuth builds an AuthDescriptor for a bearer token.
func AuthorizationTokenAuth(token string) AuthDescriptor {
	return AuthDescriptor{Type: AuthAuthorizationToken, Value: token}
}

// SearchDelegationRPSAuth builds an AuthDescriptor for the X-Search-DelegationRPSToken header.
func SearchDelegationRPSAuth(token string) AuthDescriptor {
	return AuthDescriptor{Type: AuthSearchDelegationRPS, Value: token}
}

// ConnectionState is the lifecycle state of a [Context].
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// callbacksVersion is the only version this module accepts from
// [Context.SetCallbacks]. A mismatch is a compatibility failure, not a
// silently-degraded call.
const callbacksVersion = 1

// SpeechStartEvent is delivered on speech.startDetected. It carries no
// payload.
type SpeechStartEvent struct{}

// SpeechEndEvent is delivered on speech.endDetected. It carries no payload.
type SpeechEndEvent struct{}

// TurnStartEvent is delivered on turn.start.
type TurnStartEvent struct {
	RequestID string
	Raw       []byte
}

// TurnEndEvent is delivered on turn.end, after telemetry for the turn has
// been flushed and before the next request id is allocated.
type TurnEndEvent struct {
	RequestID string
}

// HypothesisEvent is delivered on speech.hypothesis: an interim, unstable
// recognition result.
type HypothesisEvent struct {
	RequestID string
	Raw       []byte
}

// PhraseEvent is delivered on speech.phrase: a finalized recognition result.
type PhraseEvent struct {
	RequestID string
	Raw       []byte
}

// FragmentEvent is delivered on speech.fragment.
type FragmentEvent struct {
	RequestID string
	Raw       []byte
}

// TransportErrorEvent is delivered to Callbacks.OnError whenever the
// transport observes a connection-level failure. It does not, by itself,
// close the connection.
type TransportErrorEvent struct {
	Code    ErrorCode
	Message string
}

// Callbacks is the compatibility-checked table of user callback functions.
// Version and Size are validated by [Context.SetCallbacks] against the
// values this module expects; a mismatch is rejected rather than silently
// accepted with missing fields.
//
// Any field left nil is permitted: a missing callback for a given path is
// logged at info level and is never treated as an error.
type Callbacks struct {
	Version int
	Size    int

	OnError       func(userCtx any, ev TransportErrorEvent)
	OnSpeechStart func(userCtx any, ev SpeechStartEvent)
	OnSpeechEnd   func(userCtx any, ev SpeechEndEvent)
	OnHypothesis  func(userCtx any, ev HypothesisEvent)
	OnPhrase      func(userCtx any, ev PhraseEvent)
	OnFragment    func(userCtx any, ev FragmentEvent)
	OnTurnStart   func(userCtx any, ev TurnStartEvent)
	OnTurnEnd     func(userCtx any, ev TurnEndEvent)
}

// NewCallbacks returns a Callbacks value stamped with the version and size
// this module expects, so that callers assembling a table field-by-field
// never need to know the magic numbers themselves.
func NewCallbacks() Callbacks {
	return Callbacks{Version: callbacksVersion, Size: callbacksTableSize}
}

// callbacksTableSize is the number of callback slots in the table. It is
// compared against Callbacks.Size the same way the table's Version field is
// compared, as a second compatibility check independent of the Go struct's
// actual in-memory layout.
const callbacksTableSize = 8

// UserPathHandlerFunc handles an inbound frame whose path is not present in
// the system dispatch table.
type UserPathHandlerFunc func(userCtx any, path string, contentType string, body []byte)

// userHandler pairs a registered handler with its caller-supplied context,
// in insertion order.
type userHandler struct {
	path    string
	fn      UserPathHandlerFunc
	userCtx any
}

// creationTick captures time.Now() once, at Context construction, as the
// monotonic reference point CreationTime subtracts against.
type creationTick struct {
	at time.Time
}

func newCreationTick() creationTick { return creationTick{at: time.Now()} }

func (t creationTick) elapsed() time.Duration { return time.Since(t.at) }
