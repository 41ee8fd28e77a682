// Package usp implements a client for the Unified Speech Protocol: a
// long-lived, full-duplex connection to a cloud speech recognition service
// that streams audio frames up and receives structured recognition events
// down.
//
// A [Context] owns one session: its [Transport] connection, [DNSCache],
// [Telemetry] recorder, and the table of registered path handlers. Callers
// configure a Context, call [Context.Connect], then drive audio upstream
// through [Context.AudioWrite]/[Context.AudioFlush] (or, more commonly, an
// [AudioPump] reading from a
// [github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/ringbuffer.BlockingRingBuffer])
// while inbound recognition events arrive asynchronously on the
// [Callbacks] table supplied to [Context.SetCallbacks].
package usp
