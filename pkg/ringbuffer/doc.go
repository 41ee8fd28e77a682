// Package ringbuffer implements an absolute-position circular byte store.
//
// A [RingBuffer] tracks three monotonically non-decreasing 64-bit byte
// positions — init_pos, write_pos, and read_pos — over a fixed-capacity
// backing array. Callers address bytes by their absolute position in the
// logical lifetime stream rather than by an offset into the backing array;
// the mapping from an absolute position p to an internal offset is
// (p - init_pos) mod capacity.
//
// [RingBuffer] itself never blocks: a short read either fails (the strict
// forms) or returns fewer bytes than requested (the *Available forms).
// [BlockingRingBuffer] wraps the same storage and instead blocks callers
// until enough data arrives, an explicit [BlockingRingBuffer.Unblock] call
// releases them with whatever is currently available, or the buffer is
// terminated.
//
// This is the backing store for the audio capture pipeline: a producer
// writes captured PCM frames in, and [github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp.AudioPump]
// drains it into the USP client's upstream audio turn.
package ringbuffer
