package usp

import (
	"encoding/json"
	"strings"
)

// nulTerminate returns a defensive copy of body with a trailing NUL byte.
// The original C implementation required a NUL-terminated buffer before
// handing content off to its JSON parser; this module's parser does not,
// but the copy is kept so a caller holding onto body's backing array can
// never observe a handler mutating it.
func nulTerminate(body []byte) []byte {
	out := make([]byte, len(body)+1)
	copy(out, body)
	return out
}

// validateContent performs a shallow sanity check of body against
// contentType before it is handed to a typed callback. A JSON content type
// with a malformed body is rejected with [ErrorCodeInvalidResponse]; any
// other content type is passed through unparsed, since this module does
// not need to understand it to deliver the raw bytes to the caller.
func validateContent(contentType string, body []byte) error {
	if strings.Contains(strings.ToLower(contentType), "json") {
		if !json.Valid(body) {
			return NewError(ErrorCodeInvalidResponse, "content body is not valid JSON")
		}
	}
	return nil
}
