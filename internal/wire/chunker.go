package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxSafeMessageSize is the largest serialized message, in characters,
// sent as a single frame before chunking kicks in. The transport imposes
// a ~1 MiB per-frame ceiling; this leaves comfortable headroom. See
// spec §4.1.
const MaxSafeMessageSize = 256 * 1024

// Encode serializes v to JSON and splits it into outbound frames. A
// payload at or under MaxSafeMessageSize is returned as a single frame.
// Larger payloads are split into N frames, each prefixed
// "<chunks-remaining>_", counting down from N-1 to 0.
func Encode(v any) ([]string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal message: %w", err)
	}
	return EncodeRaw(payload)
}

// EncodeRaw chunks an already-serialized JSON payload. Encode is a thin
// wrapper that marshals v first; EncodeRaw exists separately so callers
// that already hold serialized bytes (e.g. a session's debounce buffer)
// don't pay for a marshal/unmarshal round trip.
func EncodeRaw(payload []byte) ([]string, error) {
	s := string(payload)
	if len(s) <= MaxSafeMessageSize {
		return []string{s}, nil
	}

	n := (len(s) + MaxSafeMessageSize - 1) / MaxSafeMessageSize
	frames := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := i * MaxSafeMessageSize
		end := start + MaxSafeMessageSize
		if end > len(s) {
			end = len(s)
		}
		remaining := n - 1 - i
		var b strings.Builder
		b.Grow(end - start + 8)
		b.WriteString(strconv.Itoa(remaining))
		b.WriteByte('_')
		b.WriteString(s[start:end])
		frames = append(frames, b.String())
	}
	return frames, nil
}
