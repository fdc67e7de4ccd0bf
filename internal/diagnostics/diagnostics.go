// Package diagnostics exports the stored configuration with secrets
// redacted, for support bundles.
package diagnostics

import (
	"encoding/json"

	"plantbook/internal/store"
)

// RedactionMarker replaces every redacted value.
const RedactionMarker = "**REDACTED**"

// redactedKeys are removed wherever they appear, at any nesting depth.
var redactedKeys = map[string]struct{}{
	"client_id": {},
	"secret":    {},
}

// Redact deep-copies v, replacing the value of every sensitive key with the
// redaction marker. It accepts the map/slice/scalar shapes produced by JSON
// decoding; other values are round-tripped through JSON first.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, sensitive := redactedKeys[k]; sensitive {
				out[k] = RedactionMarker
				continue
			}
			out[k] = Redact(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	case nil, bool, string, float64, int:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return RedactionMarker
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return RedactionMarker
		}
		return Redact(decoded)
	}
}

// Export builds the redacted diagnostics payload: the parent credential
// entry plus every stored plant record.
func Export(s store.Store) map[string]any {
	out := map[string]any{
		"plants": map[string]any{},
	}

	if creds, ok := s.Credentials(); ok {
		out["credentials"] = Redact(creds)
	}

	plants := out["plants"].(map[string]any)
	for _, rec := range s.List() {
		plants[rec.DeviceID] = Redact(rec)
	}
	return out
}
