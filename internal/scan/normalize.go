package scan

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Normalize turns raw decoded scanner text into a code. QR payloads of the
// form {"id": ...} yield the id; anything else is used as-is. The result is trimmed.
func Normalize(raw string) string {
	code := raw

	var payload map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err == nil && !dec.More() {
		if id, ok := payload["id"]; ok {
			if s, ok := idString(id); ok {
				code = s
			}
		}
	}

	return strings.TrimSpace(code)
}

// idString renders a JSON value the way it reads on the label.
// Empty, null, false and zero ids are ignored like a missing id.
func idString(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", false
	}

	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return numberString(id)
	case bool:
		if id {
			return "true", true
		}
		return "", false
	case nil:
		return "", false
	default:
		return string(raw), true
	}
}

// numberString keeps integer literals digit for digit and renders fractional
// or exponent forms in their shortest decimal form, so 1.0 reads as 1.
func numberString(n json.Number) (string, bool) {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		return text, text != "0" && text != "-0"
	}
	f, err := n.Float64()
	if err != nil {
		return text, true
	}
	if f == 0 {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
