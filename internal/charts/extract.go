package charts

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/canopy/internal/model"
)

// Extractor pulls the image payload out of a response body.
type Extractor func(body string) (string, error)

// payloadFields are probed in order on a JSON object response.
var payloadFields = []string{"image", "data", "base64", "content", "chart"}

// longStringThreshold is the minimum length of a string accepted by the
// last-resort heuristic.
const longStringThreshold = 100

// ExtractPayload is the default Extractor. A body that is not JSON is taken
// as the payload itself. A JSON string is the payload. A JSON object yields
// the first non-empty named payload field, else the first string field longer
// than 100 characters in document order. A repeated object key keeps its last
// value. A JSON array yields its first such string element.
func ExtractPayload(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty body", model.ErrExtraction)
	}
	if !json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrExtraction, err)
	}

	switch v := tok.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: empty string body", model.ErrExtraction)
		}
		return v, nil
	case json.Delim:
		switch v {
		case '{':
			return extractObject(dec)
		case '[':
			return extractArray(dec)
		}
	}
	return "", fmt.Errorf("%w: unsupported body shape", model.ErrExtraction)
}

func extractObject(dec *json.Decoder) (string, error) {
	// A repeated key keeps its first position but takes the last value.
	var keys []string
	values := make(map[string]*string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrExtraction, err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrExtraction, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			values[key] = nil
			continue
		}
		values[key] = &s
	}

	for _, field := range payloadFields {
		if s := values[field]; s != nil && *s != "" {
			return *s, nil
		}
	}
	for _, key := range keys {
		if s := values[key]; s != nil && len(*s) > longStringThreshold {
			return *s, nil
		}
	}
	return "", fmt.Errorf("%w: no payload field", model.ErrExtraction)
}

func extractArray(dec *json.Decoder) (string, error) {
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("%w: %v", model.ErrExtraction, err)
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && len(s) > longStringThreshold {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: no payload element", model.ErrExtraction)
}
