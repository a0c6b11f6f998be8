// ABOUTME: Canonical JSON encoding used to build cache keys
// ABOUTME: Object keys are sorted so field order never changes the key

package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// decodeJSON decodes raw into generic values, keeping numbers as json.Number so the
// original textual form survives re-encoding. Empty input decodes to nil.
func decodeJSON(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// canonicalJSON re-encodes raw with sorted object keys, no insignificant
// whitespace and numbers in a single spelling, so 5, 5.0 and 5e0 agree.
func canonicalJSON(raw []byte) (string, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return "", err
	}
	return canonicalValue(v)
}

// canonicalValue encodes an already decoded value the way canonicalJSON does.
func canonicalValue(v any) (string, error) {
	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(normalizeNumbers(v))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		return canonicalNumber(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeNumbers(val)
		}
		return out
	default:
		return v
	}
}

// maxExactFloat is the largest magnitude below which every integer is a float64.
const maxExactFloat = 1 << 53

func canonicalNumber(n json.Number) json.Number {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return json.Number(strconv.FormatInt(i, 10))
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return n
	}
	if f == math.Trunc(f) && math.Abs(f) < maxExactFloat {
		return json.Number(strconv.FormatInt(int64(f), 10))
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}
