// ABOUTME: Helpers for reading loosely typed JWT claims
// ABOUTME: Numbers and booleans are stringified, arrays of strings are flattened

package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// claimStrings reads a string or string-array claim.
func claimStrings(claims jwt.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
