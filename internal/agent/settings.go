// ABOUTME: Model settings merging and prompt cache defaults
// ABOUTME: Request overrides win over template settings, nested sections merge key by key

package agent

import "maps"

// CacheRetention is the default prompt cache retention.
const CacheRetention = "24h"

var nestedSections = []string{"reasoning", "text", "provider_data"}

// MergeSettings overlays override onto base. The reasoning, text and provider_data
// sections merge per key; a camelCase providerData section folds into provider_data.
// Neither input is modified.
func MergeSettings(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)

	for _, section := range nestedSections {
		merged := map[string]any{}
		if section == "provider_data" {
			maps.Copy(merged, asMap(base["providerData"]))
		}
		maps.Copy(merged, asMap(base[section]))
		if section == "provider_data" {
			maps.Copy(merged, asMap(override["providerData"]))
		}
		maps.Copy(merged, asMap(override[section]))

		if len(merged) > 0 {
			out[section] = merged
		} else {
			delete(out, section)
		}
	}
	delete(out, "providerData")
	return out
}

// withCacheDefaults fills the prompt cache key and retention when absent.
func withCacheDefaults(settings map[string]any, key string) map[string]any {
	out := maps.Clone(settings)
	if out == nil {
		out = map[string]any{}
	}
	providerData := maps.Clone(asMap(out["provider_data"]))
	if providerData == nil {
		providerData = map[string]any{}
	}
	if s, _ := providerData["prompt_cache_key"].(string); s == "" {
		providerData["prompt_cache_key"] = key
	}
	if s, _ := providerData["prompt_cache_retention"].(string); s == "" {
		providerData["prompt_cache_retention"] = CacheRetention
	}
	out["provider_data"] = providerData
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
