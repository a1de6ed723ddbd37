package innertube

import (
	"encoding/json"
	"maps"
	"slices"
)

// Decode converts a generic JSON node into v.
func Decode(node any, v any) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Find returns the first value stored under key, searching depth first.
// Map keys are visited in sorted order so results are deterministic.
func Find(node any, key string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		if v, ok := n[key]; ok {
			return v, true
		}
		for _, k := range slices.Sorted(maps.Keys(n)) {
			if v, ok := Find(n[k], key); ok {
				return v, true
			}
		}
	case []any:
		for _, item := range n {
			if v, ok := Find(item, key); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// FindAs decodes the first value stored under key into v. It reports
// whether the key was found and decoded.
func FindAs(node any, key string, v any) bool {
	found, ok := Find(node, key)
	if !ok {
		return false
	}
	return Decode(found, v) == nil
}

// Collect returns every value stored under key. Arrays are walked in order
// and object keys in sorted order, so the result is deterministic but does
// not follow the source text when a key's siblings precede it.
func Collect(node any, key string) []any {
	var out []any
	collect(node, key, &out)
	return out
}

func collect(node any, key string, out *[]any) {
	switch n := node.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(n)) {
			if k == key {
				*out = append(*out, n[k])
				continue
			}
			collect(n[k], key, out)
		}
	case []any:
		for _, item := range n {
			collect(item, key, out)
		}
	}
}

// Videos returns every video-shaped node under node: an object holding a
// videoId string next to a title or headline. Grid, list, search and shorts
// layouts nest these differently, so no fixed path is assumed. A matched
// node is not searched further and ids are deduplicated. Order follows the
// same rule as Collect: list order is kept, sibling keys are sorted.
func Videos(node any) []VideoRenderer {
	var out []VideoRenderer
	seen := map[string]bool{}
	walkVideos(node, seen, &out)
	return out
}

func walkVideos(node any, seen map[string]bool, out *[]VideoRenderer) {
	switch n := node.(type) {
	case map[string]any:
		if isVideoNode(n) {
			var r VideoRenderer
			if err := Decode(n, &r); err == nil && !seen[r.VideoID] {
				seen[r.VideoID] = true
				*out = append(*out, r)
			}
			return
		}
		for _, k := range slices.Sorted(maps.Keys(n)) {
			walkVideos(n[k], seen, out)
		}
	case []any:
		for _, item := range n {
			walkVideos(item, seen, out)
		}
	}
}

func isVideoNode(n map[string]any) bool {
	id, ok := n["videoId"].(string)
	if !ok || id == "" {
		return false
	}
	_, hasTitle := n["title"]
	_, hasHeadline := n["headline"]
	return hasTitle || hasHeadline
}

// Channels returns every channelRenderer under node.
func Channels(node any) []ChannelRenderer {
	var out []ChannelRenderer
	for _, raw := range Collect(node, "channelRenderer") {
		var r ChannelRenderer
		if err := Decode(raw, &r); err == nil && r.ChannelID != "" {
			out = append(out, r)
		}
	}
	return out
}

// ContinuationToken returns the token that loads the next page of the
// listing in node, or "" on the last page. The listing's own token sits in
// its trailing continuationItemRenderer; older layouts use
// nextContinuationData.
func ContinuationToken(node any) string {
	items := Collect(node, "continuationItemRenderer")
	for i := len(items) - 1; i >= 0; i-- {
		if cmd, ok := Find(items[i], "continuationCommand"); ok {
			if m, ok := cmd.(map[string]any); ok {
				if token, ok := m["token"].(string); ok && token != "" {
					return token
				}
			}
		}
	}
	for _, raw := range Collect(node, "nextContinuationData") {
		if m, ok := raw.(map[string]any); ok {
			if token, ok := m["continuation"].(string); ok && token != "" {
				return token
			}
		}
	}
	return ""
}
