package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Bounds for generic text extraction over untrusted payloads.
const (
	maxExtractDepth = 5
	maxListItems    = 12
	maxObjectKeys   = 16
)

var priorityKeys = []string{
	"text", "thinking", "summary", "message", "title",
	"name", "content", "url", "snippet", "domain",
}

var structuralKeys = map[string]bool{
	"content_type": true,
	"type":         true,
	"role":         true,
	"status":       true,
	"recipient":    true,
	"channel":      true,
}

// extractText flattens an arbitrary JSON value into readable text.
func extractText(v gjson.Result) string {
	return extractDepth(v, 0)
}

func extractDepth(v gjson.Result, depth int) string {
	if depth > maxExtractDepth || !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number, gjson.True, gjson.False:
		return scalarString(v)
	}

	var parts []string
	if v.IsArray() {
		for i, item := range v.Array() {
			if i >= maxListItems {
				break
			}
			if s := extractDepth(item, depth+1); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	if !v.IsObject() {
		return ""
	}

	values := make(map[string]gjson.Result)
	var rest []string
	v.ForEach(func(k, val gjson.Result) bool {
		if _, seen := values[k.Str]; !seen {
			values[k.Str] = val
			if !isPriorityKey(k.Str) {
				rest = append(rest, k.Str)
			}
		}
		return true
	})

	ordered := append(append([]string{}, priorityKeys...), rest...)
	if len(ordered) > maxObjectKeys {
		ordered = ordered[:maxObjectKeys]
	}
	for _, key := range ordered {
		if structuralKeys[key] {
			continue
		}
		val, ok := values[key]
		if !ok {
			continue
		}
		if s := extractDepth(val, depth+1); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func isPriorityKey(key string) bool {
	for _, k := range priorityKeys {
		if k == key {
			return true
		}
	}
	return false
}

// firstText returns the first non-empty extraction among keys of obj.
func firstText(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := extractText(field(obj, k)); s != "" {
			return s
		}
	}
	return ""
}

// humanize turns an identifier like "tether_quote" into "Tether quote".
func humanize(id string) string {
	s := strings.TrimSpace(strings.ReplaceAll(id, "_", " "))
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func placeholder(id string) string {
	return "[" + humanize(id) + "]"
}

const (
	maxShortString = 200
	maxLongString  = 2000
)

var bodyKeys = map[string]bool{
	"text":     true,
	"thinking": true,
	"parts":    true,
	"content":  true,
	"thoughts": true,
}

var identifierKeys = map[string]bool{
	"asset_pointer":                 true,
	"audio_asset_pointer":           true,
	"video_container_asset_pointer": true,
	"url":                           true,
	"ref_id":                        true,
	"file_name":                     true,
	"file_type":                     true,
	"tool_use_id":                   true,
	"command":                       true,
	"name":                          true,
	"id":                            true,
}

// lightweightMetadata keeps the small scalar fields of obj for the block
// sidecar. Body fields and nested values are dropped.
func lightweightMetadata(objs ...gjson.Result) map[string]any {
	out := make(map[string]any)
	for _, obj := range objs {
		obj.ForEach(func(k, v gjson.Result) bool {
			key := k.Str
			if bodyKeys[key] {
				return true
			}
			switch v.Type {
			case gjson.Number:
				out[key] = jsonNumber(v)
			case gjson.True:
				out[key] = true
			case gjson.False:
				out[key] = false
			case gjson.String:
				switch {
				case identifierKeys[key]:
					out[key] = truncate(v.Str, maxLongString)
				case len(v.Str) <= maxShortString:
					out[key] = v.Str
				}
			}
			return true
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
