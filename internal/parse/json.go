package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNotArray is returned when an export file's top level is not a JSON array.
var ErrNotArray = errors.New("expected a JSON array at top level")

// readArray loads path and returns its top-level array elements.
func readArray(path string) ([]gjson.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode %s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("decode %s: %w", path, ErrNotArray)
	}
	return root.Array(), nil
}

// field looks up a literal object key without gjson path syntax, so keys
// containing dots or wildcards are matched verbatim.
func field(obj gjson.Result, key string) gjson.Result {
	if !obj.IsObject() {
		return gjson.Result{}
	}
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			out = v
			return false
		}
		return true
	})
	return out
}

// has reports whether obj has key, regardless of its value.
func has(obj gjson.Result, key string) bool {
	return field(obj, key).Exists()
}

func keys(obj gjson.Result) []string {
	var out []string
	obj.ForEach(func(k, _ gjson.Result) bool {
		out = append(out, k.Str)
		return true
	})
	return out
}

// truthy follows JSON truthiness: false, null, 0, "" and empty containers are false.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		n := 0
		v.ForEach(func(_, _ gjson.Result) bool { n++; return false })
		return n > 0
	}
	return false
}

// str returns v when it is a non-blank string.
func str(v gjson.Result) string {
	if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return ""
	}
	return v.Str
}

// scalarString stringifies strings, numbers and booleans; other values give "".
func scalarString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	}
	return ""
}

func intOrNil(v gjson.Result) *int64 {
	switch v.Type {
	case gjson.Number:
		n := int64(v.Num)
		return &n
	case gjson.String:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func floatOrNil(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		f := v.Num
		return &f
	case gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return &f
		}
	}
	return nil
}

func strOrNil(v gjson.Result) *string {
	s := str(v)
	if s == "" {
		return nil
	}
	return &s
}

// unixTime parses seconds since the epoch given as a number or numeric string.
func unixTime(v gjson.Result) (time.Time, bool) {
	f := floatOrNil(v)
	if f == nil {
		return time.Time{}, false
	}
	sec := int64(*f)
	nsec := int64((*f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// isoTime parses ISO-8601 timestamps; values without a zone are taken as UTC.
func isoTime(v gjson.Result) (time.Time, bool) {
	if v.Type != gjson.String {
		return time.Time{}, false
	}
	s := strings.TrimSpace(v.Str)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func unixOr(v gjson.Result, fallback time.Time) time.Time {
	if t, ok := unixTime(v); ok {
		return t
	}
	return fallback
}

func isoOr(v gjson.Result, fallback time.Time) time.Time {
	if t, ok := isoTime(v); ok {
		return t
	}
	return fallback
}

// jsonNumber keeps a number's literal so it re-encodes unchanged.
func jsonNumber(v gjson.Result) json.Number {
	return json.Number(v.Raw)
}
