package parse

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// citationMarkerRe matches the private-use delimited "cite" markers
	// ChatGPT leaves inline in answers that used web search.
	citationMarkerRe = regexp.MustCompile("\ue200cite\ue202.*?\ue201")
	markdownURLRe    = regexp.MustCompile(`\((https?://[^)\s]+)\)`)
)

// applyContentReferences replaces citation markers in text with the links
// described by metadata.content_references, then strips leftover markers.
func applyContentReferences(text string, metadata gjson.Result) string {
	if text == "" {
		return text
	}
	if !metadata.IsObject() {
		return citationMarkerRe.ReplaceAllString(text, "")
	}

	var order []string
	grouped := make(map[string][]gjson.Result)
	for _, ref := range field(metadata, "content_references").Array() {
		if !ref.IsObject() {
			continue
		}
		matched := field(ref, "matched_text")
		if matched.Type != gjson.String || matched.Str == "" {
			continue
		}
		if _, ok := grouped[matched.Str]; !ok {
			order = append(order, matched.Str)
		}
		grouped[matched.Str] = append(grouped[matched.Str], ref)
	}

	type replacement struct{ from, to string }
	var repls []replacement
	for _, matched := range order {
		if links := renderReferenceLinks(grouped[matched]); links != "" {
			repls = append(repls, replacement{matched, links})
		}
	}
	// longest first so a marker that contains another is not split apart
	sort.SliceStable(repls, func(i, j int) bool {
		return len(repls[i].from) > len(repls[j].from)
	})

	rendered := text
	for _, r := range repls {
		rendered = strings.ReplaceAll(rendered, r.from, r.to)
	}
	return citationMarkerRe.ReplaceAllString(rendered, "")
}

func renderReferenceLinks(refs []gjson.Result) string {
	var urls []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		for _, raw := range referenceURLs(ref) {
			u := normalizeReferenceURL(raw)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return ""
	}
	links := make([]string, len(urls))
	for i, u := range urls {
		links[i] = "[" + referenceLabel(u) + "](" + u + ")"
	}
	return "(" + strings.Join(links, " · ") + ")"
}

func referenceURLs(ref gjson.Result) []string {
	var out []string
	if alt := field(ref, "alt"); alt.Type == gjson.String && strings.TrimSpace(alt.Str) != "" {
		for _, m := range markdownURLRe.FindAllStringSubmatch(alt.Str, -1) {
			out = append(out, m[1])
		}
	}
	for _, u := range field(ref, "safe_urls").Array() {
		if s := str(u); s != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	for _, item := range field(ref, "items").Array() {
		if s := str(field(item, "url")); s != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// normalizeReferenceURL drops utm_* tracking parameters from http(s) URLs.
func normalizeReferenceURL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}
	u, err := url.Parse(cleaned)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return cleaned
	}
	var kept []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			name = pair[:i]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if strings.HasPrefix(strings.ToLower(name), "utm_") {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

func referenceLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return raw
	}
	if u.Path == "" || u.Path == "/" {
		return u.Host
	}
	return u.Host + u.Path
}
