// Package assets links asset pointers found in exports to media files
// shipped next to them.
package assets

import (
	"io/fs"
	"log/slog"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

const minTokenLength = 3

var preferredExt = map[string][]string{
	"image": {".png", ".jpg", ".jpeg", ".webp", ".gif"},
	"audio": {".wav", ".mp3", ".m4a", ".ogg", ".webm"},
}

var mediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
}

// Resolved is a media file an asset id points at.
type Resolved struct {
	Path      string
	MediaType string
}

// Catalog maps (provider, asset id) to files.
type Catalog map[model.Key]Resolved

func (c Catalog) Lookup(p model.Provider, assetID string) (Resolved, bool) {
	r, ok := c[model.Key{Provider: p, ID: assetID}]
	return r, ok
}

// ID is the stable asset id of a pointer within a provider.
func ID(p model.Provider, pointer string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(p)+":"+pointer)).String()
}

// URL is the API path serving an asset.
func URL(p model.Provider, assetID string) string {
	return "/api/assets/" + string(p) + "/" + assetID
}

// MediaType guesses the content type of path from its extension.
func MediaType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

type file struct {
	path  string
	name  string // lower-cased base name
	depth int
}

// index lists the regular files under a provider root.
type index struct {
	files []file
}

func buildIndex(root string, logger *slog.Logger) *index {
	idx := &index{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		idx.files = append(idx.files, file{
			path:  path,
			name:  strings.ToLower(d.Name()),
			depth: strings.Count(rel, string(filepath.Separator)),
		})
		return nil
	})
	if err != nil {
		logger.Warn("asset index incomplete", "root", root, "err", err)
	}
	return idx
}

// pointerToken strips the scheme from pointers like file-service://file-abc.
func pointerToken(pointer string) string {
	token := strings.TrimSpace(pointer)
	if i := strings.Index(token, "://"); i >= 0 {
		token = token[i+3:]
	}
	return strings.ToLower(strings.Trim(token, "/"))
}

func (idx *index) find(a model.Asset) (string, bool) {
	if a.SourcePointer == nil {
		return "", false
	}
	token := pointerToken(*a.SourcePointer)
	if len(token) < minTokenLength {
		return "", false
	}

	exts := preferredExt[a.Kind]
	if a.Format != nil && *a.Format != "" {
		exts = append([]string{"." + strings.ToLower(*a.Format)}, exts...)
	}
	rank := func(name string) int {
		ext := filepath.Ext(name)
		for i, e := range exts {
			if e == ext {
				return i
			}
		}
		return len(exts)
	}

	var matches []file
	for _, f := range idx.files {
		if strings.HasPrefix(f.name, token) && filepath.Ext(f.name) != ".json" {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		ri, rj := rank(matches[i].name), rank(matches[j].name)
		if ri != rj {
			return ri < rj
		}
		if matches[i].depth != matches[j].depth {
			return matches[i].depth < matches[j].depth
		}
		return len(matches[i].path) < len(matches[j].path)
	})
	return matches[0].path, true
}

// Enrich resolves asset descriptors against the files under each provider
// root. Conversations holding assets are returned as copies; the input is
// never modified. Roots are indexed only when a provider has assets.
func Enrich(convs []model.Conversation, roots map[model.Provider]string, logger *slog.Logger) ([]model.Conversation, Catalog) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := make(Catalog)
	indexes := make(map[model.Provider]*index)
	out := make([]model.Conversation, len(convs))

	resolved, missing := 0, 0
	for i, c := range convs {
		if !hasAssets(c) {
			out[i] = c
			continue
		}
		idx, ok := indexes[c.Provider]
		if !ok {
			if root := roots[c.Provider]; root != "" {
				idx = buildIndex(root, logger)
			}
			indexes[c.Provider] = idx
		}

		copied := c.Clone()
		for mi := range copied.Messages {
			blocks := copied.Messages[mi].Content
			for bi := range blocks {
				a, ok := blocks[bi].Asset()
				if !ok {
					continue
				}
				if idx == nil {
					missing++
					continue
				}
				path, found := idx.find(a)
				if !found {
					missing++
					continue
				}
				id := ID(c.Provider, *a.SourcePointer)
				url := URL(c.Provider, id)
				media := MediaType(path)
				a.AssetID = &id
				a.AssetURL = &url
				a.IsResolved = true
				if a.MimeType == nil {
					a.MimeType = &media
				}
				blocks[bi].Data["asset"] = a
				catalog[model.Key{Provider: c.Provider, ID: id}] = Resolved{Path: path, MediaType: media}
				resolved++
			}
		}
		out[i] = copied
	}
	if resolved+missing > 0 {
		logger.Debug("resolved assets", "resolved", resolved, "missing", missing)
	}
	return out, catalog
}

func hasAssets(c model.Conversation) bool {
	for _, m := range c.Messages {
		for _, b := range m.Content {
			if _, ok := b.Asset(); ok {
				return true
			}
		}
	}
	return false
}
