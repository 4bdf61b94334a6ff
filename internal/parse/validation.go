package parse

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Level names a structural level of an export whose keys are audited.
type Level int

const (
	LevelConversation Level = iota
	LevelChunkedPrompt
	LevelChunk
	LevelPart
	LevelRunSettings
	numLevels
)

var levelLabels = [numLevels]string{
	LevelConversation:  "conversation",
	LevelChunkedPrompt: "chunkedPrompt",
	LevelChunk:         "chunk",
	LevelPart:          "part",
	LevelRunSettings:   "runSettings",
}

func (l Level) String() string {
	if l < 0 || l >= numLevels {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelLabels[l]
}

const (
	maxReportedKeys     = 8
	maxReportedSkipped  = 5
	maxReportedWarnings = 3
)

// Report collects unrecognized keys, skipped files and warnings seen while
// parsing one export file. It is not safe for concurrent use; parsers
// create one per call.
type Report struct {
	provider string
	keys     [numLevels]map[string]int
	skipped  []string
	warnings []string
}

func NewReport(provider string) *Report {
	r := &Report{provider: provider}
	for i := range r.keys {
		r.keys[i] = make(map[string]int)
	}
	return r
}

// RecordKey counts one occurrence of an unknown key at level.
func (r *Report) RecordKey(level Level, key string) {
	if level < 0 || level >= numLevels {
		return
	}
	r.keys[level][key]++
}

// CheckKeys records every key of obj that is not in known.
func (r *Report) CheckKeys(obj gjson.Result, known map[string]bool, level Level) {
	obj.ForEach(func(k, _ gjson.Result) bool {
		if !known[k.Str] {
			r.RecordKey(level, k.Str)
		}
		return true
	})
}

func (r *Report) RecordSkippedFile(name string) {
	r.skipped = append(r.skipped, name)
}

func (r *Report) RecordWarning(msg string) {
	r.warnings = append(r.warnings, msg)
}

// Count returns how often key was recorded at level.
func (r *Report) Count(level Level, key string) int {
	if level < 0 || level >= numLevels {
		return 0
	}
	return r.keys[level][key]
}

func (r *Report) HasIssues() bool {
	for _, m := range r.keys {
		if len(m) > 0 {
			return true
		}
	}
	return len(r.skipped) > 0 || len(r.warnings) > 0
}

// Summary condenses the report into one line, most frequent keys first.
func (r *Report) Summary() string {
	var parts []string
	for level, counts := range r.keys {
		if len(counts) == 0 {
			continue
		}
		type kv struct {
			key string
			n   int
		}
		sorted := make([]kv, 0, len(counts))
		for k, n := range counts {
			sorted = append(sorted, kv{k, n})
		}
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].n != sorted[j].n {
				return sorted[i].n > sorted[j].n
			}
			return sorted[i].key < sorted[j].key
		})
		if len(sorted) > maxReportedKeys {
			sorted = sorted[:maxReportedKeys]
		}
		items := make([]string, len(sorted))
		for i, e := range sorted {
			items[i] = fmt.Sprintf("%s (%dx)", e.key, e.n)
		}
		parts = append(parts, Level(level).String()+": "+strings.Join(items, ", "))
	}
	if len(r.skipped) > 0 {
		skipped := r.skipped
		if len(skipped) > maxReportedSkipped {
			skipped = skipped[:maxReportedSkipped]
		}
		parts = append(parts, "skipped files: "+strings.Join(skipped, ", "))
	}
	for i, w := range r.warnings {
		if i >= maxReportedWarnings {
			break
		}
		parts = append(parts, "warning: "+w)
	}
	return strings.Join(parts, "; ")
}

// Log emits the summary as a single warning. Nothing is logged for a clean report.
func (r *Report) Log(logger *slog.Logger) {
	if !r.HasIssues() {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(humanize(r.provider)+" validation", "provider", r.provider, "summary", r.Summary())
}
