// Package search ranks desktop entries against typeahead queries using
// field-weighted text relevance plus personalized frequency and recency
// boosts from the usage store.
package search

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/index"
	"github.com/xdgtools/desktop-indexer/internal/usage"
)

// EmptyMode selects the ordering policy for empty queries.
type EmptyMode string

const (
	// EmptyModeRecency orders by most recent launch.
	EmptyModeRecency EmptyMode = "recency"
	// EmptyModeFrequency orders by launch count.
	EmptyModeFrequency EmptyMode = "frequency"
)

// ParseEmptyMode validates a wire or CLI empty-mode value. Empty input
// yields the recency default.
func ParseEmptyMode(s string) (EmptyMode, error) {
	switch s {
	case "", string(EmptyModeRecency):
		return EmptyModeRecency, nil
	case string(EmptyModeFrequency):
		return EmptyModeFrequency, nil
	}
	return "", ierr.Protocol("unknown empty_mode: %q", s)
}

// Scored pairs an entry with its final ranking score.
type Scored struct {
	Entry *desktop.Entry
	Score float64
}

// Options configures a search.
type Options struct {
	Limit     int
	EmptyMode EmptyMode
	Now       time.Time
}

// Field weights, strongest applicable tier wins per token.
type weights struct {
	exact, prefix, word, substr float64
}

var (
	nameWeights     = weights{1000, 600, 400, 200}
	idWeights       = weights{900, 500, 0, 150}
	genericWeights  = weights{0, 300, 200, 100}
	keywordWeights  = weights{400, 250, 200, 80}
	categoryWeights = weights{0, 150, 100, 60}
	commentWeights  = weights{0, 80, 60, 30}
)

// Tokenize lowercases the query and splits it on whitespace.
func Tokenize(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Search matches and ranks the index against query. Empty queries list
// entries by the empty-mode policy instead of text relevance.
func Search(idx *index.Index, query string, usageSnap map[string]usage.Record, opts Options) []Scored {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return emptyQuery(idx, usageSnap, opts)
	}
	candidates := Filter(idx, tokens, nil)
	return Rank(idx, candidates, query, tokens, usageSnap, opts)
}

// Filter returns the entry indexes matching every token, optionally
// restricted to a previous candidate set (typeahead refinement).
func Filter(idx *index.Index, tokens []string, within []int) []int {
	var out []int
	consider := func(i int) {
		h := &idx.Haystacks[i]
		for _, t := range tokens {
			if !matchesToken(h, t) {
				return
			}
		}
		out = append(out, i)
	}

	if within != nil {
		for _, i := range within {
			consider(i)
		}
		return out
	}
	for i := range idx.Entries {
		consider(i)
	}
	return out
}

// Rank scores the candidate entries and returns the top results ordered by
// descending score, ascending name, ascending desktop-id.
func Rank(idx *index.Index, candidates []int, query string, tokens []string, usageSnap map[string]usage.Record, opts Options) []Scored {
	exactID := strings.TrimSpace(query)
	var scored []Scored
	for _, i := range candidates {
		e := idx.Entries[i]
		if e.NoDisplay && e.ID != exactID {
			continue
		}
		base := baseScore(&idx.Haystacks[i], tokens)
		if base == 0 {
			continue
		}
		rec := usageSnap[e.ID]
		scored = append(scored, Scored{
			Entry: e,
			Score: base + frequencyBoost(rec.Count) + recencyBoost(rec.LastLaunchNS, opts.Now),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		an, bn := foldName(scored[a].Entry), foldName(scored[b].Entry)
		if an != bn {
			return an < bn
		}
		return scored[a].Entry.ID < scored[b].Entry.ID
	})

	if opts.Limit > 0 && len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored
}

// List returns all listable entries sorted by name (case-insensitive),
// desktop-id as tie-break.
func List(idx *index.Index) []*desktop.Entry {
	entries := make([]*desktop.Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.NoDisplay {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(a, b int) bool {
		an, bn := foldName(entries[a]), foldName(entries[b])
		if an != bn {
			return an < bn
		}
		return entries[a].ID < entries[b].ID
	})
	return entries
}

func emptyQuery(idx *index.Index, usageSnap map[string]usage.Record, opts Options) []Scored {
	type ranked struct {
		e   *desktop.Entry
		rec usage.Record
	}
	items := make([]ranked, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.NoDisplay {
			continue
		}
		items = append(items, ranked{e: e, rec: usageSnap[e.ID]})
	}

	less := func(a, b ranked) bool {
		switch opts.EmptyMode {
		case EmptyModeFrequency:
			if a.rec.Count != b.rec.Count {
				return a.rec.Count > b.rec.Count
			}
			if a.rec.LastLaunchNS != b.rec.LastLaunchNS {
				return a.rec.LastLaunchNS > b.rec.LastLaunchNS
			}
		default: // recency; entries with no record sort last
			if a.rec.LastLaunchNS != b.rec.LastLaunchNS {
				return a.rec.LastLaunchNS > b.rec.LastLaunchNS
			}
			if a.rec.Count != b.rec.Count {
				return a.rec.Count > b.rec.Count
			}
		}
		an, bn := strings.ToLower(a.e.Name), strings.ToLower(b.e.Name)
		if an != bn {
			return an < bn
		}
		return a.e.ID < b.e.ID
	}
	sort.SliceStable(items, func(a, b int) bool { return less(items[a], items[b]) })

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	out := make([]Scored, len(items))
	for i, it := range items {
		out[i] = Scored{Entry: it.e}
	}
	return out
}

func foldName(e *desktop.Entry) string {
	return strings.ToLower(e.Name)
}

func matchesToken(h *index.Haystack, token string) bool {
	return strings.Contains(h.Name, token) ||
		strings.Contains(h.ID, token) ||
		strings.Contains(h.GenericName, token) ||
		strings.Contains(h.Keywords, token) ||
		strings.Contains(h.Categories, token) ||
		strings.Contains(h.Comment, token)
}

// baseScore sums, per token, the strongest field weight at which the token
// hits. A zero means some token matched nothing.
func baseScore(h *index.Haystack, tokens []string) float64 {
	var total float64
	for _, t := range tokens {
		best := fieldScore(h.Name, t, nameWeights)
		best = math.Max(best, fieldScore(h.ID, t, idWeights))
		best = math.Max(best, fieldScore(h.GenericName, t, genericWeights))
		best = math.Max(best, listFieldScore(h.Keywords, t, keywordWeights))
		best = math.Max(best, listFieldScore(h.Categories, t, categoryWeights))
		best = math.Max(best, fieldScore(h.Comment, t, commentWeights))
		if best == 0 {
			return 0
		}
		total += best
	}
	return total
}

// fieldScore grades a token against a scalar field: whole-field equality,
// field prefix, word prefix, substring. Tiers with zero weight are skipped.
func fieldScore(field, token string, w weights) float64 {
	if field == "" {
		return 0
	}
	if w.exact > 0 && field == token {
		return w.exact
	}
	if w.prefix > 0 && strings.HasPrefix(field, token) {
		return w.prefix
	}
	if w.word > 0 && hasWordPrefix(field, token) {
		return w.word
	}
	if w.substr > 0 && strings.Contains(field, token) {
		return w.substr
	}
	return 0
}

// listFieldScore grades against a space-joined list field, where exact means
// the token equals a whole word of that field (an element, or one word of a
// multi-word element).
func listFieldScore(field, token string, w weights) float64 {
	if field == "" {
		return 0
	}
	if w.exact > 0 && hasWordEqual(field, token) {
		return w.exact
	}
	if w.prefix > 0 && strings.HasPrefix(field, token) {
		return w.prefix
	}
	if w.word > 0 && hasWordPrefix(field, token) {
		return w.word
	}
	if w.substr > 0 && strings.Contains(field, token) {
		return w.substr
	}
	return 0
}

// isWordBoundary reports whether the byte before index i starts a new word:
// whitespace or punctuation delimits words.
func isWordBoundary(s string, i int) bool {
	if i == 0 {
		return true
	}
	c := s[i-1]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80)
}

// hasWordPrefix reports whether token is a prefix of some word within s.
func hasWordPrefix(s, token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i+len(token) <= len(s); {
		j := strings.Index(s[i:], token)
		if j < 0 {
			return false
		}
		at := i + j
		if isWordBoundary(s, at) {
			return true
		}
		i = at + 1
	}
	return false
}

// hasWordEqual reports whether token equals a whole word within s.
func hasWordEqual(s, token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i+len(token) <= len(s); {
		j := strings.Index(s[i:], token)
		if j < 0 {
			return false
		}
		at := i + j
		end := at + len(token)
		if isWordBoundary(s, at) && (end == len(s) || isWordBoundary(s, end+1)) {
			return true
		}
		i = at + 1
	}
	return false
}

// frequencyBoost grows logarithmically with launch count, capped at 200.
func frequencyBoost(count uint64) float64 {
	if count == 0 {
		return 0
	}
	return math.Min(200, 40*math.Log2(1+float64(count)))
}

// recencyBoost decays with a one-week half-life.
func recencyBoost(lastLaunchNS int64, now time.Time) float64 {
	if lastLaunchNS == 0 {
		return 0
	}
	ageDays := float64(now.UnixNano()-lastLaunchNS) / float64(24*time.Hour)
	decay := math.Pow(0.5, ageDays/7)
	if decay > 1 {
		decay = 1
	} else if decay < 0 || math.IsNaN(decay) {
		decay = 0
	}
	return 150 * decay
}
