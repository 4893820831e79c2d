package search

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	"github.com/xdgtools/desktop-indexer/internal/index"
	"github.com/xdgtools/desktop-indexer/internal/usage"
)

func testIndex(entries ...*desktop.Entry) *index.Index {
	idx := &index.Index{}
	for _, e := range entries {
		idx.Entries = append(idx.Entries, e)
		idx.Haystacks = append(idx.Haystacks, index.Haystack{
			Name:        strings.ToLower(e.Name),
			GenericName: strings.ToLower(e.GenericName),
			ID:          strings.ToLower(e.ID),
			Keywords:    strings.ToLower(strings.Join(e.Keywords, " ")),
			Categories:  strings.ToLower(strings.Join(e.Categories, " ")),
			Comment:     strings.ToLower(e.Comment),
		})
	}
	return idx
}

func entry(id, name string) *desktop.Entry {
	return &desktop.Entry{ID: id, Name: name}
}

func ids(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Entry.ID
	}
	return out
}

var now = time.Unix(1_700_000_000, 0)

func opts(limit int, mode EmptyMode) Options {
	return Options{Limit: limit, EmptyMode: mode, Now: now}
}

func TestSearch_CollisionWinnerRanksFirst(t *testing.T) {
	idx := testIndex(entry("code", "Visual Studio Code"))
	got := Search(idx, "code", nil, opts(5, EmptyModeRecency))
	require.Len(t, got, 1)
	assert.Equal(t, "code", got[0].Entry.ID)
	assert.Equal(t, "Visual Studio Code", got[0].Entry.Name)
}

func TestSearch_NonMatchingEntriesExcluded(t *testing.T) {
	idx := testIndex(
		entry("firefox", "Firefox"),
		entry("chromium", "Chromium"),
	)
	got := Search(idx, "fox", nil, opts(20, EmptyModeRecency))
	require.Len(t, got, 1)
	assert.Equal(t, "firefox", got[0].Entry.ID)
}

func TestSearch_AllTokensMustMatch(t *testing.T) {
	idx := testIndex(
		entry("gedit", "Text Editor"),
		entry("vim", "Vim"),
	)
	got := Search(idx, "text editor", nil, opts(20, EmptyModeRecency))
	require.Len(t, got, 1)
	assert.Equal(t, "gedit", got[0].Entry.ID)

	got = Search(idx, "text vim", nil, opts(20, EmptyModeRecency))
	assert.Empty(t, got, "a token matching no haystack excludes the entry")
}

func TestSearch_FieldWeightOrdering(t *testing.T) {
	idx := testIndex(
		entry("exact", "term"),
		entry("prefix", "terminology"),
		entry("wordpfx", "the term list"),
		&desktop.Entry{ID: "comment-only", Name: "Unrelated", Comment: "a term appears here"},
	)
	got := Search(idx, "term", nil, opts(10, EmptyModeRecency))
	require.Len(t, got, 4)
	assert.Equal(t, []string{"exact", "prefix", "wordpfx", "comment-only"}, ids(got))
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.Greater(t, got[1].Score, got[2].Score)
	assert.Greater(t, got[2].Score, got[3].Score)
}

func TestSearch_WordPrefixInsidePunctuatedName(t *testing.T) {
	idx := testIndex(entry("zen", "Zen-Browser (beta)"))
	got := Search(idx, "browser", nil, opts(10, EmptyModeRecency))
	require.Len(t, got, 1, "punctuation delimits words")
}

func TestSearch_KeywordExactBeatsCommentSubstring(t *testing.T) {
	kw := &desktop.Entry{ID: "a", Name: "Alpha", Keywords: []string{"editor"}}
	cm := &desktop.Entry{ID: "b", Name: "Beta", Comment: "not an editor at all"}
	idx := testIndex(kw, cm)

	got := Search(idx, "editor", nil, opts(10, EmptyModeRecency))
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Entry.ID)
}

func TestSearch_FrequencyBoostNeverLowersEqualBase(t *testing.T) {
	idx := testIndex(
		entry("aaa", "Thing One"),
		entry("bbb", "Thing Two"),
	)
	snap := map[string]usage.Record{
		"bbb": {Count: 10, LastLaunchNS: now.UnixNano()},
	}
	got := Search(idx, "thing", snap, opts(10, EmptyModeRecency))
	require.Len(t, got, 2)
	assert.Equal(t, "bbb", got[0].Entry.ID, "usage boosts reorder equal base scores")
}

func TestSearch_BoostCannotOutrankStrongerBase(t *testing.T) {
	// Max combined boost is 350; the name-exact vs comment-prefix gap is
	// far larger, so a weak match cannot climb above a strong one.
	strong := entry("strong", "term")
	weak := &desktop.Entry{ID: "weak", Name: "Unrelated", Comment: "term"}
	idx := testIndex(strong, weak)

	snap := map[string]usage.Record{
		"weak": {Count: 100000, LastLaunchNS: now.UnixNano()},
	}
	got := Search(idx, "term", snap, opts(10, EmptyModeRecency))
	require.Len(t, got, 2)
	assert.Equal(t, "strong", got[0].Entry.ID)
}

func TestSearch_TieBreakByNameThenID(t *testing.T) {
	idx := testIndex(
		entry("zz", "Same"),
		entry("aa", "Same"),
		entry("mm", "Another same"),
	)
	got := Search(idx, "same", nil, opts(10, EmptyModeRecency))
	require.Len(t, got, 3)
	// "Another same" scores word-prefix (400) vs exact (1000) for the others.
	assert.Equal(t, []string{"aa", "zz", "mm"}, ids(got))
}

func TestSearch_LimitTruncatesAfterSorting(t *testing.T) {
	idx := testIndex(
		entry("a", "App A"),
		entry("b", "App B"),
		entry("c", "App C"),
	)
	got := Search(idx, "app", nil, opts(2, EmptyModeRecency))
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestSearch_NoDisplaySuppressedUnlessExactID(t *testing.T) {
	hidden := &desktop.Entry{ID: "im-helper", Name: "Helper", NoDisplay: true}
	idx := testIndex(hidden)

	got := Search(idx, "helper", nil, opts(10, EmptyModeRecency))
	assert.Empty(t, got, "NoDisplay entries are suppressed for ordinary queries")

	got = Search(idx, "im-helper", nil, opts(10, EmptyModeRecency))
	require.Len(t, got, 1, "an exact desktop-id query reveals the entry")
}

func TestSearch_EmptyQueryRecency(t *testing.T) {
	idx := testIndex(
		entry("code", "Visual Studio Code"),
		entry("firefox", "Firefox"),
		entry("gimp", "GIMP"),
	)
	snap := map[string]usage.Record{
		"code": {Count: 1, LastLaunchNS: now.UnixNano()},
	}
	got := Search(idx, "", snap, opts(1, EmptyModeRecency))
	require.Len(t, got, 1)
	assert.Equal(t, "code", got[0].Entry.ID)
}

func TestSearch_EmptyQueryRecencyUnusedSortLastByName(t *testing.T) {
	idx := testIndex(
		entry("zzz", "Aardvark"),
		entry("aaa", "Zebra"),
		entry("used", "Middling"),
	)
	snap := map[string]usage.Record{
		"used": {Count: 1, LastLaunchNS: now.UnixNano()},
	}
	got := Search(idx, "", snap, opts(10, EmptyModeRecency))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"used", "zzz", "aaa"}, ids(got),
		"entries with no record sort last, broken by name")
}

func TestSearch_EmptyQueryFrequency(t *testing.T) {
	idx := testIndex(
		entry("code", "Visual Studio Code"),
		entry("chromium", "Chromium"),
		entry("gimp", "GIMP"),
	)
	thirtyDaysAgo := now.Add(-30 * 24 * time.Hour).UnixNano()
	snap := map[string]usage.Record{
		"code":     {Count: 20, LastLaunchNS: thirtyDaysAgo},
		"chromium": {Count: 1, LastLaunchNS: now.UnixNano()},
	}
	got := Search(idx, "", snap, opts(2, EmptyModeFrequency))
	require.Len(t, got, 2)
	assert.Equal(t, []string{"code", "chromium"}, ids(got))
}

func TestSearch_EmptyQuerySuppressesNoDisplay(t *testing.T) {
	idx := testIndex(
		entry("app", "App"),
		&desktop.Entry{ID: "helper", Name: "Helper", NoDisplay: true},
	)
	got := Search(idx, "", nil, opts(10, EmptyModeRecency))
	require.Len(t, got, 1)
	assert.Equal(t, "app", got[0].Entry.ID)
}

func TestList_SortedByNameThenID(t *testing.T) {
	idx := testIndex(
		entry("bb", "zeta"),
		entry("aa", "Alpha"),
		entry("cc", "Alpha"),
		&desktop.Entry{ID: "nd", Name: "AAA", NoDisplay: true},
	)
	got := List(idx)
	require.Len(t, got, 3)
	assert.Equal(t, "aa", got[0].ID)
	assert.Equal(t, "cc", got[1].ID)
	assert.Equal(t, "bb", got[2].ID)
}

func TestFilter_RefinementIsMonotone(t *testing.T) {
	idx := testIndex(
		entry("vim", "Vim"),
		entry("vlc", "VLC media player"),
		entry("code", "Visual Studio Code"),
	)
	broad := Filter(idx, Tokenize("v"), nil)
	require.Len(t, broad, 3)

	narrow := Filter(idx, Tokenize("vi"), broad)
	narrowFull := Filter(idx, Tokenize("vi"), nil)
	assert.Equal(t, narrowFull, narrow,
		"filtering the previous candidates equals a full scan for refined queries")
}

func TestParseEmptyMode(t *testing.T) {
	mode, err := ParseEmptyMode("")
	require.NoError(t, err)
	assert.Equal(t, EmptyModeRecency, mode)

	mode, err = ParseEmptyMode("frequency")
	require.NoError(t, err)
	assert.Equal(t, EmptyModeFrequency, mode)

	_, err = ParseEmptyMode("alphabetical")
	assert.Error(t, err)
}

func TestRecencyBoost_DecaysWithHalfLife(t *testing.T) {
	fresh := recencyBoost(now.UnixNano(), now)
	weekOld := recencyBoost(now.Add(-7*24*time.Hour).UnixNano(), now)
	monthOld := recencyBoost(now.Add(-28*24*time.Hour).UnixNano(), now)

	assert.InDelta(t, 150, fresh, 0.01)
	assert.InDelta(t, 75, weekOld, 0.01)
	assert.Greater(t, weekOld, monthOld)
	assert.Zero(t, recencyBoost(0, now), "no record, no boost")
}

func TestFrequencyBoost_CappedAt200(t *testing.T) {
	assert.Zero(t, frequencyBoost(0))
	assert.InDelta(t, 40, frequencyBoost(1), 0.01)
	assert.Equal(t, 200.0, frequencyBoost(1_000_000))
	assert.LessOrEqual(t, frequencyBoost(31), 200.0)
}
