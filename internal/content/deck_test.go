package content

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseList(t *testing.T) {
	deck := Parse("## title\n- a\n- b\n")
	assert.Equal(t, Deck{"title": {Type: TypeList, Items: []string{"a", "b"}}}, deck)
}

func TestParseText(t *testing.T) {
	deck := Parse("## title\nhello\n")
	assert.Equal(t, Deck{"title": {Type: TypeText, Text: "hello"}}, deck)
}

func TestParseMixed(t *testing.T) {
	md := strings.Join([]string{
		"# AssiWorks Opening",
		"ignored preface",
		"##  hero-title  ",
		"  AssiWorks Opening  ",
		"",
		"## session-details",
		"- 일시 | 2026.03.03 14:00",
		"",
		"-   장소 | 광화문",
		"## empty",
		"",
		"## mixed",
		"- one",
		"two",
		"###not-a-heading",
	}, "\r\n")
	deck := Parse(md)

	require.Len(t, deck, 4)
	assert.Equal(t, Entry{Type: TypeText, Text: "AssiWorks Opening"}, deck["hero-title"])
	assert.Equal(t, Entry{Type: TypeList, Items: []string{"일시 | 2026.03.03 14:00", "장소 | 광화문"}}, deck["session-details"])
	assert.Equal(t, Entry{Type: TypeText, Text: ""}, deck["empty"])
	assert.Equal(t, TypeText, deck["mixed"].Type)
	assert.Equal(t, "- one\ntwo\n###not-a-heading", deck["mixed"].Text)
}

func TestParseIgnoresLinesBeforeFirstHeading(t *testing.T) {
	assert.Empty(t, Parse("hello\n- a\n"))
	assert.Empty(t, Parse(""))
}

func TestDeckHelpers(t *testing.T) {
	deck := Parse("## intro\nWelcome\n## tags\n- a\n- b\n## details\n- Date | March 3\n- Place\n- |\n")

	assert.Equal(t, "Welcome", deck.Text("intro", "x"))
	assert.Equal(t, "a b", deck.Text("tags", "x"))
	assert.Equal(t, "fallback", deck.Text("missing", "fallback"))
	assert.Equal(t, []string{"a", "b"}, deck.List("tags"))
	assert.Nil(t, deck.List("intro"))
	assert.Equal(t, []Pair{{Title: "Date", Value: "March 3"}, {Title: "Place"}, {}}, deck.Pairs("details"))
}

func TestPairsKeepsEveryItem(t *testing.T) {
	deck := Deck{"details": {Type: TypeList, Items: []string{"|", "", "a | b | c"}}}
	pairs := deck.Pairs("details")
	require.Len(t, pairs, 3)
	assert.Equal(t, Pair{}, pairs[0])
	assert.Equal(t, Pair{}, pairs[1])
	assert.Equal(t, Pair{Title: "a", Value: "b"}, pairs[2])
	assert.Nil(t, deck.Pairs("missing"))
}

func TestEntryJSON(t *testing.T) {
	deck := Parse("## a\n- x\n## b\nhi\n")
	raw, err := json.Marshal(deck)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"type":"list","value":["x"]},"b":{"type":"text","value":"hi"}}`, string(raw))

	var back Deck
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, deck, back)
}

func TestParseListProperty(t *testing.T) {
	item := rapid.StringMatching(`[a-z가-힣][a-z가-힣 |]{0,10}[a-z가-힣]`)
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-z][a-z-]{0,8}`).Draw(t, "key")
		items := rapid.SliceOfN(item, 1, 8).Draw(t, "items")
		var b strings.Builder
		b.WriteString("## " + key + "\n")
		for _, it := range items {
			b.WriteString("- " + it + "\n")
		}
		deck := Parse(b.String())
		got := deck.List(key)
		if len(got) != len(items) {
			t.Fatalf("got %d items, want %d", len(got), len(items))
		}
		for i := range items {
			if got[i] != items[i] {
				t.Fatalf("item %d: got %q want %q", i, got[i], items[i])
			}
		}
	})
}
