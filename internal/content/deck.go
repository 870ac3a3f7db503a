// Package content parses and serves the markdown copy deck that drives the
// landing page text.
package content

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Entry types.
const (
	TypeText = "text"
	TypeList = "list"
)

// Entry is one "## key" section. Text is set for TypeText, Items for TypeList.
type Entry struct {
	Type  string
	Text  string
	Items []string
}

type entryJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON renders {"type": ..., "value": string | [string]}.
func (e Entry) MarshalJSON() ([]byte, error) {
	var value any = e.Text
	if e.Type == TypeList {
		items := e.Items
		if items == nil {
			items = []string{}
		}
		value = items
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{Type: e.Type, Value: raw})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.Type = in.Type
	switch in.Type {
	case TypeList:
		return json.Unmarshal(in.Value, &e.Items)
	case TypeText:
		return json.Unmarshal(in.Value, &e.Text)
	default:
		return fmt.Errorf("content: unknown entry type %q", in.Type)
	}
}

// Deck maps section keys to entries.
type Deck map[string]Entry

var (
	lineSplit   = regexp.MustCompile(`\r?\n`)
	headingLine = regexp.MustCompile(`^##\s+(.+)$`)
	listMarker  = regexp.MustCompile(`^-+\s*`)
)

// Parse splits markdown into sections. Lines before the first heading are
// ignored and a later heading with the same key replaces the earlier one.
func Parse(markdown string) Deck {
	deck := make(Deck)
	var (
		key    string
		inSec  bool
		buffer []string
	)
	flush := func() {
		if inSec && key != "" {
			deck[key] = interpret(strings.Join(buffer, "\n"))
		}
		key, inSec, buffer = "", false, nil
	}
	for _, line := range lineSplit.Split(markdown, -1) {
		if m := headingLine.FindStringSubmatch(line); m != nil {
			flush()
			key, inSec = strings.TrimSpace(m[1]), true
			continue
		}
		if inSec {
			buffer = append(buffer, line)
		}
	}
	flush()
	return deck
}

func interpret(raw string) Entry {
	body := strings.TrimSpace(raw)
	if body == "" {
		return Entry{Type: TypeText, Text: ""}
	}
	var lines []string
	for _, line := range lineSplit.Split(body, -1) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "- ") {
			return Entry{Type: TypeText, Text: body}
		}
	}
	items := make([]string, len(lines))
	for i, line := range lines {
		items[i] = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
	}
	return Entry{Type: TypeList, Items: items}
}

// Text returns the section as text; lists are joined with a space. fallback
// is returned when the key is missing or empty.
func (d Deck) Text(key, fallback string) string {
	e, ok := d[key]
	if !ok {
		return fallback
	}
	text := e.Text
	if e.Type == TypeList {
		text = strings.Join(e.Items, " ")
	}
	if text == "" {
		return fallback
	}
	return text
}

// List returns the items of a list section, or nil.
func (d Deck) List(key string) []string {
	e, ok := d[key]
	if !ok || e.Type != TypeList {
		return nil
	}
	return e.Items
}

// Pair is a "title | value" list item.
type Pair struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Pairs splits each list item on "|". Every item yields a pair, even an
// empty one, so positions line up with List.
func (d Deck) Pairs(key string) []Pair {
	var out []Pair
	for _, item := range d.List(key) {
		parts := strings.Split(item, "|")
		p := Pair{Title: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			p.Value = strings.TrimSpace(parts[1])
		}
		out = append(out, p)
	}
	return out
}
