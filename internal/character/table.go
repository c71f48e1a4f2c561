package character

import (
	"sort"
	"strings"
)

// Entry is a character with a real name and, optionally, a portrait.
type Entry struct {
	Alias       string `yaml:"-"`
	DisplayName string `yaml:"name"`
	ImageURL    string `yaml:"image,omitempty"`
}

// Table is the read-only character lookup. It is built once at startup and
// never mutated, so it is safe to share between requests.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a Table keyed by lowercase alias. Later entries with the
// same alias replace earlier ones.
func NewTable(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Alias))
		if key == "" {
			continue
		}
		e.Alias = key
		t.entries[key] = e
	}
	return t
}

// Lookup returns the entry for alias, ignoring case.
func (t *Table) Lookup(alias string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[strings.ToLower(alias)]
	return e, ok
}

// Name resolves alias to its display name, falling back to the alias itself.
func (t *Table) Name(alias string) string {
	if e, ok := t.Lookup(alias); ok && e.DisplayName != "" {
		return e.DisplayName
	}
	return alias
}

// Image resolves alias to its portrait URL. ok is false when the alias is
// unknown or the character has no image.
func (t *Table) Image(alias string) (string, bool) {
	e, ok := t.Lookup(alias)
	if !ok || e.ImageURL == "" {
		return "", false
	}
	return e.ImageURL, true
}

// Len returns the number of characters in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Aliases returns all aliases in sorted order.
func (t *Table) Aliases() []string {
	if t == nil {
		return nil
	}
	aliases := make([]string, 0, len(t.entries))
	for alias := range t.entries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
