// Package lexicon maps spoken words and phrases to sign glosses for each
// supported sign language.
package lexicon

import (
	"strings"

	"github.com/normanking/signavatar/internal/sign"
)

// LowConfidence is the confidence below which a resolved entry marks the
// translation as uncertain.
const LowConfidence = 0.6

// Entry is one lexicon sign.
type Entry struct {
	Gloss      string         `yaml:"gloss" json:"gloss"`
	Semantic   string         `yaml:"semantic" json:"semantic"`
	Handshape  sign.Handshape `yaml:"handshape" json:"handshape"`
	Location   string         `yaml:"location" json:"location,omitempty"`
	Mouth      string         `yaml:"mouth" json:"mouth,omitempty"`
	Confidence float64        `yaml:"confidence" json:"confidence"`
}

// Uncertain reports whether the entry is below LowConfidence.
func (e Entry) Uncertain() bool {
	return e.Confidence < LowConfidence
}

// Lexicon resolves normalized phrases. Phrases are lower case words joined by
// single spaces.
type Lexicon interface {
	Lookup(phrase string) (Entry, bool)
	// MaxWords is the length in words of the longest phrase.
	MaxWords() int
}

// Table is an in-memory lexicon for one language.
type Table struct {
	lang     sign.Language
	entries  map[string]Entry
	maxWords int
}

// NewTable builds a table from entries. Keys are normalized; a zero
// confidence means fully confident.
func NewTable(lang sign.Language, entries map[string]Entry) *Table {
	t := &Table{lang: lang, entries: make(map[string]Entry, len(entries))}
	t.Merge(entries)
	return t
}

// Language returns the table's sign language.
func (t *Table) Language() sign.Language {
	return t.lang
}

// Lookup implements Lexicon.
func (t *Table) Lookup(phrase string) (Entry, bool) {
	e, ok := t.entries[Normalize(phrase)]
	return e, ok
}

// MaxWords implements Lexicon.
func (t *Table) MaxWords() int {
	return t.maxWords
}

// Len returns the number of phrases.
func (t *Table) Len() int {
	return len(t.entries)
}

// Merge adds entries, replacing existing phrases.
func (t *Table) Merge(entries map[string]Entry) {
	for phrase, e := range entries {
		key := Normalize(phrase)
		if key == "" {
			continue
		}
		if e.Confidence <= 0 {
			e.Confidence = 1
		}
		t.entries[key] = e
		if n := len(strings.Fields(key)); n > t.maxWords {
			t.maxWords = n
		}
	}
}

func (t *Table) clone() *Table {
	c := &Table{lang: t.lang, entries: make(map[string]Entry, len(t.entries)), maxWords: t.maxWords}
	for k, v := range t.entries {
		c.entries[k] = v
	}
	return c
}

// Normalize lower-cases a phrase and collapses whitespace.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Registry holds one table per language.
type Registry struct {
	tables map[sign.Language]*Table
}

// NewRegistry returns a registry seeded with the built-in tables.
func NewRegistry() *Registry {
	r := &Registry{tables: make(map[sign.Language]*Table)}
	for _, lang := range sign.Languages() {
		r.tables[lang] = Builtin(lang)
	}
	return r
}

// For returns the table for lang. Unknown languages get the default language.
func (r *Registry) For(lang sign.Language) *Table {
	if t, ok := r.tables[lang]; ok {
		return t
	}
	return r.tables[sign.DefaultLanguage]
}
