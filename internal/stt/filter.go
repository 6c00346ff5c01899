package stt

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DefaultFillerWords are hesitations with no sign equivalent. Words that
// double as content ("like", "well", "right") are deliberately absent.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm",
	"er", "erm", "ah", "hmm", "mm",
	"you know", "i mean",
}

var (
	spacePattern = regexp.MustCompile(`\s+`)
	punctPattern = regexp.MustCompile(`^[.,!?;:\s]+$`)
	strayPunct   = regexp.MustCompile(`\s+([,;:.!?])`)
	repeatPunct  = regexp.MustCompile(`([,;:])(?:\s*[,;:])+`)
)

// Filter removes filler words from transcripts before they are gated.
type Filter struct {
	mu          sync.RWMutex
	fillerWords map[string]struct{}
	pattern     *regexp.Regexp
}

// NewFilter creates a filter for fillerWords; nil selects DefaultFillerWords.
func NewFilter(fillerWords []string) *Filter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}
	f := &Filter{fillerWords: make(map[string]struct{}, len(fillerWords))}
	for _, word := range fillerWords {
		f.fillerWords[strings.ToLower(word)] = struct{}{}
	}
	f.buildPattern()
	return f
}

func (f *Filter) buildPattern() {
	if len(f.fillerWords) == 0 {
		f.pattern = nil
		return
	}
	words := make([]string, 0, len(f.fillerWords))
	for word := range f.fillerWords {
		words = append(words, regexp.QuoteMeta(word))
	}
	// longest first so "umm" wins over "um"
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	f.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, `|`) + `)\b`)
}

// AddFillerWord adds a word to the filler list. Blank words are ignored.
func (f *Filter) AddFillerWord(word string) {
	word = strings.TrimSpace(word)
	if word == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fillerWords[strings.ToLower(word)] = struct{}{}
	f.buildPattern()
}

// FillerWords returns the current list, sorted.
func (f *Filter) FillerWords() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	words := make([]string, 0, len(f.fillerWords))
	for word := range f.fillerWords {
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}

// Clean removes filler words and normalizes whitespace. ok is false when
// nothing meaningful remains.
func (f *Filter) Clean(text string) (cleaned string, ok bool) {
	if text == "" {
		return "", false
	}

	f.mu.RLock()
	pattern := f.pattern
	f.mu.RUnlock()

	cleaned = text
	if pattern != nil {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strayPunct.ReplaceAllString(cleaned, "$1")
	cleaned = repeatPunct.ReplaceAllString(cleaned, "$1")
	cleaned = strings.TrimSpace(strings.TrimLeft(cleaned, ",;: "))

	if punctPattern.MatchString(cleaned) {
		cleaned = ""
	}
	return cleaned, cleaned != ""
}

// FilterEvent cleans evt in place and reports whether it should be kept.
func (f *Filter) FilterEvent(evt *RecognitionEvent) bool {
	if evt == nil {
		return false
	}
	cleaned, ok := f.Clean(evt.Text)
	evt.Text = cleaned
	return ok
}
