package pipeline

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokRedacted
	tokQuote
	tokEnd
)

type token struct {
	kind tokenKind
	text string // lower-case word, redaction category, or terminator
}

// sentence is one run of tokens closed by a terminator, or by end of input.
type sentence struct {
	tokens []token
	end    rune // '.', '?', '!' or 0
}

// tokenize splits text into sentences. Words are lower-cased with contractions
// expanded; bracketed redactions such as "[profanity]" stay single tokens.
func tokenize(text string) []sentence {
	var (
		out  []sentence
		cur  sentence
		word strings.Builder
	)
	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		for _, w := range expandContraction(word.String()) {
			cur.tokens = append(cur.tokens, token{kind: tokWord, text: w})
		}
		word.Reset()
	}
	flushSentence := func(end rune) {
		flushWord()
		if len(cur.tokens) > 0 {
			cur.end = end
			out = append(out, cur)
		}
		cur = sentence{}
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '[':
			if j := indexRune(runes[i+1:], ']'); j > 0 {
				flushWord()
				cur.tokens = append(cur.tokens, token{kind: tokRedacted, text: strings.ToLower(string(runes[i+1 : i+1+j]))})
				i += j + 1
				continue
			}
			flushWord()
		case r == '"' || r == '“' || r == '”':
			flushWord()
			cur.tokens = append(cur.tokens, token{kind: tokQuote})
		case r == '.' || r == '?' || r == '!':
			if len(cur.tokens) == 0 && word.Len() == 0 && len(out) > 0 {
				// "!?" and similar runs: a later ? still marks the question.
				if r == '?' {
					out[len(out)-1].end = '?'
				}
				continue
			}
			flushSentence(r)
		case r == '\'' || r == '’':
			if word.Len() > 0 {
				word.WriteRune('\'')
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(unicode.ToLower(r))
		default:
			flushWord()
		}
	}
	flushSentence(0)
	return out
}

func indexRune(rs []rune, target rune) int {
	for i, r := range rs {
		if r == target {
			return i
		}
		if r == '[' {
			return -1
		}
	}
	return -1
}

var irregularContractions = map[string][]string{
	"can't":  {"can", "not"},
	"cannot": {"can", "not"},
	"won't":  {"will", "not"},
	"shan't": {"shall", "not"},
	"ain't":  {"am", "not"},
	"i'm":    {"i", "am"},
	"let's":  {"let", "us"},
}

var contractionSuffixes = []struct {
	suffix string
	word   string
}{
	{"n't", "not"},
	{"'re", "are"},
	{"'ll", "will"},
	{"'ve", "have"},
	{"'d", "would"},
	{"'s", ""}, // "is" or possessive; both are dropped
}

// expandContraction turns "don't" into ["do", "not"]. Words without an
// apostrophe pass through unchanged.
func expandContraction(w string) []string {
	w = strings.TrimRight(w, "'")
	if w == "" {
		return nil
	}
	if parts, ok := irregularContractions[w]; ok {
		return parts
	}
	if !strings.Contains(w, "'") {
		return []string{w}
	}
	for _, c := range contractionSuffixes {
		if stem, ok := strings.CutSuffix(w, c.suffix); ok && stem != "" {
			stem = strings.ReplaceAll(stem, "'", "")
			if c.word == "" {
				return []string{stem}
			}
			return []string{stem, c.word}
		}
	}
	return []string{strings.ReplaceAll(w, "'", "")}
}
