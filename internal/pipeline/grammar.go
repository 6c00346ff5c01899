package pipeline

import "github.com/normanking/signavatar/internal/sign"

// grammar holds the ordering rules that differ between sign languages.
type grammar struct {
	whFinal  bool // wh-signs move to the end of a question
	negFinal bool // negation moves to the end of a clause
	// twoHandedAlphabet marks manual alphabets that use both hands.
	twoHandedAlphabet bool
}

var grammars = map[sign.Language]grammar{
	sign.ASL: {whFinal: true},
	sign.BSL: {whFinal: true, negFinal: true, twoHandedAlphabet: true},
	sign.ISL: {whFinal: true},
}

func grammarFor(lang sign.Language) grammar {
	if g, ok := grammars[lang]; ok {
		return g
	}
	return grammars[sign.DefaultLanguage]
}

// Function words with no sign of their own.
var dropWords = set(
	"a", "an", "the",
	"is", "am", "are", "was", "were", "be", "been", "being",
	"do", "does", "did",
	"to", "of", "would", "shall", "have", "has", "had",
)

var whWords = set("what", "where", "who", "whom", "when", "why", "how", "which")

var negationWords = set("not", "no", "never", "nothing", "nobody", "none", "neither")

var affirmationWords = set("yes", "yeah", "yep")

var timeWords = set("today", "tomorrow", "yesterday", "now", "tonight", "later", "soon")

// Pronouns that can introduce quoted speech.
var speakerWords = set("i", "me", "you", "he", "she", "we", "they")

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
