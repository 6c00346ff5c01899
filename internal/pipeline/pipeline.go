// Package pipeline turns gated utterance text into a time-contiguous sequence
// of sign frames.
package pipeline

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/normanking/signavatar/internal/lexicon"
	"github.com/normanking/signavatar/internal/sign"
)

// Timing estimates in milliseconds at the low latency profile.
const (
	lexicalBaseMs    = 450
	lexicalPerCharMs = 15
	lexicalMaxMs     = 700
	letterMs         = 120
	fingerspellMinMs = 300
	redactedMs       = 400
	sentenceHoldMs   = 150 // added to the last sign of each sentence
)

// Glosses and semantics of synthesized signs.
const (
	MaskedGloss    = "MASKED"
	MaskedSemantic = "masked"
	FingerspellTag = "fingerspell"
)

var latencyScale = map[sign.Latency]float64{
	sign.LatencyLow: 1.0,
}

var builtinLexicons = sync.OnceValue(lexicon.NewRegistry)

// Options configures one translation.
type Options struct {
	SignLang sign.Language
	Latency  sign.Latency
	// Lexicon overrides the built-in table for SignLang.
	Lexicon lexicon.Lexicon
}

// Result is a translated utterance.
type Result struct {
	Frames []sign.Frame `json:"frames"`
	// Uncertain is set when any sign was fingerspelled or came from a
	// low-confidence lexicon entry.
	Uncertain bool `json:"uncertain"`
}

// Glosses lists the frame glosses in order.
func (r Result) Glosses() []string {
	out := make([]string, len(r.Frames))
	for i, f := range r.Frames {
		out[i] = f.Gloss
	}
	return out
}

// DurationMs is the end of the last frame.
func (r Result) DurationMs() int {
	if len(r.Frames) == 0 {
		return 0
	}
	return r.Frames[len(r.Frames)-1].EndMs
}

type unitKind int

const (
	unitLexical unitKind = iota
	unitFingerspell
	unitRedacted
)

type unit struct {
	kind      unitKind
	words     []string
	entry     lexicon.Entry
	quoted    bool
	roleShift string

	wh, neg, yes, time bool
}

// state carries quote context across sentence boundaries.
type state struct {
	inQuote  bool
	referent string // last pronoun or name outside quotes
	speaker  string
}

// ProcessUtteranceStream translates text into sign frames. It is deterministic
// and never fails: unknown words are fingerspelled, an unknown sign language
// falls back to ASL, and empty text yields no frames.
func ProcessUtteranceStream(text string, opts Options) Result {
	lang, _ := sign.ParseLanguage(string(opts.SignLang))
	lex := opts.Lexicon
	if lex == nil {
		lex = builtinLexicons().For(lang)
	}
	g := grammarFor(lang)
	scale, ok := latencyScale[opts.Latency]
	if !ok {
		scale = latencyScale[sign.DefaultLatency]
	}

	var (
		res    = Result{Frames: []sign.Frame{}}
		st     state
		cursor int
	)
	for _, s := range tokenize(text) {
		units := segment(s, lex, &st)
		if len(units) == 0 {
			continue
		}
		units = reorder(units, g, s.end == '?')
		face := sentenceNMM(units, s.end)

		for i, u := range units {
			d := u.durationMs()
			if i == len(units)-1 {
				d += sentenceHoldMs
			}
			d = max(1, int(math.Round(float64(d)*scale)))

			f := u.frame(g, face)
			f.StartMs = cursor
			f.EndMs = cursor + d
			cursor = f.EndMs
			res.Frames = append(res.Frames, f)

			if u.kind == unitFingerspell || (u.kind == unitLexical && u.entry.Uncertain()) {
				res.Uncertain = true
			}
		}
	}
	return res
}

// segment resolves one sentence into units. Quote marks toggle role shift.
func segment(s sentence, lex lexicon.Lexicon, st *state) []unit {
	var units []unit
	toks := s.tokens
	for i := 0; i < len(toks); {
		switch toks[i].kind {
		case tokQuote:
			st.inQuote = !st.inQuote
			if st.inQuote {
				st.speaker = st.referent
				if st.speaker == "" {
					st.speaker = "quoted"
				}
			}
			i++
		case tokRedacted:
			units = append(units, st.mark(unit{kind: unitRedacted, words: []string{toks[i].text}}))
			i++
		default:
			j := i
			var words []string
			for j < len(toks) && toks[j].kind == tokWord {
				words = append(words, toks[j].text)
				j++
			}
			for _, u := range matchWords(words, lex) {
				units = append(units, st.mark(u))
			}
			i = j
		}
	}
	return units
}

// mark applies quote context to u and tracks potential speakers.
func (st *state) mark(u unit) unit {
	if st.inQuote {
		u.quoted = true
		u.roleShift = st.speaker
		return u
	}
	switch {
	case u.kind == unitLexical && len(u.words) == 1 && speakerWords[u.words[0]]:
		st.referent = u.entry.Gloss
	case u.kind == unitFingerspell:
		st.referent = letters(u.words[0])
	}
	return u
}

// matchWords greedily matches the longest lexicon phrase at each position.
func matchWords(words []string, lex lexicon.Lexicon) []unit {
	maxWords := max(1, lex.MaxWords())
	var units []unit
	for i := 0; i < len(words); {
		matched := false
		for n := min(maxWords, len(words)-i); n >= 1; n-- {
			e, ok := lex.Lookup(strings.Join(words[i:i+n], " "))
			if !ok {
				continue
			}
			u := unit{kind: unitLexical, words: words[i : i+n], entry: e}
			u.classify()
			if strings.HasPrefix(e.Semantic, "time-") {
				u.time = true
			}
			units = append(units, u)
			i += n
			matched = true
			break
		}
		if matched {
			continue
		}

		w := words[i]
		i++
		if dropWords[w] || letters(w) == "" {
			continue
		}
		u := unit{kind: unitFingerspell, words: []string{w}}
		u.classify()
		units = append(units, u)
	}
	return units
}

func (u *unit) classify() {
	w := u.words[0]
	u.wh = whWords[w]
	if len(u.words) > 1 {
		return
	}
	u.neg = negationWords[w]
	u.yes = affirmationWords[w]
	u.time = timeWords[w]
}

// reorder fronts time signs, and per grammar moves negation and wh-signs to
// the end. Quoted units keep their position.
func reorder(units []unit, g grammar, question bool) []unit {
	rank := func(u unit) int {
		switch {
		case u.quoted:
			return 1
		case u.time:
			return 0
		case u.wh && question && g.whFinal:
			return 3
		case u.neg && g.negFinal:
			return 2
		}
		return 1
	}
	sort.SliceStable(units, func(i, j int) bool {
		return rank(units[i]) < rank(units[j])
	})
	return units
}

// sentenceNMM derives the markers shared by every sign of a sentence.
func sentenceNMM(units []unit, end rune) sign.NMM {
	face := sign.NeutralNMM()
	var wh, neg, yes bool
	for _, u := range units {
		wh = wh || u.wh
		neg = neg || u.neg
		yes = yes || u.yes
	}
	if end == '?' {
		if wh {
			face.Brows = sign.BrowsFurrowed
		} else {
			face.Brows = sign.BrowsRaised
		}
	}
	switch {
	case neg:
		face.Head = sign.HeadShake
	case yes:
		face.Head = sign.HeadNod
	}
	return face
}

func (u unit) durationMs() int {
	switch u.kind {
	case unitFingerspell:
		return max(fingerspellMinMs, letterMs*len([]rune(letters(u.words[0]))))
	case unitRedacted:
		return redactedMs
	}
	return min(lexicalMaxMs, lexicalBaseMs+lexicalPerCharMs*len(u.entry.Gloss))
}

func (u unit) frame(g grammar, face sign.NMM) sign.Frame {
	f := sign.Frame{NMM: face, RoleShift: u.roleShift}
	if u.quoted {
		f.NMM.Head = sign.HeadTilt
	}

	switch u.kind {
	case unitLexical:
		f.Gloss = u.entry.Gloss
		f.Semantic = u.entry.Semantic
		f.Handshape = u.entry.Handshape
		f.Location = u.entry.Location
		f.NMM.Mouth = u.entry.Mouth
	case unitFingerspell:
		word := letters(u.words[0])
		spelled := make([]string, 0, len(word))
		for _, r := range word {
			spelled = append(spelled, string(r))
		}
		f.Gloss = "fs-" + word
		f.Semantic = FingerspellTag
		f.Fingerspell = strings.Join(spelled, "-")
		f.Handshape.Right = spelled[0]
		if g.twoHandedAlphabet {
			f.Handshape.Left = "Flat-B"
		}
	case unitRedacted:
		f.Gloss = MaskedGloss
		f.Semantic = MaskedSemantic
		if c := strings.TrimSpace(u.words[0]); c != "" {
			f.Semantic += "-" + strings.ReplaceAll(c, " ", "_")
		}
	}
	return f
}

// letters upper-cases the letters and digits of w.
func letters(w string) string {
	var b strings.Builder
	for _, r := range w {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
