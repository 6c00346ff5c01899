// Package safety masks and gates unsafe transcript text before it is translated.
package safety

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Category names a class of disallowed content.
type Category string

const (
	CategoryProfanity    Category = "profanity"
	CategoryViolence     Category = "violence"
	CategorySelfHarm     Category = "self_harm"
	CategoryPersonalInfo Category = "personal_info"
)

// Label is the human readable category name used in notices.
func (c Category) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// Placeholder is the redaction token that replaces masked content.
func (c Category) Placeholder() string {
	return "[" + string(c) + "]"
}

// DefaultThreshold is the session occurrence count at which a category blocks.
const DefaultThreshold = 3

// defaultPatterns is the built-in taxonomy. Order matters: at one position the
// earlier category wins, so specific phrases precede generic ones.
var defaultPatterns = []struct {
	category Category
	patterns []string
}{
	{CategorySelfHarm, []string{
		`kill(?:ing)? myself`, `end(?:ing)? my life`, `hurt(?:ing)? myself`, `suicid\w*`, `self[- ]harm\w*`,
	}},
	{CategoryViolence, []string{
		`(?:kill|shoot|stab|strangle)(?:ing)? (?:you|him|her|them|everyone|somebody)`,
		`murder\w*`, `bomb(?:s|ing|ed)?`,
	}},
	{CategoryProfanity, []string{
		`fuck\w*`, `shit\w*`, `bitch\w*`, `bastards?`, `assholes?`, `damn(?:ed|it)?`, `crap(?:py)?`,
	}},
	{CategoryPersonalInfo, []string{
		`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`,
		`\d{1,3}[ .-]\d{2,4}[ .-]\d{3,4}[ .-]\d{3,4}`,
		`\d{3}[ .-]?\d{3}[ .-]?\d{4}`,
		`\d{7,}`,
	}},
}

// Policy is an immutable set of category rules plus the escalation threshold.
// It is safe for concurrent use; per-session state lives in Gate.
//
// All rules compile into one alternation that also matches existing
// placeholders, so a single left-to-right scan both masks and counts, and
// already-masked spans are never rewritten.
type Policy struct {
	re         *regexp.Regexp
	groups     []Category // submatch index -> rule category, "" otherwise
	phGroup    int        // submatch index of the placeholder alternative
	known      map[string]Category
	categories []Category
	threshold  int
}

// PolicyConfig customizes a Policy. Zero values select the defaults.
type PolicyConfig struct {
	Threshold int
	// Categories restricts the enabled categories; empty enables all.
	Categories []string
	// ExtraTerms adds literal terms per category. Unknown category names
	// create new categories.
	ExtraTerms map[string][]string
}

// NewPolicy compiles a policy from cfg.
func NewPolicy(cfg PolicyConfig) *Policy {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	enabled := make(map[Category]bool, len(cfg.Categories))
	for _, c := range cfg.Categories {
		enabled[Category(strings.ToLower(strings.TrimSpace(c)))] = true
	}

	terms := make(map[Category][]string)
	var order []Category
	for _, d := range defaultPatterns {
		order = append(order, d.category)
		terms[d.category] = append(terms[d.category], d.patterns...)
	}

	extraNames := make([]string, 0, len(cfg.ExtraTerms))
	for name := range cfg.ExtraTerms {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		c := Category(strings.ToLower(strings.TrimSpace(name)))
		if c == "" {
			continue
		}
		if _, ok := terms[c]; !ok {
			order = append(order, c)
		}
		for _, term := range cfg.ExtraTerms[name] {
			if term = strings.TrimSpace(term); term != "" {
				terms[c] = append(terms[c], regexp.QuoteMeta(term))
			}
		}
	}

	p := &Policy{threshold: threshold, known: make(map[string]Category)}
	var names, alts []string
	for _, c := range order {
		if (len(enabled) > 0 && !enabled[c]) || len(terms[c]) == 0 {
			continue
		}
		alts = append(alts, fmt.Sprintf(`(?P<r%d>%s)`, len(p.categories), strings.Join(terms[c], `|`)))
		names = append(names, regexp.QuoteMeta(string(c)))
		p.known[string(c)] = c
		p.categories = append(p.categories, c)
	}
	if len(alts) == 0 {
		return p
	}

	p.re = regexp.MustCompile(`(?i)(?P<ph>\[(?:` + strings.Join(names, `|`) + `)\])|\b(?:` + strings.Join(alts, `|`) + `)\b`)
	p.groups = make([]Category, p.re.NumSubexp()+1)
	for i, name := range p.re.SubexpNames() {
		switch {
		case name == "ph":
			p.phGroup = i
		case strings.HasPrefix(name, "r"):
			var idx int
			if _, err := fmt.Sscanf(name, "r%d", &idx); err == nil {
				p.groups[i] = p.categories[idx]
			}
		}
	}
	return p
}

var defaultPolicy = sync.OnceValue(func() *Policy {
	return NewPolicy(PolicyConfig{})
})

// DefaultPolicy returns the shared built-in policy.
func DefaultPolicy() *Policy {
	return defaultPolicy()
}

// Threshold returns the block threshold.
func (p *Policy) Threshold() int {
	return p.threshold
}

// Categories lists the enabled categories in evaluation order.
func (p *Policy) Categories() []Category {
	return append([]Category(nil), p.categories...)
}

type match struct {
	start, end  int
	category    Category
	placeholder bool
}

func (p *Policy) scan(text string) []match {
	if p.re == nil || text == "" {
		return nil
	}
	var out []match
	for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
		if p.phGroup > 0 && m[2*p.phGroup] >= 0 {
			inner := strings.ToLower(text[m[0]+1 : m[1]-1])
			out = append(out, match{start: m[0], end: m[1], category: p.known[inner], placeholder: true})
			continue
		}
		for g := 1; g < len(p.groups); g++ {
			if p.groups[g] != "" && m[2*g] >= 0 {
				out = append(out, match{start: m[0], end: m[1], category: p.groups[g]})
				break
			}
		}
	}
	return out
}

// Mask replaces every disallowed substring with its category placeholder.
// Existing placeholders are left alone, so masking is idempotent.
func (p *Policy) Mask(text string) string {
	matches := p.scan(text)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.start])
		if m.placeholder {
			b.WriteString(text[m.start:m.end])
		} else {
			b.WriteString(m.category.Placeholder())
		}
		last = m.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// occurrences counts raw matches and placeholders per category, in rule order.
func (p *Policy) occurrences(text string) []categoryCount {
	counts := make(map[Category]int)
	for _, m := range p.scan(text) {
		counts[m.category]++
	}
	var out []categoryCount
	for _, c := range p.categories {
		if n := counts[c]; n > 0 {
			out = append(out, categoryCount{category: c, n: n})
		}
	}
	return out
}

type categoryCount struct {
	category Category
	n        int
}

// ApplyMasking masks text with the built-in policy. It is pure and idempotent:
// ApplyMasking(ApplyMasking(s)) == ApplyMasking(s).
func ApplyMasking(text string) string {
	return DefaultPolicy().Mask(text)
}
