package safety

import (
	"fmt"
	"sync"
)

// Severity grades a safety event.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityBlock Severity = "block"
)

// Event is one safety notice raised while evaluating an utterance.
type Event struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Count    int      `json:"count"` // evaluations mentioning Category this session
}

// Verdict is the outcome of evaluating one utterance.
type Verdict struct {
	Block  bool
	Events []Event
}

// Gate holds the escalation counters of one session. Create one per session
// with NewGate and drop it when the session ends.
type Gate struct {
	policy *Policy

	mu      sync.Mutex
	counts  map[Category]int
	blocked map[Category]bool
}

// NewGate returns a gate with zeroed counters. A nil policy uses DefaultPolicy.
func NewGate(policy *Policy) *Gate {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Gate{
		policy:  policy,
		counts:  make(map[Category]int),
		blocked: make(map[Category]bool),
	}
}

// Evaluate scans text and escalates per category. Each evaluation that
// mentions a category counts once, however many times it appears. The first
// occurrence of a category warns; once a category reaches the threshold it
// blocks, and stays blocked until Reset.
func (g *Gate) Evaluate(text string) Verdict {
	var v Verdict
	if text == "" {
		return v
	}

	found := g.policy.occurrences(text)
	if len(found) == 0 {
		return v
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range found {
		prev := g.counts[f.category]
		n := prev + 1
		g.counts[f.category] = n

		switch {
		case g.blocked[f.category] || n >= g.policy.threshold:
			g.blocked[f.category] = true
			v.Block = true
			v.Events = append(v.Events, Event{
				Message:  fmt.Sprintf("Blocked: repeated %s (%d this session)", f.category.Label(), n),
				Severity: SeverityBlock,
				Category: f.category,
				Count:    n,
			})
		case prev == 0:
			v.Events = append(v.Events, Event{
				Message:  fmt.Sprintf("Warning: %s detected", f.category.Label()),
				Severity: SeverityWarn,
				Category: f.category,
				Count:    n,
			})
		default:
			v.Events = append(v.Events, Event{
				Message:  fmt.Sprintf("Warning: %s detected again (%d of %d)", f.category.Label(), n, g.policy.threshold),
				Severity: SeverityWarn,
				Category: f.category,
				Count:    n,
			})
		}
	}
	return v
}

// Check reports whether text mentions a category that has already latched,
// without counting anything. Use it for provisional text that will be
// evaluated again once final.
func (g *Gate) Check(text string) bool {
	found := g.policy.occurrences(text)
	if len(found) == 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range found {
		if g.blocked[f.category] {
			return true
		}
	}
	return false
}

// Reset clears all counters and block latches.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.counts)
	clear(g.blocked)
}

// Counts returns a copy of the session counters.
func (g *Gate) Counts() map[Category]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[Category]int, len(g.counts))
	for c, n := range g.counts {
		out[c] = n
	}
	return out
}

// Blocked reports whether c has latched.
func (g *Gate) Blocked(c Category) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked[c]
}

// Policy returns the policy the gate evaluates against.
func (g *Gate) Policy() *Policy {
	return g.policy
}
