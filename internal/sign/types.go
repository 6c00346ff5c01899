// Package sign defines the shared vocabulary of the sign avatar: languages,
// timed sign frames and their non-manual markers.
package sign

import "strings"

// Language identifies a sign language variant.
type Language string

const (
	ASL Language = "ASL" // American Sign Language
	BSL Language = "BSL" // British Sign Language
	ISL Language = "ISL" // Irish Sign Language

	DefaultLanguage = ASL
)

// Languages lists every supported variant in display order.
func Languages() []Language {
	return []Language{ASL, BSL, ISL}
}

// ParseLanguage matches s case-insensitively. ok is false for unknown values.
func ParseLanguage(s string) (Language, bool) {
	l := Language(strings.ToUpper(strings.TrimSpace(s)))
	switch l {
	case ASL, BSL, ISL:
		return l, true
	}
	return DefaultLanguage, false
}

// Latency selects the timing profile used to size sign windows.
type Latency string

const (
	LatencyLow Latency = "low"

	DefaultLatency = LatencyLow
)

// ParseLatency matches s case-insensitively. ok is false for unknown values.
func ParseLatency(s string) (Latency, bool) {
	if Latency(strings.ToLower(strings.TrimSpace(s))) == LatencyLow {
		return LatencyLow, true
	}
	return DefaultLatency, false
}

// Brows is the eyebrow position marker.
type Brows string

const (
	BrowsNeutral  Brows = "neutral"
	BrowsRaised   Brows = "raised"
	BrowsFurrowed Brows = "furrowed"
)

// Head is the head movement marker.
type Head string

const (
	HeadStill Head = "still"
	HeadNod   Head = "nod"
	HeadShake Head = "shake"
	HeadTilt  Head = "tilt"
)

// NMM holds the non-manual markers that accompany a sign.
type NMM struct {
	Brows Brows  `json:"brows"`
	Head  Head   `json:"head"`
	Mouth string `json:"mouth,omitempty"`
}

// NeutralNMM is the resting face.
func NeutralNMM() NMM {
	return NMM{Brows: BrowsNeutral, Head: HeadStill}
}

// Handshape is specified independently per hand; empty means unspecified.
type Handshape struct {
	Left  string `json:"left,omitempty" yaml:"left,omitempty"`
	Right string `json:"right,omitempty" yaml:"right,omitempty"`
}

// Frame is one timed sign cue. Windows are half-open: [StartMs, EndMs).
// Empty optional strings mean the attribute is absent.
type Frame struct {
	Gloss       string    `json:"gloss"`
	Semantic    string    `json:"semantic"`
	StartMs     int       `json:"startMs"`
	EndMs       int       `json:"endMs"`
	NMM         NMM       `json:"nmm"`
	Handshape   Handshape `json:"handshape"`
	Location    string    `json:"location,omitempty"`
	RoleShift   string    `json:"roleShift,omitempty"`
	Fingerspell string    `json:"fingerspell,omitempty"`
}

// Contains reports whether elapsedMs falls inside the frame's window.
func (f Frame) Contains(elapsedMs int64) bool {
	return elapsedMs >= int64(f.StartMs) && elapsedMs < int64(f.EndMs)
}

// DurationMs is the window length.
func (f Frame) DurationMs() int {
	return f.EndMs - f.StartMs
}
