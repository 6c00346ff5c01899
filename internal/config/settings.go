package config

import (
	"strings"

	"github.com/normanking/signavatar/internal/sign"
)

// AvatarStyle selects the avatar look.
type AvatarStyle string

const (
	AvatarAnime AvatarStyle = "anime"
)

// Settings is the user-facing translation snapshot. A copy is taken for every
// translation call, so later edits never affect an utterance in flight.
type Settings struct {
	SignLang    sign.Language `mapstructure:"sign_lang" json:"signLang"`
	AvatarStyle AvatarStyle   `mapstructure:"avatar_style" json:"avatarStyle"`
	SafetyMode  bool          `mapstructure:"safety_mode" json:"safetyMode"`
	Latency     sign.Latency  `mapstructure:"latency" json:"latency"`
}

// DefaultSettings returns ASL, anime avatar, safety on, low latency.
func DefaultSettings() Settings {
	return Settings{
		SignLang:    sign.DefaultLanguage,
		AvatarStyle: AvatarAnime,
		SafetyMode:  true,
		Latency:     sign.DefaultLatency,
	}
}

// Normalize replaces every unrecognized value with its default. replaced names
// the fields that were rewritten so callers can log them.
func (s Settings) Normalize() (out Settings, replaced []string) {
	out = s

	lang, ok := sign.ParseLanguage(string(s.SignLang))
	if !ok {
		replaced = append(replaced, "sign_lang")
	}
	out.SignLang = lang

	if AvatarStyle(strings.ToLower(strings.TrimSpace(string(s.AvatarStyle)))) == AvatarAnime {
		out.AvatarStyle = AvatarAnime
	} else {
		out.AvatarStyle = AvatarAnime
		replaced = append(replaced, "avatar_style")
	}

	latency, ok := sign.ParseLatency(string(s.Latency))
	if !ok {
		replaced = append(replaced, "latency")
	}
	out.Latency = latency

	return out, replaced
}
