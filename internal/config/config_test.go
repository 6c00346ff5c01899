package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/normanking/signavatar/internal/sign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	store, err := NewStore(path)
	require.NoError(t, err)

	cfg, err := store.Load()
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
	assert.Equal(t, 3, cfg.Safety.BlockThreshold)
	assert.Equal(t, 16*time.Millisecond, cfg.Playback.TickInterval)
	assert.Same(t, cfg, store.Current())
}

func TestStore_LoadReadsFileAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `settings:
  sign_lang: bsl
  avatar_style: photoreal
  safety_mode: false
  latency: ultra
safety:
  block_threshold: 5
  categories: [profanity]
  extra_terms:
    profanity: [heck]
playback:
  tick_interval: 33ms
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	store, err := NewStore(path)
	require.NoError(t, err)
	cfg, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, sign.BSL, cfg.Settings.SignLang)
	assert.Equal(t, AvatarAnime, cfg.Settings.AvatarStyle)
	assert.False(t, cfg.Settings.SafetyMode)
	assert.Equal(t, sign.LatencyLow, cfg.Settings.Latency)
	assert.Equal(t, 5, cfg.Safety.BlockThreshold)
	assert.Equal(t, []string{"profanity"}, cfg.Safety.Categories)
	assert.Equal(t, []string{"heck"}, cfg.Safety.ExtraTerms["profanity"])
	assert.Equal(t, 33*time.Millisecond, cfg.Playback.TickInterval)
}

func TestStore_EnvOverridesFile(t *testing.T) {
	t.Setenv("SIGNAVATAR_SETTINGS_SIGN_LANG", "ISL")

	store, err := NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	cfg, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, sign.ISL, cfg.Settings.SignLang)
}

func TestStore_LoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings: [unclosed"), 0644))

	store, err := NewStore(path)
	require.NoError(t, err)
	cfg, err := store.Load()
	assert.Error(t, err)
	assert.Equal(t, DefaultSettings(), cfg.Settings, "defaults are returned alongside the error")
}

func TestSettings_Normalize(t *testing.T) {
	in := Settings{SignLang: "klingon", AvatarStyle: "Anime", SafetyMode: true, Latency: "LOW"}
	out, replaced := in.Normalize()

	assert.Equal(t, sign.ASL, out.SignLang)
	assert.Equal(t, AvatarAnime, out.AvatarStyle)
	assert.Equal(t, sign.LatencyLow, out.Latency)
	assert.True(t, out.SafetyMode)
	assert.Equal(t, []string{"sign_lang"}, replaced)

	_, replaced = DefaultSettings().Normalize()
	assert.Empty(t, replaced)
}

func TestSafetyConfig_PolicyConfig(t *testing.T) {
	s := SafetyConfig{BlockThreshold: 4, Categories: []string{"violence"}, ExtraTerms: map[string][]string{"violence": {"punch"}}}
	pc := s.PolicyConfig()

	assert.Equal(t, 4, pc.Threshold)
	assert.Equal(t, []string{"violence"}, pc.Categories)
	assert.Equal(t, []string{"punch"}, pc.ExtraTerms["violence"])
}

func TestSourceConfig_Filter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `source:
  kind: stdin
  filler_words: [basically, "  "]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	store, err := NewStore(path)
	require.NoError(t, err)
	cfg, err := store.Load()
	require.NoError(t, err)

	f := cfg.Source.Filter()
	assert.Contains(t, f.FillerWords(), "basically")
	assert.Contains(t, f.FillerWords(), "um")
	assert.NotContains(t, f.FillerWords(), "")

	got, ok := f.Clean("um basically hello")
	assert.True(t, ok)
	assert.Equal(t, "hello", got)
}
