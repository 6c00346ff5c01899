// Package config provides configuration management for signavatar.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/normanking/signavatar/internal/safety"
	"github.com/normanking/signavatar/internal/stt"
)

// Config holds all application configuration.
type Config struct {
	Settings Settings       `mapstructure:"settings"`
	Safety   SafetyConfig   `mapstructure:"safety"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Lexicon  LexiconConfig  `mapstructure:"lexicon"`
	Source   SourceConfig   `mapstructure:"source"`
	Render   RenderConfig   `mapstructure:"render"`
	Log      LogConfig      `mapstructure:"log"`
}

// SafetyConfig tunes the per-session safety gate.
type SafetyConfig struct {
	BlockThreshold int                 `mapstructure:"block_threshold"` // occurrences of one category before blocking
	Categories     []string            `mapstructure:"categories"`      // enabled categories, empty means all
	ExtraTerms     map[string][]string `mapstructure:"extra_terms"`     // category -> additional literal terms
}

// PlaybackConfig configures the avatar scheduler.
type PlaybackConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// LexiconConfig points at optional lexicon override files.
type LexiconConfig struct {
	Dir string `mapstructure:"dir"` // holds <LANG>.yaml files; empty uses built-ins only
}

// SourceConfig selects where transcript events come from.
type SourceConfig struct {
	Kind    string `mapstructure:"kind"` // stdin or websocket
	URL     string `mapstructure:"url"`
	Interim bool   `mapstructure:"interim"` // forward non-final events
	// FillerWords extends the built-in filler list stripped from transcripts.
	FillerWords []string `mapstructure:"filler_words"`
}

// RenderConfig selects renderer outputs.
type RenderConfig struct {
	Terminal   bool   `mapstructure:"terminal"`
	ListenAddr string `mapstructure:"listen_addr"` // websocket hub and /metrics; empty disables
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	dir, _ := Dir()
	return &Config{
		Settings: DefaultSettings(),
		Safety: SafetyConfig{
			BlockThreshold: 3,
		},
		Playback: PlaybackConfig{
			TickInterval: 16 * time.Millisecond,
		},
		Source: SourceConfig{
			Kind:    "stdin",
			Interim: true,
		},
		Render: RenderConfig{
			Terminal: true,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   filepath.Join(dir, "logs"),
		},
	}
}

// Dir returns the configuration directory, ~/.signavatar.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".signavatar"), nil
}

// Store owns the viper instance behind one config file.
type Store struct {
	v    *viper.Viper
	path string

	mu      sync.Mutex
	current *Config
}

// NewStore binds a config file. An empty path means ~/.signavatar/config.yaml.
func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SIGNAVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	return &Store{v: v, path: path}, nil
}

// Path returns the bound config file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file, creating it with defaults when missing.
// Environment variables such as SIGNAVATAR_SETTINGS_SIGN_LANG override file values.
func (s *Store) Load() (*Config, error) {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), fmt.Errorf("read config %s: %w", s.path, err)
		}
		if err := s.Save(DefaultConfig()); err != nil {
			return DefaultConfig(), err
		}
		if err := s.v.ReadInConfig(); err != nil {
			return DefaultConfig(), fmt.Errorf("read config %s: %w", s.path, err)
		}
	}
	return s.decode()
}

func (s *Store) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := s.v.Unmarshal(cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("decode config: %w", err)
	}
	cfg.Settings, _ = cfg.Settings.Normalize()
	if cfg.Safety.BlockThreshold <= 0 {
		cfg.Safety.BlockThreshold = 3
	}
	if cfg.Playback.TickInterval <= 0 {
		cfg.Playback.TickInterval = 16 * time.Millisecond
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return cfg, nil
}

// Save writes cfg to the bound file. The watched instance is left untouched so
// environment overrides keep their precedence.
func (s *Store) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	w := viper.New()
	w.SetConfigType("yaml")
	for key, val := range flatten(cfg) {
		w.Set(key, val)
	}
	if err := w.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

// Watch reloads the file on every write and hands the new config to onChange.
// Decode failures are passed through as errors and the previous config stays current.
func (s *Store) Watch(onChange func(*Config, error)) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := s.decode()
		onChange(cfg, err)
	})
	s.v.WatchConfig()
}

// Current returns the most recently decoded config, nil before Load.
func (s *Store) Current() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func setDefaults(v *viper.Viper, cfg *Config) {
	for key, val := range flatten(cfg) {
		v.SetDefault(key, val)
	}
}

// flatten maps cfg onto dotted viper keys matching the mapstructure tags.
func flatten(cfg *Config) map[string]any {
	extra := make(map[string]any, len(cfg.Safety.ExtraTerms))
	for k, v := range cfg.Safety.ExtraTerms {
		extra[k] = v
	}
	categories := cfg.Safety.Categories
	if categories == nil {
		categories = []string{}
	}
	fillers := cfg.Source.FillerWords
	if fillers == nil {
		fillers = []string{}
	}
	return map[string]any{
		"settings.sign_lang":     string(cfg.Settings.SignLang),
		"settings.avatar_style":  string(cfg.Settings.AvatarStyle),
		"settings.safety_mode":   cfg.Settings.SafetyMode,
		"settings.latency":       string(cfg.Settings.Latency),
		"safety.block_threshold": cfg.Safety.BlockThreshold,
		"safety.categories":      categories,
		"safety.extra_terms":     extra,
		"playback.tick_interval": cfg.Playback.TickInterval.String(),
		"lexicon.dir":            cfg.Lexicon.Dir,
		"source.kind":            cfg.Source.Kind,
		"source.url":             cfg.Source.URL,
		"source.interim":         cfg.Source.Interim,
		"source.filler_words":    fillers,
		"render.terminal":        cfg.Render.Terminal,
		"render.listen_addr":     cfg.Render.ListenAddr,
		"log.level":              cfg.Log.Level,
		"log.dir":                cfg.Log.Dir,
	}
}

// PolicyConfig converts the section into safety policy options.
func (s SafetyConfig) PolicyConfig() safety.PolicyConfig {
	return safety.PolicyConfig{
		Threshold:  s.BlockThreshold,
		Categories: s.Categories,
		ExtraTerms: s.ExtraTerms,
	}
}

// Filter builds the transcript filter: the built-in filler words plus any
// configured extras.
func (s SourceConfig) Filter() *stt.Filter {
	f := stt.NewFilter(nil)
	for _, w := range s.FillerWords {
		f.AddFillerWord(w)
	}
	return f
}
