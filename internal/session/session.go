// Package session runs one listening session: it cleans each transcript,
// gates it for safety, translates it into sign frames and hands the frames
// to the playback scheduler.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/signavatar/internal/bus"
	"github.com/normanking/signavatar/internal/config"
	"github.com/normanking/signavatar/internal/lexicon"
	"github.com/normanking/signavatar/internal/metrics"
	"github.com/normanking/signavatar/internal/pipeline"
	"github.com/normanking/signavatar/internal/playback"
	"github.com/normanking/signavatar/internal/safety"
	"github.com/normanking/signavatar/internal/sign"
	"github.com/normanking/signavatar/internal/stt"
)

// BlockedCaption replaces the caption of an utterance the gate withheld.
const BlockedCaption = "[blocked for safety]"

// Config wires a session to its collaborators. Only one of Player and
// Renderer is needed; with a Renderer the session builds its own scheduler.
type Config struct {
	Settings config.Settings
	Policy   *safety.Policy    // nil uses the built-in policy
	Lexicons *lexicon.Registry // nil uses the built-in tables
	Filter   *stt.Filter       // nil disables transcript cleaning

	Player          playback.Handle
	Renderer        playback.Renderer
	PlaybackOptions []playback.Option

	EventBus *bus.EventBus
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Outcome describes what happened to one recognition event.
type Outcome struct {
	Skipped bool // nothing left after cleaning
	Blocked bool
	Caption string
	Events  []safety.Event
	Result  pipeline.Result
}

// Session owns the per-session safety gate and the caption state shown
// alongside the avatar.
type Session struct {
	id       string
	gate     *safety.Gate
	lexicons *lexicon.Registry
	filter   *stt.Filter
	player   playback.Handle
	eventBus *bus.EventBus
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// handleMu serializes utterances so caption and playback stay paired.
	handleMu sync.Mutex

	mu        sync.RWMutex
	settings  config.Settings
	events    []safety.Event
	caption   string
	uncertain bool
	frames    []sign.Frame
}

// New starts a session with zeroed safety counters.
func New(cfg Config) *Session {
	s := &Session{
		id:       uuid.NewString(),
		gate:     safety.NewGate(cfg.Policy),
		lexicons: cfg.Lexicons,
		filter:   cfg.Filter,
		eventBus: cfg.EventBus,
		metrics:  cfg.Metrics,
	}
	s.logger = cfg.Logger.With().Str("component", "session").Str("session", s.id).Logger()
	s.settings = s.normalize(cfg.Settings)

	s.player = cfg.Player
	if s.player == nil {
		r := cfg.Renderer
		if r == nil {
			r = playback.RendererFunc(func(*sign.Frame, bool) {})
		}
		opts := append([]playback.Option{
			playback.WithLogger(s.logger),
			playback.WithObserver(s.observePlayback),
		}, cfg.PlaybackOptions...)
		s.player = playback.New(r, opts...)
	}
	return s
}

// ID is the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Player returns the playback handle the session drives.
func (s *Session) Player() playback.Handle {
	return s.player
}

// Gate exposes the session's safety gate.
func (s *Session) Gate() *safety.Gate {
	return s.gate
}

// Settings returns the current settings snapshot.
func (s *Session) Settings() config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the settings. Unknown values fall back to their
// defaults. Utterances already being translated keep their snapshot.
func (s *Session) UpdateSettings(settings config.Settings) {
	settings = s.normalize(settings)
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.logger.Info().
		Str("sign_lang", string(settings.SignLang)).
		Bool("safety_mode", settings.SafetyMode).
		Msg("Settings updated")
}

func (s *Session) normalize(settings config.Settings) config.Settings {
	out, replaced := settings.Normalize()
	if len(replaced) > 0 {
		s.logger.Warn().Strs("fields", replaced).Msg("Unrecognized settings replaced with defaults")
	}
	return out
}

// SafetyEvents returns every safety event since the last reset, oldest first.
func (s *Session) SafetyEvents() []safety.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]safety.Event(nil), s.events...)
}

// Caption is the text shown under the avatar for the latest utterance.
func (s *Session) Caption() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caption
}

// Uncertain reports whether the latest translation had low confidence.
func (s *Session) Uncertain() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uncertain
}

// Frames returns the frames of the latest translation.
func (s *Session) Frames() []sign.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]sign.Frame(nil), s.frames...)
}

// Reset clears the safety counters, events, caption and playback, as at the
// start of listening.
func (s *Session) Reset() {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	s.gate.Reset()
	s.mu.Lock()
	s.events = nil
	s.caption = ""
	s.uncertain = false
	s.frames = nil
	s.mu.Unlock()

	s.player.Clear()
	s.publish(bus.EventTypeSessionReset, nil)
}

// HandleRecognition runs one transcript through cleaning, masking, the
// safety gate and translation, then starts or clears playback. Each event
// supersedes the previous one. Interim events are checked against categories
// that have already blocked but do not count toward escalation.
func (s *Session) HandleRecognition(evt stt.RecognitionEvent) Outcome {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	if s.filter != nil && !s.filter.FilterEvent(&evt) {
		return Outcome{Skipped: true}
	}
	text := evt.Text

	settings := s.Settings()
	masked := text
	if settings.SafetyMode {
		masked = s.gate.Policy().Mask(text)
	}
	s.publish(bus.EventTypeTranscript, map[string]any{"text": masked, "isFinal": evt.IsFinal})

	var verdict safety.Verdict
	if evt.IsFinal {
		verdict = s.gate.Evaluate(masked)
	} else {
		verdict.Block = s.gate.Check(masked)
	}
	for _, e := range verdict.Events {
		s.metrics.SafetyEvent(string(e.Category), string(e.Severity))
		typ := bus.EventTypeSafetyWarn
		if e.Severity == safety.SeverityBlock {
			typ = bus.EventTypeSafetyBlock
		}
		// Notices are delivered in order, before the utterance is played or cleared.
		s.publishSync(typ, map[string]any{"message": e.Message, "category": string(e.Category), "count": e.Count})
	}

	if verdict.Block {
		s.mu.Lock()
		s.events = append(s.events, verdict.Events...)
		s.caption = BlockedCaption
		s.uncertain = false
		s.frames = nil
		s.mu.Unlock()

		s.player.Clear()
		s.metrics.Blocked()
		s.logger.Warn().
			Int("events", len(verdict.Events)).
			Interface("counts", s.gate.Counts()).
			Msg("Utterance blocked")
		return Outcome{Blocked: true, Caption: BlockedCaption, Events: verdict.Events}
	}

	var lex lexicon.Lexicon
	if s.lexicons != nil {
		lex = s.lexicons.For(settings.SignLang)
	}
	start := time.Now()
	res := pipeline.ProcessUtteranceStream(masked, pipeline.Options{
		SignLang: settings.SignLang,
		Latency:  settings.Latency,
		Lexicon:  lex,
	})
	s.metrics.Translation(string(settings.SignLang), len(res.Frames), countFingerspelled(res.Frames), time.Since(start))

	s.mu.Lock()
	s.events = append(s.events, verdict.Events...)
	s.caption = masked
	s.uncertain = res.Uncertain
	s.frames = res.Frames
	s.mu.Unlock()

	s.logger.Debug().
		Strs("glosses", res.Glosses()).
		Bool("uncertain", res.Uncertain).
		Bool("final", evt.IsFinal).
		Msg("Utterance translated")
	s.publish(bus.EventTypeTranslated, map[string]any{
		"glosses":    res.Glosses(),
		"uncertain":  res.Uncertain,
		"durationMs": res.DurationMs(),
	})

	s.player.Play(res.Frames, playback.PlayOptions{Uncertain: res.Uncertain})
	return Outcome{Caption: masked, Events: verdict.Events, Result: res}
}

// Run resets the session, then handles events from src until it is
// exhausted or ctx is canceled. A recognition failure ends the session and
// is returned; there is no retry.
func (s *Session) Run(ctx context.Context, src stt.Source) error {
	s.Reset()

	events, err := src.Stream(ctx)
	if err != nil {
		err = fmt.Errorf("start %s source: %w", src.Name(), err)
		s.publish(bus.EventTypeSessionEnded, map[string]any{"error": err.Error()})
		return err
	}

	s.metrics.SessionStarted()
	defer s.metrics.SessionEnded()
	s.logger.Info().Str("source", src.Name()).Msg("Listening")
	s.publish(bus.EventTypeSessionStarted, map[string]any{"source": src.Name()})

	for evt := range events {
		s.HandleRecognition(evt)
	}

	data := map[string]any{"safetyCounts": s.safetyCounts()}
	if err := src.Err(); err != nil {
		data["error"] = err.Error()
		s.logger.Error().Err(err).Msg("Recognition failed")
		s.publish(bus.EventTypeSessionEnded, data)
		return err
	}
	s.logger.Info().Msg("Listening stopped")
	s.publish(bus.EventTypeSessionEnded, data)
	return nil
}

// observePlayback forwards scheduler transitions. It runs under the
// scheduler lock, so it must not block.
func (s *Session) observePlayback(e playback.Event) {
	s.metrics.PlaybackTransition(string(e.Status))

	var typ bus.EventType
	switch e.Status {
	case playback.StatusPlaying:
		typ = bus.EventTypePlaybackStarted
	case playback.StatusFrozen:
		typ = bus.EventTypePlaybackFrozen
	case playback.StatusCleared:
		typ = bus.EventTypePlaybackCleared
	default:
		typ = bus.EventTypePlaybackIdle
	}
	s.publish(typ, map[string]any{"frames": e.Frames, "gloss": e.Gloss})
}

func (s *Session) safetyCounts() map[string]int {
	counts := s.gate.Counts()
	out := make(map[string]int, len(counts))
	for c, n := range counts {
		out[string(c)] = n
	}
	return out
}

func (s *Session) publishSync(typ bus.EventType, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishSync(bus.Event{Type: typ, SessionID: s.id, Data: data})
}

func (s *Session) publish(typ bus.EventType, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(bus.Event{Type: typ, SessionID: s.id, Data: data})
}

func countFingerspelled(frames []sign.Frame) int {
	n := 0
	for _, f := range frames {
		if f.Fingerspell != "" {
			n++
		}
	}
	return n
}
