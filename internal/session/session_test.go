package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/signavatar/internal/bus"
	"github.com/normanking/signavatar/internal/config"
	"github.com/normanking/signavatar/internal/metrics"
	"github.com/normanking/signavatar/internal/pipeline"
	"github.com/normanking/signavatar/internal/playback"
	"github.com/normanking/signavatar/internal/safety"
	"github.com/normanking/signavatar/internal/sign"
	"github.com/normanking/signavatar/internal/stt"
)

type call struct {
	clear     bool
	glosses   []string
	uncertain bool
}

type fakePlayer struct {
	mu    sync.Mutex
	calls []call
}

func (p *fakePlayer) Play(frames []sign.Frame, opts playback.PlayOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{glosses: pipeline.Result{Frames: frames}.Glosses(), uncertain: opts.Uncertain})
}

func (p *fakePlayer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{clear: true})
}

func (p *fakePlayer) last() call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newSession(t *testing.T, mutate ...func(*Config)) (*Session, *fakePlayer) {
	t.Helper()
	player := &fakePlayer{}
	cfg := Config{
		Settings: config.DefaultSettings(),
		Filter:   stt.NewFilter(nil),
		Player:   player,
		Logger:   zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg), player
}

func final(text string) stt.RecognitionEvent {
	return stt.RecognitionEvent{Text: text, IsFinal: true}
}

func TestHandleRecognition_Translates(t *testing.T) {
	s, player := newSession(t)

	out := s.HandleRecognition(final("hello world"))

	assert.False(t, out.Blocked)
	assert.Equal(t, "hello world", out.Caption)
	assert.Equal(t, "hello world", s.Caption())
	assert.Equal(t, []string{"HELLO", "WORLD"}, out.Result.Glosses())
	assert.Equal(t, call{glosses: []string{"HELLO", "WORLD"}}, player.last())
	assert.Len(t, s.Frames(), 2)
	assert.False(t, s.Uncertain())
	assert.Empty(t, s.SafetyEvents())
}

func TestHandleRecognition_UncertainIsForwarded(t *testing.T) {
	s, player := newSession(t)

	s.HandleRecognition(final("my name is Zed"))

	assert.True(t, s.Uncertain())
	assert.True(t, player.last().uncertain)
}

func TestHandleRecognition_MasksInSafetyMode(t *testing.T) {
	s, player := newSession(t)

	out := s.HandleRecognition(final("hello damn world"))

	assert.Equal(t, "hello [profanity] world", s.Caption())
	assert.Equal(t, []string{"HELLO", pipeline.MaskedGloss, "WORLD"}, player.last().glosses)
	require.Len(t, out.Events, 1)
	assert.Equal(t, safety.SeverityWarn, out.Events[0].Severity)
}

func TestHandleRecognition_SafetyModeOffStillGates(t *testing.T) {
	s, _ := newSession(t, func(c *Config) { c.Settings.SafetyMode = false })

	out := s.HandleRecognition(final("hello damn world"))

	assert.Equal(t, "hello damn world", s.Caption())
	require.Len(t, out.Events, 1)
	assert.Equal(t, safety.CategoryProfanity, out.Events[0].Category)
}

func TestHandleRecognition_BlocksAtThreshold(t *testing.T) {
	s, player := newSession(t)

	var blocked []bool
	for i := 0; i < 3; i++ {
		blocked = append(blocked, s.HandleRecognition(final("oh damn")).Blocked)
	}

	assert.Equal(t, []bool{false, false, true}, blocked)
	assert.Equal(t, BlockedCaption, s.Caption())
	assert.Empty(t, s.Frames())
	assert.True(t, player.last().clear)

	events := s.SafetyEvents()
	require.Len(t, events, 3)
	assert.Equal(t, safety.SeverityWarn, events[0].Severity)
	assert.Equal(t, safety.SeverityWarn, events[1].Severity)
	assert.Equal(t, safety.SeverityBlock, events[2].Severity)

	assert.True(t, s.HandleRecognition(final("damn again")).Blocked, "latched")
	assert.False(t, s.HandleRecognition(final("thank you")).Blocked, "clean text still translates")
	assert.Equal(t, "thank you", s.Caption())
}

func TestHandleRecognition_InterimDoesNotEscalate(t *testing.T) {
	s, player := newSession(t)

	for i := 0; i < 5; i++ {
		out := s.HandleRecognition(stt.RecognitionEvent{Text: "hello damn"})
		assert.False(t, out.Blocked)
		assert.Empty(t, out.Events)
	}
	assert.Empty(t, s.Gate().Counts())
	assert.Equal(t, []string{"HELLO", pipeline.MaskedGloss}, player.last().glosses)

	for i := 0; i < 3; i++ {
		s.HandleRecognition(final("damn"))
	}
	assert.True(t, s.HandleRecognition(stt.RecognitionEvent{Text: "damn it"}).Blocked)
}

func TestHandleRecognition_SkipsFillerOnly(t *testing.T) {
	s, player := newSession(t)

	out := s.HandleRecognition(final("um, uh..."))
	assert.True(t, out.Skipped)
	assert.Zero(t, player.count())

	s.HandleRecognition(final("um hello"))
	assert.Equal(t, "hello", s.Caption())
}

func TestHandleRecognition_UsesCurrentSettings(t *testing.T) {
	s, _ := newSession(t)

	s.UpdateSettings(config.Settings{SignLang: "bsl", SafetyMode: true, AvatarStyle: "realistic", Latency: "slow"})
	got := s.Settings()
	assert.Equal(t, sign.BSL, got.SignLang)
	assert.Equal(t, config.AvatarAnime, got.AvatarStyle)
	assert.Equal(t, sign.LatencyLow, got.Latency)

	out := s.HandleRecognition(final("I don't know."))
	assert.Equal(t, []string{"ME", "KNOW", "NOT"}, out.Result.Glosses())
}

func TestReset(t *testing.T) {
	s, player := newSession(t)
	s.HandleRecognition(final("damn"))
	s.HandleRecognition(final("damn"))

	s.Reset()

	assert.Empty(t, s.SafetyEvents())
	assert.Empty(t, s.Caption())
	assert.Empty(t, s.Frames())
	assert.Empty(t, s.Gate().Counts())
	assert.True(t, player.last().clear)
	assert.False(t, s.HandleRecognition(final("damn")).Blocked)
}

func TestSessionsAreIsolated(t *testing.T) {
	a, _ := newSession(t)
	b, _ := newSession(t)
	assert.NotEqual(t, a.ID(), b.ID())

	for i := 0; i < 3; i++ {
		a.HandleRecognition(final("damn"))
	}
	assert.False(t, b.HandleRecognition(final("damn")).Blocked)
}

type failingSource struct{ err error }

func (f failingSource) Name() string { return "failing" }
func (f failingSource) Stream(context.Context) (<-chan stt.RecognitionEvent, error) {
	return nil, f.err
}
func (f failingSource) Err() error { return nil }

func collectEvents(b *bus.EventBus) func() []bus.Event {
	var mu sync.Mutex
	var got []bus.Event
	b.Subscribe(bus.EventTypeAll, func(e bus.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	return func() []bus.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]bus.Event(nil), got...)
	}
}

func hasEvent(events []bus.Event, typ bus.EventType) (bus.Event, bool) {
	for _, e := range events {
		if e.Type == typ {
			return e, true
		}
	}
	return bus.Event{}, false
}

func TestRun_ProcessesSourceUntilExhausted(t *testing.T) {
	eventBus := bus.NewEventBus()
	events := collectEvents(eventBus)
	m := metrics.New(nil)
	s, player := newSession(t, func(c *Config) {
		c.EventBus = eventBus
		c.Metrics = m
	})
	s.HandleRecognition(final("damn"))

	src := stt.NewLineSource(strings.NewReader("hello\n~thank\nthank you\n"), true)
	require.NoError(t, s.Run(context.Background(), src))

	assert.Empty(t, s.SafetyEvents(), "run starts with a reset")
	assert.Equal(t, "thank you", s.Caption())
	assert.Equal(t, []string{"THANK-YOU"}, player.last().glosses)

	require.Eventually(t, func() bool {
		_, ok := hasEvent(events(), bus.EventTypeSessionEnded)
		return ok
	}, time.Second, time.Millisecond)
	started, ok := hasEvent(events(), bus.EventTypeSessionStarted)
	require.True(t, ok)
	assert.Equal(t, s.ID(), started.SessionID)
	ended, _ := hasEvent(events(), bus.EventTypeSessionEnded)
	assert.NotContains(t, ended.Data, "error")
}

func TestHandleRecognition_SafetyNoticesArriveInOrder(t *testing.T) {
	eventBus := bus.NewEventBus()
	var mu sync.Mutex
	var got []string
	record := func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(e.Type)+":"+e.Data["category"].(string))
	}
	eventBus.Subscribe(bus.EventTypeSafetyWarn, record)
	eventBus.Subscribe(bus.EventTypeSafetyBlock, record)
	s, _ := newSession(t, func(c *Config) { c.EventBus = eventBus })

	s.HandleRecognition(final("damn, call 555 123 4567"))
	s.HandleRecognition(final("damn"))
	out := s.HandleRecognition(final("damn and x@y.io"))
	require.True(t, out.Blocked)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"safety.warn:profanity",
		"safety.warn:personal_info",
		"safety.warn:profanity",
		"safety.block:profanity",
		"safety.warn:personal_info",
	}, got)
}

func TestRun_EndedEventCarriesSafetyCounts(t *testing.T) {
	eventBus := bus.NewEventBus()
	events := collectEvents(eventBus)
	s, _ := newSession(t, func(c *Config) { c.EventBus = eventBus })

	src := stt.NewLineSource(strings.NewReader("damn damn\nhello\ndamn\n"), true)
	require.NoError(t, s.Run(context.Background(), src))

	var ended bus.Event
	require.Eventually(t, func() bool {
		var ok bool
		ended, ok = hasEvent(events(), bus.EventTypeSessionEnded)
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, map[string]int{"profanity": 2}, ended.Data["safetyCounts"])
}

func TestRun_RecognitionFailureEndsSession(t *testing.T) {
	s, _ := newSession(t)

	src := stt.NewLineSource(iotest.ErrReader(errors.New("mic unplugged")), true)
	err := s.Run(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mic unplugged")

	err = s.Run(context.Background(), failingSource{err: stt.ErrSourceUnavailable})
	assert.ErrorIs(t, err, stt.ErrSourceUnavailable)
}

func TestSession_OwnSchedulerPublishesPlayback(t *testing.T) {
	eventBus := bus.NewEventBus()
	events := collectEvents(eventBus)

	var mu sync.Mutex
	var rendered []string
	s := New(Config{
		Settings: config.DefaultSettings(),
		Renderer: playback.RendererFunc(func(f *sign.Frame, _ bool) {
			mu.Lock()
			defer mu.Unlock()
			if f != nil {
				rendered = append(rendered, f.Gloss)
			}
		}),
		PlaybackOptions: []playback.Option{playback.WithTickInterval(time.Millisecond)},
		EventBus:        eventBus,
		Logger:          zerolog.Nop(),
	})

	s.HandleRecognition(final("yes"))

	require.Eventually(t, func() bool {
		_, ok := hasEvent(events(), bus.EventTypePlaybackFrozen)
		return ok
	}, 3*time.Second, 5*time.Millisecond)
	_, ok := hasEvent(events(), bus.EventTypePlaybackStarted)
	assert.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, rendered)
	assert.Equal(t, "YES", rendered[0])
}
