// Package playback drives an avatar renderer from a timed frame sequence.
package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/signavatar/internal/sign"
)

// DefaultTickInterval is roughly one display refresh at 60Hz.
const DefaultTickInterval = 16 * time.Millisecond

// Renderer paints the active frame. A nil frame means background only.
// Render is called with the scheduler's lock held and must not call back
// into the scheduler.
type Renderer interface {
	Render(frame *sign.Frame, uncertain bool)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(frame *sign.Frame, uncertain bool)

func (f RendererFunc) Render(frame *sign.Frame, uncertain bool) { f(frame, uncertain) }

// Handle is the capability handed to controllers: start a sequence or clear.
type Handle interface {
	Play(frames []sign.Frame, opts PlayOptions)
	Clear()
}

// PlayOptions qualifies a sequence.
type PlayOptions struct {
	Uncertain bool
}

// Status is the scheduler lifecycle position.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusFrozen  Status = "frozen"
	StatusCleared Status = "cleared"
)

// State is the live sequence. It is replaced wholesale on Play.
type State struct {
	Frames         []sign.Frame
	StartTimestamp time.Time
	Uncertain      bool
}

// Event reports a status transition.
type Event struct {
	Status Status
	Frames int
	Gloss  string // frozen frame, if any
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTickInterval sets the render cadence. Non-positive values are ignored.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithObserver registers a callback for status transitions. It runs under the
// scheduler lock, like Render.
func WithObserver(fn func(Event)) Option {
	return func(s *Scheduler) { s.observe = fn }
}

// Scheduler maps elapsed time to the active frame and renders it on every
// tick. At most one render loop is live; Play and Clear cancel it first.
type Scheduler struct {
	renderer Renderer
	clock    Clock
	interval time.Duration
	log      zerolog.Logger
	observe  func(Event)

	mu     sync.Mutex
	state  State
	status Status
	cycle  *cycle
}

// cycle is the cancellation handle of one render loop.
type cycle struct {
	ticker Ticker
	stop   chan struct{}
	once   sync.Once
}

func (c *cycle) cancel() {
	c.once.Do(func() {
		close(c.stop)
		c.ticker.Stop()
	})
}

var _ Handle = (*Scheduler)(nil)

// New returns an idle scheduler painting into r.
func New(r Renderer, opts ...Option) *Scheduler {
	s := &Scheduler{
		renderer: r,
		clock:    SystemClock(),
		interval: DefaultTickInterval,
		log:      zerolog.Nop(),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Play supersedes any running sequence with frames, timed from now. The first
// frame is rendered before Play returns. An empty sequence leaves the
// scheduler idle with only the background drawn.
func (s *Scheduler) Play(frames []sign.Frame, opts PlayOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.state = State{
		Frames:         append([]sign.Frame(nil), frames...),
		StartTimestamp: s.clock.Now(),
		Uncertain:      opts.Uncertain,
	}

	if len(frames) == 0 {
		s.status = StatusIdle
		s.renderer.Render(nil, opts.Uncertain)
		s.emitLocked(Event{Status: StatusIdle})
		return
	}

	s.status = StatusPlaying
	c := &cycle{ticker: s.clock.NewTicker(s.interval), stop: make(chan struct{})}
	s.cycle = c
	s.log.Debug().Int("frames", len(frames)).Bool("uncertain", opts.Uncertain).Msg("Playback started")
	s.emitLocked(Event{Status: StatusPlaying, Frames: len(frames)})

	if s.tickLocked(c) {
		go s.run(c)
	}
}

// Clear cancels playback and redraws an empty avatar before returning.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.state = State{}
	s.status = StatusCleared
	s.renderer.Render(nil, false)
	s.log.Debug().Msg("Playback cleared")
	s.emitLocked(Event{Status: StatusCleared})
}

// Status returns the lifecycle position.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns a copy of the live sequence.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Frames = append([]sign.Frame(nil), s.state.Frames...)
	return st
}

func (s *Scheduler) cancelLocked() {
	if s.cycle != nil {
		s.cycle.cancel()
		s.cycle = nil
	}
}

func (s *Scheduler) run(c *cycle) {
	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.C():
			if !s.tick(c) {
				return
			}
		}
	}
}

func (s *Scheduler) tick(c *cycle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle != c {
		return false
	}
	return s.tickLocked(c)
}

// tickLocked renders the frame for the current elapsed time and reports
// whether another tick is needed.
func (s *Scheduler) tickLocked(c *cycle) bool {
	elapsed := s.clock.Now().Sub(s.state.StartTimestamp).Milliseconds()
	frame, frozen := ActiveFrame(s.state.Frames, elapsed)

	if frame != nil {
		f := *frame
		s.renderer.Render(&f, s.state.Uncertain)
	} else {
		s.renderer.Render(nil, s.state.Uncertain)
	}

	if !frozen {
		return true
	}
	c.cancel()
	s.cycle = nil
	s.status = StatusFrozen
	ev := Event{Status: StatusFrozen, Frames: len(s.state.Frames)}
	if frame != nil {
		ev.Gloss = frame.Gloss
	}
	s.log.Debug().Int64("elapsed_ms", elapsed).Str("gloss", ev.Gloss).Msg("Playback frozen")
	s.emitLocked(ev)
	return false
}

func (s *Scheduler) emitLocked(ev Event) {
	if s.observe != nil {
		s.observe(ev)
	}
}

// ActiveFrame selects the frame for elapsedMs. The first frame whose window
// contains elapsedMs wins, so overlapping input still resolves
// deterministically. Once elapsedMs reaches the last frame's end, frozen is
// true and the last frame is held. A gap in malformed input yields nil.
func ActiveFrame(frames []sign.Frame, elapsedMs int64) (frame *sign.Frame, frozen bool) {
	if len(frames) == 0 {
		return nil, false
	}
	last := &frames[len(frames)-1]
	frozen = elapsedMs >= int64(last.EndMs)
	for i := range frames {
		if frames[i].Contains(elapsedMs) {
			return &frames[i], frozen
		}
	}
	if frozen {
		return last, true
	}
	return nil, false
}
