package stt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// InterimPrefix marks a line as a non-final transcript.
const InterimPrefix = "~"

// LineSource reads one transcript per line, e.g. from stdin or a file. Lines
// starting with InterimPrefix are interim events; all others are final.
type LineSource struct {
	r       io.Reader
	interim bool

	mu  sync.Mutex
	err error
}

// NewLineSource reads from r. When interim is false, interim lines are skipped.
func NewLineSource(r io.Reader, interim bool) *LineSource {
	return &LineSource{r: r, interim: interim}
}

func (s *LineSource) Name() string { return "line" }

// Stream starts reading. It may be called once.
func (s *LineSource) Stream(ctx context.Context) (<-chan RecognitionEvent, error) {
	if s.r == nil {
		return nil, fmt.Errorf("%w: no reader", ErrSourceUnavailable)
	}
	out := make(chan RecognitionEvent, 32)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			line := scanner.Text()
			evt := RecognitionEvent{IsFinal: true}
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), InterimPrefix); ok {
				if !s.interim {
					continue
				}
				evt.IsFinal = false
				line = rest
			}
			evt.Text = strings.TrimSpace(line)
			if evt.Text == "" {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.setErr(fmt.Errorf("read transcript: %w", err))
		}
	}()
	return out, nil
}

// Err returns the read error that ended the stream, if any.
func (s *LineSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *LineSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
