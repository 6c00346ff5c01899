package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketConfig configures a WebSocketSource.
type WebSocketConfig struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	Interim          bool // forward non-final transcripts
}

// WebSocketSource receives transcripts from a recognizer that pushes JSON
// messages of the form {"text": "...", "isFinal": true}.
type WebSocketSource struct {
	cfg    WebSocketConfig
	logger zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	mu  sync.Mutex
	err error
}

// NewWebSocketSource returns an unconnected source.
func NewWebSocketSource(logger zerolog.Logger, cfg WebSocketConfig) *WebSocketSource {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &WebSocketSource{cfg: cfg, logger: logger}
}

func (s *WebSocketSource) Name() string { return "websocket" }

// Stream dials the recognizer and forwards its transcripts until the server
// closes the connection, the read fails, or ctx is canceled.
func (s *WebSocketSource) Stream(ctx context.Context) (<-chan RecognitionEvent, error) {
	if s.cfg.URL == "" {
		return nil, fmt.Errorf("%w: no url configured", ErrSourceUnavailable)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		if resp != nil {
			s.logger.Error().
				Int("status", resp.StatusCode).
				Err(err).
				Msg("Recognizer WebSocket connection failed")
		}
		return nil, fmt.Errorf("%w: websocket dial: %v", ErrSourceUnavailable, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.logger.Info().Str("url", s.cfg.URL).Msg("Connected to recognizer")

	out := make(chan RecognitionEvent, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer s.Close()
		s.readMessages(ctx, conn, out)
	}()
	return out, nil
}

func (s *WebSocketSource) readMessages(ctx context.Context, conn *websocket.Conn, out chan<- RecognitionEvent) {

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.logger.Debug().Msg("Recognizer connection closed normally")
			default:
				s.logger.Error().Err(err).Msg("Error reading recognizer message")
				s.setErr(fmt.Errorf("recognizer read: %w", err))
			}
			return
		}

		var evt RecognitionEvent
		if err := json.Unmarshal(message, &evt); err != nil {
			s.logger.Warn().Err(err).Str("message", string(message)).Msg("Failed to parse recognizer message")
			continue
		}
		if evt.Text == "" || (!evt.IsFinal && !s.cfg.Interim) {
			continue
		}

		select {
		case out <- evt:
			s.logger.Debug().
				Str("text", evt.Text).
				Bool("final", evt.IsFinal).
				Msg("Recognizer transcript")
		case <-ctx.Done():
			return
		}
	}
}

// Close sends a normal close frame and drops the connection.
func (s *WebSocketSource) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// Err returns the failure that ended the stream, if any.
func (s *WebSocketSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *WebSocketSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
