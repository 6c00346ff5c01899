// Package stt adapts speech recognizers into a stream of transcript events.
package stt

import (
	"context"
	"errors"
)

// ErrSourceUnavailable means the recognizer could not be started, such as a
// refused connection or missing permission.
var ErrSourceUnavailable = errors.New("speech source unavailable")

// RecognitionEvent is one partial or final transcript.
type RecognitionEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Source delivers recognition events. The channel closes when the session
// ends, either because input ran out, ctx was canceled, or recognition
// failed; Err then reports the failure, if any. There is no automatic retry.
type Source interface {
	Name() string
	Stream(ctx context.Context) (<-chan RecognitionEvent, error)
	Err() error
}
