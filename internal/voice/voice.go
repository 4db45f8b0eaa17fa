// Package voice holds the speech collaborators: speech-to-text for incoming
// voice notes and text-to-speech for spoken replies.
package voice

import (
	"context"
	"fmt"
)

// Audio is an encoded audio payload.
type Audio struct {
	Data   []byte
	Format string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// TranscriptionError reports a failed speech-to-text call.
type TranscriptionError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transcription status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transcription: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// SynthesisError reports a failed text-to-speech call.
type SynthesisError struct {
	Provider string
	Code     string
	Err      error
}

func (e *SynthesisError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s synthesis %s: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s synthesis: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
