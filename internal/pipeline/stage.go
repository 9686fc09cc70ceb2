package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a step of the per-upload state machine:
// Received -> Saved -> Normalized -> Transcribed -> Synthesized -> Completed,
// with Failed reachable from any non-terminal stage.
type Stage int

const (
	StageReceived Stage = iota
	StageSaved
	StageNormalized
	StageTranscribed
	StageSynthesized
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageSaved:
		return "saved"
	case StageNormalized:
		return "normalized"
	case StageTranscribed:
		return "transcribed"
	case StageSynthesized:
		return "synthesized"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// ErrInvalidInput marks a request rejected before any processing.
var ErrInvalidInput = errors.New("invalid input")

// StageError is the Failed state: Stage is the last stage the request
// reached before Err stopped it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed after %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
