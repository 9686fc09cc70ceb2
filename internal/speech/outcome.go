package speech

import (
	"errors"
	"fmt"
	"net/http"
)

// OutcomeKind tags the variant held by an outcome value.
type OutcomeKind int

const (
	OutcomeTranslated OutcomeKind = iota + 1
	OutcomeNoMatch
	OutcomeCanceled
	OutcomeCompleted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTranslated:
		return "translated"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeCompleted:
		return "completed"
	}
	return "unknown"
}

// CancellationReason is the provider-reported cause of an aborted call.
type CancellationReason string

const (
	ReasonError              CancellationReason = "Error"
	ReasonEndOfStream        CancellationReason = "EndOfStream"
	ReasonTimeout            CancellationReason = "Timeout"
	ReasonUnauthorized       CancellationReason = "Unauthorized"
	ReasonTooManyRequests    CancellationReason = "TooManyRequests"
	ReasonServiceUnavailable CancellationReason = "ServiceUnavailable"
)

func reasonFromStatus(code int) CancellationReason {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonUnauthorized
	case http.StatusTooManyRequests:
		return ReasonTooManyRequests
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ReasonTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return ReasonServiceUnavailable
	}
	return ReasonError
}

type Operation string

const (
	OperationRecognition Operation = "recognition"
	OperationSynthesis   Operation = "synthesis"
)

var (
	ErrNoSpeechDetected    = errors.New("no speech could be recognized")
	ErrRecognitionCanceled = errors.New("speech recognition canceled")
	ErrSynthesisCanceled   = errors.New("speech synthesis canceled")
)

// CancellationError is a provider-reported abort. It is distinct from a
// TransportError: the provider answered, and said no.
type CancellationError struct {
	Operation Operation
	Reason    CancellationReason
	Detail    string
}

func (e *CancellationError) Error() string {
	msg := fmt.Sprintf("speech %s canceled: %s", e.Operation, e.Reason)
	if e.Detail != "" {
		msg += ". Error details: " + e.Detail
	}
	return msg
}

func (e *CancellationError) Is(target error) bool {
	switch target {
	case ErrRecognitionCanceled:
		return e.Operation == OperationRecognition
	case ErrSynthesisCanceled:
		return e.Operation == OperationSynthesis
	}
	return false
}

// TransportError means the provider could not be reached or its reply
// could not be read.
type TransportError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Translation is one target-language rendering returned by a provider.
type Translation struct {
	Language string
	Text     string
}

// TranscriptionOutcome is Translated(text) | NoMatch | Canceled(reason, detail).
type TranscriptionOutcome struct {
	Kind OutcomeKind

	// Translated
	Text         string
	Language     string
	Recognized   string
	Translations []Translation
	// Fallback is set when Text came from a translation whose language did
	// not match the requested target.
	Fallback bool

	// NoMatch, Canceled
	Reason CancellationReason
	Detail string
}

func NoMatch(detail string) TranscriptionOutcome {
	return TranscriptionOutcome{Kind: OutcomeNoMatch, Detail: detail}
}

func RecognitionCanceled(reason CancellationReason, detail string) TranscriptionOutcome {
	return TranscriptionOutcome{Kind: OutcomeCanceled, Reason: reason, Detail: detail}
}

// Err converts a non-translated outcome into its error form.
func (o TranscriptionOutcome) Err() error {
	switch o.Kind {
	case OutcomeTranslated:
		return nil
	case OutcomeNoMatch:
		if o.Detail != "" {
			return fmt.Errorf("%w: %s", ErrNoSpeechDetected, o.Detail)
		}
		return ErrNoSpeechDetected
	case OutcomeCanceled:
		return &CancellationError{Operation: OperationRecognition, Reason: o.Reason, Detail: o.Detail}
	}
	return fmt.Errorf("unexpected transcription outcome %s", o.Kind)
}

// SynthesisOutcome is Completed(audio) | Canceled(reason, detail).
type SynthesisOutcome struct {
	Kind OutcomeKind

	Audio []byte
	Voice string
	// Path is where the audio was written, if an output path was requested.
	Path string

	Reason CancellationReason
	Detail string
}

func SynthesisCompleted(audio []byte, voice string) SynthesisOutcome {
	return SynthesisOutcome{Kind: OutcomeCompleted, Audio: audio, Voice: voice}
}

func SynthesisCanceled(reason CancellationReason, detail string) SynthesisOutcome {
	return SynthesisOutcome{Kind: OutcomeCanceled, Reason: reason, Detail: detail}
}

func (o SynthesisOutcome) Err() error {
	switch o.Kind {
	case OutcomeCompleted:
		return nil
	case OutcomeCanceled:
		return &CancellationError{Operation: OperationSynthesis, Reason: o.Reason, Detail: o.Detail}
	}
	return fmt.Errorf("unexpected synthesis outcome %s", o.Kind)
}
