package speech

import (
	"context"
	"fmt"
	"strings"

	"canto/internal/audio"
	"canto/internal/utils"
)

// TranscriptionRequest asks for one recognize-and-translate cycle.
type TranscriptionRequest struct {
	Audio          audio.NormalizedAudio
	SourceLanguage string
	TargetLanguage string
}

// SynthesisRequest asks for one text-to-speech call. OutputPath is optional.
type SynthesisRequest struct {
	Text       string
	Language   string
	OutputPath string
}

// Transcriber recognizes speech and translates it. The error return is
// reserved for transport failures; NoMatch and Canceled come back as
// outcomes. Implementations never retry.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (TranscriptionOutcome, error)
}

// Synthesizer turns text into audio. Cancellation comes back as an outcome.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisOutcome, error)
}

// Provider is a cloud backend offering both halves of the pipeline.
type Provider interface {
	Transcriber
	Synthesizer

	// Name returns the name of the provider (e.g., "azure", "google")
	Name() string
}

// completeSynthesis builds the Completed outcome and, when the request
// names an output path, persists the audio there first.
func completeSynthesis(req SynthesisRequest, data []byte, voice string) (SynthesisOutcome, error) {
	out := SynthesisCompleted(data, voice)
	if strings.TrimSpace(req.OutputPath) == "" {
		return out, nil
	}

	path := utils.ExpandHome(req.OutputPath)
	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return SynthesisOutcome{}, fmt.Errorf("failed to save synthesized audio: %w", err)
	}
	out.Path = path
	return out, nil
}
