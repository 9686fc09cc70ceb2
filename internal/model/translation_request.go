package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TranslationRequest represents one upload processed by the pipeline
type TranslationRequest struct {
	ID               uuid.UUID `json:"id"`
	SourceLanguage   string    `json:"input_language"`
	TargetLanguage   string    `json:"output_language"`
	Provider         string    `json:"provider"`
	Filename         string    `json:"filename"`
	AudioSizeBytes   *int64    `json:"audio_size_bytes,omitempty"`
	Converted        bool      `json:"converted"`
	Recognized       *string   `json:"recognized,omitempty"`
	Transcript       *string   `json:"transcript,omitempty"`
	Fallback         bool      `json:"fallback_translation"`
	Voice            *string   `json:"voice,omitempty"`
	TranscriptURL    *string   `json:"transcript_url,omitempty"`
	AudioURL         *string   `json:"audio_url,omitempty"`
	Status           string    `json:"status"`
	FailedStage      *string   `json:"failed_stage,omitempty"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	ProcessingTimeMs *int      `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
