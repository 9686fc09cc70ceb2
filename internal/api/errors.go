package api

import (
	"errors"
	"net/http"
	"os/exec"

	"canto/internal/audio"
	"canto/internal/pipeline"
	"canto/internal/speech"
)

// statusFor maps a pipeline failure to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrConversionFailed):
		// a missing transcoder is our problem, not the client's
		if errors.Is(err, exec.ErrNotFound) {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	case errors.Is(err, speech.ErrNoSpeechDetected),
		errors.Is(err, speech.ErrRecognitionCanceled),
		errors.Is(err, speech.ErrSynthesisCanceled):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errorMessage drops the pipeline prefix so clients see the cause.
func errorMessage(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Err.Error()
	}
	return err.Error()
}
