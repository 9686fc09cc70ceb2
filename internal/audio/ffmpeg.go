package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrConversionFailed matches every *ConversionError via errors.Is.
var ErrConversionFailed = errors.New("audio conversion failed")

// ConversionError carries the transcoder's diagnostic output.
type ConversionError struct {
	Path   string
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("audio conversion failed for %s", e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConversionFailed}
	}
	return []error{ErrConversionFailed, e.Err}
}

// Transcoder converts src into a PCM s16le mono 16 kHz WAV at dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// FFmpegTranscoder shells out to ffmpeg.
type FFmpegTranscoder struct {
	path string
}

func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTranscoder{path: binary}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, t.path,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-acodec", CodecPCM16,
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ConversionError{
			Path:   src,
			Output: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return nil
}
