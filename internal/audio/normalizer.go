package audio

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// NormalizedAudio references a file that has passed the format check.
// Only Normalizer can produce a non-zero value.
type NormalizedAudio struct {
	path      string
	format    Format
	converted bool
}

func (a NormalizedAudio) Path() string    { return a.path }
func (a NormalizedAudio) Format() Format  { return a.format }
func (a NormalizedAudio) Converted() bool { return a.converted }

// Valid is false for the zero value.
func (a NormalizedAudio) Valid() bool { return a.path != "" }

// Normalizer guarantees a file is PCM s16le, mono, 16 kHz before it is
// handed to a speech provider.
type Normalizer struct {
	prober     Prober
	transcoder Transcoder
	logger     *zap.Logger
}

func NewNormalizer(prober Prober, transcoder Transcoder, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		prober:     prober,
		transcoder: transcoder,
		logger:     logger,
	}
}

// Normalize returns immediately when path is already compliant. Otherwise it
// transcodes into a sibling temp file, verifies the result and renames it
// over path, so path never holds a partially written file.
func (n *Normalizer) Normalize(ctx context.Context, path string) (NormalizedAudio, error) {
	format, err := n.prober.Probe(ctx, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NormalizedAudio{}, err
	case err != nil:
		// Let the transcoder produce the diagnostic.
		n.logger.Warn("probe failed, attempting conversion", zap.String("path", path), zap.Error(err))
	case format.IsPCM16Mono16k():
		n.logger.Debug("audio already compliant", zap.String("path", path), zap.Stringer("format", format))
		return NormalizedAudio{path: path, format: format}, nil
	}

	if n.transcoder == nil {
		return NormalizedAudio{}, &ConversionError{Path: path, Err: errors.New("no transcoder configured")}
	}

	tmp := path + ".tmp.wav"
	n.logger.Info("converting audio",
		zap.String("path", path),
		zap.Stringer("from", format),
	)

	if err := n.transcoder.Transcode(ctx, path, tmp); err != nil {
		os.Remove(tmp)
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			n.logger.Error("conversion error", zap.String("path", path), zap.String("output", convErr.Output), zap.Error(convErr.Err))
			return NormalizedAudio{}, convErr
		}
		return NormalizedAudio{}, &ConversionError{Path: path, Err: err}
	}

	out, err := n.prober.Probe(ctx, tmp)
	if err != nil {
		os.Remove(tmp)
		return NormalizedAudio{}, &ConversionError{Path: path, Err: fmt.Errorf("probe converted file: %w", err)}
	}
	if !out.IsPCM16Mono16k() {
		os.Remove(tmp)
		return NormalizedAudio{}, &ConversionError{Path: path, Output: "transcoder produced " + out.String()}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return NormalizedAudio{}, fmt.Errorf("failed to replace %s with converted audio: %w", path, err)
	}

	n.logger.Info("audio converted", zap.String("path", path), zap.Stringer("format", out))
	return NormalizedAudio{path: path, format: out, converted: true}, nil
}
