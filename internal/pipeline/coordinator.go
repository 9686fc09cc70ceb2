package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"canto/internal/audio"
	"canto/internal/events"
	"canto/internal/metrics"
	"canto/internal/model"
	"canto/internal/repository"
	"canto/internal/speech"
	"canto/internal/storage"
)

// Normalizer makes an uploaded file provider-compatible.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (audio.NormalizedAudio, error)
}

// Archiver copies finished artifacts to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// UploadRequest is one uploaded recording and its language pair.
type UploadRequest struct {
	Filename       string
	Body           io.Reader
	Size           int64
	SourceLanguage string
	TargetLanguage string
}

// Result is returned only when every stage succeeded.
type Result struct {
	RequestID           string
	SourceLanguage      string
	TargetLanguage      string
	Transcription       string
	Recognized          string
	Audio               []byte
	Voice               string
	FallbackTranslation bool
	Converted           bool
	Stages              []Stage
	Duration            time.Duration
}

// Options holds the optional collaborators. Nil fields are disabled.
type Options struct {
	WorkDir    string
	Repository repository.TranslationRepository
	Archiver   Archiver
	Publisher  events.Publisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Coordinator runs uploads through normalize, transcribe and synthesize.
// It holds no per-request state and is safe for concurrent use.
type Coordinator struct {
	normalizer Normalizer
	provider   speech.Provider
	store      *storage.ArtifactStore

	workDir   string
	repo      repository.TranslationRepository
	archiver  Archiver
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewCoordinator(normalizer Normalizer, provider speech.Provider, store *storage.ArtifactStore, opts Options) *Coordinator {
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "canto")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		normalizer: normalizer,
		provider:   provider,
		store:      store,
		workDir:    opts.WorkDir,
		repo:       opts.Repository,
		archiver:   opts.Archiver,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger.Named("pipeline"),
	}
}

// run tracks one request through the state machine.
type run struct {
	id        uuid.UUID
	req       UploadRequest
	started   time.Time
	stageFrom time.Time
	stages    []Stage
	logger    *zap.Logger
	history   *model.TranslationRequest
}

func (r *run) current() Stage {
	return r.stages[len(r.stages)-1]
}

// Process runs one upload end to end. On failure it returns a *StageError
// and no result. The request's working directory is removed on every path.
func (c *Coordinator) Process(ctx context.Context, req UploadRequest) (*Result, error) {
	now := time.Now()
	r := &run{
		id:        uuid.New(),
		req:       req,
		started:   now,
		stageFrom: now,
		stages:    []Stage{StageReceived},
	}
	r.logger = c.logger.With(
		zap.String("request_id", r.id.String()),
		zap.String("provider", c.provider.Name()),
	)
	r.logger.Info("upload received",
		zap.String("filename", req.Filename),
		zap.String("input_language", req.SourceLanguage),
		zap.String("output_language", req.TargetLanguage),
	)

	if err := validate(req); err != nil {
		return nil, c.fail(ctx, r, err)
	}
	c.recordStart(ctx, r)

	requestDir := filepath.Join(c.workDir, r.id.String())
	defer func() {
		if err := os.RemoveAll(requestDir); err != nil {
			r.logger.Warn("failed to clean up request directory", zap.String("dir", requestDir), zap.Error(err))
		}
	}()

	uploadPath, size, err := storage.SaveUpload(requestDir, req.Filename, req.Body)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyUpload) {
			err = invalidInput("uploaded file is empty")
		}
		return nil, c.fail(ctx, r, err)
	}
	r.history.AudioSizeBytes = &size
	c.advance(r, StageSaved)

	normalized, err := c.normalizer.Normalize(ctx, uploadPath)
	if err != nil {
		return nil, c.fail(ctx, r, err)
	}
	r.history.Converted = normalized.Converted()
	if normalized.Converted() && c.metrics != nil {
		c.metrics.AudioConversions.Inc()
	}
	c.advance(r, StageNormalized)

	transcription, err := c.provider.Transcribe(ctx, speech.TranscriptionRequest{
		Audio:          normalized,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		return nil, c.fail(ctx, r, err)
	}
	if err := transcription.Err(); err != nil {
		return nil, c.fail(ctx, r, err)
	}
	r.history.Recognized = &transcription.Recognized
	r.history.Transcript = &transcription.Text
	r.history.Fallback = transcription.Fallback

	if _, err := c.store.SaveTranscript(transcription.Text); err != nil {
		return nil, c.fail(ctx, r, err)
	}
	c.advance(r, StageTranscribed)

	synthesis, err := c.provider.Synthesize(ctx, speech.SynthesisRequest{
		Text:       transcription.Text,
		Language:   req.TargetLanguage,
		OutputPath: c.store.AudioPath(),
	})
	if err != nil {
		return nil, c.fail(ctx, r, err)
	}
	if err := synthesis.Err(); err != nil {
		return nil, c.fail(ctx, r, err)
	}
	r.history.Voice = &synthesis.Voice
	c.advance(r, StageSynthesized)

	c.archive(ctx, r, transcription.Text, synthesis.Audio)
	c.advance(r, StageCompleted)

	result := &Result{
		RequestID:           r.id.String(),
		SourceLanguage:      req.SourceLanguage,
		TargetLanguage:      req.TargetLanguage,
		Transcription:       transcription.Text,
		Recognized:          transcription.Recognized,
		Audio:               synthesis.Audio,
		Voice:               synthesis.Voice,
		FallbackTranslation: transcription.Fallback,
		Converted:           normalized.Converted(),
		Stages:              append([]Stage(nil), r.stages...),
		Duration:            time.Since(r.started),
	}
	c.complete(ctx, r, result)
	return result, nil
}

func validate(req UploadRequest) error {
	if req.Body == nil {
		return invalidInput("no audio file provided")
	}
	if req.Filename == "" {
		return invalidInput("no file selected")
	}
	if err := speech.ValidateLanguage(req.SourceLanguage); err != nil {
		return invalidInput("input_language: %v", err)
	}
	if err := speech.ValidateLanguage(req.TargetLanguage); err != nil {
		return invalidInput("output_language: %v", err)
	}
	return nil
}

func (c *Coordinator) advance(r *run, next Stage) {
	prev := r.current()
	now := time.Now()
	if c.metrics != nil {
		c.metrics.StageDuration.WithLabelValues(next.String()).Observe(now.Sub(r.stageFrom).Seconds())
	}
	r.stageFrom = now
	r.stages = append(r.stages, next)
	r.logger.Debug("stage transition", zap.Stringer("from", prev), zap.Stringer("stage", next))
}

func (c *Coordinator) fail(ctx context.Context, r *run, err error) error {
	stage := r.current()
	r.stages = append(r.stages, StageFailed)
	stageErr := &StageError{Stage: stage, Err: err}

	r.logger.Error("pipeline failed",
		zap.Stringer("stage", stage),
		zap.Duration("duration", time.Since(r.started)),
		zap.Error(err),
	)
	if c.metrics != nil {
		c.metrics.StageFailures.WithLabelValues(stage.String()).Inc()
		c.metrics.PipelineRequests.WithLabelValues(StageFailed.String()).Inc()
	}

	if r.history != nil && c.repo != nil {
		msg := err.Error()
		stageName := stage.String()
		ms := int(time.Since(r.started).Milliseconds())
		r.history.Status = model.StatusFailed
		r.history.FailedStage = &stageName
		r.history.ErrorMessage = &msg
		r.history.ProcessingTimeMs = &ms
		if updateErr := c.repo.UpdateResult(ctx, r.history); updateErr != nil {
			r.logger.Warn("failed to record failure in history", zap.Error(updateErr))
		}
	}

	c.publish(ctx, r, events.Event{
		Type:  events.TypeFailed,
		Stage: stage.String(),
		Error: err.Error(),
	})
	return stageErr
}

func (c *Coordinator) recordStart(ctx context.Context, r *run) {
	r.history = &model.TranslationRequest{
		ID:             r.id,
		SourceLanguage: r.req.SourceLanguage,
		TargetLanguage: r.req.TargetLanguage,
		Provider:       c.provider.Name(),
		Filename:       filepath.Base(r.req.Filename),
		Status:         model.StatusProcessing,
		CreatedAt:      r.started,
	}
	if c.repo == nil {
		return
	}
	if err := c.repo.Create(ctx, r.history); err != nil {
		r.logger.Warn("failed to record request in history", zap.Error(err))
	}
}

func (c *Coordinator) complete(ctx context.Context, r *run, result *Result) {
	r.logger.Info("pipeline completed",
		zap.Int("transcription_length", len(result.Transcription)),
		zap.Int("audio_bytes", len(result.Audio)),
		zap.String("voice", result.Voice),
		zap.Bool("fallback_translation", result.FallbackTranslation),
		zap.Duration("duration", result.Duration),
	)
	if c.metrics != nil {
		c.metrics.PipelineRequests.WithLabelValues(StageCompleted.String()).Inc()
	}

	if c.repo != nil {
		ms := int(result.Duration.Milliseconds())
		r.history.Status = model.StatusCompleted
		r.history.ProcessingTimeMs = &ms
		if err := c.repo.UpdateResult(ctx, r.history); err != nil {
			r.logger.Warn("failed to record result in history", zap.Error(err))
		}
	}

	c.publish(ctx, r, events.Event{
		Type:          events.TypeCompleted,
		Transcription: result.Transcription,
		Voice:         result.Voice,
	})
}

// archive copies the artifacts to object storage. Failures are logged and
// do not fail the request.
func (c *Coordinator) archive(ctx context.Context, r *run, transcript string, audioData []byte) {
	if c.archiver == nil {
		return
	}
	prefix := "translations/" + r.id.String() + "/"

	if u, err := c.archiver.Archive(ctx, prefix+storage.TranscriptFile, []byte(transcript), "text/plain; charset=utf-8"); err != nil {
		r.logger.Warn("failed to archive transcript", zap.Error(err))
	} else {
		r.history.TranscriptURL = &u
	}
	if u, err := c.archiver.Archive(ctx, prefix+storage.AudioFile, audioData, "audio/wav"); err != nil {
		r.logger.Warn("failed to archive audio", zap.Error(err))
	} else {
		r.history.AudioURL = &u
	}
}

func (c *Coordinator) publish(ctx context.Context, r *run, event events.Event) {
	if c.publisher == nil {
		return
	}
	event.RequestID = r.id.String()
	event.SourceLanguage = r.req.SourceLanguage
	event.TargetLanguage = r.req.TargetLanguage
	event.Provider = c.provider.Name()
	event.DurationMs = time.Since(r.started).Milliseconds()
	event.Timestamp = time.Now().UTC()
	if err := c.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}
