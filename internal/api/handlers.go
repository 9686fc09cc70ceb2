package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"canto/internal/config"
	"canto/internal/metrics"
	"canto/internal/pipeline"
	"canto/internal/repository"
	"canto/internal/storage"
	"canto/internal/utils"
)

// Processor runs one upload through the pipeline.
type Processor interface {
	Process(ctx context.Context, req pipeline.UploadRequest) (*pipeline.Result, error)
}

// Options configures the HTTP boundary.
type Options struct {
	ResponseMode          string
	DefaultInputLanguage  string
	DefaultOutputLanguage string
	MaxUploadBytes        int64

	Repository repository.TranslationRepository
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// Handler serves the upload, artifact and history endpoints.
type Handler struct {
	processor Processor
	store     *storage.ArtifactStore
	opts      Options
	logger    *zap.Logger
}

func NewHandler(processor Processor, store *storage.ArtifactStore, opts Options) *Handler {
	if opts.ResponseMode == "" {
		opts.ResponseMode = config.ResponseModeJSON
	}
	if opts.DefaultInputLanguage == "" {
		opts.DefaultInputLanguage = "en-US"
	}
	if opts.DefaultOutputLanguage == "" {
		opts.DefaultOutputLanguage = "yue"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		processor: processor,
		store:     store,
		opts:      opts,
		logger:    opts.Logger.Named("api"),
	}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	if h.opts.Metrics != nil {
		r.Use(MetricsMiddleware(h.opts.Metrics))
	}

	// Health check
	r.GET("/health", h.healthCheck)
	if h.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/upload", h.uploadAudio)
	r.POST("/process_audio", h.uploadAudio)
	r.GET("/text", h.latestText)
	r.GET("/audio", h.latestAudio)

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.GET("/translations", h.listTranslations)
		v1.GET("/translations/:id", h.getTranslation)
	}
}

// healthCheck returns server health status
func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "canto",
	})
}

type uploadForm struct {
	Audio          *multipart.FileHeader `form:"audio" binding:"required"`
	InputLanguage  string                `form:"input_language" binding:"omitempty,max=35"`
	OutputLanguage string                `form:"output_language" binding:"omitempty,max=35"`
}

// bindingMessage reports which form field failed validation.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Field() {
			case "InputLanguage":
				return "input_language must be a language tag of at most 35 characters"
			case "OutputLanguage":
				return "output_language must be a language tag of at most 35 characters"
			}
		}
	}
	return "No audio file provided"
}

// uploadAudio handles POST /upload: normalize, translate and synthesize one recording
func (h *Handler) uploadAudio(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+(1<<20))

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.Error(c, http.StatusBadRequest, "file size exceeds upload limit")
			return
		}
		h.logger.Debug("upload binding failed", zap.Error(err))
		utils.Error(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	file := form.Audio
	if strings.TrimSpace(file.Filename) == "" {
		utils.Error(c, http.StatusBadRequest, "No file selected")
		return
	}
	if file.Size == 0 {
		utils.Error(c, http.StatusBadRequest, "uploaded file is empty")
		return
	}
	if file.Size > h.opts.MaxUploadBytes {
		utils.Error(c, http.StatusBadRequest, "file size exceeds upload limit")
		return
	}

	input := strings.TrimSpace(form.InputLanguage)
	if input == "" {
		input = h.opts.DefaultInputLanguage
	}
	output := strings.TrimSpace(form.OutputLanguage)
	if output == "" {
		output = h.opts.DefaultOutputLanguage
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open upload", zap.Error(err))
		utils.Error(c, http.StatusInternalServerError, "failed to read uploaded file")
		return
	}
	defer src.Close()

	result, err := h.processor.Process(c.Request.Context(), pipeline.UploadRequest{
		Filename:       file.Filename,
		Body:           src,
		Size:           file.Size,
		SourceLanguage: input,
		TargetLanguage: output,
	})
	if err != nil {
		h.writePipelineError(c, err)
		return
	}
	c.Set("request_id", result.RequestID)

	if h.opts.ResponseMode == config.ResponseModeAudio {
		c.Header("X-Transcription", url.QueryEscape(result.Transcription))
		c.Header("X-Request-ID", result.RequestID)
		c.Header("Content-Disposition", `attachment; filename="`+storage.AudioFile+`"`)
		c.Data(http.StatusOK, "audio/wav", result.Audio)
		return
	}

	// []byte is base64 encoded by encoding/json
	c.JSON(http.StatusOK, gin.H{
		"transcription":        result.Transcription,
		"synthesized_audio":    result.Audio,
		"request_id":           result.RequestID,
		"voice":                result.Voice,
		"fallback_translation": result.FallbackTranslation,
	})
}

func (h *Handler) writePipelineError(c *gin.Context, err error) {
	status := statusFor(err)
	fields := gin.H{}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		fields["stage"] = stageErr.Stage.String()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("upload failed", zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Info("upload rejected", zap.Int("status", status), zap.Error(err))
	}
	c.Error(err)
	utils.ErrorWithFields(c, status, errorMessage(err), fields)
}

// latestText handles GET /text
func (h *Handler) latestText(c *gin.Context) {
	path, err := h.store.LatestTranscript()
	if err != nil {
		h.artifactError(c, err, "no transcript available")
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.FileAttachment(path, storage.TranscriptFile)
}

// latestAudio handles GET /audio
func (h *Handler) latestAudio(c *gin.Context) {
	path, err := h.store.LatestAudio()
	if err != nil {
		h.artifactError(c, err, "no synthesized audio available")
		return
	}
	c.Header("Content-Type", "audio/wav")
	c.FileAttachment(path, storage.AudioFile)
}

func (h *Handler) artifactError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, storage.ErrNotFound) {
		utils.Error(c, http.StatusNotFound, notFound)
		return
	}
	h.logger.Error("failed to read artifact", zap.Error(err))
	utils.Error(c, http.StatusInternalServerError, "failed to read artifact")
}
