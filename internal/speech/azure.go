package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"canto/internal/config"
)

// AzureProvider talks to the Azure Speech and Translator REST APIs.
type AzureProvider struct {
	key              string
	translatorKey    string
	translatorRegion string

	sttEndpoint        string
	ttsEndpoint        string
	translatorEndpoint string

	httpClient *http.Client
	voices     VoiceMap
	logger     *zap.Logger

	mu        sync.Mutex
	voiceList []azureVoice
}

// NewAzureProvider creates a new Azure speech provider
func NewAzureProvider(cfg config.Speech, voices VoiceMap, logger *zap.Logger) (*AzureProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure provider requires an API key")
	}

	stt := cfg.STTEndpoint
	if stt == "" {
		if cfg.Region == "" {
			return nil, fmt.Errorf("azure provider requires a region or an explicit STT endpoint")
		}
		stt = fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region)
	}
	tts := cfg.TTSEndpoint
	if tts == "" {
		if cfg.Region == "" {
			return nil, fmt.Errorf("azure provider requires a region or an explicit TTS endpoint")
		}
		tts = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	translator := cfg.TranslatorEndpoint
	if translator == "" {
		translator = "https://api.cognitive.microsofttranslator.com"
	}

	translatorKey := cfg.TranslatorKey
	if translatorKey == "" {
		translatorKey = cfg.APIKey
	}
	translatorRegion := cfg.TranslatorRegion
	if translatorRegion == "" {
		translatorRegion = cfg.Region
	}

	if voices == nil {
		voices = DefaultVoices()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AzureProvider{
		key:                cfg.APIKey,
		translatorKey:      translatorKey,
		translatorRegion:   translatorRegion,
		sttEndpoint:        strings.TrimRight(stt, "/"),
		ttsEndpoint:        strings.TrimRight(tts, "/"),
		translatorEndpoint: strings.TrimRight(translator, "/"),
		httpClient:         &http.Client{Timeout: 90 * time.Second},
		voices:             voices,
		logger:             logger.Named("azure"),
	}, nil
}

// Name returns the provider name
func (p *AzureProvider) Name() string {
	return config.ProviderAzure
}

// azureRecognitionResponse is the short-audio REST reply in simple format
type azureRecognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

type azureTranslateRequest struct {
	Text string `json:"Text"`
}

type azureTranslateResponse []struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

type azureErrorResponse struct {
	Error struct {
		Code    json.Number `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

// Transcribe recognizes the normalized audio in the source language and
// translates the result to the target language.
func (p *AzureProvider) Transcribe(ctx context.Context, req TranscriptionRequest) (TranscriptionOutcome, error) {
	if !req.Audio.Valid() {
		return TranscriptionOutcome{}, fmt.Errorf("azure transcribe: audio has not been normalized")
	}
	startTime := time.Now()
	log := p.logger.With(
		zap.String("source", req.SourceLanguage),
		zap.String("target", req.TargetLanguage),
	)

	audioBytes, err := os.ReadFile(req.Audio.Path())
	if err != nil {
		return TranscriptionOutcome{}, fmt.Errorf("failed to read audio file: %w", err)
	}
	log.Debug("processing audio file", zap.String("path", req.Audio.Path()), zap.Int("bytes", len(audioBytes)))

	query := url.Values{}
	query.Set("language", req.SourceLanguage)
	query.Set("format", "simple")
	apiURL := p.sttEndpoint + "/speech/recognition/conversation/cognitiveservices/v1?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(audioBytes))
	if err != nil {
		return TranscriptionOutcome{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	httpReq.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	httpReq.Header.Set("Accept", "application/json")

	body, status, err := p.do(httpReq)
	if err != nil {
		return TranscriptionOutcome{}, &TransportError{Provider: p.Name(), Op: "recognize", Err: err}
	}
	if status != http.StatusOK {
		log.Error("recognition API error", zap.Int("status", status), zap.String("body", preview(body)))
		return RecognitionCanceled(reasonFromStatus(status), fmt.Sprintf("HTTP %d: %s", status, azureErrorMessage(body))), nil
	}

	var rec azureRecognitionResponse
	if err := json.Unmarshal(body, &rec); err != nil {
		log.Error("failed to parse recognition response", zap.String("body", preview(body)))
		return RecognitionCanceled(ReasonError, "unreadable recognition response: "+err.Error()), nil
	}

	switch rec.RecognitionStatus {
	case "Success":
	case "NoMatch", "InitialSilenceTimeout":
		log.Info("no speech recognized", zap.String("status", rec.RecognitionStatus))
		return NoMatch(rec.RecognitionStatus), nil
	case "BabbleTimeout":
		return RecognitionCanceled(ReasonTimeout, "BabbleTimeout"), nil
	case "EndOfDictation":
		return RecognitionCanceled(ReasonEndOfStream, "EndOfDictation"), nil
	default:
		return RecognitionCanceled(ReasonError, "recognition status "+rec.RecognitionStatus), nil
	}

	recognized := strings.TrimSpace(rec.DisplayText)
	if recognized == "" {
		return NoMatch("empty transcript returned"), nil
	}

	translations, err := p.translate(ctx, recognized, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		var cancel *CancellationError
		if errors.As(err, &cancel) {
			return RecognitionCanceled(cancel.Reason, cancel.Detail), nil
		}
		return TranscriptionOutcome{}, err
	}

	outcome := translatedOutcome(recognized, translations, req.TargetLanguage, log)
	log.Info("transcription finished",
		zap.Stringer("outcome", outcome.Kind),
		zap.Int("length", len(outcome.Text)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return outcome, nil
}

func (p *AzureProvider) translate(ctx context.Context, text, source, target string) ([]Translation, error) {
	query := url.Values{}
	query.Set("api-version", "3.0")
	query.Set("from", translatorLanguage(source))
	query.Set("to", translatorLanguage(target))
	apiURL := p.translatorEndpoint + "/translate?" + query.Encode()

	reqJSON, err := json.Marshal([]azureTranslateRequest{{Text: text}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.translatorKey)
	if p.translatorRegion != "" {
		httpReq.Header.Set("Ocp-Apim-Subscription-Region", p.translatorRegion)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, status, err := p.do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Op: "translate", Err: err}
	}
	if status != http.StatusOK {
		p.logger.Error("translator API error", zap.Int("status", status), zap.String("body", preview(body)))
		return nil, &CancellationError{
			Operation: OperationRecognition,
			Reason:    reasonFromStatus(status),
			Detail:    fmt.Sprintf("translator HTTP %d: %s", status, azureErrorMessage(body)),
		}
	}

	var resp azureTranslateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &CancellationError{
			Operation: OperationRecognition,
			Reason:    ReasonError,
			Detail:    "unreadable translator response: " + err.Error(),
		}
	}

	var translations []Translation
	for _, item := range resp {
		for _, tr := range item.Translations {
			translations = append(translations, Translation{Language: tr.To, Text: tr.Text})
		}
	}
	return translations, nil
}

func (p *AzureProvider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func azureErrorMessage(body []byte) string {
	var apiErr azureErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	if len(body) == 0 {
		return "empty response"
	}
	return preview(body)
}

// preview trims a response body for logging (first 500 chars)
func preview(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
