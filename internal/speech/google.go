package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"canto/internal/config"
)

const (
	googleScope         = "https://www.googleapis.com/auth/cloud-platform"
	googleRecognizeURL  = "https://speech.googleapis.com/v1/speech:recognize"
	googleTranslateURL  = "https://translation.googleapis.com/language/translate/v2"
	googleSynthesizeURL = "https://texttospeech.googleapis.com/v1/text:synthesize"
)

// GoogleProvider implements the pipeline on Google Cloud Speech-to-Text,
// Translation and Text-to-Speech REST APIs.
type GoogleProvider struct {
	projectID  string
	apiKey     string
	httpClient *http.Client
	useAPIKey  bool // true if using API key, false if using service account

	recognizeURL  string
	translateURL  string
	synthesizeURL string

	voices VoiceMap
	logger *zap.Logger
}

// NewGoogleProvider creates a new Google provider.
// cfg.GoogleKey can be either:
//   - An API key (39 characters, typically starts with "AIzaSy")
//   - A file path to a JSON key file (e.g., "./keys/google-service-account.json")
//   - A JSON string containing the service account credentials
//
// When it is empty, application default credentials are used.
func NewGoogleProvider(cfg config.Speech, voices VoiceMap, logger *zap.Logger) (*GoogleProvider, error) {
	if voices == nil {
		voices = DefaultVoices()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("google")

	p := &GoogleProvider{
		projectID:     cfg.GoogleProjectID,
		recognizeURL:  googleRecognizeURL,
		translateURL:  googleTranslateURL,
		synthesizeURL: googleSynthesizeURL,
		voices:        voices,
		logger:        logger,
	}

	keyData := strings.TrimSpace(cfg.GoogleKey)
	if isGoogleAPIKey(keyData) {
		logger.Info("using API key authentication")
		p.apiKey = keyData
		p.useAPIKey = true
		p.httpClient = &http.Client{Timeout: 90 * time.Second}
		return p, nil
	}

	ctx := context.Background()
	var creds *google.Credentials
	var err error

	if keyData == "" {
		creds, err = google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w. Please set GOOGLE_KEY", err)
		}
	} else {
		var jsonData []byte
		if strings.HasPrefix(keyData, "{") {
			logger.Info("using JSON credentials from environment variable")
			jsonData = []byte(keyData)
		} else {
			logger.Info("reading key file", zap.String("path", keyData))
			jsonData, err = os.ReadFile(keyData)
			if err != nil {
				return nil, fmt.Errorf("failed to read key file '%s': %w", keyData, err)
			}
		}

		creds, err = google.CredentialsFromJSON(ctx, jsonData, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials from JSON: %w", err)
		}
	}

	if p.projectID == "" {
		p.projectID = creds.ProjectID
	}
	p.httpClient = oauth2.NewClient(ctx, creds.TokenSource)
	p.httpClient.Timeout = 90 * time.Second
	return p, nil
}

func isGoogleAPIKey(key string) bool {
	return len(key) == 39 && strings.HasPrefix(key, "AIzaSy")
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return config.ProviderGoogle
}

type googleRecognizeRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  googleRecognitionAudio  `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	AudioChannelCount          int    `json:"audioChannelCount"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type googleRecognitionAudio struct {
	Content string `json:"content"` // Base64 encoded
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
	Error *googleAPIError `json:"error,omitempty"`
}

type googleAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type googleTranslateRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type googleTranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

type googleSynthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string `json:"audioEncoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Transcribe recognizes the normalized audio and translates it.
func (p *GoogleProvider) Transcribe(ctx context.Context, req TranscriptionRequest) (TranscriptionOutcome, error) {
	if !req.Audio.Valid() {
		return TranscriptionOutcome{}, fmt.Errorf("google transcribe: audio has not been normalized")
	}
	startTime := time.Now()
	log := p.logger.With(zap.String("source", req.SourceLanguage), zap.String("target", req.TargetLanguage))

	audioBytes, err := os.ReadFile(req.Audio.Path())
	if err != nil {
		return TranscriptionOutcome{}, fmt.Errorf("failed to read audio file: %w", err)
	}

	reqBody := googleRecognizeRequest{
		Config: googleRecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
			LanguageCode:               req.SourceLanguage,
			EnableAutomaticPunctuation: true,
		},
		Audio: googleRecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audioBytes),
		},
	}

	body, status, err := p.postJSON(ctx, p.recognizeURL, reqBody)
	if err != nil {
		return TranscriptionOutcome{}, &TransportError{Provider: p.Name(), Op: "recognize", Err: err}
	}
	if status != http.StatusOK {
		log.Error("recognition API error", zap.Int("status", status), zap.String("body", preview(body)))
		return RecognitionCanceled(reasonFromStatus(status), fmt.Sprintf("HTTP %d: %s", status, googleErrorMessage(body))), nil
	}

	var sttResp googleRecognizeResponse
	if err := json.Unmarshal(body, &sttResp); err != nil {
		return RecognitionCanceled(ReasonError, "unreadable recognition response: "+err.Error()), nil
	}
	if sttResp.Error != nil {
		return RecognitionCanceled(reasonFromStatus(sttResp.Error.Code), sttResp.Error.Message), nil
	}

	// Long inputs come back as several consecutive results.
	var parts []string
	for _, r := range sttResp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	recognized := strings.Join(parts, " ")
	if recognized == "" {
		log.Info("no speech recognized")
		return NoMatch("no results returned"), nil
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
		zap.Duration("duration", time.Since(startTime)),
	)
	return outcome, nil
}

func (p *GoogleProvider) translate(ctx context.Context, text, source, target string) ([]Translation, error) {
	reqBody := googleTranslateRequest{
		Q:      []string{text},
		Source: translatorLanguage(source),
		Target: translatorLanguage(target),
		Format: "text",
	}

	body, status, err := p.postJSON(ctx, p.translateURL, reqBody)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Op: "translate", Err: err}
	}
	if status != http.StatusOK {
		return nil, &CancellationError{
			Operation: OperationRecognition,
			Reason:    reasonFromStatus(status),
			Detail:    fmt.Sprintf("translate HTTP %d: %s", status, googleErrorMessage(body)),
		}
	}

	var resp googleTranslateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &CancellationError{Operation: OperationRecognition, Reason: ReasonError, Detail: "unreadable translate response: " + err.Error()}
	}

	translations := make([]Translation, 0, len(resp.Data.Translations))
	for _, tr := range resp.Data.Translations {
		translations = append(translations, Translation{Language: target, Text: tr.TranslatedText})
	}
	return translations, nil
}

// Synthesize speaks text with the mapped voice, or lets Google pick its
// default voice for the language when none is mapped.
func (p *GoogleProvider) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisOutcome, error) {
	voice, mapped := p.voices.Lookup(p.Name(), req.Language)

	var reqBody googleSynthesizeRequest
	reqBody.Input.Text = req.Text
	reqBody.Voice.LanguageCode = req.Language
	if mapped {
		reqBody.Voice.Name = voice
		if locale := voiceLocale(voice); locale != "" {
			reqBody.Voice.LanguageCode = locale
		}
	}
	reqBody.AudioConfig.AudioEncoding = "LINEAR16"
	reqBody.AudioConfig.SampleRateHertz = 16000

	body, status, err := p.postJSON(ctx, p.synthesizeURL, reqBody)
	if err != nil {
		return SynthesisOutcome{}, &TransportError{Provider: p.Name(), Op: "synthesize", Err: err}
	}
	if status != http.StatusOK {
		p.logger.Error("synthesis API error", zap.Int("status", status), zap.String("body", preview(body)))
		return SynthesisCanceled(reasonFromStatus(status), fmt.Sprintf("HTTP %d: %s", status, googleErrorMessage(body))), nil
	}

	var resp googleSynthesizeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SynthesisCanceled(ReasonError, "unreadable synthesis response: "+err.Error()), nil
	}
	audioBytes, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil || len(audioBytes) == 0 {
		return SynthesisCanceled(ReasonError, "empty or undecodable audio content"), nil
	}

	if !mapped {
		voice = "default:" + reqBody.Voice.LanguageCode
	}
	return completeSynthesis(req, audioBytes, voice)
}

func (p *GoogleProvider) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, int, error) {
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	if p.useAPIKey {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, 0, err
		}
		q := u.Query()
		q.Set("key", p.apiKey)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !p.useAPIKey && p.projectID != "" {
		req.Header.Set("X-Goog-User-Project", p.projectID)
	}

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

func googleErrorMessage(body []byte) string {
	var wrapper struct {
		Error googleAPIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return preview(body)
}
