package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"canto/internal/config"
)

// OpenAIProvider recognizes with Whisper, translates with a chat model and
// synthesizes with the TTS endpoint.
type OpenAIProvider struct {
	client           *openai.Client
	translationModel string
	voices           VoiceMap
	logger           *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.Speech, voices VoiceMap, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if voices == nil {
		voices = DefaultVoices()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	model := cfg.OpenAITranslationModel
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client:           openai.NewClientWithConfig(clientCfg),
		translationModel: model,
		voices:           voices,
		logger:           logger.Named("openai"),
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return config.ProviderOpenAI
}

type openAITranslation struct {
	Translation string `json:"translation"`
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, req TranscriptionRequest) (TranscriptionOutcome, error) {
	if !req.Audio.Valid() {
		return TranscriptionOutcome{}, fmt.Errorf("openai transcribe: audio has not been normalized")
	}
	startTime := time.Now()
	log := p.logger.With(zap.String("source", req.SourceLanguage), zap.String("target", req.TargetLanguage))

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: req.Audio.Path(),
		Language: BaseLanguage(req.SourceLanguage),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		if reason, detail, ok := openAICancellation(err); ok {
			log.Error("transcription API error", zap.Error(err))
			return RecognitionCanceled(reason, detail), nil
		}
		return TranscriptionOutcome{}, &TransportError{Provider: p.Name(), Op: "recognize", Err: err}
	}

	recognized := strings.TrimSpace(resp.Text)
	if recognized == "" {
		log.Info("no speech recognized")
		return NoMatch("empty transcript returned"), nil
	}

	translated, err := p.translate(ctx, recognized, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		if reason, detail, ok := openAICancellation(err); ok {
			return RecognitionCanceled(reason, detail), nil
		}
		var cancel *CancellationError
		if errors.As(err, &cancel) {
			return RecognitionCanceled(cancel.Reason, cancel.Detail), nil
		}
		return TranscriptionOutcome{}, &TransportError{Provider: p.Name(), Op: "translate", Err: err}
	}

	translations := []Translation{{Language: req.TargetLanguage, Text: translated}}
	outcome := translatedOutcome(recognized, translations, req.TargetLanguage, log)
	log.Info("transcription finished",
		zap.Stringer("outcome", outcome.Kind),
		zap.Duration("duration", time.Since(startTime)),
	)
	return outcome, nil
}

func (p *OpenAIProvider) translate(ctx context.Context, text, source, target string) (string, error) {
	systemPrompt := `You translate transcribed speech. Keep the meaning and tone of the speaker, do not add or drop content.
Reply with a JSON object of the form {"translation": "<translated text>"} and nothing else.`
	userPrompt := fmt.Sprintf("Translate the following %s text into %s (%s):\n\n\"\"\"\n%s\n\"\"\"",
		languageName(source), languageName(target), target, text)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.translationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3, // Low temperature for faithful output
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &CancellationError{Operation: OperationRecognition, Reason: ReasonError, Detail: "OpenAI returned no choices"}
	}

	content := resp.Choices[0].Message.Content
	var result openAITranslation
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Some models still wrap JSON in markdown code fences.
		if err := json.Unmarshal([]byte(extractJSONFromMarkdown(content)), &result); err != nil {
			return "", &CancellationError{Operation: OperationRecognition, Reason: ReasonError, Detail: "unparseable translation: " + preview([]byte(content))}
		}
	}
	return strings.TrimSpace(result.Translation), nil
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisOutcome, error) {
	voice, mapped := p.voices.Lookup(p.Name(), req.Language)
	if !mapped {
		voice = string(openai.VoiceAlloy)
	}

	raw, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		if reason, detail, ok := openAICancellation(err); ok {
			p.logger.Error("speech API error", zap.Error(err))
			return SynthesisCanceled(reason, detail), nil
		}
		return SynthesisOutcome{}, &TransportError{Provider: p.Name(), Op: "synthesize", Err: err}
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return SynthesisOutcome{}, &TransportError{Provider: p.Name(), Op: "synthesize", Err: err}
	}
	if len(data) == 0 {
		return SynthesisCanceled(ReasonError, "empty audio returned"), nil
	}
	return completeSynthesis(req, data, voice)
}

// openAICancellation reports whether err is an API-level rejection rather
// than a transport failure.
func openAICancellation(err error) (CancellationReason, string, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return reasonFromStatus(apiErr.HTTPStatusCode), apiErr.Message, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reasonFromStatus(reqErr.HTTPStatusCode), reqErr.Error(), true
	}
	return "", "", false
}

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
