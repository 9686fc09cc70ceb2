package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds every setting the server needs. It is built once at startup
// and handed to each component; nothing reads the environment afterwards.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// ResponseMode selects what POST /upload returns: "json" or "audio".
	ResponseMode string

	DefaultInputLanguage  string
	DefaultOutputLanguage string
	MaxUploadBytes        int64

	Speech  Speech
	Audio   Audio
	Storage Storage

	DatabaseURL string
	S3          S3
	AMQP        AMQP
}

// Speech configures the cloud speech provider.
type Speech struct {
	Provider string // azure, google, openai

	APIKey string
	Region string

	TranslatorKey      string
	TranslatorRegion   string
	STTEndpoint        string
	TTSEndpoint        string
	TranslatorEndpoint string

	GoogleProjectID string
	GoogleKey       string

	OpenAIKey              string
	OpenAIBaseURL          string
	OpenAITranslationModel string

	VoiceMapFile string
}

// Audio configures the external transcoder.
type Audio struct {
	FFmpegPath  string
	FFprobePath string
	Prober      string // header, ffprobe
}

// Storage configures on-disk locations.
type Storage struct {
	UploadsDir   string
	DocumentsDir string
	WorkDir      string
}

type S3 struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether enough settings are present to archive to S3.
func (s S3) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

type AMQP struct {
	URL   string
	Queue string
}

const (
	ProviderAzure  = "azure"
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"

	ResponseModeJSON  = "json"
	ResponseModeAudio = "audio"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	maxMB, err := getEnvInt("MAX_UPLOAD_MB", 25)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "json")),
		ResponseMode:          strings.ToLower(getEnv("RESPONSE_MODE", ResponseModeJSON)),
		DefaultInputLanguage:  getEnv("DEFAULT_INPUT_LANGUAGE", "en-US"),
		DefaultOutputLanguage: getEnv("DEFAULT_OUTPUT_LANGUAGE", "yue"),
		MaxUploadBytes:        int64(maxMB) << 20,
		Speech: Speech{
			Provider:               strings.ToLower(getEnv("SPEECH_PROVIDER", ProviderAzure)),
			APIKey:                 os.Getenv("SPEECH_API_KEY"),
			Region:                 os.Getenv("SPEECH_REGION"),
			TranslatorKey:          os.Getenv("TRANSLATOR_API_KEY"),
			TranslatorRegion:       os.Getenv("TRANSLATOR_REGION"),
			STTEndpoint:            os.Getenv("AZURE_STT_ENDPOINT"),
			TTSEndpoint:            os.Getenv("AZURE_TTS_ENDPOINT"),
			TranslatorEndpoint:     getEnv("AZURE_TRANSLATOR_ENDPOINT", "https://api.cognitive.microsofttranslator.com"),
			GoogleProjectID:        os.Getenv("GOOGLE_PROJECT_ID"),
			GoogleKey:              os.Getenv("GOOGLE_KEY"),
			OpenAIKey:              os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:          os.Getenv("OPENAI_BASE_URL"),
			OpenAITranslationModel: getEnv("OPENAI_TRANSLATION_MODEL", "gpt-4o-mini"),
			VoiceMapFile:           os.Getenv("VOICE_MAP_FILE"),
		},
		Audio: Audio{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			Prober:      strings.ToLower(getEnv("AUDIO_PROBER", "header")),
		},
		Storage: Storage{
			UploadsDir:   getEnv("UPLOADS_DIR", "/tmp/canto/uploads"),
			DocumentsDir: getEnv("DOCUMENTS_DIR", "/tmp/canto/documents"),
			WorkDir:      getEnv("WORK_DIR", filepath.Join(os.TempDir(), "canto")),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		S3: S3{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    os.Getenv("S3_REGION"),
			UseSSL:    getEnv("S3_USE_SSL", "true") == "true",
		},
		AMQP: AMQP{
			URL:   os.Getenv("AMQP_URL"),
			Queue: getEnv("AMQP_QUEUE", "canto.translation.events"),
		},
	}

	// Translator credentials fall back to the speech resource; a
	// multi-service Cognitive Services key works for both.
	if cfg.Speech.TranslatorKey == "" {
		cfg.Speech.TranslatorKey = cfg.Speech.APIKey
	}
	if cfg.Speech.TranslatorRegion == "" {
		cfg.Speech.TranslatorRegion = cfg.Speech.Region
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected provider has its credentials and that
// enumerated settings hold known values.
func (c *Config) Validate() error {
	switch c.Speech.Provider {
	case ProviderAzure:
		if c.Speech.APIKey == "" {
			return fmt.Errorf("SPEECH_API_KEY is required for the azure provider")
		}
		if c.Speech.Region == "" && (c.Speech.STTEndpoint == "" || c.Speech.TTSEndpoint == "") {
			return fmt.Errorf("SPEECH_REGION is required for the azure provider")
		}
	case ProviderGoogle:
		if c.Speech.GoogleKey == "" && c.Speech.GoogleProjectID == "" {
			return fmt.Errorf("GOOGLE_KEY or GOOGLE_PROJECT_ID is required for the google provider")
		}
	case ProviderOpenAI:
		if c.Speech.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unsupported SPEECH_PROVIDER %q. Supported: azure, google, openai", c.Speech.Provider)
	}

	switch c.ResponseMode {
	case ResponseModeJSON, ResponseModeAudio:
	default:
		return fmt.Errorf("unsupported RESPONSE_MODE %q. Supported: json, audio", c.ResponseMode)
	}

	switch c.Audio.Prober {
	case "header", "ffprobe":
	default:
		return fmt.Errorf("unsupported AUDIO_PROBER %q. Supported: header, ffprobe", c.Audio.Prober)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
