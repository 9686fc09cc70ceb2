package speech

import (
	"fmt"

	"go.uber.org/zap"

	"canto/internal/config"
)

// NewProvider creates the speech provider selected in cfg.
func NewProvider(cfg config.Speech, voices VoiceMap, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.VoiceMapFile != "" {
		merged, err := LoadVoiceFile(cfg.VoiceMapFile, voices)
		if err != nil {
			return nil, err
		}
		voices = merged
		logger.Info("voice map loaded", zap.String("path", cfg.VoiceMapFile))
	}

	switch cfg.Provider {
	case config.ProviderAzure, "":
		logger.Info("creating Azure speech provider", zap.String("region", cfg.Region))
		return NewAzureProvider(cfg, voices, logger)
	case config.ProviderGoogle:
		logger.Info("creating Google speech provider", zap.String("project", cfg.GoogleProjectID))
		return NewGoogleProvider(cfg, voices, logger)
	case config.ProviderOpenAI:
		logger.Info("creating OpenAI speech provider")
		return NewOpenAIProvider(cfg, voices, logger)
	default:
		return nil, fmt.Errorf("unsupported speech provider: %s. Supported: azure, google, openai", cfg.Provider)
	}
}
