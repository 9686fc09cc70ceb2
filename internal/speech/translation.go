package speech

import (
	"strings"

	"go.uber.org/zap"
)

// SelectTranslation picks the translation for target: an exact
// (case-insensitive) language match first, then a base-language match.
// If neither exists but the provider returned something, the first entry is
// used and fallback is true.
func SelectTranslation(translations []Translation, target string) (t Translation, fallback bool, ok bool) {
	if len(translations) == 0 {
		return Translation{}, false, false
	}
	for _, tr := range translations {
		if strings.EqualFold(tr.Language, target) {
			return tr, false, true
		}
	}
	base := BaseLanguage(target)
	for _, tr := range translations {
		if strings.EqualFold(BaseLanguage(tr.Language), base) {
			return tr, false, true
		}
	}
	return translations[0], true, true
}

// translatedOutcome turns the recognized text and the provider's
// translations into an outcome for target.
func translatedOutcome(recognized string, translations []Translation, target string, logger *zap.Logger) TranscriptionOutcome {
	logger.Debug("available translations", zap.Any("translations", translations))

	tr, fallback, ok := SelectTranslation(translations, target)
	if !ok || strings.TrimSpace(tr.Text) == "" {
		return RecognitionCanceled(ReasonError, "target language "+target+" not found in translations")
	}
	if fallback {
		logger.Warn("target language missing from translations, using first available",
			zap.String("target", target),
			zap.String("used", tr.Language),
		)
	}

	return TranscriptionOutcome{
		Kind:         OutcomeTranslated,
		Text:         strings.TrimSpace(tr.Text),
		Language:     tr.Language,
		Recognized:   recognized,
		Translations: translations,
		Fallback:     fallback,
	}
}
