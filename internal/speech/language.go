package speech

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ValidateLanguage checks that tag is a well-formed BCP-47 tag.
func ValidateLanguage(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return fmt.Errorf("language tag is empty")
	}
	if _, err := language.Parse(tag); err != nil {
		return fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return nil
}

// BaseLanguage returns the primary language subtag: "en-US" -> "en".
func BaseLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	base, _ := t.Base()
	return base.String()
}

// translatorLanguage keeps an explicit script ("zh-Hans") and drops the
// region ("en-US" -> "en"), the form translation APIs expect.
func translatorLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := t.Base()
	if script, conf := t.Script(); conf == language.Exact {
		return base.String() + "-" + script.String()
	}
	return base.String()
}

// languageName is the English display name used in LLM prompts.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

// voiceLocale extracts "fr-FR" from "fr-FR-HenriNeural".
func voiceLocale(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}
