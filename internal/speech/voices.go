package speech

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// VoiceMap holds preferred voices per provider, keyed by language tag.
type VoiceMap map[string]map[string]string

// DefaultVoices returns the built-in preferred voices.
func DefaultVoices() VoiceMap {
	return VoiceMap{
		"azure": {
			"fr":      "fr-FR-HenriNeural",
			"yue":     "zh-HK-HiuMaanNeural",
			"en":      "en-US-JennyNeural",
			"es":      "es-ES-ElviraNeural",
			"de":      "de-DE-KatjaNeural",
			"ja":      "ja-JP-NanamiNeural",
			"zh-Hans": "zh-CN-XiaoxiaoNeural",
		},
		"google": {
			"fr":  "fr-FR-Neural2-B",
			"en":  "en-US-Neural2-C",
			"yue": "yue-HK-Standard-A",
		},
		"openai": {},
	}
}

// Lookup returns the preferred voice for language on provider: exact tag
// first (case-insensitive), then the base language.
func (m VoiceMap) Lookup(provider, lang string) (string, bool) {
	voices := m[provider]
	if len(voices) == 0 {
		return "", false
	}
	for tag, voice := range voices {
		if strings.EqualFold(tag, lang) {
			return voice, true
		}
	}
	base := BaseLanguage(lang)
	if voice, ok := voices[base]; ok {
		return voice, true
	}
	return "", false
}

// Merge returns a copy of m with every entry of other applied on top.
func (m VoiceMap) Merge(other VoiceMap) VoiceMap {
	out := make(VoiceMap, len(m))
	for provider, voices := range m {
		out[provider] = make(map[string]string, len(voices))
		for lang, voice := range voices {
			out[provider][lang] = voice
		}
	}
	for provider, voices := range other {
		if out[provider] == nil {
			out[provider] = make(map[string]string, len(voices))
		}
		for lang, voice := range voices {
			out[provider][lang] = voice
		}
	}
	return out
}

type voiceFile struct {
	Voices VoiceMap `yaml:"voices"`
}

// LoadVoiceFile reads a YAML override file of the form
//
//	voices:
//	  azure:
//	    fr: fr-FR-DeniseNeural
//
// and merges it over base.
func LoadVoiceFile(path string, base VoiceMap) (VoiceMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice map %s: %w", path, err)
	}

	var vf voiceFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("failed to parse voice map %s: %w", path, err)
	}
	return base.Merge(vf.Voices), nil
}
