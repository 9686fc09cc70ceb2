package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const azureOutputFormat = "riff-16khz-16bit-mono-pcm"

type azureVoice struct {
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale"`
}

// Synthesize speaks req.Text with the preferred voice for req.Language, or
// the first voice Azure lists for that locale when none is mapped.
func (p *AzureProvider) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisOutcome, error) {
	startTime := time.Now()
	log := p.logger.With(zap.String("language", req.Language))

	voice, mapped := p.voices.Lookup(p.Name(), req.Language)
	if !mapped {
		v, err := p.defaultVoice(ctx, req.Language)
		if err != nil {
			var cancel *CancellationError
			if errors.As(err, &cancel) {
				return SynthesisCanceled(cancel.Reason, cancel.Detail), nil
			}
			return SynthesisOutcome{}, err
		}
		voice = v
	}
	log.Debug("selected voice", zap.String("voice", voice), zap.Bool("mapped", mapped))

	lang := voiceLocale(voice)
	if lang == "" {
		lang = req.Language
	}
	ssml, err := buildSSML(req.Text, lang, voice)
	if err != nil {
		return SynthesisOutcome{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ttsEndpoint+"/cognitiveservices/v1", bytes.NewReader(ssml))
	if err != nil {
		return SynthesisOutcome{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	httpReq.Header.Set("User-Agent", "canto")

	body, status, err := p.do(httpReq)
	if err != nil {
		return SynthesisOutcome{}, &TransportError{Provider: p.Name(), Op: "synthesize", Err: err}
	}
	if status != http.StatusOK {
		log.Error("synthesis API error", zap.Int("status", status), zap.String("body", preview(body)))
		return SynthesisCanceled(reasonFromStatus(status), fmt.Sprintf("HTTP %d: %s", status, azureErrorMessage(body))), nil
	}
	if len(body) == 0 {
		return SynthesisCanceled(ReasonError, "empty audio returned"), nil
	}

	out, err := completeSynthesis(req, body, voice)
	if err != nil {
		return SynthesisOutcome{}, err
	}
	log.Info("speech synthesized",
		zap.String("voice", voice),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return out, nil
}

// defaultVoice picks the provider default for lang from the voices list,
// which is fetched once and cached.
func (p *AzureProvider) defaultVoice(ctx context.Context, lang string) (string, error) {
	voices, err := p.listVoices(ctx)
	if err != nil {
		return "", err
	}

	for _, v := range voices {
		if strings.EqualFold(v.Locale, lang) {
			return v.ShortName, nil
		}
	}
	prefix := strings.ToLower(BaseLanguage(lang)) + "-"
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.Locale), prefix) {
			return v.ShortName, nil
		}
	}
	return "", &CancellationError{
		Operation: OperationSynthesis,
		Reason:    ReasonError,
		Detail:    "no voice available for language " + lang,
	}
}

// listVoices returns the cached voices list, fetching it on first use. The
// fetch runs without holding p.mu; concurrent first callers may each fetch,
// and the first successful result is kept. Failures are not cached.
func (p *AzureProvider) listVoices(ctx context.Context) ([]azureVoice, error) {
	p.mu.Lock()
	cached := p.voiceList
	p.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	voices, err := p.fetchVoices(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voiceList == nil {
		p.voiceList = voices
		p.logger.Debug("voices list cached", zap.Int("count", len(voices)))
	}
	return p.voiceList, nil
}

func (p *AzureProvider) fetchVoices(ctx context.Context) ([]azureVoice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ttsEndpoint+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.key)

	body, status, err := p.do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Op: "list voices", Err: err}
	}
	if status != http.StatusOK {
		return nil, &CancellationError{
			Operation: OperationSynthesis,
			Reason:    reasonFromStatus(status),
			Detail:    fmt.Sprintf("voices list HTTP %d: %s", status, azureErrorMessage(body)),
		}
	}

	var voices []azureVoice
	if err := json.Unmarshal(body, &voices); err != nil {
		return nil, fmt.Errorf("failed to parse voices list: %w", err)
	}
	return voices, nil
}

func buildSSML(text, lang, voice string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="`)
	if err := xml.EscapeText(&buf, []byte(lang)); err != nil {
		return nil, fmt.Errorf("failed to escape language: %w", err)
	}
	buf.WriteString(`"><voice name="`)
	if err := xml.EscapeText(&buf, []byte(voice)); err != nil {
		return nil, fmt.Errorf("failed to escape voice: %w", err)
	}
	buf.WriteString(`">`)
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		return nil, fmt.Errorf("failed to escape text: %w", err)
	}
	buf.WriteString(`</voice></speak>`)
	return buf.Bytes(), nil
}
