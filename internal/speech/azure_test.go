package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"canto/internal/audio"
	"canto/internal/config"
)

// normalizedFixture writes a short compliant WAV and runs it through the
// normalizer so providers accept it.
func normalizedFixture(t *testing.T) audio.NormalizedAudio {
	t.Helper()
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16((i % 64) * 256)
	}
	data, err := audio.EncodeWAV(samples, audio.TargetSampleRate, audio.TargetChannels)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	na, err := audio.NewNormalizer(audio.HeaderProber{}, nil, nil).Normalize(context.Background(), path)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return na
}

type azureFake struct {
	recognition   string
	recognizeCode int
	translations  string
	ttsCode       int
	voicesCalls   atomic.Int32
	voicesGate    chan struct{}

	mu       sync.Mutex
	lastSSML string
	lastFrom string
	lastTo   string
}

func (f *azureFake) ssml() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSSML
}

func (f *azureFake) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/speech/recognition/conversation/cognitiveservices/v1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "key-123" {
			t.Errorf("Missing subscription key")
		}
		if r.URL.Query().Get("language") != "en-US" {
			t.Errorf("Expected language en-US, got %s", r.URL.Query().Get("language"))
		}
		if f.recognizeCode != 0 {
			w.WriteHeader(f.recognizeCode)
			w.Write([]byte(`{"error":{"code":"401","message":"Access denied"}}`))
			return
		}
		w.Write([]byte(f.recognition))
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastFrom = r.URL.Query().Get("from")
		f.lastTo = r.URL.Query().Get("to")
		f.mu.Unlock()
		var body []azureTranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
			t.Errorf("Unexpected translate body: %v", err)
		}
		w.Write([]byte(f.translations))
	})
	mux.HandleFunc("/cognitiveservices/v1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Microsoft-OutputFormat") != azureOutputFormat {
			t.Errorf("Unexpected output format %s", r.Header.Get("X-Microsoft-OutputFormat"))
		}
		ssml, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastSSML = string(ssml)
		f.mu.Unlock()
		if f.ttsCode != 0 {
			w.WriteHeader(f.ttsCode)
			return
		}
		w.Write([]byte("RIFFfakeaudio"))
	})
	mux.HandleFunc("/cognitiveservices/voices/list", func(w http.ResponseWriter, r *http.Request) {
		f.voicesCalls.Add(1)
		if f.voicesGate != nil {
			select {
			case <-f.voicesGate:
			case <-time.After(5 * time.Second):
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte(`[{"ShortName":"sw-KE-RafikiNeural","Locale":"sw-KE"},{"ShortName":"sw-TZ-DaudiNeural","Locale":"sw-TZ"}]`))
	})
	return mux
}

func newTestAzure(t *testing.T, fake *azureFake) *AzureProvider {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	p, err := NewAzureProvider(config.Speech{
		APIKey:             "key-123",
		Region:             "westeurope",
		STTEndpoint:        srv.URL,
		TTSEndpoint:        srv.URL,
		TranslatorEndpoint: srv.URL,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewAzureProvider failed: %v", err)
	}
	return p
}

func TestAzureTranscribeTranslated(t *testing.T) {
	fake := &azureFake{
		recognition:  `{"RecognitionStatus":"Success","DisplayText":"Hello world.","Offset":0,"Duration":1000}`,
		translations: `[{"translations":[{"text":"Bonjour le monde.","to":"fr"}]}]`,
	}
	p := newTestAzure(t, fake)

	out, err := p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if out.Kind != OutcomeTranslated {
		t.Fatalf("Expected translated outcome, got %s (%s)", out.Kind, out.Detail)
	}
	if out.Text != "Bonjour le monde." {
		t.Errorf("Expected French text, got %q", out.Text)
	}
	if out.Recognized != "Hello world." {
		t.Errorf("Expected recognized text, got %q", out.Recognized)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.lastFrom != "en" || fake.lastTo != "fr" {
		t.Errorf("Expected translate en -> fr, got %s -> %s", fake.lastFrom, fake.lastTo)
	}
}

func TestAzureTranscribeNoMatch(t *testing.T) {
	fake := &azureFake{recognition: `{"RecognitionStatus":"InitialSilenceTimeout"}`}
	p := newTestAzure(t, fake)

	out, err := p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if out.Kind != OutcomeNoMatch {
		t.Fatalf("Expected no-match outcome, got %s", out.Kind)
	}
	if !errors.Is(out.Err(), ErrNoSpeechDetected) {
		t.Errorf("Expected ErrNoSpeechDetected, got %v", out.Err())
	}
}

func TestAzureTranscribeUnauthorized(t *testing.T) {
	fake := &azureFake{recognizeCode: http.StatusUnauthorized}
	p := newTestAzure(t, fake)

	out, err := p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if out.Kind != OutcomeCanceled || out.Reason != ReasonUnauthorized {
		t.Fatalf("Expected canceled/Unauthorized, got %s/%s", out.Kind, out.Reason)
	}
	if !strings.Contains(out.Detail, "Access denied") {
		t.Errorf("Expected provider message in detail, got %q", out.Detail)
	}
	if !errors.Is(out.Err(), ErrRecognitionCanceled) {
		t.Errorf("Expected ErrRecognitionCanceled, got %v", out.Err())
	}
}

func TestAzureTranscribeFallsBackToFirstTranslation(t *testing.T) {
	fake := &azureFake{
		recognition:  `{"RecognitionStatus":"Success","DisplayText":"Hello."}`,
		translations: `[{"translations":[{"text":"Hallo.","to":"de"}]}]`,
	}
	p := newTestAzure(t, fake)

	out, err := p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "yue",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if out.Kind != OutcomeTranslated || !out.Fallback {
		t.Fatalf("Expected translated fallback, got %s fallback=%v", out.Kind, out.Fallback)
	}
	if out.Text != "Hallo." {
		t.Errorf("Expected fallback text, got %q", out.Text)
	}
}

func TestAzureTranscribeRejectsUnnormalizedAudio(t *testing.T) {
	p := newTestAzure(t, &azureFake{})
	if _, err := p.Transcribe(context.Background(), TranscriptionRequest{SourceLanguage: "en-US", TargetLanguage: "fr"}); err == nil {
		t.Fatal("Expected error for zero NormalizedAudio")
	}
}

func TestAzureTranscribeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	p, err := NewAzureProvider(config.Speech{APIKey: "k", STTEndpoint: srv.URL, TTSEndpoint: srv.URL}, nil, nil)
	if err != nil {
		t.Fatalf("NewAzureProvider failed: %v", err)
	}
	_, err = p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "fr",
	})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
}

func TestAzureSynthesizeMappedVoice(t *testing.T) {
	fake := &azureFake{}
	p := newTestAzure(t, fake)
	outPath := filepath.Join(t.TempDir(), "out", "synthesized_audio.wav")

	out, err := p.Synthesize(context.Background(), SynthesisRequest{
		Text:       "Bonjour & bienvenue",
		Language:   "fr",
		OutputPath: outPath,
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if out.Kind != OutcomeCompleted {
		t.Fatalf("Expected completed outcome, got %s", out.Kind)
	}
	if out.Voice != "fr-FR-HenriNeural" {
		t.Errorf("Expected fr-FR-HenriNeural, got %s", out.Voice)
	}
	ssml := fake.ssml()
	if !strings.Contains(ssml, `<voice name="fr-FR-HenriNeural">`) {
		t.Errorf("SSML does not name the voice: %s", ssml)
	}
	if !strings.Contains(ssml, `xml:lang="fr-FR"`) {
		t.Errorf("SSML does not carry the voice locale: %s", ssml)
	}
	if !strings.Contains(ssml, "Bonjour &amp; bienvenue") {
		t.Errorf("SSML text was not escaped: %s", ssml)
	}
	if fake.voicesCalls.Load() != 0 {
		t.Errorf("Voices list should not be fetched for a mapped language")
	}

	saved, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Expected audio at output path: %v", err)
	}
	if string(saved) != "RIFFfakeaudio" || out.Path != outPath {
		t.Errorf("Unexpected saved audio %q at %s", saved, out.Path)
	}
}

func TestAzureSynthesizeDefaultVoiceIsCached(t *testing.T) {
	fake := &azureFake{}
	p := newTestAzure(t, fake)

	for i := 0; i < 2; i++ {
		out, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "Habari", Language: "sw-TZ"})
		if err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
		if out.Voice != "sw-TZ-DaudiNeural" {
			t.Errorf("Expected sw-TZ-DaudiNeural, got %s", out.Voice)
		}
	}
	if n := fake.voicesCalls.Load(); n != 1 {
		t.Errorf("Expected voices list to be fetched once, got %d", n)
	}
}

func TestAzureSynthesizeUnknownLanguage(t *testing.T) {
	p := newTestAzure(t, &azureFake{})

	out, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "x", Language: "tlh"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if out.Kind != OutcomeCanceled {
		t.Fatalf("Expected canceled outcome, got %s", out.Kind)
	}
	if !errors.Is(out.Err(), ErrSynthesisCanceled) {
		t.Errorf("Expected ErrSynthesisCanceled, got %v", out.Err())
	}
}

func TestAzureSynthesizeCanceled(t *testing.T) {
	p := newTestAzure(t, &azureFake{ttsCode: http.StatusTooManyRequests})

	out, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "Bonjour", Language: "fr"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if out.Kind != OutcomeCanceled || out.Reason != ReasonTooManyRequests {
		t.Fatalf("Expected canceled/TooManyRequests, got %s/%s", out.Kind, out.Reason)
	}
	if len(out.Audio) != 0 {
		t.Error("Canceled outcome should carry no audio")
	}
}

func TestAzureListVoicesDoesNotSerializeCallers(t *testing.T) {
	fake := &azureFake{voicesGate: make(chan struct{})}
	p := newTestAzure(t, fake)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.listVoices(context.Background())
			errs <- err
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.voicesCalls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	inFlight := fake.voicesCalls.Load()
	close(fake.voicesGate)
	wg.Wait()
	close(errs)

	if inFlight != 2 {
		t.Errorf("Expected both fetches in flight at once, got %d", inFlight)
	}
	for err := range errs {
		if err != nil {
			t.Errorf("listVoices failed: %v", err)
		}
	}
	if voices, err := p.listVoices(context.Background()); err != nil || len(voices) != 2 {
		t.Errorf("Expected cached voices, got %v (%v)", voices, err)
	}
	if n := fake.voicesCalls.Load(); n != 2 {
		t.Errorf("Expected cached list to be reused, got %d fetches", n)
	}
}

func TestAzureListVoicesRetriesAfterFailure(t *testing.T) {
	fake := &azureFake{}
	var fail atomic.Bool
	fail.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("/cognitiveservices/voices/list", func(w http.ResponseWriter, r *http.Request) {
		fake.voicesCalls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"ShortName":"sw-TZ-DaudiNeural","Locale":"sw-TZ"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewAzureProvider(config.Speech{APIKey: "key-123", STTEndpoint: srv.URL, TTSEndpoint: srv.URL}, nil, nil)
	if err != nil {
		t.Fatalf("NewAzureProvider failed: %v", err)
	}

	var cancel *CancellationError
	if _, err := p.listVoices(context.Background()); !errors.As(err, &cancel) || cancel.Reason != ReasonServiceUnavailable {
		t.Fatalf("Expected service-unavailable cancellation, got %v", err)
	}
	fail.Store(false)
	if voices, err := p.listVoices(context.Background()); err != nil || len(voices) != 1 {
		t.Fatalf("Expected retry to succeed, got %v (%v)", voices, err)
	}
}
