package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"canto/internal/config"
)

const testGoogleKey = "AIzaSy" + "abcdefghijklmnopqrstuvwxyz0123456"

func newTestGoogle(t *testing.T, mux *http.ServeMux) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewGoogleProvider(config.Speech{Provider: config.ProviderGoogle, GoogleKey: testGoogleKey}, nil, nil)
	if err != nil {
		t.Fatalf("NewGoogleProvider failed: %v", err)
	}
	p.recognizeURL = srv.URL + "/recognize"
	p.translateURL = srv.URL + "/translate"
	p.synthesizeURL = srv.URL + "/synthesize"
	return p
}

func TestGoogleTranscribeTranslated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recognize", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != testGoogleKey {
			t.Errorf("Expected API key in query")
		}
		var req googleRecognizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Config.SampleRateHertz != 16000 || req.Config.LanguageCode != "en-US" {
			t.Errorf("Unexpected recognition config %+v", req.Config)
		}
		w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"Hello"}]},{"alternatives":[{"transcript":"world."}]}]}`))
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req googleTranslateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Target != "fr" || len(req.Q) != 1 || req.Q[0] != "Hello world." {
			t.Errorf("Unexpected translate request %+v", req)
		}
		w.Write([]byte(`{"data":{"translations":[{"translatedText":"Bonjour le monde."}]}}`))
	})
	p := newTestGoogle(t, mux)

	out, err := p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if out.Kind != OutcomeTranslated || out.Text != "Bonjour le monde." {
		t.Fatalf("Unexpected outcome %s %q", out.Kind, out.Text)
	}
	if out.Recognized != "Hello world." {
		t.Errorf("Expected joined transcript, got %q", out.Recognized)
	}
}

func TestGoogleTranscribeNoResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recognize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	p := newTestGoogle(t, mux)

	out, err := p.Transcribe(context.Background(), TranscriptionRequest{
		Audio:          normalizedFixture(t),
		SourceLanguage: "en-US",
		TargetLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if out.Kind != OutcomeNoMatch {
		t.Errorf("Expected no-match outcome, got %s", out.Kind)
	}
}

func TestGoogleSynthesize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req googleSynthesizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Voice.Name != "fr-FR-Neural2-B" || req.Voice.LanguageCode != "fr-FR" {
			t.Errorf("Unexpected voice %+v", req.Voice)
		}
		resp, _ := json.Marshal(googleSynthesizeResponse{AudioContent: base64.StdEncoding.EncodeToString([]byte("RIFFgoogle"))})
		w.Write(resp)
	})
	p := newTestGoogle(t, mux)

	out, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "Bonjour", Language: "fr"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(out.Audio) != "RIFFgoogle" {
		t.Errorf("Unexpected audio %q", out.Audio)
	}
}

func TestGoogleSynthesizeForbidden(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API not enabled","status":"PERMISSION_DENIED"}}`))
	})
	p := newTestGoogle(t, mux)

	out, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "Bonjour", Language: "fr"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if out.Kind != OutcomeCanceled || out.Reason != ReasonUnauthorized {
		t.Fatalf("Expected canceled/Unauthorized, got %s/%s", out.Kind, out.Reason)
	}
	if !strings.Contains(out.Detail, "API not enabled") {
		t.Errorf("Expected provider message, got %q", out.Detail)
	}
}
