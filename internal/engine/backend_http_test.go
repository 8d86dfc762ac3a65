package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func f32le(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func newSidecar(t *testing.T, healthStatus int, got *synthesizeRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("use_gpu") == "" {
			t.Errorf("expected use_gpu query parameter")
		}
		w.Header().Set("X-Sample-Rate", "22050")
		w.WriteHeader(healthStatus)
	})
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got.Text == "fail" {
			http.Error(w, "pipeline error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		payload := f32le(0.25, -0.5, 1)
		// split mid-sample across two writes
		_, _ = w.Write(payload[:6])
		w.(http.Flusher).Flush()
		_, _ = w.Write(payload[6:])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackend_LoadAndGenerate(t *testing.T) {
	var got synthesizeRequest
	srv := newSidecar(t, http.StatusOK, &got)
	e := newTestEngine(NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL + "/", SampleRate: 24000}), 1, nil)
	res, err := e.Synthesize(context.Background(), Request{Text: "hello", Voice: "bf_emma", Speed: 1.5})
	if err != nil { t.Fatalf("synthesize: %v", err) }
	if res.SampleRate != 22050 { t.Fatalf("expected sidecar sample rate, got %d", res.SampleRate) }
	want := []float32{0.25, -0.5, 1}
	if len(res.Samples) != 3 { t.Fatalf("samples: %v", res.Samples) }
	for i := range want {
		if res.Samples[i] != want[i] { t.Fatalf("sample %d: %v", i, res.Samples[i]) }
	}
	if got.Text != "hello" || got.Voice != "bf_emma" || got.Speed != 1.5 || got.LangCode != "b" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestHTTPBackend_UnhealthyLoadFails(t *testing.T) {
	var got synthesizeRequest
	srv := newSidecar(t, http.StatusServiceUnavailable, &got)
	e := newTestEngine(NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL}), 1, nil)
	if err := e.EnsureLoaded(context.Background()); !IsLoadError(err) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

func TestHTTPBackend_SynthesisErrorStatus(t *testing.T) {
	var got synthesizeRequest
	srv := newSidecar(t, http.StatusOK, &got)
	e := newTestEngine(NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL}), 1, nil)
	if _, err := e.Synthesize(context.Background(), Request{Text: "fail", Voice: "af_heart", Speed: 1}); !IsSynthesisError(err) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
}

func TestHTTPBackend_EmptyBaseURL(t *testing.T) {
	if _, err := NewHTTPBackend(HTTPBackendConfig{}).Load(context.Background()); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
