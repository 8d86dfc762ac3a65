package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPBackendConfig configures the inference sidecar client.
type HTTPBackendConfig struct {
	BaseURL       string
	SampleRate    int
	ModelCacheDir string
	UseGPU        bool
	// ConnectTimeout bounds dialing; RequestTimeout bounds one synthesis.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// Client overrides the default transport (tests).
	Client *http.Client
}

// httpBackend talks to a Kokoro inference sidecar over HTTP. The sidecar
// streams raw little-endian float32 PCM for each synthesis.
type httpBackend struct {
	cfg    HTTPBackendConfig
	client *http.Client
}

// NewHTTPBackend constructs a sidecar-backed Backend.
func NewHTTPBackend(cfg HTTPBackendConfig) Backend {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cli := cfg.Client
	if cli == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Deadlines come from the request context.
		cli = &http.Client{Transport: tr, Timeout: 0}
	}
	return &httpBackend{cfg: cfg, client: cli}
}

func (b *httpBackend) Name() string { return "http" }

// Load asks the sidecar to initialize the pipeline and waits for it to report
// healthy.
func (b *httpBackend) Load(ctx context.Context) (Model, error) {
	if b.cfg.BaseURL == "" {
		return nil, errors.New("http backend: empty base url")
	}
	q := url.Values{}
	if b.cfg.ModelCacheDir != "" {
		q.Set("model_cache_dir", b.cfg.ModelCacheDir)
	}
	q.Set("use_gpu", strconv.FormatBool(b.cfg.UseGPU))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/health?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http backend: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http backend: health status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	rate := b.cfg.SampleRate
	if v := resp.Header.Get("X-Sample-Rate"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rate = n
		}
	}
	return &httpModel{backend: b, sampleRate: rate}, nil
}

type httpModel struct {
	backend    *httpBackend
	sampleRate int
}

type synthesizeRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	LangCode string  `json:"lang_code,omitempty"`
}

func (m *httpModel) SampleRate() int { return m.sampleRate }

func (m *httpModel) Close() error {
	if tr, ok := m.backend.client.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
	return nil
}

// Generate posts the job and delivers each block read from the stream as one
// chunk. A trailing partial sample is carried over to the next block.
func (m *httpModel) Generate(ctx context.Context, r Request, onChunk func([]float32) error) error {
	if m.backend.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.backend.cfg.RequestTimeout)
		defer cancel()
	}
	body, err := json.Marshal(synthesizeRequest{Text: r.Text, Voice: r.Voice, Speed: r.Speed, LangCode: langCode(r.Voice)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.backend.cfg.BaseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")
	resp, err := m.backend.client.Do(req)
	if err != nil {
		return fmt.Errorf("http backend: synthesize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http backend: synthesize status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}
	return decodeF32Stream(bufio.NewReaderSize(resp.Body, 32<<10), onChunk)
}

func decodeF32Stream(rd io.Reader, onChunk func([]float32) error) error {
	buf := make([]byte, 16<<10)
	var carry []byte
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) / 4 * 4
			if whole > 0 {
				chunk := make([]float32, whole/4)
				for i := range chunk {
					chunk[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
				}
				if cerr := onChunk(chunk); cerr != nil {
					return cerr
				}
			}
			carry = append([]byte(nil), data[whole:]...)
		}
		if errors.Is(err, io.EOF) {
			if len(carry) != 0 {
				return fmt.Errorf("http backend: truncated sample stream (%d trailing bytes)", len(carry))
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("http backend: read stream: %w", err)
		}
	}
}

// langCode derives the pipeline language from the voice prefix: the first
// letter of a Kokoro voice id names its language ("a" American English,
// "b" British English).
func langCode(voice string) string {
	if voice == "" {
		return ""
	}
	return voice[:1]
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
