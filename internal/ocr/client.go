package ocr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"casheye/internal/cache"
	"casheye/internal/log"
)

// FallbackModels is returned by ListModels when the provider cannot be
// asked.
var FallbackModels = []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro"}

const (
	defaultTimeout  = 90 * time.Second
	maxResponseSize = 8 << 20
)

type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	CacheSize         int
	CacheTTL          time.Duration
}

// Observer is told the outcome and latency of every Analyze call.
type Observer func(kind ErrorKind, cached bool, elapsed time.Duration)

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	cache   cache.Cache[string]
	observe Observer
	logger  *log.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentOCR) }
}

// WithCache replaces the LRU built from Config.
func WithCache(ch cache.Cache[string]) Option {
	return func(c *Client) { c.cache = ch }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: log.Default(log.ComponentOCR),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		c.cache = cache.NewLRUCache[string](cfg.CacheSize, cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ocr",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.As(err, new(*decodeError))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) Model() string {
	return c.cfg.Model
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// Analyze sends prompt and images to the model and returns its raw text.
// The call is bounded by the configured timeout and by ctx.
func (c *Client) Analyze(ctx context.Context, prompt string, images []Image) Result {
	start := time.Now()
	res := c.analyze(ctx, prompt, images)
	if c.observe != nil {
		c.observe(res.Err, res.Cached, time.Since(start))
	}
	if !res.OK() {
		c.logger.WarnContext(ctx, "Receipt analysis failed",
			"kind", res.Err.String(), log.FieldReason, res.Detail, "model", res.Model)
	}
	return res
}

func (c *Client) analyze(ctx context.Context, prompt string, images []Image) Result {
	model := c.cfg.Model
	if len(images) == 0 {
		return Result{Model: model}
	}

	key := Fingerprint(model, prompt, images)
	if c.cache != nil {
		if text, ok := c.cache.Get(key); ok {
			return Result{Text: text, Model: model, Cached: true}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return failed(model, classify(ctx, err), err.Error())
		}
	}

	text, err := c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, prompt, images)
	})
	if err != nil {
		return failed(model, classify(ctx, err), err.Error())
	}

	if c.cache != nil {
		c.cache.Set(key, text)
	}
	return Result{Text: text, Model: model}
}

func classify(ctx context.Context, err error) ErrorKind {
	var se *statusError
	var de *decodeError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindCircuitOpen
	case errors.As(err, &se):
		return KindStatus
	case errors.As(err, &de):
		return KindDecode
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return KindCancelled
	}
	// rate.Limiter.Wait refuses up front when the deadline cannot be met.
	if strings.Contains(err.Error(), "would exceed context deadline") {
		return KindTimeout
	}
	return KindTransport
}

type (
	inlineData struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	}

	part struct {
		Text       string      `json:"text,omitempty"`
		InlineData *inlineData `json:"inline_data,omitempty"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	generationConfig struct {
		ResponseMIMEType string  `json:"response_mime_type"`
		Temperature      float64 `json:"temperature"`
	}

	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	generateResponse struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
)

func (c *Client) generate(ctx context.Context, prompt string, images []Image) (string, error) {
	parts := []part{{Text: prompt}}
	for _, img := range images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: generationConfig{ResponseMIMEType: "application/json", Temperature: 0.1},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &decodeError{err}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &decodeError{errors.New("no candidates")}
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redact(err, c.cfg.APIKey)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &statusError{code: resp.StatusCode, body: snippet}
	}
	return raw, nil
}

// redact keeps the API key out of logged *url.Error values.
func redact(err error, key string) error {
	var ue *url.Error
	if key == "" || !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: strings.ReplaceAll(ue.URL, url.QueryEscape(key), "REDACTED"), Err: ue.Err}
}

type modelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// ListModels returns the sorted names of models that support content
// generation. Any failure yields FallbackModels.
func (c *Client) ListModels(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	fallback := func(err error) []string {
		c.logger.WarnContext(ctx, "Model list unavailable, using fallback", log.FieldError, err)
		return slices.Clone(FallbackModels)
	}

	endpoint := fmt.Sprintf("%s/models?key=%s", c.cfg.BaseURL, url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fallback(err)
	}
	raw, err := c.do(req)
	if err != nil {
		return fallback(err)
	}
	var list modelList
	if err := json.Unmarshal(raw, &list); err != nil {
		return fallback(err)
	}

	var names []string
	for _, m := range list.Models {
		if slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			names = append(names, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	slices.Sort(names)
	return names
}

// Fingerprint identifies an analysis request for caching.
func Fingerprint(model, prompt string, images []Image) string {
	h := sha256.New()
	io.WriteString(h, model)
	h.Write([]byte{0})
	io.WriteString(h, prompt)
	for _, img := range images {
		h.Write([]byte{0})
		io.WriteString(h, img.MIMEType)
		h.Write([]byte{0})
		h.Write(img.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
