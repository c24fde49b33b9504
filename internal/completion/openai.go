package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
)

// Defaults for OpenAIClient.
const (
	DefaultBaseURL           = "https://api.openai.com"
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxTokens         = 400
	DefaultTemperature       = 0.2
	DefaultTimeout           = 60 * time.Second
	DefaultMaxRetries        = 2
	DefaultRequestsPerSecond = 2.0

	breakerFailures = 5
	breakerReset    = 30 * time.Second
	maxErrorBody    = 64 * 1024
)

// Config configures an OpenAIClient.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string `json:"-"`
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int

	// RequestsPerSecond limits outgoing calls; <= 0 disables the limiter.
	RequestsPerSecond float64

	// RetryDelay is the first backoff; zero uses the retry default.
	RetryDelay time.Duration
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		MaxTokens:         DefaultMaxTokens,
		Temperature:       DefaultTemperature,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		RequestsPerSecond: DefaultRequestsPerSecond,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIClient implements Completer against /v1/chat/completions.
type OpenAIClient struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *dcerrors.CircuitBreaker
	retry      dcerrors.RetryConfig
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client. A missing API key is not an error here;
// each Complete call fails instead.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retry := dcerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}
	retry.ShouldRetry = func(err error) bool {
		var ce *CompletionError
		return errors.As(err, &ce) && ce.Retryable()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &OpenAIClient{
		cfg:      cfg,
		endpoint: chatEndpoint(cfg.BaseURL),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		breaker: dcerrors.NewCircuitBreaker("completion",
			dcerrors.WithMaxFailures(breakerFailures),
			dcerrors.WithResetTimeout(breakerReset)),
		retry: retry,
	}
}

// chatEndpoint accepts base URLs with or without the /v1 suffix.
func chatEndpoint(base string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/chat/completions"
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Complete sends one system + user exchange and returns the trimmed reply.
// Every failure is a *CompletionError.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &CompletionError{Detail: "OPENAI_API_KEY is not set"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &CompletionError{Detail: "rate limiter: " + err.Error(), Cause: err}
		}
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	start := time.Now()
	reply, err := dcerrors.CircuitExecute(c.breaker, func() (string, error) {
		return dcerrors.RetryWithResult(ctx, c.retry, func() (string, error) {
			return c.doRequest(ctx, req)
		})
	}, nil)
	if err != nil {
		return "", c.classify(err)
	}

	slog.Debug("completion_succeeded",
		slog.String("model", c.cfg.Model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("reply_chars", len(reply)))
	return reply, nil
}

func (c *OpenAIClient) classify(err error) *CompletionError {
	var ce *CompletionError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, dcerrors.ErrCircuitOpen):
		return &CompletionError{Detail: "completion provider unavailable after repeated failures", Cause: err}
	default:
		return &CompletionError{Detail: err.Error(), Cause: err}
	}
}

func (c *OpenAIClient) doRequest(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", &CompletionError{Detail: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &CompletionError{Detail: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &CompletionError{Detail: fmt.Sprintf("request failed: %v", err), Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*16))
	if err != nil {
		return "", &CompletionError{StatusCode: resp.StatusCode, Detail: "failed to read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &CompletionError{StatusCode: resp.StatusCode, Detail: errorDetail(resp.StatusCode, data)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &CompletionError{StatusCode: resp.StatusCode, Detail: "failed to parse response", Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &CompletionError{StatusCode: resp.StatusCode, Detail: "response contained no choices"}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func errorDetail(status int, body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return http.StatusText(status)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(status), text)
}
