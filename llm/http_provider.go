package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/skanga/conductor/core"
)

// HTTPProvider is an adapter for OpenAI-compatible chat-completions
// endpoints. It performs a single call per Generate; retry, rate limiting,
// and circuit breaking belong to ResilientProvider.
type HTTPProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string

	httpClient *http.Client
	logger     core.Logger

	systemPrompt string
	temperature  float32
	maxTokens    int
}

// HTTPProviderOption configures an HTTPProvider
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.httpClient = client
	}
}

// WithHTTPLogger sets the logger
func WithHTTPLogger(logger core.Logger) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			p.logger = cal.WithComponent("framework/llm")
		} else if logger != nil {
			p.logger = logger
		}
	}
}

// WithSystemPrompt sets a system message sent with every request
func WithSystemPrompt(prompt string) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.systemPrompt = prompt
	}
}

// WithSampling sets temperature and max completion tokens
func WithSampling(temperature float32, maxTokens int) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.temperature = temperature
		p.maxTokens = maxTokens
	}
}

// NewHTTPProvider creates an adapter for an OpenAI-compatible endpoint.
// name labels the vendor in errors and breaker keys.
func NewHTTPProvider(name, model, apiKey, baseURL string, opts ...HTTPProviderOption) *HTTPProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	p := &HTTPProvider{
		name:    name,
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger:      &core.NoOpLogger{},
		temperature: 0.7,
		maxTokens:   4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the vendor name
func (p *HTTPProvider) Name() string { return p.name }

// Model returns the model name
func (p *HTTPProvider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a prompt and returns the model's text output
func (p *HTTPProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", &ProviderError{
			Code:     CodeAuthFailed,
			Provider: p.name,
			Model:    p.model,
			Message:  "API key not configured",
		}
	}

	messages := []chatMessage{}
	if p.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", &ProviderError{
			Code:     CodeInvalidRequest,
			Provider: p.name,
			Model:    p.model,
			Message:  "failed to marshal request",
			Err:      err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{
			Code:     CodeInvalidRequest,
			Provider: p.name,
			Model:    p.model,
			Message:  "failed to create request",
			Err:      err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.logger.DebugWithContext(ctx, "LM request", map[string]interface{}{
		"operation":     "llm_http_request",
		"provider":      p.name,
		"model":         p.model,
		"prompt_length": len(prompt),
	})

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", p.transportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", p.transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", p.statusError(resp, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{
			Code:     CodeNetworkError,
			Provider: p.name,
			Model:    p.model,
			Message:  "failed to parse response",
			Err:      err,
		}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{
			Code:     CodeServiceUnavailable,
			Provider: p.name,
			Model:    p.model,
			Message:  "empty response from provider",
		}
	}

	return parsed.Choices[0].Message.Content, nil
}

// IsTransient implements VendorClassifier for the resilient wrapper
func (p *HTTPProvider) IsTransient(err error) bool {
	if pe, ok := AsProviderError(err); ok {
		return pe.Retryable()
	}
	return false
}

// transportError maps network-level failures to the taxonomy
func (p *HTTPProvider) transportError(err error) error {
	code := CodeNetworkError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = CodeTimeout
	}
	return &ProviderError{
		Code:     code,
		Provider: p.name,
		Model:    p.model,
		Err:      err,
	}
}

// statusError maps an HTTP status to the taxonomy
func (p *HTTPProvider) statusError(resp *http.Response, body []byte) error {
	pe := &ProviderError{
		Provider: p.name,
		Model:    p.model,
		Message:  errorMessage(body, resp.StatusCode),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		pe.Code = CodeAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		pe.Code = CodeRateLimitExceeded
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil {
				pe.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		pe.Code = CodeSizeExceeded
	case resp.StatusCode == http.StatusRequestTimeout:
		pe.Code = CodeTimeout
	case resp.StatusCode >= 500:
		pe.Code = CodeServiceUnavailable
	default:
		pe.Code = CodeInvalidRequest
	}
	return pe
}

// errorMessage extracts the vendor error message when the body is the usual
// {"error": {"message": ...}} envelope.
func errorMessage(body []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}
