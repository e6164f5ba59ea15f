// Package chutes implements intel.Completer against an OpenAI-compatible
// chat-completions endpoint, with Retry-After driven backoff for 429s.
package chutes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/lookout/internal/intel"
)

// DefaultEndpoint is the production chat-completions endpoint.
const DefaultEndpoint = "https://llm.chutes.ai/v1/chat/completions"

const maxErrorBody = 2048

// Retry controls 429 handling. The first retry waits the server-supplied
// Retry-After (BaseDelay when the header is absent); each subsequent retry
// doubles the delay. Sleep and OnRetry are injectable so backoff timing is
// testable without real time.
type Retry struct {
	// MaxAttempts is the total request budget, including the first try.
	MaxAttempts int

	// BaseDelay is used when the 429 response carries no Retry-After.
	BaseDelay time.Duration

	// Sleep pauses between attempts. Nil means a context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, if set, is invoked before each backoff wait.
	OnRetry func(attempt int, delay time.Duration)
}

// DefaultRetry matches the production backoff policy.
func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// RateLimitError reports a call that stayed rate-limited through the whole
// retry budget. Terminal for the item; not retried further within the call.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts", e.Attempts)
}

// StatusError is a non-2xx response other than 429. Never retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion error %d: %s", e.StatusCode, e.Body)
}

// Client calls the chat-completions endpoint. Stateless; every call is
// independent.
type Client struct {
	endpoint   string
	apiKey     string
	retry      Retry
	httpClient *http.Client
	logger     log.Logger
}

// New creates a client for the given endpoint, authorizing with apiKey as a
// bearer token.
func New(endpoint, apiKey string, retry Retry, logger log.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 2 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		retry:    retry,
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Wire types for the chat-completions API.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// rateLimitedError is the internal signal that one attempt hit a 429.
type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

// Complete sends one chat completion request, retrying on 429 per the
// client's Retry policy. Transport errors and non-429 HTTP errors are
// returned immediately without retry.
func (c *Client) Complete(ctx context.Context, req *intel.ChatRequest) (*intel.ChatResult, error) {
	body, err := json.Marshal(toWire(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		result, err := c.do(ctx, body)
		if err == nil {
			return result, nil
		}

		var rl *rateLimitedError
		if !errors.As(err, &rl) {
			return nil, err
		}

		// First retry honors Retry-After as-is; later ones double it per
		// attempt so repeated 429s back off exponentially.
		delay := rl.retryAfter
		if attempt > 0 {
			delay = rl.retryAfter * (1 << attempt)
		}

		c.logger.Warn(ctx, "rate limited, backing off",
			"attempt", attempt+1,
			"max_attempts", c.retry.MaxAttempts,
			"delay", delay.String(),
		)
		if c.retry.OnRetry != nil {
			c.retry.OnRetry(attempt+1, delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &RateLimitError{Attempts: c.retry.MaxAttempts}
}

func toWire(req *intel.ChatRequest) chatRequest {
	wire := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	return wire
}

func (c *Client) do(ctx context.Context, body []byte) (*intel.ChatResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &rateLimitedError{retryAfter: c.retryAfter(resp)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	choice := out.Choices[0]
	return &intel.ChatResult{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: choice.FinishReason,
	}, nil
}

// retryAfter reads the server-supplied delay, falling back to BaseDelay.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.retry.BaseDelay
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.retry.Sleep != nil {
		return c.retry.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
