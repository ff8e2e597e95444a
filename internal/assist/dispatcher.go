package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DispatchTimeout bounds every outbound completion call.
const DispatchTimeout = 45 * time.Second

// Call carries everything the dispatcher needs for one completion request.
type Call struct {
	BaseURL     string
	APIKey      string
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage mirrors the OpenAI usage block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the unwrapped assistant reply.
type Completion struct {
	Content string
	Usage   Usage
}

// Wire types for the OpenAI-compatible chat-completions contract. The shapes
// are a hard external contract and must not drift.
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type chatChoice struct {
	Message Message `json:"message"`
}

// Dispatcher issues a single POST to {base_url}/chat/completions. It performs
// no retries; fallback policy belongs to the caller.
type Dispatcher struct {
	httpClient *http.Client
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: DispatchTimeout},
	}
}

// NewDispatcherWithClient is for tests that need a short timeout or a custom
// transport.
func NewDispatcherWithClient(client *http.Client) *Dispatcher {
	return &Dispatcher{httpClient: client}
}

func (d *Dispatcher) Dispatch(ctx context.Context, call *Call) (*Completion, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       call.Model,
		Messages:    call.Messages,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	url := strings.TrimRight(call.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+call.APIKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, ErrInvalidCredential
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		default:
			return nil, &ProviderError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
		}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, ErrInvalidResponse
	}
	if len(decoded.Choices) == 0 {
		return nil, ErrInvalidResponse
	}

	return &Completion{
		Content: decoded.Choices[0].Message.Content,
		Usage:   decoded.Usage,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
