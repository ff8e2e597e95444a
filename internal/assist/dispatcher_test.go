package assist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okCompletion(content string) chatCompletionResponse {
	return chatCompletionResponse{
		Choices: []chatChoice{{Message: Message{Role: "assistant", Content: content}}},
		Usage:   Usage{PromptTokens: 15, CompletionTokens: 25, TotalTokens: 40},
	}
}

func testCall(baseURL string) *Call {
	return &Call{
		BaseURL:     baseURL,
		APIKey:      "sk-x",
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   2000,
	}
}

func TestDispatch_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(okCompletion("Hello!"))
	}))
	defer server.Close()

	d := NewDispatcher()
	completion, err := d.Dispatch(context.Background(), testCall(server.URL))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if completion.Content != "Hello!" {
		t.Errorf("Expected 'Hello!', got %s", completion.Content)
	}
	if completion.Usage.TotalTokens != 40 {
		t.Errorf("Expected 40 total tokens, got %d", completion.Usage.TotalTokens)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Expected POST to /chat/completions, got %s", gotPath)
	}
	if gotAuth != "Bearer sk-x" {
		t.Errorf("Expected bearer auth, got %s", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini in body, got %s", gotBody.Model)
	}
	if gotBody.Temperature != 0.7 || gotBody.MaxTokens != 2000 {
		t.Errorf("Expected temperature/max_tokens in body, got %v/%d", gotBody.Temperature, gotBody.MaxTokens)
	}
}

func TestDispatch_TrailingSlashBaseURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(okCompletion("ok"))
	}))
	defer server.Close()

	d := NewDispatcher()
	if _, err := d.Dispatch(context.Background(), testCall(server.URL+"/")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Expected normalized path, got %s", gotPath)
	}
}

func TestDispatch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidCredential},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			d := NewDispatcher()
			_, err := d.Dispatch(context.Background(), testCall(server.URL))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDispatch_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), testCall(server.URL))

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if provErr.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", provErr.Status)
	}
	if provErr.Detail != "upstream exploded" {
		t.Errorf("Expected detail preserved, got %q", provErr.Detail)
	}
}

func TestDispatch_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{})
	}))
	defer server.Close()

	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), testCall(server.URL))
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Expected ErrInvalidResponse, got %v", err)
	}
}

func TestDispatch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), testCall(server.URL))
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Expected ErrInvalidResponse, got %v", err)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(okCompletion("too late"))
	}))
	defer server.Close()

	d := NewDispatcherWithClient(&http.Client{Timeout: 20 * time.Millisecond})
	_, err := d.Dispatch(context.Background(), testCall(server.URL))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}
