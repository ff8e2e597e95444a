package tracing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient("", "pk", "sk", testLogger()); err == nil {
		t.Error("Expected error for empty host")
	}
	if _, err := NewClient("https://cloud.langfuse.com", "", "sk", testLogger()); err == nil {
		t.Error("Expected error for empty public key")
	}
	if _, err := NewClient("https://cloud.langfuse.com", "pk", "", testLogger()); err == nil {
		t.Error("Expected error for empty secret key")
	}

	client, err := NewClient("https://cloud.langfuse.com/", "pk", "sk", testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Host() != "https://cloud.langfuse.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.Host())
	}
}

func TestClient_BatchShape(t *testing.T) {
	var captured ingestionBatch
	var path, user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusMultiStatus)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "pk-test", "sk-test", testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	gen, err := client.StartGeneration(Observation{
		Name:        "Ai Assistant - Sales Order",
		User:        "alice",
		Source:      "ai_assistant",
		SubjectType: "Sales Order",
		SubjectID:   "SO-0001",
		Model:       "gpt-4o-mini",
		Input:       "What is 2+2?",
	})
	if err != nil {
		t.Fatalf("StartGeneration failed: %v", err)
	}
	if err := gen.End("4", Usage{Input: 10, Output: 1, Total: 11}); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if client.Pending() != 2 {
		t.Fatalf("Expected 2 buffered events, got %d", client.Pending())
	}

	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if path != "/api/public/ingestion" {
		t.Errorf("Unexpected ingestion path %s", path)
	}
	if user != "pk-test" || pass != "sk-test" {
		t.Errorf("Expected basic auth pk-test/sk-test, got %s/%s", user, pass)
	}
	if len(captured.Batch) != 2 {
		t.Fatalf("Expected batch of 2 events, got %d", len(captured.Batch))
	}
	if captured.Batch[0].Type != "trace-create" || captured.Batch[1].Type != "generation-create" {
		t.Errorf("Unexpected event types %s, %s", captured.Batch[0].Type, captured.Batch[1].Type)
	}

	// Body fields round-trip through any; re-marshal to inspect them.
	var trace traceBody
	raw, _ := json.Marshal(captured.Batch[0].Body)
	_ = json.Unmarshal(raw, &trace)
	if trace.UserID != "alice" {
		t.Errorf("Expected trace userId alice, got %s", trace.UserID)
	}
	if trace.Metadata["source"] != "ai_assistant" || trace.Metadata["subject_id"] != "SO-0001" {
		t.Errorf("Unexpected trace metadata %v", trace.Metadata)
	}
	if len(trace.Tags) != 2 || trace.Tags[0] != "ai_assistant" || trace.Tags[1] != "Sales Order" {
		t.Errorf("Unexpected trace tags %v", trace.Tags)
	}

	var generation generationBody
	raw, _ = json.Marshal(captured.Batch[1].Body)
	_ = json.Unmarshal(raw, &generation)
	if generation.TraceID != trace.ID {
		t.Errorf("Expected generation linked to trace %s, got %s", trace.ID, generation.TraceID)
	}
	if generation.Output != "4" {
		t.Errorf("Expected generation output '4', got %v", generation.Output)
	}
	if generation.Usage == nil || generation.Usage.Total != 11 {
		t.Errorf("Unexpected usage %+v", generation.Usage)
	}
	if generation.Model != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %s", generation.Model)
	}

	if client.Pending() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", client.Pending())
	}
}

func TestClient_SourceDefaultsToUnknown(t *testing.T) {
	client, err := NewClient("https://example.com", "pk", "sk", testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	gen, err := client.StartGeneration(Observation{Name: "AI Completion"})
	if err != nil {
		t.Fatalf("StartGeneration failed: %v", err)
	}
	if gen.trace.Metadata["source"] != "unknown" {
		t.Errorf("Expected source metadata 'unknown', got %v", gen.trace.Metadata["source"])
	}
	if len(gen.trace.Tags) != 0 {
		t.Errorf("Expected no tags, got %v", gen.trace.Tags)
	}
}

func TestClient_FlushRequeuesOnFailure(t *testing.T) {
	fail := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "pk", "sk", testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	gen, _ := client.StartGeneration(Observation{Name: "n"})
	_ = gen.End("out", Usage{})

	if err := client.Flush(context.Background()); err == nil {
		t.Fatal("Expected flush error from failing backend")
	}
	if client.Pending() != 2 {
		t.Fatalf("Expected events requeued after failure, got %d pending", client.Pending())
	}

	fail = false
	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("Expected retry flush to succeed, got %v", err)
	}
	if client.Pending() != 0 {
		t.Errorf("Expected empty buffer after retry, got %d", client.Pending())
	}
}

func TestClient_FlushEmptyIsNoop(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "pk", "sk", testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if requests != 0 {
		t.Errorf("Expected no requests for empty buffer, got %d", requests)
	}
}

func TestClient_ClosedRejectsRecording(t *testing.T) {
	client, err := NewClient("https://example.com", "pk", "sk", testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	gen, err := client.StartGeneration(Observation{Name: "n"})
	if err != nil {
		t.Fatalf("StartGeneration failed: %v", err)
	}

	client.Close()

	if _, err := client.StartGeneration(Observation{Name: "n"}); err == nil {
		t.Error("Expected StartGeneration on closed client to fail")
	}
	if err := gen.End("out", Usage{}); err == nil {
		t.Error("Expected End on closed client to fail")
	}
	if client.Pending() != 0 {
		t.Errorf("Expected closed client to drop its buffer, got %d pending", client.Pending())
	}
}
