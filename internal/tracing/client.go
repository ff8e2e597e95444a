// Package tracing records AI call observations to a Langfuse-compatible
// ingestion backend. Tracing is strictly best-effort: the AI response is
// authoritative and no failure in this package may surface to an end caller.
package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errClientClosed = errors.New("tracing client is closed")

// Usage carries token counters recorded on a generation.
type Usage struct {
	Input  int `json:"input,omitempty"`
	Output int `json:"output,omitempty"`
	Total  int `json:"total,omitempty"`
}

// Observation describes one AI call for tracing purposes.
type Observation struct {
	Name        string
	User        string
	Source      string
	SubjectType string
	SubjectID   string
	Model       string
	Input       any
	Metadata    map[string]any
}

// ingestionEvent is one entry in a Langfuse batch ingestion request.
type ingestionEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Body      any       `json:"body"`
}

type traceBody struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	UserID    string         `json:"userId,omitempty"`
	Input     any            `json:"input,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type generationBody struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"traceId"`
	Name      string         `json:"name"`
	Model     string         `json:"model,omitempty"`
	Input     any            `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	StartTime time.Time      `json:"startTime"`
	EndTime   *time.Time     `json:"endTime,omitempty"`
}

type ingestionBatch struct {
	Batch []ingestionEvent `json:"batch"`
}

// Client buffers observation events and ships them in batches to
// {host}/api/public/ingestion with basic auth. Sending never happens inline
// with an AI call; the Flusher drains the buffer out-of-band.
type Client struct {
	host       string
	publicKey  string
	secretKey  string
	httpClient *http.Client
	logger     *logrus.Logger

	mu      sync.Mutex
	pending []ingestionEvent
	closed  bool
}

func NewClient(host, publicKey, secretKey string, logger *logrus.Logger) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, fmt.Errorf("tracing host is required")
	}
	if publicKey == "" || secretKey == "" {
		return nil, fmt.Errorf("tracing credentials are required")
	}
	return &Client{
		host:       host,
		publicKey:  publicKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}, nil
}

// Generation is an in-flight observation. End records the outcome and
// enqueues the trace and generation events for the next flush.
type Generation struct {
	client  *Client
	trace   traceBody
	body    generationBody
	started time.Time
}

// StartGeneration builds the trace and generation records for one AI call.
// It does no network I/O.
func (c *Client) StartGeneration(obs Observation) (*Generation, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errClientClosed
	}

	now := time.Now().UTC()
	traceID := uuid.New().String()

	metadata := map[string]any{}
	for k, v := range obs.Metadata {
		metadata[k] = v
	}
	if obs.User != "" {
		metadata["user"] = obs.User
	}
	metadata["source"] = orUnknown(obs.Source)
	if obs.SubjectType != "" {
		metadata["subject_type"] = obs.SubjectType
	}
	if obs.SubjectID != "" {
		metadata["subject_id"] = obs.SubjectID
	}

	var tags []string
	if obs.Source != "" {
		tags = append(tags, obs.Source)
	}
	if obs.SubjectType != "" {
		tags = append(tags, obs.SubjectType)
	}

	return &Generation{
		client: c,
		trace: traceBody{
			ID:        traceID,
			Name:      obs.Name,
			UserID:    obs.User,
			Input:     obs.Input,
			Metadata:  metadata,
			Tags:      tags,
			Timestamp: now,
		},
		body: generationBody{
			ID:        uuid.New().String(),
			TraceID:   traceID,
			Name:      obs.Name,
			Model:     obs.Model,
			Input:     obs.Input,
			Metadata:  metadata,
			StartTime: now,
		},
		started: now,
	}, nil
}

// End records the output and token usage and hands both events to the buffer.
func (g *Generation) End(output string, usage Usage) error {
	end := time.Now().UTC()
	g.body.Output = output
	g.body.EndTime = &end
	if usage != (Usage{}) {
		g.body.Usage = &usage
	}

	return g.client.enqueue(
		ingestionEvent{ID: uuid.New().String(), Type: "trace-create", Timestamp: g.started, Body: g.trace},
		ingestionEvent{ID: uuid.New().String(), Type: "generation-create", Timestamp: end, Body: g.body},
	)
}

func (c *Client) enqueue(events ...ingestionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	c.pending = append(c.pending, events...)
	return nil
}

// Pending reports the number of buffered events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush ships all buffered events in one batch. On transport failure the
// events are put back so a later flush can retry them.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	if err := c.send(ctx, events); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.pending = append(events, c.pending...)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, events []ingestionEvent) error {
	body, err := json.Marshal(ingestionBatch{Batch: events})
	if err != nil {
		return fmt.Errorf("failed to encode ingestion batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/public/ingestion", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build ingestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ingestion batch: %w", err)
	}
	defer resp.Body.Close()

	// The ingestion endpoint answers 207 for partial success; anything under
	// 300 counts as delivered.
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ingestion backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Close drops the buffer and rejects further recording. A closed client is
// what a cache invalidation leaves behind.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
}

// Host returns the configured ingestion host.
func (c *Client) Host() string {
	return c.host
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
