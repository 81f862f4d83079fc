package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"detective_backend/internal/domain"
	"detective_backend/internal/logger"
)

// Client talks to the generative oracle's threads API. The oracle authors
// crime narratives, folds interrogation transcripts into new state snapshots
// and scores deduction graphs; this client never interprets any of that, it
// just moves JSON.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// bounded retry for transient request failures
	maxRetries int
	backoff    time.Duration

	pollInterval time.Duration
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxRetries:   3,
		backoff:      2 * time.Second,
		pollInterval: time.Second,
	}
}

// CreateThread opens a fresh conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var resp threadResponse
	if err := c.post(ctx, "/threads", map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return resp.ID, nil
}

// AddMessage appends a message to the thread.
func (c *Client) AddMessage(ctx context.Context, threadID, role, content string) error {
	body := map[string]any{"role": role, "content": content}
	if err := c.post(ctx, "/threads/"+threadID+"/messages", body, nil); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// RunAndAwait starts a run on the thread and polls until it settles, then
// parses the assistant's reply as a game state snapshot. The result is NOT
// validated here - the orchestrator owns the schema gate and decides whether
// the snapshot is accepted.
func (c *Client) RunAndAwait(ctx context.Context, threadID, assistantID string) (*domain.GameState, error) {
	raw, err := c.runAndFetchReply(ctx, threadID, assistantID)
	if err != nil {
		return nil, err
	}

	var gs domain.GameState
	if err := json.Unmarshal([]byte(raw), &gs); err != nil {
		return nil, fmt.Errorf("%w: oracle reply is not a game state: %v", domain.ErrInvalidState, err)
	}
	return &gs, nil
}

// ScoreWarmth asks the oracle how close the player's graph is to the truth.
// The reply is constrained to a single number; range clamping is the caller's
// concern.
func (c *Client) ScoreWarmth(ctx context.Context, assistantID string, crime domain.Crime, graph domain.Deduction) (float64, error) {
	threadID, err := c.CreateThread(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(map[string]any{
		"crime": crime,
		"graph": graph,
	})
	if err != nil {
		return 0, err
	}
	if err := c.AddMessage(ctx, threadID, "user", string(payload)); err != nil {
		return 0, err
	}

	raw, err := c.runAndFetchReply(ctx, threadID, assistantID)
	if err != nil {
		return 0, err
	}

	warmth, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("oracle warmth reply %q is not a number", raw)
	}
	return warmth, nil
}

// ProposedResult is the oracle's suggested post-game rating and badges for
// one participant. Badges are a closed vocabulary on the oracle side but
// opaque strings here.
type ProposedResult struct {
	ParticipantID string   `json:"participant_id"`
	Rating        float64  `json:"rating"`
	Badges        []string `json:"badges"`
}

// ProposeResults seeds a thread with the game transcript and current ratings
// and asks the oracle for new ratings plus qualitative badges.
func (c *Client) ProposeResults(ctx context.Context, assistantID string, transcript string, current map[string]float64) ([]ProposedResult, error) {
	threadID, err := c.CreateThread(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"transcript": transcript,
		"ratings":    current,
	})
	if err != nil {
		return nil, err
	}
	if err := c.AddMessage(ctx, threadID, "user", string(payload)); err != nil {
		return nil, err
	}

	raw, err := c.runAndFetchReply(ctx, threadID, assistantID)
	if err != nil {
		return nil, err
	}

	var results []ProposedResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("oracle results reply is not a result list: %w", err)
	}
	return results, nil
}

func (c *Client) runAndFetchReply(ctx context.Context, threadID, assistantID string) (string, error) {
	var run runResponse
	err := c.post(ctx, "/threads/"+threadID+"/runs", map[string]any{"assistant_id": assistantID}, &run)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}

	// poll until the run settles; oracle calls can take tens of seconds
	delay := c.pollInterval
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		if delay < 5*c.pollInterval {
			delay += c.pollInterval
		}

		var status runResponse
		if err := c.get(ctx, "/threads/"+threadID+"/runs/"+run.ID, &status); err != nil {
			return "", fmt.Errorf("poll run: %w", err)
		}

		switch status.Status {
		case "completed":
			return c.lastAssistantMessage(ctx, threadID)
		case "failed", "cancelled", "expired":
			return "", fmt.Errorf("oracle run %s: %s", status.Status, status.LastError.Message)
		}
	}
}

func (c *Client) lastAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var list messageListResponse
	if err := c.get(ctx, "/threads/"+threadID+"/messages?limit=1&order=desc", &list); err != nil {
		return "", fmt.Errorf("fetch reply: %w", err)
	}
	if len(list.Data) == 0 || len(list.Data[0].Content) == 0 {
		return "", fmt.Errorf("oracle returned no reply")
	}
	return list.Data[0].Content[0].Text.Value, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, "POST", path, payload, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, "GET", path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			oracleRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		lastErr = c.doOnce(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		logger.Warn("oracle request failed", "method", method, "path", path, "attempt", attempt, "error", lastErr)
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	oracleRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		oracleErrors.Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		oracleErrors.Inc()
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("oracle API error: %s - %s", resp.Status, string(data))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
