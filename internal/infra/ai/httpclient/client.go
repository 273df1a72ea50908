package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

const (
	maxRetries  = 3
	backoffBase = 2 * time.Second
)

// Client talks to the external AI inference service:
// POST {baseURL}/scan with {"code": ...} returning {"label","confidence"}.
// Transient failures (5xx, 429, connection errors, timeouts) are retried with
// exponential backoff: 2s, 4s, 8s.
type Client struct {
	baseURL    string
	httpClient *http.Client

	backoff time.Duration
	sleep   func(time.Duration) // overridable in tests
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		backoff:    backoffBase,
	}
}

type scanResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// statusError marks a non-2xx response so the retry loop can classify it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ai service returned %d: %s", e.code, e.body)
}

// Analyze sends one unit of source text and returns the classification.
// Errors are returned only after retries are exhausted or on non-transient
// failures; the caller decides whether to degrade or fail the scan.
func (c *Client) Analyze(ctx context.Context, code string) (domain.Analysis, error) {
	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return domain.Analysis{}, err
	}

	for attempt := 0; ; attempt++ {
		body, err := c.post(ctx, payload)
		if err == nil {
			return parseAnalysis(body)
		}
		if !isTransient(err) || attempt >= maxRetries {
			return domain.Analysis{}, err
		}

		delay := c.backoff << attempt // 2s, 4s, 8s
		log.Printf("ai scan attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
		if werr := c.wait(ctx, delay); werr != nil {
			return domain.Analysis{}, werr
		}
	}
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scan", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	return body, nil
}

func parseAnalysis(body []byte) (domain.Analysis, error) {
	var out scanResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Analysis{}, fmt.Errorf("invalid ai response: %w", err)
	}
	return domain.Analysis{
		HasVulnerabilities: out.Label == "VULN",
		Confidence:         out.Confidence,
		RawResponse:        string(body),
	}, nil
}

// isTransient: retry on connection errors/timeouts and on 5xx or 429; other
// 4xx responses are permanent.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		c.sleep(d)
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
