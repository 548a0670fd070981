// Package fastservice is the HTTP client for the bounded-latency external
// generation API. The service only serves durations at or below a hard
// ceiling; callers must keep requests under it (Generate enforces this).
package fastservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/villenero912/hybridgen/internal/apierr"
	"github.com/villenero912/hybridgen/internal/model"
)

// GenerateRequest is the service's wire payload.
type GenerateRequest struct {
	CharacterID     string            `json:"characterId"`
	Script          string            `json:"script"`
	DurationSeconds float64           `json:"durationSeconds"`
	Quality         map[string]string `json:"quality,omitempty"`
	Format          string            `json:"format,omitempty"`
}

// GenerateResponse is the service's reply on success.
type GenerateResponse struct {
	OutputPath string            `json:"outputPath"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Client calls the fast generation service. Outgoing requests are rate
// limited so bursts of short segments cannot overrun the service.
type Client struct {
	baseURL     string
	maxDuration float64
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// New creates a client. rps caps outgoing request rate; maxDuration is the
// service's hard duration ceiling in seconds.
func New(baseURL string, maxDuration, rps float64) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:     baseURL,
		maxDuration: maxDuration,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Generate renders one clip. Requests above the duration ceiling are
// rejected locally with a ValidationError before any network traffic.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if req.DurationSeconds > c.maxDuration {
		return GenerateResponse{}, &model.ValidationError{
			Field:  "duration_seconds",
			Reason: fmt.Sprintf("%.0fs exceeds fast-service ceiling of %.0fs", req.DurationSeconds, c.maxDuration),
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return GenerateResponse{}, fmt.Errorf("fast_service: rate wait: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("fast_service: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("fast_service: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, &apierr.StatusError{Service: "fast_service", Op: "generate", Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return GenerateResponse{}, &apierr.StatusError{
			Service:    "fast_service",
			Op:         "generate",
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GenerateResponse{}, fmt.Errorf("fast_service: decode response: %w", err)
	}
	if out.OutputPath == "" {
		return GenerateResponse{}, fmt.Errorf("fast_service: empty output path in response")
	}
	return out, nil
}

// MaxDuration returns the hard duration ceiling.
func (c *Client) MaxDuration() float64 { return c.maxDuration }
