// Package provider abstracts the GPU-rental backends behind one capability
// set. Both backends expose the same five conceptual operations over REST
// with slightly different payloads; each gets a concrete client here and
// the compute manager picks one by the catalog's provider tag.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/villenero912/hybridgen/internal/apierr"
	"github.com/villenero912/hybridgen/internal/model"
)

// InstanceState is a provider's view of one instance.
type InstanceState struct {
	Status   model.InstanceStatus
	Endpoint string
}

// JobState is a provider's view of one job.
type JobState struct {
	Status    model.JobStatus
	Progress  float64
	OutputRef string
	Error     string
}

// Provider is the capability set every rental backend must offer.
type Provider interface {
	Name() string
	CreateInstance(ctx context.Context, hardwareType, containerImage string) (string, error)
	InstanceStatus(ctx context.Context, instanceID string) (InstanceState, error)
	SubmitJob(ctx context.Context, instanceID, script string, input map[string]string) (string, error)
	JobStatus(ctx context.Context, jobID string) (JobState, error)
	DeleteInstance(ctx context.Context, instanceID string) error
	ListHardware(ctx context.Context) ([]string, error)
}

// httpAPI is the shared REST plumbing for both clients: JSON in, JSON out,
// API-key header, bounded error body reads, apierr classification.
type httpAPI struct {
	service string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPAPI(service, baseURL, apiKey string) httpAPI {
	return httpAPI{
		service: service,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends one JSON request and decodes the response into out (skipped when
// out is nil). Non-2xx responses become StatusErrors carrying up to 1 KiB of
// the body.
func (a httpAPI) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %s: marshal request: %w", a.service, op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %s: create request: %w", a.service, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &apierr.StatusError{Service: a.service, Op: op, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apierr.StatusError{
			Service:    a.service,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %s: decode response: %w", a.service, op, err)
	}
	return nil
}
