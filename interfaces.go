package hybridgen

import "context"

// FastService is the bounded-latency generation API. When provided via
// WithFastService, replaces the built-in HTTP client — useful for tests and
// for embedders that front the service themselves. Implementations must
// reject durations above the configured ceiling.
type FastService interface {
	Generate(ctx context.Context, req FastServiceRequest) (FastServiceResponse, error)
}

// FastServiceRequest is the payload sent to the fast service.
type FastServiceRequest struct {
	CharacterID     string
	Script          string
	DurationSeconds float64
	Quality         map[string]string
	Format          string
}

// FastServiceResponse is the fast service's reply on success.
type FastServiceResponse struct {
	OutputPath string
	Metadata   map[string]string
}

// ComputeProvider is a GPU-rental backend. The built-in RunPod and Vast
// clients implement the same capability set internally; WithProvider
// registers or replaces a backend under a name the catalog can reference.
type ComputeProvider interface {
	Name() string
	CreateInstance(ctx context.Context, hardwareType, containerImage string) (string, error)
	InstanceStatus(ctx context.Context, instanceID string) (InstanceState, error)
	SubmitJob(ctx context.Context, instanceID, script string, input map[string]string) (string, error)
	JobStatus(ctx context.Context, jobID string) (JobState, error)
	DeleteInstance(ctx context.Context, instanceID string) error
	ListHardware(ctx context.Context) ([]string, error)
}
