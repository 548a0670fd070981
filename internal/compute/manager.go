// Package compute owns the lifecycle of rented GPU instances: provisioning
// behind the budget guard, readiness and job polling, idempotent teardown,
// and the per-instance cost accounting that feeds the ledger.
package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/villenero912/hybridgen/internal/budget"
	"github.com/villenero912/hybridgen/internal/catalog"
	"github.com/villenero912/hybridgen/internal/model"
	"github.com/villenero912/hybridgen/internal/poll"
	"github.com/villenero912/hybridgen/internal/pricing"
	"github.com/villenero912/hybridgen/internal/provider"
)

// ErrNotRunning is returned when a job is submitted to an instance that is
// not in the running state.
var ErrNotRunning = errors.New("compute: instance is not running")

// ErrInstanceFailed is returned when a provider reports an instance failed
// during startup.
var ErrInstanceFailed = errors.New("compute: instance failed during startup")

// ErrJobFailed is returned when a job reaches the failed terminal state.
var ErrJobFailed = errors.New("compute: job failed")

// Options configures a Manager.
type Options struct {
	Catalog         *catalog.Catalog
	Ledger          *budget.Ledger
	Providers       map[string]provider.Provider
	Logger          *slog.Logger
	DefaultHardware string
	ContainerImage  string
	PollInterval    time.Duration
	ReadyTimeout    time.Duration
	JobTimeout      time.Duration
	// ComputeHours converts output seconds to projected GPU hours; used for
	// realized-cost accounting on completed jobs.
	ComputeHours func(durationSeconds float64) float64
}

type trackedInstance struct {
	inst     model.Instance
	hardware catalog.Hardware
	prov     provider.Provider
	reserved float64 // first-hour reservation committed to the ledger
}

type trackedJob struct {
	job      model.Job
	provider provider.Provider
	hardware catalog.Hardware
}

// Manager is the resource manager. The instance and job registries are the
// only mutable state; both are guarded by mu.
type Manager struct {
	opts Options

	mu        sync.Mutex
	instances map[string]*trackedInstance
	jobs      map[string]*trackedJob
}

// NewManager creates a Manager. Providers maps provider names (as used in
// the catalog's default_provider field) to clients.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		opts:      opts,
		instances: make(map[string]*trackedInstance),
		jobs:      make(map[string]*trackedJob),
	}
}

// CreateInstance provisions a pending instance of hardwareType. providerHint
// overrides the catalog's default provider when non-empty. The budget guard
// runs before the provider call: current spend plus one hour at the selected
// hourly rate must fit under the limit, otherwise a budget.ExceededError is
// returned and nothing is created.
func (m *Manager) CreateInstance(ctx context.Context, hardwareType, providerHint string) (model.Instance, error) {
	hw, err := m.opts.Catalog.Lookup(hardwareType)
	if err != nil {
		return model.Instance{}, err
	}

	providerName := hw.DefaultProvider
	if providerHint != "" {
		providerName = providerHint
	}
	prov, ok := m.opts.Providers[providerName]
	if !ok {
		return model.Instance{}, &model.ValidationError{
			Field:  "provider",
			Reason: fmt.Sprintf("unknown provider %q", providerName),
		}
	}

	// One hour at the hourly rate is the minimum any instance can cost.
	reservation := hw.HourlyRate
	if err := m.opts.Ledger.Reserve(reservation); err != nil {
		return model.Instance{}, err
	}

	id, err := prov.CreateInstance(ctx, hardwareType, m.opts.ContainerImage)
	if err != nil {
		m.opts.Ledger.Release(reservation)
		return model.Instance{}, fmt.Errorf("compute: create instance: %w", err)
	}

	inst := model.Instance{
		Provider:     providerName,
		ID:           id,
		HardwareType: hardwareType,
		MemoryGB:     hw.MemoryGB,
		HourlyRate:   hw.HourlyRate,
		Status:       model.InstancePending,
		CreatedAt:    time.Now().UTC(),
	}

	m.mu.Lock()
	m.instances[id] = &trackedInstance{inst: inst, hardware: hw, prov: prov, reserved: reservation}
	m.mu.Unlock()

	m.opts.Logger.Info("instance created",
		"instance_id", id, "provider", providerName,
		"hardware", hardwareType, "hourly_rate", hw.HourlyRate)
	return inst, nil
}

// WaitUntilReady polls the provider until the instance is running, the
// provider reports failure, the timeout elapses, or ctx is cancelled.
// On timeout the instance stays in the registry — the caller decides
// whether to stop it.
func (m *Manager) WaitUntilReady(ctx context.Context, instanceID string, timeout time.Duration) (model.Instance, error) {
	tracked, prov, err := m.lookup(instanceID)
	if err != nil {
		return model.Instance{}, err
	}

	err = poll.Wait(ctx, poll.Policy{Interval: m.opts.PollInterval, Timeout: timeout},
		"instance "+instanceID+" readiness",
		func(ctx context.Context) (bool, error) {
			state, err := prov.InstanceStatus(ctx, instanceID)
			if err != nil {
				return false, err
			}
			switch state.Status {
			case model.InstanceRunning:
				m.setStatus(instanceID, model.InstanceRunning, state.Endpoint)
				return true, nil
			case model.InstanceFailed:
				m.setStatus(instanceID, model.InstanceFailed, "")
				return false, fmt.Errorf("%w: %s", ErrInstanceFailed, instanceID)
			default:
				return false, nil
			}
		})
	if err != nil {
		return model.Instance{}, err
	}

	m.mu.Lock()
	inst := tracked.inst
	m.mu.Unlock()
	return inst, nil
}

// JobPayload is the processing work submitted to a running instance.
type JobPayload struct {
	Script string
	Input  map[string]string
}

// SubmitJob posts the payload to the instance. The instance must be running.
func (m *Manager) SubmitJob(ctx context.Context, instanceID string, payload JobPayload) (model.Job, error) {
	tracked, prov, err := m.lookup(instanceID)
	if err != nil {
		return model.Job{}, err
	}

	m.mu.Lock()
	status := tracked.inst.Status
	m.mu.Unlock()
	if status != model.InstanceRunning {
		return model.Job{}, fmt.Errorf("%w: %s is %s", ErrNotRunning, instanceID, status)
	}

	jobID, err := prov.SubmitJob(ctx, instanceID, payload.Script, payload.Input)
	if err != nil {
		return model.Job{}, fmt.Errorf("compute: submit job: %w", err)
	}

	job := model.Job{
		ID:         jobID,
		InstanceID: instanceID,
		InputRef:   payload.Input["input_ref"],
		Status:     model.JobQueued,
		StartedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	m.jobs[jobID] = &trackedJob{job: job, provider: prov, hardware: tracked.hardware}
	m.mu.Unlock()

	m.opts.Logger.Info("job submitted", "job_id", jobID, "instance_id", instanceID)
	return job, nil
}

// PollJob polls the provider until the job reaches a terminal status or the
// configured job timeout elapses. Returns ErrJobFailed (wrapped with the
// provider's error text) when the job fails.
func (m *Manager) PollJob(ctx context.Context, jobID string) (model.Job, error) {
	m.mu.Lock()
	tj, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return model.Job{}, &model.ValidationError{Field: "job_id", Reason: fmt.Sprintf("unknown job %q", jobID)}
	}

	var final provider.JobState
	err := poll.Wait(ctx, poll.Policy{Interval: m.opts.PollInterval, Timeout: m.opts.JobTimeout},
		"job "+jobID,
		func(ctx context.Context) (bool, error) {
			state, err := tj.provider.JobStatus(ctx, jobID)
			if err != nil {
				return false, err
			}
			m.mu.Lock()
			tj.job.Status = state.Status
			tj.job.Progress = state.Progress
			m.mu.Unlock()
			if state.Status.Terminal() {
				final = state
				return true, nil
			}
			return false, nil
		})
	if err != nil {
		return m.jobSnapshot(jobID), err
	}

	now := time.Now().UTC()
	elapsedHours := now.Sub(tj.job.StartedAt).Hours()

	m.mu.Lock()
	tj.job.CompletedAt = &now
	tj.job.OutputRef = final.OutputRef
	tj.job.Error = final.Error
	tj.job.Cost = elapsedHours * tj.hardware.HourlyRate
	job := tj.job
	m.mu.Unlock()

	if job.Status == model.JobFailed {
		return job, fmt.Errorf("%w: %s: %s", ErrJobFailed, jobID, job.Error)
	}
	return job, nil
}

// StopInstance removes the instance from the registry and asks the provider
// to delete it. Idempotent, and never raises: provider-side failures are
// logged so that cleanup cannot itself get stuck. Accrued time beyond the
// first-hour reservation is charged to the ledger.
func (m *Manager) StopInstance(ctx context.Context, instanceID string) {
	m.mu.Lock()
	tracked, ok := m.instances[instanceID]
	if ok {
		delete(m.instances, instanceID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	accrued := pricing.ComputeCost(tracked.hardware, time.Since(tracked.inst.CreatedAt).Hours())
	if delta := accrued - tracked.reserved; delta > 0 {
		m.opts.Ledger.Charge(delta)
	}

	if err := tracked.prov.DeleteInstance(ctx, instanceID); err != nil {
		m.opts.Logger.Warn("instance delete failed (removed from registry anyway)",
			"instance_id", instanceID, "error", err)
	} else {
		m.opts.Logger.Info("instance stopped", "instance_id", instanceID)
	}
}

// CleanupAll stops every tracked instance and returns the count stopped.
// Used on shutdown; safe when nothing was ever created.
func (m *Manager) CleanupAll(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopInstance(ctx, id)
	}
	return len(ids)
}

// Instances returns a snapshot of the active registry.
func (m *Manager) Instances() []model.Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Instance, 0, len(m.instances))
	for _, t := range m.instances {
		out = append(out, t.inst)
	}
	return out
}

// ListAvailableHardware merges the static catalog with provider-reported
// availability. A provider that cannot be queried is assumed available
// (logged); the catalog stays the source of truth for pricing.
func (m *Manager) ListAvailableHardware(ctx context.Context) []catalog.Hardware {
	available := make(map[string]map[string]bool) // provider → hardware set
	for name, prov := range m.opts.Providers {
		types, err := prov.ListHardware(ctx)
		if err != nil {
			m.opts.Logger.Warn("hardware listing failed, assuming catalog availability",
				"provider", name, "error", err)
			continue
		}
		set := make(map[string]bool, len(types))
		for _, t := range types {
			set[t] = true
		}
		available[name] = set
	}

	var out []catalog.Hardware
	for _, hw := range m.opts.Catalog.All() {
		set, queried := available[hw.DefaultProvider]
		if !queried || set[hw.Type] {
			out = append(out, hw)
		}
	}
	return out
}

// Process runs the full rented-compute path for one request: provision,
// wait for readiness, submit, poll to completion, stop. The instance is
// always stopped on return, success or not, so abandonment cannot leak it.
func (m *Manager) Process(ctx context.Context, req model.Request) (model.Result, error) {
	hardwareType := m.opts.DefaultHardware
	if hw := req.Quality["hardware"]; hw != "" {
		hardwareType = hw
	}

	inst, err := m.CreateInstance(ctx, hardwareType, req.Metadata["provider"])
	if err != nil {
		return model.Result{}, err
	}
	defer m.StopInstance(context.WithoutCancel(ctx), inst.ID)

	if _, err := m.WaitUntilReady(ctx, inst.ID, m.opts.ReadyTimeout); err != nil {
		return model.Result{}, err
	}

	job, err := m.SubmitJob(ctx, inst.ID, JobPayload{
		Script: req.Script,
		Input: map[string]string{
			"character_id":     req.CharacterID,
			"duration_seconds": fmt.Sprintf("%.0f", req.DurationSeconds),
			"format":           req.OutputFormat,
		},
	})
	if err != nil {
		return model.Result{}, err
	}

	job, err = m.PollJob(ctx, job.ID)
	cost := pricing.ComputeCost(m.hardwareFor(inst.ID, hardwareType), m.opts.ComputeHours(req.DurationSeconds))
	if err != nil {
		// The hour is billed whether or not the job produced output.
		return model.Result{RequestID: req.ID, Method: model.MethodRentedCompute, Cost: cost}, err
	}

	return model.Result{
		RequestID:       req.ID,
		Success:         true,
		OutputPath:      job.OutputRef,
		Method:          model.MethodRentedCompute,
		DurationSeconds: req.DurationSeconds,
		Cost:            cost,
	}, nil
}

func (m *Manager) hardwareFor(instanceID, fallbackType string) catalog.Hardware {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.instances[instanceID]; ok {
		return t.hardware
	}
	hw, _ := m.opts.Catalog.Lookup(fallbackType)
	return hw
}

func (m *Manager) lookup(instanceID string) (*trackedInstance, provider.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.instances[instanceID]
	if !ok {
		return nil, nil, &model.ValidationError{Field: "instance_id", Reason: fmt.Sprintf("unknown instance %q", instanceID)}
	}
	return t, t.prov, nil
}

func (m *Manager) setStatus(instanceID string, status model.InstanceStatus, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.instances[instanceID]; ok {
		t.inst.Status = status
		if endpoint != "" {
			t.inst.Endpoint = endpoint
		}
	}
}

func (m *Manager) jobSnapshot(jobID string) model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tj, ok := m.jobs[jobID]; ok {
		return tj.job
	}
	return model.Job{}
}
