package provider

import (
	"context"
	"fmt"

	"github.com/villenero912/hybridgen/internal/model"
)

// RunPod is the RunPod-style rental client.
type RunPod struct {
	api httpAPI
}

// NewRunPod creates a client for the RunPod API at baseURL.
func NewRunPod(baseURL, apiKey string) *RunPod {
	return &RunPod{api: newHTTPAPI("runpod", baseURL, apiKey)}
}

func (p *RunPod) Name() string { return "runpod" }

type runpodCreateRequest struct {
	GPUTypeID string `json:"gpuTypeId"`
	ImageName string `json:"imageName"`
	CloudType string `json:"cloudType"`
}

type runpodPod struct {
	ID            string  `json:"id"`
	DesiredStatus string  `json:"desiredStatus"`
	PublicIP      string  `json:"publicIp"`
	Port          int     `json:"port"`
	Error         string  `json:"error"`
	Progress      float64 `json:"progress"`
	Output        string  `json:"output"`
}

// CreateInstance provisions a pod and returns its id; the pod starts in
// a pending state and must be polled to readiness.
func (p *RunPod) CreateInstance(ctx context.Context, hardwareType, containerImage string) (string, error) {
	var pod runpodPod
	err := p.api.do(ctx, "create pod", "POST", "/v2/pods", runpodCreateRequest{
		GPUTypeID: hardwareType,
		ImageName: containerImage,
		CloudType: "SECURE",
	}, &pod)
	if err != nil {
		return "", err
	}
	if pod.ID == "" {
		return "", fmt.Errorf("runpod: create pod: empty pod id in response")
	}
	return pod.ID, nil
}

func (p *RunPod) InstanceStatus(ctx context.Context, instanceID string) (InstanceState, error) {
	var pod runpodPod
	if err := p.api.do(ctx, "pod status", "GET", "/v2/pods/"+instanceID, nil, &pod); err != nil {
		return InstanceState{}, err
	}
	st := InstanceState{}
	switch pod.DesiredStatus {
	case "RUNNING":
		st.Status = model.InstanceRunning
	case "FAILED", "EXITED":
		st.Status = model.InstanceFailed
	case "TERMINATED":
		st.Status = model.InstanceTerminated
	default:
		st.Status = model.InstancePending
	}
	if pod.PublicIP != "" {
		st.Endpoint = fmt.Sprintf("http://%s:%d", pod.PublicIP, pod.Port)
	}
	return st, nil
}

type runpodJobRequest struct {
	Input map[string]string `json:"input"`
}

type runpodJob struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Output   string  `json:"output"`
	Error    string  `json:"error"`
}

func (p *RunPod) SubmitJob(ctx context.Context, instanceID, script string, input map[string]string) (string, error) {
	payload := map[string]string{"script": script}
	for k, v := range input {
		payload[k] = v
	}
	var job runpodJob
	err := p.api.do(ctx, "submit job", "POST", "/v2/pods/"+instanceID+"/run", runpodJobRequest{Input: payload}, &job)
	if err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("runpod: submit job: empty job id in response")
	}
	return job.ID, nil
}

func (p *RunPod) JobStatus(ctx context.Context, jobID string) (JobState, error) {
	var job runpodJob
	if err := p.api.do(ctx, "job status", "GET", "/v2/status/"+jobID, nil, &job); err != nil {
		return JobState{}, err
	}
	st := JobState{Progress: job.Progress, OutputRef: job.Output, Error: job.Error}
	switch job.Status {
	case "IN_PROGRESS":
		st.Status = model.JobRunning
	case "COMPLETED":
		st.Status = model.JobCompleted
	case "FAILED", "CANCELLED", "TIMED_OUT":
		st.Status = model.JobFailed
	default:
		st.Status = model.JobQueued
	}
	return st, nil
}

func (p *RunPod) DeleteInstance(ctx context.Context, instanceID string) error {
	return p.api.do(ctx, "delete pod", "DELETE", "/v2/pods/"+instanceID, nil, nil)
}

type runpodGPUList struct {
	GPUTypes []struct {
		ID string `json:"id"`
	} `json:"gpuTypes"`
}

func (p *RunPod) ListHardware(ctx context.Context) ([]string, error) {
	var list runpodGPUList
	if err := p.api.do(ctx, "list gpus", "GET", "/v2/gpu-types", nil, &list); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list.GPUTypes))
	for _, g := range list.GPUTypes {
		out = append(out, g.ID)
	}
	return out, nil
}
