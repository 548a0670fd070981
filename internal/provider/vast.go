package provider

import (
	"context"
	"fmt"
	"strconv"

	"github.com/villenero912/hybridgen/internal/model"
)

// Vast is the Vast.ai-style rental client. Same capability set as RunPod
// but with different payload shapes and integer instance ids on the wire.
type Vast struct {
	api httpAPI
}

// NewVast creates a client for the Vast API at baseURL.
func NewVast(baseURL, apiKey string) *Vast {
	return &Vast{api: newHTTPAPI("vast", baseURL, apiKey)}
}

func (p *Vast) Name() string { return "vast" }

type vastCreateRequest struct {
	GPUName string `json:"gpu_name"`
	Image   string `json:"image"`
	Disk    int    `json:"disk"`
}

type vastCreateResponse struct {
	Success     bool  `json:"success"`
	NewContract int64 `json:"new_contract"`
}

func (p *Vast) CreateInstance(ctx context.Context, hardwareType, containerImage string) (string, error) {
	var resp vastCreateResponse
	err := p.api.do(ctx, "create instance", "PUT", "/api/v0/asks/", vastCreateRequest{
		GPUName: hardwareType,
		Image:   containerImage,
		Disk:    40,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success || resp.NewContract == 0 {
		return "", fmt.Errorf("vast: create instance: rejected by provider")
	}
	return strconv.FormatInt(resp.NewContract, 10), nil
}

type vastInstance struct {
	ActualStatus string            `json:"actual_status"`
	PublicIPAddr string            `json:"public_ipaddr"`
	PortMap      map[string]string `json:"ports"`
	StatusMsg    string            `json:"status_msg"`
}

type vastInstanceResponse struct {
	Instances vastInstance `json:"instances"`
}

func (p *Vast) InstanceStatus(ctx context.Context, instanceID string) (InstanceState, error) {
	var resp vastInstanceResponse
	if err := p.api.do(ctx, "instance status", "GET", "/api/v0/instances/"+instanceID+"/", nil, &resp); err != nil {
		return InstanceState{}, err
	}
	inst := resp.Instances
	st := InstanceState{}
	switch inst.ActualStatus {
	case "running":
		st.Status = model.InstanceRunning
	case "exited", "error":
		st.Status = model.InstanceFailed
	case "destroyed":
		st.Status = model.InstanceTerminated
	default: // "loading", "created", ""
		st.Status = model.InstancePending
	}
	if inst.PublicIPAddr != "" {
		port := inst.PortMap["8080/tcp"]
		if port == "" {
			port = "8080"
		}
		st.Endpoint = fmt.Sprintf("http://%s:%s", inst.PublicIPAddr, port)
	}
	return st, nil
}

type vastJobRequest struct {
	Script string            `json:"script"`
	Env    map[string]string `json:"env"`
}

type vastJobResponse struct {
	JobID    string  `json:"job_id"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	Result   string  `json:"result"`
	ErrorMsg string  `json:"error_msg"`
}

func (p *Vast) SubmitJob(ctx context.Context, instanceID, script string, input map[string]string) (string, error) {
	var resp vastJobResponse
	err := p.api.do(ctx, "submit job", "POST", "/api/v0/instances/"+instanceID+"/execute/", vastJobRequest{
		Script: script,
		Env:    input,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("vast: submit job: empty job id in response")
	}
	return resp.JobID, nil
}

func (p *Vast) JobStatus(ctx context.Context, jobID string) (JobState, error) {
	var resp vastJobResponse
	if err := p.api.do(ctx, "job status", "GET", "/api/v0/jobs/"+jobID+"/", nil, &resp); err != nil {
		return JobState{}, err
	}
	st := JobState{Progress: resp.Progress, OutputRef: resp.Result, Error: resp.ErrorMsg}
	switch resp.State {
	case "running":
		st.Status = model.JobRunning
	case "done":
		st.Status = model.JobCompleted
	case "failed":
		st.Status = model.JobFailed
	default:
		st.Status = model.JobQueued
	}
	return st, nil
}

func (p *Vast) DeleteInstance(ctx context.Context, instanceID string) error {
	return p.api.do(ctx, "delete instance", "DELETE", "/api/v0/instances/"+instanceID+"/", nil, nil)
}

type vastOffersResponse struct {
	Offers []struct {
		GPUName string `json:"gpu_name"`
	} `json:"offers"`
}

func (p *Vast) ListHardware(ctx context.Context) ([]string, error) {
	var resp vastOffersResponse
	if err := p.api.do(ctx, "list offers", "GET", "/api/v0/bundles/", nil, &resp); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, o := range resp.Offers {
		if !seen[o.GPUName] {
			seen[o.GPUName] = true
			out = append(out, o.GPUName)
		}
	}
	return out, nil
}
