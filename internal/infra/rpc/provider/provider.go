// Package provider implements transports to the video generation API.
//
// This package contains:
//   - Transport interface: the opaque create/get/cancel/list surface
//   - HTTPTransport: REST over HTTP implementation
//   - GRPCTransport: gRPC implementation driven by generated-client handlers
//   - APIError: transport failure exposing status, code and message
package provider

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStarting   JobStatus = "starting"
	JobProcessing JobStatus = "processing"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
	JobCanceled   JobStatus = "canceled"
)

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

// JobRequest creates a generation job.
type JobRequest struct {
	// Model is "owner/name"; Version pins a specific model version.
	Model   string         `json:"model,omitempty"`
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`

	Webhook       string   `json:"webhook,omitempty"`
	WebhookEvents []string `json:"webhook_events_filter,omitempty"`

	// IdempotencyKey is sent as a header so that retried creates do not
	// start duplicate jobs.
	IdempotencyKey string `json:"-"`
}

// Job is a generation job as reported by the API.
type Job struct {
	ID          string            `json:"id"`
	Model       string            `json:"model"`
	Version     string            `json:"version,omitempty"`
	Status      JobStatus         `json:"status"`
	Input       map[string]any    `json:"input,omitempty"`
	Output      any               `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	Logs        string            `json:"logs,omitempty"`
	URLs        map[string]string `json:"urls,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Model describes a model the API can run.
type Model struct {
	Owner         string   `json:"owner"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Visibility    string   `json:"visibility,omitempty"`
	LatestVersion string   `json:"latest_version,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
}

// ID returns "owner/name".
func (m Model) ID() string {
	return m.Owner + "/" + m.Name
}

// Transport performs single attempts against the API. Implementations do not
// retry; errors should expose StatusCode/Code/Message where known.
type Transport interface {
	// Name identifies the transport (e.g. "replicate-rest")
	Name() string

	CreateJob(ctx context.Context, req JobRequest) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	CancelJob(ctx context.Context, id string) (*Job, error)
	ListModels(ctx context.Context) ([]Model, error)
	GetModel(ctx context.Context, owner, name string) (*Model, error)

	// Close cleans up resources
	Close() error
}
