// Package foundry is the client for the platform's training and serving
// surface: training jobs, model endpoints, and the artifact staging area.
package foundry

import "time"

// JobStatus is the lifecycle state of a training job.
type JobStatus string

const (
	JobInProgress JobStatus = "InProgress"
	JobCompleted  JobStatus = "Completed"
	JobFailed     JobStatus = "Failed"
	JobStopped    JobStatus = "Stopped"
)

// TrainingJobSpec describes a job to run. InputURI points at a staged
// training dataset; the algorithm consumes it as CSV with the target column
// first and no header.
type TrainingJobSpec struct {
	Name            string            `json:"name"`
	Algorithm       string            `json:"algorithm"`
	Hyperparameters map[string]string `json:"hyperparameters,omitempty"`
	InputURI        string            `json:"input_uri"`
	OutputURI       string            `json:"output_uri,omitempty"`
}

// TrainingJob is the platform's view of a job.
type TrainingJob struct {
	TrainingJobSpec
	Status        JobStatus `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ModelURI      string    `json:"model_uri,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EndpointStatus is the lifecycle state of a model endpoint.
type EndpointStatus string

const (
	EndpointCreating  EndpointStatus = "Creating"
	EndpointInService EndpointStatus = "InService"
	EndpointFailed    EndpointStatus = "Failed"
	EndpointDeleting  EndpointStatus = "Deleting"
)

// Endpoint is a deployed model serving invocations.
type Endpoint struct {
	Name          string         `json:"name"`
	ModelURI      string         `json:"model_uri"`
	Status        EndpointStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
