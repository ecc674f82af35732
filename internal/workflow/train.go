package workflow

import (
	"context"
	"fmt"

	"github.com/caldew/loom/internal/foundry"
	"github.com/caldew/loom/internal/workspace"
)

// TrainSpec describes a training run over a built dataset.
type TrainSpec struct {
	JobName         string
	Dataset         string // manifest name; empty: the most recent
	Algorithm       string
	Hyperparameters map[string]string
}

// Train creates a training job over the staged dataset artifact and waits for
// it to complete. The returned job carries the trained model URI.
func (r *Runner) Train(ctx context.Context, spec TrainSpec) (*foundry.TrainingJob, error) {
	m, err := r.manifest(spec.Dataset)
	if err != nil {
		return nil, fmt.Errorf("looking up dataset manifest: %w", err)
	}
	if m.ArtifactURI == "" {
		return nil, fmt.Errorf("dataset %s was never staged for training", m.Name)
	}

	job, err := r.Foundry.CreateTrainingJob(ctx, foundry.TrainingJobSpec{
		Name:            spec.JobName,
		Algorithm:       spec.Algorithm,
		Hyperparameters: spec.Hyperparameters,
		InputURI:        m.ArtifactURI,
	})
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.SaveResource(workspace.Resource{
		Kind:   workspace.KindTrainingJob,
		Name:   job.Name,
		Status: string(job.Status),
		Detail: "dataset " + m.Name,
	}); err != nil {
		return nil, fmt.Errorf("recording training job %s: %w", job.Name, err)
	}

	fmt.Fprintf(r.out(), "training job %s: running on %s (%d rows)\n", job.Name, m.Name, m.Rows)
	if err := r.Waiter.Wait(ctx, "training job "+job.Name, r.Foundry.TrainingDone(job.Name)); err != nil {
		_ = r.Ledger.UpdateResourceStatus(workspace.KindTrainingJob, job.Name, string(foundry.JobFailed), err.Error())
		return nil, err
	}

	job, err = r.Foundry.DescribeTrainingJob(ctx, job.Name)
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.UpdateResourceStatus(workspace.KindTrainingJob, job.Name, string(job.Status), job.ModelURI); err != nil {
		return nil, fmt.Errorf("recording training job %s: %w", job.Name, err)
	}
	fmt.Fprintf(r.out(), "training job %s: completed (model %s)\n", job.Name, job.ModelURI)
	return job, nil
}

// Deploy creates an endpoint serving the model produced by a completed
// training job and waits until it is in service.
func (r *Runner) Deploy(ctx context.Context, endpoint, jobName string) (*foundry.Endpoint, error) {
	job, err := r.Foundry.DescribeTrainingJob(ctx, jobName)
	if err != nil {
		return nil, err
	}
	if job.ModelURI == "" {
		return nil, fmt.Errorf("training job %s has no model artifact (status %s)", jobName, job.Status)
	}

	ep, err := r.Foundry.CreateEndpoint(ctx, endpoint, job.ModelURI)
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.SaveResource(workspace.Resource{
		Kind:   workspace.KindEndpoint,
		Name:   ep.Name,
		Status: string(ep.Status),
		Detail: job.ModelURI,
	}); err != nil {
		return nil, fmt.Errorf("recording endpoint %s: %w", ep.Name, err)
	}

	fmt.Fprintf(r.out(), "endpoint %s: deploying model from %s\n", ep.Name, jobName)
	if err := r.Waiter.Wait(ctx, "endpoint "+ep.Name, r.Foundry.EndpointInService(ep.Name)); err != nil {
		_ = r.Ledger.UpdateResourceStatus(workspace.KindEndpoint, ep.Name, string(foundry.EndpointFailed), err.Error())
		return nil, err
	}

	ep, err = r.Foundry.DescribeEndpoint(ctx, ep.Name)
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.UpdateResourceStatus(workspace.KindEndpoint, ep.Name, string(ep.Status), ep.ModelURI); err != nil {
		return nil, fmt.Errorf("recording endpoint %s: %w", ep.Name, err)
	}
	fmt.Fprintf(r.out(), "endpoint %s: in service\n", ep.Name)
	return ep, nil
}
