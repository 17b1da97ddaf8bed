// Package worker implements the Worker Pipeline (C9): the linear state
// machine that drives one JobItem from clone through deploy, consulting
// every other component (C1-C6, C8) along the way.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/internal/telemetry"
	"github.com/wisbric/deployify/pkg/builder"
	"github.com/wisbric/deployify/pkg/credential"
	"github.com/wisbric/deployify/pkg/deployment"
	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/logbus"
	"github.com/wisbric/deployify/pkg/provider"
	"github.com/wisbric/deployify/pkg/queue"
)

// Pipeline owns the dependencies one worker goroutine needs to drive jobs
// end to end. Workers share these — no per-pipeline mutable state survives
// a single Run call.
type Pipeline struct {
	queue       *queue.Queue
	deployments *deployment.Store
	bus         *logbus.Bus
	vault       *credential.Vault
	registry    *provider.Registry
	builder     *builder.Builder
	logger      *slog.Logger

	leaseDuration time.Duration
}

// New creates a Pipeline.
func New(q *queue.Queue, deployments *deployment.Store, bus *logbus.Bus, vault *credential.Vault, registry *provider.Registry, b *builder.Builder, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		queue:         q,
		deployments:   deployments,
		bus:           bus,
		vault:         vault,
		registry:      registry,
		builder:       b,
		logger:        logger,
		leaseDuration: 2 * time.Minute,
	}
}

// Run blocks, leasing and running jobs one at a time, until ctx is
// cancelled. It is meant to be the body of one worker goroutine; callers
// start WORKER_COUNT of these.
func (p *Pipeline) Run(ctx context.Context) error {
	const idleBackoff = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		item, err := p.queue.Lease(ctx, p.leaseDuration)
		if errors.Is(err, queue.ErrNoJob) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleBackoff):
			}
			continue
		}
		if err != nil {
			p.logger.Error("leasing job", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleBackoff):
			}
			continue
		}

		p.runJob(ctx, item)
	}
}

// runJob executes one JobItem through the full pipeline and reports the
// outcome back to the queue. It never returns an error: all failure
// handling happens internally against the Deployment record and the queue.
func (p *Pipeline) runJob(ctx context.Context, item queue.JobItem) {
	jobCtx, cancel := context.WithTimeout(ctx, item.Timeout)
	defer cancel()

	run := &jobRun{
		pipeline: p,
		item:     item,
		logger:   p.logger.With("job_id", item.JobID, "deployment_id", item.DeploymentID),
	}
	run.execute(jobCtx)
}

// jobRun holds the mutable state of a single job's pass through the
// pipeline: its workspace, its accumulating detection/provider decisions.
type jobRun struct {
	pipeline *Pipeline
	item     queue.JobItem
	logger   *slog.Logger

	workspace       string
	detected        detect.Result
	chosen          provider.Kind
	credential      map[string]string
	deployAttempted bool
}

func (r *jobRun) execute(ctx context.Context) {
	p := r.pipeline
	deploymentID := r.item.DeploymentID

	defer r.cleanup()

	if r.checkCancelled(ctx) {
		return
	}

	if _, err := p.deployments.UpdateState(ctx, deploymentID, deployment.StateCloning, deployment.StatePatch{}); err != nil {
		r.logger.Error("transitioning to cloning", "error", err)
	}
	r.emit(ctx, logbus.LevelInfo, "clone", "starting clone")

	workspace, err := r.runClone(ctx, deploymentID)
	if err != nil {
		r.fail(ctx, "clone", err)
		return
	}

	if r.checkCancelled(ctx) {
		return
	}

	r.emit(ctx, logbus.LevelInfo, "analysis", "analyzing workspace")
	r.detected = detect.Detect(r.workspace)
	r.emit(ctx, logbus.LevelSuccess, "analysis", fmt.Sprintf("detected %s (%s), build_command=%q build_directory=%q",
		r.detected.Framework, r.detected.Type, r.detected.BuildCommand, r.detected.BuildDirectory))
	if _, err := p.deployments.UpdateState(ctx, deploymentID, deployment.StateCloning, deployment.StatePatch{Detected: &r.detected}); err != nil {
		r.logger.Error("recording detection result", "error", err)
	}

	if r.checkCancelled(ctx) {
		return
	}

	if err := r.selectProvider(ctx, deploymentID); err != nil {
		r.fail(ctx, "provider-selection", err)
		return
	}

	if r.checkCancelled(ctx) {
		return
	}

	if err := r.loadCredential(ctx, deploymentID); err != nil {
		r.fail(ctx, "credentials", err)
		return
	}

	if r.checkCancelled(ctx) {
		return
	}

	artifactPath, buildErr := r.runBuild(ctx, deploymentID, workspace)
	if buildErr != nil {
		r.fail(ctx, "build", buildErr)
		return
	}

	if r.checkCancelled(ctx) {
		return
	}

	result, err := r.runDeploy(ctx, deploymentID, artifactPath)
	if err != nil {
		r.fail(ctx, "deployment", err)
		return
	}

	r.finalize(ctx, result)
}

// checkCancelled observes cancellation intent, on the job item or on the
// Deployment record, at a pipeline checkpoint (spec.md §5). If set, it
// transitions the deployment to cancelled and completes the job as
// non-retryable.
func (r *jobRun) checkCancelled(ctx context.Context) bool {
	cancelled, err := r.pipeline.queue.IsCancelled(ctx, r.item.JobID)
	if err != nil {
		r.logger.Warn("checking cancellation intent", "error", err)
		return false
	}
	if !cancelled {
		d, getErr := r.pipeline.deployments.Get(ctx, r.item.DeploymentID)
		if getErr != nil {
			r.logger.Warn("checking deployment cancellation flag", "error", getErr)
			return false
		}
		cancelled = d.CancelRequested
	}
	if !cancelled {
		return false
	}

	r.emit(ctx, logbus.LevelWarn, "cancel", "cancellation observed at checkpoint")
	updated, err := r.pipeline.deployments.UpdateState(ctx, r.item.DeploymentID, deployment.StateCancelled, deployment.StatePatch{})
	if err != nil {
		r.logger.Error("transitioning to cancelled", "error", err)
	} else {
		r.recordCompletion(updated)
	}
	if r.deployAttempted {
		r.bestEffortDelete(ctx)
	}
	_ = r.pipeline.queue.Complete(ctx, r.item, "cancelled")
	return true
}

func (r *jobRun) bestEffortDelete(ctx context.Context) {
	adapter, ok := r.pipeline.registry.Get(r.chosen)
	if !ok || r.credential == nil {
		return
	}
	_, _ = adapter.Delete(ctx, r.item.DeploymentID.String(), r.credential)
}

// fail records a terminal or retryable failure depending on the error
// kind, per spec.md §4.9's retry rule.
func (r *jobRun) fail(ctx context.Context, step string, err error) {
	r.emit(ctx, logbus.LevelError, step, err.Error())

	if errors.Is(err, context.DeadlineExceeded) {
		err = apperr.New(apperr.TimeoutErrorKind, "job exceeded its wall-clock timeout")
	}

	if apperr.Retryable(err) {
		telemetry.JobRetriesTotal.WithLabelValues(retryKindLabel(err)).Inc()
		if retryErr := r.pipeline.queue.Retry(ctx, r.item); retryErr != nil {
			r.logger.Error("re-enqueueing retryable failure", "error", retryErr)
		}
		// The Deployment stays in its current in-flight state; the next
		// lease of this job will resume from Clone.
		return
	}

	updated, updErr := r.pipeline.deployments.UpdateState(ctx, r.item.DeploymentID, deployment.StateFailed, deployment.StatePatch{
		ErrorMessage: err.Error(),
	})
	if updErr != nil {
		r.logger.Error("transitioning to failed", "error", updErr)
	} else {
		r.recordCompletion(updated)
	}
	if completeErr := r.pipeline.queue.Complete(ctx, r.item, "failed"); completeErr != nil {
		r.logger.Error("completing failed job", "error", completeErr)
	}
}

func (r *jobRun) finalize(ctx context.Context, result provider.DeployResult) {
	updated, err := r.pipeline.deployments.UpdateState(ctx, r.item.DeploymentID, deployment.StateSuccess, deployment.StatePatch{
		ChosenProvider: r.chosen,
		DeploymentURL:  result.URL,
	})
	if err != nil {
		r.logger.Error("transitioning to success", "error", err)
	} else {
		r.recordCompletion(updated)
	}
	r.emit(ctx, logbus.LevelSuccess, "deployment", fmt.Sprintf("deployed to %s", result.URL))

	if err := r.pipeline.queue.Complete(ctx, r.item, "success"); err != nil {
		r.logger.Error("completing successful job", "error", err)
	}
}

// recordCompletion reports terminal-state metrics once a Deployment has
// reached success, failed, or cancelled.
func (r *jobRun) recordCompletion(d deployment.Deployment) {
	telemetry.DeploymentsCompletedTotal.WithLabelValues(string(d.State), string(d.ChosenProvider)).Inc()
	if d.CompletedAt != nil {
		telemetry.DeploymentDuration.WithLabelValues(string(d.State)).Observe(d.CompletedAt.Sub(d.CreatedAt).Seconds())
	}
}

func retryKindLabel(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Kind.Error()
	}
	return "unknown"
}

func (r *jobRun) cleanup() {
	if r.workspace == "" {
		return
	}
	if err := r.pipeline.builder.Cleanup(r.workspace); err != nil {
		r.logger.Warn("cleaning up workspace", "error", err, "workspace", r.workspace)
	}
}

func (r *jobRun) emit(ctx context.Context, level logbus.Level, step, message string) {
	if _, err := r.pipeline.bus.Append(ctx, r.item.DeploymentID, level, message, step, nil); err != nil {
		r.logger.Warn("appending log event", "error", err, "step", step)
	}
}
