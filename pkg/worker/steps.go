package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/pkg/builder"
	"github.com/wisbric/deployify/pkg/deployment"
	"github.com/wisbric/deployify/pkg/logbus"
	"github.com/wisbric/deployify/pkg/provider"
	"github.com/wisbric/deployify/pkg/selector"
)

// runClone drives the Clone step (spec.md §4.9 step 2): fresh workspace,
// shallow clone with branch fallback. Its errors are already classified as
// retryable or terminal by pkg/builder.
func (r *jobRun) runClone(ctx context.Context, deploymentID uuid.UUID) (string, error) {
	log := r.logFunc(ctx, "clone")
	workspace, err := r.pipeline.builder.Clone(ctx, deploymentID, r.item.Payload.RepoURL, r.item.Payload.Branch, log)
	r.workspace = workspace
	if err != nil {
		return "", err
	}
	r.emit(ctx, logbus.LevelSuccess, "clone", "clone complete")
	return workspace, nil
}

// selectProvider runs the deterministic Provider Selector (C4) unless an
// explicit provider chose itself already, per spec.md §4.4.
func (r *jobRun) selectProvider(ctx context.Context, deploymentID uuid.UUID) error {
	policy := selector.Policy{
		Environment:        string(r.item.Payload.Environment),
		Budget:             r.item.Payload.Budget,
		PreferredProviders: providerKinds(r.item.Payload.PreferredProviders),
		ExplicitProvider:   provider.Kind(r.item.Payload.ExplicitProvider),
	}

	kind, ok := selector.Select(r.detected, policy, r.pipeline.registry)
	if !ok {
		return apperr.New(apperr.ValidationErrorKind, "no registered provider could be selected for this deployment")
	}

	r.chosen = kind
	r.emit(ctx, logbus.LevelInfo, "provider-selection", fmt.Sprintf("selected provider %s", kind))
	if _, err := r.pipeline.deployments.UpdateState(ctx, deploymentID, deployment.StateCloning, deployment.StatePatch{
		ChosenProvider: kind,
	}); err != nil {
		r.logger.Error("recording chosen provider", "error", err)
	}
	return nil
}

// loadCredential resolves which credential to use (spec.md §4.9 step 5):
// the explicit credential if one was named, else the first active
// credential for the chosen provider.
func (r *jobRun) loadCredential(ctx context.Context, deploymentID uuid.UUID) error {
	if raw := r.item.Payload.ExplicitCredentialID; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.New(apperr.ValidationErrorKind, "explicit_credential_id is not a valid UUID")
		}
		plaintext, err := r.pipeline.vault.GetDecrypted(ctx, id, "", r.chosen)
		if err != nil {
			return err
		}
		r.credential = plaintext
		return nil
	}

	_, plaintext, err := r.pipeline.vault.GetFirstActive(ctx, r.chosen)
	if err != nil {
		return err
	}
	r.credential = plaintext
	return nil
}

// runBuild drives the Build step (spec.md §4.9 step 6) against the already
// cloned, already analyzed workspace.
func (r *jobRun) runBuild(ctx context.Context, deploymentID uuid.UUID, workspace string) (string, error) {
	if _, err := r.pipeline.deployments.UpdateState(ctx, deploymentID, deployment.StateBuilding, deployment.StatePatch{}); err != nil {
		r.logger.Error("transitioning to building", "error", err)
	}
	r.emit(ctx, logbus.LevelInfo, "build", "starting build")

	log := r.logFunc(ctx, "build")
	result, err := r.pipeline.builder.Build(ctx, workspace, deploymentID, r.detected, log)
	if err != nil {
		return "", err
	}

	r.emit(ctx, logbus.LevelSuccess, "build", fmt.Sprintf("build complete, artifact at %s", result.ArtifactPath))
	return result.ArtifactPath, nil
}

// runDeploy drives the Deploy step (spec.md §4.9 step 7): invokes the chosen
// provider adapter with the resolved artifact and loaded credentials.
func (r *jobRun) runDeploy(ctx context.Context, deploymentID uuid.UUID, artifactPath string) (provider.DeployResult, error) {
	adapter, ok := r.pipeline.registry.Get(r.chosen)
	if !ok {
		return provider.DeployResult{}, apperr.New(apperr.ValidationErrorKind, "chosen provider is not registered").WithDetail(string(r.chosen))
	}

	if _, err := r.pipeline.deployments.UpdateState(ctx, deploymentID, deployment.StateDeploying, deployment.StatePatch{}); err != nil {
		r.logger.Error("transitioning to deploying", "error", err)
	}
	r.emit(ctx, logbus.LevelInfo, "deployment", fmt.Sprintf("deploying to %s", r.chosen))
	r.deployAttempted = true

	cfg := provider.DeployConfig{
		Name:    deploymentName(r.item.Payload.Name, deploymentID),
		EnvVars: r.item.Payload.EnvVars,
	}

	result, err := adapter.Deploy(ctx, artifactPath, cfg, r.credential)
	if err != nil {
		var statusErr *provider.StatusError
		if errors.As(err, &statusErr) && statusErr.IsClientError() {
			return provider.DeployResult{}, apperr.New(apperr.DeployErrorKind, "provider rejected the deployment").WithDetail(statusErr.Error())
		}
		return provider.DeployResult{}, apperr.NewRetryable(apperr.DeployErrorKind, "provider deploy call failed").WithDetail(err.Error())
	}
	return result, nil
}

func (r *jobRun) logFunc(ctx context.Context, step string) builder.LogFunc {
	return func(level, message string) {
		lvl := logbus.LevelInfo
		if level == "warn" {
			lvl = logbus.LevelWarn
		}
		r.emit(ctx, lvl, step, message)
	}
}

func providerKinds(raw []string) []provider.Kind {
	out := make([]provider.Kind, 0, len(raw))
	for _, s := range raw {
		out = append(out, provider.Kind(s))
	}
	return out
}

func deploymentName(configured string, deploymentID uuid.UUID) string {
	if configured != "" {
		return configured
	}
	return "deployify-" + deploymentID.String()
}
