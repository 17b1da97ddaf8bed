package vercel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/deployify/pkg/provider"
)

// pollInterval and pollTimeout bound how long Deploy waits for a deployment
// to leave the BUILDING state before returning control to the caller.
const (
	pollInterval = 2 * time.Second
	pollTimeout  = 60 * time.Second
)

// Adapter implements provider.Adapter for Vercel.
type Adapter struct {
	c *client
}

// New creates a Vercel adapter.
func New() *Adapter {
	return &Adapter{c: newClient()}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindVercel }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsFreeTier:         true,
		MaxArtifactMB:            100,
		SupportedProjectTypes:    []string{"static", "spa", "ssr"},
		RequiredCredentialFields: []string{"token"},
		OptionalConfigFields:     []string{"team_id", "project_id"},
	}
}

func (a *Adapter) Validate(ctx context.Context, credentials map[string]string) (bool, error) {
	token := credentials["token"]
	if token == "" {
		return false, fmt.Errorf("missing token credential")
	}

	status, err := a.c.do(ctx, http.MethodGet, "/v2/user", token, nil, nil, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

type deploymentResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ReadyState string `json:"readyState"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) Deploy(ctx context.Context, artifactDir string, cfg provider.DeployConfig, credentials map[string]string) (provider.DeployResult, error) {
	token := credentials["token"]
	if token == "" {
		return provider.DeployResult{}, fmt.Errorf("missing token credential")
	}

	files, err := buildFileManifest(artifactDir)
	if err != nil {
		return provider.DeployResult{}, fmt.Errorf("building vercel file manifest: %w", err)
	}

	body := map[string]any{
		"name":  sanitizeName(cfg.Name),
		"files": files,
		"target": "production",
	}
	if projectID := credentials["project_id"]; projectID != "" {
		body["project"] = projectID
	}

	var created deploymentResponse
	status, err := a.c.do(ctx, http.MethodPost, "/v13/deployments", token, teamQuery(credentials), body, &created)
	if err != nil {
		return provider.DeployResult{}, err
	}
	if status >= 400 {
		msg := ""
		if created.Error != nil {
			msg = created.Error.Message
		}
		return provider.DeployResult{}, &provider.StatusError{StatusCode: status, Message: msg}
	}

	final, err := a.pollUntilSettled(ctx, created.ID, token, credentials)
	if err != nil {
		return provider.DeployResult{}, err
	}
	if final.ReadyState == "ERROR" {
		msg := ""
		if final.Error != nil {
			msg = final.Error.Message
		}
		return provider.DeployResult{}, fmt.Errorf("vercel deployment failed: %s", msg)
	}

	return provider.DeployResult{
		DeploymentID: final.ID,
		URL:          "https://" + final.URL,
		Metadata:     map[string]string{},
	}, nil
}

// pollUntilSettled polls the deployment status every pollInterval until it
// reaches READY or ERROR, or pollTimeout elapses.
func (a *Adapter) pollUntilSettled(ctx context.Context, deploymentID, token string, credentials map[string]string) (deploymentResponse, error) {
	deadline := time.Now().Add(pollTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var d deploymentResponse
		_, err := a.c.do(ctx, http.MethodGet, "/v13/deployments/"+deploymentID, token, teamQuery(credentials), nil, &d)
		if err != nil {
			return deploymentResponse{}, err
		}
		if d.ReadyState == "READY" || d.ReadyState == "ERROR" {
			return d, nil
		}
		if time.Now().After(deadline) {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return deploymentResponse{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) Status(ctx context.Context, deploymentID string, credentials map[string]string) (provider.StatusResult, error) {
	token := credentials["token"]
	var d deploymentResponse
	code, err := a.c.do(ctx, http.MethodGet, "/v13/deployments/"+deploymentID, token, teamQuery(credentials), nil, &d)
	if err != nil {
		return provider.StatusResult{}, err
	}
	if code >= 400 {
		msg := ""
		if d.Error != nil {
			msg = d.Error.Message
		}
		return provider.StatusResult{Status: provider.StatusFailed, Error: msg}, nil
	}

	result := provider.StatusResult{Status: mapState(d.ReadyState), URL: "https://" + d.URL}
	if d.Error != nil {
		result.Error = d.Error.Message
	}
	return result, nil
}

func (a *Adapter) Delete(ctx context.Context, deploymentID string, credentials map[string]string) (bool, error) {
	token := credentials["token"]
	code, err := a.c.do(ctx, http.MethodDelete, "/v13/deployments/"+deploymentID, token, teamQuery(credentials), nil, nil)
	if err != nil {
		return false, err
	}
	return code >= 200 && code < 300, nil
}

func mapState(state string) provider.Status {
	switch state {
	case "READY":
		return provider.StatusSuccess
	case "BUILDING", "QUEUED", "INITIALIZING":
		return provider.StatusBuilding
	case "ERROR", "CANCELED":
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

func sanitizeName(name string) string {
	if name == "" {
		return "deployify-project"
	}
	return name
}
