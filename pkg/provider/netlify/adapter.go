package netlify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wisbric/deployify/pkg/provider"
)

// Adapter implements provider.Adapter for Netlify.
type Adapter struct {
	c *client
}

// New creates a Netlify adapter.
func New() *Adapter {
	return &Adapter{c: newClient()}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindNetlify }

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsFreeTier:         true,
		MaxArtifactMB:            500,
		SupportedProjectTypes:    []string{"static", "spa"},
		RequiredCredentialFields: []string{"api_token"},
		OptionalConfigFields:     []string{"site_id"},
	}
}

// Validate calls the user endpoint with the bearer token and expects 200.
func (a *Adapter) Validate(ctx context.Context, credentials map[string]string) (bool, error) {
	token := credentials["api_token"]
	if token == "" {
		return false, fmt.Errorf("missing api_token credential")
	}

	status, err := a.c.getJSON(ctx, "/user", token, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

type site struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SSLURL    string `json:"ssl_url"`
	URL       string `json:"url"`
	AdminURL  string `json:"admin_url"`
	DeployURL string `json:"deploy_url"`
}

func (a *Adapter) Deploy(ctx context.Context, artifactDir string, cfg provider.DeployConfig, credentials map[string]string) (provider.DeployResult, error) {
	token := credentials["api_token"]
	if token == "" {
		return provider.DeployResult{}, fmt.Errorf("missing api_token credential")
	}

	s, err := a.resolveSite(ctx, token, credentials["site_id"], cfg.Name)
	if err != nil {
		return provider.DeployResult{}, fmt.Errorf("resolving netlify site: %w", err)
	}

	archive := filepath.Join(os.TempDir(), fmt.Sprintf("netlify-deploy-%s.zip", s.ID))
	if err := zipDirectory(artifactDir, archive); err != nil {
		return provider.DeployResult{}, fmt.Errorf("packaging artifact: %w", err)
	}
	defer os.Remove(archive)

	f, err := os.Open(archive)
	if err != nil {
		return provider.DeployResult{}, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	resp, err := a.c.do(ctx, http.MethodPost, fmt.Sprintf("/sites/%s/deploys", s.ID), token, "application/zip", f)
	if err != nil {
		return provider.DeployResult{}, err
	}
	defer resp.Body.Close()

	var deploy struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		DeployURL  string `json:"deploy_url"`
		SiteID     string `json:"site_id"`
		State      string `json:"state"`
		ErrMessage string `json:"error_message"`
	}
	if err := decodeJSON(resp, &deploy); err != nil {
		return provider.DeployResult{}, err
	}
	if resp.StatusCode >= 400 {
		return provider.DeployResult{}, httpStatusError(resp.StatusCode, deploy.ErrMessage)
	}

	return provider.DeployResult{
		DeploymentID: deploy.ID,
		URL:          firstNonEmpty(deploy.URL, s.SSLURL, s.URL),
		PreviewURL:   deploy.DeployURL,
		Metadata:     map[string]string{"site_id": s.ID},
	}, nil
}

func (a *Adapter) Status(ctx context.Context, deploymentID string, credentials map[string]string) (provider.StatusResult, error) {
	token := credentials["api_token"]
	var deploy struct {
		State   string `json:"state"`
		SSLURL  string `json:"ssl_url"`
		URL     string `json:"url"`
		ErrText string `json:"error_message"`
	}
	code, err := a.c.getJSON(ctx, "/deploys/"+deploymentID, token, &deploy)
	if err != nil {
		return provider.StatusResult{}, err
	}
	if code >= 400 {
		return provider.StatusResult{Status: provider.StatusFailed, Error: deploy.ErrText}, nil
	}

	return provider.StatusResult{
		Status: mapState(deploy.State),
		URL:    firstNonEmpty(deploy.SSLURL, deploy.URL),
		Error:  deploy.ErrText,
	}, nil
}

func (a *Adapter) Delete(ctx context.Context, deploymentID string, credentials map[string]string) (bool, error) {
	token := credentials["api_token"]
	resp, err := a.c.do(ctx, http.MethodDelete, "/deploys/"+deploymentID, token, "", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (a *Adapter) resolveSite(ctx context.Context, token, siteID, name string) (site, error) {
	if siteID != "" {
		var s site
		code, err := a.c.getJSON(ctx, "/sites/"+siteID, token, &s)
		if err != nil {
			return site{}, err
		}
		if code == http.StatusOK {
			return s, nil
		}
	}

	var s site
	_, err := a.c.postJSON(ctx, "/sites", token, map[string]string{"name": sanitizeName(name)}, &s)
	if err != nil {
		return site{}, err
	}
	if s.ID == "" {
		return site{}, fmt.Errorf("netlify did not return a site id")
	}
	return s, nil
}

func mapState(state string) provider.Status {
	switch state {
	case "ready":
		return provider.StatusSuccess
	case "building", "processing", "uploading", "uploaded", "preparing":
		return provider.StatusBuilding
	case "error", "stopped":
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9-]+`)

func sanitizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nonAlnum.ReplaceAllString(n, "-")
	n = strings.Trim(n, "-")
	if n == "" {
		n = "deployify-site"
	}
	if len(n) > 63 {
		n = n[:63]
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
