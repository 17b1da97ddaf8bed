// Package netlify implements the provider.Adapter contract against the
// Netlify API.
package netlify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wisbric/deployify/pkg/provider"
)

const defaultBaseURL = "https://api.netlify.com/api/v1"

// client is a thin wrapper over net/http scoped to a single call's bearer
// token; it retains no state between calls.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient() *client {
	return &client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path, token string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building netlify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling netlify api: %w", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading netlify response: %w", err)
	}
	if len(data) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding netlify response: %w", err)
	}
	return nil
}

func httpStatusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &provider.StatusError{StatusCode: status, Message: message}
}

func (c *client) getJSON(ctx context.Context, path, token string, out any) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, path, token, "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding netlify response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *client) postJSON(ctx context.Context, path, token string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, fmt.Errorf("encoding netlify request: %w", err)
		}
	}

	resp, err := c.do(ctx, http.MethodPost, path, token, "application/json", &body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding netlify response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
