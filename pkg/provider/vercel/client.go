// Package vercel implements the provider.Adapter contract against the
// Vercel API.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.vercel.com"

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

func (c *client) request(ctx context.Context, method, path, token string, query url.Values, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encoding vercel request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, fmt.Errorf("building vercel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling vercel api: %w", err)
	}
	return resp, nil
}

func (c *client) do(ctx context.Context, method, path, token string, query url.Values, body, out any) (int, error) {
	resp, err := c.request(ctx, method, path, token, query, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading vercel response: %w", err)
	}
	if len(data) > 0 && out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding vercel response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// teamQuery builds the team/project query params passed through when
// present in the credential.
func teamQuery(credentials map[string]string) url.Values {
	q := url.Values{}
	if teamID := credentials["team_id"]; teamID != "" {
		q.Set("teamId", teamID)
	}
	return q
}
