package platform

import (
	"fmt"

	dockerclient "github.com/docker/docker/client"
)

// NewDockerClient creates a Docker Engine API client for the Container
// Builder (C5). If host is empty, the client negotiates against the
// platform default socket (DOCKER_HOST env var, or the OS default).
func NewDockerClient(host string) (*dockerclient.Client, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return cli, nil
}
