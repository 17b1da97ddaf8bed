package builder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/pkg/detect"
)

const (
	buildMemoryLimitBytes = 4 * 1024 * 1024 * 1024
	buildNanoCPUs         = 1_000_000_000
	buildTimeout          = 15 * time.Minute
)

// build runs the build protocol from spec.md §4.5 and returns the image tag
// used for a Dockerfile build (empty for pure-static or language-container
// builds, which don't produce a lasting image).
func (b *Builder) build(ctx context.Context, workspace string, deploymentID uuid.UUID, det detect.Result, log LogFunc) (string, error) {
	dockerfilePath := filepath.Join(workspace, "Dockerfile")
	if _, err := os.Stat(dockerfilePath); err == nil {
		return b.buildDockerfile(ctx, workspace, deploymentID, log)
	}

	if det.IsPureStatic {
		log("info", "workspace is pure static, skipping build")
		return "", nil
	}

	return "", b.buildLanguageContainer(ctx, workspace, det, log)
}

func (b *Builder) buildDockerfile(ctx context.Context, workspace string, deploymentID uuid.UUID, log LogFunc) (string, error) {
	if b.docker == nil {
		return "", containerUnavailable(fmt.Errorf("no docker client configured"))
	}

	tag := "deployify-build:" + deploymentID.String()
	log("info", fmt.Sprintf("building image %s from Dockerfile", tag))

	buildCtx, err := archive.TarWithOptions(workspace, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("packaging build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := b.docker.ImageBuild(ctx, buildCtx, dockerimage.BuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return "", containerUnavailable(err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			log("info", line)
		}
	}

	return tag, nil
}

func (b *Builder) buildLanguageContainer(ctx context.Context, workspace string, det detect.Result, log LogFunc) error {
	if b.docker == nil {
		return containerUnavailable(fmt.Errorf("no docker client configured"))
	}

	buildCtx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	image := languageImage(det)
	install := installCommand(det.PackageManager)
	cmd := det.BuildCommand
	if cmd == "" {
		cmd = defaultBuildCommand
	}
	shellCmd := install + " && " + cmd

	log("info", fmt.Sprintf("running build in %s: %s", image, shellCmd))

	if _, _, err := b.docker.ImageInspectWithRaw(buildCtx, image); err != nil {
		log("info", fmt.Sprintf("pulling image %s", image))
		pullResp, pullErr := b.docker.ImagePull(buildCtx, image, dockerimage.PullOptions{})
		if pullErr != nil {
			return containerUnavailable(pullErr)
		}
		_, _ = io.Copy(io.Discard, pullResp)
		pullResp.Close()
	}

	created, err := b.docker.ContainerCreate(buildCtx,
		&container.Config{
			Image:      image,
			Cmd:        []string{"sh", "-c", shellCmd},
			WorkingDir: "/workspace",
			Tty:        false,
		},
		&container.HostConfig{
			Binds: []string{workspace + ":/workspace"},
			Resources: container.Resources{
				Memory:   buildMemoryLimitBytes,
				NanoCPUs: buildNanoCPUs,
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return containerUnavailable(err)
	}
	containerID := created.ID
	defer func() {
		_ = b.docker.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := b.docker.ContainerStart(buildCtx, containerID, container.StartOptions{}); err != nil {
		return containerUnavailable(err)
	}

	logsReader, err := b.docker.ContainerLogs(buildCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return containerUnavailable(err)
	}

	var captured strings.Builder
	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		defer logsReader.Close()
		w := &prefixWriter{log: log, level: "info", capture: &captured}
		_, _ = stdcopy.StdCopy(w, w, logsReader)
	}()

	statusCh, errCh := b.docker.ContainerWait(buildCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return containerUnavailable(err)
		}
	case status := <-statusCh:
		<-logsDone
		if status.StatusCode != 0 {
			return apperr.New(apperr.BuildErrorKind, fmt.Sprintf("build exited with status %d", status.StatusCode)).
				WithDetail(captured.String())
		}
	case <-buildCtx.Done():
		return apperr.New(apperr.TimeoutErrorKind, "build timed out")
	}

	return nil
}

// prefixWriter streams demuxed container output one line at a time to log,
// while also retaining the full text for error reporting on build failure.
type prefixWriter struct {
	log     LogFunc
	level   string
	capture *strings.Builder
	buf     strings.Builder
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.capture.Write(p)
	w.buf.Write(p)
	for {
		s := w.buf.String()
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(s[:idx], "\r")
		if line != "" {
			w.log(w.level, line)
		}
		w.buf.Reset()
		w.buf.WriteString(s[idx+1:])
	}
	return len(p), nil
}
