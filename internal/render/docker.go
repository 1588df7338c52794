package render

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the subset of the Docker client used by DockerRenderer.
type dockerAPI interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (dockerimage.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options dockerimage.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DefaultDockerArgs is the argument template passed to the renderer image.
const DefaultDockerArgs = "--model /models/{model_file} --material {material} --angle {angle} --width {width} --height {height} --output /out/{output}"

// DockerRendererConfig holds configuration for the Docker renderer.
type DockerRendererConfig struct {
	Image      string
	Args       string // argument template, DefaultDockerArgs when empty
	ModelsDir  string // host directory mounted read-only at /models
	ScratchDir string // host directory mounted at /out
	Timeout    time.Duration
}

// DockerRenderer implements Renderer by running one renderer container per frame.
type DockerRenderer struct {
	client dockerAPI
	config DockerRendererConfig

	pullOnce sync.Once
	pullErr  error
}

// NewDockerRenderer creates a Docker-based renderer from standard environment variables (DOCKER_HOST, etc.).
func NewDockerRenderer(cfg DockerRendererConfig) (*DockerRenderer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return newDockerRenderer(cli, cfg)
}

func newDockerRenderer(api dockerAPI, cfg DockerRendererConfig) (*DockerRenderer, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("renderer image is required")
	}
	if cfg.Args == "" {
		cfg.Args = DefaultDockerArgs
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "spinframe", "docker")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	for _, dir := range []*string{&cfg.ModelsDir, &cfg.ScratchDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", *dir, err)
		}
		*dir = abs
	}
	return &DockerRenderer{client: api, config: cfg}, nil
}

// ensureImage checks the renderer image exists locally and pulls it otherwise.
func (d *DockerRenderer) ensureImage(ctx context.Context) error {
	d.pullOnce.Do(func() {
		if _, err := d.client.ImageInspect(ctx, d.config.Image); err == nil {
			return
		}
		reader, err := d.client.ImagePull(ctx, d.config.Image, dockerimage.PullOptions{})
		if err != nil {
			d.pullErr = fmt.Errorf("failed to pull image %s: %w", d.config.Image, err)
			return
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	})
	return d.pullErr
}

// Render implements Renderer.Render using a Docker container.
func (d *DockerRenderer) Render(ctx context.Context, req RenderRequest) (image.Image, error) {
	if err := d.ensureImage(ctx); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.config.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%d-%d.png", req.Model, req.Material, req.Frame, time.Now().UnixNano())
	hostOutput := filepath.Join(d.config.ScratchDir, name)
	defer os.Remove(hostOutput)

	values := renderValues(req, filepath.Join("/models", req.ModelFile), name)
	cmd := expandArgs(d.config.Args, values)

	runCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	created, err := d.client.ContainerCreate(runCtx,
		&container.Config{
			Image: d.config.Image,
			Cmd:   cmd,
			Env: []string{
				"SPINFRAME_MODEL=" + req.Model,
				"SPINFRAME_MATERIAL=" + req.Material,
				fmt.Sprintf("SPINFRAME_FRAME=%d", req.Frame),
			},
		},
		&container.HostConfig{
			Binds: []string{
				d.config.ModelsDir + ":/models:ro",
				d.config.ScratchDir + ":/out",
			},
		},
		nil, nil, "")
	if err != nil {
		return nil, Transientf("failed to create render container: %v", err)
	}
	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rmCancel()
		d.client.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := d.client.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return nil, Transientf("failed to start render container: %v", err)
	}

	statusCh, errCh := d.client.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return nil, Transientf("render container wait: %v", err)
	case status := <-statusCh:
		if status.Error != nil {
			return nil, Transientf("render container: %s", status.Error.Message)
		}
		if status.StatusCode != 0 {
			return nil, Transientf("render container exited with code %d (%s)", status.StatusCode, strings.Join(cmd, " "))
		}
	case <-runCtx.Done():
		return nil, Transientf("render container: %v", runCtx.Err())
	}

	return decodePNGFile(hostOutput)
}
