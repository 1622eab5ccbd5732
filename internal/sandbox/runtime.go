package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerSpec is everything the substrate needs to launch one isolated,
// resource-constrained execution unit.
type ContainerSpec struct {
	Image          string
	Cmd            []string
	Labels         map[string]string
	MemoryBytes    int64
	PidsLimit      int64
	NetworkMode    string
	ReadOnlyRootfs bool
}

// ContainerExit carries the terminal status of a waited-on unit.
type ContainerExit struct {
	StatusCode int64
}

// Runtime abstracts the container engine so the substrate can be exercised
// against a fake in tests. The production implementation is DockerRuntime.
type Runtime interface {
	// ImageLabels returns the labels of an image, or ErrImageNotFound.
	ImageLabels(ctx context.Context, ref string) (map[string]string, error)
	// BuildImage builds an image from a directory context, embedding labels.
	BuildImage(ctx context.Context, contextDir, ref string, labels map[string]string) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	// WaitContainer resolves when the unit stops running. The error channel
	// reports runtime-level wait failures.
	WaitContainer(ctx context.Context, id string) (<-chan ContainerExit, <-chan error)
	// ContainerOutput returns the demultiplexed stdout and stderr of a
	// stopped unit.
	ContainerOutput(ctx context.Context, id string) (stdout, stderr []byte, err error)
	KillContainer(ctx context.Context, id string) error
	// RemoveContainer force-removes the unit and its filesystem.
	RemoveContainer(ctx context.Context, id string) error
}

// DockerRuntime implements Runtime against the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

var _ Runtime = (*DockerRuntime)(nil)

// NewDockerRuntime connects to the engine using the standard environment
// (DOCKER_HOST etc.) with API version negotiation.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close releases the engine connection.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

func (d *DockerRuntime) ImageLabels(ctx context.Context, ref string) (map[string]string, error) {
	inspect, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("image inspect %s: %w", ref, err)
	}
	if inspect.Config == nil {
		return map[string]string{}, nil
	}
	return inspect.Config.Labels, nil
}

func (d *DockerRuntime) BuildImage(ctx context.Context, contextDir, ref string, labels map[string]string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar build context %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{ref},
		Labels:      labels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("image build %s: %w", ref, err)
	}
	defer resp.Body.Close()

	// The build streams progress as JSON lines; draining the body is what
	// actually drives the build to completion.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("image build %s: reading build output: %w", ref, err)
	}
	return nil
}

func (d *DockerRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	pids := spec.PidsLimit
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    spec.MemoryBytes,
			PidsLimit: &pids,
		},
		NetworkMode:    container.NetworkMode(spec.NetworkMode),
		CapDrop:        strslice.StrSlice{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		ReadonlyRootfs: spec.ReadOnlyRootfs,
	}
	created, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:  spec.Image,
		Cmd:    strslice.StrSlice(spec.Cmd),
		Labels: spec.Labels,
	}, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("container create from %s: %w", spec.Image, err)
	}
	return created.ID, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start %s: %w", id, err)
	}
	return nil
}

func (d *DockerRuntime) WaitContainer(ctx context.Context, id string) (<-chan ContainerExit, <-chan error) {
	exitCh := make(chan ContainerExit, 1)
	errCh := make(chan error, 1)

	waitCh, waitErrCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	go func() {
		select {
		case resp := <-waitCh:
			exitCh <- ContainerExit{StatusCode: resp.StatusCode}
		case err := <-waitErrCh:
			errCh <- err
		}
	}()
	return exitCh, errCh
}

func (d *DockerRuntime) ContainerOutput(ctx context.Context, id string) ([]byte, []byte, error) {
	rc, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, fmt.Errorf("container logs %s: %w", id, err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return nil, nil, fmt.Errorf("container logs %s: demux: %w", id, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func (d *DockerRuntime) KillContainer(ctx context.Context, id string) error {
	return d.cli.ContainerKill(ctx, id, "KILL")
}

func (d *DockerRuntime) RemoveContainer(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
