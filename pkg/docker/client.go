// Package docker wraps the engine API client with the small surface
// labdock needs: building images, running project containers and
// managing the per-project network and volumes.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"labdock/pkg/logger"
)

// Labels applied to everything labdock creates, so project resources
// can be found again without bookkeeping files.
const (
	LabelManaged    = "labdock.managed"
	LabelProject    = "labdock.project"
	LabelService    = "labdock.service"
	LabelOneoff     = "labdock.oneoff"
	LabelConfigHash = "labdock.config-hash"
)

// engineAPI is the subset of the engine client used by labdock. Tests
// substitute a fake implementation.
type engineAPI interface {
	Close() error
	Ping(ctx context.Context) (types.Ping, error)

	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)

	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)

	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkRemove(ctx context.Context, networkID string) error

	VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
}

// Client talks to the local container engine.
type Client struct {
	api engineAPI
	log *logger.Logger
}

// NewClient connects to the engine configured through the standard
// DOCKER_HOST family of variables and verifies it is reachable.
func NewClient(ctx context.Context) (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client: %w", err)
	}

	c := newClientWithAPI(api)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.api.Ping(pingCtx); err != nil {
		c.api.Close()
		return nil, fmt.Errorf("container engine is not reachable: %w", err)
	}

	return c, nil
}

func newClientWithAPI(api engineAPI) *Client {
	return &Client{api: api, log: logger.GetLogger()}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// NetworkName returns the bridge network shared by a project's
// containers.
func NetworkName(project string) string {
	return project + "_default"
}

// ContainerName returns the fixed name of a project service container.
func ContainerName(project, service string) string {
	return project + "-" + service
}

// EnsureNetwork creates the project network if it does not exist yet
// and returns its ID.
func (c *Client) EnsureNetwork(ctx context.Context, project string) (string, error) {
	name := NetworkName(project)

	networks, err := c.api.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list networks: %w", err)
	}
	for _, nw := range networks {
		// The name filter matches substrings, so compare exactly.
		if nw.Name == name {
			return nw.ID, nil
		}
	}

	c.log.Debug("Creating project network", "network", name)
	resp, err := c.api.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{
			LabelManaged: "true",
			LabelProject: project,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return resp.ID, nil
}

// RemoveNetwork deletes the project network if present.
func (c *Client) RemoveNetwork(ctx context.Context, project string) error {
	name := NetworkName(project)

	networks, err := c.api.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", LabelProject+"="+project)),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	for _, nw := range networks {
		if nw.Name != name {
			continue
		}
		c.log.Debug("Removing project network", "network", name)
		if err := c.api.NetworkRemove(ctx, nw.ID); err != nil {
			return fmt.Errorf("failed to remove network %s: %w", name, err)
		}
	}
	return nil
}

// ListProjectContainers returns the containers labelled as belonging to
// the project, including stopped ones when all is set.
func (c *Client) ListProjectContainers(ctx context.Context, project string, all bool) ([]types.Container, error) {
	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     all,
		Filters: filters.NewArgs(filters.Arg("label", LabelProject+"="+project)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// RemoveProjectVolumes deletes the named volumes created for the
// project. Volumes still in use are reported, not force-removed.
func (c *Client) RemoveProjectVolumes(ctx context.Context, project string) error {
	resp, err := c.api.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", LabelProject+"="+project)),
	})
	if err != nil {
		return fmt.Errorf("failed to list volumes: %w", err)
	}

	var errs []error
	for _, vol := range resp.Volumes {
		c.log.Debug("Removing volume", "volume", vol.Name)
		if err := c.api.VolumeRemove(ctx, vol.Name, false); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove volume %s: %w", vol.Name, err))
		}
	}
	return errors.Join(errs...)
}
