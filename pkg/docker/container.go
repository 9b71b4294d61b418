package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"labdock/pkg/config"
)

// CreateOptions describes the container to create for a service.
type CreateOptions struct {
	Project     *config.Project
	Service     *config.Service
	Name        string
	NetworkName string

	// Env is the resolved KEY=VALUE environment for the container.
	Env []string

	// Labels are merged over the managed label set.
	Labels map[string]string

	// PublishPorts binds the service's host ports. One-off containers
	// leave it off so they never collide with the running service.
	PublishPorts bool

	Interactive bool
	Tty         bool

	// Entrypoint and Command override the service values when non-nil.
	Entrypoint []string
	Command    []string

	Oneoff bool
}

// CreateContainer creates a container for a service and returns its ID.
func (c *Client) CreateContainer(ctx context.Context, opts CreateOptions) (string, error) {
	s := opts.Service

	var exposed nat.PortSet
	var bindings nat.PortMap
	if opts.PublishPorts {
		var err error
		exposed, bindings, err = s.PortBindings()
		if err != nil {
			return "", err
		}
	}

	volumeMounts, err := opts.Project.ServiceMounts(s)
	if err != nil {
		return "", err
	}
	mounts := toMounts(opts.Project.Name, s.Name, volumeMounts)

	labels := make(map[string]string, len(s.Labels)+5)
	for k, v := range s.Labels {
		labels[k] = v
	}
	// Descriptor labels never shadow the managed set.
	labels[LabelManaged] = "true"
	labels[LabelProject] = opts.Project.Name
	labels[LabelService] = s.Name
	if opts.Oneoff {
		labels[LabelOneoff] = "true"
	}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	entrypoint := []string(s.Entrypoint)
	if opts.Entrypoint != nil {
		entrypoint = opts.Entrypoint
	}
	command := []string(s.Command)
	if opts.Command != nil {
		command = opts.Command
	}

	restart, err := toRestartPolicy(s.Restart)
	if err != nil {
		return "", fmt.Errorf("service %s: %w", s.Name, err)
	}
	if opts.Oneoff {
		restart = container.RestartPolicy{Name: container.RestartPolicyDisabled}
	}

	var stopTimeout *int
	if s.StopGracePeriod != nil {
		seconds := int(time.Duration(*s.StopGracePeriod).Seconds())
		stopTimeout = &seconds
	}

	cfg := &container.Config{
		Image:        s.Image,
		Hostname:     s.Hostname,
		User:         s.User,
		WorkingDir:   s.WorkingDir,
		Env:          opts.Env,
		Entrypoint:   entrypoint,
		Cmd:          command,
		ExposedPorts: exposed,
		Labels:       labels,
		Healthcheck:  toHealthConfig(s.Healthcheck),
		StopTimeout:  stopTimeout,
		Tty:          opts.Tty,
		OpenStdin:    opts.Interactive,
		StdinOnce:    opts.Interactive && opts.Oneoff,
		AttachStdin:  opts.Interactive && opts.Oneoff,
		AttachStdout: opts.Oneoff,
		AttachStderr: opts.Oneoff,
	}

	hostConfig := &container.HostConfig{
		PortBindings:  bindings,
		Mounts:        mounts,
		RestartPolicy: restart,
	}

	endpoint := &network.EndpointSettings{}
	if !opts.Oneoff {
		// Service containers are reachable from each other under their
		// service name.
		endpoint.Aliases = []string{s.Name}
	}
	networking := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			opts.NetworkName: endpoint,
		},
	}

	c.log.Debug("Creating container", "container", opts.Name, "image", s.Image)
	resp, err := c.api.ContainerCreate(ctx, cfg, hostConfig, networking, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.Name, err)
	}
	return resp.ID, nil
}

// StartContainer starts a container by ID.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", shortID(id), err)
	}
	return nil
}

// StopContainer stops a container, waiting up to timeout before the
// engine kills it. A nil timeout uses the container's own grace period.
func (c *Client) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	opts := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		opts.Timeout = &seconds
	}
	if err := c.api.ContainerStop(ctx, id, opts); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", shortID(id), err)
	}
	return nil
}

// RemoveContainer deletes a container.
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", shortID(id), err)
	}
	return nil
}

// InspectContainer returns the full container state.
func (c *Client) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return types.ContainerJSON{}, fmt.Errorf("failed to inspect container %s: %w", shortID(id), err)
	}
	return info, nil
}

// WaitContainer blocks until the given condition and returns the
// container's exit code.
func (c *Client) WaitContainer(ctx context.Context, id string, condition container.WaitCondition) (int64, error) {
	waitCh, errCh := c.api.ContainerWait(ctx, id, condition)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed waiting for container %s: %w", shortID(id), err)
	case resp := <-waitCh:
		if resp.Error != nil {
			return resp.StatusCode, fmt.Errorf("container %s wait failed: %s", shortID(id), resp.Error.Message)
		}
		return resp.StatusCode, nil
	}
}

// AttachContainer attaches to a container's streams, optionally
// including stdin.
func (c *Client) AttachContainer(ctx context.Context, id string, stdin bool) (types.HijackedResponse, error) {
	resp, err := c.api.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  stdin,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return types.HijackedResponse{}, fmt.Errorf("failed to attach to container %s: %w", shortID(id), err)
	}
	return resp, nil
}

// LogsOptions controls log streaming.
type LogsOptions struct {
	Follow     bool
	Tail       string
	Timestamps bool
	Since      string
}

// StreamLogs copies a container's log output to the given writers,
// demultiplexing the engine's stream framing for non-TTY containers.
func (c *Client) StreamLogs(ctx context.Context, id string, opts LogsOptions, stdout, stderr io.Writer) error {
	info, err := c.InspectContainer(ctx, id)
	if err != nil {
		return err
	}

	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
		Since:      opts.Since,
	})
	if err != nil {
		return fmt.Errorf("failed to read logs of container %s: %w", shortID(id), err)
	}
	defer rc.Close()

	if info.Config != nil && info.Config.Tty {
		_, err = io.Copy(stdout, rc)
	} else {
		_, err = stdcopy.StdCopy(stdout, stderr, rc)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to stream logs of container %s: %w", shortID(id), err)
	}
	return nil
}

func toMounts(project, service string, volumeMounts []config.VolumeMount) []mount.Mount {
	mounts := make([]mount.Mount, 0, len(volumeMounts))
	for _, vm := range volumeMounts {
		m := mount.Mount{
			Source:   vm.Source,
			Target:   vm.Target,
			ReadOnly: vm.ReadOnly,
		}
		if vm.Named {
			m.Type = mount.TypeVolume
			m.VolumeOptions = &mount.VolumeOptions{
				Labels: map[string]string{
					LabelManaged: "true",
					LabelProject: project,
					LabelService: service,
				},
			}
		} else {
			m.Type = mount.TypeBind
		}
		mounts = append(mounts, m)
	}
	return mounts
}

func toHealthConfig(h *config.Healthcheck) *container.HealthConfig {
	if h == nil {
		return nil
	}
	if h.Disable {
		return &container.HealthConfig{Test: []string{"NONE"}}
	}
	return &container.HealthConfig{
		Test:        []string(h.Test),
		Interval:    time.Duration(h.Interval),
		Timeout:     time.Duration(h.Timeout),
		Retries:     h.Retries,
		StartPeriod: time.Duration(h.StartPeriod),
	}
}

func toRestartPolicy(policy string) (container.RestartPolicy, error) {
	switch policy {
	case "", "no":
		return container.RestartPolicy{Name: container.RestartPolicyDisabled}, nil
	case "always":
		return container.RestartPolicy{Name: container.RestartPolicyAlways}, nil
	case "unless-stopped":
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}, nil
	case "on-failure":
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure}, nil
	}
	if count, ok := strings.CutPrefix(policy, "on-failure:"); ok {
		n, err := strconv.Atoi(count)
		if err != nil || n < 0 {
			return container.RestartPolicy{}, fmt.Errorf("invalid restart policy %q", policy)
		}
		return container.RestartPolicy{
			Name:              container.RestartPolicyOnFailure,
			MaximumRetryCount: n,
		}, nil
	}
	return container.RestartPolicy{}, fmt.Errorf("invalid restart policy %q", policy)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
