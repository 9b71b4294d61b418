// Package deployment turns a loaded project into running containers:
// it builds images, reconciles per-service containers, runs one-off
// commands and tears everything down again.
package deployment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"gopkg.in/yaml.v3"

	"labdock/pkg/config"
	"labdock/pkg/docker"
	"labdock/pkg/health"
	"labdock/pkg/logger"
)

// engine is the docker client surface the manager drives. Tests swap in
// a fake.
type engine interface {
	EnsureNetwork(ctx context.Context, project string) (string, error)
	RemoveNetwork(ctx context.Context, project string) error
	ListProjectContainers(ctx context.Context, project string, all bool) ([]types.Container, error)
	RemoveProjectVolumes(ctx context.Context, project string) error

	BuildImage(ctx context.Context, opts docker.BuildOptions) error
	PullImage(ctx context.Context, ref string, output io.Writer) error
	ImageExists(ctx context.Context, ref string) (bool, error)

	CreateContainer(ctx context.Context, opts docker.CreateOptions) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error)
	WaitContainer(ctx context.Context, id string, condition container.WaitCondition) (int64, error)
	AttachContainer(ctx context.Context, id string, stdin bool) (types.HijackedResponse, error)
	StreamLogs(ctx context.Context, id string, opts docker.LogsOptions, stdout, stderr io.Writer) error
}

// waiter reports when a started container is ready.
type waiter interface {
	WaitReady(ctx context.Context, containerID, service string, opts health.WaitOptions) error
}

// Manager orchestrates the lifecycle of one project.
type Manager struct {
	project *config.Project
	engine  engine
	health  waiter
	log     *logger.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewManager creates a manager for a project on top of an engine
// client.
func NewManager(project *config.Project, client *docker.Client) *Manager {
	return newManagerWithEngine(project, client, health.NewChecker(client))
}

func newManagerWithEngine(project *config.Project, eng engine, w waiter) *Manager {
	return &Manager{
		project: project,
		engine:  eng,
		health:  w,
		log:     logger.GetLogger(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// UpOptions controls a deployment pass.
type UpOptions struct {
	// Services narrows the deployment; dependencies are always
	// included. Empty deploys the whole project.
	Services []string

	// Build forces an image rebuild, NoBuild skips building entirely.
	Build   bool
	NoBuild bool

	// ForceRecreate replaces containers even when their configuration
	// has not changed.
	ForceRecreate bool

	// RemoveOrphans removes containers of services no longer in the
	// descriptor instead of just warning about them.
	RemoveOrphans bool

	// Wait blocks until every deployed service is ready.
	Wait        bool
	WaitTimeout time.Duration
}

// Up deploys the selected services in dependency order.
func (m *Manager) Up(ctx context.Context, opts UpOptions) error {
	order, err := startOrder(m.project, opts.Services)
	if err != nil {
		return err
	}

	if _, err := m.engine.EnsureNetwork(ctx, m.project.Name); err != nil {
		return err
	}

	if !opts.NoBuild {
		if err := m.ensureImages(ctx, order, buildPolicy{force: opts.Build}); err != nil {
			return err
		}
	}

	existing, err := m.serviceContainers(ctx)
	if err != nil {
		return err
	}
	m.handleOrphans(ctx, existing, opts.RemoveOrphans)

	started := make(map[string]string, len(order))
	for _, name := range order {
		id, err := m.deployService(ctx, m.project.Services[name], existing, opts.ForceRecreate)
		if err != nil {
			return fmt.Errorf("failed to deploy service %s: %w", name, err)
		}
		started[name] = id
	}

	if opts.Wait {
		for _, name := range order {
			service := m.project.Services[name]
			waitOpts := health.WaitOptions{Timeout: opts.WaitTimeout}
			if service.Healthcheck == nil {
				waitOpts.Probe = readinessProbe(service)
			}
			if err := m.health.WaitReady(ctx, started[name], name, waitOpts); err != nil {
				return err
			}
		}
	}

	return nil
}

// deployService brings one service's container in line with the
// descriptor and returns the container ID.
func (m *Manager) deployService(ctx context.Context, service *config.Service, existing map[string]types.Container, forceRecreate bool) (string, error) {
	name := docker.ContainerName(m.project.Name, service.Name)
	if service.ContainerName != "" {
		name = service.ContainerName
	}

	env, err := m.project.ServiceEnvironment(service)
	if err != nil {
		return "", err
	}
	envSlice := config.EnvSlice(env)

	hash, err := configHash(service, envSlice)
	if err != nil {
		return "", err
	}

	if current, ok := existing[service.Name]; ok {
		upToDate := !forceRecreate &&
			current.Labels[docker.LabelConfigHash] == hash &&
			current.State == "running"
		if upToDate {
			m.log.Info("Service is up to date", "service", service.Name)
			return current.ID, nil
		}

		m.log.Info("Recreating service container", "service", service.Name)
		if err := m.engine.StopContainer(ctx, current.ID, nil); err != nil {
			m.log.Warn("Failed to stop old container, removing anyway", "service", service.Name, "error", err)
		}
		if err := m.engine.RemoveContainer(ctx, current.ID, true); err != nil {
			return "", err
		}
	}

	id, err := m.engine.CreateContainer(ctx, docker.CreateOptions{
		Project:      m.project,
		Service:      service,
		Name:         name,
		NetworkName:  docker.NetworkName(m.project.Name),
		Env:          envSlice,
		Labels:       map[string]string{docker.LabelConfigHash: hash},
		PublishPorts: true,
		Interactive:  service.StdinOpen,
		Tty:          service.Tty,
	})
	if err != nil {
		return "", err
	}

	if err := m.engine.StartContainer(ctx, id); err != nil {
		return "", err
	}

	m.log.Info("Started service", "service", service.Name, "container", name)
	return id, nil
}

// serviceContainers maps service names to their current containers,
// ignoring one-off containers.
func (m *Manager) serviceContainers(ctx context.Context) (map[string]types.Container, error) {
	containers, err := m.engine.ListProjectContainers(ctx, m.project.Name, true)
	if err != nil {
		return nil, err
	}

	byService := make(map[string]types.Container, len(containers))
	for _, c := range containers {
		if c.Labels[docker.LabelOneoff] == "true" {
			continue
		}
		service := c.Labels[docker.LabelService]
		if service == "" {
			continue
		}
		byService[service] = c
	}
	return byService, nil
}

// handleOrphans deals with containers whose service is gone from the
// descriptor.
func (m *Manager) handleOrphans(ctx context.Context, existing map[string]types.Container, remove bool) {
	for service, c := range existing {
		if _, ok := m.project.Services[service]; ok {
			continue
		}
		delete(existing, service)

		if !remove {
			m.log.Warn("Found orphan container for removed service, use --remove-orphans to clean it up",
				"service", service)
			continue
		}

		m.log.Info("Removing orphan container", "service", service)
		if err := m.engine.StopContainer(ctx, c.ID, nil); err != nil {
			m.log.Warn("Failed to stop orphan container", "service", service, "error", err)
		}
		if err := m.engine.RemoveContainer(ctx, c.ID, true); err != nil {
			m.log.Warn("Failed to remove orphan container", "service", service, "error", err)
		}
	}
}

// DownOptions controls teardown.
type DownOptions struct {
	// RemoveVolumes also deletes the project's named volumes.
	RemoveVolumes bool

	// Timeout overrides each container's own stop grace period.
	Timeout *time.Duration
}

// Down stops and removes the project's containers in reverse dependency
// order, then the network, and optionally the named volumes.
func (m *Manager) Down(ctx context.Context, opts DownOptions) error {
	containers, err := m.engine.ListProjectContainers(ctx, m.project.Name, true)
	if err != nil {
		return err
	}

	order, err := stopOrder(m.project, nil)
	if err != nil {
		return err
	}

	byService := make(map[string][]types.Container)
	var leftovers []types.Container
	for _, c := range containers {
		service := c.Labels[docker.LabelService]
		if _, ok := m.project.Services[service]; ok && c.Labels[docker.LabelOneoff] != "true" {
			byService[service] = append(byService[service], c)
		} else {
			leftovers = append(leftovers, c)
		}
	}

	var errs []error
	removeAll := func(list []types.Container) {
		for _, c := range list {
			if err := m.engine.StopContainer(ctx, c.ID, opts.Timeout); err != nil {
				errs = append(errs, err)
			}
			if err := m.engine.RemoveContainer(ctx, c.ID, true); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, name := range order {
		if list, ok := byService[name]; ok {
			m.log.Info("Stopping service", "service", name)
			removeAll(list)
		}
	}
	removeAll(leftovers)

	if err := m.engine.RemoveNetwork(ctx, m.project.Name); err != nil {
		errs = append(errs, err)
	}

	if opts.RemoveVolumes {
		if err := m.engine.RemoveProjectVolumes(ctx, m.project.Name); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// readinessProbe picks the first published port as a readiness signal.
func readinessProbe(service *config.Service) *health.TCPProbe {
	_, bindings, err := service.PortBindings()
	if err != nil {
		return nil
	}
	for _, portBindings := range bindings {
		for _, b := range portBindings {
			if b.HostPort == "" {
				continue
			}
			return &health.TCPProbe{Host: b.HostIP, Port: b.HostPort}
		}
	}
	return nil
}

// configHash fingerprints the effective service configuration so Up can
// tell whether an existing container is stale.
func configHash(service *config.Service, env []string) (string, error) {
	raw, err := yaml.Marshal(service)
	if err != nil {
		return "", fmt.Errorf("failed to hash service %s: %w", service.Name, err)
	}
	sum := sha256.Sum256([]byte(string(raw) + "\x00" + strings.Join(env, "\n")))
	return hex.EncodeToString(sum[:]), nil
}
