package deployment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/term"

	"labdock/pkg/config"
	"labdock/pkg/docker"
)

// RunOptions controls a one-off command run.
type RunOptions struct {
	// Service names the service whose image and settings the command
	// runs with.
	Service string

	// Command overrides the service's command. Nil keeps the
	// descriptor's.
	Command []string

	// Env adds KEY=VALUE pairs on top of the service environment.
	Env []string

	// NoDeps skips deploying the service's dependencies first.
	NoDeps bool

	// ServicePorts publishes the service's host ports, which one-off
	// containers otherwise leave unbound.
	ServicePorts bool

	// Keep leaves the finished container in place instead of removing
	// it.
	Keep bool

	// NoTTY disables terminal allocation even when stdin is a terminal.
	NoTTY bool
}

// Run executes a one-off command in a fresh container for a service,
// wires the caller's stdio to it and returns the command's exit code.
// The container publishes no host ports unless asked to, so it never
// collides with the long-running service container.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (int, error) {
	service, err := m.project.Service(opts.Service)
	if err != nil {
		return -1, err
	}

	order, err := startOrder(m.project, []string{opts.Service})
	if err != nil {
		return -1, err
	}

	if _, err := m.engine.EnsureNetwork(ctx, m.project.Name); err != nil {
		return -1, err
	}

	imageTargets := order
	if opts.NoDeps {
		imageTargets = []string{opts.Service}
	}
	if err := m.ensureImages(ctx, imageTargets, buildPolicy{}); err != nil {
		return -1, err
	}

	if !opts.NoDeps && len(order) > 1 {
		existing, err := m.serviceContainers(ctx)
		if err != nil {
			return -1, err
		}
		for _, name := range order[:len(order)-1] {
			if _, err := m.deployService(ctx, m.project.Services[name], existing, false); err != nil {
				return -1, fmt.Errorf("failed to deploy service %s: %w", name, err)
			}
		}
	}

	env, err := m.project.ServiceEnvironment(service)
	if err != nil {
		return -1, err
	}
	envSlice := append(config.EnvSlice(env), opts.Env...)

	inFd, isTerminal := term.GetFdInfo(m.stdin)
	tty := !opts.NoTTY && isTerminal

	name := fmt.Sprintf("%s-run-%s", docker.ContainerName(m.project.Name, service.Name), runSuffix())
	id, err := m.engine.CreateContainer(ctx, docker.CreateOptions{
		Project:      m.project,
		Service:      service,
		Name:         name,
		NetworkName:  docker.NetworkName(m.project.Name),
		Env:          envSlice,
		Command:      opts.Command,
		PublishPorts: opts.ServicePorts,
		Interactive:  true,
		Tty:          tty,
		Oneoff:       true,
	})
	if err != nil {
		return -1, err
	}

	cleanup := func() {
		if opts.Keep {
			return
		}
		// The run may have been interrupted, remove with a fresh
		// context.
		if err := m.engine.RemoveContainer(context.Background(), id, true); err != nil {
			m.log.Warn("Failed to remove one-off container", "container", name, "error", err)
		}
	}

	// Register for the exit before starting so a fast command cannot
	// finish unnoticed.
	type waitResult struct {
		code int64
		err  error
	}
	waitCh := make(chan waitResult, 1)
	go func() {
		code, err := m.engine.WaitContainer(ctx, id, container.WaitConditionNextExit)
		waitCh <- waitResult{code, err}
	}()

	attach, err := m.engine.AttachContainer(ctx, id, true)
	if err != nil {
		cleanup()
		return -1, err
	}
	defer attach.Close()

	if err := m.engine.StartContainer(ctx, id); err != nil {
		cleanup()
		return -1, err
	}

	if tty {
		if state, err := term.SetRawTerminal(inFd); err == nil {
			defer term.RestoreTerminal(inFd, state)
		}
	}

	go func() {
		io.Copy(attach.Conn, m.stdin)
		attach.CloseWrite()
	}()

	var copyErr error
	if tty {
		_, copyErr = io.Copy(m.stdout, attach.Reader)
	} else {
		_, copyErr = stdcopy.StdCopy(m.stdout, m.stderr, attach.Reader)
	}
	if copyErr != nil && ctx.Err() == nil {
		m.log.Debug("Output stream ended", "container", name, "error", copyErr)
	}

	res := <-waitCh
	cleanup()
	if res.err != nil {
		return -1, res.err
	}
	return int(res.code), nil
}

func runSuffix() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
