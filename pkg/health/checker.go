// Package health waits for started containers to become ready.
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/docker/docker/api/types"

	"labdock/pkg/logger"
)

// inspector is the engine surface the checker needs.
type inspector interface {
	InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error)
}

// Checker polls container state until a service is ready.
type Checker struct {
	engine inspector
	log    *logger.Logger
}

// NewChecker creates a checker on top of an engine client.
func NewChecker(engine inspector) *Checker {
	return &Checker{
		engine: engine,
		log:    logger.GetLogger(),
	}
}

// TCPProbe describes a published port to dial as a readiness signal for
// services without an engine-side healthcheck.
type TCPProbe struct {
	Host string
	Port string
}

// WaitOptions tunes the readiness wait.
type WaitOptions struct {
	// Timeout bounds the whole wait. Zero waits until the context is
	// cancelled.
	Timeout time.Duration

	// Interval between state polls. Defaults to one second.
	Interval time.Duration

	// Probe is dialled once the container reports running. Ignored for
	// containers that carry their own healthcheck.
	Probe *TCPProbe
}

// WaitReady blocks until the container is ready: healthy when it has a
// healthcheck, otherwise running plus a successful probe when one is
// configured. It fails fast when the container exits.
func (c *Checker) WaitReady(ctx context.Context, containerID, service string, opts WaitOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log := c.log.WithService(service)
	log.Debug("Waiting for service to become ready")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ready, err := c.check(ctx, containerID, service, opts.Probe)
		if err != nil {
			return err
		}
		if ready {
			log.Debug("Service is ready")
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("service %s did not become ready: %w", service, ctx.Err())
		}
	}
}

func (c *Checker) check(ctx context.Context, containerID, service string, probe *TCPProbe) (bool, error) {
	info, err := c.engine.InspectContainer(ctx, containerID)
	if err != nil {
		return false, err
	}
	state := info.State
	if state == nil {
		return false, nil
	}

	if !state.Running {
		if state.Status == "exited" || state.Status == "dead" {
			return false, fmt.Errorf("service %s exited with code %d while waiting for it", service, state.ExitCode)
		}
		return false, nil
	}

	if state.Health != nil {
		switch state.Health.Status {
		case types.Healthy:
			return true, nil
		case types.Unhealthy:
			return false, fmt.Errorf("service %s is unhealthy", service)
		default:
			return false, nil
		}
	}

	if probe != nil {
		if err := c.dialProbe(ctx, probe); err != nil {
			c.log.WithService(service).Debug("Readiness probe not answering yet", "error", err)
			return false, nil
		}
	}
	return true, nil
}

// dialProbe checks that a published TCP port accepts connections.
func (c *Checker) dialProbe(ctx context.Context, probe *TCPProbe) error {
	host := probe.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(host, probe.Port))
	if err != nil {
		return err
	}
	return conn.Close()
}
