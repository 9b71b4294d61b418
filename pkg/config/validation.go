package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// containerNamePattern is the engine's container name syntax.
var containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Validate checks a loaded project for descriptor errors. It runs
// before defaults are applied, so optional fields may still be empty.
func Validate(p *Project) error {
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}

	if len(p.Services) == 0 {
		return fmt.Errorf("descriptor defines no services")
	}

	for _, name := range p.ServiceNames() {
		service := p.Services[name]
		if !serviceNamePattern.MatchString(name) {
			return fmt.Errorf("invalid service name %q", name)
		}
		if err := validateService(p, service); err != nil {
			return err
		}
	}

	return nil
}

func validateService(p *Project, s *Service) error {
	if s.Image == "" && s.Build == nil {
		return fmt.Errorf("service %s needs an image or a build section", s.Name)
	}

	if s.Build != nil && filepath.IsAbs(s.Build.Dockerfile) {
		return fmt.Errorf("service %s: dockerfile must be relative to the build context", s.Name)
	}

	if s.ContainerName != "" && !containerNamePattern.MatchString(s.ContainerName) {
		return fmt.Errorf("service %s: invalid container name %q", s.Name, s.ContainerName)
	}

	if _, _, err := s.PortBindings(); err != nil {
		return err
	}

	if _, err := p.ServiceMounts(s); err != nil {
		return err
	}

	for _, dep := range s.DependsOn {
		if _, ok := p.Services[dep]; !ok {
			return fmt.Errorf("service %s depends on undefined service: %s", s.Name, dep)
		}
		if dep == s.Name {
			return fmt.Errorf("service %s depends on itself", s.Name)
		}
	}

	if err := validateRestart(s); err != nil {
		return err
	}

	for _, name := range s.EnvFile {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.WorkingDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("service %s: env file %s not found", s.Name, name)
		}
	}

	if s.Healthcheck != nil {
		if err := validateHealthcheck(s.Name, s.Healthcheck); err != nil {
			return err
		}
	}

	return nil
}

func validateRestart(s *Service) error {
	switch s.Restart {
	case "", "no", "always", "unless-stopped", "on-failure":
		return nil
	}
	if count, ok := strings.CutPrefix(s.Restart, "on-failure:"); ok {
		if n, err := strconv.Atoi(count); err == nil && n >= 0 {
			return nil
		}
	}
	return fmt.Errorf("service %s: invalid restart policy %q", s.Name, s.Restart)
}

func validateHealthcheck(name string, h *Healthcheck) error {
	if h.Disable {
		return nil
	}
	if len(h.Test) > 0 {
		switch h.Test[0] {
		case "CMD", "CMD-SHELL", "NONE":
		default:
			return fmt.Errorf("service %s: healthcheck test must start with CMD, CMD-SHELL or NONE", name)
		}
	}
	if h.Retries < 0 {
		return fmt.Errorf("service %s: healthcheck retries must not be negative", name)
	}
	for _, d := range []Duration{h.Interval, h.Timeout, h.StartPeriod} {
		if d < 0 {
			return fmt.Errorf("service %s: healthcheck durations must not be negative", name)
		}
	}
	return nil
}
