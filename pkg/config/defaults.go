package config

import (
	"fmt"
	"time"
)

// ApplyDefaults fills in the values the engine would otherwise pick on
// its own, so the rest of the tool can rely on a fully populated model.
func ApplyDefaults(p *Project) {
	for _, name := range p.ServiceNames() {
		applyServiceDefaults(p, p.Services[name])
	}
}

func applyServiceDefaults(p *Project, s *Service) {
	if s.Restart == "" {
		s.Restart = "no"
	}

	if s.Build != nil {
		if s.Build.Context == "" {
			s.Build.Context = "."
		}
		if s.Build.Dockerfile == "" {
			s.Build.Dockerfile = "Dockerfile"
		}
	}

	// Built images are tagged after the project so containers from
	// different projects never collide.
	if s.Image == "" && s.Build != nil {
		s.Image = fmt.Sprintf("%s-%s", p.Name, s.Name)
	}

	if s.StopGracePeriod == nil {
		grace := Duration(10 * time.Second)
		s.StopGracePeriod = &grace
	}

	if s.Healthcheck != nil && !s.Healthcheck.Disable {
		applyHealthcheckDefaults(s.Healthcheck)
	}
}

func applyHealthcheckDefaults(h *Healthcheck) {
	if h.Interval == 0 {
		h.Interval = Duration(30 * time.Second)
	}
	if h.Timeout == 0 {
		h.Timeout = Duration(30 * time.Second)
	}
	if h.Retries == 0 {
		h.Retries = 3
	}
}
