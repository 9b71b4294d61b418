package deployment

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"labdock/pkg/config"
	"labdock/pkg/docker"
)

// buildPolicy says how eagerly ensureImages rebuilds or pulls.
type buildPolicy struct {
	force   bool
	noCache bool
	pull    bool
}

// BuildOptions controls an explicit build pass.
type BuildOptions struct {
	// Services narrows the build. Empty builds every service that has a
	// build section.
	Services []string

	// NoCache disables the engine build cache, Pull refreshes base
	// images before building.
	NoCache bool
	Pull    bool
}

// Build rebuilds the images of the selected services.
func (m *Manager) Build(ctx context.Context, opts BuildOptions) error {
	order, err := startOrder(m.project, opts.Services)
	if err != nil {
		return err
	}
	return m.ensureImages(ctx, order, buildPolicy{force: true, noCache: opts.NoCache, pull: opts.Pull})
}

// buildGroup collects services sharing one build configuration so the
// image is built once and tagged for each of them.
type buildGroup struct {
	build *config.BuildConfig
	tags  []string
}

// ensureImages makes every image in the service list available: shared
// build configurations are built once with all their tags, image-only
// services are pulled when missing.
func (m *Manager) ensureImages(ctx context.Context, services []string, policy buildPolicy) error {
	groups := make(map[string]*buildGroup)
	var groupOrder []string

	for _, name := range services {
		service := m.project.Services[name]
		if service.Build == nil {
			if err := m.ensurePulled(ctx, service, policy); err != nil {
				return err
			}
			continue
		}

		key := buildFingerprint(service.Build)
		group, ok := groups[key]
		if !ok {
			group = &buildGroup{build: service.Build}
			groups[key] = group
			groupOrder = append(groupOrder, key)
		}
		group.tags = append(group.tags, service.Image)
	}

	for _, key := range groupOrder {
		group := groups[key]

		if !policy.force {
			missing, err := m.anyTagMissing(ctx, group.tags)
			if err != nil {
				return err
			}
			if !missing {
				continue
			}
		}

		// The descriptor's context is relative to the descriptor, not to
		// wherever the command runs.
		contextDir := group.build.Context
		if !filepath.IsAbs(contextDir) {
			contextDir = filepath.Join(m.project.WorkingDir, contextDir)
		}

		err := m.engine.BuildImage(ctx, docker.BuildOptions{
			ContextDir: contextDir,
			Dockerfile: group.build.Dockerfile,
			Tags:       group.tags,
			Args:       group.build.Args,
			NoCache:    policy.noCache,
			Pull:       policy.pull,
			Output:     m.stdout,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) anyTagMissing(ctx context.Context, tags []string) (bool, error) {
	for _, tag := range tags {
		exists, err := m.engine.ImageExists(ctx, tag)
		if err != nil {
			return false, err
		}
		if !exists {
			return true, nil
		}
	}
	return false, nil
}

// ensurePulled pulls an image-only service's image when it is missing
// locally, or unconditionally when the policy asks for a refresh.
func (m *Manager) ensurePulled(ctx context.Context, service *config.Service, policy buildPolicy) error {
	if !policy.pull {
		exists, err := m.engine.ImageExists(ctx, service.Image)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	return m.engine.PullImage(ctx, service.Image, m.stdout)
}

// buildFingerprint keys services onto a shared build so a descriptor
// with several services over the same Dockerfile triggers one build.
func buildFingerprint(b *config.BuildConfig) string {
	keys := make([]string, 0, len(b.Args))
	for k := range b.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(b.Context)
	sb.WriteByte('\x00')
	sb.WriteString(b.Dockerfile)
	for _, k := range keys {
		sb.WriteByte('\x00')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b.Args[k])
	}
	return sb.String()
}
