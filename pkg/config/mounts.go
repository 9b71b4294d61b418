package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// VolumeMount is a parsed short-form volume specification. Named is
// true for engine-managed volumes; otherwise Source is an absolute host
// path.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
	Named    bool
}

var volumeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ParseVolume parses a short-form volume spec (SOURCE:TARGET[:MODE] or
// a bare TARGET for an anonymous volume). Relative host paths are
// resolved against workingDir, so ".:/src/project" mounts the project
// directory itself.
func ParseVolume(spec, workingDir string) (VolumeMount, error) {
	parts := strings.Split(spec, ":")

	var mount VolumeMount
	switch len(parts) {
	case 1:
		mount = VolumeMount{Target: parts[0], Named: true}
	case 2:
		mount = VolumeMount{Source: parts[0], Target: parts[1]}
	case 3:
		mount = VolumeMount{Source: parts[0], Target: parts[1]}
		switch parts[2] {
		case "ro":
			mount.ReadOnly = true
		case "rw":
		default:
			return VolumeMount{}, fmt.Errorf("invalid volume mode %q in %q", parts[2], spec)
		}
	default:
		return VolumeMount{}, fmt.Errorf("invalid volume specification %q", spec)
	}

	if !filepath.IsAbs(mount.Target) {
		return VolumeMount{}, fmt.Errorf("volume target must be an absolute path in %q", spec)
	}

	if mount.Source == "" {
		return mount, nil
	}

	if isHostPath(mount.Source) {
		resolved, err := resolveHostPath(mount.Source, workingDir)
		if err != nil {
			return VolumeMount{}, fmt.Errorf("invalid volume source in %q: %w", spec, err)
		}
		mount.Source = resolved
		return mount, nil
	}

	if !volumeNamePattern.MatchString(mount.Source) {
		return VolumeMount{}, fmt.Errorf("invalid volume name %q in %q", mount.Source, spec)
	}
	mount.Named = true
	return mount, nil
}

// ServiceMounts parses all volume specs of a service, resolving
// relative sources against the project directory.
func (p *Project) ServiceMounts(s *Service) ([]VolumeMount, error) {
	mounts := make([]VolumeMount, 0, len(s.Volumes))
	for _, spec := range s.Volumes {
		mount, err := ParseVolume(spec, p.WorkingDir)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", s.Name, err)
		}
		mounts = append(mounts, mount)
	}
	return mounts, nil
}

func isHostPath(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, "./") ||
		strings.HasPrefix(source, "../") ||
		strings.HasPrefix(source, "~") ||
		source == "." || source == ".."
}

func resolveHostPath(source, workingDir string) (string, error) {
	if source == "~" || strings.HasPrefix(source, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		source = filepath.Join(home, strings.TrimPrefix(source, "~"))
	}
	if !filepath.IsAbs(source) {
		source = filepath.Join(workingDir, source)
	}
	return filepath.Clean(source), nil
}
