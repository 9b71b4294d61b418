// Package config loads and validates labdock deployment descriptors.
//
// A descriptor is a compose-style YAML file describing the services of a
// single project: how their images are built, which ports they publish,
// what they mount and how they depend on each other. Values in the file
// may reference environment variables (${VAR}, ${VAR:-default}, ...),
// which are resolved against the caller's environment merged over the
// project's .env file before the YAML is parsed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoDescriptor is returned when no descriptor file can be found.
	ErrNoDescriptor = errors.New("no deployment descriptor found")

	// ErrServiceNotFound is returned when a named service is not part of
	// the project.
	ErrServiceNotFound = errors.New("no such service")
)

// DefaultFileNames are the descriptor names probed, in order, when no
// file is given explicitly.
var DefaultFileNames = []string{
	"labdock.yml",
	"labdock.yaml",
	"compose.yml",
	"compose.yaml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// Project is a fully loaded deployment descriptor together with the
// context it was resolved in.
type Project struct {
	Name       string
	WorkingDir string
	File       string
	Version    string
	Services   map[string]*Service

	// Environment holds the variables the descriptor was interpolated
	// with: the process environment layered over the project .env file.
	Environment map[string]string
}

// Service describes one container of a project. The field set is the
// short-form compose subset labdock understands; anything beyond it is
// rejected during validation rather than silently dropped.
type Service struct {
	Name string `yaml:"-"`

	Image           string       `yaml:"image,omitempty"`
	Build           *BuildConfig `yaml:"build,omitempty"`
	ContainerName   string       `yaml:"container_name,omitempty"`
	Entrypoint      ShellCommand `yaml:"entrypoint,omitempty"`
	Command         ShellCommand `yaml:"command,omitempty"`
	Environment     EnvMap       `yaml:"environment,omitempty"`
	EnvFile         StringList   `yaml:"env_file,omitempty"`
	Ports           []string     `yaml:"ports,omitempty"`
	Volumes         []string     `yaml:"volumes,omitempty"`
	Labels          EnvMap       `yaml:"labels,omitempty"`
	WorkingDir      string       `yaml:"working_dir,omitempty"`
	User            string       `yaml:"user,omitempty"`
	Hostname        string       `yaml:"hostname,omitempty"`
	StdinOpen       bool         `yaml:"stdin_open,omitempty"`
	Tty             bool         `yaml:"tty,omitempty"`
	Restart         string       `yaml:"restart,omitempty"`
	DependsOn       StringList   `yaml:"depends_on,omitempty"`
	Healthcheck     *Healthcheck `yaml:"healthcheck,omitempty"`
	StopGracePeriod *Duration    `yaml:"stop_grace_period,omitempty"`
}

// BuildConfig describes how a service image is built. The YAML form is
// either a bare context path or a mapping with context, dockerfile and
// args keys.
type BuildConfig struct {
	Context    string `yaml:"context,omitempty"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
	Args       EnvMap `yaml:"args,omitempty"`
}

// Healthcheck mirrors the engine-side health probe configured on a
// container at create time.
type Healthcheck struct {
	Test        HealthTest `yaml:"test,omitempty"`
	Interval    Duration   `yaml:"interval,omitempty"`
	Timeout     Duration   `yaml:"timeout,omitempty"`
	Retries     int        `yaml:"retries,omitempty"`
	StartPeriod Duration   `yaml:"start_period,omitempty"`
	Disable     bool       `yaml:"disable,omitempty"`
}

// file is the raw YAML document shape.
type file struct {
	Version  string              `yaml:"version,omitempty"`
	Name     string              `yaml:"name,omitempty"`
	Services map[string]*Service `yaml:"services"`
}

// Options controls how Load resolves a project.
type Options struct {
	// File is an explicit descriptor path. When empty the default names
	// are probed in the current directory.
	File string

	// ProjectName overrides the name derived from the descriptor or its
	// directory.
	ProjectName string

	// Environment supplies the interpolation variables. When nil the
	// process environment merged over the project .env file is used.
	Environment map[string]string
}

// Load reads a deployment descriptor, interpolates environment
// references, parses it and returns the validated project with defaults
// applied.
func Load(opts Options) (*Project, error) {
	path := opts.File
	if path == "" {
		found, err := Discover(".")
		if err != nil {
			return nil, err
		}
		path = found
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve descriptor path: %w", err)
	}
	workingDir := filepath.Dir(absPath)

	env := opts.Environment
	if env == nil {
		env = ProjectEnvironment(workingDir)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	interpolated, err := Interpolate(string(data), func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(absPath), err)
	}

	var doc file
	if err := yaml.Unmarshal([]byte(interpolated), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(absPath), err)
	}

	project := &Project{
		Name:        opts.ProjectName,
		WorkingDir:  workingDir,
		File:        absPath,
		Version:     doc.Version,
		Services:    doc.Services,
		Environment: env,
	}
	if project.Name == "" {
		project.Name = doc.Name
	}
	if project.Name == "" {
		project.Name = projectNameFromDir(workingDir)
	}
	for name, service := range project.Services {
		if service == nil {
			service = &Service{}
			project.Services[name] = service
		}
		service.Name = name
	}

	if err := Validate(project); err != nil {
		return nil, err
	}

	ApplyDefaults(project)

	return project, nil
}

// Discover probes dir for a descriptor using the default file names.
func Discover(dir string) (string, error) {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)",
		ErrNoDescriptor, dir, strings.Join(DefaultFileNames, ", "))
}

// ServiceNames returns the service names in sorted order.
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service looks up a service by name.
func (p *Project) Service(name string) (*Service, error) {
	service, ok := p.Services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return service, nil
}

// MarshalYAML renders the project back as a descriptor document with all
// interpolations resolved and defaults applied.
func (p *Project) MarshalYAML() (interface{}, error) {
	return file{
		Name:     p.Name,
		Services: p.Services,
	}, nil
}

var invalidProjectChars = regexp.MustCompile(`[^a-z0-9_-]`)

// projectNameFromDir derives a project name from the descriptor
// directory the way compose does: lowercased and restricted to
// [a-z0-9_-], starting with an alphanumeric.
func projectNameFromDir(dir string) string {
	name := strings.ToLower(filepath.Base(dir))
	name = invalidProjectChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "_-")
	if name == "" {
		name = "default"
	}
	return name
}
