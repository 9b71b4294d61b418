package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// ProjectEnvironment builds the interpolation environment for a project
// directory: variables from the .env file next to the descriptor,
// overridden by the process environment.
func ProjectEnvironment(workingDir string) map[string]string {
	env := map[string]string{}

	dotenv := filepath.Join(workingDir, ".env")
	if vars, err := godotenv.Read(dotenv); err == nil {
		for k, v := range vars {
			env[k] = v
		}
	}

	for _, entry := range os.Environ() {
		k, v, _ := strings.Cut(entry, "=")
		env[k] = v
	}

	return env
}

// ServiceEnvironment resolves the container environment for a service:
// env_file entries in declaration order, overridden by the explicit
// environment mapping.
func (p *Project) ServiceEnvironment(s *Service) (map[string]string, error) {
	env := map[string]string{}

	for _, name := range s.EnvFile {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.WorkingDir, path)
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("service %s: failed to read env file %s: %w", s.Name, name, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}

	for k, v := range s.Environment {
		env[k] = v
	}

	return env, nil
}

// EnvSlice converts an environment map to the sorted KEY=VALUE form the
// engine expects.
func EnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
