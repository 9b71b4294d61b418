package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ShellCommand is a command line that may be written either as a single
// string or as an argv list. The string form is split on whitespace;
// arguments that need embedded spaces must use the list form.
type ShellCommand []string

func (c *ShellCommand) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*c = strings.Fields(s)
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = list
	default:
		return fmt.Errorf("line %d: expected string or list", value.Line)
	}
	return nil
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = []string{s}
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = list
	default:
		return fmt.Errorf("line %d: expected string or list", value.Line)
	}
	return nil
}

// EnvMap accepts environment variables either as a mapping or as a list
// of KEY=VALUE entries. A bare KEY in the list form passes the variable
// through from the process environment and is dropped when unset.
type EnvMap map[string]string

func (m *EnvMap) UnmarshalYAML(value *yaml.Node) error {
	result := map[string]string{}
	switch value.Kind {
	case yaml.MappingNode:
		// Decode scalar values from their raw node text so unquoted
		// numbers and booleans survive as strings.
		for i := 0; i+1 < len(value.Content); i += 2 {
			keyNode := value.Content[i]
			valNode := value.Content[i+1]
			if valNode.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: value for %s must be a scalar", valNode.Line, keyNode.Value)
			}
			result[keyNode.Value] = valNode.Value
		}
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		for _, entry := range list {
			key, val, found := strings.Cut(entry, "=")
			if key == "" {
				return fmt.Errorf("line %d: invalid environment entry %q", value.Line, entry)
			}
			if !found {
				if v, ok := os.LookupEnv(key); ok {
					result[key] = v
				}
				continue
			}
			result[key] = val
		}
	default:
		return fmt.Errorf("line %d: expected mapping or list", value.Line)
	}
	*m = result
	return nil
}

// HealthTest is a healthcheck command. The string form runs under the
// container's shell; the list form must start with CMD, CMD-SHELL or
// NONE, matching the engine's healthcheck syntax.
type HealthTest []string

func (t *HealthTest) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*t = []string{"CMD-SHELL", s}
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*t = list
	default:
		return fmt.Errorf("line %d: expected string or list", value.Line)
	}
	return nil
}

// Duration is a time.Duration parsed from compose-style strings such as
// "30s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (b *BuildConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		b.Context = s
		return nil
	}
	type plain BuildConfig
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*b = BuildConfig(raw)
	return nil
}
