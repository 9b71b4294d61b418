package deployment

import (
	"fmt"

	"labdock/pkg/config"
)

// startOrder expands the selected services with their transitive
// dependencies and orders them so every service comes after everything
// it depends on. An empty selection means the whole project.
func startOrder(project *config.Project, selected []string) ([]string, error) {
	if len(selected) == 0 {
		selected = project.ServiceNames()
	}

	visited := make(map[string]bool)
	temp := make(map[string]bool)
	order := []string{}

	var visit func(string) error
	visit = func(name string) error {
		if temp[name] {
			return fmt.Errorf("cycle detected in dependencies involving %s", name)
		}
		if visited[name] {
			return nil
		}

		service, ok := project.Services[name]
		if !ok {
			return fmt.Errorf("%w: %s", config.ErrServiceNotFound, name)
		}

		temp[name] = true
		for _, dep := range service.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		temp[name] = false
		visited[name] = true

		order = append(order, name)
		return nil
	}

	for _, name := range selected {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// stopOrder is startOrder reversed, so dependents shut down before what
// they depend on.
func stopOrder(project *config.Project, selected []string) ([]string, error) {
	order, err := startOrder(project, selected)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
