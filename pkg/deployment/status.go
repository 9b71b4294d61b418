package deployment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"

	"labdock/pkg/docker"
)

// ServiceStatus is one row of the project status table.
type ServiceStatus struct {
	Service   string
	Container string
	ID        string
	State     string
	Health    string
	Ports     string
}

// Status reports the state of every container the project owns,
// including stopped ones and leftover one-off containers.
func (m *Manager) Status(ctx context.Context) ([]ServiceStatus, error) {
	containers, err := m.engine.ListProjectContainers(ctx, m.project.Name, true)
	if err != nil {
		return nil, err
	}

	statuses := make([]ServiceStatus, 0, len(containers))
	for _, c := range containers {
		status := ServiceStatus{
			Service:   c.Labels[docker.LabelService],
			Container: displayName(c),
			ID:        truncateID(c.ID),
			State:     c.State,
			Ports:     formatPorts(c.Ports),
		}

		info, err := m.engine.InspectContainer(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if info.State != nil {
			status.State = info.State.Status
			if info.State.Health != nil {
				status.Health = info.State.Health.Status
			}
		}

		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Service != statuses[j].Service {
			return statuses[i].Service < statuses[j].Service
		}
		return statuses[i].Container < statuses[j].Container
	})
	return statuses, nil
}

func displayName(c types.Container) string {
	if len(c.Names) == 0 {
		return truncateID(c.ID)
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatPorts(ports []types.Port) string {
	if len(ports) == 0 {
		return ""
	}

	formatted := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.PublicPort == 0 {
			formatted = append(formatted, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
			continue
		}
		ip := p.IP
		if ip == "" {
			ip = "0.0.0.0"
		}
		formatted = append(formatted, fmt.Sprintf("%s:%d->%d/%s", ip, p.PublicPort, p.PrivatePort, p.Type))
	}
	sort.Strings(formatted)
	return strings.Join(formatted, ", ")
}
