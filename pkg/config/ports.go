package config

import (
	"fmt"

	"github.com/docker/go-connections/nat"
)

// PortBindings expands the service's port specs into the exposed port
// set and the host bindings applied at container create time. Specs use
// the short form [HOST_IP:][HOST_PORT:]CONTAINER_PORT[/PROTOCOL]; the
// protocol defaults to tcp.
func (s *Service) PortBindings() (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}

	for _, spec := range s.Ports {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, nil, fmt.Errorf("service %s: invalid port %q: %w", s.Name, spec, err)
		}
		for _, m := range mappings {
			exposed[m.Port] = struct{}{}
			bindings[m.Port] = append(bindings[m.Port], m.Binding)
		}
	}

	return exposed, bindings, nil
}
