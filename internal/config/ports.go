package config

import (
	"fmt"
	"net/netip"

	"github.com/docker/go-connections/nat"
	"github.com/moby/moby/api/types/network"
)

// ParsePorts converts docker-style port specs ("8080:80", "127.0.0.1:8080:80/tcp")
// into the exposed set and bindings used when creating a container.
func ParsePorts(specs []string) (network.PortSet, network.PortMap, error) {
	exposed := make(network.PortSet)
	bindings := make(network.PortMap)

	for _, spec := range specs {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port mapping %q: %w", spec, err)
		}
		for _, pm := range mappings {
			port, err := network.ParsePort(string(pm.Port))
			if err != nil {
				return nil, nil, fmt.Errorf("invalid port %q: %w", pm.Port, err)
			}
			exposed[port] = struct{}{}

			var hostIP netip.Addr
			if pm.Binding.HostIP != "" {
				hostIP, err = netip.ParseAddr(pm.Binding.HostIP)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid host IP %q: %w", pm.Binding.HostIP, err)
				}
			}
			bindings[port] = append(bindings[port], network.PortBinding{
				HostIP:   hostIP,
				HostPort: pm.Binding.HostPort,
			})
		}
	}
	return exposed, bindings, nil
}
