package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Topology is the optional YAML manifest naming the participating services
// and the database clusters tenants are provisioned into. Values set in the
// manifest override the corresponding environment variables.
type Topology struct {
	Services  []string   `yaml:"services"`
	Shared    ClusterDef `yaml:"shared"`
	Dedicated ClusterDef `yaml:"dedicated"`
}

type ClusterDef struct {
	Host     string `yaml:"host"`
	ReadHost string `yaml:"read_host"`
	Port     int    `yaml:"port"`
}

func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}

	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	for i, svc := range topo.Services {
		if svc == "" {
			return nil, fmt.Errorf("parse topology %s: services[%d] is empty", path, i)
		}
	}
	return &topo, nil
}

func (t *Topology) apply(c *Config) {
	if len(t.Services) > 0 {
		c.Services = t.Services
	}
	t.Shared.apply(&c.SharedDBHost, &c.SharedDBReadHost, &c.SharedDBPort)
	t.Dedicated.apply(&c.DedicatedDBHost, &c.DedicatedDBReadHost, &c.DedicatedDBPort)
}

func (d ClusterDef) apply(host, readHost *string, port *int) {
	if d.Host != "" {
		*host = d.Host
	}
	if d.ReadHost != "" {
		*readHost = d.ReadHost
	}
	if d.Port > 0 {
		*port = d.Port
	}
}
