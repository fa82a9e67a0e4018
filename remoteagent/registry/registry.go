// Package registry loads a static map of agent name -> endpoint from a YAML
// manifest and builds remoteagent.Client instances for each entry, using
// the HTTP JSON-RPC transport in remoteagent/httpclient.
package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/remoteagent/httpclient"
)

// ManifestEntry describes one registered agent in the YAML manifest.
type ManifestEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Endpoint    string `yaml:"endpoint"`
}

// Manifest is the top-level YAML document: a flat list of agents.
type Manifest struct {
	Agents []ManifestEntry `yaml:"agents"`
}

// Registry is a static, in-memory remoteagent.Registry built once at
// startup from a Manifest.
type Registry struct {
	clients map[string]remoteagent.Client
	cards   map[string]remoteagent.AgentCard
	names   []string
}

// Load parses raw YAML bytes into a Registry, constructing one
// httpclient.Client per manifest entry.
func Load(raw []byte) (*Registry, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("remoteagent/registry: parse manifest: %w", err)
	}
	return New(m)
}

// New builds a Registry from an already-parsed Manifest.
func New(m Manifest) (*Registry, error) {
	r := &Registry{
		clients: make(map[string]remoteagent.Client, len(m.Agents)),
		cards:   make(map[string]remoteagent.AgentCard, len(m.Agents)),
	}
	for _, entry := range m.Agents {
		if entry.Name == "" {
			return nil, &remoteagent.RegistrationError{AgentName: entry.Name, Err: fmt.Errorf("name is required")}
		}
		if entry.Endpoint == "" {
			return nil, &remoteagent.RegistrationError{AgentName: entry.Name, Err: fmt.Errorf("endpoint is required")}
		}
		r.clients[entry.Name] = httpclient.New(entry.Endpoint)
		r.cards[entry.Name] = remoteagent.AgentCard{
			Name:        entry.Name,
			Description: entry.Description,
			Endpoint:    entry.Endpoint,
		}
		r.names = append(r.names, entry.Name)
	}
	return r, nil
}

// Lookup implements remoteagent.Registry.
func (r *Registry) Lookup(name string) (remoteagent.Client, remoteagent.AgentCard, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, remoteagent.AgentCard{}, remoteagent.ErrAgentNotRegistered
	}
	return c, r.cards[name], nil
}

// Names implements remoteagent.Registry.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
