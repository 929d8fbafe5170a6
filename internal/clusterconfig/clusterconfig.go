// Package clusterconfig loads the static topology the core consumes but
// does not own: cluster name -> node name -> address for Raft clusters, and
// the participant roster for a 2PC coordinator. Spec treats configuration
// loading as an external collaborator ("the core accepts it already
// parsed"); this package is that external loader, kept thin and outside the
// protocol engines in internal/raft, internal/participant, internal/coordinator.
package clusterconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RaftClusters maps cluster name -> node name -> address ("host:port").
type RaftClusters map[string]map[string]string

// ParticipantConfig describes one participant known to a coordinator.
type ParticipantConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Account string `yaml:"account"`
}

// CoordinatorConfig is the static configuration for a coordinator process.
type CoordinatorConfig struct {
	Address      string              `yaml:"address"`
	TimeoutSec   float64             `yaml:"timeout_seconds"`
	Participants []ParticipantConfig `yaml:"participants"`
}

// Document is the top-level shape of a configuration file: independent
// Raft clusters plus an optional coordinator/participant block. A single
// file may describe either or both, since a deployment may run a Raft
// cluster and a 2PC cluster side by side without the two coordinating.
type Document struct {
	Clusters    RaftClusters      `yaml:"clusters"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// Load reads and parses a YAML configuration file from path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clusterconfig: reading %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("clusterconfig: parsing %s: %w", path, err)
	}
	return &doc, nil
}

// Peers returns every node address in cluster except self, keyed by node
// name, matching the "Peers: mapping from peer name to network address
// (excludes self)" field of the Raft node data model.
func (d *Document) Peers(cluster, self string) (map[string]string, error) {
	nodes, ok := d.Clusters[cluster]
	if !ok {
		return nil, fmt.Errorf("clusterconfig: unknown cluster %q", cluster)
	}
	if _, ok := nodes[self]; !ok {
		return nil, fmt.Errorf("clusterconfig: node %q not found in cluster %q", self, cluster)
	}
	peers := make(map[string]string, len(nodes)-1)
	for name, addr := range nodes {
		if name == self {
			continue
		}
		peers[name] = addr
	}
	return peers, nil
}

// SelfAddress returns the listening address configured for node `self` in
// `cluster`.
func (d *Document) SelfAddress(cluster, self string) (string, error) {
	nodes, ok := d.Clusters[cluster]
	if !ok {
		return "", fmt.Errorf("clusterconfig: unknown cluster %q", cluster)
	}
	addr, ok := nodes[self]
	if !ok {
		return "", fmt.Errorf("clusterconfig: node %q not found in cluster %q", self, cluster)
	}
	return addr, nil
}
