package clusterconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
clusters:
  main:
    a: localhost:9001
    b: localhost:9002
    c: localhost:9003
coordinator:
  address: localhost:9100
  timeout_seconds: 1.5
  participants:
    - id: p1
      address: localhost:9200
      account: A
    - id: p2
      address: localhost:9201
      account: B
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadParsesClustersAndCoordinator(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, "localhost:9100", doc.Coordinator.Address)
	assert.Equal(t, 1.5, doc.Coordinator.TimeoutSec)
	require.Len(t, doc.Coordinator.Participants, 2)
	assert.Equal(t, "A", doc.Coordinator.Participants[0].Account)
}

func TestPeersExcludesSelf(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	peers, err := doc.Peers("main", "a")
	require.NoError(t, err)
	assert.Len(t, peers, 2)
	assert.NotContains(t, peers, "a")
	assert.Equal(t, "localhost:9002", peers["b"])
}

func TestPeersOnUnknownClusterErrors(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	_, err = doc.Peers("nope", "a")
	assert.Error(t, err)
}

func TestPeersOnUnknownNodeErrors(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	_, err = doc.Peers("main", "z")
	assert.Error(t, err)
}

func TestSelfAddressReturnsConfiguredAddress(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	addr, err := doc.SelfAddress("main", "c")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9003", addr)
}

func TestLoadOnMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
