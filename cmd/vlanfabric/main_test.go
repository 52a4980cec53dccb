package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `
log:
  level: error
  format: json
store:
  backend: file
  path: %STATE%
fabric:
  leaves:
    - ip: 10.0.0.11
      hosts:
        - host: compute-1
          ports: ["1/0/1"]
    - ip: 10.0.0.12
      hosts:
        - host: compute-2
          ports: ["1/0/1"]
  spines:
    - ip: 10.0.0.1
      leaves:
        - leafIP: 10.0.0.11
          leafPorts: ["1/0/48"]
          spinePorts: ["1/0/1"]
        - leafIP: 10.0.0.12
          leafPorts: ["1/0/48"]
          spinePorts: ["1/0/2"]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := bytes.ReplaceAll([]byte(testConfig), []byte("%STATE%"), []byte(filepath.Join(dir, "state.yaml")))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTopologyCommand(t *testing.T) {
	out, err := run(t, "topology", "--config", writeConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, "Leaves (2)")
	require.Contains(t, out, "compute-1")
	require.Contains(t, out, "Spines (1)")
	require.Contains(t, out, "1/0/48")
}

func TestDeltaCreateJSON(t *testing.T) {
	out, err := run(t, "delta", "create", "--config", writeConfig(t), "--network", "net-a", "--host", "compute-1", "--vlan", "100", "--json")
	require.NoError(t, err)

	var delta map[string]struct {
		VLANCreate []int `json:"vlanCreate"`
		VLANDelete []int `json:"vlanDelete"`
		Trunks     []struct {
			Ports []string `json:"ports"`
			VLANs []int    `json:"vlans"`
		} `json:"trunks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &delta), out)

	require.Equal(t, []int{100}, delta["10.0.0.11"].VLANCreate)
	require.Equal(t, []int{100}, delta["10.0.0.1"].VLANCreate)
	require.NotContains(t, delta, "10.0.0.12")
	require.Len(t, delta["10.0.0.1"].Trunks, 1)
	require.Equal(t, []string{"1/0/1"}, delta["10.0.0.1"].Trunks[0].Ports)
}

func TestDeltaCreateTable(t *testing.T) {
	out, err := run(t, "delta", "create", "--config", writeConfig(t), "--network", "net-a", "--host", "compute-1", "--vlan", "100")
	require.NoError(t, err)
	require.Contains(t, out, "10.0.0.11")
	require.Contains(t, out, "10.0.0.1")
	require.Contains(t, out, "100")
}

func TestDeltaSyncEmpty(t *testing.T) {
	out, err := run(t, "delta", "sync", "--config", writeConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, "no changes")
}

func TestDeltaRequiresFlags(t *testing.T) {
	_, err := run(t, "delta", "create", "--config", writeConfig(t), "--network", "net-a")
	require.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "topology", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "vlanfabric dev")
}
