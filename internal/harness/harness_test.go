package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := ScenarioFiles(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "the scenario directory must not be empty")

	for _, path := range paths {
		RunFile(t, path)
	}
}

func TestLoadScenarioValidation(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "manifest: m.manifest\nsteps:\n  - command: c\n",
			want: "no name",
		},
		{
			name: "missing manifest",
			body: "name: x\nsteps:\n  - command: c\n",
			want: "names no manifest",
		},
		{
			name: "no steps",
			body: "name: x\nmanifest: m.manifest\n",
			want: "no steps",
		},
		{
			name: "broken yaml",
			body: "name: [unclosed\n",
			want: "parse scenario",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write("case.yaml", tt.body)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadScenario(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
}

func TestLoadScenarioFields(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "replay.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "idempotent-replay", sc.Name)
	assert.Equal(t, "../manifests/orders.manifest", sc.Manifest)
	assert.Equal(t, "tenant-a", sc.Context.TenantID)
	require.Len(t, sc.Steps, 3)
	assert.Equal(t, "fixed-key-1", sc.Steps[0].IdempotencyKey)
	assert.True(t, sc.Steps[1].Expect.Replayed)
}
