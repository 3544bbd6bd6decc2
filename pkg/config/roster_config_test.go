package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machshop/approvalflow/pkg/config"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadRosterConfig(t *testing.T) {
	path := writeRoster(t, `
roles:
  supervisor:
    - alice
    - bob
  engineer:
    - carol
`)

	roster, err := config.LoadRosterConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, roster.Roles["supervisor"])
	assert.Equal(t, []string{"carol"}, roster.Roles["engineer"])
}

func TestLoadRosterConfig_DuplicateIdentity(t *testing.T) {
	path := writeRoster(t, `
roles:
  supervisor:
    - alice
    - alice
`)

	_, err := config.LoadRosterConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}

func TestLoadRosterConfigOrDefault_MissingFile(t *testing.T) {
	roster := config.LoadRosterConfigOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NotNil(t, roster)
	assert.Empty(t, roster.Roles)
}
