package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayoutMissingFileReturnsEmptyWiring(t *testing.T) {
	hosts, dirs, err := loadLayout(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, hosts)
	assert.Empty(t, dirs)
}

func TestLoadLayoutBuildsLocalAndHTTPTransports(t *testing.T) {
	dir := t.TempDir()
	destDir := filepath.Join(dir, "dest")
	localDir := filepath.Join(dir, "incoming")
	require.NoError(t, os.MkdirAll(localDir, 0o755))

	cfgPath := filepath.Join(dir, "afd_directories.json")
	body := `{
		"hosts": [
			{"alias": "h_local", "protocol": "local", "dest_dir": "` + destDir + `"},
			{"alias": "h_http", "protocol": "http", "base_url": "http://example.invalid/upload"}
		],
		"directories": [
			{"alias": "d1", "local_dir": "` + localDir + `", "host_alias": "h_local", "masks": ["*.dat", "!*.tmp"], "options": ["priority 5"], "rescan_time": "2s"}
		]
	}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	hosts, dirs, err := loadLayout(context.Background(), cfgPath)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	require.Len(t, dirs, 1)

	assert.Equal(t, "d1", dirs[0].Alias)
	assert.Equal(t, "h_local", dirs[0].HostAlias)
	require.Len(t, dirs[0].Masks, 2)
	assert.Equal(t, "*.dat", dirs[0].Masks[0].Pattern)
	assert.False(t, dirs[0].Masks[0].Inverse)
	assert.Equal(t, "*.tmp", dirs[0].Masks[1].Pattern)
	assert.True(t, dirs[0].Masks[1].Inverse)
	require.Len(t, dirs[0].Options, 1)
	assert.Equal(t, "priority", dirs[0].Options[0].ID)
}

func TestLoadLayoutRejectsUnknownProtocol(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "afd_directories.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"hosts":[{"alias":"bad","protocol":"sftp"}]}`), 0o644))

	_, _, err := loadLayout(context.Background(), cfgPath)
	assert.Error(t, err)
}
