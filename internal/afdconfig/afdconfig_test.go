package afdconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenNoFilesPresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4024, cfg.TCPPort)
	assert.Equal(t, 1000, cfg.MaxCopiedFiles)
}

func TestLoadParsesKeyValueFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0o755))
	content := "# comment\nAFD_TCP_PORT 4500\nMAX_COPIED_FILES 250\nIN_GLOBAL_FILESYSTEM yes\nAMG_DIR_RESCAN_TIME 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "AFD_CONFIG"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4500, cfg.TCPPort)
	assert.Equal(t, 250, cfg.MaxCopiedFiles)
	assert.True(t, cfg.InGlobalFilesystem)
	assert.Equal(t, 10*time.Second, cfg.AMGDirRescanTime)
}

func TestLoadParsesYAMLPolicyOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0o755))
	yaml := "host_defaults:\n  max_errors: 7\n  warn_time: 3600000000000\ndir_defaults:\n  ignore_size: 1024\n  ignore_size_sign: GreaterThan\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "afd_policy.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Policy.HostDefaults.MaxErrors)
	assert.Equal(t, int64(1024), cfg.Policy.DirDefaults.IgnoreSize)
}

func TestRawPreservesUnmodeledKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "AFD_CONFIG"), []byte("SOME_FUTURE_KEY value123\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	v, ok := cfg.Raw("SOME_FUTURE_KEY")
	assert.True(t, ok)
	assert.Equal(t, "value123", v)
}
