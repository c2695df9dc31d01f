package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chirp.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 0.0.0.0:9000\nlog:\n  level: debug\n"), 0o600))
	t.Setenv("CHIRP_ADDR", "127.0.0.1:9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	// env wins over file
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "./data/messages", cfg.Storage.Path)
}

func TestMasterKey(t *testing.T) {
	cfg := &Config{}
	cfg.Security.MasterKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	key, err := cfg.MasterKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	cfg.Security.MasterKey = base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = cfg.MasterKey()
	assert.Error(t, err)

	cfg.Security.MasterKey = "not base64 at all %%%"
	_, err = cfg.MasterKey()
	assert.Error(t, err)

	// unset key: an ephemeral one is generated
	cfg.Security.MasterKey = ""
	key, err = cfg.MasterKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
