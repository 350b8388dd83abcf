package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "hhbctl", f.HelperPath())
	assert.Equal(t, "/sys/class/power_supply", f.SysfsRoot())
	assert.Equal(t, 30*time.Second, f.PollInterval())
	assert.False(t, f.AllowNonRootAccess())
}

func TestFileLoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hhb.json")
	content := `{"helperPath":"/usr/libexec/hhbctl","pollIntervalSeconds":5,"allowNonRootAccess":true}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f, err := NewFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/libexec/hhbctl", f.HelperPath())
	assert.Equal(t, 5*time.Second, f.PollInterval())
	assert.True(t, f.AllowNonRootAccess())
	// Unset fields keep their defaults.
	assert.Equal(t, "/sys/class/power_supply", f.SysfsRoot())

	f.SetPollInterval(10 * time.Second)
	require.NoError(t, f.Save())

	reloaded, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, reloaded.PollInterval())
	assert.True(t, reloaded.AllowNonRootAccess())
}

func TestFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hhb.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFile(path)
	assert.Error(t, err)
}
