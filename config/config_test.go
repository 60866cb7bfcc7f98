package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcollab/syslinux/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "syslinux"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "syslinux", "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Loader.Image)
	assert.Equal(t, config.DefaultImage, cfg.ImagePath())
	assert.Equal(t, config.DefaultBootSector, cfg.BootSectorPath())
	assert.Equal(t, "mtools", cfg.StagerName())
	assert.True(t, cfg.VerifyWrites())
	assert.Empty(t, cfg.MtoolsBinDir())
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[loader]
image = "/srv/boot/ldlinux.sys"
boot_sector = "/srv/boot/ldlinux.bss"

[install]
stager = "native"
verify = false

[mtools]
bin_dir = "/opt/mtools/bin"
`)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/boot/ldlinux.sys", cfg.ImagePath())
	assert.Equal(t, "/srv/boot/ldlinux.bss", cfg.BootSectorPath())
	assert.Equal(t, "native", cfg.StagerName())
	assert.False(t, cfg.VerifyWrites())
	assert.Equal(t, "/opt/mtools/bin", cfg.MtoolsBinDir())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[loader\nimage = 1"},
		{"wrong type", "[install]\nverify = \"yes\""},
		{"unknown key", "[install]\nworkers = 4"},
		{"unknown stager", "[install]\nstager = \"fuse\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.content)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/syslinux/config.toml", config.Path())
}

func TestTempDir(t *testing.T) {
	t.Setenv("TMPDIR", "/var/scratch")
	assert.Equal(t, "/var/scratch", config.TempDir())
}
