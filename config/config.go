// Package config reads the optional installer configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Built-in defaults used when neither the file nor a flag sets a value.
const (
	DefaultImage      = "/usr/share/syslinux/ldlinux.sys"
	DefaultBootSector = "/usr/share/syslinux/ldlinux.bss"
	DefaultStager     = "mtools"
)

// Config represents the optional syslinux configuration file.
type Config struct {
	Loader  LoaderConfig  `toml:"loader"`
	Install InstallConfig `toml:"install"`
	Mtools  MtoolsConfig  `toml:"mtools"`
}

// LoaderConfig locates the loader files.
type LoaderConfig struct {
	Image      *string `toml:"image"`
	BootSector *string `toml:"boot_sector"`
}

// InstallConfig holds defaults for install flags.
type InstallConfig struct {
	Stager *string `toml:"stager"`
	Verify *bool   `toml:"verify"`
}

// MtoolsConfig configures the mtools stager.
type MtoolsConfig struct {
	BinDir *string `toml:"bin_dir"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "syslinux", "config.toml")
}

// Load reads the config file from the XDG path. A missing file yields a
// zero Config and no error.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, keys[0].String())
	}
	if s := cfg.Install.Stager; s != nil && *s != "mtools" && *s != "native" {
		return Config{}, fmt.Errorf("%s: unknown stager %q", path, *s)
	}
	return cfg, nil
}

// ImagePath returns the configured loader image or the default.
func (c Config) ImagePath() string { return stringOr(c.Loader.Image, DefaultImage) }

// BootSectorPath returns the configured boot sector template or the default.
func (c Config) BootSectorPath() string { return stringOr(c.Loader.BootSector, DefaultBootSector) }

// StagerName returns the configured stager or the default.
func (c Config) StagerName() string { return stringOr(c.Install.Stager, DefaultStager) }

// VerifyWrites reports whether rewritten sectors are read back; on unless
// disabled.
func (c Config) VerifyWrites() bool {
	if c.Install.Verify == nil {
		return true
	}
	return *c.Install.Verify
}

// MtoolsBinDir returns the configured mtools directory, "" for $PATH.
func (c Config) MtoolsBinDir() string { return stringOr(c.Mtools.BinDir, "") }

// TempDir is where scratch files go: $TMPDIR, else the platform default.
func TempDir() string { return os.TempDir() }

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
