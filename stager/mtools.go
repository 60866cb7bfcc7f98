package stager

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// MtoolsConfig describes the volume the mtools commands operate on.
type MtoolsConfig struct {
	// DevicePath is the file the tools open. Pointing it at
	// /proc/<pid>/fd/<n> makes them use the installer's own descriptor.
	DevicePath string
	// Offset is the byte offset of the filesystem on the device.
	Offset int64
	// TempDir holds the scratch configuration file; "" uses os.TempDir.
	TempDir string
	// BinDir, if set, is where the mtools binaries are looked up.
	BinDir string
	Log    logrus.FieldLogger
}

// Mtools drives the mtools utilities against drive "s:", defined in a
// scratch configuration file that lives until Close.
type Mtools struct {
	conf   string
	binDir string
	log    logrus.FieldLogger
	run    func(*exec.Cmd) error
}

// NewMtools writes the scratch configuration for cfg.
func NewMtools(cfg MtoolsConfig) (*Mtools, error) {
	if strings.ContainsAny(cfg.DevicePath, "\"\n") {
		return nil, fmt.Errorf("device path %q cannot be used in an mtools configuration", cfg.DevicePath)
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	f, err := os.CreateTemp(cfg.TempDir, "syslinux-mtools-*")
	if err != nil {
		return nil, fmt.Errorf("create mtools configuration: %w", err)
	}
	_, err = fmt.Fprintf(f,
		"MTOOLS_SKIP_CHECK=1\n"+
			"MTOOLS_FAT_COMPATIBILITY=1\n"+
			"drive s:\n"+
			"  file=\"%s\"\n"+
			"  offset=%d\n",
		cfg.DevicePath, cfg.Offset)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("write mtools configuration: %w", err)
	}
	log.WithField("config", f.Name()).Debug("wrote mtools configuration")

	return &Mtools{
		conf:   f.Name(),
		binDir: cfg.BinDir,
		log:    log,
		run:    (*exec.Cmd).Run,
	}, nil
}

// ConfigPath returns the scratch configuration file, "" once closed.
func (m *Mtools) ConfigPath() string { return m.conf }

func drive(p SafePath) string { return "s:" + p.String() }

func (m *Mtools) command(ctx context.Context, stdin io.Reader, name string, args ...string) error {
	if m.conf == "" {
		return fmt.Errorf("%s: mtools stager is closed", name)
	}
	bin := name
	if m.binDir != "" {
		bin = filepath.Join(m.binDir, name)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "MTOOLSRC="+m.conf)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	m.log.Debugf("+ %v", cmd.Args)
	if err := m.run(cmd); err != nil {
		return &CommandError{Args: cmd.Args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}

// WriteFile copies r to p, overwriting an existing file.
func (m *Mtools) WriteFile(ctx context.Context, p SafePath, r io.Reader) error {
	return m.command(ctx, r, "mcopy", "-D", "o", "-D", "O", "-o", "-", drive(p))
}

// SetAttributes sets or clears read-only, hidden and system on p.
func (m *Mtools) SetAttributes(ctx context.Context, p SafePath, protect bool) error {
	if protect {
		return m.command(ctx, nil, "mattrib", "+r", "+h", "+s", drive(p))
	}
	return m.command(ctx, nil, "mattrib", "-h", "-r", "-s", drive(p))
}

// Move renames from to to, overwriting to.
func (m *Mtools) Move(ctx context.Context, from, to SafePath) error {
	return m.command(ctx, nil, "mmove", "-D", "o", "-D", "O", drive(from), drive(to))
}

// Close removes the scratch configuration.
func (m *Mtools) Close() error {
	if m.conf == "" {
		return nil
	}
	err := os.Remove(m.conf)
	m.conf = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove mtools configuration: %w", err)
	}
	return nil
}
