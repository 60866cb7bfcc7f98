package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcollab/syslinux/bootsect/bootsecttest"
)

func TestUsageErrors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, args := range [][]string{
		{},
		{"a", "b"},
		{"-x", "disk.img"},
		{"-o", "zz", "disk.img"},
		{"-o", "-1", "disk.img"},
		{"-d"},
	} {
		var stdout, stderr bytes.Buffer
		code := run(args, &stdout, &stderr)
		assert.Equal(t, 1, code, "%q", args)
		assert.Equal(t, usageLine+"\n", stderr.String(), "%q", args)
	}
}

func TestOffsetValue(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"512", 512},
		{"0x200", 512},
		{"0X100000", 1 << 20},
		{"0100", 64},
	}
	for _, tt := range tests {
		var n int64
		require.NoError(t, offsetValue{&n}.Set(tt.in), tt.in)
		assert.Equal(t, tt.want, n, tt.in)
		assert.Equal(t, "offset", offsetValue{&n}.Type())
	}

	var n int64
	assert.Error(t, offsetValue{&n}.Set("1k"))
	assert.Error(t, offsetValue{&n}.Set("0xffffffffffffffff"))
	assert.Equal(t, "0", offsetValue{}.String())
}

func TestFormatter(t *testing.T) {
	var out bytes.Buffer
	log := newLogger(&out)
	log.Info("hidden")
	log.Warn("careful")
	log.Error("broken")
	setVerbosity(log, 1)
	log.Info("shown")
	assert.Equal(t, "syslinux: warning: careful\nsyslinux: broken\nshown\n", out.String())

	setVerbosity(log, 2)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	out.Reset()
	log.WithField("phase", "Patch").Debug("begin")
	assert.Contains(t, out.String(), "phase=Patch")
}

func TestFindMount(t *testing.T) {
	table := "proc /proc proc rw 0 0\n" +
		"/dev/sdz1 /media/usb\\040stick vfat rw 0 0\n" +
		"/dev/sdy1 /mnt ext4 rw 0 0\n"

	dir, ok := findMount(strings.NewReader(table), "/dev/sdz1")
	assert.True(t, ok)
	assert.Equal(t, "/media/usb stick", dir)

	_, ok = findMount(strings.NewReader(table), "/dev/sdx1")
	assert.False(t, ok)
	_, ok = findMount(strings.NewReader(table), "proc")
	assert.False(t, ok)
}

// setup returns a FAT32 image and the loader files for it.
func setup(t *testing.T) (image, loader, bootSector string) {
	t.Helper()
	return setupAt(t, 0)
}

// setupAt is setup with the filesystem offset bytes into the image.
func setupAt(t *testing.T, offset int64) (image, loader, bootSector string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	image = filepath.Join(dir, "disk.img")
	f, err := os.OpenFile(image, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	const size = 40 << 20
	require.NoError(t, f.Truncate(offset+size))
	_, err = fat32.Create(f, size, offset, 512, "BOOT")
	require.NoError(t, err)

	loader, bootSector, err = bootsecttest.WriteFiles(dir, bootsecttest.DefaultLayout())
	require.NoError(t, err)
	return image, loader, bootSector
}

func TestRunNative(t *testing.T) {
	image, loader, bss := setup(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--stager", "native", "--loader", loader, "--boot-sector", bss, "-s", image}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Empty(t, stderr.String())

	raw, err := os.ReadFile(image)
	require.NoError(t, err)
	assert.Equal(t, "SYSLINUX", string(raw[3:11]))
	assert.Equal(t, []byte{0x55, 0xaa}, raw[510:512])
}

func TestRunVerbose(t *testing.T) {
	image, loader, bss := setup(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-v", "--stager=native", "--loader=" + loader, "--boot-sector=" + bss, image}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stderr.String(), "installed /ldlinux.sys on "+image)
}

func TestRunDirectoryWarning(t *testing.T) {
	image, loader, bss := setup(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--stager", "native", "--loader", loader, "--boot-sector", bss, "-d", "/boot/syslinux", image}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "syslinux: warning: unable to move ldlinux.sys\n", stderr.String())
}

func TestRunConfig(t *testing.T) {
	image, loader, bss := setup(t)
	cfg := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "syslinux", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg), 0o755))
	require.NoError(t, os.WriteFile(cfg, []byte(
		"[loader]\nimage = \""+loader+"\"\nboot_sector = \""+bss+"\"\n[install]\nstager = \"native\"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{image}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())

	// a flag overrides the file
	code = run([]string{"--stager", "bogus", image}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `syslinux: unknown stager "bogus"`)
}

func TestRunFailures(t *testing.T) {
	image, loader, bss := setup(t)

	f, err := os.OpenFile(image, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0, 0}, 510)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var stdout, stderr bytes.Buffer
	code := run([]string{"--stager", "native", "--loader", loader, "--boot-sector", bss, image}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "syslinux: "+image+": invalid boot sector"), stderr.String())

	stderr.Reset()
	code = run([]string{"--loader", filepath.Join(t.TempDir(), "none"), image}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "read loader image")
}

func TestRunOffset(t *testing.T) {
	image, loader, bss := setupAt(t, 100)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--stager", "native", "--loader", loader, "--boot-sector", bss, "-o", "0x64", image}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	raw, err := os.ReadFile(image)
	require.NoError(t, err)
	assert.Equal(t, "SYSLINUX", string(raw[103:111]))
	assert.Equal(t, []byte{0x55, 0xaa}, raw[610:612])
}
