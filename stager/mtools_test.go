package stager

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	args  []string
	rc    string
	stdin string
}

func newTestMtools(t *testing.T, fail map[string]string) (*Mtools, *[]call) {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	m, err := NewMtools(MtoolsConfig{
		DevicePath: "/proc/4242/fd/7",
		Offset:     32256,
		TempDir:    t.TempDir(),
		Log:        log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	var calls []call
	m.run = func(cmd *exec.Cmd) error {
		c := call{args: cmd.Args}
		for _, kv := range cmd.Env {
			if strings.HasPrefix(kv, "MTOOLSRC=") {
				c.rc = strings.TrimPrefix(kv, "MTOOLSRC=")
			}
		}
		if cmd.Stdin != nil {
			b, err := io.ReadAll(cmd.Stdin)
			require.NoError(t, err)
			c.stdin = string(b)
		}
		calls = append(calls, c)
		if msg, ok := fail[cmd.Args[0]]; ok {
			io.WriteString(cmd.Stderr, msg+"\n")
			return errors.New("exit status 1")
		}
		return nil
	}
	return m, &calls
}

func TestMtoolsConfigFile(t *testing.T) {
	m, _ := newTestMtools(t, nil)
	b, err := os.ReadFile(m.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "MTOOLS_SKIP_CHECK=1\n"+
		"MTOOLS_FAT_COMPATIBILITY=1\n"+
		"drive s:\n"+
		"  file=\"/proc/4242/fd/7\"\n"+
		"  offset=32256\n", string(b))
	assert.Contains(t, m.ConfigPath(), "syslinux-mtools-")

	path := m.ConfigPath()
	require.NoError(t, m.Close())
	assert.NoFileExists(t, path)
	assert.NoError(t, m.Close())
	assert.Error(t, m.WriteFile(context.Background(), Root.Join("ldlinux.sys"), strings.NewReader("x")))
}

func TestMtoolsCommands(t *testing.T) {
	m, calls := newTestMtools(t, nil)
	ctx := context.Background()
	root := Root.Join("ldlinux.sys")
	dir, err := ParsePath("/boot/my dir")
	require.NoError(t, err)
	target := dir.Join("ldlinux.sys")

	require.NoError(t, m.SetAttributes(ctx, root, false))
	require.NoError(t, m.WriteFile(ctx, root, strings.NewReader("payload")))
	require.NoError(t, m.Move(ctx, root, target))
	require.NoError(t, m.SetAttributes(ctx, target, true))

	require.Len(t, *calls, 4)
	want := [][]string{
		{"mattrib", "-h", "-r", "-s", "s:/ldlinux.sys"},
		{"mcopy", "-D", "o", "-D", "O", "-o", "-", "s:/ldlinux.sys"},
		{"mmove", "-D", "o", "-D", "O", "s:/ldlinux.sys", "s:/boot/my dir/ldlinux.sys"},
		{"mattrib", "+r", "+h", "+s", "s:/boot/my dir/ldlinux.sys"},
	}
	for i, c := range *calls {
		assert.Equal(t, want[i], c.args)
		assert.Equal(t, m.ConfigPath(), c.rc)
	}
	assert.Equal(t, "payload", (*calls)[1].stdin)
}

func TestMtoolsBinDir(t *testing.T) {
	m, calls := newTestMtools(t, nil)
	m.binDir = "/opt/mtools/bin"
	require.NoError(t, m.SetAttributes(context.Background(), Root.Join("ldlinux.sys"), true))
	assert.Equal(t, "/opt/mtools/bin/mattrib", (*calls)[0].args[0])
}

func TestMtoolsFailure(t *testing.T) {
	m, _ := newTestMtools(t, map[string]string{"mmove": "mmove: cannot create directory entry"})
	err := m.Move(context.Background(), Root.Join("ldlinux.sys"), Root.Join("boot").Join("ldlinux.sys"))
	require.Error(t, err)

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "mmove", cerr.Args[0])
	assert.Equal(t, "mmove: cannot create directory entry", cerr.Stderr)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestNewMtoolsRejectsQuotes(t *testing.T) {
	_, err := NewMtools(MtoolsConfig{DevicePath: `/dev/"sdb"`, TempDir: t.TempDir()})
	assert.Error(t, err)
}
