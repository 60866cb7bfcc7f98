package fat_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcollab/syslinux/fat"
	"github.com/mapcollab/syslinux/fat/fattest"
)

// listChain is a chain of k sectors given explicitly.
type listChain struct {
	sectors []uint64
	failAt  int // index whose NextSector fails with a read error
	badAt   int // index whose NextSector reports a corrupt link
	calls   int
}

func (c *listChain) ClusterToSector(uint32) (uint64, error) {
	if len(c.sectors) == 0 {
		return 0, fat.ErrBadCluster
	}
	return c.sectors[0], nil
}

func (c *listChain) NextSector(s uint64) (uint64, bool, error) {
	c.calls++
	for i, v := range c.sectors {
		if v != s {
			continue
		}
		if c.failAt != 0 && i == c.failAt {
			return 0, false, errors.New("medium error")
		}
		if c.badAt != 0 && i == c.badAt {
			return 0, false, fat.ErrBadCluster
		}
		if i+1 == len(c.sectors) {
			return 0, false, nil
		}
		return c.sectors[i+1], true, nil
	}
	return 0, false, fat.ErrBadCluster
}

func TestResolveSectorMapLength(t *testing.T) {
	chain := []uint64{100, 101, 102, 500, 501, 7, 8, 9}
	for n := 0; n <= len(chain)+3; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			src := &listChain{sectors: chain}
			got, err := fat.ResolveSectorMap(src, 2, n)
			require.NoError(t, err)
			want := n
			if want > len(chain) {
				want = len(chain)
			}
			assert.Len(t, got, want)
			if want > 0 {
				assert.Equal(t, chain[:want], got)
			}
		})
	}
}

func TestResolveSectorMapStopsAtNeeded(t *testing.T) {
	src := &listChain{sectors: []uint64{1, 2, 3, 4, 5}}
	_, err := fat.ResolveSectorMap(src, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestResolveSectorMapBadLinks(t *testing.T) {
	got, err := fat.ResolveSectorMap(&listChain{}, 2, 4)
	require.NoError(t, err)
	assert.Empty(t, got)

	src := &listChain{sectors: []uint64{10, 11, 3}, badAt: 1}
	got, err = fat.ResolveSectorMap(src, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11}, got)
}

func TestResolveSectorMapReadError(t *testing.T) {
	src := &listChain{sectors: []uint64{10, 11, 12}, failAt: 1}
	got, err := fat.ResolveSectorMap(src, 2, 3)
	require.Error(t, err)
	assert.Equal(t, []uint64{10, 11}, got)
}

func TestResolveContiguousPayload(t *testing.T) {
	// 64 KiB file on one-sector clusters occupying clusters 10..137.
	im := fattest.New(fattest.FAT16())
	im.AddFile(0, "LDLINUX SYS", 64*1024, fattest.Contiguous(10, 128))

	fs, err := fat.Open(im)
	require.NoError(t, err)
	name, _ := fat.ShortName("ldlinux.sys")
	e, err := fs.SearchDir(0, name)
	require.NoError(t, err)

	got, err := fat.ResolveSectorMap(fs, e.Cluster, 128)
	require.NoError(t, err)
	require.Len(t, got, 128)
	first := im.ClusterSector(10)
	for i, s := range got {
		assert.Equal(t, first+uint64(i), s)
	}

	// Asking for more than the chain holds returns what is there.
	got, err = fat.ResolveSectorMap(fs, e.Cluster, 200)
	require.NoError(t, err)
	assert.Len(t, got, 128)
}

func TestResolveFragmentedPayload(t *testing.T) {
	g := fattest.FAT32()
	im := fattest.New(g)
	clusters := []uint32{40, 41, 90, 91, 92, 12}
	im.AddFile(0, "LDLINUX SYS", 6*512, clusters)

	fs, err := fat.Open(im)
	require.NoError(t, err)
	got, err := fat.ResolveSectorMap(fs, 40, 6)
	require.NoError(t, err)

	want := make([]uint64, len(clusters))
	for i, c := range clusters {
		want[i] = im.ClusterSector(c)
	}
	assert.Equal(t, want, got)
}
