// Package fat walks the allocation tables and directories of a FAT12, FAT16
// or FAT32 volume one sector at a time. It reads just enough of the volume to
// follow cluster chains and locate directory entries; it is not a filesystem
// driver.
package fat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mapcollab/syslinux/sectorio"
)

// Type is the width of the allocation table entries.
type Type int

const (
	FAT12 Type = 12
	FAT16 Type = 16
	FAT32 Type = 32
)

func (t Type) String() string {
	return fmt.Sprintf("FAT%d", int(t))
}

var (
	// ErrNotFAT is returned by Open when sector 0 does not describe a volume
	// this package can walk.
	ErrNotFAT = errors.New("not a usable FAT filesystem")
	// ErrBadCluster is returned when a cluster number or sector lies outside
	// the data area, which means the chain is corrupt.
	ErrBadCluster = errors.New("cluster out of range")
	// ErrNotFound is returned when a directory has no entry with the
	// requested name.
	ErrNotFound = errors.New("no such directory entry")
	// ErrReadOnly is returned by SetAttr when the sector source cannot write.
	ErrReadOnly = errors.New("volume opened read-only")
)

// SectorReader reads whole sectors relative to the start of the volume.
type SectorReader interface {
	ReadSector(n uint64, buf []byte) error
}

// SectorWriter writes whole sectors relative to the start of the volume.
type SectorWriter interface {
	WriteSector(n uint64, buf []byte) error
}

// FS holds the geometry of an opened volume.
type FS struct {
	r SectorReader

	typ        Type
	shift      uint   // log2(sectors per cluster)
	fat        uint64 // first FAT sector
	rootdir    uint64 // first root directory sector (FAT12/16)
	data       uint64 // first sector of cluster 2
	end        uint64 // total sectors
	endCluster uint32 // one past the last valid cluster
	rootClus   uint32 // FAT32 root directory cluster

	cached    uint64
	cacheBuf  []byte
	cacheFull bool
}

// Open reads the boot sector through r and derives the volume layout.
func Open(r SectorReader) (*FS, error) {
	bs := make([]byte, sectorio.SectorSize)
	if err := r.ReadSector(0, bs); err != nil {
		return nil, fmt.Errorf("read boot sector: %w", err)
	}
	le := binary.LittleEndian

	if le.Uint16(bs[11:]) != sectorio.SectorSize {
		return nil, fmt.Errorf("%w: sector size %d", ErrNotFAT, le.Uint16(bs[11:]))
	}
	spc := bs[13]
	shift := uint(0)
	for shift < 8 && 1<<shift != int(spc) {
		shift++
	}
	if shift == 8 {
		return nil, fmt.Errorf("%w: %d sectors per cluster", ErrNotFAT, spc)
	}

	fs := &FS{r: r, shift: shift, cacheBuf: make([]byte, sectorio.SectorSize)}

	fs.end = uint64(le.Uint16(bs[19:]))
	if fs.end == 0 {
		fs.end = uint64(le.Uint32(bs[32:]))
	}
	fs.fat = uint64(le.Uint16(bs[14:]))
	fatSize := uint64(le.Uint16(bs[22:]))
	if fatSize == 0 {
		fatSize = uint64(le.Uint32(bs[36:]))
	}
	fs.rootdir = fs.fat + fatSize*uint64(bs[16])
	rootDirSectors := (uint64(le.Uint16(bs[17:]))*32 + sectorio.SectorSize - 1) / sectorio.SectorSize
	fs.data = fs.rootdir + rootDirSectors
	if fs.data >= fs.end {
		return nil, fmt.Errorf("%w: no data area", ErrNotFAT)
	}

	clusters := (fs.end - fs.data) >> shift
	fs.endCluster = uint32(clusters + 2)

	var minFAT uint64
	ec := uint64(fs.endCluster)
	switch {
	case clusters <= 0xff4:
		fs.typ = FAT12
		minFAT = ec + ec>>1
	case clusters <= 0xfff4:
		fs.typ = FAT16
		minFAT = ec << 1
	case clusters <= 0xffffff4:
		fs.typ = FAT32
		minFAT = ec << 2
	default:
		return nil, fmt.Errorf("%w: %d clusters", ErrNotFAT, clusters)
	}
	if (minFAT+sectorio.SectorSize-1)/sectorio.SectorSize > fatSize {
		return nil, fmt.Errorf("%w: FAT too small for %d clusters", ErrNotFAT, clusters)
	}
	if fs.typ == FAT32 {
		fs.rootClus = le.Uint32(bs[44:])
	}
	return fs, nil
}

// Type reports the FAT variant.
func (fs *FS) Type() Type { return fs.typ }

// SectorsPerCluster reports the cluster size in sectors.
func (fs *FS) SectorsPerCluster() int { return 1 << fs.shift }

// DataStart is the first sector of cluster 2.
func (fs *FS) DataStart() uint64 { return fs.data }

// ClusterToSector returns the first sector of cluster c. Cluster 0 names the
// root directory.
func (fs *FS) ClusterToSector(c uint32) (uint64, error) {
	if c == 0 {
		if fs.rootClus == 0 {
			return fs.rootdir, nil
		}
		c = fs.rootClus
	}
	if c < 2 || c >= fs.endCluster {
		return 0, fmt.Errorf("%w: cluster %d", ErrBadCluster, c)
	}
	return uint64(c-2)<<fs.shift + fs.data, nil
}

// NextSector returns the sector that follows s in its chain. ok is false when
// s is the last sector of the chain.
func (fs *FS) NextSector(s uint64) (next uint64, ok bool, err error) {
	if s < fs.data {
		if s < fs.rootdir {
			return 0, false, fmt.Errorf("%w: sector %d is before the root directory", ErrBadCluster, s)
		}
		s++
		return s, s < fs.data, nil
	}

	rs := s - fs.data
	mask := uint64(1)<<fs.shift - 1
	if rs&mask != mask {
		return s + 1, true, nil
	}

	cluster := uint32(2 + rs>>fs.shift)
	if cluster >= fs.endCluster {
		return 0, false, fmt.Errorf("%w: sector %d", ErrBadCluster, s)
	}

	var nextCluster uint32
	switch fs.typ {
	case FAT12:
		off := uint64(cluster) + uint64(cluster)>>1
		lo, err := fs.fatByte(off)
		if err != nil {
			return 0, false, err
		}
		hi, err := fs.fatByte(off + 1)
		if err != nil {
			return 0, false, err
		}
		v := uint32(lo) | uint32(hi)<<8
		if cluster&1 != 0 {
			v >>= 4
		} else {
			v &= 0x0fff
		}
		if v >= 0x0ff8 {
			return 0, false, nil
		}
		nextCluster = v
	case FAT16:
		buf, idx, err := fs.fatEntry(uint64(cluster) << 1)
		if err != nil {
			return 0, false, err
		}
		v := uint32(binary.LittleEndian.Uint16(buf[idx:]))
		if v >= 0xfff8 {
			return 0, false, nil
		}
		nextCluster = v
	case FAT32:
		buf, idx, err := fs.fatEntry(uint64(cluster) << 2)
		if err != nil {
			return 0, false, err
		}
		v := binary.LittleEndian.Uint32(buf[idx:]) & 0x0fffffff
		if v >= 0x0ffffff8 {
			return 0, false, nil
		}
		nextCluster = v
	}

	// A free entry inside a chain is as corrupt as a link past the end.
	if nextCluster < 2 {
		return 0, false, fmt.Errorf("%w: cluster %d links to %d", ErrBadCluster, cluster, nextCluster)
	}
	sec, err := fs.ClusterToSector(nextCluster)
	if err != nil {
		return 0, false, err
	}
	return sec, true, nil
}

func (fs *FS) fatByte(off uint64) (byte, error) {
	buf, idx, err := fs.fatEntry(off)
	if err != nil {
		return 0, err
	}
	return buf[idx], nil
}

// fatEntry returns the FAT sector holding byte off of the first FAT and the
// index of that byte within it. Entries never straddle sectors for FAT16 and
// FAT32.
func (fs *FS) fatEntry(off uint64) ([]byte, int, error) {
	buf, err := fs.sector(fs.fat + off/sectorio.SectorSize)
	if err != nil {
		return nil, 0, err
	}
	return buf, int(off % sectorio.SectorSize), nil
}

func (fs *FS) sector(n uint64) ([]byte, error) {
	if fs.cacheFull && fs.cached == n {
		return fs.cacheBuf, nil
	}
	fs.cacheFull = false
	if err := fs.r.ReadSector(n, fs.cacheBuf); err != nil {
		return nil, fmt.Errorf("read sector %d: %w", n, err)
	}
	fs.cached, fs.cacheFull = n, true
	return fs.cacheBuf, nil
}
