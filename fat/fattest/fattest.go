// Package fattest builds small in-memory FAT volumes for tests.
package fattest

import (
	"encoding/binary"
	"fmt"
)

const sectorSize = 512

// Geometry describes the layout of a synthetic volume.
type Geometry struct {
	Width             int // 12, 16 or 32
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16
	FATSectors        uint32
	TotalSectors      uint32
	RootCluster       uint32
}

// FAT12 is a 1.44 MB floppy.
func FAT12() Geometry {
	return Geometry{Width: 12, SectorsPerCluster: 1, ReservedSectors: 1, NumFATs: 2,
		RootEntries: 224, FATSectors: 9, TotalSectors: 2880}
}

// FAT16 has 5000 one-sector clusters.
func FAT16() Geometry {
	return Geometry{Width: 16, SectorsPerCluster: 1, ReservedSectors: 1, NumFATs: 2,
		RootEntries: 512, FATSectors: 20, TotalSectors: 1 + 40 + 32 + 5000}
}

// FAT32 has 66000 one-sector clusters, just past the FAT16 limit.
func FAT32() Geometry {
	return Geometry{Width: 32, SectorsPerCluster: 1, ReservedSectors: 32, NumFATs: 2,
		FATSectors: 520, TotalSectors: 32 + 1040 + 66000, RootCluster: 2}
}

// Image is a volume held in memory. It implements the sector reader and
// writer interfaces of package fat.
type Image struct {
	G    Geometry
	Data []byte

	Reads  int
	Writes int
}

// New formats an empty volume with geometry g.
func New(g Geometry) *Image {
	im := &Image{G: g, Data: make([]byte, int(g.TotalSectors)*sectorSize)}
	bs := im.Data[:sectorSize]
	le := binary.LittleEndian

	if g.Width == 32 {
		copy(bs, []byte{0xeb, 0x58, 0x90})
	} else {
		copy(bs, []byte{0xeb, 0x3c, 0x90})
	}
	copy(bs[3:11], "MSWIN4.1")
	le.PutUint16(bs[11:], sectorSize)
	bs[13] = g.SectorsPerCluster
	le.PutUint16(bs[14:], g.ReservedSectors)
	bs[16] = g.NumFATs
	le.PutUint16(bs[17:], g.RootEntries)
	if g.TotalSectors < 0x10000 && g.Width != 32 {
		le.PutUint16(bs[19:], uint16(g.TotalSectors))
	} else {
		le.PutUint32(bs[32:], g.TotalSectors)
	}
	bs[21] = 0xf8
	le.PutUint16(bs[24:], 63)
	le.PutUint16(bs[26:], 255)

	if g.Width == 32 {
		le.PutUint32(bs[36:], g.FATSectors)
		le.PutUint32(bs[44:], g.RootCluster)
		le.PutUint16(bs[48:], 1)
		le.PutUint16(bs[50:], 6)
		bs[64] = 0x80
		bs[66] = 0x29
		le.PutUint32(bs[67:], 0x1234abcd)
		copy(bs[71:82], "NO NAME    ")
		copy(bs[82:90], "FAT32   ")
	} else {
		le.PutUint16(bs[22:], uint16(g.FATSectors))
		bs[36] = 0x80
		bs[38] = 0x29
		le.PutUint32(bs[39:], 0x1234abcd)
		copy(bs[43:54], "NO NAME    ")
		copy(bs[54:62], fmt.Sprintf("FAT%d   ", g.Width))
	}
	bs[510], bs[511] = 0x55, 0xaa

	im.SetFAT(0, 0x0ffffff8)
	im.SetFAT(1, 0x0fffffff)
	if g.Width == 32 {
		im.SetFAT(g.RootCluster, 0x0fffffff)
	}
	return im
}

// ReadSector copies sector n into buf.
func (im *Image) ReadSector(n uint64, buf []byte) error {
	off := int(n) * sectorSize
	if len(buf) != sectorSize || off+sectorSize > len(im.Data) {
		return fmt.Errorf("fattest: read of sector %d out of range", n)
	}
	im.Reads++
	copy(buf, im.Data[off:off+sectorSize])
	return nil
}

// WriteSector copies buf into sector n.
func (im *Image) WriteSector(n uint64, buf []byte) error {
	off := int(n) * sectorSize
	if len(buf) != sectorSize || off+sectorSize > len(im.Data) {
		return fmt.Errorf("fattest: write of sector %d out of range", n)
	}
	im.Writes++
	copy(im.Data[off:off+sectorSize], buf)
	return nil
}

func (im *Image) rootDirStart() int {
	return int(im.G.ReservedSectors) + int(im.G.NumFATs)*int(im.G.FATSectors)
}

// DataStart is the first sector of cluster 2.
func (im *Image) DataStart() uint64 {
	return uint64(im.rootDirStart()) + (uint64(im.G.RootEntries)*32+sectorSize-1)/sectorSize
}

// ClusterSector returns the first sector of cluster c.
func (im *Image) ClusterSector(c uint32) uint64 {
	return uint64(c-2)*uint64(im.G.SectorsPerCluster) + im.DataStart()
}

// SetFAT stores v as the entry for cluster c in every FAT copy.
func (im *Image) SetFAT(c uint32, v uint32) {
	le := binary.LittleEndian
	for i := 0; i < int(im.G.NumFATs); i++ {
		base := (int(im.G.ReservedSectors) + i*int(im.G.FATSectors)) * sectorSize
		switch im.G.Width {
		case 12:
			off := base + int(c) + int(c)/2
			cur := le.Uint16(im.Data[off:])
			if c&1 != 0 {
				cur = cur&0x000f | uint16(v&0x0fff)<<4
			} else {
				cur = cur&0xf000 | uint16(v&0x0fff)
			}
			le.PutUint16(im.Data[off:], cur)
		case 16:
			le.PutUint16(im.Data[base+int(c)*2:], uint16(v))
		default:
			off := base + int(c)*4
			cur := le.Uint32(im.Data[off:])
			le.PutUint32(im.Data[off:], cur&0xf0000000|v&0x0fffffff)
		}
	}
}

// Chain links the clusters in order and terminates the chain.
func (im *Image) Chain(clusters ...uint32) {
	for i, c := range clusters {
		if i == len(clusters)-1 {
			im.SetFAT(c, 0x0fffffff)
		} else {
			im.SetFAT(c, clusters[i+1])
		}
	}
}

// Contiguous returns n cluster numbers starting at first.
func Contiguous(first uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = first + uint32(i)
	}
	return out
}

// AddEntry writes a short-name entry into the first free slot of the
// directory at cluster dir (0 for the root). name is the raw 11 byte form.
func (im *Image) AddEntry(dir uint32, name string, attr byte, cluster, size uint32) {
	if len(name) != 11 {
		panic("fattest: name must be 11 bytes")
	}
	var start, count int
	switch {
	case dir == 0 && im.G.Width != 32:
		start = im.rootDirStart()
		count = int(im.DataStart()) - start
	case dir == 0:
		start = int(im.ClusterSector(im.G.RootCluster))
		count = int(im.G.SectorsPerCluster)
	default:
		start = int(im.ClusterSector(dir))
		count = int(im.G.SectorsPerCluster)
	}
	le := binary.LittleEndian
	for off := start * sectorSize; off < (start+count)*sectorSize; off += 32 {
		d := im.Data[off : off+32]
		if d[0] != 0 {
			continue
		}
		copy(d[:11], name)
		d[11] = attr
		le.PutUint16(d[20:], uint16(cluster>>16))
		le.PutUint16(d[26:], uint16(cluster))
		le.PutUint32(d[28:], size)
		return
	}
	panic("fattest: directory full")
}

// AddFile allocates the given clusters to a new file in directory dir and
// fills each of its sectors with a recognisable pattern.
func (im *Image) AddFile(dir uint32, name string, size uint32, clusters []uint32) {
	im.Chain(clusters...)
	for i, c := range clusters {
		for s := 0; s < int(im.G.SectorsPerCluster); s++ {
			sec := int(im.ClusterSector(c)) + s
			for j := 0; j < sectorSize; j++ {
				im.Data[sec*sectorSize+j] = byte(i + s + j)
			}
		}
	}
	first := uint32(0)
	if len(clusters) > 0 {
		first = clusters[0]
	}
	im.AddEntry(dir, name, 0x20, first, size)
}
