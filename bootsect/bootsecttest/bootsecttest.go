// Package bootsecttest builds synthetic loader images and boot sector
// templates with the layout package bootsect patches.
package bootsecttest

import (
	"encoding/binary"
	"os"
	"path/filepath"
)

const magic = 0x3eb202fe

// Boot sector template offsets used by every image built here.
const (
	RAIDPatch = 492
	Sect1Ptr0 = 496
	Sect1Ptr1 = 500
)

// Layout controls the generated image.
type Layout struct {
	Size        int // image length in bytes
	PatchArea   int // dword aligned offset of the patch area
	ExtentSlots int
	DirLen      int
}

// DefaultLayout is a 7000 byte image, 14 sectors, with room for 16 extents.
func DefaultLayout() Layout {
	return Layout{Size: 7000, PatchArea: 0x20, ExtentSlots: 16, DirLen: 64}
}

// Offsets of the image fields, derived from a Layout.
type Offsets struct {
	PatchArea int
	EPA       int
	ADVPtrs   int
	Dir       int
	Subvol    int
	Extents   int
}

// Offsets computes where Image places each patchable field.
func (l Layout) Offsets() Offsets {
	o := Offsets{PatchArea: l.PatchArea}
	o.EPA = l.PatchArea + 24
	o.ADVPtrs = o.EPA + 20
	o.Dir = o.ADVPtrs + 16
	o.Subvol = o.Dir + l.DirLen
	o.Extents = o.Subvol + 32
	return o
}

// Image returns a loader image with a valid patch area and extended patch
// area. Bytes outside those areas follow a fixed pattern.
func Image(l Layout) []byte {
	img := make([]byte, l.Size)
	for i := range img {
		img[i] = byte(i*31 + i>>8)
	}
	o := l.Offsets()
	clear(img[o.PatchArea : o.Extents+l.ExtentSlots*10])

	le := binary.LittleEndian
	le.PutUint32(img[o.PatchArea:], magic)
	le.PutUint16(img[o.PatchArea+22:], uint16(o.EPA))

	epa := img[o.EPA:]
	le.PutUint16(epa[0:], uint16(o.ADVPtrs))
	le.PutUint16(epa[2:], uint16(o.Dir))
	le.PutUint16(epa[4:], uint16(l.DirLen))
	le.PutUint16(epa[6:], uint16(o.Subvol))
	le.PutUint16(epa[8:], 32)
	le.PutUint16(epa[10:], uint16(o.Extents))
	le.PutUint16(epa[12:], uint16(l.ExtentSlots))
	le.PutUint16(epa[14:], Sect1Ptr0)
	le.PutUint16(epa[16:], Sect1Ptr1)
	le.PutUint16(epa[18:], RAIDPatch)
	return img
}

// BootSector returns a boot sector template: a FAT32 style jump, OEM name,
// a parameter block of 0xEE filler and patterned boot code.
func BootSector() []byte {
	bs := make([]byte, 512)
	copy(bs, []byte{0xeb, 0x58, 0x90})
	copy(bs[3:11], "SYSLINUX")
	for i := 11; i < 90; i++ {
		bs[i] = 0xee
	}
	for i := 90; i < 510; i++ {
		bs[i] = byte(0x90 + i%7)
	}
	clear(bs[RAIDPatch : Sect1Ptr1+4])
	bs[510], bs[511] = 0x55, 0xaa
	return bs
}

// WriteFiles stores an image built from l and the boot sector template in
// dir and returns their paths.
func WriteFiles(dir string, l Layout) (imagePath, bootSectorPath string, err error) {
	imagePath = filepath.Join(dir, "ldlinux.sys")
	bootSectorPath = filepath.Join(dir, "ldlinux.bss")
	if err := os.WriteFile(imagePath, Image(l), 0o644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(bootSectorPath, BootSector(), 0o644); err != nil {
		return "", "", err
	}
	return imagePath, bootSectorPath, nil
}
