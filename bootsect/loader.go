package bootsect

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// LoaderMagic marks the patch area inside the loader image.
const LoaderMagic = 0x3eb202fe

// ADVSectors is the number of sectors reserved after the image for the
// auxiliary data vector.
const ADVSectors = 2

var (
	// ErrBadImage is returned for loader images or boot sector templates
	// whose patch areas are missing or point outside the image.
	ErrBadImage = errors.New("malformed loader image")
	// ErrMapTooShort is returned when fewer sectors were supplied than the
	// image and its ADV occupy.
	ErrMapTooShort = errors.New("sector map shorter than loader image")
	// ErrExtentSpace is returned when the sector list does not fit in the
	// extent table of the image.
	ErrExtentSpace = errors.New("insufficient extent space")
	// ErrDirTooLong is returned when the install directory does not fit.
	ErrDirTooLong = errors.New("subdirectory path too long")
)

/* patch area, at the magic number */
const (
	paMagic       = 0
	paInstance    = 4
	paDataSectors = 8
	paADVSectors  = 10
	paDwords      = 12
	paChecksum    = 16
	paMaxTransfer = 20
	paEPAOffset   = 22
	paSize        = 24
)

/* extended patch area, at epaoffset */
const (
	epaADVPtrOffset = 0
	epaDirOffset    = 2
	epaDirLen       = 4
	epaSubvolOffset = 6
	epaSubvolLen    = 8
	epaSecPtrOffset = 10
	epaSecPtrCnt    = 12
	epaSect1Ptr0    = 14
	epaSect1Ptr1    = 16
	epaRAIDPatch    = 18
	epaSize         = 20
)

type extPatchArea struct {
	advPtrOffset int
	dirOffset    int
	dirLen       int
	secPtrOffset int
	secPtrCnt    int
	sect1Ptr0    int // boot sector relative
	sect1Ptr1    int
	raidPatch    int
}

// PatchOptions are the install-time settings baked into the image.
type PatchOptions struct {
	Stupid bool   // transfer one sector per BIOS call
	RAID   bool   // on boot failure, try the next BIOS device
	Subdir string // directory holding the loader, "" for the root
}

// Loader is a loader image paired with the boot sector template that loads
// its first sector. Patch modifies both in place.
type Loader struct {
	image []byte
	boot  []byte
	pa    int
	epa   extPatchArea
}

// LoadFiles reads the loader image and boot sector template from disk.
func LoadFiles(imagePath, bootSectorPath string) (*Loader, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read loader image: %w", err)
	}
	boot, err := os.ReadFile(bootSectorPath)
	if err != nil {
		return nil, fmt.Errorf("read boot sector template: %w", err)
	}
	return NewLoader(image, boot)
}

// NewLoader validates and copies image and bootSector.
func NewLoader(image, bootSector []byte) (*Loader, error) {
	if len(bootSector) != SectorSize {
		return nil, fmt.Errorf("%w: boot sector template is %d bytes", ErrBadImage, len(bootSector))
	}
	l := &Loader{
		image: bytes.Clone(image),
		boot:  bytes.Clone(bootSector),
		pa:    -1,
	}

	le := binary.LittleEndian
	for off := 0; off+paSize <= len(l.image); off += 4 {
		if le.Uint32(l.image[off:]) == LoaderMagic {
			l.pa = off
			break
		}
	}
	if l.pa < 0 {
		return nil, fmt.Errorf("%w: patch area not found", ErrBadImage)
	}

	epa := int(le.Uint16(l.image[l.pa+paEPAOffset:]))
	if epa+epaSize > len(l.image) {
		return nil, fmt.Errorf("%w: extended patch area at %#x", ErrBadImage, epa)
	}
	u16 := func(field int) int { return int(le.Uint16(l.image[epa+field:])) }
	l.epa = extPatchArea{
		advPtrOffset: u16(epaADVPtrOffset),
		dirOffset:    u16(epaDirOffset),
		dirLen:       u16(epaDirLen),
		secPtrOffset: u16(epaSecPtrOffset),
		secPtrCnt:    u16(epaSecPtrCnt),
		sect1Ptr0:    u16(epaSect1Ptr0),
		sect1Ptr1:    u16(epaSect1Ptr1),
		raidPatch:    u16(epaRAIDPatch),
	}

	inImage := func(off, n int) bool { return off+n <= len(l.image) }
	inCode := func(off, n int) bool { return off >= codeStart && off+n <= codeEnd }
	switch {
	case !inImage(l.epa.advPtrOffset, 16):
		return nil, fmt.Errorf("%w: ADV pointers out of range", ErrBadImage)
	case !inImage(l.epa.dirOffset, l.epa.dirLen):
		return nil, fmt.Errorf("%w: directory field out of range", ErrBadImage)
	case !inImage(l.epa.secPtrOffset, l.epa.secPtrCnt*extentSize):
		return nil, fmt.Errorf("%w: extent table out of range", ErrBadImage)
	case !inCode(l.epa.sect1Ptr0, 4) || !inCode(l.epa.sect1Ptr1, 4) || !inCode(l.epa.raidPatch, 2):
		return nil, fmt.Errorf("%w: boot sector pointers outside the code area", ErrBadImage)
	}
	return l, nil
}

// Image returns the loader image. Patch updates it in place.
func (l *Loader) Image() []byte { return l.image }

// BootSector returns the boot sector template.
func (l *Loader) BootSector() []byte { return l.boot }

// Check validates a volume boot sector.
func (l *Loader) Check(bs []byte) error { return Check(bs) }

// SectorsNeeded is the length of the sector map Patch requires: the image
// rounded up to whole sectors plus the ADV.
func (l *Loader) SectorsNeeded() int {
	return (len(l.image)+SectorSize-1)/SectorSize + ADVSectors
}

// Patch records the location of every image sector and the install options
// in the image and boot sector template, then recomputes the image checksum.
// sectors lists the volume sectors holding the image followed by its ADV, in
// file order. It returns the number of leading image bytes that changed and
// must be rewritten to disk.
func (l *Loader) Patch(sectors []uint64, opts PatchOptions) (int, error) {
	nsect := l.SectorsNeeded()
	if len(sectors) < nsect {
		return 0, fmt.Errorf("%w: %d of %d sectors", ErrMapTooShort, len(sectors), nsect)
	}
	le := binary.LittleEndian

	// The boot sector loads the first sector itself.
	le.PutUint32(l.boot[l.epa.sect1Ptr0:], uint32(sectors[0]))
	le.PutUint32(l.boot[l.epa.sect1Ptr1:], uint32(sectors[0]>>32))
	rest := sectors[1:nsect]

	if opts.RAID {
		// INT 18h
		le.PutUint16(l.boot[l.epa.raidPatch:], 0x18cd)
	}

	pa := l.image[l.pa:]
	dw := len(l.image) >> 2
	le.PutUint16(pa[paDataSectors:], uint16(nsect-ADVSectors))
	le.PutUint16(pa[paADVSectors:], ADVSectors)
	le.PutUint32(pa[paDwords:], uint32(dw))
	if opts.Stupid {
		le.PutUint16(pa[paMaxTransfer:], 1)
	}

	dataSectors := rest[:len(rest)-ADVSectors]
	extents := generateExtents(dataSectors)
	if len(extents) > l.epa.secPtrCnt {
		return 0, fmt.Errorf("%w: %d extents, room for %d", ErrExtentSpace, len(extents), l.epa.secPtrCnt)
	}
	table := l.image[l.epa.secPtrOffset : l.epa.secPtrOffset+l.epa.secPtrCnt*extentSize]
	clear(table)
	for i, ex := range extents {
		ex.put(table[i*extentSize:])
	}

	adv := l.image[l.epa.advPtrOffset:]
	le.PutUint64(adv[0:], rest[len(rest)-2])
	le.PutUint64(adv[8:], rest[len(rest)-1])

	if opts.Subdir != "" {
		if len(opts.Subdir)+1 > l.epa.dirLen {
			return 0, fmt.Errorf("%w: %q", ErrDirTooLong, opts.Subdir)
		}
		dir := l.image[l.epa.dirOffset : l.epa.dirOffset+l.epa.dirLen]
		clear(dir)
		copy(dir, opts.Subdir)
	}

	le.PutUint32(pa[paChecksum:], 0)
	csum := uint32(LoaderMagic)
	for i := 0; i < dw; i++ {
		csum -= le.Uint32(l.image[i*4:])
	}
	le.PutUint32(pa[paChecksum:], csum)

	return dw << 2, nil
}

// MakeBootSector overlays the template's jump instruction, OEM name and boot
// code on bs, leaving the volume's parameter block and signature alone.
func (l *Loader) MakeBootSector(bs []byte) error {
	if len(bs) != SectorSize {
		return fmt.Errorf("boot sector is %d bytes", len(bs))
	}
	copy(bs[:headLen], l.boot[:headLen])
	copy(bs[codeStart:codeEnd], l.boot[codeStart:codeEnd])
	return nil
}
