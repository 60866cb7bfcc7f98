// Package bootsect validates FAT volume boot sectors, patches the loader
// image with the sectors it was written to, and produces the boot sector
// that chains to it.
package bootsect

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SectorSize is the only sector size supported.
const SectorSize = 512

// Byte ranges of a FAT boot sector.
const (
	headLen   = 11  // jump instruction and OEM name
	codeStart = 90  // first byte after the FAT32 BPB
	codeEnd   = 510 // boot signature follows
)

// ErrInvalid is wrapped by every Check failure.
var ErrInvalid = errors.New("invalid boot sector")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Check reports whether bs is the boot sector of a FAT volume the loader
// can boot from. It does not modify bs.
func Check(bs []byte) error {
	if len(bs) != SectorSize {
		return invalid("sector is %d bytes", len(bs))
	}
	if bs[510] != 0x55 || bs[511] != 0xaa {
		return invalid("missing boot sector signature")
	}
	le := binary.LittleEndian

	media := bs[21]
	if media != 0xf0 && media < 0xf8 {
		return invalid("invalid media signature (not a FAT volume?)")
	}

	sectorSize := int(le.Uint16(bs[11:]))
	switch {
	case sectorSize == SectorSize:
	case sectorSize >= 512 && sectorSize <= 4096 && sectorSize&(sectorSize-1) == 0:
		return invalid("unsupported sector size %d", sectorSize)
	default:
		return invalid("impossible sector size %d", sectorSize)
	}

	clusterSize := int64(bs[13])
	if clusterSize == 0 || clusterSize&(clusterSize-1) != 0 {
		return invalid("impossible cluster size on a FAT volume")
	}

	sectors := int64(le.Uint16(bs[19:]))
	if sectors == 0 {
		sectors = int64(le.Uint32(bs[32:]))
	}
	fat16Size := int64(le.Uint16(bs[22:]))
	fatSectors := fat16Size
	if fatSectors == 0 {
		fatSectors = int64(le.Uint32(bs[36:]))
	}
	fatSectors *= int64(bs[16])
	if fatSectors == 0 {
		return invalid("zero FAT sectors")
	}
	rootDirSectors := (int64(le.Uint16(bs[17:]))*32 + SectorSize - 1) / SectorSize

	dataSectors := sectors - int64(le.Uint16(bs[14:])) - fatSectors - rootDirSectors
	if dataSectors < 0 {
		return invalid("negative number of data sectors on a FAT volume")
	}
	clusters := dataSectors / clusterSize

	switch {
	case clusters < 0xfff5:
		if fat16Size == 0 {
			return invalid("zero FAT sectors (FAT12/16)")
		}
		if bs[38] != 0x29 {
			return nil
		}
		switch label := string(bs[54:62]); label {
		case "FAT12   ":
			if clusters >= 0xff5 {
				return invalid("more than 4084 clusters but claims FAT12")
			}
		case "FAT16   ":
			if clusters < 0xff5 {
				return invalid("less than 4085 clusters but claims FAT16")
			}
		case "FAT32   ":
			return invalid("less than 65525 clusters but claims FAT32")
		case "FAT     ":
		default:
			return invalid("filesystem type %q not supported", label)
		}
	case clusters < 0x0ffffff5:
		if bs[66] != 0x29 || string(bs[82:90]) != "FAT32   " {
			return invalid("missing FAT32 signature")
		}
	default:
		return invalid("impossibly large number of clusters on a FAT volume")
	}
	return nil
}
