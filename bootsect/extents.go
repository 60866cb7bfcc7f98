package bootsect

import "encoding/binary"

const extentSize = 10 // lba u64, len u16

// loadAddress is where the second image sector lands in memory; the boot
// sector loads the first one at 0x8000.
const loadAddress = 0x8000 + SectorSize

type extent struct {
	lba uint64
	len uint16
}

func (e extent) put(b []byte) {
	binary.LittleEndian.PutUint64(b, e.lba)
	binary.LittleEndian.PutUint16(b[8:], e.len)
}

// generateExtents merges consecutive sectors into runs the BIOS can read in
// one call: a run stays under 64 KiB and its memory target may not cross a
// 64 KiB boundary.
func generateExtents(sectors []uint64) []extent {
	var (
		out  []extent
		cur  extent
		addr uint32 = loadAddress
		base uint32
	)
	for _, s := range sectors {
		if cur.len > 0 {
			xbytes := (uint32(cur.len) + 1) * SectorSize
			if s == cur.lba+uint64(cur.len) && xbytes < 0x10000 &&
				(base^(base+xbytes-1))&0xffff0000 == 0 {
				cur.len++
				addr += SectorSize
				continue
			}
			out = append(out, cur)
		}
		base = addr
		cur = extent{lba: s, len: 1}
		addr += SectorSize
	}
	if cur.len > 0 {
		out = append(out, cur)
	}
	return out
}
