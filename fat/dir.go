package fat

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Directory entry attribute bits.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = 0x0f
)

const direntSize = 32

// Entry is a short-name directory entry and where it was found.
type Entry struct {
	Name    [11]byte
	Attr    byte
	Cluster uint32
	Size    uint32

	Sector uint64 // sector holding the entry
	Offset int    // byte offset of the entry within Sector
}

// IsDir reports whether the entry names a directory.
func (e Entry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

// ShortName converts "name.ext" into the padded 11 byte form stored on disk.
func ShortName(s string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext := s, ""
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		base, ext = s[:i], s[i+1:]
	}
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return out, fmt.Errorf("%q is not an 8.3 name", s)
	}
	for _, c := range base + ext {
		if c <= ' ' || c >= 0x7f || strings.ContainsRune(`."*+,/:;<=>?[\]|`, c) {
			return out, fmt.Errorf("%q is not an 8.3 name", s)
		}
	}
	copy(out[:8], strings.ToUpper(base))
	copy(out[8:], strings.ToUpper(ext))
	return out, nil
}

// SearchDir scans the directory starting at cluster dir (0 for the root)
// for an entry whose stored short name equals name. Long-name fragments and
// volume labels are skipped; deleted entries never match.
func (fs *FS) SearchDir(dir uint32, name [11]byte) (Entry, error) {
	s, err := fs.ClusterToSector(dir)
	if err != nil {
		return Entry{}, err
	}
	le := binary.LittleEndian
	for {
		buf, err := fs.sector(s)
		if err != nil {
			return Entry{}, err
		}
		for off := 0; off < len(buf); off += direntSize {
			d := buf[off : off+direntSize]
			if d[0] == 0 {
				return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, strings.TrimRight(string(name[:]), " "))
			}
			attr := d[11]
			if attr&AttrLongName == AttrLongName || attr&AttrVolumeID != 0 {
				continue
			}
			if [11]byte(d[:11]) != name {
				continue
			}
			e := Entry{
				Name:   name,
				Attr:   attr,
				Size:   le.Uint32(d[28:]),
				Sector: s,
				Offset: off,
			}
			// An empty file owns no clusters.
			if e.Size != 0 || e.IsDir() {
				e.Cluster = uint32(le.Uint16(d[20:]))<<16 | uint32(le.Uint16(d[26:]))
			}
			return e, nil
		}
		next, ok, err := fs.NextSector(s)
		if err != nil {
			return Entry{}, err
		}
		if !ok {
			return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, strings.TrimRight(string(name[:]), " "))
		}
		s = next
	}
}

// Lookup resolves a path of 8.3 components from the root directory.
func (fs *FS) Lookup(path ...string) (Entry, error) {
	var (
		dir uint32
		e   Entry
	)
	if len(path) == 0 {
		return Entry{}, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	for i, comp := range path {
		name, err := ShortName(comp)
		if err != nil {
			return Entry{}, err
		}
		e, err = fs.SearchDir(dir, name)
		if err != nil {
			return Entry{}, err
		}
		if i < len(path)-1 {
			if !e.IsDir() {
				return Entry{}, fmt.Errorf("%w: %s is not a directory", ErrNotFound, comp)
			}
			dir = e.Cluster
		}
	}
	return e, nil
}

// SetAttr rewrites the attribute byte of e in place.
func (fs *FS) SetAttr(e Entry, attr byte) error {
	w, ok := fs.r.(SectorWriter)
	if !ok {
		return ErrReadOnly
	}
	buf := make([]byte, len(fs.cacheBuf))
	if err := fs.r.ReadSector(e.Sector, buf); err != nil {
		return fmt.Errorf("read sector %d: %w", e.Sector, err)
	}
	if [11]byte(buf[e.Offset:e.Offset+11]) != e.Name {
		return fmt.Errorf("%w: entry moved", ErrNotFound)
	}
	buf[e.Offset+11] = attr
	if err := w.WriteSector(e.Sector, buf); err != nil {
		return fmt.Errorf("write sector %d: %w", e.Sector, err)
	}
	if fs.cached == e.Sector {
		fs.cacheFull = false
	}
	return nil
}
