// Package adv builds the auxiliary data vector stored in the two sectors
// that follow the loader image. The boot loader reads it to find one-shot
// boot commands and saved menu choices.
package adv

import (
	"encoding/binary"
	"errors"
)

const (
	// Size is the length of one copy of the vector.
	Size = 512
	// Len is the room for tagged records inside one copy.
	Len = Size - 3*4

	magic1 = 0x5a2d2fa5 // head signature
	magic2 = 0xa32d2f5a // checksum total
	magic3 = 0xdd28bf64 // tail signature
)

// Record tags.
const (
	TagEnd      = 0
	TagBootOnce = 1
	TagMenuSave = 2
)

var (
	ErrBadTag  = errors.New("invalid ADV tag")
	ErrNoSpace = errors.New("no space left in ADV")
)

// Block is the on-disk form: two identical copies of the vector.
type Block [2 * Size]byte

// New returns an empty, valid block.
func New() *Block {
	b := new(Block)
	b.Reset()
	return b
}

// Reset drops every record.
func (b *Block) Reset() {
	clear(b[:Size])
	b.seal()
}

// Bytes returns the 1024 bytes to store after the loader image.
func (b *Block) Bytes() []byte { return b[:] }

func (b *Block) data() []byte { return b[8 : 8+Len] }

// seal writes the signatures and checksum of the first copy and mirrors it
// into the second.
func (b *Block) seal() {
	le := binary.LittleEndian
	le.PutUint32(b[0:], magic1)
	le.PutUint32(b[Size-4:], magic3)
	csum := uint32(magic2)
	for i := 8; i < Size-4; i += 4 {
		csum -= le.Uint32(b[i:])
	}
	le.PutUint32(b[4:], csum)
	copy(b[Size:], b[:Size])
}

// Valid reports whether both copies carry correct signatures and checksums.
func (b *Block) Valid() bool {
	return validCopy(b[:Size]) && validCopy(b[Size:])
}

func validCopy(c []byte) bool {
	le := binary.LittleEndian
	if le.Uint32(c[0:]) != magic1 || le.Uint32(c[Size-4:]) != magic3 {
		return false
	}
	var sum uint32
	for i := 4; i < Size-4; i += 4 {
		sum += le.Uint32(c[i:])
	}
	return sum == magic2
}

// Get returns the data stored under tag, or nil.
func (b *Block) Get(tag byte) []byte {
	p := b.data()
	for len(p) >= 2 {
		t, n := p[0], int(p[1])
		if t == TagEnd || 2+n > len(p) {
			return nil
		}
		if t == tag {
			return append([]byte(nil), p[2:2+n]...)
		}
		p = p[2+n:]
	}
	return nil
}

// Set replaces the record for tag with data. Empty data deletes the record.
func (b *Block) Set(tag byte, data []byte) error {
	if tag == TagEnd {
		return ErrBadTag
	}
	if len(data) > 255 {
		return ErrNoSpace
	}

	var work [Len]byte
	copy(work[:], b.data())
	p := work[:] // records still to read, compacted towards the front
	left := Len  // room from the write position to the end
	w := 0       // write position
	for len(p) >= 2 {
		t, n := p[0], int(p[1])+2
		if t == TagEnd {
			break
		}
		if t == tag {
			if n >= len(p) {
				break
			}
			copy(p, p[n:])
			p = p[:len(p)-n]
			continue
		}
		if n > len(p) {
			// overrun: treat the rest as free space
			break
		}
		left -= n
		w += n
		p = p[n:]
	}

	if len(data) > 0 {
		if left < len(data)+2 {
			return ErrNoSpace
		}
		work[w] = tag
		work[w+1] = byte(len(data))
		copy(work[w+2:], data)
		w += len(data) + 2
	}
	clear(work[w:])

	copy(b.data(), work[:])
	b.seal()
	return nil
}
