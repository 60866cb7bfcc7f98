package sectorio

// Volume addresses a filesystem that starts offset bytes into a device.
// Sector n lives at offset + n*SectorSize.
type Volume struct {
	dev    Device
	offset int64
}

// NewVolume returns a Volume over dev whose sector 0 is at byte offset.
func NewVolume(dev Device, offset int64) *Volume {
	return &Volume{dev: dev, offset: offset}
}

// Device returns the underlying device.
func (v *Volume) Device() Device { return v.dev }

// Offset returns the byte offset of sector 0 on the device.
func (v *Volume) Offset() int64 { return v.offset }

// ByteOffset returns the absolute device offset of sector n.
func (v *Volume) ByteOffset(n uint64) int64 {
	return v.offset + int64(n)*SectorSize
}

// ReadSector reads sector n into buf, which must be exactly one sector long.
func (v *Volume) ReadSector(n uint64, buf []byte) error {
	if len(buf) != SectorSize {
		return ErrPartialSector
	}
	_, err := ReadExact(v.dev, buf, v.ByteOffset(n))
	return err
}

// WriteSector writes buf, exactly one sector, to sector n.
func (v *Volume) WriteSector(n uint64, buf []byte) error {
	if len(buf) != SectorSize {
		return ErrPartialSector
	}
	_, err := WriteExact(v.dev, buf, v.ByteOffset(n))
	return err
}
