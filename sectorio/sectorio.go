// Package sectorio moves whole sectors between memory and a device at
// absolute byte offsets, retrying interrupted and partial transfers.
package sectorio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SectorSize is the only sector size the installer supports.
const SectorSize = 512

var (
	// ErrShortRead is returned when the device reports end of data before
	// the buffer was filled.
	ErrShortRead = errors.New("short read")
	// ErrShortWrite is returned when the device accepts zero bytes.
	ErrShortWrite = errors.New("short write")
	// ErrPartialSector is returned for buffers that are not exactly one sector.
	ErrPartialSector = errors.New("buffer is not a whole sector")
)

// Error records a failed transfer and the byte offset it started at.
type Error struct {
	Op     string
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at byte %d: %v", e.Op, e.Offset, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Device performs a single positional transfer per call. Implementations may
// move fewer bytes than requested and may fail with EINTR.
type Device interface {
	Pread(p []byte, off int64) (int, error)
	Pwrite(p []byte, off int64) (int, error)
}

// File is a Device backed by an open file descriptor.
type File struct {
	f *os.File
}

// NewFile wraps f. The file must stay open for the life of the File.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

func (d *File) Pread(p []byte, off int64) (int, error) {
	return unix.Pread(int(d.f.Fd()), p, off)
}

func (d *File) Pwrite(p []byte, off int64) (int, error) {
	return unix.Pwrite(int(d.f.Fd()), p, off)
}

// ReadExact fills buf from d starting at off. On success the returned count
// equals len(buf).
func ReadExact(d Device, buf []byte, off int64) (int, error) {
	done := 0
	for done < len(buf) {
		n, err := d.Pread(buf[done:], off+int64(done))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return done, &Error{Op: "read", Offset: off, Err: err}
		}
		if n == 0 {
			return done, &Error{Op: "read", Offset: off, Err: ErrShortRead}
		}
		done += n
	}
	return done, nil
}

// WriteExact writes all of buf to d starting at off. On success the returned
// count equals len(buf).
func WriteExact(d Device, buf []byte, off int64) (int, error) {
	done := 0
	for done < len(buf) {
		n, err := d.Pwrite(buf[done:], off+int64(done))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return done, &Error{Op: "write", Offset: off, Err: err}
		}
		if n == 0 {
			return done, &Error{Op: "write", Offset: off, Err: ErrShortWrite}
		}
		done += n
	}
	return done, nil
}
