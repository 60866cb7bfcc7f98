//go:build !windows

package sectorio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Kind classifies what a device path refers to.
type Kind int

const (
	KindOther Kind = iota
	KindRegular
	KindBlock
)

func fstat(f *os.File) (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return st, fmt.Errorf("fstat %s: %w", f.Name(), err)
	}
	return st, nil
}

// FileKind reports whether f is a regular file, a block device or neither.
func FileKind(f *os.File) (Kind, error) {
	st, err := fstat(f)
	if err != nil {
		return KindOther, err
	}
	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFREG:
		return KindRegular, nil
	case unix.S_IFBLK:
		return KindBlock, nil
	}
	return KindOther, nil
}

// DeviceSize returns the size of a regular file or block device in bytes.
func DeviceSize(f *os.File) (int64, error) {
	st, err := fstat(f)
	if err != nil {
		return 0, err
	}
	if uint32(st.Mode)&unix.S_IFMT == unix.S_IFREG {
		return st.Size, nil
	}
	n, err := blockDeviceSize(f.Fd())
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", f.Name(), err)
	}
	return n, nil
}
