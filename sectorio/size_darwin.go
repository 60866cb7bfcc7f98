package sectorio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// from <sys/disk.h>
const (
	dkiocGetBlockSize  = 0x40046418
	dkiocGetBlockCount = 0x40086419
)

func ioctlPtr(fd uintptr, req uintptr, p unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(p)); errno != 0 {
		return errno
	}
	return nil
}

func blockDeviceSize(fd uintptr) (int64, error) {
	var size uint32
	var count uint64
	if err := ioctlPtr(fd, dkiocGetBlockSize, unsafe.Pointer(&size)); err != nil {
		return 0, err
	}
	if err := ioctlPtr(fd, dkiocGetBlockCount, unsafe.Pointer(&count)); err != nil {
		return 0, err
	}
	return int64(size) * int64(count), nil
}
