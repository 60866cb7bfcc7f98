package sectorio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func blockDeviceSize(fd uintptr) (int64, error) {
	var n uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&n))); errno != 0 {
		return 0, errno
	}
	return int64(n), nil
}
