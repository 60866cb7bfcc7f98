//go:build darwin

package main

import (
	"bytes"

	"golang.org/x/sys/unix"
)

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// mountPoint reports where device is mounted, if anywhere.
func mountPoint(device string) (string, bool) {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return "", false
	}
	buf := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(buf, unix.MNT_NOWAIT); err != nil {
		return "", false
	}
	for _, st := range buf {
		if sameDevice(cstring(st.Mntfromname[:]), device) {
			return cstring(st.Mntonname[:]), true
		}
	}
	return "", false
}
