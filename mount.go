package main

import (
	"bufio"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// sameDevice compares two device paths after resolving symlinks, so that
// /dev/disk/by-label/X matches the node it points at.
func sameDevice(a, b string) bool {
	resolve := func(p string) string {
		if r, err := filepath.EvalSymlinks(p); err == nil {
			return r
		}
		return filepath.Clean(p)
	}
	return resolve(a) == resolve(b)
}

// unescapeMount undoes the octal escapes used in the mounts table.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// findMount scans a mounts table in the /proc/self/mounts format for device.
func findMount(r io.Reader, device string) (string, bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		// format: <src> <target> <fstype> <opts> ...
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "/") {
			continue
		}
		if sameDevice(unescapeMount(fields[0]), device) {
			return unescapeMount(fields[1]), true
		}
	}
	return "", false
}
