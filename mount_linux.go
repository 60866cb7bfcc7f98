//go:build linux

package main

import "os"

// mountPoint reports where device is mounted, if anywhere.
func mountPoint(device string) (string, bool) {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return "", false
	}
	defer f.Close()
	return findMount(f, device)
}
