//go:build !windows && !linux && !darwin

package sectorio

import "errors"

func blockDeviceSize(uintptr) (int64, error) {
	return 0, errors.New("block device size not supported on this platform")
}
