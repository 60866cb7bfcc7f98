package install

// PatchedSectorCount is the number of whole sectors that hold the first
// patchedLen bytes of the payload.
func PatchedSectorCount(patchedLen, sectorSize int) int {
	if patchedLen <= 0 {
		return 0
	}
	return (patchedLen + sectorSize - 1) / sectorSize
}
