package install

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatchedSectorCount(t *testing.T) {
	assert.Equal(t, 0, PatchedSectorCount(0, 512))
	assert.Equal(t, 1, PatchedSectorCount(1, 512))
	assert.Equal(t, 1, PatchedSectorCount(512, 512))
	assert.Equal(t, 2, PatchedSectorCount(513, 512))
	assert.Equal(t, 14, PatchedSectorCount(7000, 512))

	for n := 1; n <= 8192; n++ {
		c := PatchedSectorCount(n, 512)
		if c*512 < n || (c-1)*512 >= n {
			t.Fatalf("PatchedSectorCount(%d) = %d", n, c)
		}
	}
}

func TestPhaseNames(t *testing.T) {
	assert.Len(t, Phases(), 8)
	assert.Equal(t, "Validate", PhaseValidate.String())
	assert.Equal(t, "Finalize", PhaseFinalize.String())
	assert.Equal(t, "Unknown", Phase(42).String())
}
