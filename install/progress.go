package install

// Phase is one step of an installation, in execution order.
type Phase int

const (
	PhaseValidate Phase = iota
	PhaseStage
	PhaseResolve
	PhasePatch
	PhaseRewrite
	PhaseProtect
	PhaseCommit
	PhaseFinalize
)

var phaseNames = [...]string{"Validate", "Stage", "Resolve", "Patch", "Rewrite", "Protect", "Commit", "Finalize"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// Phases lists every phase in order.
func Phases() []Phase {
	out := make([]Phase, len(phaseNames))
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// Progress receives installation events. Calls come from the goroutine
// running the installation.
type Progress interface {
	// Phase reports that p started (done false) or finished (done true).
	Phase(p Phase, done bool)
	// Mapped reports the sectors the staged payload occupies.
	Mapped(sectors []uint64)
	// Patched reports how many leading sectors will be rewritten.
	Patched(count int)
	// Rewritten reports that payload sector i is on disk.
	Rewritten(i int)
}

type nopProgress struct{}

func (nopProgress) Phase(Phase, bool) {}
func (nopProgress) Mapped([]uint64)   {}
func (nopProgress) Patched(int)       {}
func (nopProgress) Rewritten(int)     {}
