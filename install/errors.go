package install

import (
	"errors"
	"fmt"
)

// Kind classifies why an installation stopped.
type Kind int

const (
	// KindUsage: the options are unusable. Nothing was opened.
	KindUsage Kind = iota + 1
	// KindValidation: the device or volume is not an acceptable target.
	// Nothing was written.
	KindValidation
	// KindIO: a read, write or sync on the device failed.
	KindIO
	// KindResolution: the staged file could not be located completely on
	// the volume.
	KindResolution
	// KindSubprocess: the filesystem collaborator failed to stage the file.
	KindSubprocess
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindValidation:
		return "validation"
	case KindIO:
		return "i/o"
	case KindResolution:
		return "resolution"
	case KindSubprocess:
		return "subprocess"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a fatal installation failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return 0
}

// ErrVerify is returned when rewritten sectors do not read back as written.
var ErrVerify = errors.New("read-back does not match the data written")

func fail(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
