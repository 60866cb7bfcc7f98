// Package stager changes files on the target volume through a filesystem
// implementation: writing the loader file, moving it, and setting its
// attributes. Sector level work stays with the installer.
package stager

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Stager performs file level changes on the target volume.
type Stager interface {
	// WriteFile creates or replaces p with the contents of r.
	WriteFile(ctx context.Context, p SafePath, r io.Reader) error
	// SetAttributes sets (protect) or clears the read-only, hidden and
	// system attributes of p.
	SetAttributes(ctx context.Context, p SafePath, protect bool) error
	// Move renames from to to, replacing to.
	Move(ctx context.Context, from, to SafePath) error
	// Close releases any scratch state. It is safe to call more than once.
	Close() error
}

// CommandError is a filesystem tool that exited unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }
