package stager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/sirupsen/logrus"

	"github.com/mapcollab/syslinux/fat"
	"github.com/mapcollab/syslinux/sectorio"
)

const protectedAttrs = fat.AttrReadOnly | fat.AttrHidden | fat.AttrSystem

// Native changes FAT32 volumes in-process. It cannot move files.
type Native struct {
	file   *os.File
	offset int64
	size   int64
	vol    *sectorio.Volume
	log    logrus.FieldLogger
}

// NewNative operates on the FAT32 filesystem of size bytes that starts
// offset bytes into f.
func NewNative(f *os.File, offset, size int64, log logrus.FieldLogger) *Native {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Native{
		file:   f,
		offset: offset,
		size:   size,
		vol:    sectorio.NewVolume(sectorio.NewFile(f), offset),
		log:    log,
	}
}

func (n *Native) lookup(p SafePath) (*fat.FS, fat.Entry, error) {
	fs, err := fat.Open(n.vol)
	if err != nil {
		return nil, fat.Entry{}, err
	}
	e, err := fs.Lookup(p.Elems()...)
	return fs, e, err
}

// WriteFile writes r to p. A file of the same size is rewritten in place so
// it keeps its clusters.
func (n *Native) WriteFile(_ context.Context, p SafePath, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	flags := os.O_CREATE | os.O_RDWR
	_, e, err := n.lookup(p)
	switch {
	case err == nil && int(e.Size) != len(data):
		flags |= os.O_TRUNC
	case err != nil && !errors.Is(err, fat.ErrNotFound):
		return fmt.Errorf("look up %s: %w", p, err)
	}

	fs, err := fat32.Read(n.file, n.size, n.offset, sectorio.SectorSize)
	if err != nil {
		return fmt.Errorf("open FAT32 filesystem: %w", err)
	}
	name := strings.ToUpper(p.String())
	f, err := fs.OpenFile(name, flags)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	n.log.WithField("bytes", len(data)).Debugf("wrote %s", name)
	return nil
}

// SetAttributes rewrites the attribute byte of p's directory entry.
func (n *Native) SetAttributes(_ context.Context, p SafePath, protect bool) error {
	fs, e, err := n.lookup(p)
	if err != nil {
		return fmt.Errorf("look up %s: %w", p, err)
	}
	attr := e.Attr &^ protectedAttrs
	if protect {
		attr |= protectedAttrs
	}
	return fs.SetAttr(e, attr)
}

// Move is not supported.
func (n *Native) Move(_ context.Context, from, to SafePath) error {
	return fmt.Errorf("move %s to %s: %w", from, to, errors.ErrUnsupported)
}

// Close is a no-op.
func (n *Native) Close() error { return nil }
