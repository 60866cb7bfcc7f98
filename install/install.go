// Package install drives a boot loader installation onto a FAT volume.
//
// An installation runs as a fixed sequence of phases. The loader file is
// staged through a filesystem collaborator, located on the raw device,
// patched with its own sector map and rewritten in place. The boot sector
// is replaced last, so a failure before the Commit phase leaves the volume
// unbootable by the new loader but otherwise intact.
package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/mapcollab/syslinux/adv"
	"github.com/mapcollab/syslinux/bootsect"
	"github.com/mapcollab/syslinux/fat"
	"github.com/mapcollab/syslinux/sectorio"
	"github.com/mapcollab/syslinux/stager"
)

// LoaderName is the name of the staged loader file.
const LoaderName = "ldlinux.sys"

const (
	msgMoveFailed    = "unable to move " + LoaderName
	msgProtectFailed = "failed to set system bit on " + LoaderName
)

// Options are the user's choices for one installation.
type Options struct {
	Device    string
	Offset    int64
	Force     bool
	Stupid    bool
	RAID      bool
	Directory string
	// Once is stored in the ADV as a one-shot boot command.
	Once   string
	Verify bool
}

// Codec knows the loader's on-disk layout.
type Codec interface {
	Check(bs []byte) error
	Image() []byte
	Patch(sectors []uint64, opts bootsect.PatchOptions) (int, error)
	MakeBootSector(bs []byte) error
}

// Context is the open target, built once during validation.
type Context struct {
	Device string
	File   *os.File
	Volume *sectorio.Volume
	Offset int64
	// Size is the number of bytes from Offset to the end of the device,
	// or 0 when it could not be determined.
	Size int64
	PID  int
}

// ProcPath names the open descriptor through /proc, so that helpers
// running as child processes reach the same device.
func (ic *Context) ProcPath() string {
	return fmt.Sprintf("/proc/%d/fd/%d", ic.PID, ic.File.Fd())
}

// Result describes a finished installation.
type Result struct {
	SectorMap    []uint64
	PatchSectors int
	// Path is where the loader file ended up.
	Path      stager.SafePath
	Relocated bool
	Warnings  []string
	// Digest is the BLAKE3 hash of the loader file contents on disk.
	Digest [32]byte
}

// Installer runs installations. Codec and NewStager are required.
type Installer struct {
	Options   Options
	Codec     Codec
	NewStager func(ic *Context) (stager.Stager, error)
	Progress  Progress
	Log       logrus.FieldLogger
}

type run struct {
	*Installer
	log      logrus.FieldLogger
	progress Progress
	subdir   stager.SafePath
	adv      *adv.Block
	ic       *Context
	st       stager.Stager
	res      *Result
}

// Run installs the loader. On error the returned error is an *Error.
func (in *Installer) Run(ctx context.Context) (*Result, error) {
	r := &run{Installer: in, log: in.Log, progress: in.Progress, res: &Result{}}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.progress == nil {
		r.progress = nopProgress{}
	}
	if err := r.prepare(); err != nil {
		return nil, err
	}
	defer r.cleanup()

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseValidate, r.validate},
		{PhaseStage, r.stage},
		{PhaseResolve, r.resolve},
		{PhasePatch, r.patch},
		{PhaseRewrite, r.rewrite},
		{PhaseProtect, r.protect},
		{PhaseCommit, r.commit},
		{PhaseFinalize, r.finalize},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fail(KindIO, s.phase.String(), err)
		}
		r.log.WithField("phase", s.phase).Debug("begin")
		r.progress.Phase(s.phase, false)
		if err := s.fn(ctx); err != nil {
			r.log.WithField("phase", s.phase).WithError(err).Debug("failed")
			return nil, err
		}
		r.progress.Phase(s.phase, true)
	}
	return r.res, nil
}

func (r *run) prepare() error {
	if r.Codec == nil || r.NewStager == nil {
		return fail(KindUsage, "", errors.New("installer needs a codec and a stager"))
	}
	if r.Options.Device == "" {
		return fail(KindUsage, "", errors.New("no device given"))
	}
	if r.Options.Offset < 0 {
		return fail(KindUsage, "offset", fmt.Errorf("negative offset %d", r.Options.Offset))
	}
	sub, err := stager.ParsePath(r.Options.Directory)
	if err != nil {
		return fail(KindUsage, "directory", err)
	}
	r.subdir = sub

	r.adv = adv.New()
	if r.Options.Once != "" {
		if err := r.adv.Set(adv.TagBootOnce, []byte(r.Options.Once)); err != nil {
			return fail(KindUsage, "once", err)
		}
	}
	return nil
}

func (r *run) cleanup() {
	if r.st != nil {
		if err := r.st.Close(); err != nil {
			r.log.WithError(err).Debug("close stager")
		}
	}
	if r.ic != nil && r.ic.File != nil {
		r.ic.File.Close()
	}
}

func (r *run) warn(msg string, err error) {
	r.log.WithError(err).Warn(msg)
	r.res.Warnings = append(r.res.Warnings, msg)
}

// payload is the loader file as staged: the image followed by the ADV.
func (r *run) payload() []byte {
	img := r.Codec.Image()
	out := make([]byte, 0, len(img)+len(r.adv))
	out = append(out, img...)
	return append(out, r.adv.Bytes()...)
}

func (r *run) validate(context.Context) error {
	opts := r.Options
	f, err := os.OpenFile(opts.Device, os.O_RDWR, 0)
	if err != nil {
		return fail(KindIO, "", err)
	}
	r.ic = &Context{Device: opts.Device, File: f, Offset: opts.Offset, PID: os.Getpid()}

	kind, err := sectorio.FileKind(f)
	if err != nil {
		return fail(KindIO, opts.Device, err)
	}
	if kind == sectorio.KindOther && !opts.Force {
		return fail(KindValidation, opts.Device, errors.New("not a block device or regular file (use -f to override)"))
	}

	size, err := sectorio.DeviceSize(f)
	if err != nil {
		r.log.WithError(err).Debugf("%s: size unknown", opts.Device)
	} else {
		if opts.Offset >= size {
			return fail(KindValidation, opts.Device, fmt.Errorf("offset %d is beyond the end of the device", opts.Offset))
		}
		r.ic.Size = size - opts.Offset
	}

	r.ic.Volume = sectorio.NewVolume(sectorio.NewFile(f), opts.Offset)
	bs := make([]byte, sectorio.SectorSize)
	if err := r.ic.Volume.ReadSector(0, bs); err != nil {
		return fail(KindIO, opts.Device, err)
	}
	if err := r.Codec.Check(bs); err != nil {
		return fail(KindValidation, opts.Device, err)
	}
	return nil
}

func (r *run) stage(ctx context.Context) error {
	st, err := r.NewStager(r.ic)
	if err != nil {
		return fail(KindSubprocess, "stager", err)
	}
	r.st = st

	target := stager.Root.Join(LoaderName)
	if err := st.SetAttributes(ctx, target, false); err != nil {
		r.log.WithError(err).Debugf("clear attributes on %s", target)
	}
	if err := st.WriteFile(ctx, target, bytes.NewReader(r.payload())); err != nil {
		return fail(KindSubprocess, "stage "+LoaderName, err)
	}
	return nil
}

// classify maps errors from the volume walk to a Kind: transfer failures
// are I/O, anything else means the volume could not be followed.
func classify(op string, err error) error {
	var serr *sectorio.Error
	if errors.As(err, &serr) {
		return fail(KindIO, op, err)
	}
	return fail(KindResolution, op, err)
}

func (r *run) resolve(context.Context) error {
	fs, err := fat.Open(r.ic.Volume)
	if err != nil {
		return classify("open volume", err)
	}
	name, err := fat.ShortName(LoaderName)
	if err != nil {
		return fail(KindResolution, LoaderName, err)
	}
	e, err := fs.SearchDir(0, name)
	if err != nil {
		return classify("find "+LoaderName, err)
	}
	if e.Cluster == 0 {
		return fail(KindResolution, "map "+LoaderName, errors.New("file owns no clusters"))
	}

	needed := (len(r.payload()) + sectorio.SectorSize - 1) / sectorio.SectorSize
	sectors, err := fat.ResolveSectorMap(fs, e.Cluster, needed)
	if err != nil {
		return classify("map "+LoaderName, err)
	}
	if len(sectors) < needed {
		return fail(KindResolution, "map "+LoaderName,
			fmt.Errorf("cluster chain covers %d of %d sectors", len(sectors), needed))
	}
	r.log.WithFields(logrus.Fields{
		"type":    fs.Type(),
		"cluster": e.Cluster,
		"sectors": needed,
	}).Debug("mapped loader file")
	r.res.SectorMap = sectors
	r.progress.Mapped(sectors)
	return nil
}

func (r *run) patch(context.Context) error {
	opts := bootsect.PatchOptions{Stupid: r.Options.Stupid, RAID: r.Options.RAID}
	if !r.subdir.IsRoot() {
		opts.Subdir = r.subdir.String()
	}
	n, err := r.Codec.Patch(r.res.SectorMap, opts)
	if err != nil {
		kind := KindValidation
		if errors.Is(err, bootsect.ErrMapTooShort) || errors.Is(err, bootsect.ErrExtentSpace) {
			kind = KindResolution
		}
		return fail(kind, "patch loader", err)
	}
	count := PatchedSectorCount(n, sectorio.SectorSize)
	if count > len(r.res.SectorMap) {
		return fail(KindResolution, "patch loader",
			fmt.Errorf("patched area spans %d sectors but only %d are mapped", count, len(r.res.SectorMap)))
	}
	r.res.PatchSectors = count
	r.progress.Patched(count)
	return nil
}

func (r *run) rewrite(context.Context) error {
	data := r.payload()
	vol := r.ic.Volume
	sec := make([]byte, sectorio.SectorSize)
	for i := 0; i < r.res.PatchSectors; i++ {
		// the last payload sector may be partial; pad it with zeros
		clear(sec)
		copy(sec, data[min(i*sectorio.SectorSize, len(data)):])
		if err := vol.WriteSector(r.res.SectorMap[i], sec); err != nil {
			return fail(KindIO, "rewrite "+LoaderName, err)
		}
		r.log.WithField("sector", r.res.SectorMap[i]).Debug("rewrote")
		r.progress.Rewritten(i)
	}
	r.res.Digest = blake3.Sum256(data)

	if r.Options.Verify {
		if err := r.verify(data); err != nil {
			return err
		}
	}
	return nil
}

// verify reads back every mapped sector of the loader file and compares
// the hash with the payload.
func (r *run) verify(data []byte) error {
	h := blake3.New()
	buf := make([]byte, sectorio.SectorSize)
	for i, s := range r.res.SectorMap {
		if err := r.ic.Volume.ReadSector(s, buf); err != nil {
			return fail(KindIO, "verify "+LoaderName, err)
		}
		end := (i + 1) * sectorio.SectorSize
		if end > len(data) {
			end = len(data)
		}
		h.Write(buf[:end-i*sectorio.SectorSize])
	}
	var got [32]byte
	copy(got[:], h.Sum(nil))
	if got != r.res.Digest {
		return fail(KindIO, "verify "+LoaderName, ErrVerify)
	}
	r.log.Debugf("verified %d sectors", len(r.res.SectorMap))
	return nil
}

func (r *run) protect(ctx context.Context) error {
	final := stager.Root.Join(LoaderName)
	if !r.subdir.IsRoot() {
		target := r.subdir.Join(LoaderName)
		if err := r.st.SetAttributes(ctx, target, false); err != nil {
			r.log.WithError(err).Debugf("clear attributes on %s", target)
		}
		if err := r.st.Move(ctx, final, target); err != nil {
			r.warn(msgMoveFailed, err)
		} else {
			final = target
			r.res.Relocated = true
		}
	}
	if err := r.st.SetAttributes(ctx, final, true); err != nil {
		r.warn(msgProtectFailed, err)
	}
	r.res.Path = final

	err := r.st.Close()
	r.st = nil
	if err != nil {
		r.log.WithError(err).Debug("close stager")
	}
	return nil
}

func (r *run) commit(context.Context) error {
	bs := make([]byte, sectorio.SectorSize)
	if err := r.ic.Volume.ReadSector(0, bs); err != nil {
		return fail(KindIO, "read boot sector", err)
	}
	if err := r.Codec.MakeBootSector(bs); err != nil {
		return fail(KindValidation, "build boot sector", err)
	}
	if err := r.ic.Volume.WriteSector(0, bs); err != nil {
		return fail(KindIO, "write boot sector", err)
	}
	return nil
}

func (r *run) finalize(context.Context) error {
	f := r.ic.File
	r.ic.File = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fail(KindIO, "sync "+r.ic.Device, err)
	}
	if err := f.Close(); err != nil {
		return fail(KindIO, "close "+r.ic.Device, err)
	}
	return nil
}
