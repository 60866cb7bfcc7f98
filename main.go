// syslinux installs the SYSLINUX boot loader on a FAT filesystem.
//
//	syslinux [-sfr][-d directory][-o offset] device
//
// The loader file is copied onto the volume, patched with the location of
// its own sectors and made bootable by replacing the volume boot sector
// code. The filesystem parameters in the boot sector are kept.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mapcollab/syslinux/bootsect"
	"github.com/mapcollab/syslinux/config"
	"github.com/mapcollab/syslinux/install"
	"github.com/mapcollab/syslinux/sectorview"
	"github.com/mapcollab/syslinux/stager"
)

const usageLine = "Usage: syslinux [-sfr][-d directory][-o offset] device"

// usageError marks command line mistakes; they print the usage line.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// offsetValue parses decimal, 0x hex and 0 octal byte offsets.
type offsetValue struct{ v *int64 }

var _ pflag.Value = offsetValue{}

func (o offsetValue) String() string {
	if o.v == nil {
		return "0"
	}
	return strconv.FormatInt(*o.v, 10)
}

func (o offsetValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q", s)
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("offset %q out of range", s)
	}
	*o.v = int64(n)
	return nil
}

func (o offsetValue) Type() string { return "offset" }

type cliFlags struct {
	opts       install.Options
	loader     string
	bootSector string
	stager     string
	noVerify   bool
	visual     bool
	verbose    int
}

func newRootCommand(log *logrus.Logger) *cobra.Command {
	var f cliFlags
	root := &cobra.Command{
		Use:   "syslinux [-sfr][-d directory][-o offset] device",
		Short: "Install the SYSLINUX boot loader on a FAT filesystem",
		Long: "Copy ldlinux.sys onto the FAT filesystem on device, patch it with the\n" +
			"location of its sectors and install the SYSLINUX boot sector code.",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError{fmt.Errorf("expected one device, got %d arguments", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setVerbosity(log, f.verbose)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("loader") {
				f.loader = cfg.ImagePath()
			}
			if !flags.Changed("boot-sector") {
				f.bootSector = cfg.BootSectorPath()
			}
			if !flags.Changed("stager") {
				f.stager = cfg.StagerName()
			}
			f.opts.Verify = cfg.VerifyWrites() && !f.noVerify
			f.opts.Device = args[0]
			return installLoader(cmd.Context(), log, cfg, f)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	fl := root.Flags()
	fl.SortFlags = false
	fl.BoolVarP(&f.opts.Stupid, "stupid", "s", false, "transfer one sector per BIOS call")
	fl.BoolVarP(&f.opts.Force, "force", "f", false, "allow devices that are not block devices or regular files")
	fl.BoolVarP(&f.opts.RAID, "raid", "r", false, "on boot failure, fall through to the next BIOS boot device")
	fl.StringVarP(&f.opts.Directory, "directory", "d", "", "directory that will hold ldlinux.sys")
	fl.VarP(offsetValue{&f.opts.Offset}, "offset", "o", "byte offset of the filesystem on the device")
	fl.StringVar(&f.loader, "loader", config.DefaultImage, "loader image")
	fl.StringVar(&f.bootSector, "boot-sector", config.DefaultBootSector, "boot sector template")
	fl.StringVar(&f.stager, "stager", config.DefaultStager, "how the loader file is written: mtools|native")
	fl.StringVar(&f.opts.Once, "once", "", "boot this command once on the next boot")
	fl.BoolVar(&f.noVerify, "no-verify", false, "skip reading back the rewritten sectors")
	fl.BoolVar(&f.visual, "visual", false, "show the sector map while installing")
	fl.CountVarP(&f.verbose, "verbose", "v", "more output, repeat for debug")
	return root
}

func newStagerFunc(name string, cfg config.Config, log logrus.FieldLogger) (func(*install.Context) (stager.Stager, error), error) {
	switch name {
	case "mtools":
		return func(ic *install.Context) (stager.Stager, error) {
			m, err := stager.NewMtools(stager.MtoolsConfig{
				DevicePath: ic.ProcPath(),
				Offset:     ic.Offset,
				TempDir:    config.TempDir(),
				BinDir:     cfg.MtoolsBinDir(),
				Log:        log,
			})
			if err != nil {
				return nil, err
			}
			return m, nil
		}, nil
	case "native":
		return func(ic *install.Context) (stager.Stager, error) {
			if ic.Size <= 0 {
				return nil, fmt.Errorf("%s: size unknown, the native stager cannot be used", ic.Device)
			}
			return stager.NewNative(ic.File, ic.Offset, ic.Size, log), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown stager %q (want mtools or native)", name)
}

// installLoader performs one installation with resolved flags.
func installLoader(ctx context.Context, log *logrus.Logger, cfg config.Config, f cliFlags) error {
	dev := f.opts.Device
	if dir, ok := mountPoint(dev); ok {
		log.Warnf("%s is mounted at %s; installing anyway", dev, dir)
	}

	loader, err := bootsect.LoadFiles(f.loader, f.bootSector)
	if err != nil {
		return err
	}
	newStager, err := newStagerFunc(f.stager, cfg, log)
	if err != nil {
		return err
	}
	in := &install.Installer{
		Options:   f.opts,
		Codec:     loader,
		NewStager: newStager,
		Log:       log.WithField("device", dev),
	}

	if f.visual {
		view, err := sectorview.New("SYSLINUX  " + dev)
		if err != nil {
			return fmt.Errorf("start sector view: %w", err)
		}
		var buf bytes.Buffer
		out := log.Out
		log.SetOutput(&buf)
		defer func() {
			view.Close()
			log.SetOutput(out)
			out.Write(buf.Bytes())
		}()
		in.Progress = view
	}

	res, err := in.Run(ctx)
	if err != nil {
		return err
	}
	log.Infof("installed %s on %s: %d sectors, %d rewritten, blake3 %x",
		res.Path, dev, len(res.SectorMap), res.PatchSectors, res.Digest[:8])
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	log := newLogger(stderr)
	root := newRootCommand(log)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}
	var uerr usageError
	if errors.As(err, &uerr) {
		log.Debug(uerr.Error())
		fmt.Fprintln(stderr, usageLine)
		return 1
	}
	log.Error(err.Error())
	return 1
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
