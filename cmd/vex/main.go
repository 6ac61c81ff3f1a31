// Command vex composes a virtual board topology for a named platform variant
// and optionally stages boot images into it.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/vexmachina/vex/internal/boot"
	"github.com/vexmachina/vex/internal/config"
	"github.com/vexmachina/vex/internal/memmap"
	"github.com/vexmachina/vex/internal/platform"
)

func run() error {
	configPath := flag.String("config", "", "YAML machine definition file")
	platformName := flag.String("platform", "", "platform variant name")
	ramMB := flag.Uint64("ram", 512, "guest RAM size in MB")
	cpus := flag.Int("cpus", 1, "number of CPU cores (1-4)")
	cpuKind := flag.String("cpu", "", "CPU kind override (defaults to the variant's core)")
	kernelPath := flag.String("kernel", "", "kernel image to stage into RAM")
	initrdPath := flag.String("initrd", "", "initial ramdisk to stage into RAM")
	cmdline := flag.String("append", "", "kernel command line")
	dtbPath := flag.String("dtb", "", "device tree blob to augment and stage")
	dtbOut := flag.String("dtb-out", "", "write the augmented device tree to this file")
	transports := flag.Int("transports", 4, "number of dynamic transport windows (0-8)")
	flash0 := flag.String("flash0", "", "backing file for NOR flash bank 0")
	flash1 := flag.String("flash1", "", "backing file for NOR flash bank 1")
	list := flag.Bool("list", false, "list registered platform variants")
	flag.Parse()

	if *list {
		names := platform.Names()
		sort.Strings(names)
		for _, name := range names {
			v, _ := platform.Lookup(name)
			fmt.Printf("%-12s %s\n", name, v.Description)
		}
		return nil
	}

	opts := platform.Options{
		Platform:   *platformName,
		RAMSize:    *ramMB << 20,
		CoreKind:   *cpuKind,
		Cores:      *cpus,
		KernelPath: *kernelPath,
		InitrdPath: *initrdPath,
		Cmdline:    *cmdline,
		Transports: *transports,
		Flash0File: *flash0,
		Flash1File: *flash1,
	}

	if *configPath != "" {
		mc, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		opts = optionsFromConfig(mc, opts)
	}

	machine, err := platform.Compose(opts)
	if err != nil {
		return err
	}
	defer machine.Close()

	printTopology(machine)

	if opts.KernelPath != "" {
		plan, err := stageImages(machine, opts, *dtbPath)
		if err != nil {
			return err
		}
		fmt.Printf("\nboot plan:\n")
		fmt.Printf("  entry   %#010x\n", plan.Entry)
		if plan.InitrdEnd > plan.InitrdStart {
			fmt.Printf("  initrd  [%#x, %#x)\n", plan.InitrdStart, plan.InitrdEnd)
		}
		if plan.DTBStart != 0 {
			fmt.Printf("  dtb     %#010x\n", plan.DTBStart)
		}
	} else if *dtbPath != "" && *dtbOut != "" {
		blob, err := os.ReadFile(*dtbPath)
		if err != nil {
			return err
		}
		augmented, err := machine.Boot.ModifyDTB(blob)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*dtbOut, augmented, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", *dtbOut, len(augmented))
	}

	return nil
}

// Flags set on the command line win over the machine file for the fields
// both can carry.
func optionsFromConfig(mc *config.Machine, flagOpts platform.Options) platform.Options {
	opts := platform.Options{
		Platform:   mc.Platform,
		RAMSize:    mc.MemoryMB << 20,
		CoreKind:   mc.CPUKind,
		Cores:      mc.CPUs,
		KernelPath: mc.Kernel,
		InitrdPath: mc.Initrd,
		Cmdline:    mc.Cmdline,
		Transports: mc.Transports,
	}
	if len(mc.Flash) > 0 {
		opts.Flash0File = mc.Flash[0]
	}
	if len(mc.Flash) > 1 {
		opts.Flash1File = mc.Flash[1]
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["platform"] {
		opts.Platform = flagOpts.Platform
	}
	if set["ram"] {
		opts.RAMSize = flagOpts.RAMSize
	}
	if set["cpus"] {
		opts.Cores = flagOpts.Cores
	}
	if set["cpu"] {
		opts.CoreKind = flagOpts.CoreKind
	}
	if set["kernel"] {
		opts.KernelPath = flagOpts.KernelPath
	}
	if set["initrd"] {
		opts.InitrdPath = flagOpts.InitrdPath
	}
	if set["append"] {
		opts.Cmdline = flagOpts.Cmdline
	}
	if set["transports"] {
		opts.Transports = flagOpts.Transports
	}
	if set["flash0"] {
		opts.Flash0File = flagOpts.Flash0File
	}
	if set["flash1"] {
		opts.Flash1File = flagOpts.Flash1File
	}
	return opts
}

func stageImages(machine *platform.Machine, opts platform.Options, dtbPath string) (*boot.Plan, error) {
	img := boot.Image{}

	var err error
	if img.Kernel, err = readImage(opts.KernelPath); err != nil {
		return nil, err
	}
	if opts.InitrdPath != "" {
		if img.Initrd, err = readImage(opts.InitrdPath); err != nil {
			return nil, err
		}
	}
	if dtbPath != "" {
		if img.DTB, err = readImage(dtbPath); err != nil {
			return nil, err
		}
	}

	return machine.Boot.Load(machine.RAM, img)
}

// readImage reads a boot image, with a progress bar when attached to a
// terminal (images can be hundreds of megabytes).
func readImage(path string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return os.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	bar := progressbar.DefaultBytes(info.Size(), "reading "+filepath.Base(path))
	var buf bytes.Buffer
	buf.Grow(int(info.Size()))
	if _, err := io.Copy(io.MultiWriter(&buf, bar), f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func printTopology(m *platform.Machine) {
	fmt.Printf("platform %s (%s, %d cores)\n", m.Variant.Name, m.Cluster.Kind, len(m.Cluster.Cores))
	fmt.Printf("  board id %#x, sys id %#x, loader start %#x, gic cpu interface %#x\n",
		m.Boot.BoardID, m.Boot.SysID, m.Boot.LoaderStart, m.Boot.GICCPUInterface)

	fmt.Printf("\naddress space:\n")
	for _, r := range m.Space.Regions() {
		kind := "device"
		switch r.Kind {
		case memmap.KindRAM:
			kind = "ram"
		case memmap.KindAlias:
			kind = "alias"
		}
		fmt.Printf("  %#010x-%#010x %-6s %s\n", r.Base, r.End(), kind, r.Name)
	}

	fmt.Printf("\ninterrupts: %d of %d lines bound\n", m.Fanout.BoundCount(), 64)
}

func main() {
	if err := run(); err != nil {
		slog.Error("vex", "err", err)
		os.Exit(1)
	}
}
