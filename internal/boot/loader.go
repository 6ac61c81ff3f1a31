package boot

import (
	"errors"
	"fmt"

	"github.com/vexmachina/vex/internal/memmap"
)

const (
	kernelOffset    = 0x10000
	initrdOffset    = 0x00d00000
	dtbAlignment    = 0x8
	initrdAlignment = 0x1000
)

// Image holds the raw boot images. DTB is the externally supplied hardware
// description blob; the loader runs the descriptor's augmentation callback
// over it before placing it.
type Image struct {
	Kernel []byte
	Initrd []byte
	DTB    []byte
}

// Plan captures where the images landed and where execution starts.
type Plan struct {
	Entry       uint64
	KernelStart uint64
	InitrdStart uint64
	InitrdEnd   uint64
	DTBStart    uint64
}

// Load places the images into the RAM region per the descriptor layout:
// kernel at LoaderStart+0x10000, initrd at a fixed offset above it, device
// tree behind the initrd.
func (d *Descriptor) Load(ram *memmap.Region, img Image) (*Plan, error) {
	if ram == nil || ram.Kind != memmap.KindRAM {
		return nil, errors.New("boot: load requires a backed RAM region")
	}
	if len(img.Kernel) == 0 {
		return nil, errors.New("boot: kernel image is empty")
	}

	plan := &Plan{}

	kernelStart := d.LoaderStart + kernelOffset
	if err := writeRAM(ram, kernelStart, img.Kernel, "kernel"); err != nil {
		return nil, err
	}
	plan.KernelStart = kernelStart
	plan.Entry = kernelStart

	kernelEnd := kernelStart + uint64(len(img.Kernel))
	if len(img.Initrd) > 0 {
		initrdStart := d.LoaderStart + initrdOffset
		if initrdStart < kernelEnd {
			initrdStart = alignUp(kernelEnd, initrdAlignment)
		}
		if err := writeRAM(ram, initrdStart, img.Initrd, "initrd"); err != nil {
			return nil, err
		}
		plan.InitrdStart = initrdStart
		plan.InitrdEnd = initrdStart + uint64(len(img.Initrd))
	}

	if len(img.DTB) > 0 {
		blob := img.DTB
		if d.ModifyDTB != nil {
			modified, err := d.ModifyDTB(blob)
			if err != nil {
				return nil, fmt.Errorf("boot: augment device tree: %w", err)
			}
			blob = modified
		}
		dtbStart := alignUp(max64(kernelEnd, plan.InitrdEnd), dtbAlignment)
		if err := writeRAM(ram, dtbStart, blob, "device tree"); err != nil {
			return nil, err
		}
		plan.DTBStart = dtbStart
	}

	return plan, nil
}

func writeRAM(ram *memmap.Region, addr uint64, data []byte, what string) error {
	end := addr + uint64(len(data))
	if addr < ram.Base || end > ram.End() {
		return fmt.Errorf("boot: %s [%#x, %#x) outside RAM [%#x, %#x)",
			what, addr, end, ram.Base, ram.End())
	}
	copy(ram.Bytes()[addr-ram.Base:], data)
	return nil
}

func alignUp(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	mask := align - 1
	return (value + mask) &^ mask
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
