package memmap

import (
	"fmt"
)

// FlashBank is a NOR flash window with sector-erase granularity. Banks are
// memory-backed by default; on unix hosts a backing file can be mapped in so
// flash contents persist across runs.
type FlashBank struct {
	Region     *Region
	SectorSize uint64

	unmap func() error
}

// AddFlash maps a flash bank at the given base. Size must be a whole number
// of sectors. A non-empty backingPath maps the file contents into the bank.
func (a *AddressSpace) AddFlash(name string, base, size, sectorSize uint64, backingPath string) (*FlashBank, error) {
	if sectorSize == 0 || size%sectorSize != 0 {
		return nil, fmt.Errorf("memmap: flash %q size %#x is not a multiple of sector size %#x",
			name, size, sectorSize)
	}

	var backing []byte
	var unmap func() error
	if backingPath != "" {
		var err error
		backing, unmap, err = mapFile(backingPath, size)
		if err != nil {
			return nil, fmt.Errorf("memmap: flash %q backing %q: %w", name, backingPath, err)
		}
	} else {
		backing = make([]byte, size)
		for i := range backing {
			backing[i] = 0xff // erased state
		}
	}

	region, err := a.AddBacked(name, base, backing)
	if err != nil {
		if unmap != nil {
			_ = unmap()
		}
		return nil, err
	}

	return &FlashBank{Region: region, SectorSize: sectorSize, unmap: unmap}, nil
}

// Sectors returns the number of erase sectors in the bank.
func (f *FlashBank) Sectors() int {
	return int(f.Region.Size / f.SectorSize)
}

// EraseSector resets one sector to the erased (all-ones) state.
func (f *FlashBank) EraseSector(idx int) error {
	if idx < 0 || idx >= f.Sectors() {
		return fmt.Errorf("memmap: flash %q sector %d out of range", f.Region.Name, idx)
	}
	sector := f.Region.Bytes()[uint64(idx)*f.SectorSize : uint64(idx+1)*f.SectorSize]
	for i := range sector {
		sector[i] = 0xff
	}
	return nil
}

// Close releases any file mapping behind the bank.
func (f *FlashBank) Close() error {
	if f.unmap != nil {
		err := f.unmap()
		f.unmap = nil
		return err
	}
	return nil
}
