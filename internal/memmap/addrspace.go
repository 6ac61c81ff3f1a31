// Package memmap composes the physical address space of a board: backed RAM
// regions, unbacked device windows, and alias views over existing backing.
package memmap

import (
	"fmt"
	"sort"
)

// RegionKind distinguishes how a region is backed.
type RegionKind int

const (
	// KindRAM regions own their backing storage.
	KindRAM RegionKind = iota
	// KindDevice regions reserve an address window with no backing; accesses
	// belong to a device model.
	KindDevice
	// KindAlias regions are a second view over another region's backing.
	KindAlias
)

// Region is one window in the physical address space.
type Region struct {
	Name string
	Base uint64
	Size uint64
	Kind RegionKind

	backing []byte
	target  *Region
	offset  uint64
}

// End returns the first address after the region.
func (r *Region) End() uint64 { return r.Base + r.Size }

// Bytes returns the backing storage visible through the region, or nil for
// device windows.
func (r *Region) Bytes() []byte {
	switch r.Kind {
	case KindRAM:
		return r.backing
	case KindAlias:
		return r.target.backing[r.offset : r.offset+r.Size]
	default:
		return nil
	}
}

// AddressSpace is an ordered collection of non-overlapping regions. Aliases
// overlap their target's backing, never its addresses.
type AddressSpace struct {
	regions []*Region
}

// New returns an empty address space.
func New() *AddressSpace {
	return &AddressSpace{}
}

// AddRAM maps a fresh zero-filled RAM region.
func (a *AddressSpace) AddRAM(name string, base, size uint64) (*Region, error) {
	return a.addBacked(name, base, make([]byte, size))
}

// AddBacked maps a RAM-kind region over caller-provided storage (e.g. a
// file-backed flash mapping).
func (a *AddressSpace) AddBacked(name string, base uint64, backing []byte) (*Region, error) {
	return a.addBacked(name, base, backing)
}

func (a *AddressSpace) addBacked(name string, base uint64, backing []byte) (*Region, error) {
	r := &Region{Name: name, Base: base, Size: uint64(len(backing)), Kind: KindRAM, backing: backing}
	if err := a.insert(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddDevice reserves an unbacked device window.
func (a *AddressSpace) AddDevice(name string, base, size uint64) (*Region, error) {
	r := &Region{Name: name, Base: base, Size: size, Kind: KindDevice}
	if err := a.insert(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddAlias maps a second view over [offset, offset+size) of target's backing
// at the given base. Writes through either view are visible through the other.
func (a *AddressSpace) AddAlias(name string, base uint64, target *Region, offset, size uint64) (*Region, error) {
	if target == nil || target.Kind != KindRAM {
		return nil, fmt.Errorf("memmap: alias %q requires a backed target region", name)
	}
	if offset+size < offset || offset+size > target.Size {
		return nil, fmt.Errorf("memmap: alias %q window [%#x, %#x) exceeds target %q size %#x",
			name, offset, offset+size, target.Name, target.Size)
	}
	r := &Region{Name: name, Base: base, Size: size, Kind: KindAlias, target: target, offset: offset}
	if err := a.insert(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (a *AddressSpace) insert(r *Region) error {
	if r.Size == 0 {
		return fmt.Errorf("memmap: cannot map zero-size region %q", r.Name)
	}
	if r.Base+r.Size < r.Base {
		return fmt.Errorf("memmap: region %q at %#x size %#x overflows", r.Name, r.Base, r.Size)
	}
	for _, existing := range a.regions {
		if regionsOverlap(r.Base, r.Size, existing.Base, existing.Size) {
			return fmt.Errorf("memmap: region %q [%#x-%#x) overlaps %q [%#x-%#x)",
				r.Name, r.Base, r.End(), existing.Name, existing.Base, existing.End())
		}
	}
	a.regions = append(a.regions, r)
	return nil
}

// Regions returns the mapped regions sorted by base address.
func (a *AddressSpace) Regions() []*Region {
	out := make([]*Region, len(a.regions))
	copy(out, a.regions)
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

// Find returns the region with the given name, or nil.
func (a *AddressSpace) Find(name string) *Region {
	for _, r := range a.regions {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Resolve returns the region containing the address, or nil.
func (a *AddressSpace) Resolve(addr uint64) *Region {
	for _, r := range a.regions {
		if addr >= r.Base && addr < r.End() {
			return r
		}
	}
	return nil
}

// ReadPhys copies bytes from backed storage at a physical address. The whole
// access must fall inside a single backed region.
func (a *AddressSpace) ReadPhys(addr uint64, p []byte) error {
	buf, err := a.slice(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(p, buf)
	return nil
}

// WritePhys copies bytes into backed storage at a physical address.
func (a *AddressSpace) WritePhys(addr uint64, p []byte) error {
	buf, err := a.slice(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(buf, p)
	return nil
}

func (a *AddressSpace) slice(addr, size uint64) ([]byte, error) {
	r := a.Resolve(addr)
	if r == nil {
		return nil, fmt.Errorf("memmap: no region at address %#x", addr)
	}
	if addr+size > r.End() {
		return nil, fmt.Errorf("memmap: access [%#x, %#x) crosses region %q end %#x",
			addr, addr+size, r.Name, r.End())
	}
	backing := r.Bytes()
	if backing == nil {
		return nil, fmt.Errorf("memmap: region %q has no backing storage", r.Name)
	}
	off := addr - r.Base
	return backing[off : off+size], nil
}

func regionsOverlap(baseA, sizeA, baseB, sizeB uint64) bool {
	endA := baseA + sizeA
	endB := baseB + sizeB
	return baseA < endB && baseB < endA
}
