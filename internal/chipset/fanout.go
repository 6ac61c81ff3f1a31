package chipset

import (
	"fmt"
	"sync"
)

// The board routes 64 global interrupt lines into the CPU cluster's private
// interrupt controller. Lines 0-31 are internal to the cluster and carry the
// per-core IRQ/FIQ bindings; 32-42 belong to the shared motherboard
// peripherals; 43-47 are reserved; 48-63 belong to daughterboard peripherals.
const (
	NumLines = 64

	internalEnd = 32
	sharedEnd   = 43
	reservedEnd = 48
)

// LineRange classifies a global interrupt number.
type LineRange int

const (
	RangeInternal LineRange = iota
	RangeShared
	RangeReserved
	RangeDaughterboard
)

// RangeOf returns the partition a global interrupt number belongs to.
func RangeOf(line int) LineRange {
	switch {
	case line < internalEnd:
		return RangeInternal
	case line < sharedEnd:
		return RangeShared
	case line < reservedEnd:
		return RangeReserved
	default:
		return RangeDaughterboard
	}
}

type lineBinding struct {
	owner string
	level bool
	sink  LineInterrupt // set for CPU bindings only
}

// Fanout is the fixed-width vector of global interrupt line endpoints.
// Peripheral wiring claims lines by global index; index assignments are
// stable for the lifetime of the board.
type Fanout struct {
	mu sync.Mutex

	sink  InterruptSink
	lines [NumLines]*lineBinding
}

// NewFanout builds the fan-out vector, forwarding peripheral assertions to
// the provided controller sink.
func NewFanout(sink InterruptSink) *Fanout {
	if sink == nil {
		sink = noopInterruptSink{}
	}
	return &Fanout{sink: sink}
}

// BindCore binds a core's IRQ and FIQ sinks at entries 2k and 2k+1. These
// entries live in the cluster-internal partition and are never visible to
// peripheral wiring.
func (f *Fanout) BindCore(core int, irq, fiq LineInterrupt) error {
	if core < 0 || 2*core+1 >= internalEnd {
		return fmt.Errorf("chipset: core index %d out of range", core)
	}
	if irq == nil || fiq == nil {
		return fmt.Errorf("chipset: core %d has nil interrupt sinks", core)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	irqEntry, fiqEntry := 2*core, 2*core+1
	if f.lines[irqEntry] != nil || f.lines[fiqEntry] != nil {
		return fmt.Errorf("chipset: core %d already bound", core)
	}
	f.lines[irqEntry] = &lineBinding{owner: fmt.Sprintf("cpu%d-irq", core), sink: irq}
	f.lines[fiqEntry] = &lineBinding{owner: fmt.Sprintf("cpu%d-fiq", core), sink: fiq}
	return nil
}

// Claim binds a peripheral to a global interrupt line and returns the handle
// it asserts. Only the shared and daughterboard partitions are claimable;
// claiming a line twice is a configuration error.
func (f *Fanout) Claim(line int, owner string) (LineInterrupt, error) {
	if line < 0 || line >= NumLines {
		return nil, fmt.Errorf("chipset: interrupt line %d out of range", line)
	}
	switch RangeOf(line) {
	case RangeInternal:
		return nil, fmt.Errorf("chipset: line %d is internal to the CPU cluster", line)
	case RangeReserved:
		return nil, fmt.Errorf("chipset: line %d is reserved", line)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing := f.lines[line]; existing != nil {
		return nil, fmt.Errorf("chipset: line %d already bound to %q", line, existing.owner)
	}
	binding := &lineBinding{owner: owner}
	f.lines[line] = binding
	return &lineHandle{owner: f, line: uint8(line), binding: binding}, nil
}

// Bound reports whether a global interrupt line has been bound.
func (f *Fanout) Bound(line int) bool {
	if line < 0 || line >= NumLines {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lines[line] != nil
}

// Owner returns the name recorded for a bound line.
func (f *Fanout) Owner(line int) string {
	if line < 0 || line >= NumLines {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.lines[line]; b != nil {
		return b.owner
	}
	return ""
}

// BoundCount returns the number of bound entries.
func (f *Fanout) BoundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, b := range f.lines {
		if b != nil {
			count++
		}
	}
	return count
}

type lineHandle struct {
	owner   *Fanout
	line    uint8
	binding *lineBinding
}

func (h *lineHandle) SetLevel(high bool) {
	h.owner.setLevel(h, high)
}

func (h *lineHandle) PulseInterrupt() {
	h.owner.sink.SetIRQ(h.line, true)
	h.owner.sink.SetIRQ(h.line, false)
}

func (f *Fanout) setLevel(h *lineHandle, high bool) {
	f.mu.Lock()
	changed := h.binding.level != high
	h.binding.level = high
	f.mu.Unlock()

	if changed {
		f.sink.SetIRQ(h.line, high)
	}
}
