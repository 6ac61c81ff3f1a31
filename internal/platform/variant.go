// Package platform composes virtual board topologies: it resolves a named
// variant, builds the CPU cluster, lays out the physical address space,
// allocates the interrupt fan-out, and assembles the boot descriptor the
// guest loader consumes.
package platform

import (
	"errors"
	"fmt"

	"github.com/vexmachina/vex/internal/cluster"
	"github.com/vexmachina/vex/internal/memmap"
)

// Board-wide constants shared by every variant.
const (
	BoardID = 0x8e0
	SysID   = 0x1190f500

	FlashBankSize   = 64 * 1024 * 1024
	FlashSectorSize = 256 * 1024
	SRAMSize        = 32 * 1024 * 1024
	VideoRAMSize    = 8 * 1024 * 1024

	// The legacy variant exposes at most this much RAM through the low
	// window at address 0.
	lowRAMWindowCap = 64 * 1024 * 1024

	// SMP secondaries spin on a register this far into the sysregs block.
	smpBootRegOffset = 0x30

	// Each dynamic transport occupies one 0x200 window; eight fit between
	// the virtio slot and the next peripheral.
	TransportWindow = 0x200
	MaxTransports   = 8

	transportIRQBase = 40
)

// ErrUnknownPlatform is returned when a variant name is not registered.
var ErrUnknownPlatform = errors.New("unknown platform")

// Variant describes one registered board: core type, memory map profile,
// capability limits and board-identification constants. Variants are
// registered at init and never mutated.
type Variant struct {
	Name        string
	Description string

	DefaultCore cluster.CoreKind
	Map         AddressMap

	LoaderStart     uint64
	GICCPUInterface uint64
	ProcID          uint32
	RAMCeiling      uint64

	// Voltages holds the daughterboard voltage sensor values in microvolts,
	// Clocks the oscillator reset values in Hz; both are exposed through the
	// system registers block.
	Voltages []uint32
	Clocks   []uint32

	Daughterboard Daughterboard
}

// Daughterboard builds the variant-specific half of the board: the CPU
// cluster, the RAM layout, and any daughterboard-private regions. It is a
// closed set: each registered variant supplies one implementation.
type Daughterboard interface {
	Init(v *Variant, space *memmap.AddressSpace, ramSize uint64, coreOverride string, cores int) (*cluster.Cluster, *memmap.Region, error)
}

var registry = map[string]*Variant{}

func register(v *Variant) {
	if _, exists := registry[v.Name]; exists {
		panic(fmt.Sprintf("platform: variant %q registered twice", v.Name))
	}
	registry[v.Name] = v
}

// Lookup returns the named variant.
func Lookup(name string) (*Variant, error) {
	v, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPlatform, name)
	}
	return v, nil
}

// Names returns the registered variant names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	register(&Variant{
		Name:            "legacy-A9",
		Description:     "Versatile-style board, Cortex-A9 cluster, legacy memory map",
		DefaultCore:     cluster.CortexA9,
		Map:             legacyMap,
		LoaderStart:     0x60000000,
		GICCPUInterface: 0x1e000100,
		ProcID:          0x0c000191,
		RAMCeiling:      1 << 30, // the legacy map permits at most 1GB
		Voltages: []uint32{
			1000000, // VD10: SoC internal logic
			1000000, // VD10_S2: L2 cache and RAM
			1000000, // VD10_S3: cores, SCU
			1800000, // VCC1V8: DDR2 SDRAM
			900000,  // DDR2VTT: termination
			3300000, // VCC3V3: misc external logic
		},
		Clocks: []uint32{
			45000000, // AMBA AXI ACLK
			23750000, // display clock
			66670000, // test chip reference
		},
		Daughterboard: a9Daughterboard{},
	})

	register(&Variant{
		Name:            "modern-A15",
		Description:     "Versatile-style board, Cortex-A15 cluster, A-Series memory map",
		DefaultCore:     cluster.CortexA15,
		Map:             aseriesMap,
		LoaderStart:     0x80000000,
		GICCPUInterface: 0x2c002000,
		ProcID:          0x14000237,
		RAMCeiling:      30 << 30,
		Voltages: []uint32{
			900000, // Vcore
		},
		Clocks: []uint32{
			60000000, // OSCCLK0: CPU_CLK reference
			0,        // OSCCLK1: reserved
			0,        // OSCCLK2: reserved
			0,        // OSCCLK3: reserved
			40000000, // OSCCLK4: external AXI master
			23750000, // OSCCLK5: display PLL reference
			50000000, // OSCCLK6: static memory controller
			60000000, // OSCCLK7: SYSCLK reference
			40000000, // OSCCLK8: DDR2 PLL reference
		},
		Daughterboard: a15Daughterboard{},
	})
}

// a9Daughterboard models the legacy Cortex-A9 daughterboard: RAM at
// 0x60000000 with a low alias at 0, MPCore private region at 0x1e000000.
type a9Daughterboard struct{}

func (a9Daughterboard) Init(v *Variant, space *memmap.AddressSpace, ramSize uint64, coreOverride string, cores int) (*cluster.Cluster, *memmap.Region, error) {
	cl, err := cluster.Build(v.DefaultCore, coreOverride, cores, 0x1e000000, v.GICCPUInterface)
	if err != nil {
		return nil, nil, err
	}

	ram, err := space.AddRAM("highmem", 0x60000000, ramSize)
	if err != nil {
		return nil, nil, err
	}

	// The bottom of the address space should in theory be remappable to
	// various things including ROM or RAM; the RAM view is always mapped.
	lowSize := ramSize
	if lowSize > lowRAMWindowCap {
		lowSize = lowRAMWindowCap
	}
	if _, err := space.AddAlias("lowmem", 0, ram, 0, lowSize); err != nil {
		return nil, nil, err
	}

	// MPCore private region (SCU, GIC) and L2 cache controller.
	if _, err := space.AddDevice("a9mpcore", 0x1e000000, 0x2000); err != nil {
		return nil, nil, err
	}
	if _, err := space.AddDevice("l2cc", 0x1e00a000, 0x1000); err != nil {
		return nil, nil, err
	}

	// Daughterboard peripherals at 0x10020000 upwards: display controller,
	// timer, protection controllers.
	daughterboard := []struct {
		name string
		base uint64
		size uint64
	}{
		{"db-clcd", 0x10020000, 0x1000},
		{"db-timer", 0x100e4000, 0x1000},
		{"db-tzpc", 0x100e6000, 0x1000},
		{"db-tzasc", 0x100ec000, 0x1000},
	}
	for _, d := range daughterboard {
		if _, err := space.AddDevice(d.name, d.base, d.size); err != nil {
			return nil, nil, err
		}
	}

	return cl, ram, nil
}

// a15Daughterboard models the Cortex-A15 daughterboard: RAM at 0x80000000
// with no low alias, MPCore private region at 0x2c000000, and 64KB of
// daughterboard SRAM.
type a15Daughterboard struct{}

func (a15Daughterboard) Init(v *Variant, space *memmap.AddressSpace, ramSize uint64, coreOverride string, cores int) (*cluster.Cluster, *memmap.Region, error) {
	cl, err := cluster.Build(v.DefaultCore, coreOverride, cores, 0x2c000000, v.GICCPUInterface)
	if err != nil {
		return nil, nil, err
	}

	ram, err := space.AddRAM("highmem", 0x80000000, ramSize)
	if err != nil {
		return nil, nil, err
	}

	if _, err := space.AddDevice("a15mpcore", 0x2c000000, 0x8000); err != nil {
		return nil, nil, err
	}

	if _, err := space.AddRAM("a15sram", 0x2e000000, 0x10000); err != nil {
		return nil, nil, err
	}

	return cl, ram, nil
}
