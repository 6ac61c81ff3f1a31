package platform

import (
	"fmt"

	"github.com/vexmachina/vex/internal/boot"
	"github.com/vexmachina/vex/internal/chipset"
	"github.com/vexmachina/vex/internal/cluster"
	"github.com/vexmachina/vex/internal/memmap"
)

// Options are the boot parameters a caller supplies when composing a board.
type Options struct {
	Platform string
	RAMSize  uint64

	// CoreKind overrides the variant's default CPU kind when non-empty.
	CoreKind string
	// Cores defaults to 1.
	Cores int

	KernelPath string
	InitrdPath string
	Cmdline    string

	// Transports is the number of dynamic transport windows; defaults to 4,
	// capped by the interrupt lines available.
	Transports int

	// Flash0File / Flash1File optionally back the NOR flash banks with host
	// files.
	Flash0File string
	Flash1File string
}

func (o Options) withDefaults() Options {
	out := o
	if out.Cores == 0 {
		out.Cores = 1
	}
	if out.Transports == 0 {
		out.Transports = 4
	}
	return out
}

// Machine is a fully composed board topology, ready to hand to the guest
// loader. The composer retains no mutation rights after returning it.
type Machine struct {
	Variant *Variant
	Space   *memmap.AddressSpace
	Cluster *cluster.Cluster
	Fanout  *chipset.Fanout
	RAM     *memmap.Region
	Flash   [2]*memmap.FlashBank
	Boot    *boot.Descriptor
}

// Compose builds the complete topology for the named variant. Every error it
// returns is a configuration error: the pipeline is all-or-nothing and the
// caller should treat a failure as fatal.
func Compose(opts Options) (*Machine, error) {
	opts = opts.withDefaults()

	v, err := Lookup(opts.Platform)
	if err != nil {
		return nil, err
	}

	if opts.RAMSize == 0 {
		return nil, fmt.Errorf("%s: RAM size is zero", v.Name)
	}
	if opts.RAMSize > v.RAMCeiling {
		return nil, fmt.Errorf("%s: cannot model %d bytes of RAM (ceiling %d)",
			v.Name, opts.RAMSize, v.RAMCeiling)
	}
	if opts.Transports < 0 || opts.Transports > MaxTransports {
		return nil, fmt.Errorf("%s: transport count %d outside [0, %d]",
			v.Name, opts.Transports, MaxTransports)
	}

	space := memmap.New()

	cl, ram, err := v.Daughterboard.Init(v, space, opts.RAMSize, opts.CoreKind, opts.Cores)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.Name, err)
	}

	fanout := chipset.NewFanout(cl.Controller)
	if err := cl.BindFanout(fanout); err != nil {
		return nil, fmt.Errorf("%s: %w", v.Name, err)
	}

	m := &Machine{
		Variant: v,
		Space:   space,
		Cluster: cl,
		Fanout:  fanout,
		RAM:     ram,
	}

	if err := m.mapMotherboard(opts); err != nil {
		return nil, fmt.Errorf("%s: %w", v.Name, err)
	}

	smpLoader, smpBootReg, err := bootAddresses(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.Name, err)
	}

	m.Boot = boot.Assemble(boot.Params{
		RAMSize:         opts.RAMSize,
		KernelPath:      opts.KernelPath,
		InitrdPath:      opts.InitrdPath,
		Cmdline:         opts.Cmdline,
		Cores:           len(cl.Cores),
		BoardID:         BoardID,
		SysID:           SysID,
		LoaderStart:     v.LoaderStart,
		SMPLoaderStart:  smpLoader,
		SMPBootRegAddr:  smpBootReg,
		GICCPUInterface: v.GICCPUInterface,
		ModifyDTB: func(blob []byte) ([]byte, error) {
			return AugmentDTB(blob, v.Map, opts.Transports)
		},
	})

	return m, nil
}

// The SMP bootstrap addresses come from slots every variant is expected to
// map; a map without them cannot produce a bootable descriptor. Indexing the
// map directly would read an absent slot as address 0.
func bootAddresses(v *Variant) (smpLoader, smpBootReg uint64, err error) {
	sram, ok := v.Map.Resolve(SlotSRAM)
	if !ok {
		return 0, 0, fmt.Errorf("variant map omits %s", SlotSRAM)
	}
	sysregs, ok := v.Map.Resolve(SlotSysRegs)
	if !ok {
		return 0, 0, fmt.Errorf("variant map omits %s", SlotSysRegs)
	}
	return sram, sysregs + smpBootRegOffset, nil
}

// Fixed sizes of the motherboard device windows. The wiring is identical for
// every variant; only the addresses differ between maps.
var deviceSlots = []struct {
	slot Slot
	size uint64
}{
	{SlotSysRegs, 0x1000},
	{SlotSP810, 0x1000},
	{SlotSerialPCI, 0x1000},
	{SlotAudio, 0x1000},
	{SlotMMCI, 0x1000},
	{SlotKMI0, 0x1000},
	{SlotKMI1, 0x1000},
	{SlotUART0, 0x1000},
	{SlotUART1, 0x1000},
	{SlotUART2, 0x1000},
	{SlotUART3, 0x1000},
	{SlotWatchdog, 0x1000},
	{SlotTimer01, 0x1000},
	{SlotTimer23, 0x1000},
	{SlotSerialDVI, 0x1000},
	{SlotRTC, 0x1000},
	{SlotCompactFlash, 0x1000},
	{SlotCLCD, 0x1000},
	{SlotEthernet, 0x10000},
	{SlotUSB, 0x10000},
	{SlotDebugROM, 0x10000},
}

func (m *Machine) mapMotherboard(opts Options) error {
	v := m.Variant

	// Peripheral windows for every slot the variant supports. Absent slots
	// are skipped entirely: no region, no binding.
	for _, d := range deviceSlots {
		base, ok := v.Map.Resolve(d.slot)
		if !ok {
			continue
		}
		if _, err := m.Space.AddDevice(d.slot.String(), base, d.size); err != nil {
			return err
		}
	}

	if opts.Transports > 0 {
		base, ok := v.Map.Resolve(SlotVirtio)
		if ok {
			size := uint64(opts.Transports) * TransportWindow
			if _, err := m.Space.AddDevice(SlotVirtio.String(), base, size); err != nil {
				return err
			}
		}
	}

	// Two NOR flash banks, optionally file-backed. A failure to register a
	// bank is a configuration error: the board cannot boot without flash.
	flashFiles := [2]string{opts.Flash0File, opts.Flash1File}
	flashSlots := [2]Slot{SlotNORFlash0, SlotNORFlash1}
	for i, slot := range flashSlots {
		base, ok := v.Map.Resolve(slot)
		if !ok {
			return fmt.Errorf("variant map omits %s", slot)
		}
		bank, err := m.Space.AddFlash(slot.String(), base, FlashBankSize, FlashSectorSize, flashFiles[i])
		if err != nil {
			return err
		}
		m.Flash[i] = bank
	}

	// Mirror flash bank 0 where the map defines an alias window.
	if aliasBase, ok := v.Map.Resolve(SlotNORFlashAlias); ok {
		if _, err := m.Space.AddAlias(SlotNORFlashAlias.String(), aliasBase,
			m.Flash[0].Region, 0, FlashBankSize); err != nil {
			return err
		}
	}

	if base, ok := v.Map.Resolve(SlotSRAM); ok {
		if _, err := m.Space.AddRAM(SlotSRAM.String(), base, SRAMSize); err != nil {
			return err
		}
	}
	if base, ok := v.Map.Resolve(SlotVideoRAM); ok {
		if _, err := m.Space.AddRAM(SlotVideoRAM.String(), base, VideoRAMSize); err != nil {
			return err
		}
	}

	return nil
}

// Close releases host resources held by the machine (flash file mappings).
func (m *Machine) Close() error {
	var first error
	for _, bank := range m.Flash {
		if bank == nil {
			continue
		}
		if err := bank.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
