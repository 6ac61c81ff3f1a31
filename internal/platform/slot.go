package platform

// Slot is an abstract peripheral role on the motherboard. A variant's
// address map resolves each slot it supports to a physical address; slots a
// variant does not support are simply absent from its map.
type Slot int

const (
	SlotSysRegs Slot = iota
	SlotSP810
	SlotSerialPCI
	SlotAudio
	SlotMMCI
	SlotKMI0
	SlotKMI1
	SlotUART0
	SlotUART1
	SlotUART2
	SlotUART3
	SlotWatchdog
	SlotTimer01
	SlotTimer23
	SlotSerialDVI
	SlotRTC
	SlotCompactFlash
	SlotCLCD
	SlotNORFlash0
	SlotNORFlash1
	SlotNORFlashAlias
	SlotSRAM
	SlotVideoRAM
	SlotEthernet
	SlotUSB
	SlotDebugROM
	SlotVirtio

	numSlots
)

var slotNames = [numSlots]string{
	SlotSysRegs:       "sysregs",
	SlotSP810:         "sp810",
	SlotSerialPCI:     "serial-pci",
	SlotAudio:         "audio",
	SlotMMCI:          "mmci",
	SlotKMI0:          "kmi0",
	SlotKMI1:          "kmi1",
	SlotUART0:         "uart0",
	SlotUART1:         "uart1",
	SlotUART2:         "uart2",
	SlotUART3:         "uart3",
	SlotWatchdog:      "watchdog",
	SlotTimer01:       "timer01",
	SlotTimer23:       "timer23",
	SlotSerialDVI:     "serial-dvi",
	SlotRTC:           "rtc",
	SlotCompactFlash:  "compact-flash",
	SlotCLCD:          "clcd",
	SlotNORFlash0:     "nor-flash0",
	SlotNORFlash1:     "nor-flash1",
	SlotNORFlashAlias: "nor-flash-alias",
	SlotSRAM:          "sram",
	SlotVideoRAM:      "video-ram",
	SlotEthernet:      "ethernet",
	SlotUSB:           "usb",
	SlotDebugROM:      "debug-rom",
	SlotVirtio:        "virtio",
}

func (s Slot) String() string {
	if s < 0 || s >= numSlots {
		return "unknown"
	}
	return slotNames[s]
}

// AddressMap resolves logical slots to physical addresses. Absence of a slot
// is meaningful: zero is a valid address, so presence is carried by the map
// itself rather than a sentinel value.
type AddressMap map[Slot]uint64

// Resolve returns the physical address of a slot and whether the variant
// supports it.
func (m AddressMap) Resolve(s Slot) (uint64, bool) {
	addr, ok := m[s]
	return addr, ok
}

// Legacy motherboard map, used by the Cortex-A9 variant. Motherboard
// peripherals sit in chip select 7 at 0x10000000.
var legacyMap = AddressMap{
	SlotSysRegs:      0x10000000,
	SlotSP810:        0x10001000,
	SlotSerialPCI:    0x10002000,
	SlotAudio:        0x10004000,
	SlotMMCI:         0x10005000,
	SlotKMI0:         0x10006000,
	SlotKMI1:         0x10007000,
	SlotUART0:        0x10009000,
	SlotUART1:        0x1000a000,
	SlotUART2:        0x1000b000,
	SlotUART3:        0x1000c000,
	SlotWatchdog:     0x1000f000,
	SlotTimer01:      0x10011000,
	SlotTimer23:      0x10012000,
	SlotVirtio:       0x10013000,
	SlotSerialDVI:    0x10016000,
	SlotRTC:          0x10017000,
	SlotCompactFlash: 0x1001a000,
	SlotCLCD:         0x1001f000,
	SlotNORFlash0:    0x40000000,
	SlotNORFlash1:    0x44000000,
	SlotSRAM:         0x48000000,
	SlotVideoRAM:     0x4c000000,
	SlotEthernet:     0x4e000000,
	SlotUSB:          0x4f000000,
	// No NOR flash alias on the legacy map: address 0 carries the low RAM
	// window instead.
}

// Cortex-A Series motherboard map, used by the A15 variant. Peripherals sit
// in chip select 3 at 0x1c000000 and flash bank 0 is mirrored at address 0.
var aseriesMap = AddressMap{
	SlotNORFlashAlias: 0x00000000,
	SlotNORFlash0:     0x08000000,
	SlotNORFlash1:     0x0c000000,
	SlotSRAM:          0x14000000,
	SlotVideoRAM:      0x18000000,
	SlotEthernet:      0x1a000000,
	SlotUSB:           0x1b000000,
	SlotDebugROM:      0x1c000000,
	SlotSysRegs:       0x1c010000,
	SlotSP810:         0x1c020000,
	SlotSerialPCI:     0x1c030000,
	SlotAudio:         0x1c040000,
	SlotMMCI:          0x1c050000,
	SlotKMI0:          0x1c060000,
	SlotKMI1:          0x1c070000,
	SlotUART0:         0x1c090000,
	SlotUART1:         0x1c0a0000,
	SlotUART2:         0x1c0b0000,
	SlotUART3:         0x1c0c0000,
	SlotWatchdog:      0x1c0f0000,
	SlotTimer01:       0x1c110000,
	SlotTimer23:       0x1c120000,
	SlotVirtio:        0x1c130000,
	SlotSerialDVI:     0x1c160000,
	SlotRTC:           0x1c170000,
	SlotCompactFlash:  0x1c1a0000,
	SlotCLCD:          0x1c1f0000,
}
