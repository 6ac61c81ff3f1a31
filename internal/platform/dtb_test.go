package platform

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/vexmachina/vex/internal/fdt"
)

func testBlob(t *testing.T, withController bool, acells uint32) []byte {
	t.Helper()
	return fdt.Build(testRoot(withController, acells))
}

func testRoot(withController bool, acells uint32) *fdt.Node {
	root := &fdt.Node{}
	root.AddU32("#address-cells", acells)
	root.AddU32("#size-cells", 1)
	root.AddString("compatible", "test,board")

	if withController {
		intc := root.AddChild("interrupt-controller@1e001000")
		intc.AddString("compatible", "arm,cortex-a9-gic")
		intc.AddProperty("interrupt-controller", nil)
		intc.AddU32("phandle", 5)
	}

	mem := root.AddChild("memory@60000000")
	mem.AddString("device_type", "memory")

	return root
}

type transport struct {
	addr uint64
	size uint64
	irq  uint32
}

func decodeTransports(t *testing.T, blob []byte, acells uint32) []transport {
	t.Helper()

	tree, err := fdt.Parse(blob)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	var out []transport
	for _, child := range tree.Root.Children {
		if !strings.HasPrefix(child.Name, "virtio_mmio@") {
			continue
		}
		if !child.HasCompatible("virtio,mmio") {
			t.Fatalf("node %s lacks the transport compatible string", child.Name)
		}

		reg, ok := child.Property("reg")
		if !ok {
			t.Fatalf("node %s has no reg property", child.Name)
		}
		var tr transport
		switch acells {
		case 1:
			tr.addr = uint64(binary.BigEndian.Uint32(reg))
			tr.size = uint64(binary.BigEndian.Uint32(reg[4:]))
		case 2:
			tr.addr = binary.BigEndian.Uint64(reg)
			tr.size = uint64(binary.BigEndian.Uint32(reg[8:]))
		default:
			t.Fatalf("unhandled acells %d", acells)
		}

		parent, ok := child.U32("interrupt-parent")
		if !ok || parent != 5 {
			t.Fatalf("node %s interrupt-parent = %d (%v), want 5", child.Name, parent, ok)
		}
		ints, ok := child.Property("interrupts")
		if !ok || len(ints) != 12 {
			t.Fatalf("node %s interrupts property malformed", child.Name)
		}
		if kind := binary.BigEndian.Uint32(ints); kind != 0 {
			t.Fatalf("node %s interrupt type = %d, want 0 (SPI)", child.Name, kind)
		}
		tr.irq = binary.BigEndian.Uint32(ints[4:])
		if trigger := binary.BigEndian.Uint32(ints[8:]); trigger != 1 {
			t.Fatalf("node %s trigger = %d, want 1 (rising edge)", child.Name, trigger)
		}

		out = append(out, tr)
	}
	return out
}

func TestAugmentAddsAscendingTransportNodes(t *testing.T) {
	blob := testBlob(t, true, 2)

	out, err := AugmentDTB(blob, legacyMap, 4)
	if err != nil {
		t.Fatalf("AugmentDTB returned error: %v", err)
	}

	transports := decodeTransports(t, out, 2)
	if len(transports) != 4 {
		t.Fatalf("transport nodes = %d, want 4", len(transports))
	}

	base := legacyMap[SlotVirtio]
	for i, tr := range transports {
		wantAddr := base + uint64(i)*TransportWindow
		if tr.addr != wantAddr {
			t.Fatalf("transport %d at %#x, want %#x (ascending order)", i, tr.addr, wantAddr)
		}
		if tr.size != TransportWindow {
			t.Fatalf("transport %d size = %#x, want %#x", i, tr.size, uint64(TransportWindow))
		}
		if want := uint32(transportIRQBase + i); tr.irq != want {
			t.Fatalf("transport %d irq = %d, want %d", i, tr.irq, want)
		}
	}
}

func TestAugmentSingleCellAddresses(t *testing.T) {
	blob := testBlob(t, true, 1)

	out, err := AugmentDTB(blob, aseriesMap, 2)
	if err != nil {
		t.Fatalf("AugmentDTB returned error: %v", err)
	}
	transports := decodeTransports(t, out, 1)
	if len(transports) != 2 {
		t.Fatalf("transport nodes = %d, want 2", len(transports))
	}
	if transports[0].addr != aseriesMap[SlotVirtio] {
		t.Fatalf("transport 0 at %#x, want %#x", transports[0].addr, aseriesMap[SlotVirtio])
	}
}

func TestAugmentWithoutControllerLeavesBlobUnchanged(t *testing.T) {
	// Scenario: no matching controller node. Augmentation warns, emits no
	// transport nodes, and does not fail.
	blob := testBlob(t, false, 2)

	out, err := AugmentDTB(blob, legacyMap, 4)
	if err != nil {
		t.Fatalf("AugmentDTB returned error: %v", err)
	}
	if !bytes.Equal(out, blob) {
		t.Fatalf("blob modified despite missing interrupt controller")
	}
}

func TestAugmentSkipsUnencodableNodes(t *testing.T) {
	// A one-cell blob cannot encode transport addresses above 4GB; those
	// nodes are skipped, the rest of the augmentation still happens.
	blob := testBlob(t, true, 1)
	wideMap := AddressMap{SlotVirtio: 1 << 32}

	out, err := AugmentDTB(blob, wideMap, 3)
	if err != nil {
		t.Fatalf("AugmentDTB returned error: %v", err)
	}
	if got := decodeTransports(t, out, 1); len(got) != 0 {
		t.Fatalf("emitted %d nodes with unencodable addresses", len(got))
	}
}

func TestAugmentPreservesReservations(t *testing.T) {
	// Reservation entries and the boot CPU id live outside the node
	// structure; augmentation must carry them through untouched.
	tree := &fdt.Tree{
		Root:     testRoot(true, 2),
		Reserved: []fdt.ReserveEntry{{Address: 0x60000000, Size: 0x1000}},
		BootCPU:  2,
	}

	out, err := AugmentDTB(tree.Build(), legacyMap, 2)
	if err != nil {
		t.Fatalf("AugmentDTB returned error: %v", err)
	}

	got, err := fdt.Parse(out)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(got.Reserved) != 1 || got.Reserved[0] != (fdt.ReserveEntry{Address: 0x60000000, Size: 0x1000}) {
		t.Fatalf("reservation entries = %+v, want one 0x60000000/0x1000 entry", got.Reserved)
	}
	if got.BootCPU != 2 {
		t.Fatalf("boot CPU id = %d, want 2", got.BootCPU)
	}
	if n := len(decodeTransports(t, out, 2)); n != 2 {
		t.Fatalf("transport nodes = %d, want 2", n)
	}
}

func TestAugmentZeroTransports(t *testing.T) {
	blob := testBlob(t, true, 2)
	out, err := AugmentDTB(blob, legacyMap, 0)
	if err != nil {
		t.Fatalf("AugmentDTB returned error: %v", err)
	}
	if !bytes.Equal(out, blob) {
		t.Fatalf("blob modified for zero transports")
	}
}

func TestAugmentRejectsMalformedBlob(t *testing.T) {
	if _, err := AugmentDTB([]byte("not a device tree"), legacyMap, 4); err == nil {
		t.Fatalf("AugmentDTB accepted a malformed blob")
	}
}
