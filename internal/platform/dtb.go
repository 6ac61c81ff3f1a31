package platform

import (
	"fmt"
	"log/slog"

	"github.com/vexmachina/vex/internal/fdt"
)

// The interrupt controller node is located by compatibility string; there is
// only one on this board, and both variants expose the same binding.
const gicCompatible = "arm,cortex-a9-gic"

// AugmentDTB splices dynamic-transport nodes into an externally supplied
// device-tree blob. One node is synthesized per transport window, wired to
// global interrupt lines 40 upward as rising-edge peripheral interrupts on
// the board's interrupt controller.
//
// A blob without a recognizable interrupt controller is not an error: older
// hardware descriptions simply do not get transport nodes. A node whose
// addresses cannot be encoded in the blob's cell widths is skipped and the
// remaining nodes are still emitted. The serialized transport nodes always
// appear in ascending address order.
func AugmentDTB(blob []byte, m AddressMap, transports int) ([]byte, error) {
	if transports <= 0 {
		return blob, nil
	}

	tree, err := fdt.Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("platform: parse device tree: %w", err)
	}
	root := tree.Root

	// Cell widths default to the device-tree specification values when the
	// root does not spell them out.
	acells, ok := root.U32("#address-cells")
	if !ok {
		acells = 2
	}
	scells, ok := root.U32("#size-cells")
	if !ok {
		scells = 1
	}

	intc := root.FindCompatible(gicCompatible)
	if intc == nil {
		slog.Warn("no interrupt controller in device tree; omitting dynamic transport nodes",
			"compatible", gicCompatible)
		return blob, nil
	}
	phandle, ok := intc.Phandle()
	if !ok {
		slog.Warn("interrupt controller node has no phandle; omitting dynamic transport nodes")
		return blob, nil
	}

	base, ok := m.Resolve(SlotVirtio)
	if !ok {
		slog.Warn("variant map has no dynamic transport window; omitting transport nodes")
		return blob, nil
	}

	// Children are appended in ascending address order and the serializer
	// preserves child order, so the final blob reads base, base+0x200, ...
	for i := 0; i < transports; i++ {
		addr := base + TransportWindow*uint64(i)
		node, err := transportNode(acells, scells, addr, TransportWindow, phandle, transportIRQBase+i)
		if err != nil {
			slog.Warn("skipping dynamic transport node", "addr", fmt.Sprintf("%#x", addr), "err", err)
			continue
		}
		root.Children = append(root.Children, node)
	}

	return tree.Build(), nil
}

func transportNode(acells, scells uint32, addr, size uint64, phandle uint32, irq int) (*fdt.Node, error) {
	reg, err := fdt.EncodeCells(acells, addr)
	if err != nil {
		return nil, err
	}
	sizeCells, err := fdt.EncodeCells(scells, size)
	if err != nil {
		return nil, err
	}
	reg = append(reg, sizeCells...)

	n := &fdt.Node{Name: fmt.Sprintf("virtio_mmio@%x", addr)}
	n.AddString("compatible", "virtio,mmio")
	n.AddProperty("reg", reg)
	n.AddU32("interrupt-parent", phandle)
	// SPI interrupt, rising-edge triggered; the triple's meaning follows the
	// controller the interrupt-parent points at.
	n.AddU32("interrupts", 0, uint32(irq), 1)
	return n, nil
}
