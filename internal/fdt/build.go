package fdt

import (
	"bytes"
	"encoding/binary"
)

const (
	fdtHeaderSize  = 0x28
	fdtVersion     = 17
	fdtLastCompVer = 16
	fdtMagic       = 0xd00dfeed

	fdtBeginNodeToken = 0x1
	fdtEndNodeToken   = 0x2
	fdtPropToken      = 0x3
	fdtNopToken       = 0x4
	fdtEndToken       = 0x9
)

// Build serializes a bare node tree with no memory reservations and boot
// CPU 0. Editing an existing blob goes through Parse and Tree.Build so the
// blob-level fields survive.
func Build(root *Node) []byte {
	return (&Tree{Root: root}).Build()
}

// Build serializes the tree into an FDT blob. Properties and children are
// emitted in their stored order; the reservation entries and the boot CPU
// id are carried into the header blocks.
func (t *Tree) Build() []byte {
	b := &builder{stringsOff: make(map[string]uint32)}
	b.emitNode(t.Root)
	return b.finish(t.Reserved, t.BootCPU)
}

type builder struct {
	structBuf  bytes.Buffer
	strings    bytes.Buffer
	stringsOff map[string]uint32
}

func (b *builder) emitNode(n *Node) {
	b.writeToken(fdtBeginNodeToken)
	b.structBuf.WriteString(n.Name)
	b.structBuf.WriteByte(0)
	b.padStruct()

	for _, p := range n.Properties {
		b.writeToken(fdtPropToken)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(len(p.Value)))
		b.structBuf.Write(tmp[:])
		binary.BigEndian.PutUint32(tmp[:], b.stringOffset(p.Name))
		b.structBuf.Write(tmp[:])
		b.structBuf.Write(p.Value)
		b.padStruct()
	}

	for _, child := range n.Children {
		b.emitNode(child)
	}

	b.writeToken(fdtEndNodeToken)
}

func (b *builder) finish(reserved []ReserveEntry, bootCPU uint32) []byte {
	b.writeToken(fdtEndToken)
	b.padStruct()

	structBytes := b.structBuf.Bytes()
	stringsBytes := b.strings.Bytes()

	memReserve := make([]byte, (len(reserved)+1)*16) // terminating entry included
	for i, r := range reserved {
		binary.BigEndian.PutUint64(memReserve[i*16:], r.Address)
		binary.BigEndian.PutUint64(memReserve[i*16+8:], r.Size)
	}

	offMemReserve := fdtHeaderSize
	offStruct := offMemReserve + len(memReserve)
	offStrings := offStruct + len(structBytes)
	totalSize := offStrings + len(stringsBytes)

	blob := make([]byte, totalSize)
	header := blob[:fdtHeaderSize]
	binary.BigEndian.PutUint32(header[0:4], fdtMagic)
	binary.BigEndian.PutUint32(header[4:8], uint32(totalSize))
	binary.BigEndian.PutUint32(header[8:12], uint32(offStruct))
	binary.BigEndian.PutUint32(header[12:16], uint32(offStrings))
	binary.BigEndian.PutUint32(header[16:20], uint32(offMemReserve))
	binary.BigEndian.PutUint32(header[20:24], fdtVersion)
	binary.BigEndian.PutUint32(header[24:28], fdtLastCompVer)
	binary.BigEndian.PutUint32(header[28:32], bootCPU)
	binary.BigEndian.PutUint32(header[32:36], uint32(len(stringsBytes)))
	binary.BigEndian.PutUint32(header[36:40], uint32(len(structBytes)))

	copy(blob[offMemReserve:], memReserve)
	copy(blob[offStruct:], structBytes)
	copy(blob[offStrings:], stringsBytes)

	return blob
}

func (b *builder) stringOffset(name string) uint32 {
	if off, ok := b.stringsOff[name]; ok {
		return off
	}
	off := uint32(b.strings.Len())
	b.strings.WriteString(name)
	b.strings.WriteByte(0)
	b.stringsOff[name] = off
	return off
}

func (b *builder) writeToken(token uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], token)
	b.structBuf.Write(tmp[:])
}

func (b *builder) padStruct() {
	for b.structBuf.Len()%4 != 0 {
		b.structBuf.WriteByte(0)
	}
}
