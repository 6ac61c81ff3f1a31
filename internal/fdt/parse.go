package fdt

import (
	"encoding/binary"
	"fmt"
)

// Parse decodes an FDT blob into a Tree. Property values are kept as raw
// bytes and the memory-reservation entries and boot CPU id are retained, so
// Parse followed by Tree.Build preserves all content and order.
func Parse(blob []byte) (*Tree, error) {
	if len(blob) < fdtHeaderSize {
		return nil, fmt.Errorf("fdt: blob too small (%d bytes)", len(blob))
	}
	if magic := binary.BigEndian.Uint32(blob[0:4]); magic != fdtMagic {
		return nil, fmt.Errorf("fdt: bad magic %#x", magic)
	}
	totalSize := binary.BigEndian.Uint32(blob[4:8])
	if uint32(len(blob)) < totalSize {
		return nil, fmt.Errorf("fdt: blob truncated: header says %d bytes, have %d", totalSize, len(blob))
	}
	offStruct := binary.BigEndian.Uint32(blob[8:12])
	offStrings := binary.BigEndian.Uint32(blob[12:16])
	offMemReserve := binary.BigEndian.Uint32(blob[16:20])
	bootCPU := binary.BigEndian.Uint32(blob[28:32])
	sizeStrings := binary.BigEndian.Uint32(blob[32:36])
	sizeStruct := binary.BigEndian.Uint32(blob[36:40])
	if offStruct+sizeStruct > totalSize || offStrings+sizeStrings > totalSize {
		return nil, fmt.Errorf("fdt: block offsets exceed blob size")
	}

	reserved, err := parseReservations(blob[:totalSize], offMemReserve)
	if err != nil {
		return nil, err
	}

	p := &parser{
		structBlock: blob[offStruct : offStruct+sizeStruct],
		strings:     blob[offStrings : offStrings+sizeStrings],
	}

	tok, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	if tok != fdtBeginNodeToken {
		return nil, fmt.Errorf("fdt: structure block does not start with a node")
	}
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	tok, err = p.nextToken()
	if err != nil {
		return nil, err
	}
	if tok != fdtEndToken {
		return nil, fmt.Errorf("fdt: trailing token %#x after root node", tok)
	}
	return &Tree{Root: root, Reserved: reserved, BootCPU: bootCPU}, nil
}

// parseReservations walks the memory-reservation block up to its (0, 0)
// terminator entry.
func parseReservations(blob []byte, off uint32) ([]ReserveEntry, error) {
	var out []ReserveEntry
	for {
		if int(off)+16 > len(blob) {
			return nil, fmt.Errorf("fdt: unterminated memory reservation block")
		}
		addr := binary.BigEndian.Uint64(blob[off:])
		size := binary.BigEndian.Uint64(blob[off+8:])
		if addr == 0 && size == 0 {
			return out, nil
		}
		out = append(out, ReserveEntry{Address: addr, Size: size})
		off += 16
	}
}

type parser struct {
	structBlock []byte
	strings     []byte
	off         int
}

// parseNode is entered after the FDT_BEGIN_NODE token has been consumed.
func (p *parser) parseNode() (*Node, error) {
	name, err := p.readNodeName()
	if err != nil {
		return nil, err
	}
	node := &Node{Name: name}

	for {
		tok, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		switch tok {
		case fdtPropToken:
			prop, err := p.readProperty()
			if err != nil {
				return nil, err
			}
			node.Properties = append(node.Properties, prop)
		case fdtBeginNodeToken:
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		case fdtEndNodeToken:
			return node, nil
		case fdtNopToken:
		default:
			return nil, fmt.Errorf("fdt: unexpected token %#x in node %q", tok, name)
		}
	}
}

func (p *parser) nextToken() (uint32, error) {
	if p.off+4 > len(p.structBlock) {
		return 0, fmt.Errorf("fdt: structure block ends mid-token")
	}
	tok := binary.BigEndian.Uint32(p.structBlock[p.off:])
	p.off += 4
	return tok, nil
}

func (p *parser) readNodeName() (string, error) {
	start := p.off
	for p.off < len(p.structBlock) && p.structBlock[p.off] != 0 {
		p.off++
	}
	if p.off >= len(p.structBlock) {
		return "", fmt.Errorf("fdt: unterminated node name")
	}
	name := string(p.structBlock[start:p.off])
	p.off++ // nul
	p.align()
	return name, nil
}

func (p *parser) readProperty() (Property, error) {
	if p.off+8 > len(p.structBlock) {
		return Property{}, fmt.Errorf("fdt: truncated property header")
	}
	length := binary.BigEndian.Uint32(p.structBlock[p.off:])
	nameOff := binary.BigEndian.Uint32(p.structBlock[p.off+4:])
	p.off += 8

	if p.off+int(length) > len(p.structBlock) {
		return Property{}, fmt.Errorf("fdt: property value exceeds structure block")
	}
	value := make([]byte, length)
	copy(value, p.structBlock[p.off:p.off+int(length)])
	p.off += int(length)
	p.align()

	name, err := p.stringAt(nameOff)
	if err != nil {
		return Property{}, err
	}
	return Property{Name: name, Value: value}, nil
}

func (p *parser) stringAt(off uint32) (string, error) {
	if off >= uint32(len(p.strings)) {
		return "", fmt.Errorf("fdt: property name offset %d out of range", off)
	}
	end := off
	for end < uint32(len(p.strings)) && p.strings[end] != 0 {
		end++
	}
	if end == uint32(len(p.strings)) {
		return "", fmt.Errorf("fdt: unterminated property name at offset %d", off)
	}
	return string(p.strings[off:end]), nil
}

func (p *parser) align() {
	for p.off%4 != 0 {
		p.off++
	}
}
