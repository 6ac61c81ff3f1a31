// Package fdt builds, parses and edits Flattened Device Tree blobs.
package fdt

import (
	"encoding/binary"
	"fmt"
)

// Property is a single device-tree property. Value holds the raw bytes as
// they appear in the structure block; an empty Value is a valid boolean
// property (e.g. "interrupt-controller;").
type Property struct {
	Name  string
	Value []byte
}

// Node is one entry in the device tree. Children keep their insertion order;
// serialization emits them in exactly that order.
type Node struct {
	Name       string
	Properties []Property
	Children   []*Node
}

// ReserveEntry is one memory-reservation block entry: a physical range the
// guest must leave untouched.
type ReserveEntry struct {
	Address uint64
	Size    uint64
}

// Tree is a complete device tree: the root node plus the blob-level fields
// that live outside the node structure.
type Tree struct {
	Root     *Node
	Reserved []ReserveEntry
	BootCPU  uint32
}

// AddProperty appends a property to the node.
func (n *Node) AddProperty(name string, value []byte) {
	n.Properties = append(n.Properties, Property{Name: name, Value: value})
}

// AddString appends a string property.
func (n *Node) AddString(name string, values ...string) {
	var data []byte
	for _, v := range values {
		data = append(data, v...)
		data = append(data, 0)
	}
	n.AddProperty(name, data)
}

// AddU32 appends a property of big-endian 32-bit cells.
func (n *Node) AddU32(name string, values ...uint32) {
	data := make([]byte, 0, len(values)*4)
	for _, v := range values {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], v)
		data = append(data, tmp[:]...)
	}
	n.AddProperty(name, data)
}

// AddChild appends a child node and returns it.
func (n *Node) AddChild(name string) *Node {
	child := &Node{Name: name}
	n.Children = append(n.Children, child)
	return child
}

// Property returns the raw value of the named property.
func (n *Node) Property(name string) ([]byte, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// U32 reads the named property as a single 32-bit cell.
func (n *Node) U32(name string) (uint32, bool) {
	v, ok := n.Property(name)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// Strings decodes the named property as a nul-separated string list.
func (n *Node) Strings(name string) []string {
	v, ok := n.Property(name)
	if !ok {
		return nil
	}
	var out []string
	start := 0
	for i, b := range v {
		if b == 0 {
			out = append(out, string(v[start:i]))
			start = i + 1
		}
	}
	return out
}

// HasCompatible reports whether the node's compatible list contains value.
func (n *Node) HasCompatible(value string) bool {
	for _, s := range n.Strings("compatible") {
		if s == value {
			return true
		}
	}
	return false
}

// Phandle returns the node's phandle, honouring both the current and the
// legacy property spellings.
func (n *Node) Phandle() (uint32, bool) {
	if v, ok := n.U32("phandle"); ok {
		return v, true
	}
	return n.U32("linux,phandle")
}

// FindCompatible walks the tree depth-first and returns the first node whose
// compatible list contains value.
func (n *Node) FindCompatible(value string) *Node {
	if n.HasCompatible(value) {
		return n
	}
	for _, child := range n.Children {
		if found := child.FindCompatible(value); found != nil {
			return found
		}
	}
	return nil
}

// EncodeCells encodes value into width big-endian 32-bit cells, as used by
// reg properties sized by #address-cells/#size-cells.
func EncodeCells(width uint32, value uint64) ([]byte, error) {
	switch width {
	case 1:
		if value > 0xffffffff {
			return nil, fmt.Errorf("fdt: value %#x does not fit in one cell", value)
		}
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(value))
		return tmp[:], nil
	case 2:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], value)
		return tmp[:], nil
	default:
		return nil, fmt.Errorf("fdt: unsupported cell width %d", width)
	}
}
