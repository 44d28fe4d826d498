package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed box tree could not be parsed.
var ErrMalformed = errors.New("malformed container")

// Container box types that are parsed recursively.
// Everything else is treated as an opaque leaf.
var containerTypes = map[BoxType]bool{
	{'m', 'o', 'o', 'v'}: true,
	{'t', 'r', 'a', 'k'}: true,
	{'m', 'd', 'i', 'a'}: true,
	{'m', 'i', 'n', 'f'}: true,
	{'s', 't', 'b', 'l'}: true,
	{'e', 'd', 't', 's'}: true,
}

// Node is one parsed box. Leaf nodes borrow their payload from the
// input buffer, container nodes hold children instead. The parser
// never copies or mutates the input.
type Node struct {
	BoxType  BoxType
	Offset   int    // payload start relative to the parsed buffer.
	Payload  []byte // nil for containers.
	Children []*Node
}

// Find returns the first child of the given type, or nil.
func (n *Node) Find(typ BoxType) *Node {
	return findNode(n.Children, typ)
}

// FindAll returns all children of the given type.
func (n *Node) FindAll(typ BoxType) []*Node {
	var nodes []*Node
	for _, child := range n.Children {
		if child.BoxType == typ {
			nodes = append(nodes, child)
		}
	}
	return nodes
}

func findNode(nodes []*Node, typ BoxType) *Node {
	for _, n := range nodes {
		if n.BoxType == typ {
			return n
		}
	}
	return nil
}

// FindNode returns the first top-level node of the given type, or nil.
func FindNode(nodes []*Node, typ BoxType) *Node {
	return findNode(nodes, typ)
}

// Parse walks buf as a sequence of boxes and returns the top-level nodes.
func Parse(buf []byte) ([]*Node, error) {
	return parseBoxes(buf, 0, len(buf), true)
}

func parseBoxes(buf []byte, start int, end int, topLevel bool) ([]*Node, error) {
	var nodes []*Node

	pos := start
	for pos < end {
		if end-pos < 8 {
			return nil, fmt.Errorf("%w: %v trailing bytes at offset %v",
				ErrMalformed, end-pos, pos)
		}

		size := uint64(binary.BigEndian.Uint32(buf[pos:]))
		var typ BoxType
		copy(typ[:], buf[pos+4:pos+8])

		headerSize := 8
		switch {
		case size == 1: // 64-bit extended size.
			if end-pos < 16 {
				return nil, fmt.Errorf("%w: box %v at offset %v: truncated extended size",
					ErrMalformed, typ, pos)
			}
			size = binary.BigEndian.Uint64(buf[pos+8:])
			headerSize = 16
			if size < 16 {
				return nil, fmt.Errorf("%w: box %v at offset %v: extended size %v below header size",
					ErrMalformed, typ, pos, size)
			}

		case size == 0: // Rest of file. Only legal for the trailing top-level box.
			if !topLevel {
				return nil, fmt.Errorf("%w: box %v at offset %v: zero size inside container",
					ErrMalformed, typ, pos)
			}
			size = uint64(end - pos)

		case size < 8:
			return nil, fmt.Errorf("%w: box %v at offset %v: size %v below header size",
				ErrMalformed, typ, pos, size)
		}

		if size > uint64(end-pos) {
			return nil, fmt.Errorf("%w: box %v at offset %v: size %v exceeds %v available bytes",
				ErrMalformed, typ, pos, size, end-pos)
		}
		boxEnd := pos + int(size)

		node := &Node{
			BoxType: typ,
			Offset:  pos + headerSize,
		}
		if containerTypes[typ] {
			children, err := parseBoxes(buf, pos+headerSize, boxEnd, false)
			if err != nil {
				return nil, fmt.Errorf("in %v: %w", typ, err)
			}
			node.Children = children
		} else {
			node.Payload = buf[pos+headerSize : boxEnd]
		}

		nodes = append(nodes, node)
		pos = boxEnd
	}
	return nodes, nil
}
