package binarynode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrTruncated is returned when a buffer ends in the middle of a field.
var ErrTruncated = errors.New("binarynode: truncated buffer")

// Encode serializes n into the wire form. Maps have no stable iteration
// order in Go, so attributes are written sorted by key — this is what
// makes Encode(Decode(Encode(n))) byte-identical to Encode(n), the
// property the round-trip test relies on.
func Encode(n Node) []byte {
	buf := make([]byte, 0, 64)
	return appendNode(buf, n)
}

func appendNode(buf []byte, n Node) []byte {
	buf = appendString(buf, n.Tag)

	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = appendUint16(buf, uint16(len(keys)))
	for _, k := range keys {
		buf = appendString(buf, k)
		buf = appendString(buf, n.Attrs[k])
	}

	buf = appendUint32(buf, uint32(len(n.Content)))
	buf = append(buf, n.Content...)

	buf = appendUint32(buf, uint32(len(n.Children)))
	for _, c := range n.Children {
		buf = appendNode(buf, c)
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Decode parses the wire form produced by Encode and returns the node plus
// the number of bytes consumed.
func Decode(data []byte) (Node, int, error) {
	return readNode(data, 0)
}

func readNode(data []byte, offset int) (Node, int, error) {
	tag, offset, err := readString(data, offset)
	if err != nil {
		return Node{}, offset, fmt.Errorf("binarynode: tag: %w", err)
	}

	attrCount, offset, err := readUint16(data, offset)
	if err != nil {
		return Node{}, offset, fmt.Errorf("binarynode: attr count: %w", err)
	}
	var attrs map[string]string
	if attrCount > 0 {
		attrs = make(map[string]string, attrCount)
	}
	for i := 0; i < int(attrCount); i++ {
		var key, value string
		key, offset, err = readString(data, offset)
		if err != nil {
			return Node{}, offset, fmt.Errorf("binarynode: attr key: %w", err)
		}
		value, offset, err = readString(data, offset)
		if err != nil {
			return Node{}, offset, fmt.Errorf("binarynode: attr value: %w", err)
		}
		attrs[key] = value
	}

	contentLen, offset, err := readUint32(data, offset)
	if err != nil {
		return Node{}, offset, fmt.Errorf("binarynode: content length: %w", err)
	}
	if offset+int(contentLen) > len(data) {
		return Node{}, offset, ErrTruncated
	}
	var content []byte
	if contentLen > 0 {
		content = make([]byte, contentLen)
		copy(content, data[offset:offset+int(contentLen)])
	}
	offset += int(contentLen)

	childCount, offset, err := readUint32(data, offset)
	if err != nil {
		return Node{}, offset, fmt.Errorf("binarynode: child count: %w", err)
	}
	var children []Node
	if childCount > 0 {
		children = make([]Node, 0, childCount)
	}
	for i := 0; i < int(childCount); i++ {
		var child Node
		child, offset, err = readNode(data, offset)
		if err != nil {
			return Node{}, offset, err
		}
		children = append(children, child)
	}

	return Node{Tag: tag, Attrs: attrs, Content: content, Children: children}, offset, nil
}

func readString(data []byte, offset int) (string, int, error) {
	length, offset, err := readUint16(data, offset)
	if err != nil {
		return "", offset, err
	}
	if offset+int(length) > len(data) {
		return "", offset, ErrTruncated
	}
	s := string(data[offset : offset+int(length)])
	return s, offset + int(length), nil
}

func readUint16(data []byte, offset int) (uint16, int, error) {
	if offset+2 > len(data) {
		return 0, offset, ErrTruncated
	}
	return binary.BigEndian.Uint16(data[offset : offset+2]), offset + 2, nil
}

func readUint32(data []byte, offset int) (uint32, int, error) {
	if offset+4 > len(data) {
		return 0, offset, ErrTruncated
	}
	return binary.BigEndian.Uint32(data[offset : offset+4]), offset + 4, nil
}
