package binarynode

// Node is the tree the wire protocol is built from: a tag, an attribute
// map, optional byte content, and optional children. A node carries either
// content or children in practice, but both fields are addressable so a
// caller building a stanza by hand never has to think about which is legal.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Content  []byte
	Children []Node
}

// Attr returns the named attribute and whether it was present.
func (n Node) Attr(key string) (string, bool) {
	v, ok := n.Attrs[key]
	return v, ok
}

// GetChild returns the first direct child with the given tag.
func (n Node) GetChild(tag string) (Node, bool) {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c, true
		}
	}
	return Node{}, false
}

// GetChildren returns every direct child with the given tag.
func (n Node) GetChildren(tag string) []Node {
	var out []Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}
