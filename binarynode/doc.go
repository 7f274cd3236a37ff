// Package binarynode implements the tag/attribute/children wire node the
// relay assembles stanzas from and the connection supervisor parses frames
// into.
//
// Grounded on the teacher's transport/parser.go: a PacketParser interface
// with offset-advancing Parse/Serialize pairs and explicit length-prefixed
// fields, generalized here from a fixed DHT node-entry layout to a
// recursive tag/attrs/children/content tree.
package binarynode
