// Package waproto defines the narrow message contract the fan-out relay
// depends on, plus several concrete message kinds (text, media, poll,
// reaction, event) and an edit wrapper. The pack carries no protobuf dependency, so message bodies are
// packed by hand in the same length-prefixed style already used by
// ratchet and groupcipher's wire formats, rather than reaching for a
// serialization library nothing else in this codebase uses.
package waproto
