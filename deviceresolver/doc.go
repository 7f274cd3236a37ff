// Package deviceresolver resolves a set of addressed JIDs into the concrete
// device list each message must fan out to, backed by a USync query for
// cache misses and the LID↔PN bijection persisted through signalstore.
//
// Tox has no USync/LID concept, so this package has no direct teacher
// analogue. Its in-memory device cache (mutex-protected, TTL-bounded) is
// grounded on the shape of the teacher's DHT closest-node cache
// (opd-ai-toxcore's dht package, since deleted — see DESIGN.md); its
// eviction-to-a-ceiling policy mirrors the same routing-table trim-to-K
// pattern generalized into signalstore's indexed-category trim.
package deviceresolver
