// Package cache persists discovered targets and reconciles them with the
// network.
//
// Records are keyed by endpoint address; the value is a CBOR encoding of
// the target's types, scopes, transport addresses and metadata version.
// Only targets with at least one transport address are stored, since
// nothing else can be queried later.
//
// Manager.GetDevices merges two sources:
//
//  1. discovery: probe, then resolve every match in parallel
//  2. cache: every stored target gets a WS-Transfer liveness check and is
//     evicted on failure
//
// Discovered targets are written back and win over cached ones in the
// result. Eviction only happens during such a sweep, so a device that left
// the network stays in the store until the next one.
//
// # Concurrency
//
// A Manager is the only writer of its store. Several processes sharing one
// cache file are not coordinated: SQLite serialises the statements, but a
// sweep in one process can evict or overwrite records another process just
// wrote.
package cache
