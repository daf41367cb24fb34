// Package wsd holds the data model shared by the WS-Discovery, WS-Transfer
// and WS-Eventing layers: target services, announcement messages, hosted
// services and the closed set of SOAP actions.
//
// # Identity
//
// A TargetService is identified solely by its endpoint reference address.
// TargetSet enforces this: adding a target whose address is already present
// replaces the older entry.
//
//	set := wsd.NewTargetSet()
//	set.Add(wsd.TargetService{EpRefAddr: "urn:uuid:1", MetaVersion: 1})
//	set.Add(wsd.TargetService{EpRefAddr: "urn:uuid:1", MetaVersion: 2})
//	len(set) // 1, MetaVersion 2
//
// Types, scopes and transport addresses are unordered StringSets.
package wsd
