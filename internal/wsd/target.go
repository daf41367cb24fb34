package wsd

import (
	"fmt"
	"net/url"
	"sort"
)

// Well-known device type QNames used as probe filters.
const (
	PrintDeviceType = "wprt:PrintDeviceType"
	ScanDeviceType  = "wscn:ScanDeviceType"

	PrinterServiceType = "wprt:PrinterServiceType"
	ScannerServiceType = "wscn:ScannerServiceType"
)

// TargetService is a discoverable device as announced over WS-Discovery.
//
// Identity is EpRefAddr alone: two values with the same address are the
// same device no matter what the other fields say. Use Key when indexing
// and Equal when comparing, never ==.
type TargetService struct {
	EpRefAddr   string
	Types       StringSet
	Scopes      StringSet
	XAddrs      StringSet
	MetaVersion int
}

// Key returns the identity of the target.
func (t TargetService) Key() string {
	return t.EpRefAddr
}

// Equal compares identities.
func (t TargetService) Equal(other TargetService) bool {
	return t.EpRefAddr == other.EpRefAddr
}

// Usable reports whether the target can be reached over WS-Transfer.
func (t TargetService) Usable() bool {
	return t.XAddrs.Len() > 0
}

// MatchesTypes reports whether the target carries one of the filter types.
// An empty filter matches everything.
func (t TargetService) MatchesTypes(filter StringSet) bool {
	if filter.Len() == 0 {
		return true
	}
	return t.Types.Intersects(filter)
}

// Clone returns a deep copy.
func (t TargetService) Clone() TargetService {
	return TargetService{
		EpRefAddr:   t.EpRefAddr,
		Types:       t.Types.Clone(),
		Scopes:      t.Scopes.Clone(),
		XAddrs:      t.XAddrs.Clone(),
		MetaVersion: t.MetaVersion,
	}
}

// Host returns the host part of the first transport address, or an empty
// string when none parses.
func (t TargetService) Host() string {
	for _, a := range t.XAddrs.Sorted() {
		u, err := url.Parse(a)
		if err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return ""
}

// IsPrinter reports whether the target announces the print device type.
func (t TargetService) IsPrinter() bool {
	return t.Types.Has(PrintDeviceType)
}

// IsScanner reports whether the target announces the scan device type.
func (t TargetService) IsScanner() bool {
	return t.Types.Has(ScanDeviceType)
}

func (t TargetService) String() string {
	return fmt.Sprintf("%s types=[%s] xaddrs=[%s] metadataVersion=%d",
		t.EpRefAddr, t.Types, t.XAddrs, t.MetaVersion)
}

// TargetSet holds at most one TargetService per endpoint address.
type TargetSet map[string]TargetService

// NewTargetSet builds a set from targets; later entries replace earlier ones
// with the same address.
func NewTargetSet(targets ...TargetService) TargetSet {
	s := make(TargetSet, len(targets))
	for _, t := range targets {
		s.Add(t)
	}
	return s
}

// Add inserts t, replacing any target with the same address.
func (s TargetSet) Add(t TargetService) {
	s[t.Key()] = t
}

// Remove deletes the target with the given address.
func (s TargetSet) Remove(epRefAddr string) {
	delete(s, epRefAddr)
}

// Get looks up a target by address.
func (s TargetSet) Get(epRefAddr string) (TargetService, bool) {
	t, ok := s[epRefAddr]
	return t, ok
}

// Union returns a new set with the entries of both; on conflict the entry
// from other wins.
func (s TargetSet) Union(other TargetSet) TargetSet {
	out := make(TargetSet, len(s)+len(other))
	for k, t := range s {
		out[k] = t
	}
	for k, t := range other {
		out[k] = t
	}
	return out
}

// Filter returns the targets whose types intersect filter.
func (s TargetSet) Filter(filter StringSet) TargetSet {
	out := make(TargetSet, len(s))
	for k, t := range s {
		if t.MatchesTypes(filter) {
			out[k] = t
		}
	}
	return out
}

// Sorted returns the targets ordered by address.
func (s TargetSet) Sorted() []TargetService {
	out := make([]TargetService, 0, len(s))
	for _, t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpRefAddr < out[j].EpRefAddr })
	return out
}
