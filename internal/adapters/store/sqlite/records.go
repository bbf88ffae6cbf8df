package sqlite

import (
	"github.com/symphainy/trafficcop/internal/domain"
)

// CBOR record shapes for columns that hold nested data. Times are Unix
// nanoseconds so they round-trip with the same precision as plain columns.

type addressRecord struct {
	Scope     string `cbor:"scope"`
	Dimension string `cbor:"dimension"`
	Key       string `cbor:"key"`
}

type refRecord struct {
	Address    addressRecord `cbor:"address"`
	Version    int64         `cbor:"version"`
	ObservedAt int64         `cbor:"observed_at"`
}

type entryRecord struct {
	Address   addressRecord  `cbor:"address"`
	Value     any            `cbor:"value"`
	Version   int64          `cbor:"version"`
	Priority  int            `cbor:"priority"`
	Owner     string         `cbor:"owner,omitempty"`
	Metadata  map[string]any `cbor:"metadata,omitempty"`
	UpdatedAt int64          `cbor:"updated_at"`
}

type conflictRecord struct {
	Addresses     []addressRecord `cbor:"addresses"`
	Competing     []entryRecord   `cbor:"competing"`
	Reason        string          `cbor:"reason,omitempty"`
	ResolvedValue any             `cbor:"resolved_value,omitempty"`
	ResolvedEntry *entryRecord    `cbor:"resolved_entry,omitempty"`
}

func toAddressRecord(a domain.StateAddress) addressRecord {
	return addressRecord{Scope: string(a.Scope), Dimension: string(a.Dimension), Key: a.Key}
}

func fromAddressRecord(r addressRecord) domain.StateAddress {
	return domain.StateAddress{Scope: domain.Scope(r.Scope), Dimension: domain.DimensionID(r.Dimension), Key: r.Key}
}

func toEntryRecord(e domain.StateEntry) entryRecord {
	return entryRecord{
		Address:   toAddressRecord(e.Address),
		Value:     e.Value,
		Version:   e.Version,
		Priority:  e.Priority,
		Owner:     string(e.Owner),
		Metadata:  e.Metadata,
		UpdatedAt: toUnixNano(e.UpdatedAt),
	}
}

func fromEntryRecord(r entryRecord) domain.StateEntry {
	return domain.StateEntry{
		Address:   fromAddressRecord(r.Address),
		Value:     r.Value,
		Version:   r.Version,
		Priority:  r.Priority,
		Owner:     domain.SessionID(r.Owner),
		Metadata:  r.Metadata,
		UpdatedAt: fromUnixNano(r.UpdatedAt),
	}
}
