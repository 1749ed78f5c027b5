// Package scan implements the memory scan and filter engines and the
// shared result store they mutate.
//
// A scan walks caller supplied address ranges in fixed size chunks,
// collecting (address, value) matches for a pattern into the store under a
// caller chosen scan id. A filter narrows a previously stored match set by
// re-reading current memory and applying a relational predicate.
package scan

// MaxResults is the cap applied when formatting matches for display and
// the threshold at which a chunk spills its local matches into the store.
// The true found count is never capped.
const MaxResults = 100_000

// chunkSize is the size of one parallel unit of scan work.
const chunkSize = 512 * 1024 * 1024

// FindKind selects how a scan interprets its pattern.
type FindKind string

const (
	// FindExact searches for occurrences of a literal byte pattern or a
	// regular expression.
	FindExact FindKind = "exact"
	// FindUnknown snapshots every aligned type-width value in range as a
	// baseline for later filtering.
	FindUnknown FindKind = "unknown"
)

// DataType is the value encoding a scan or filter operates on. The
// constants mirror the wire protocol spellings.
type DataType string

const (
	Int8   DataType = "int8"
	Uint8  DataType = "uint8"
	Int16  DataType = "int16"
	Uint16 DataType = "uint16"
	Int32  DataType = "int32"
	Uint32 DataType = "uint32"
	Int64  DataType = "int64"
	Uint64 DataType = "uint64"
	Float  DataType = "float"
	Double DataType = "double"
	UTF8   DataType = "utf-8"
	UTF16  DataType = "utf-16"
	AOB    DataType = "aob"
	Regex  DataType = "regex"
)

// Width returns the element width in bytes used by unknown scans.
func (d DataType) Width() int {
	switch d {
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float:
		return 4
	case Int64, Uint64, Double:
		return 8
	default:
		return 1
	}
}

// Numeric reports whether d has an ordering, i.e. supports the increased
// and decreased relations.
func (d DataType) Numeric() bool {
	switch d {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float, Double:
		return true
	}
	return false
}

// Relation is the predicate a filter applies between the fresh value and
// either the stored value or the request pattern.
type Relation string

const (
	Changed   Relation = "changed"
	Unchanged Relation = "unchanged"
	Increased Relation = "increased"
	Decreased Relation = "decreased"
	Exact     Relation = "exact"
)

// AddressRange is a half-open [Start, End) range of virtual addresses.
type AddressRange struct {
	Start uint64
	End   uint64
}

// Match is one scan hit: the absolute address and the hex encoded bytes
// observed (or echoed) there.
type Match struct {
	Address uint64
	Value   string
}

// Request describes one scan.
type Request struct {
	// Pattern is interpreted according to Kind and Type: a hex byte
	// string for literal scans, a regular expression for regex scans,
	// ignored for unknown scans.
	Pattern string
	Ranges  []AddressRange
	Kind    FindKind
	Type    DataType
	ScanID  string
	// Alignment is the required address modulus for a match to be
	// reported. Values below 1 are treated as 1.
	Alignment uint64
}

// FilterRequest describes one refinement pass over a stored match set.
type FilterRequest struct {
	Pattern  string
	Type     DataType
	ScanID   string
	Relation Relation
}
