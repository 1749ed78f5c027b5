// Package api holds the wire types exchanged with memprobe transports
// and the conversions from engine types to them.
package api

import (
	"fmt"

	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/scan"
)

// OpenProcessRequest selects the target process for all subsequent
// memory operations.
type OpenProcessRequest struct {
	Pid int `json:"pid"`
}

// ReadMemoryRequest reads Size bytes at Address.
type ReadMemoryRequest struct {
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
}

// WriteMemoryRequest writes Buffer at Address.
type WriteMemoryRequest struct {
	Address uint64 `json:"address"`
	Buffer  []byte `json:"buffer"`
}

// ScanRequest starts a scan over the given address ranges.
type ScanRequest struct {
	Pattern       string      `json:"pattern"`
	AddressRanges [][2]uint64 `json:"address_ranges"`
	FindType      string      `json:"find_type"`
	DataType      string      `json:"data_type"`
	ScanID        string      `json:"scan_id"`
	Align         uint64      `json:"align"`
	ReturnAsJSON  bool        `json:"return_as_json"`
}

// EngineRequest converts the wire request into the scan engine form.
func (r *ScanRequest) EngineRequest() *scan.Request {
	ranges := make([]scan.AddressRange, len(r.AddressRanges))
	for i, ar := range r.AddressRanges {
		ranges[i] = scan.AddressRange{Start: ar[0], End: ar[1]}
	}
	return &scan.Request{
		Pattern:   r.Pattern,
		Ranges:    ranges,
		Kind:      scan.FindKind(r.FindType),
		Type:      scan.DataType(r.DataType),
		ScanID:    r.ScanID,
		Alignment: r.Align,
	}
}

// FilterRequest narrows a previously stored match set.
type FilterRequest struct {
	Pattern      string `json:"pattern"`
	DataType     string `json:"data_type"`
	ScanID       string `json:"scan_id"`
	FilterMethod string `json:"filter_method"`
	ReturnAsJSON bool   `json:"return_as_json"`
}

// EngineRequest converts the wire request into the filter engine form.
func (r *FilterRequest) EngineRequest() *scan.FilterRequest {
	return &scan.FilterRequest{
		Pattern:  r.Pattern,
		Type:     scan.DataType(r.DataType),
		ScanID:   r.ScanID,
		Relation: scan.Relation(r.FilterMethod),
	}
}

// Match is one reported scan hit.
type Match struct {
	Address uint64 `json:"address"`
	Value   string `json:"value"`
}

// ScanResponse is the full scan/filter response. MatchedAddresses holds
// at most scan.MaxResults entries; IsRounded is set when the stored set
// is larger. Found is the true count and is never capped.
type ScanResponse struct {
	MatchedAddresses []Match `json:"matched_addresses"`
	Found            uint64  `json:"found"`
	IsRounded        bool    `json:"is_rounded"`
}

// CountResponse is the compact scan/filter response used when the caller
// did not ask for the match list.
type CountResponse struct {
	Found uint64 `json:"found"`
}

// NewScanResponse builds a ScanResponse from a stored match set,
// truncating the displayed matches to scan.MaxResults.
func NewScanResponse(matches []scan.Match, found uint64) *ScanResponse {
	limited := matches
	if len(limited) > scan.MaxResults {
		limited = limited[:scan.MaxResults]
	}
	out := make([]Match, len(limited))
	for i, m := range limited {
		out[i] = Match{Address: m.Address, Value: m.Value}
	}
	return &ScanResponse{
		MatchedAddresses: out,
		Found:            found,
		IsRounded:        len(limited) != len(matches),
	}
}

// Region is the wire form of one memory region; addresses are hex
// encoded without a 0x prefix, mirroring the region listing format.
type Region struct {
	StartAddress string `json:"start_address"`
	EndAddress   string `json:"end_address"`
	Protection   string `json:"protection"`
	FilePath     string `json:"file_path,omitempty"`
}

// ConvertRegion converts a parsed gateway region to its wire form.
func ConvertRegion(r gateway.Region) Region {
	return Region{
		StartAddress: fmt.Sprintf("%x", r.Start),
		EndAddress:   fmt.Sprintf("%x", r.End),
		Protection:   r.Protection,
		FilePath:     r.Path,
	}
}
