package scan

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// ErrUnknownScanID is returned by Filter when the scan id has no stored
// match set.
var ErrUnknownScanID = errors.New("scan id not found")

// ErrInvalidPattern is returned by Filter when the request pattern fails
// to hex-decode or regex-compile. Scans absorb the same malformation
// silently; the asymmetry is part of the protocol.
var ErrInvalidPattern = errors.New("invalid pattern")

type filterMode int

const (
	filterRelational filterMode = iota
	filterRegex
	filterExact
)

// Filter narrows the match set stored under req.ScanID by re-reading
// current memory at every stored address and applying req.Relation. The
// kept candidates replace the stored set wholesale, so successive filters
// chain against the immediately preceding result.
//
// Candidates whose memory cannot be read are excluded silently. The
// returned count is the size of the new set.
func (e *Engine) Filter(pid int, req *FilterRequest) (uint64, error) {
	start := time.Now()
	candidates, ok := e.store.Snapshot(req.ScanID)
	if !ok {
		return 0, ErrUnknownScanID
	}

	mode := filterRelational
	var (
		re    *regexp.Regexp
		exact []byte
	)
	switch {
	case req.Type == Regex:
		r, err := e.compile(req.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		re = r
		mode = filterRegex
	case req.Relation == Exact:
		b, err := hex.DecodeString(req.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		exact = b
		mode = filterExact
	}

	kept := make([]*Match, len(candidates))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.numWorkers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := candidates[i]
				readLen := len(c.Value) / 2
				if mode == filterRegex {
					readLen = len(req.Pattern)
				}
				if readLen <= 0 {
					continue
				}
				buf, err := e.mem.ReadMemory(pid, c.Address, readLen)
				if err != nil {
					continue
				}
				switch mode {
				case filterRegex:
					if !re.Match(buf) {
						continue
					}
				case filterExact:
					if !bytes.Equal(buf, exact) {
						continue
					}
				default:
					old, err := hex.DecodeString(c.Value)
					if err != nil {
						continue
					}
					if !Compare(req.Type, req.Relation, buf, old) {
						continue
					}
				}
				kept[i] = &Match{Address: c.Address, Value: hex.EncodeToString(buf)}
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Compact in candidate order so the set stays stable across passes.
	next := make([]Match, 0, len(candidates))
	for _, m := range kept {
		if m != nil {
			next = append(next, *m)
		}
	}
	e.store.Replace(req.ScanID, next)

	e.log.Debugf("filter %q %s/%s: %d -> %d candidates in %s",
		req.ScanID, req.Type, req.Relation, len(candidates), len(next), time.Since(start))
	return uint64(len(next)), nil
}
