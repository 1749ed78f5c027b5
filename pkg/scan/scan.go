package scan

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/logflags"
)

// regexCacheSize bounds the number of compiled patterns kept around for
// repeated scan/filter cycles on the same pattern.
const regexCacheSize = 64

// Engine executes scans and filters against one process through a memory
// access gateway, mutating an injected result store.
type Engine struct {
	mem     gateway.Gateway
	store   *Store
	log     *logrus.Entry
	regexes *lru.Cache
	workers int
}

// New returns an Engine reading memory through mem and storing matches in
// store.
func New(mem gateway.Gateway, store *Store) *Engine {
	regexes, _ := lru.New(regexCacheSize)
	return &Engine{
		mem:     mem,
		store:   store,
		log:     logflags.ScannerLogger(),
		regexes: regexes,
	}
}

// SetWorkers overrides the number of parallel workers. n < 1 restores the
// default of one worker per CPU.
func (e *Engine) SetWorkers(n int) {
	e.workers = n
}

func (e *Engine) numWorkers() int {
	if e.workers > 0 {
		return e.workers
	}
	return runtime.NumCPU()
}

// Store returns the result store this engine mutates.
func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	if v, ok := e.regexes.Get(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.regexes.Add(pattern, re)
	return re, nil
}

// chunk is one parallel unit of scan work, a [start, end) sub-range.
type chunk struct {
	start uint64
	end   uint64
}

func splitChunks(ranges []AddressRange) []chunk {
	var chunks []chunk
	for _, r := range ranges {
		if r.End <= r.Start {
			continue
		}
		for start := r.Start; start < r.End; start += chunkSize {
			end := start + chunkSize
			if end > r.End || end < start {
				end = r.End
			}
			chunks = append(chunks, chunk{start, end})
		}
	}
	return chunks
}

// emitFunc receives one match found inside a chunk.
type emitFunc func(addr uint64, value string)

// Scan runs req against pid and merges the matches into the store under
// req.ScanID, which is cleared first. It returns the true number of
// matches found, independent of how many are retained for display.
//
// Per-chunk failures are absorbed: an unreadable chunk contributes no
// matches. A pattern that fails to hex-decode or regex-compile makes the
// whole scan contribute nothing, without error, matching the historical
// behavior of the wire protocol.
func (e *Engine) Scan(pid int, req *Request) uint64 {
	start := time.Now()
	e.store.Clear(req.ScanID)

	align := req.Alignment
	if align < 1 {
		align = 1
	}

	var matchChunk func(chunkStart uint64, buf []byte, emit emitFunc)
	switch {
	case req.Kind == FindExact && req.Type == Regex:
		re, err := e.compile(req.Pattern)
		if err != nil {
			e.log.Debugf("scan %q: bad regex %q: %v", req.ScanID, req.Pattern, err)
			return 0
		}
		matchChunk = func(chunkStart uint64, buf []byte, emit emitFunc) {
			for _, loc := range re.FindAllIndex(buf, -1) {
				addr := chunkStart + uint64(loc[0])
				if addr%align == 0 {
					emit(addr, hex.EncodeToString(buf[loc[0]:loc[1]]))
				}
			}
		}

	case req.Kind == FindExact:
		needle, err := hex.DecodeString(req.Pattern)
		if err != nil || len(needle) == 0 {
			e.log.Debugf("scan %q: bad hex pattern %q", req.ScanID, req.Pattern)
			return 0
		}
		matchChunk = func(chunkStart uint64, buf []byte, emit emitFunc) {
			// Resume one byte past each match start so overlapping
			// occurrences are all reported.
			off := 0
			for {
				i := bytes.Index(buf[off:], needle)
				if i < 0 {
					break
				}
				pos := off + i
				addr := chunkStart + uint64(pos)
				if addr%align == 0 {
					// The value is definitionally the pattern itself.
					emit(addr, req.Pattern)
				}
				off = pos + 1
			}
		}

	case req.Kind == FindUnknown:
		width := req.Type.Width()
		matchChunk = func(chunkStart uint64, buf []byte, emit emitFunc) {
			for off := 0; off+width <= len(buf); off += width {
				addr := chunkStart + uint64(off)
				if addr%align == 0 {
					emit(addr, hex.EncodeToString(buf[off:off+width]))
				}
			}
		}

	default:
		return 0
	}

	chunks := splitChunks(req.Ranges)

	var found uint64
	remainders := make([][]Match, len(chunks))
	sem := make(chan struct{}, e.numWorkers())
	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c chunk) {
			defer func() {
				<-sem
				wg.Done()
			}()
			buf, err := e.mem.ReadMemory(pid, c.start, int(c.end-c.start))
			if err != nil {
				return
			}
			var local []Match
			matchChunk(c.start, buf, func(addr uint64, value string) {
				local = append(local, Match{Address: addr, Value: value})
				atomic.AddUint64(&found, 1)
			})
			if len(local) > MaxResults {
				// Spill into the store to bound per-task memory.
				e.store.Append(req.ScanID, local)
				local = nil
			}
			remainders[i] = local
		}(i, c)
	}
	wg.Wait()

	var rest []Match
	for _, r := range remainders {
		rest = append(rest, r...)
	}
	e.store.Append(req.ScanID, rest)

	n := atomic.LoadUint64(&found)
	e.log.WithFields(logrus.Fields{
		"scan_id": req.ScanID,
		"chunks":  len(chunks),
		"found":   n,
	}).Debugf("scan finished in %s", time.Since(start))
	return n
}
