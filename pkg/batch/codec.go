// Package batch implements the binary codec for batched multi-address
// memory reads.
//
// Each requested read produces one record, in request order:
//
//	success: u32 LE flag = 1 | u32 LE compressed length | payload
//	failure: u32 LE flag = 0
//
// Records are concatenated with no separators; a decoder tracks a running
// offset and parses flag then (length, payload) sequentially. The payload
// is an s2 block of the bytes read; every read is compressed
// independently, so one failed read never poisons the rest of the batch.
package batch

import (
	"encoding/binary"
	"errors"
	"runtime"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/sirupsen/logrus"

	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/logflags"
)

// ReadRequest is one independent read in a batch.
type ReadRequest struct {
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
}

// ReadResult is one decoded record. Data is nil when the read failed.
type ReadResult struct {
	OK   bool
	Data []byte
}

// ErrTruncated is returned by Decode when the stream ends in the middle
// of a record.
var ErrTruncated = errors.New("truncated batch read stream")

// Codec encodes batched reads against a memory access gateway.
type Codec struct {
	mem     gateway.Gateway
	log     *logrus.Entry
	workers int
}

// NewCodec returns a Codec reading through mem.
func NewCodec(mem gateway.Gateway) *Codec {
	return &Codec{mem: mem, log: logflags.BatchLogger()}
}

// SetWorkers overrides the number of parallel read workers. n < 1
// restores the default of one per CPU.
func (c *Codec) SetWorkers(n int) {
	c.workers = n
}

func (c *Codec) numWorkers() int {
	if c.workers > 0 {
		return c.workers
	}
	return runtime.NumCPU()
}

// Encode performs every read in reqs against pid and returns the
// concatenated records in request order. Failed reads are encoded as
// zero-flag records; Encode itself never fails.
func (c *Codec) Encode(pid int, reqs []ReadRequest) []byte {
	records := make([][]byte, len(reqs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.numWorkers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				records[i] = c.encodeOne(pid, reqs[i])
			}
		}()
	}
	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	total := 0
	for _, r := range records {
		total += len(r)
	}
	out := make([]byte, 0, total)
	for _, r := range records {
		out = append(out, r...)
	}
	c.log.Debugf("encoded %d reads into %d bytes", len(reqs), len(out))
	return out
}

func (c *Codec) encodeOne(pid int, req ReadRequest) []byte {
	buf, err := c.mem.ReadMemory(pid, req.Address, req.Size)
	if err != nil {
		rec := make([]byte, 4)
		binary.LittleEndian.PutUint32(rec, 0)
		return rec
	}
	payload := s2.Encode(nil, buf)
	rec := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(rec, 1)
	binary.LittleEndian.PutUint32(rec[4:], uint32(len(payload)))
	copy(rec[8:], payload)
	return rec
}

// Decode parses a record stream produced by Encode back into one result
// per original request, in order.
func Decode(stream []byte) ([]ReadResult, error) {
	var results []ReadResult
	off := 0
	for off < len(stream) {
		if off+4 > len(stream) {
			return nil, ErrTruncated
		}
		flag := binary.LittleEndian.Uint32(stream[off:])
		off += 4
		if flag == 0 {
			results = append(results, ReadResult{})
			continue
		}
		if off+4 > len(stream) {
			return nil, ErrTruncated
		}
		clen := int(binary.LittleEndian.Uint32(stream[off:]))
		off += 4
		if off+clen > len(stream) {
			return nil, ErrTruncated
		}
		data, err := s2.Decode(nil, stream[off:off+clen])
		if err != nil {
			return nil, err
		}
		off += clen
		results = append(results, ReadResult{OK: true, Data: data})
	}
	return results, nil
}
