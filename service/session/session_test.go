package session

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/memprobe/memprobe/pkg/batch"
	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/scan"
	"github.com/memprobe/memprobe/service/api"
)

// fakeGateway serves one in-memory mapping at base and records the pid of
// every call. The pid is guarded because scans and batch reads call in
// from worker goroutines.
type fakeGateway struct {
	gateway.Gateway
	base uint64
	data []byte

	mu      sync.Mutex
	lastPid int
}

func (g *fakeGateway) record(pid int) {
	g.mu.Lock()
	g.lastPid = pid
	g.mu.Unlock()
}

func (g *fakeGateway) pid() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPid
}

func (g *fakeGateway) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	g.record(pid)
	if size <= 0 || addr < g.base || addr+uint64(size) > g.base+uint64(len(g.data)) {
		return nil, errors.New("unmapped address")
	}
	out := make([]byte, size)
	copy(out, g.data[addr-g.base:])
	return out, nil
}

func (g *fakeGateway) WriteMemory(pid int, addr uint64, data []byte) error {
	g.record(pid)
	if addr < g.base || addr+uint64(len(data)) > g.base+uint64(len(g.data)) {
		return errors.New("unmapped address")
	}
	copy(g.data[addr-g.base:], data)
	return nil
}

func (g *fakeGateway) Regions(pid int) (string, error) {
	g.record(pid)
	return fmt.Sprintf("%x-%x rw-p\n", g.base, g.base+uint64(len(g.data))), nil
}

func (g *fakeGateway) Suspend(pid int) bool { g.record(pid); return true }
func (g *fakeGateway) Resume(pid int) bool  { g.record(pid); return true }

func TestOperationsRequireAttach(t *testing.T) {
	s := New(&fakeGateway{base: 0x1000, data: make([]byte, 0x100)})

	if _, err := s.ReadMemory(0x1000, 4); !errors.Is(err, ErrNotAttached) {
		t.Errorf("ReadMemory: got error %v, want ErrNotAttached", err)
	}
	if err := s.WriteMemory(0x1000, []byte{1}); !errors.Is(err, ErrNotAttached) {
		t.Errorf("WriteMemory: got error %v, want ErrNotAttached", err)
	}
	if _, err := s.Scan(&api.ScanRequest{ScanID: "s"}); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Scan: got error %v, want ErrNotAttached", err)
	}
	if _, err := s.Filter(&api.FilterRequest{ScanID: "s"}); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Filter: got error %v, want ErrNotAttached", err)
	}
	if _, err := s.BatchRead([]batch.ReadRequest{{Address: 0x1000, Size: 4}}); !errors.Is(err, ErrNotAttached) {
		t.Errorf("BatchRead: got error %v, want ErrNotAttached", err)
	}
	if _, err := s.Regions(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Regions: got error %v, want ErrNotAttached", err)
	}
	if ErrNotAttached.Error() != "pid not set" {
		t.Errorf("ErrNotAttached reads %q", ErrNotAttached.Error())
	}
}

func TestAttachRetarget(t *testing.T) {
	g := &fakeGateway{base: 0x1000, data: make([]byte, 0x100)}
	s := New(g)

	s.Attach(100)
	if pid, err := s.Pid(); err != nil || pid != 100 {
		t.Fatalf("Pid() = %d, %v", pid, err)
	}
	if _, err := s.ReadMemory(0x1000, 4); err != nil {
		t.Fatalf("read after attach failed: %v", err)
	}
	if p := g.pid(); p != 100 {
		t.Errorf("read used pid %d, want 100", p)
	}

	s.Attach(200)
	s.ReadMemory(0x1000, 4)
	if p := g.pid(); p != 200 {
		t.Errorf("read after retarget used pid %d, want 200", p)
	}

	s.Detach()
	if _, err := s.Pid(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Pid after detach: got %v, want ErrNotAttached", err)
	}
}

func TestSessionScanAndFilter(t *testing.T) {
	data := make([]byte, 0x100)
	binary.LittleEndian.PutUint32(data[0x10:], 1234)
	g := &fakeGateway{base: 0x1000, data: data}
	s := New(g)
	s.Attach(1)

	pattern := make([]byte, 4)
	binary.LittleEndian.PutUint32(pattern, 1234)

	resp, err := s.Scan(&api.ScanRequest{
		Pattern:       hex.EncodeToString(pattern),
		AddressRanges: [][2]uint64{{0x1000, 0x1100}},
		FindType:      string(scan.FindExact),
		DataType:      string(scan.Int32),
		ScanID:        "hp",
		Align:         4,
		ReturnAsJSON:  true,
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if resp.Found != 1 || len(resp.MatchedAddresses) != 1 {
		t.Fatalf("scan response %+v, want one match", resp)
	}
	if resp.MatchedAddresses[0].Address != 0x1010 {
		t.Errorf("matched %#x, want 0x1010", resp.MatchedAddresses[0].Address)
	}
	if resp.IsRounded {
		t.Error("small result set reported as rounded")
	}

	binary.LittleEndian.PutUint32(g.data[0x10:], 2000)
	fresp, err := s.Filter(&api.FilterRequest{
		DataType:     string(scan.Int32),
		ScanID:       "hp",
		FilterMethod: string(scan.Increased),
		ReturnAsJSON: true,
	})
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if fresp.Found != 1 {
		t.Fatalf("filter kept %d, want 1", fresp.Found)
	}

	if _, err := s.Filter(&api.FilterRequest{
		DataType:     string(scan.Int32),
		ScanID:       "missing",
		FilterMethod: string(scan.Changed),
	}); !errors.Is(err, scan.ErrUnknownScanID) {
		t.Errorf("filter of missing id: got %v, want ErrUnknownScanID", err)
	}
}

func TestSessionCompactScanResponse(t *testing.T) {
	data := make([]byte, 0x100)
	data[0x10] = 0xff
	s := New(&fakeGateway{base: 0x1000, data: data})
	s.Attach(1)

	resp, err := s.Scan(&api.ScanRequest{
		Pattern:       "ff",
		AddressRanges: [][2]uint64{{0x1000, 0x1100}},
		FindType:      string(scan.FindExact),
		DataType:      string(scan.AOB),
		ScanID:        "c",
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if resp.Found != 1 {
		t.Errorf("found %d, want 1", resp.Found)
	}
	if resp.MatchedAddresses != nil {
		t.Error("compact response carries the match list")
	}
}

func TestSessionBatchRead(t *testing.T) {
	data := make([]byte, 0x100)
	copy(data[0x20:], "payload")
	s := New(&fakeGateway{base: 0x1000, data: data})
	s.Attach(1)

	stream, err := s.BatchRead([]batch.ReadRequest{
		{Address: 0x1020, Size: 7},
		{Address: 0xdead0000, Size: 4},
	})
	if err != nil {
		t.Fatalf("batch read failed: %v", err)
	}
	results, err := batch.Decode(stream)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("decoded %d records, want 2", len(results))
	}
	if !results[0].OK || !bytes.Equal(results[0].Data, []byte("payload")) {
		t.Errorf("record 0 = %+v", results[0])
	}
	if results[1].OK {
		t.Error("unmapped read reported OK")
	}
}

func TestSessionRegions(t *testing.T) {
	s := New(&fakeGateway{base: 0x1000, data: make([]byte, 0x100)})
	s.Attach(1)

	rs, err := s.Regions()
	if err != nil {
		t.Fatalf("regions failed: %v", err)
	}
	if len(rs) != 1 || rs[0].Start != 0x1000 || rs[0].End != 0x1100 {
		t.Fatalf("regions = %+v", rs)
	}
	if !rs[0].Readable() || !rs[0].Writable() {
		t.Errorf("rw-p region flags wrong: %+v", rs[0])
	}
}

func TestSessionSuspendResume(t *testing.T) {
	g := &fakeGateway{base: 0x1000, data: make([]byte, 0x10)}
	s := New(g)

	if _, err := s.Suspend(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("suspend unattached: got %v, want ErrNotAttached", err)
	}
	s.Attach(7)
	ok, err := s.Suspend()
	if err != nil || !ok {
		t.Fatalf("suspend = %v, %v", ok, err)
	}
	if p := g.pid(); p != 7 {
		t.Errorf("suspend used pid %d, want 7", p)
	}
	if ok, err := s.Resume(); err != nil || !ok {
		t.Fatalf("resume = %v, %v", ok, err)
	}
}
