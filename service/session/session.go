// Package session ties the scan engine, the batch read codec and the
// result store to one attached target process.
//
// Session provides a higher level of abstraction over the memory access
// gateway: it owns the single attached pid and gates every memory
// operation on it. Transports and the terminal talk to a Session, never
// to the gateway directly.
package session

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/memprobe/memprobe/pkg/batch"
	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/logflags"
	"github.com/memprobe/memprobe/pkg/scan"
	"github.com/memprobe/memprobe/service/api"
)

// ErrNotAttached is returned by every memory operation before a target
// process has been attached.
var ErrNotAttached = errors.New("pid not set")

// Session is the single-target context all memory operations resolve
// against.
type Session struct {
	pidMutex sync.Mutex
	pid      int
	attached bool

	mem    gateway.Gateway
	store  *scan.Store
	engine *scan.Engine
	codec  *batch.Codec
	log    *logrus.Entry
}

// New returns a Session reading memory through mem, with a fresh result
// store.
func New(mem gateway.Gateway) *Session {
	store := scan.NewStore()
	return &Session{
		mem:    mem,
		store:  store,
		engine: scan.New(mem, store),
		codec:  batch.NewCodec(mem),
		log:    logflags.SessionLogger(),
	}
}

// Store returns the result store owned by this session.
func (s *Session) Store() *scan.Store {
	return s.store
}

// SetWorkers overrides the parallelism of scans, filters and batch
// reads.
func (s *Session) SetWorkers(n int) {
	s.engine.SetWorkers(n)
	s.codec.SetWorkers(n)
}

// Attach selects pid as the target for all future memory operations.
// The pid is not validated and a previously attached target is replaced
// silently; operations already in flight keep using the pid they
// resolved at dispatch.
func (s *Session) Attach(pid int) {
	s.pidMutex.Lock()
	s.pid = pid
	s.attached = true
	s.pidMutex.Unlock()
	s.log.Infof("attached to pid %d", pid)
}

// Detach clears the target. Memory operations fail until the next
// Attach. Stored scan results are kept.
func (s *Session) Detach() {
	s.pidMutex.Lock()
	s.pid = 0
	s.attached = false
	s.pidMutex.Unlock()
}

// Pid returns the attached target pid.
func (s *Session) Pid() (int, error) {
	return s.target()
}

func (s *Session) target() (int, error) {
	s.pidMutex.Lock()
	defer s.pidMutex.Unlock()
	if !s.attached {
		return 0, ErrNotAttached
	}
	return s.pid, nil
}

// ReadMemory reads size bytes at addr from the target.
func (s *Session) ReadMemory(addr uint64, size int) ([]byte, error) {
	pid, err := s.target()
	if err != nil {
		return nil, err
	}
	return s.mem.ReadMemory(pid, addr, size)
}

// WriteMemory writes data at addr in the target.
func (s *Session) WriteMemory(addr uint64, data []byte) error {
	pid, err := s.target()
	if err != nil {
		return err
	}
	return s.mem.WriteMemory(pid, addr, data)
}

// BatchRead performs every read in reqs and returns the encoded record
// stream; see package batch for the format. Individual read failures are
// encoded in-stream and do not fail the call.
func (s *Session) BatchRead(reqs []batch.ReadRequest) ([]byte, error) {
	pid, err := s.target()
	if err != nil {
		return nil, err
	}
	return s.codec.Encode(pid, reqs), nil
}

// Scan runs a scan request against the target. The response carries the
// match list only when the request asked for it; Found is always the
// true count.
func (s *Session) Scan(req *api.ScanRequest) (*api.ScanResponse, error) {
	pid, err := s.target()
	if err != nil {
		return nil, err
	}
	found := s.engine.Scan(pid, req.EngineRequest())
	if !req.ReturnAsJSON {
		return &api.ScanResponse{Found: found}, nil
	}
	matches, _ := s.store.Snapshot(req.ScanID)
	return api.NewScanResponse(matches, found), nil
}

// Filter narrows a previously stored match set against current target
// memory.
func (s *Session) Filter(req *api.FilterRequest) (*api.ScanResponse, error) {
	pid, err := s.target()
	if err != nil {
		return nil, err
	}
	found, err := s.engine.Filter(pid, req.EngineRequest())
	if err != nil {
		return nil, err
	}
	if !req.ReturnAsJSON {
		return &api.ScanResponse{Found: found}, nil
	}
	matches, _ := s.store.Snapshot(req.ScanID)
	return api.NewScanResponse(matches, found), nil
}

// Regions returns the parsed memory regions of the target.
func (s *Session) Regions() ([]gateway.Region, error) {
	pid, err := s.target()
	if err != nil {
		return nil, err
	}
	text, err := s.mem.Regions(pid)
	if err != nil {
		return nil, err
	}
	return gateway.ParseRegions(text), nil
}

// Modules returns the modules mapped into the target.
func (s *Session) Modules() ([]gateway.Module, error) {
	pid, err := s.target()
	if err != nil {
		return nil, err
	}
	return s.mem.Modules(pid)
}

// Processes lists running processes. It does not require an attached
// target.
func (s *Session) Processes() ([]gateway.Process, error) {
	return s.mem.Processes()
}

// Suspend stops the target process.
func (s *Session) Suspend() (bool, error) {
	pid, err := s.target()
	if err != nil {
		return false, err
	}
	return s.mem.Suspend(pid), nil
}

// Resume resumes the target process.
func (s *Session) Resume() (bool, error) {
	pid, err := s.target()
	if err != nil {
		return false, err
	}
	return s.mem.Resume(pid), nil
}

// AttachDebugger attaches the native debugger to the target. Reports
// whether the debugger is attached.
func (s *Session) AttachDebugger() (bool, error) {
	pid, err := s.target()
	if err != nil {
		return false, err
	}
	return s.mem.AttachDebugger(pid), nil
}

// SetWatchpoint attaches the native debugger to the target if needed and
// arms a watchpoint at addr.
func (s *Session) SetWatchpoint(addr uint64, size int, kind gateway.WatchKind) error {
	pid, err := s.target()
	if err != nil {
		return err
	}
	if !s.mem.AttachDebugger(pid) {
		return errors.New("could not attach debugger to target")
	}
	return s.mem.SetWatchpoint(addr, size, kind)
}

// RemoveWatchpoint disarms the watchpoint at addr.
func (s *Session) RemoveWatchpoint(addr uint64) error {
	if _, err := s.target(); err != nil {
		return err
	}
	return s.mem.RemoveWatchpoint(addr)
}
