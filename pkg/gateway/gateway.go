// Package gateway defines the interface through which memprobe accesses
// the virtual memory of a target process.
//
// The scan and filter engines never touch a process directly; they are
// handed a Gateway at startup. One implementation exists per OS under
// gateway/native, and tests inject in-memory fakes.
package gateway

import "errors"

// ErrNotSupported is returned by gateway operations that the current
// platform implementation does not provide.
var ErrNotSupported = errors.New("operation not supported by this gateway")

// Process describes one running process.
type Process struct {
	Pid  int    `json:"pid"`
	Name string `json:"processname"`
}

// Module describes one module (executable or shared object) mapped into a
// process.
type Module struct {
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`
	Is64 bool   `json:"is_64bit"`
	Name string `json:"modulename"`
}

// WatchKind selects what kind of access triggers a watchpoint.
type WatchKind int

const (
	WatchRead WatchKind = iota + 1
	WatchWrite
	WatchAccess
)

// Gateway provides synchronous access to one OS process. Every call can
// fail independently; callers are expected to absorb per-call failures.
type Gateway interface {
	// ReadMemory reads size bytes of the virtual memory of pid starting
	// at addr.
	ReadMemory(pid int, addr uint64, size int) ([]byte, error)

	// WriteMemory writes data to the virtual memory of pid at addr.
	WriteMemory(pid int, addr uint64, data []byte) error

	// Processes lists running processes.
	Processes() ([]Process, error)

	// Modules lists the modules mapped into pid.
	Modules(pid int) ([]Module, error)

	// Regions returns the memory regions of pid as newline separated
	// text. Each line is "<hexstart>-<hexend> <protection> [<path>]";
	// use ParseRegions to decode it.
	Regions(pid int) (string, error)

	// Suspend stops all threads of pid. Reports whether the process was
	// suspended.
	Suspend(pid int) bool

	// Resume resumes a process previously stopped by Suspend.
	Resume(pid int) bool

	// AttachDebugger attaches the native debugger to pid, a prerequisite
	// for watchpoints.
	AttachDebugger(pid int) bool

	// SetWatchpoint arms a hardware watchpoint at addr.
	SetWatchpoint(addr uint64, size int, kind WatchKind) error

	// RemoveWatchpoint disarms the watchpoint at addr.
	RemoveWatchpoint(addr uint64) error
}
