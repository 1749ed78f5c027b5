//go:build !linux

package native

import (
	"github.com/memprobe/memprobe/pkg/gateway"
)

type unsupportedGateway struct{}

// New returns the gateway for the current OS.
func New() gateway.Gateway {
	return unsupportedGateway{}
}

func (unsupportedGateway) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	return nil, gateway.ErrNotSupported
}

func (unsupportedGateway) WriteMemory(pid int, addr uint64, data []byte) error {
	return gateway.ErrNotSupported
}

func (unsupportedGateway) Processes() ([]gateway.Process, error) {
	return nil, gateway.ErrNotSupported
}

func (unsupportedGateway) Modules(pid int) ([]gateway.Module, error) {
	return nil, gateway.ErrNotSupported
}

func (unsupportedGateway) Regions(pid int) (string, error) {
	return "", gateway.ErrNotSupported
}

func (unsupportedGateway) Suspend(pid int) bool { return false }

func (unsupportedGateway) Resume(pid int) bool { return false }

func (unsupportedGateway) AttachDebugger(pid int) bool { return false }

func (unsupportedGateway) SetWatchpoint(addr uint64, size int, kind gateway.WatchKind) error {
	return gateway.ErrNotSupported
}

func (unsupportedGateway) RemoveWatchpoint(addr uint64) error {
	return gateway.ErrNotSupported
}
