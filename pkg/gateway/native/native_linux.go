//go:build linux

package native

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/logflags"
)

type linuxGateway struct {
	log *logrus.Entry
}

// New returns the gateway for the current OS.
func New() gateway.Gateway {
	return &linuxGateway{log: logflags.GatewayLogger()}
}

func (g *linuxGateway) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid read size %d", size)
	}
	buf := make([]byte, size)
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(size)}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: size}}
	n, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil {
		g.log.Debugf("process_vm_readv pid=%d addr=%#x size=%d: %v", pid, addr, size, err)
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("partial read at %#x: %d of %d bytes", addr, n, size)
	}
	return buf, nil
}

func (g *linuxGateway) WriteMemory(pid int, addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(data)}}
	n, err := unix.ProcessVMWritev(pid, local, remote, 0)
	if err != nil {
		g.log.Debugf("process_vm_writev pid=%d addr=%#x size=%d: %v", pid, addr, len(data), err)
		return err
	}
	if n != len(data) {
		return fmt.Errorf("partial write at %#x: %d of %d bytes", addr, n, len(data))
	}
	return nil
}

func (g *linuxGateway) Processes() ([]gateway.Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	var procs []gateway.Process
	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
		if err != nil {
			continue
		}
		procs = append(procs, gateway.Process{
			Pid:  pid,
			Name: strings.TrimSpace(string(comm)),
		})
	}
	return procs, nil
}

// Regions reformats /proc/<pid>/maps into the gateway region listing:
// one "<start>-<end> <protection> [<path>]" line per mapping.
func (g *linuxGateway) Regions(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		sb.WriteString(fields[0])
		sb.WriteByte(' ')
		sb.WriteString(fields[1])
		if len(fields) >= 6 {
			sb.WriteByte(' ')
			sb.WriteString(fields[5])
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (g *linuxGateway) Modules(pid int) ([]gateway.Module, error) {
	text, err := g.Regions(pid)
	if err != nil {
		return nil, err
	}
	type span struct {
		base uint64
		end  uint64
	}
	spans := make(map[string]*span)
	for _, r := range gateway.ParseRegions(text) {
		if !strings.HasPrefix(r.Path, "/") {
			continue
		}
		sp, ok := spans[r.Path]
		if !ok {
			spans[r.Path] = &span{base: r.Start, end: r.End}
			continue
		}
		if r.Start < sp.base {
			sp.base = r.Start
		}
		if r.End > sp.end {
			sp.end = r.End
		}
	}
	modules := make([]gateway.Module, 0, len(spans))
	for path, sp := range spans {
		modules = append(modules, gateway.Module{
			Base: sp.base,
			Size: sp.end - sp.base,
			Is64: elfIs64(path),
			Name: path,
		})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Base < modules[j].Base })
	return modules, nil
}

// elfIs64 reports whether the file at path is a 64-bit ELF object.
// Unreadable or non-ELF files default to the host width.
func elfIs64(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return hostIs64
	}
	defer f.Close()
	var ident [5]byte
	if _, err := f.Read(ident[:]); err != nil {
		return hostIs64
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return hostIs64
	}
	return ident[4] == 2
}

const hostIs64 = strconv.IntSize == 64

func (g *linuxGateway) Suspend(pid int) bool {
	return unix.Kill(pid, unix.SIGSTOP) == nil
}

func (g *linuxGateway) Resume(pid int) bool {
	return unix.Kill(pid, unix.SIGCONT) == nil
}

func (g *linuxGateway) AttachDebugger(pid int) bool {
	// Hardware watchpoints need a ptrace attach loop this gateway does
	// not implement yet.
	return false
}

func (g *linuxGateway) SetWatchpoint(addr uint64, size int, kind gateway.WatchKind) error {
	return gateway.ErrNotSupported
}

func (g *linuxGateway) RemoveWatchpoint(addr uint64) error {
	return gateway.ErrNotSupported
}
