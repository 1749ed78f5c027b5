package terminal

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/cosiner/argv"

	"github.com/memprobe/memprobe/pkg/gateway"
	"github.com/memprobe/memprobe/pkg/scan"
	"github.com/memprobe/memprobe/service/api"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for memprobe terminal process.
type Commands struct {
	cmds []command
}

// ExitRequestError is returned when the user
// exits memprobe.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return "exit"
}

// ProbeCommands returns a Commands struct with memprobe commands.
func ProbeCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"attach"}, cmdFn: attach, helpMsg: `Attach to a running process.

	attach <pid>

All subsequent memory operations run against this process.`},
		{aliases: []string{"detach"}, cmdFn: detach, helpMsg: `Detach from the current process, keeping stored scan results.`},
		{aliases: []string{"ps"}, cmdFn: processes, helpMsg: `List running processes.`},
		{aliases: []string{"regions"}, cmdFn: regions, helpMsg: `Print the memory regions of the target.`},
		{aliases: []string{"modules"}, cmdFn: modules, helpMsg: `Print the modules mapped into the target.`},
		{aliases: []string{"scan", "s"}, cmdFn: scanCmd, helpMsg: `Scan the target for a value.

	scan <id> <type> <value> [align]

Searches every readable region and stores the matches under <id>,
replacing anything previously stored there. <type> is one of int8,
uint8, int16, uint16, int32, uint32, int64, uint64, float, double,
utf-8, utf-16, aob or regex. Numeric values are written in decimal,
aob as hex bytes ("ff 90 ab"), utf-8/utf-16 as text and regex as a
regular expression over raw memory.`},
		{aliases: []string{"snapshot", "snap"}, cmdFn: snapshot, helpMsg: `Record every value in the target as a baseline.

	snapshot <id> <type> [align]

Stores the current value at every aligned address of every readable
region under <id>. Narrow the set afterwards with filter using the
changed/unchanged/increased/decreased relations.`},
		{aliases: []string{"filter", "f"}, cmdFn: filter, helpMsg: `Narrow a stored match set against current memory.

	filter <id> <type> <relation> [value]

<relation> is one of changed, unchanged, increased, decreased or
exact. The exact relation requires a value (or a regular expression
for the regex type). Matches that fail the relation, or whose address
can no longer be read, are dropped from the set.`},
		{aliases: []string{"list", "l"}, cmdFn: list, helpMsg: `Print matches from a stored scan.

	list <id> [count]

Prints the first matches of the set along with the total count. The
default count is taken from the list-matches configuration value.`},
		{aliases: []string{"clear"}, cmdFn: clear, helpMsg: `Discard a stored scan.

	clear <id>`},
		{aliases: []string{"read", "x"}, cmdFn: read, helpMsg: `Read target memory.

	read <address> <size>

Prints a hex dump of <size> bytes at <address>.`},
		{aliases: []string{"write", "w"}, cmdFn: write, helpMsg: `Write target memory.

	write <address> <type> <value>

Encodes <value> according to <type> (see scan) and writes it at
<address>.`},
		{aliases: []string{"suspend"}, cmdFn: suspend, helpMsg: `Stop the target process.`},
		{aliases: []string{"resume"}, cmdFn: resume, helpMsg: `Resume the target process.`},
		{aliases: []string{"watch"}, cmdFn: watch, helpMsg: `Set a watchpoint on a target address.

	watch <address> <size> <read|write|access>`},
		{aliases: []string{"unwatch"}, cmdFn: unwatch, helpMsg: `Remove the watchpoint at a target address.

	unwatch <address>`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the program.`},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Merge takes aliases defined in the config struct and merges them with the default
// aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// Call takes a full command line, dispatches to the matching command and
// executes it.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(cmdstr, " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// takesScanID reports whether the command's first argument is a stored
// scan id, for completion purposes.
func (c *Commands) takesScanID(cmdname string) bool {
	for _, v := range c.cmds {
		if v.match(cmdname) {
			switch v.aliases[0] {
			case "scan", "snapshot", "filter", "list", "clear":
				return true
			}
			return false
		}
	}
	return false
}

func noCmdAvailable(t *Term, args string) error {
	return errors.New("command not available")
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			if cmd.match(args) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return fmt.Errorf("no help for %q", args)
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := 0
	for _, cmd := range c.cmds {
		if l := len(strings.Join(cmd.aliases, "|")); l > w {
			w = l
		}
	}
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		fmt.Fprintf(t.stdout, "    %-*s %s\n", w+1, strings.Join(cmd.aliases, "|"), h)
	}
	fmt.Fprintln(t.stdout)
	return nil
}

// splitArgs splits a command argument string on whitespace, honoring
// quoting so text patterns may contain spaces.
func splitArgs(args string) ([]string, error) {
	if args == "" {
		return nil, nil
	}
	v, err := argv.Argv(args, func(s string) (string, error) {
		return "", fmt.Errorf("backtick not supported in command arguments")
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, errors.New("malformed command arguments")
	}
	return v[0], nil
}

func parseAddr(arg string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(arg), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", arg)
	}
	return addr, nil
}

// encodeValue converts a human readable value into the hex pattern the
// engine expects for dt. Regex patterns pass through unencoded.
func encodeValue(dt scan.DataType, arg string) (string, error) {
	le := func(v uint64, width int) string {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return hex.EncodeToString(buf[:width])
	}

	switch dt {
	case scan.Regex:
		return arg, nil
	case scan.AOB:
		compact := strings.ReplaceAll(arg, " ", "")
		if _, err := hex.DecodeString(compact); err != nil {
			return "", fmt.Errorf("invalid byte pattern %q", arg)
		}
		return compact, nil
	case scan.UTF8:
		return hex.EncodeToString([]byte(arg)), nil
	case scan.UTF16:
		units := utf16.Encode([]rune(arg))
		buf := make([]byte, 2*len(units))
		for i, u := range units {
			binary.LittleEndian.PutUint16(buf[2*i:], u)
		}
		return hex.EncodeToString(buf), nil
	case scan.Int8, scan.Int16, scan.Int32, scan.Int64:
		v, err := strconv.ParseInt(arg, 0, 8*dt.Width())
		if err != nil {
			return "", fmt.Errorf("invalid %s value %q", dt, arg)
		}
		return le(uint64(v), dt.Width()), nil
	case scan.Uint8, scan.Uint16, scan.Uint32, scan.Uint64:
		v, err := strconv.ParseUint(arg, 0, 8*dt.Width())
		if err != nil {
			return "", fmt.Errorf("invalid %s value %q", dt, arg)
		}
		return le(v, dt.Width()), nil
	case scan.Float:
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return "", fmt.Errorf("invalid float value %q", arg)
		}
		return le(uint64(math.Float32bits(float32(v))), 4), nil
	case scan.Double:
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "", fmt.Errorf("invalid double value %q", arg)
		}
		return le(math.Float64bits(v), 8), nil
	}
	return "", fmt.Errorf("unknown data type %q", dt)
}

func attach(t *Term, args string) error {
	pid, err := strconv.Atoi(args)
	if err != nil {
		return fmt.Errorf("invalid pid %q", args)
	}
	t.sess.Attach(pid)
	fmt.Fprintf(t.stdout, "Attached to pid %d.\n", pid)
	return nil
}

func detach(t *Term, args string) error {
	t.sess.Detach()
	return nil
}

func processes(t *Term, args string) error {
	procs, err := t.sess.Processes()
	if err != nil {
		return err
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Pid < procs[j].Pid })
	for _, p := range procs {
		fmt.Fprintf(t.stdout, "%8d  %s\n", p.Pid, p.Name)
	}
	return nil
}

func regions(t *Term, args string) error {
	rs, err := t.sess.Regions()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.Path != "" {
			fmt.Fprintf(t.stdout, "%#016x-%#016x %s %s\n", r.Start, r.End, r.Protection, r.Path)
		} else {
			fmt.Fprintf(t.stdout, "%#016x-%#016x %s\n", r.Start, r.End, r.Protection)
		}
	}
	return nil
}

func modules(t *Term, args string) error {
	mods, err := t.sess.Modules()
	if err != nil {
		return err
	}
	for _, m := range mods {
		bits := 32
		if m.Is64 {
			bits = 64
		}
		fmt.Fprintf(t.stdout, "%#016x %10d %d-bit %s\n", m.Base, m.Size, bits, m.Name)
	}
	return nil
}

// readableRanges builds the scan address ranges from the readable
// regions of the target.
func readableRanges(t *Term) ([][2]uint64, error) {
	rs, err := t.sess.Regions()
	if err != nil {
		return nil, err
	}
	var ranges [][2]uint64
	for _, r := range rs {
		if r.Readable() {
			ranges = append(ranges, [2]uint64{r.Start, r.End})
		}
	}
	if len(ranges) == 0 {
		return nil, errors.New("target has no readable regions")
	}
	return ranges, nil
}

func scanCmd(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) < 3 || len(v) > 4 {
		return errors.New("wrong number of arguments, expected: scan <id> <type> <value> [align]")
	}
	id, dt := v[0], scan.DataType(v[1])
	pattern, err := encodeValue(dt, v[2])
	if err != nil {
		return err
	}
	var align uint64 = 1
	if len(v) == 4 {
		if align, err = strconv.ParseUint(v[3], 10, 64); err != nil {
			return fmt.Errorf("invalid alignment %q", v[3])
		}
	}
	ranges, err := readableRanges(t)
	if err != nil {
		return err
	}
	resp, err := t.sess.Scan(&api.ScanRequest{
		Pattern:       pattern,
		AddressRanges: ranges,
		FindType:      string(scan.FindExact),
		DataType:      string(dt),
		ScanID:        id,
		Align:         align,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%d matches stored as %q.\n", resp.Found, id)
	return nil
}

func snapshot(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) < 2 || len(v) > 3 {
		return errors.New("wrong number of arguments, expected: snapshot <id> <type> [align]")
	}
	id, dt := v[0], scan.DataType(v[1])
	if !dt.Numeric() {
		return fmt.Errorf("snapshot requires a numeric type, got %q", dt)
	}
	align := uint64(dt.Width())
	if len(v) == 3 {
		if align, err = strconv.ParseUint(v[2], 10, 64); err != nil {
			return fmt.Errorf("invalid alignment %q", v[2])
		}
	}
	ranges, err := readableRanges(t)
	if err != nil {
		return err
	}
	resp, err := t.sess.Scan(&api.ScanRequest{
		AddressRanges: ranges,
		FindType:      string(scan.FindUnknown),
		DataType:      string(dt),
		ScanID:        id,
		Align:         align,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%d values recorded as %q.\n", resp.Found, id)
	return nil
}

func filter(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) < 3 || len(v) > 4 {
		return errors.New("wrong number of arguments, expected: filter <id> <type> <relation> [value]")
	}
	id, dt, rel := v[0], scan.DataType(v[1]), scan.Relation(v[2])
	var pattern string
	if len(v) == 4 {
		if pattern, err = encodeValue(dt, v[3]); err != nil {
			return err
		}
	} else if rel == scan.Exact {
		return errors.New("the exact relation requires a value")
	}
	resp, err := t.sess.Filter(&api.FilterRequest{
		Pattern:      pattern,
		DataType:     string(dt),
		ScanID:       id,
		FilterMethod: string(rel),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%d matches remain in %q.\n", resp.Found, id)
	return nil
}

func list(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) < 1 || len(v) > 2 {
		return errors.New("wrong number of arguments, expected: list <id> [count]")
	}
	id := v[0]
	n := t.listMatches()
	if len(v) == 2 {
		if n, err = strconv.Atoi(v[1]); err != nil || n < 1 {
			return fmt.Errorf("invalid count %q", v[1])
		}
	}
	matches, ok := t.sess.Store().Snapshot(id)
	if !ok {
		return fmt.Errorf("no scan stored as %q", id)
	}
	shown := matches
	if len(shown) > n {
		shown = shown[:n]
	}
	for _, m := range shown {
		fmt.Fprintf(t.stdout, "%#016x  %s\n", m.Address, m.Value)
	}
	if len(shown) < len(matches) {
		fmt.Fprintf(t.stdout, "(%d of %d matches)\n", len(shown), len(matches))
	} else {
		fmt.Fprintf(t.stdout, "(%d matches)\n", len(matches))
	}
	return nil
}

func clear(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments, expected: clear <id>")
	}
	if !t.sess.Store().Remove(args) {
		return fmt.Errorf("no scan stored as %q", args)
	}
	return nil
}

func read(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 2 {
		return errors.New("wrong number of arguments, expected: read <address> <size>")
	}
	addr, err := parseAddr(v[0])
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(v[1])
	if err != nil || size < 1 {
		return fmt.Errorf("invalid size %q", v[1])
	}
	data, err := t.sess.ReadMemory(addr, size)
	if err != nil {
		return err
	}
	hexdump(t, addr, data)
	return nil
}

func hexdump(t *Term, base uint64, data []byte) {
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]
		ascii := make([]byte, len(row))
		for j, b := range row {
			if b >= 0x20 && b < 0x7f {
				ascii[j] = b
			} else {
				ascii[j] = '.'
			}
		}
		fmt.Fprintf(t.stdout, "%#016x: %-48s %s\n", base+uint64(i), fmt.Sprintf("% x", row), ascii)
	}
}

func write(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 3 {
		return errors.New("wrong number of arguments, expected: write <address> <type> <value>")
	}
	addr, err := parseAddr(v[0])
	if err != nil {
		return err
	}
	dt := scan.DataType(v[1])
	if dt == scan.Regex {
		return errors.New("cannot write a regex value")
	}
	pattern, err := encodeValue(dt, v[2])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(pattern)
	if err != nil {
		return err
	}
	if err := t.sess.WriteMemory(addr, data); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Wrote %d bytes at %#x.\n", len(data), addr)
	return nil
}

func suspend(t *Term, args string) error {
	ok, err := t.sess.Suspend()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("could not suspend target")
	}
	fmt.Fprintln(t.stdout, "Target suspended.")
	return nil
}

func resume(t *Term, args string) error {
	ok, err := t.sess.Resume()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("could not resume target")
	}
	fmt.Fprintln(t.stdout, "Target resumed.")
	return nil
}

func watch(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 3 {
		return errors.New("wrong number of arguments, expected: watch <address> <size> <read|write|access>")
	}
	addr, err := parseAddr(v[0])
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(v[1])
	if err != nil || size < 1 {
		return fmt.Errorf("invalid size %q", v[1])
	}
	var kind gateway.WatchKind
	switch v[2] {
	case "read", "r":
		kind = gateway.WatchRead
	case "write", "w":
		kind = gateway.WatchWrite
	case "access", "rw", "a":
		kind = gateway.WatchAccess
	default:
		return fmt.Errorf("invalid watch kind %q", v[2])
	}
	return t.sess.SetWatchpoint(addr, size, kind)
}

func unwatch(t *Term, args string) error {
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	return t.sess.RemoveWatchpoint(addr)
}
