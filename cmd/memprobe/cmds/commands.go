// Package cmds implements the command line interface of memprobe.
package cmds

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/memprobe/memprobe/pkg/config"
	"github.com/memprobe/memprobe/pkg/gateway/native"
	"github.com/memprobe/memprobe/pkg/logflags"
	"github.com/memprobe/memprobe/pkg/terminal"
	"github.com/memprobe/memprobe/pkg/version"
	"github.com/memprobe/memprobe/service/session"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// workers overrides the number of parallel scan workers.
	workers int

	conf *config.Config

	rootCommand *cobra.Command
)

const memprobeCommandLongDesc = `Memprobe is a scanner for the memory of running processes.

Memprobe attaches to a process, searches its address space for values and
narrows the result set as those values change, in the style of a cheat
table editor. Use "memprobe attach" to start an interactive session.`

// New returns an initialized command tree.
func New() *cobra.Command {
	conf = config.LoadConfig()

	rootCommand = &cobra.Command{
		Use:   "memprobe",
		Short: "Memprobe is a process memory scanner.",
		Long:  memprobeCommandLongDesc,
	}
	registerFlags(rootCommand.PersistentFlags())

	attachCommand := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running process and begin an interactive session.",
		Long: `Attach to an already running process and begin an interactive scan session.

This command will cause Memprobe to take control of an already running
process. You will then be able to scan its memory, filter the results and
inspect or modify values using Memprobe's interactive prompt.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a PID")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(attachCmd(args))
		},
	}
	rootCommand.AddCommand(attachCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Memprobe version: %s\n", version.MemprobeVersion)
			fmt.Printf("Build: %s\n", version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func registerFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&log, "log", false, "Enable debug logging.")
	fs.StringVar(&logOutput, "log-output", "", `Comma separated list of components that should produce debug output (eg: --log-output=scanner,store)
Available components:
	scanner		scan and filter engines
	store		result store mutations
	session		session operations (default)
	gateway		raw memory access
	batch		batch read codec`)
	fs.IntVar(&workers, "workers", 0, "Number of parallel scan workers (default: one per CPU).")
}

func attachCmd(args []string) int {
	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pid: %s\n", args[0])
		return 1
	}

	sess := session.New(native.New())
	switch {
	case workers > 0:
		sess.SetWorkers(workers)
	case conf.ScanWorkers != nil && *conf.ScanWorkers > 0:
		sess.SetWorkers(*conf.ScanWorkers)
	}
	if conf.MaxStoredMatches != nil && *conf.MaxStoredMatches > 0 {
		sess.Store().SetRetainCap(*conf.MaxStoredMatches)
	}
	sess.Attach(pid)

	status, err := terminal.New(sess, conf).Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}
