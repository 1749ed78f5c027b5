// Package terminal implements functions for responding to user input and
// dispatching to the appropriate session operations.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"

	"github.com/memprobe/memprobe/pkg/config"
	"github.com/memprobe/memprobe/service/session"
)

const historyFile string = "history"

// Term represents the terminal running memprobe.
type Term struct {
	sess        *session.Session
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	stdout      io.Writer
	completions *trie.Trie
}

// New returns a new Term wired to sess.
func New(sess *session.Session, conf *config.Config) *Term {
	cmds := ProbeCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	if conf == nil {
		conf = &config.Config{}
	}

	completions := trie.New()
	for _, cmd := range cmds.cmds {
		for _, alias := range cmd.aliases {
			completions.Add(alias, nil)
		}
	}

	return &Term{
		sess:        sess,
		conf:        conf,
		prompt:      "(memprobe) ",
		line:        liner.NewLiner(),
		cmds:        cmds,
		stdout:      colorable.NewColorableStdout(),
		completions: completions,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// Run begins the read/eval loop, returning the process exit status.
func (t *Term) Run() (int, error) {
	defer t.Close()

	t.line.SetCompleter(func(line string) (c []string) {
		if i := strings.IndexByte(line, ' '); i >= 0 {
			// Complete scan ids for the commands that take one.
			cmdname, rest := line[:i], strings.TrimLeft(line[i+1:], " ")
			if !t.cmds.takesScanID(cmdname) || strings.Contains(rest, " ") {
				return nil
			}
			for _, id := range t.sess.Store().IDs() {
				if strings.HasPrefix(id, rest) {
					c = append(c, cmdname+" "+id)
				}
			}
			return c
		}
		return t.completions.PrefixSearch(strings.ToLower(line))
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err == nil {
		if f, err := os.Open(fullHistoryFile); err == nil {
			t.line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	for {
		cmdstr, err := t.line.Prompt(t.prompt)
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}
		cmdstr = strings.TrimSpace(cmdstr)
		if cmdstr == "" {
			continue
		}
		t.line.AppendHistory(cmdstr)

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		}
	}
}

func (t *Term) handleExit() (int, error) {
	if fullHistoryFile, err := config.GetConfigFilePath(historyFile); err == nil {
		if f, err := os.Create(fullHistoryFile); err == nil {
			t.line.WriteHistory(f)
			f.Close()
		}
	}
	return 0, nil
}

// listMatches returns how many matches the list command prints by
// default.
func (t *Term) listMatches() int {
	if t.conf.ListMatches != nil && *t.conf.ListMatches > 0 {
		return *t.conf.ListMatches
	}
	return 16
}
