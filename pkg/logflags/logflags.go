// Package logflags enables debug logging for individual components.
package logflags

import (
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var scanner = false
var store = false
var session = false
var gateway = false
var batch = false

var logOut io.Writer = colorable.NewColorableStderr()

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	lg := logrus.New()
	lg.Out = logOut
	lg.Formatter = &logrus.TextFormatter{
		ForceColors: isatty.IsTerminal(os.Stderr.Fd()),
	}
	lg.Level = logrus.DebugLevel
	if !flag {
		lg.Level = logrus.PanicLevel
	}
	return lg.WithFields(fields)
}

// Scanner returns true if the scan and filter engines should log.
func Scanner() bool {
	return scanner
}

// ScannerLogger returns a logger for the scan and filter engines.
func ScannerLogger() *logrus.Entry {
	return makeLogger(scanner, logrus.Fields{"layer": "scanner"})
}

// Store returns true if result store mutations should be logged.
func Store() bool {
	return store
}

// StoreLogger returns a logger for the result store.
func StoreLogger() *logrus.Entry {
	return makeLogger(store, logrus.Fields{"layer": "store"})
}

// Session returns true if the session package should log.
func Session() bool {
	return session
}

// SessionLogger returns a logger for the session package.
func SessionLogger() *logrus.Entry {
	return makeLogger(session, logrus.Fields{"layer": "session"})
}

// Gateway returns true if calls into the memory access gateway should be
// logged.
func Gateway() bool {
	return gateway
}

// GatewayLogger returns a logger for gateway implementations.
func GatewayLogger() *logrus.Entry {
	return makeLogger(gateway, logrus.Fields{"layer": "gateway"})
}

// Batch returns true if the batch read codec should log.
func Batch() bool {
	return batch
}

// BatchLogger returns a logger for the batch read codec.
func BatchLogger() *logrus.Entry {
	return makeLogger(batch, logrus.Fields{"layer": "batch"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component log flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "session"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "scanner":
			scanner = true
		case "store":
			store = true
		case "session":
			session = true
		case "gateway":
			gateway = true
		case "batch":
			batch = true
		}
	}
	return nil
}
