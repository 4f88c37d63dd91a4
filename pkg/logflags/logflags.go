package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var bootstrap = false
var gdbMI = false
var host = false
var terminal = false
var gdbOutput = false

var logOut io.WriteCloser

var textFormatterInstance = &textFormatter{}

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	level := logrus.ErrorLevel
	if flag {
		level = logrus.DebugLevel
	}
	return makeLogger(level, fields)
}

// Bootstrap returns true if the bootstrap package should log every call it
// makes on the debugger session.
func Bootstrap() bool {
	return bootstrap
}

// BootstrapLogger returns a logger for the bootstrap package.
func BootstrapLogger() Logger {
	return makeFlaggableLogger(bootstrap, Fields{"layer": "bootstrap"})
}

// GdbMI returns true if the gdbmi package should log all the records
// exchanged with gdb.
func GdbMI() bool {
	return gdbMI
}

// GdbMILogger returns a configured logger for the GDB/MI wire protocol.
func GdbMILogger() Logger {
	return makeFlaggableLogger(gdbMI, Fields{"layer": "gdbmi"})
}

// Host returns true if the host binding should log stop events and
// condition evaluations.
func Host() bool {
	return host
}

// HostLogger returns a logger for the gdbhost package.
func HostLogger() Logger {
	return makeFlaggableLogger(host, Fields{"layer": "host"})
}

// Terminal returns true if the terminal should log the commands it runs.
func Terminal() bool {
	return terminal
}

// TerminalLogger returns a logger for the terminal package.
func TerminalLogger() Logger {
	return makeFlaggableLogger(terminal, Fields{"layer": "terminal"})
}

// GdbOutput returns true if gdb's log stream (the '&' records) should be
// copied to standard error instead of being dropped.
func GdbOutput() bool {
	return gdbOutput
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "gdbboot-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "bootstrap"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "bootstrap":
			bootstrap = true
		case "gdbmi":
			gdbMI = true
		case "host":
			host = true
		case "terminal":
			terminal = true
		case "gdbout":
			gdbOutput = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	b.WriteString(entry.Time.Format("2006-01-02T15:04:05Z07:00"))
	b.WriteByte(' ')
	b.WriteString(entry.Level.String())
	b.WriteByte(' ')
	for k, v := range entry.Data {
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprint(&b, v)
		b.WriteByte(',')
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
