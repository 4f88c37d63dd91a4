// Package gdbscript writes the bootstrap sequence as a gdb command file,
// for sessions where gdb is started by hand ("gdb-multiarch -x FILE").
package gdbscript

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/gdbmi"
)

// ErrNotExpressible is returned for conditional breakpoints whose
// condition only exists as Go code.
var ErrNotExpressible = errors.New("condition cannot be expressed as a gdb expression")

// Options are the lines written before the bootstrap commands.
type Options struct {
	// Arch, if set, is passed to "set architecture".
	Arch string
	// Remote, if set, is the address of the stub to connect to after the
	// breakpoints are installed.
	Remote string
}

// Writer is a bootstrap.Session writing gdb CLI commands.
type Writer struct {
	w    *bufio.Writer
	opts Options
	err  error
}

var _ bootstrap.Session = &Writer{}

// NewWriter writes the script header to w and returns the session.
func NewWriter(w io.Writer, opts Options) *Writer {
	sw := &Writer{w: bufio.NewWriter(w), opts: opts}
	sw.line("set confirm off")
	sw.line("set pagination off")
	if opts.Arch != "" {
		sw.line("set architecture " + opts.Arch)
	}
	return sw
}

func (sw *Writer) line(s string) error {
	if sw.err != nil {
		return sw.err
	}
	_, sw.err = fmt.Fprintln(sw.w, s)
	return sw.err
}

func (sw *Writer) SetExecutable(path string) error {
	return sw.line("file " + gdbmi.QuoteCLI(path))
}

func (sw *Writer) AddSymbolFile(path string) error {
	return sw.line("add-symbol-file " + gdbmi.QuoteCLI(path))
}

func (sw *Writer) AddBreakpoint(loc bootstrap.Location) error {
	return sw.line("break " + loc.String())
}

func (sw *Writer) AddConditionalBreakpoint(loc bootstrap.Location, cond bootstrap.Condition) error {
	e, ok := cond.(bootstrap.Expressioner)
	if !ok {
		return fmt.Errorf("breakpoint at %s: %w", loc, ErrNotExpressible)
	}
	return sw.line(fmt.Sprintf("break %s if %s", loc, e.Expression()))
}

// Close writes the trailer of the script and flushes it.
func (sw *Writer) Close() error {
	if sw.opts.Remote != "" {
		sw.line("target remote " + sw.opts.Remote)
	}
	if sw.err != nil {
		return sw.err
	}
	return sw.w.Flush()
}
