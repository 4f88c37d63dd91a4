// Package gdbmitest provides a scripted stand-in for a gdb process
// speaking GDB/MI, for use in tests.
package gdbmitest

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/crossdev/gdbboot/pkg/gdbmi"
)

// Handler answers one command (without its token). Returned lines
// starting with '^' are result records and get the command token
// prepended; every other line is written as is.
type Handler func(cmd string) []string

// Fake is a fake gdb connected to a gdbmi.Conn.
type Fake struct {
	Conn *gdbmi.Conn

	handler Handler
	out     *io.PipeWriter
	wmu     sync.Mutex

	mu       sync.Mutex
	commands []string
	console  bytes.Buffer
}

// New starts a fake gdb answering with h. A nil h answers ^done to
// everything.
func New(h Handler) *Fake {
	if h == nil {
		h = func(string) []string { return []string{"^done"} }
	}
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	f := &Fake{handler: h, out: outW}
	f.Conn = gdbmi.NewConn(outR, cmdW, consoleWriter{f})
	go f.serve(cmdR)
	return f
}

func (f *Fake) serve(r io.Reader) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		tok, cmd := line[:i], line[i:]
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		f.mu.Unlock()

		var b strings.Builder
		for _, out := range f.handler(cmd) {
			if strings.HasPrefix(out, "^") {
				b.WriteString(tok)
			}
			b.WriteString(out)
			b.WriteByte('\n')
		}
		b.WriteString("(gdb) \n")
		f.Emit(b.String())
	}
}

// Emit writes raw output lines, e.g. async records, to the connection.
func (f *Fake) Emit(s string) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	f.out.Write([]byte(s))
}

// Commands returns the commands received so far, without tokens.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Console returns the console output received by the connection so far.
func (f *Fake) Console() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.console.String()
}

// Close simulates gdb exiting.
func (f *Fake) Close() {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	f.out.Close()
}

type consoleWriter struct {
	f *Fake
}

func (w consoleWriter) Write(p []byte) (int, error) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	return w.f.console.Write(p)
}
