package gdbmi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crossdev/gdbboot/pkg/logflags"
)

const miWireMaxLen = 120

// ErrClosed is returned by Exec once gdb has exited or closed its output.
var ErrClosed = errors.New("gdb connection closed")

// CommandError is an ^error result record.
type CommandError struct {
	Op   string
	Msg  string
	Code string
}

func (err *CommandError) Error() string {
	if err.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", err.Op, err.Msg, err.Code)
	}
	return fmt.Sprintf("%s: %s", err.Op, err.Msg)
}

// Conn is a GDB/MI connection. Commands can be issued from any goroutine;
// each waits for its own result record.
type Conn struct {
	w   io.Writer
	wmu sync.Mutex

	mu      sync.Mutex
	next    uint64
	pending map[uint64]chan *Record
	closed  chan struct{}
	err     error

	events  chan *Record
	console io.Writer

	log logflags.Logger
}

// NewConn returns a connection reading gdb output from r and writing
// commands to w. Console and target stream output is copied to console,
// which may be nil.
func NewConn(r io.Reader, w io.Writer, console io.Writer) *Conn {
	if console == nil {
		console = io.Discard
	}
	c := &Conn{
		w:       w,
		pending: make(map[uint64]chan *Record),
		closed:  make(chan struct{}),
		events:  make(chan *Record, 64),
		console: console,
		log:     logflags.GdbMILogger(),
	}
	go c.readLoop(r)
	return c
}

// Events returns the channel of exec async records (*running, *stopped).
// It is closed when the connection closes.
func (c *Conn) Events() <-chan *Record {
	return c.events
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns the reason the connection closed, nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Exec sends a command and waits for its result record. An ^error result
// is returned as a *CommandError.
func (c *Conn) Exec(ctx context.Context, op string, args ...string) (*Record, error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.next++
	tok := c.next
	ch := make(chan *Record, 1)
	c.pending[tok] = ch
	c.mu.Unlock()

	line := fmt.Sprintf("%d%s\n", tok, Command(op, args...))
	if logflags.GdbMI() {
		c.logLine("<- ", line[:len(line)-1])
	}
	c.wmu.Lock()
	_, err := io.WriteString(c.w, line)
	c.wmu.Unlock()
	if err != nil {
		c.forget(tok)
		return nil, err
	}

	select {
	case rec := <-ch:
		return resultOf(op, rec)
	case <-c.closed:
		select {
		case rec := <-ch:
			return resultOf(op, rec)
		default:
		}
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(tok)
		return nil, ctx.Err()
	}
}

func resultOf(op string, rec *Record) (*Record, error) {
	if rec.Class == "error" {
		return rec, &CommandError{Op: op, Msg: rec.Results.String("msg"), Code: rec.Results.String("code")}
	}
	return rec, nil
}

func (c *Conn) forget(tok uint64) {
	c.mu.Lock()
	delete(c.pending, tok)
	c.mu.Unlock()
}

func (c *Conn) logLine(dir, line string) {
	if len(line) > miWireMaxLen {
		c.log.Debugf("%s%s...", dir, line[:miWireMaxLen])
	} else {
		c.log.Debugf("%s%s", dir, line)
	}
}

func (c *Conn) readLoop(r io.Reader) {
	rdr := bufio.NewReader(r)
	var err error
	for {
		var line string
		line, err = rdr.ReadString('\n')
		if line != "" && line != "\n" {
			if logflags.GdbMI() {
				c.logLine("-> ", line[:len(line)-1])
			}
			if c.dispatch(line) {
				err = io.EOF
				break
			}
		}
		if err != nil {
			break
		}
	}
	c.shutdown(err)
}

// dispatch routes one output line, returning true when gdb announced it
// is exiting.
func (c *Conn) dispatch(line string) bool {
	rec, err := Parse(line)
	if err != nil {
		// gdb sometimes prints raw text (e.g. from the inferior or from
		// python scripts) on its stdout; pass it through.
		c.log.Debugf("non MI output: %v", err)
		io.WriteString(c.console, line)
		return false
	}
	switch rec.Kind {
	case ResultRecord:
		if !rec.HasToken {
			c.log.Debugf("untokenized result %s", rec.Class)
			return rec.Class == "exit"
		}
		c.mu.Lock()
		ch := c.pending[rec.Token]
		delete(c.pending, rec.Token)
		c.mu.Unlock()
		if ch != nil {
			ch <- rec
		}
		return rec.Class == "exit"
	case ExecAsync:
		select {
		case c.events <- rec:
		case <-c.closed:
		}
	case ConsoleStream, TargetStream:
		io.WriteString(c.console, rec.Stream)
	case LogStream:
		if logflags.GdbOutput() {
			io.WriteString(os.Stderr, rec.Stream)
		}
	case StatusAsync, NotifyAsync:
		if logflags.GdbMI() {
			c.log.Debugf("%s %s", rec.Kind, rec.Class)
		}
	}
	return false
}

func (c *Conn) shutdown(err error) {
	if err == nil || err == io.EOF {
		err = ErrClosed
	}
	c.mu.Lock()
	if c.err == nil {
		c.err = err
		close(c.closed)
		close(c.events)
	}
	c.mu.Unlock()
}
