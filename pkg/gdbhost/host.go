// Package gdbhost binds the bootstrap session to a gdb driven over
// GDB/MI.
package gdbhost

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/gdbmi"
	"github.com/crossdev/gdbboot/pkg/logflags"
	"github.com/crossdev/gdbboot/pkg/rvdisasm"
)

// DefaultArch is the gdb architecture of the boot harts.
const DefaultArch = "riscv:rv64"

// Host implements bootstrap.Session over a gdb MI connection.
type Host struct {
	conn *gdbmi.Conn

	// Timeout bounds every command; zero means no timeout.
	Timeout time.Duration
	// OnStop is called for every stop reported to the user.
	OnStop func(Stop)

	mu    sync.Mutex
	conds map[string]bootstrap.Condition

	log logflags.Logger
}

var _ bootstrap.Session = &Host{}
var _ bootstrap.Evaluator = &Host{}

// New returns a host driving conn.
func New(conn *gdbmi.Conn) *Host {
	return &Host{
		conn:  conn,
		conds: make(map[string]bootstrap.Condition),
		log:   logflags.HostLogger(),
	}
}

func (h *Host) exec(op string, args ...string) (*gdbmi.Record, error) {
	ctx := context.Background()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	return h.conn.Exec(ctx, op, args...)
}

// Prepare disables interactive confirmations and paging, enables
// asynchronous execution so the target can be interrupted, and selects
// arch if it is not empty.
func (h *Host) Prepare(arch string) error {
	settings := [][]string{
		{"confirm", "off"},
		{"pagination", "off"},
		{"mi-async", "on"},
	}
	if arch != "" {
		settings = append(settings, []string{"architecture", arch})
	}
	for _, s := range settings {
		if _, err := h.exec("-gdb-set", s...); err != nil {
			return err
		}
	}
	return nil
}

// SetExecutable makes path the primary executable.
func (h *Host) SetExecutable(path string) error {
	_, err := h.exec("-file-exec-and-symbols", path)
	return err
}

// AddSymbolFile loads path as a supplementary symbol table.
func (h *Host) AddSymbolFile(path string) error {
	return h.Console("add-symbol-file " + gdbmi.QuoteCLI(path))
}

// AddBreakpoint installs a breakpoint at loc.
func (h *Host) AddBreakpoint(loc bootstrap.Location) error {
	_, err := h.insert(loc)
	return err
}

// AddConditionalBreakpoint installs a breakpoint at loc and evaluates cond
// every time it is hit, resuming the target when cond says so.
func (h *Host) AddConditionalBreakpoint(loc bootstrap.Location, cond bootstrap.Condition) error {
	if cond == nil {
		return errors.New("nil condition")
	}
	// Inserted disabled so that no hit can be seen before cond is known.
	num, err := h.insert(loc, "-d")
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.conds[num] = cond
	h.mu.Unlock()
	if _, err := h.exec("-break-enable", num); err != nil {
		h.mu.Lock()
		delete(h.conds, num)
		h.mu.Unlock()
		return err
	}
	if logflags.Host() {
		h.log.Debugf("breakpoint %s at %s is conditional", num, loc)
	}
	return nil
}

func (h *Host) insert(loc bootstrap.Location, opts ...string) (string, error) {
	rec, err := h.exec("-break-insert", append(opts, loc.String())...)
	if err != nil {
		return "", err
	}
	num := rec.Results.Tuple("bkpt").String("number")
	if num == "" {
		return "", fmt.Errorf("no breakpoint number in reply to -break-insert %s", loc)
	}
	return num, nil
}

// Conditional returns the condition attached to breakpoint number num.
func (h *Host) Conditional(num string) bootstrap.Condition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conds[num]
}

// Connect attaches gdb to the remote stub at addr, usually the QEMU
// gdbstub at localhost:1234.
func (h *Host) Connect(addr string) error {
	_, err := h.exec("-target-select", "remote", addr)
	return err
}

// Continue resumes the target.
func (h *Host) Continue() error {
	_, err := h.exec("-exec-continue")
	return err
}

// Interrupt stops the running target.
func (h *Host) Interrupt() error {
	_, err := h.exec("-exec-interrupt")
	return err
}

// Console runs line through gdb's CLI interpreter. Its output goes to the
// console writer of the connection.
func (h *Host) Console(line string) error {
	_, err := h.exec("-interpreter-exec", "console", line)
	return err
}

// Evaluate evaluates expr in the context of the selected frame.
func (h *Host) Evaluate(expr string) (string, error) {
	rec, err := h.exec("-data-evaluate-expression", expr)
	if err != nil {
		return "", err
	}
	return rec.Results.String("value"), nil
}

// ReadMemory reads n bytes of target memory at addr.
func (h *Host) ReadMemory(addr uint64, n int) ([]byte, error) {
	rec, err := h.exec("-data-read-memory-bytes", fmt.Sprintf("%#x", addr), strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	var r []byte
	for _, v := range rec.Results.List("memory") {
		blk, ok := v.(gdbmi.Tuple)
		if !ok {
			continue
		}
		b, err := hex.DecodeString(blk.String("contents"))
		if err != nil {
			return nil, fmt.Errorf("bad memory contents: %v", err)
		}
		r = append(r, b...)
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("could not read memory at %#x", addr)
	}
	return r, nil
}

// PC returns the program counter of the selected thread.
func (h *Host) PC() (uint64, error) {
	s, err := h.Evaluate("$pc")
	if err != nil {
		return 0, err
	}
	// gdb prints code pointers as "(void (*)()) 0x80200000 <sym>".
	for _, f := range strings.Fields(s) {
		if v, ok := bootstrap.ParseInt(f); ok {
			return uint64(v), nil
		}
	}
	return 0, fmt.Errorf("unexpected pc value %q", s)
}

// Disassemble decodes count instructions starting at addr.
func (h *Host) Disassemble(addr uint64, count int) ([]rvdisasm.Instruction, error) {
	mem, err := h.ReadMemory(addr, count*rvdisasm.MaxInstLen)
	if err != nil {
		return nil, err
	}
	insts, err := rvdisasm.DecodeAll(addr, mem)
	if len(insts) > count {
		insts = insts[:count]
	}
	return insts, err
}
