package gdbhost_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/gdbhost"
	"github.com/crossdev/gdbboot/pkg/gdbmi"
	"github.com/crossdev/gdbboot/pkg/gdbmi/gdbmitest"
)

// fakeGdb answers like a gdb with a riscv target loaded. The value of
// currentCPU can be changed while the test runs.
type fakeGdb struct {
	mu         sync.Mutex
	bkpt       int
	currentCPU string
	failOn     string
}

func (g *fakeGdb) handle(cmd string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn != "" && strings.HasPrefix(cmd, g.failOn) {
		return []string{`^error,msg="No such file or directory."`}
	}
	switch {
	case strings.HasPrefix(cmd, "-break-insert"):
		g.bkpt++
		return []string{fmt.Sprintf(`^done,bkpt={number="%d",type="breakpoint"}`, g.bkpt)}
	case cmd == "-data-evaluate-expression currentCPU":
		if g.currentCPU == "" {
			return []string{`^error,msg="No symbol \"currentCPU\" in current context."`}
		}
		return []string{`^done,value="` + g.currentCPU + `"`}
	case cmd == "-data-evaluate-expression $pc":
		return []string{`^done,value="(void (*)()) 0x80200000 <_start_kernel>"`}
	case strings.HasPrefix(cmd, "-data-read-memory-bytes"):
		return []string{`^done,memory=[{begin="0x80200000",offset="0x0",end="0x80200004",contents="97020000"}]`}
	case cmd == "-exec-continue":
		return []string{"^running", `*running,thread-id="all"`}
	}
	return []string{"^done"}
}

func (g *fakeGdb) set(cpu string) {
	g.mu.Lock()
	g.currentCPU = cpu
	g.mu.Unlock()
}

func TestInitializeOverMI(t *testing.T) {
	g := &fakeGdb{}
	f := gdbmitest.New(g.handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	if err := h.Prepare(gdbhost.DefaultArch); err != nil {
		t.Fatal(err)
	}
	if err := bootstrap.Initialize(bootstrap.DefaultConfig("/tmp/ws"), h); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"-gdb-set confirm off",
		"-gdb-set pagination off",
		"-gdb-set mi-async on",
		"-gdb-set architecture riscv:rv64",
		"-file-exec-and-symbols /tmp/ws/riscv/opensbi/build/platform/generic/firmware/fw_jump.elf",
		`-interpreter-exec console "add-symbol-file /tmp/ws/riscv/linux/build/vmlinux"`,
		"-break-insert *0x80000000",
		"-break-insert *0x80200000",
		"-break-insert fw_main",
	}
	if got := f.Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected\n%s\ngot\n%s", strings.Join(want, "\n"), strings.Join(got, "\n"))
	}
}

func TestInitializeOverMIFailFast(t *testing.T) {
	g := &fakeGdb{failOn: "-file-exec-and-symbols"}
	f := gdbmitest.New(g.handle)
	defer f.Close()

	err := bootstrap.Initialize(bootstrap.DefaultConfig("/tmp/ws"), gdbhost.New(f.Conn))
	var cerr *gdbmi.CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *gdbmi.CommandError; got %v", err)
	}
	if n := len(f.Commands()); n != 1 {
		t.Fatalf("expected setup to stop after the first command; got %q", f.Commands())
	}
}

func serve(t *testing.T, h *gdbhost.Host) (chan gdbhost.Stop, func()) {
	stops := make(chan gdbhost.Stop, 4)
	h.OnStop = func(st gdbhost.Stop) { stops <- st }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Serve(ctx) }()
	return stops, func() {
		cancel()
		if err := <-done; err != context.Canceled {
			t.Errorf("unexpected Serve error %v", err)
		}
	}
}

const hitBkpt1 = `*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x0000000080200000",func="_start_kernel",args=[]},thread-id="4",stopped-threads="all"`

func waitCommand(t *testing.T, f *gdbmitest.Fake, cmd string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range f.Commands() {
			if c == cmd {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("command %q never sent; got %q", cmd, f.Commands())
}

func TestConditionalResume(t *testing.T) {
	g := &fakeGdb{currentCPU: "1"}
	f := gdbmitest.New(g.handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	if err := bootstrap.Attach(h, bootstrap.AddrLocation(0x80200000), 3); err != nil {
		t.Fatal(err)
	}
	stops, stop := serve(t, h)
	defer stop()

	f.Emit(hitBkpt1)
	waitCommand(t, f, "-exec-continue")
	select {
	case st := <-stops:
		t.Fatalf("unexpected stop reported: %v", st)
	case <-time.After(50 * time.Millisecond):
	}

	g.set("3")
	f.Emit(hitBkpt1)
	select {
	case st := <-stops:
		if st.Breakpoint != "1" || st.Addr != 0x80200000 || st.Func != "_start_kernel" || st.Err != nil {
			t.Fatalf("unexpected stop %#v", st)
		}
		if st.Inst == nil || !strings.HasPrefix(st.Inst.Text, "auipc") {
			t.Fatalf("expected decoded instruction; got %v", st.Inst)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stop not reported")
	}
}

func TestConditionalInsertedDisabled(t *testing.T) {
	f := gdbmitest.New((&fakeGdb{}).handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	if err := bootstrap.Attach(h, bootstrap.AddrLocation(0x80200000), 3); err != nil {
		t.Fatal(err)
	}
	want := []string{"-break-insert -d *0x80200000", "-break-enable 1"}
	if got := f.Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q; got %q", want, got)
	}
	if h.Conditional("1") == nil {
		t.Fatalf("condition not registered")
	}
}

func TestConditionalEnableFails(t *testing.T) {
	f := gdbmitest.New((&fakeGdb{failOn: "-break-enable"}).handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	if err := h.AddConditionalBreakpoint(bootstrap.SymbolLocation("fw_main"), bootstrap.CurrentCPU(3)); err == nil {
		t.Fatalf("expected error")
	}
	if h.Conditional("1") != nil {
		t.Fatalf("condition left registered for a disabled breakpoint")
	}
}

func TestConditionalEvaluationError(t *testing.T) {
	g := &fakeGdb{}
	f := gdbmitest.New(g.handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	if err := h.AddConditionalBreakpoint(bootstrap.SymbolLocation("sbi_init"), bootstrap.CurrentCPU(3)); err != nil {
		t.Fatal(err)
	}
	stops, stop := serve(t, h)
	defer stop()

	f.Emit(hitBkpt1)
	select {
	case st := <-stops:
		var cerr *gdbmi.CommandError
		if !errors.As(st.Err, &cerr) {
			t.Fatalf("expected evaluation error to be reported; got %#v", st)
		}
		if !strings.Contains(st.String(), "condition failed") {
			t.Fatalf("unexpected stop text %q", st.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stop not reported")
	}
	for _, c := range f.Commands() {
		if c == "-exec-continue" {
			t.Fatalf("target resumed after evaluation error")
		}
	}
}

func TestUnconditionalStop(t *testing.T) {
	f := gdbmitest.New((&fakeGdb{}).handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	stops, stop := serve(t, h)
	defer stop()

	f.Emit(`*stopped,reason="signal-received",signal-name="SIGINT",frame={addr="0x0000000080200000",func="??"}`)
	select {
	case st := <-stops:
		if st.Reason != "signal-received" {
			t.Fatalf("unexpected stop %#v", st)
		}
		if !strings.HasPrefix(st.String(), "signal received at 0x80200000") {
			t.Fatalf("unexpected stop text %q", st.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stop not reported")
	}
}

func TestPCAndDisassemble(t *testing.T) {
	f := gdbmitest.New((&fakeGdb{}).handle)
	defer f.Close()

	h := gdbhost.New(f.Conn)
	pc, err := h.PC()
	if err != nil {
		t.Fatal(err)
	}
	if pc != 0x80200000 {
		t.Fatalf("expected pc 0x80200000; got %#x", pc)
	}
	insts, err := h.Disassemble(pc, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 1 || insts[0].Len != 4 {
		t.Fatalf("unexpected instructions %v", insts)
	}
}

func TestServeEndsWithGdb(t *testing.T) {
	f := gdbmitest.New(nil)
	h := gdbhost.New(f.Conn)
	done := make(chan error)
	go func() { done <- h.Serve(context.Background()) }()
	f.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return")
	}
}
