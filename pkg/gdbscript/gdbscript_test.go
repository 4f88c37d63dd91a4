package gdbscript

import (
	"bytes"
	"errors"
	"testing"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
)

func TestWriteScript(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{Arch: "riscv:rv64", Remote: "localhost:1234"})
	cfg := bootstrap.DefaultConfig("/home/dev/.crossdev")
	cfg.Conditional = []bootstrap.ConditionalBreakpoint{
		{Location: bootstrap.SymbolLocation("sbi_hsm_hart_start"), Condition: bootstrap.CurrentCPU(3)},
	}
	if err := bootstrap.Initialize(cfg, w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	const expected = `set confirm off
set pagination off
set architecture riscv:rv64
file /home/dev/.crossdev/riscv/opensbi/build/platform/generic/firmware/fw_jump.elf
add-symbol-file /home/dev/.crossdev/riscv/linux/build/vmlinux
break *0x80000000
break *0x80200000
break fw_main
break sbi_hsm_hart_start if currentCPU == 3
target remote localhost:1234
`
	if buf.String() != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, buf.String())
	}
}

func TestQuotedPaths(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{})
	if err := bootstrap.Initialize(bootstrap.DefaultConfig("/home/dev/my work"), w); err != nil {
		t.Fatal(err)
	}
	w.Close()
	if !bytes.Contains(buf.Bytes(), []byte(`add-symbol-file "/home/dev/my work/riscv/linux/build/vmlinux"`)) {
		t.Fatalf("path not quoted:\n%s", buf.String())
	}
}

func TestNotExpressible(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{})
	cond := bootstrap.ConditionFunc(func(bootstrap.Evaluator) (bool, error) { return true, nil })
	err := w.AddConditionalBreakpoint(bootstrap.SymbolLocation("fw_main"), cond)
	if !errors.Is(err, ErrNotExpressible) {
		t.Fatalf("expected ErrNotExpressible; got %v", err)
	}
}
