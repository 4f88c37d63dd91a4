package gdbmi

import (
	"reflect"
	"testing"
)

func TestParseResult(t *testing.T) {
	rec, err := Parse(`12^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",addr="0x0000000080000000",func="_start",thread-groups=["i1"],times="0"}` + "\n")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.HasToken || rec.Token != 12 {
		t.Fatalf("expected token 12; got %d (%v)", rec.Token, rec.HasToken)
	}
	if rec.Kind != ResultRecord || rec.Class != "done" {
		t.Fatalf("unexpected kind/class %v %q", rec.Kind, rec.Class)
	}
	bkpt := rec.Results.Tuple("bkpt")
	if bkpt.String("number") != "1" || bkpt.String("func") != "_start" {
		t.Fatalf("unexpected bkpt %#v", bkpt)
	}
	if addr, ok := bkpt.Uint("addr"); !ok || addr != 0x80000000 {
		t.Fatalf("unexpected addr %#x", addr)
	}
	if groups := bkpt.List("thread-groups"); !reflect.DeepEqual(groups, List{"i1"}) {
		t.Fatalf("unexpected thread-groups %#v", groups)
	}
}

func TestParseStopped(t *testing.T) {
	rec, err := Parse(`*stopped,reason="breakpoint-hit",disp="keep",bkptno="4",frame={addr="0x0000000080200000",func="_start_kernel",args=[],file="head.S",line="52"},thread-id="1",stopped-threads="all"`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.HasToken || rec.Kind != ExecAsync || rec.Class != "stopped" {
		t.Fatalf("unexpected record %#v", rec)
	}
	if rec.Results.String("reason") != "breakpoint-hit" || rec.Results.String("bkptno") != "4" {
		t.Fatalf("unexpected results %#v", rec.Results)
	}
	frame := rec.Results.Tuple("frame")
	if frame.String("line") != "52" {
		t.Fatalf("unexpected frame %#v", frame)
	}
	if args := frame.List("args"); args == nil || len(args) != 0 {
		t.Fatalf("expected empty args list; got %#v", args)
	}
}

func TestParseResultList(t *testing.T) {
	rec, err := Parse(`3^done,stack=[frame={level="0",addr="0x80000000"},frame={level="1",addr="0x80000010"}]`)
	if err != nil {
		t.Fatal(err)
	}
	stack := rec.Results.List("stack")
	if len(stack) != 2 {
		t.Fatalf("expected 2 frames; got %d", len(stack))
	}
	f1, ok := stack[1].(Result)
	if !ok || f1.Name != "frame" || f1.Value.(Tuple).String("addr") != "0x80000010" {
		t.Fatalf("unexpected frame %#v", stack[1])
	}
}

func TestParseStreams(t *testing.T) {
	for _, tc := range []struct {
		in     string
		kind   Kind
		stream string
	}{
		{`~"GNU gdb (GDB) 14.2\n"`, ConsoleStream, "GNU gdb (GDB) 14.2\n"},
		{`@"hello \"world\"\t"`, TargetStream, "hello \"world\"\t"},
		{`&"add-symbol-file /w/vmlinux\n"`, LogStream, "add-symbol-file /w/vmlinux\n"},
		{`~"\033[1mbold\177"`, ConsoleStream, "\x1b[1mbold\x7f"},
		{`~"back\\slash"`, ConsoleStream, `back\slash`},
	} {
		rec, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if rec.Kind != tc.kind || rec.Stream != tc.stream {
			t.Fatalf("%s: expected %v %q; got %v %q", tc.in, tc.kind, tc.stream, rec.Kind, rec.Stream)
		}
	}
}

func TestParsePromptAndNotify(t *testing.T) {
	rec, err := Parse("(gdb) ")
	if err != nil || rec.Kind != PromptRecord {
		t.Fatalf("unexpected prompt parse %#v %v", rec, err)
	}
	rec, err = Parse(`=thread-group-added,id="i1"`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != NotifyAsync || rec.Class != "thread-group-added" || rec.Results.String("id") != "i1" {
		t.Fatalf("unexpected record %#v", rec)
	}
	rec, err = Parse(`5^error,msg="No symbol \"currentCPU\" in current context."`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Class != "error" || rec.Results.String("msg") != `No symbol "currentCPU" in current context.` {
		t.Fatalf("unexpected record %#v", rec)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"12",
		"^",
		`^done,`,
		`^done,a=`,
		`^done,a="x`,
		`^done,a={b="1"`,
		`^done,a=["1"`,
		`^done,a=[`,
		`^done,a="1"junk`,
		`!weird`,
		`~unquoted`,
	} {
		if rec, err := Parse(in); err == nil {
			t.Fatalf("%q: expected error; got %#v", in, rec)
		}
	}
}

func TestQuote(t *testing.T) {
	for _, tc := range []struct{ in, out string }{
		{"*0x80000000", "*0x80000000"},
		{"fw_main", "fw_main"},
		{"", `""`},
		{"add-symbol-file /tmp/my ws/vmlinux", `"add-symbol-file /tmp/my ws/vmlinux"`},
		{`say "hi"`, `"say \"hi\""`},
		{"a\\b", `"a\\b"`},
	} {
		if got := Quote(tc.in); got != tc.out {
			t.Fatalf("Quote(%q): expected %s; got %s", tc.in, tc.out, got)
		}
	}
	if got := Command("-interpreter-exec", "console", "info registers pc"); got != `-interpreter-exec console "info registers pc"` {
		t.Fatalf("unexpected command %s", got)
	}
}

func TestQuoteCLI(t *testing.T) {
	for _, tc := range []struct{ in, out string }{
		{"/w/riscv/linux/build/vmlinux", "/w/riscv/linux/build/vmlinux"},
		{"/my ws/vmlinux", `"/my ws/vmlinux"`},
		{`/w/"q"`, `"/w/\"q\""`},
	} {
		if got := QuoteCLI(tc.in); got != tc.out {
			t.Fatalf("QuoteCLI(%q): expected %s; got %s", tc.in, tc.out, got)
		}
	}
}
