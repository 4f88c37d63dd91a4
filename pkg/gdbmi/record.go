// Package gdbmi implements a client for the GDB machine interface (GDB/MI).
//
// GDB/MI is a line oriented protocol: the client writes commands, optionally
// prefixed with a numeric token, and gdb answers with a result record
// carrying the same token. In between gdb emits asynchronous records (target
// state changes, notifications) and stream records (console output, log
// messages). See the "GDB/MI" chapter of the gdb manual.
package gdbmi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the kind of an output record, identified by its prefix
// character.
type Kind byte

const (
	ResultRecord  Kind = '^'
	ExecAsync     Kind = '*'
	StatusAsync   Kind = '+'
	NotifyAsync   Kind = '='
	ConsoleStream Kind = '~'
	TargetStream  Kind = '@'
	LogStream     Kind = '&'
	PromptRecord  Kind = '('
)

func (k Kind) String() string {
	switch k {
	case ResultRecord:
		return "result"
	case ExecAsync:
		return "exec"
	case StatusAsync:
		return "status"
	case NotifyAsync:
		return "notify"
	case ConsoleStream:
		return "console"
	case TargetStream:
		return "target"
	case LogStream:
		return "log"
	case PromptRecord:
		return "prompt"
	}
	return fmt.Sprintf("Kind(%q)", byte(k))
}

// Record is one line of gdb output.
type Record struct {
	Token    uint64
	HasToken bool
	Kind     Kind
	// Class is the result or async class: "done", "error", "stopped",
	// "breakpoint-created"...
	Class   string
	Results Tuple
	// Stream is the decoded text of a stream record.
	Stream string
}

// Value is one of string, Tuple or List.
type Value interface{}

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// Tuple is an ordered set of results, written {a=..,b=..} by gdb.
type Tuple []Result

// List is written [..] by gdb. Its elements are either all values or all
// Results.
type List []Value

// Get returns the value of the first result called name.
func (t Tuple) Get(name string) (Value, bool) {
	for _, r := range t {
		if r.Name == name {
			return r.Value, true
		}
	}
	return nil, false
}

// String returns the string value of name, or "" if it is missing or not
// a string.
func (t Tuple) String(name string) string {
	v, _ := t.Get(name)
	s, _ := v.(string)
	return s
}

// Tuple returns the tuple value of name.
func (t Tuple) Tuple(name string) Tuple {
	v, _ := t.Get(name)
	r, _ := v.(Tuple)
	return r
}

// List returns the list value of name.
func (t Tuple) List(name string) List {
	v, _ := t.Get(name)
	r, _ := v.(List)
	return r
}

// Uint returns the value of name parsed as an unsigned integer, accepting
// the 0x prefix gdb uses for addresses.
func (t Tuple) Uint(name string) (uint64, bool) {
	s := t.String(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 0, 64)
	return v, err == nil
}

// ParseError is returned by Parse for malformed lines.
type ParseError struct {
	Line string
	Pos  int
	Msg  string
}

func (err *ParseError) Error() string {
	line := err.Line
	if len(line) > 40 {
		line = line[:40] + "..."
	}
	return fmt.Sprintf("malformed MI record at %d: %s: %q", err.Pos, err.Msg, line)
}

var errEmptyLine = errors.New("empty MI line")

// Parse parses one line of gdb output.
func Parse(line string) (*Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errEmptyLine
	}
	if strings.HasPrefix(line, "(gdb)") {
		return &Record{Kind: PromptRecord}, nil
	}
	p := &parser{s: line}
	rec := &Record{}

	start := p.i
	for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
		p.i++
	}
	if p.i > start {
		tok, err := strconv.ParseUint(p.s[start:p.i], 10, 64)
		if err != nil {
			return nil, p.errorf("bad token: %v", err)
		}
		rec.Token, rec.HasToken = tok, true
	}

	if p.eof() {
		return nil, p.errorf("missing record type")
	}
	rec.Kind = Kind(p.s[p.i])
	p.i++

	switch rec.Kind {
	case ConsoleStream, TargetStream, LogStream:
		s, err := p.cstring()
		if err != nil {
			return nil, err
		}
		rec.Stream = s
	case ResultRecord, ExecAsync, StatusAsync, NotifyAsync:
		rec.Class = p.ident()
		if rec.Class == "" {
			return nil, p.errorf("missing class")
		}
		for !p.eof() {
			if err := p.expect(','); err != nil {
				return nil, err
			}
			r, err := p.result()
			if err != nil {
				return nil, err
			}
			rec.Results = append(rec.Results, r)
		}
	default:
		return nil, p.errorf("unknown record type %q", byte(rec.Kind))
	}
	if !p.eof() {
		return nil, p.errorf("trailing characters")
	}
	return rec, nil
}

type parser struct {
	s string
	i int
}

func (p *parser) eof() bool {
	return p.i >= len(p.s)
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.s, Pos: p.i, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(ch byte) error {
	if p.eof() || p.s[p.i] != ch {
		return p.errorf("expected %q", ch)
	}
	p.i++
	return nil
}

// ident reads a variable or class name: everything up to '=' ',' or a
// bracket.
func (p *parser) ident() string {
	start := p.i
	for !p.eof() {
		switch p.s[p.i] {
		case '=', ',', '{', '}', '[', ']', '"':
			return p.s[start:p.i]
		}
		p.i++
	}
	return p.s[start:p.i]
}

func (p *parser) result() (Result, error) {
	name := p.ident()
	if name == "" {
		return Result{}, p.errorf("missing variable name")
	}
	if err := p.expect('='); err != nil {
		return Result{}, err
	}
	v, err := p.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (p *parser) value() (Value, error) {
	if p.eof() {
		return nil, p.errorf("missing value")
	}
	switch p.s[p.i] {
	case '"':
		return p.cstring()
	case '{':
		p.i++
		t := Tuple{}
		if !p.eof() && p.s[p.i] == '}' {
			p.i++
			return t, nil
		}
		for {
			r, err := p.result()
			if err != nil {
				return nil, err
			}
			t = append(t, r)
			if p.eof() {
				return nil, p.errorf("unterminated tuple")
			}
			if p.s[p.i] == '}' {
				p.i++
				return t, nil
			}
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
	case '[':
		p.i++
		l := List{}
		if !p.eof() && p.s[p.i] == ']' {
			p.i++
			return l, nil
		}
		for {
			if p.eof() {
				return nil, p.errorf("unterminated list")
			}
			var v Value
			var err error
			if c := p.s[p.i]; c == '"' || c == '{' || c == '[' {
				v, err = p.value()
			} else {
				v, err = p.result()
			}
			if err != nil {
				return nil, err
			}
			l = append(l, v)
			if p.eof() {
				return nil, p.errorf("unterminated list")
			}
			if p.s[p.i] == ']' {
				p.i++
				return l, nil
			}
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
	}
	return nil, p.errorf("unexpected %q", p.s[p.i])
}

// cstring decodes a C string constant, including the octal escapes gdb
// uses for non printable bytes.
func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string")
		}
		ch := p.s[p.i]
		p.i++
		switch ch {
		case '"':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			esc := p.s[p.i]
			p.i++
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'e':
				b.WriteByte(0x1b)
			case 'a':
				b.WriteByte('\a')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'v':
				b.WriteByte('\v')
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(esc - '0')
				for k := 0; k < 2 && !p.eof() && p.s[p.i] >= '0' && p.s[p.i] <= '7'; k++ {
					n = n*8 + int(p.s[p.i]-'0')
					p.i++
				}
				b.WriteByte(byte(n))
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(ch)
		}
	}
}
