// Package bootstraptest provides a bootstrap.Session that records calls
// instead of talking to a debugger.
package bootstraptest

import (
	"fmt"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
)

// Call is one recorded session call.
type Call struct {
	Op        string
	Arg       string
	Condition bootstrap.Condition
}

func (c Call) String() string {
	return c.Op + " " + c.Arg
}

// Recorder is a bootstrap.Session recording every call it receives.
// If FailOn is set, the first call whose String() equals it returns Err
// (or a generic error when Err is nil) after being recorded.
type Recorder struct {
	Calls  []Call
	FailOn string
	Err    error
}

var _ bootstrap.Session = &Recorder{}

func (r *Recorder) record(c Call) error {
	r.Calls = append(r.Calls, c)
	if r.FailOn != "" && c.String() == r.FailOn {
		if r.Err != nil {
			return r.Err
		}
		return fmt.Errorf("%s failed", c)
	}
	return nil
}

func (r *Recorder) SetExecutable(path string) error {
	return r.record(Call{Op: "exec", Arg: path})
}

func (r *Recorder) AddSymbolFile(path string) error {
	return r.record(Call{Op: "symbols", Arg: path})
}

func (r *Recorder) AddBreakpoint(loc bootstrap.Location) error {
	return r.record(Call{Op: "break", Arg: loc.String()})
}

func (r *Recorder) AddConditionalBreakpoint(loc bootstrap.Location, cond bootstrap.Condition) error {
	return r.record(Call{Op: "cbreak", Arg: loc.String(), Condition: cond})
}

// Strings returns the recorded calls in their textual form.
func (r *Recorder) Strings() []string {
	s := make([]string, len(r.Calls))
	for i := range r.Calls {
		s[i] = r.Calls[i].String()
	}
	return s
}

// Reset forgets the recorded calls.
func (r *Recorder) Reset() {
	r.Calls = r.Calls[:0]
}

// Values is a bootstrap.Evaluator backed by a map. Missing names evaluate
// to an error; names mapped to Undefined evaluate to gdb's
// "<optimized out>".
type Values map[string]string

// Undefined is the value gdb prints for a variable without a location.
const Undefined = "<optimized out>"

func (v Values) Evaluate(expr string) (string, error) {
	s, ok := v[expr]
	if !ok {
		return "", fmt.Errorf("No symbol %q in current context.", expr)
	}
	return s, nil
}
