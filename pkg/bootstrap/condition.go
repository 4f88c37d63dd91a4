package bootstrap

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluator evaluates an expression in the current debuggee context and
// returns the value as printed by the debugger.
type Evaluator interface {
	Evaluate(expr string) (string, error)
}

// Condition decides, every time a conditional breakpoint is hit, whether
// execution should halt. It runs on the debugger's own evaluation path and
// must not block or keep state between hits.
type Condition interface {
	ShouldStop(ev Evaluator) (bool, error)
}

// ConditionFunc adapts an ordinary function to the Condition interface.
type ConditionFunc func(ev Evaluator) (bool, error)

// ShouldStop calls f(ev).
func (f ConditionFunc) ShouldStop(ev Evaluator) (bool, error) {
	return f(ev)
}

// Expressioner is implemented by conditions that can also be expressed as
// a debugger-side condition expression.
type Expressioner interface {
	Expression() string
}

// CurrentCPUVar is the kernel variable holding the number of the hart
// executing the code.
const CurrentCPUVar = "currentCPU"

// DefaultCPU is the hart the conditional breakpoint waits for.
const DefaultCPU = 3

// VarEquals halts when the integer variable Name equals Value.
type VarEquals struct {
	Name  string
	Value int64
}

// CurrentCPU returns the condition halting only on hart cpu.
func CurrentCPU(cpu int64) VarEquals {
	return VarEquals{Name: CurrentCPUVar, Value: cpu}
}

// ShouldStop evaluates the variable. Evaluation errors are returned to the
// caller; a value that is not an integer (optimized out, unavailable, void)
// means the breakpoint resumes.
func (c VarEquals) ShouldStop(ev Evaluator) (bool, error) {
	s, err := ev.Evaluate(c.Name)
	if err != nil {
		return false, fmt.Errorf("evaluating %s: %w", c.Name, err)
	}
	v, ok := ParseInt(s)
	if !ok {
		return false, nil
	}
	return v == c.Value, nil
}

// Expression returns the condition as a C expression.
func (c VarEquals) Expression() string {
	return fmt.Sprintf("%s == %d", c.Name, c.Value)
}

func (c VarEquals) String() string {
	return c.Expression()
}

// ParseInt parses an integer value as printed by gdb, e.g. "3", "-1",
// "0x3" or "3 '\003'" for char typed variables.
func ParseInt(s string) (int64, bool) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(f[0], 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(f[0], 0, 64)
		if uerr != nil {
			return 0, false
		}
		return int64(u), true
	}
	return v, true
}
