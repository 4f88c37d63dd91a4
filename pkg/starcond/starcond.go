// Package starcond implements conditional breakpoint predicates written
// in Starlark.
//
// A condition script defines a function should_stop taking one argument,
// a builtin evaluating a gdb expression in the stopped target and
// returning its value as text:
//
//	def should_stop(eval):
//	    return int_value(eval("currentCPU")) == 3
//
// int_value converts gdb value text to an int, or None if the value is not
// an integer.
package starcond

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
)

const (
	mainFnName          = "should_stop"
	evalBuiltinName     = "eval"
	intValueBuiltinName = "int_value"

	// maxSteps bounds one should_stop call. The stop loop waits for it.
	maxSteps = 1 << 24
)

// Condition is a bootstrap.Condition backed by a Starlark function.
type Condition struct {
	name string
	fn   starlark.Callable
}

var _ bootstrap.Condition = &Condition{}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		intValueBuiltinName: starlark.NewBuiltin(intValueBuiltinName, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			v, ok := bootstrap.ParseInt(s)
			if !ok {
				return starlark.None, nil
			}
			return starlark.MakeInt64(v), nil
		}),
	}
}

// Compile executes src and returns the condition defined by its
// should_stop function. name is used in error messages.
func Compile(name string, src interface{}) (*Condition, error) {
	thread := &starlark.Thread{Name: name}
	globals, err := starlark.ExecFile(thread, name, src, predeclared())
	if err != nil {
		return nil, err
	}
	globals.Freeze()
	v, ok := globals[mainFnName]
	if !ok {
		return nil, fmt.Errorf("%s: no %s function", name, mainFnName)
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: %s is a %s, not a function", name, mainFnName, v.Type())
	}
	return &Condition{name: name, fn: fn}, nil
}

// CompileFile reads and compiles the condition script at path.
func CompileFile(path string) (*Condition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(path, src)
}

// ShouldStop calls should_stop with an eval builtin bound to ev.
func (c *Condition) ShouldStop(ev bootstrap.Evaluator) (bool, error) {
	thread := &starlark.Thread{Name: c.name}
	thread.SetMaxExecutionSteps(maxSteps)
	eval := starlark.NewBuiltin(evalBuiltinName, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var expr string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &expr); err != nil {
			return nil, err
		}
		s, err := ev.Evaluate(expr)
		if err != nil {
			return nil, err
		}
		return starlark.String(s), nil
	})
	v, err := starlark.Call(thread, c.fn, starlark.Tuple{eval}, nil)
	if err != nil {
		return false, err
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("%s: %s returned %s, not bool", c.name, mainFnName, v.Type())
	}
	return bool(b), nil
}

func (c *Condition) String() string {
	return c.name
}
