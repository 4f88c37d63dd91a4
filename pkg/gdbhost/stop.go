package gdbhost

import (
	"context"
	"fmt"
	"strings"

	"github.com/crossdev/gdbboot/pkg/gdbmi"
	"github.com/crossdev/gdbboot/pkg/logflags"
	"github.com/crossdev/gdbboot/pkg/rvdisasm"
)

// Stop describes a stop of the target reported to the user.
type Stop struct {
	Reason     string
	Breakpoint string
	Addr       uint64
	Func       string
	File       string
	Line       string
	// Inst is the instruction at Addr, nil if it could not be read.
	Inst *rvdisasm.Instruction
	// Err is set when the condition of a conditional breakpoint could not
	// be evaluated.
	Err error
}

func (s Stop) String() string {
	var b strings.Builder
	switch s.Reason {
	case "breakpoint-hit":
		fmt.Fprintf(&b, "Breakpoint %s", s.Breakpoint)
	case "":
		b.WriteString("Stopped")
	default:
		b.WriteString(strings.ReplaceAll(s.Reason, "-", " "))
	}
	fmt.Fprintf(&b, " at %#x", s.Addr)
	if s.Func != "" {
		fmt.Fprintf(&b, " in %s", s.Func)
	}
	if s.File != "" {
		fmt.Fprintf(&b, " (%s:%s)", s.File, s.Line)
	}
	if s.Inst != nil {
		fmt.Fprintf(&b, "\n\t%s", s.Inst.Text)
	}
	if s.Err != nil {
		fmt.Fprintf(&b, "\n\tcondition failed: %v", s.Err)
	}
	return b.String()
}

func stopFromRecord(rec *gdbmi.Record) Stop {
	frame := rec.Results.Tuple("frame")
	st := Stop{
		Reason:     rec.Results.String("reason"),
		Breakpoint: rec.Results.String("bkptno"),
		Func:       frame.String("func"),
		File:       frame.String("file"),
		Line:       frame.String("line"),
	}
	st.Addr, _ = frame.Uint("addr")
	return st
}

// Serve handles target stops until ctx is done or gdb exits. Hits of
// conditional breakpoints whose condition says "resume" are continued
// without being reported.
func (h *Host) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-h.conn.Events():
			if !ok {
				return nil
			}
			if rec.Class != "stopped" {
				continue
			}
			h.handleStop(rec)
		}
	}
}

func (h *Host) handleStop(rec *gdbmi.Record) {
	st := stopFromRecord(rec)
	if logflags.Host() {
		h.log.Debugf("stopped: reason=%s bkpt=%s addr=%#x", st.Reason, st.Breakpoint, st.Addr)
	}

	if st.Reason == "breakpoint-hit" {
		if cond := h.Conditional(st.Breakpoint); cond != nil {
			stop, err := cond.ShouldStop(h)
			switch {
			case err != nil:
				st.Err = err
			case !stop:
				if logflags.Host() {
					h.log.Debugf("breakpoint %s: condition false, resuming", st.Breakpoint)
				}
				err := h.Continue()
				if err == nil {
					return
				}
				st.Err = fmt.Errorf("could not resume: %v", err)
			}
		}
	}

	if st.Addr != 0 {
		if mem, err := h.ReadMemory(st.Addr, rvdisasm.MaxInstLen); err == nil {
			if inst, err := rvdisasm.Decode(st.Addr, mem); err == nil {
				st.Inst = &inst
			}
		}
	}

	if h.OnStop != nil {
		h.OnStop(st)
	}
}
