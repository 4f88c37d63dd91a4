package gdbmi

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// DefaultGdb is the gdb used when none is configured. It must support the
// riscv:rv64 architecture.
const DefaultGdb = "gdb-multiarch"

// LaunchConfig describes how to start gdb.
type LaunchConfig struct {
	// Path of the gdb executable, DefaultGdb if empty.
	Path string
	// Args are appended to the MI arguments.
	Args []string
	// Dir is the working directory of gdb.
	Dir string
	// Env is added to the environment of gdb.
	Env []string
	// Console receives console and target stream output.
	Console io.Writer
}

// Process is a gdb subprocess speaking GDB/MI on its standard streams.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	conn  *Conn
	done  chan error
}

// Launch starts gdb in MI mode. gdb is placed in its own process group so
// that a Ctrl-C on the terminal reaches gdbboot, which forwards it as
// -exec-interrupt.
func Launch(cfg LaunchConfig) (*Process, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultGdb
	}
	args := append([]string{"--interpreter=mi3", "--nx", "-q"}, cfg.Args...)
	cmd := exec.Command(path, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start %s: %v", path, err)
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		conn:  NewConn(stdout, stdin, cfg.Console),
		done:  make(chan error, 1),
	}
	go func() {
		// Wait closes stdout; the conn read loop must be done with it
		// first.
		<-p.conn.Done()
		p.done <- cmd.Wait()
	}()
	return p, nil
}

// Conn returns the MI connection to gdb.
func (p *Process) Conn() *Conn {
	return p.conn
}

// Close asks gdb to exit and waits for it, killing it if it does not
// exit within a few seconds.
func (p *Process) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.conn.Exec(ctx, "-gdb-exit")
	p.stdin.Close()

	select {
	case err := <-p.done:
		return err
	case <-time.After(3 * time.Second):
		killGroup(p.cmd.Process.Pid)
		return <-p.done
	}
}
