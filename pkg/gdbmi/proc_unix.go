//go:build !windows

package gdbmi

import (
	"syscall"

	sys "golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killGroup(pid int) {
	if err := sys.Kill(-pid, sys.SIGKILL); err != nil {
		sys.Kill(pid, sys.SIGKILL)
	}
}
