package main

import (
	"os"

	"github.com/crossdev/gdbboot/cmd/gdbboot/cmds"
	"github.com/crossdev/gdbboot/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.GdbbootVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
