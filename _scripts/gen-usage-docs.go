//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra/doc"

	"github.com/crossdev/gdbboot/cmd/gdbboot/cmds"
)

const defaultUsageDir = "./Documentation/usage"

func main() {
	usageDir := defaultUsageDir
	if len(os.Args) > 1 {
		usageDir = os.Args[1]
	}
	if err := os.MkdirAll(usageDir, 0o755); err != nil {
		log.Fatalf("creating %s: %v", usageDir, err)
	}
	if err := doc.GenMarkdownTree(cmds.New(), usageDir); err != nil {
		log.Fatalf("generating usage docs: %v", err)
	}
	// GenMarkdownTree ignores additional help topic commands.
	logCmd, _, err := cmds.New().Find([]string{"log"})
	if err != nil {
		log.Fatalf("finding log command: %v", err)
	}
	if err := doc.GenMarkdownTree(logCmd, usageDir); err != nil {
		log.Fatalf("generating log help: %v", err)
	}
	fh, err := os.OpenFile(filepath.Join(usageDir, "gdbboot.md"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		log.Fatalf("appending to gdbboot.md: %v", err)
	}
	if _, err := fmt.Fprintln(fh, "* [gdbboot log](gdbboot_log.md)\t - Help about logging flags"); err != nil {
		log.Fatalf("appending to gdbboot.md: %v", err)
	}
	if err := fh.Close(); err != nil {
		log.Fatalf("closing gdbboot.md: %v", err)
	}
}
