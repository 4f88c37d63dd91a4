package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crossdev/gdbboot/pkg/logflags"
)

// WorkDirEnv names the environment variable holding the work directory.
const WorkDirEnv = "GDB_WORK_DIR"

// BaseSubdir is the subdirectory of the work directory containing the
// RISC-V build trees.
const BaseSubdir = "riscv"

// FirmwareImage is the OpenSBI firmware image, relative to the base
// directory.
const FirmwareImage = "opensbi/build/platform/generic/firmware/fw_jump.elf"

// KernelImage is the Linux kernel image, relative to the base directory.
const KernelImage = "linux/build/vmlinux"

// DefaultSymbolFiles returns the supplementary symbol files loaded after
// the firmware, relative to the base directory.
func DefaultSymbolFiles() []string {
	return []string{KernelImage}
}

// DefaultBreakpoints returns the boot breakpoints: the OpenSBI load
// address, the kernel load address and the firmware main function.
func DefaultBreakpoints() []Location {
	return []Location{
		AddrLocation(0x80000000),
		AddrLocation(0x80200000),
		SymbolLocation("fw_main"),
	}
}

// Session is the part of the host debugger the bootstrap drives.
type Session interface {
	// SetExecutable makes path the primary debug target.
	SetExecutable(path string) error
	// AddSymbolFile loads path as an additional symbol table, without
	// replacing the primary target.
	AddSymbolFile(path string) error
	// AddBreakpoint installs an unconditional breakpoint at loc.
	AddBreakpoint(loc Location) error
	// AddConditionalBreakpoint installs a breakpoint at loc that only
	// halts when cond says so.
	AddConditionalBreakpoint(loc Location, cond Condition) error
}

// ConditionalBreakpoint pairs a location with the condition evaluated
// there.
type ConditionalBreakpoint struct {
	Location  Location
	Condition Condition
}

// Config describes one bootstrap run.
type Config struct {
	// WorkDir is the directory containing the riscv subtree.
	WorkDir string
	// Firmware is the primary executable, relative to the base directory.
	Firmware string
	// SymbolFiles are the supplementary symbol files, relative to the base
	// directory, in load order.
	SymbolFiles []string
	// Breakpoints are installed in order after the symbol files.
	Breakpoints []Location
	// Conditional breakpoints are opt-in; none are attached by default.
	Conditional []ConditionalBreakpoint
}

// ConfigError is returned when the configuration is incomplete.
type ConfigError struct {
	Var string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", err.Var)
}

// DefaultConfig returns the boot configuration for workDir.
func DefaultConfig(workDir string) Config {
	return Config{
		WorkDir:     workDir,
		Firmware:    FirmwareImage,
		SymbolFiles: DefaultSymbolFiles(),
		Breakpoints: DefaultBreakpoints(),
	}
}

// ConfigFromEnv builds the default configuration from the work directory
// found through lookup. A nil lookup means os.LookupEnv.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	wd, ok := lookup(WorkDirEnv)
	if !ok || wd == "" {
		return Config{}, &ConfigError{Var: WorkDirEnv}
	}
	return DefaultConfig(wd), nil
}

// BaseDir returns the directory every other path is resolved against.
func (c Config) BaseDir() string {
	return filepath.Join(c.WorkDir, BaseSubdir)
}

// FirmwarePath returns the absolute or work directory relative path of
// the primary executable.
func (c Config) FirmwarePath() string {
	return filepath.Join(c.BaseDir(), c.Firmware)
}

// SymbolPaths returns the resolved supplementary symbol files.
func (c Config) SymbolPaths() []string {
	r := make([]string, len(c.SymbolFiles))
	for i, f := range c.SymbolFiles {
		r[i] = filepath.Join(c.BaseDir(), f)
	}
	return r
}

// Initialize configures s as described by cfg. It stops at the first
// error; whatever was set up before that point is left in place.
func Initialize(cfg Config, s Session) error {
	log := logflags.BootstrapLogger()

	if cfg.WorkDir == "" {
		return &ConfigError{Var: WorkDirEnv}
	}

	fw := cfg.FirmwarePath()
	if logflags.Bootstrap() {
		log.Debugf("executable %s", fw)
	}
	if err := s.SetExecutable(fw); err != nil {
		return fmt.Errorf("could not load executable %s: %w", fw, err)
	}

	for _, path := range cfg.SymbolPaths() {
		if logflags.Bootstrap() {
			log.Debugf("symbol file %s", path)
		}
		if err := s.AddSymbolFile(path); err != nil {
			return fmt.Errorf("could not load symbol file %s: %w", path, err)
		}
	}

	for _, loc := range cfg.Breakpoints {
		if logflags.Bootstrap() {
			log.Debugf("breakpoint %s", loc)
		}
		if err := s.AddBreakpoint(loc); err != nil {
			return fmt.Errorf("could not set breakpoint at %s: %w", loc, err)
		}
	}

	for _, bp := range cfg.Conditional {
		if logflags.Bootstrap() {
			log.Debugf("conditional breakpoint %s", bp.Location)
		}
		if err := s.AddConditionalBreakpoint(bp.Location, bp.Condition); err != nil {
			return fmt.Errorf("could not set conditional breakpoint at %s: %w", bp.Location, err)
		}
	}

	return nil
}

// Attach installs a breakpoint at loc that only halts on hart cpu.
func Attach(s Session, loc Location, cpu int64) error {
	if err := s.AddConditionalBreakpoint(loc, CurrentCPU(cpu)); err != nil {
		return fmt.Errorf("could not set conditional breakpoint at %s: %w", loc, err)
	}
	return nil
}
