package cmds

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/config"
	"github.com/crossdev/gdbboot/pkg/gdbhost"
	"github.com/crossdev/gdbboot/pkg/gdbmi"
	"github.com/crossdev/gdbboot/pkg/gdbscript"
	"github.com/crossdev/gdbboot/pkg/logflags"
	"github.com/crossdev/gdbboot/pkg/terminal"
	"github.com/crossdev/gdbboot/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// workDir overrides GDB_WORK_DIR.
	workDir string
	// gdbPath is the gdb executable.
	gdbPath string

	// remote is the address of the gdb stub.
	remote string
	// arch is the gdb architecture.
	arch string
	// cpuBreaks are conditional breakpoints requested on the command line.
	cpuBreaks locationList
	// cpu is the hart cpuBreaks stop on.
	cpu int64
	// continueOnStart is whether to resume the target after connecting.
	continueOnStart bool
	// initFile is the path to initialization file.
	initFile string
	// scriptOut is where the script command writes.
	scriptOut string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const gdbbootCommandLongDesc = `gdbboot prepares a gdb session for the early boot of a RISC-V system.

It loads the OpenSBI firmware image and the Linux kernel symbols found under
$GDB_WORK_DIR/riscv, sets breakpoints on the firmware and kernel entry points
and on fw_main, and hands the session over to an interactive terminal. Lines
that are not gdbboot commands are executed by gdb.

A typical session runs the target under QEMU with its gdb stub enabled:

	qemu-system-riscv64 -s -S ...
	gdbboot start --remote localhost:1234
`

// locationList is a repeatable flag of breakpoint locations.
type locationList []bootstrap.Location

var _ pflag.Value = &locationList{}

func (l *locationList) String() string {
	s := make([]string, len(*l))
	for i, loc := range *l {
		s[i] = loc.String()
	}
	return "[" + strings.Join(s, ",") + "]"
}

func (l *locationList) Set(v string) error {
	loc, err := bootstrap.ParseLocation(v)
	if err != nil {
		return err
	}
	*l = append(*l, loc)
	return nil
}

func (l *locationList) Type() string {
	return "location"
}

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main gdbboot root command.
	rootCommand = &cobra.Command{
		Use:          "gdbboot",
		Short:        "gdbboot sets up gdb for debugging RISC-V firmware and kernel boot.",
		Long:         gdbbootCommandLongDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput, logDest)
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'gdbboot help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'gdbboot help log').")
	rootCommand.PersistentFlags().StringVar(&workDir, "work-dir", "", "Work directory, overrides $"+bootstrap.WorkDirEnv+".")
	rootCommand.PersistentFlags().StringVar(&gdbPath, "gdb", "", "gdb executable (default "+gdbmi.DefaultGdb+").")

	// 'start' subcommand.
	startCommand := &cobra.Command{
		Use:   "start",
		Short: "Start gdb, prepare the boot session and open the terminal.",
		Long: `Starts gdb, loads the firmware image and the kernel symbols, installs the
boot breakpoints and opens the gdbboot terminal.

With --remote the session connects to the gdb stub of the target, for
example the one QEMU opens with -s on localhost:1234. Every --cpu-break
location gets a breakpoint that only stops when currentCPU equals --cpu.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(conf))
		},
	}
	startCommand.Flags().StringVar(&remote, "remote", "", "Address of the gdb stub to connect to.")
	startCommand.Flags().StringVar(&arch, "arch", "", "gdb architecture (default "+gdbhost.DefaultArch+").")
	startCommand.Flags().Var(&cpuBreaks, "cpu-break", "Conditional breakpoint location, can be repeated.")
	startCommand.Flags().Int64Var(&cpu, "cpu", bootstrap.DefaultCPU, "Hart the --cpu-break breakpoints stop on.")
	startCommand.Flags().BoolVarP(&continueOnStart, "continue", "c", false, "Continue the target after connecting.")
	startCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the terminal.")
	rootCommand.AddCommand(startCommand)

	// 'script' subcommand.
	scriptCommand := &cobra.Command{
		Use:   "script",
		Short: "Write the boot session as a gdb command file.",
		Long: `Writes the commands of the boot session as a gdb command file, usable with
gdb -x. Conditional breakpoints using Starlark scripts cannot be written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logflags.Close()
			return scriptCmd(cmd.OutOrStdout())
		},
	}
	scriptCommand.Flags().StringVarP(&scriptOut, "output", "o", "", "Output file, standard output if empty.")
	scriptCommand.Flags().StringVar(&remote, "remote", "", "Address of the gdb stub to connect to.")
	scriptCommand.Flags().StringVar(&arch, "arch", "", "gdb architecture (default "+gdbhost.DefaultArch+").")
	scriptCommand.Flags().Var(&cpuBreaks, "cpu-break", "Conditional breakpoint location, can be repeated.")
	scriptCommand.Flags().Int64Var(&cpu, "cpu", bootstrap.DefaultCPU, "Hart the --cpu-break breakpoints stop on.")
	rootCommand.AddCommand(scriptCommand)

	// 'check' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check the work directory layout.",
		Long: `Checks that the firmware image and the symbol files exist under the work
directory and are 64-bit RISC-V ELF files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logflags.Close()
			cfg, err := bootstrapConfig(conf)
			if err != nil {
				return err
			}
			return checkLayout(cfg, cmd.OutOrStdout())
		},
	})

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gdbboot\n%s\n", version.GdbbootVersion)
			if versionVerbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	bootstrap	Log the boot session setup (default)
	gdbmi		Log all GDB/MI traffic
	host		Log breakpoint conditions and stops
	terminal	Log terminal commands
	gdbout		Copy the gdb log stream to standard error

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// bootstrapConfig reads the work directory from --work-dir or the
// environment and adds the breakpoints of the config file and the command
// line.
func bootstrapConfig(conf *config.Config) (bootstrap.Config, error) {
	lookup := os.LookupEnv
	if workDir != "" {
		lookup = func(key string) (string, bool) {
			if key == bootstrap.WorkDirEnv {
				return workDir, true
			}
			return os.LookupEnv(key)
		}
	}
	cfg, err := bootstrap.ConfigFromEnv(lookup)
	if err != nil {
		return cfg, err
	}
	if err := conf.Apply(&cfg); err != nil {
		return cfg, fmt.Errorf("config file: %w", err)
	}
	for _, loc := range cpuBreaks {
		cfg.Conditional = append(cfg.Conditional, bootstrap.ConditionalBreakpoint{Location: loc, Condition: bootstrap.CurrentCPU(cpu)})
	}
	return cfg, nil
}

func archOrDefault(conf *config.Config) string {
	switch {
	case arch != "":
		return arch
	case conf.Arch != "":
		return conf.Arch
	}
	return gdbhost.DefaultArch
}

func scriptCmd(stdout io.Writer) error {
	cfg, err := bootstrapConfig(conf)
	if err != nil {
		return err
	}
	w := stdout
	if scriptOut != "" {
		f, err := os.Create(scriptOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	r := remote
	if r == "" {
		r = conf.Remote
	}
	return writeScript(cfg, gdbscript.Options{Arch: archOrDefault(conf), Remote: r}, w)
}

func writeScript(cfg bootstrap.Config, opts gdbscript.Options, w io.Writer) error {
	sw := gdbscript.NewWriter(w, opts)
	if err := bootstrap.Initialize(cfg, sw); err != nil {
		return err
	}
	return sw.Close()
}

var errNotRISCV = errors.New("not a 64-bit RISC-V ELF file")

// checkLayout verifies the files the boot session loads.
func checkLayout(cfg bootstrap.Config, out io.Writer) error {
	paths := append([]string{cfg.FirmwarePath()}, cfg.SymbolPaths()...)
	var failed bool
	for _, path := range paths {
		entry, err := checkELF(path)
		if err != nil {
			fmt.Fprintf(out, "FAIL\t%s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Fprintf(out, "ok\t%s\tentry %#x\n", path, entry)
	}
	if failed {
		return fmt.Errorf("work directory %s is incomplete", cfg.WorkDir)
	}
	return nil
}

func checkELF(path string) (uint64, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if f.Machine != elf.EM_RISCV || f.Class != elf.ELFCLASS64 {
		return 0, fmt.Errorf("%w (%s, %s)", errNotRISCV, f.Class, f.Machine)
	}
	return f.Entry, nil
}

func execute(conf *config.Config) int {
	defer logflags.Close()

	cfg, err := bootstrapConfig(conf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	gdbArgs, err := conf.GdbArgv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config file: %v\n", err)
		return 1
	}
	path := gdbPath
	if path == "" {
		path = conf.Gdb
	}

	proc, err := gdbmi.Launch(gdbmi.LaunchConfig{
		Path:    path,
		Args:    gdbArgs,
		Dir:     cfg.WorkDir,
		Env:     []string{bootstrap.WorkDirEnv + "=" + cfg.WorkDir},
		Console: os.Stdout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer proc.Close()

	host := gdbhost.New(proc.Conn())
	host.Timeout = conf.CommandTimeout
	if err := host.Prepare(archOrDefault(conf)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := bootstrap.Initialize(cfg, host); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	term := terminal.New(host, conf)
	term.InitFile = initFile
	host.OnStop = term.PrintStop

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := host.Serve(ctx); err != nil {
			logflags.HostLogger().Errorf("serve: %v", err)
		}
	}()

	if remote == "" {
		remote = conf.Remote
	}
	if remote != "" {
		if err := host.Connect(remote); err != nil {
			term.Close()
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if continueOnStart {
			if err := host.Continue(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}

	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}
