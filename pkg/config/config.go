package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"time"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/starcond"
)

const (
	configDir  string = ".gdbboot"
	configFile string = "config.yml"
)

// CPUBreakpoint is an opt-in conditional breakpoint. It halts on hart CPU
// (3 if unset) unless Script names a Starlark condition file, which then
// decides.
type CPUBreakpoint struct {
	Location string `yaml:"location"`
	CPU      *int64 `yaml:"cpu,omitempty"`
	Script   string `yaml:"script,omitempty"`
}

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// Gdb is the gdb executable, gdb-multiarch if empty.
	Gdb string `yaml:"gdb,omitempty"`
	// GdbArgs are extra arguments for gdb, split like a shell command line.
	GdbArgs string `yaml:"gdb-args,omitempty"`
	// Arch is the gdb architecture, riscv:rv64 if empty.
	Arch string `yaml:"arch,omitempty"`
	// Remote is the address of the gdb stub to connect to after the
	// bootstrap, e.g. localhost:1234 for "qemu -s".
	Remote string `yaml:"remote,omitempty"`
	// CommandTimeout bounds every gdb command, zero means no timeout.
	CommandTimeout time.Duration `yaml:"command-timeout,omitempty"`

	// Breakpoints are installed after the boot breakpoints.
	Breakpoints []string `yaml:"breakpoints,omitempty"`
	// CPUBreakpoints are conditional breakpoints attached after the
	// unconditional ones.
	CPUBreakpoints []CPUBreakpoint `yaml:"cpu-breakpoints,omitempty"`

	// StopColor is the ANSI color used for stop reports.
	StopColor int `yaml:"stop-color,omitempty"`
}

// GdbArgv splits GdbArgs into arguments.
func (c *Config) GdbArgv() ([]string, error) {
	if c.GdbArgs == "" {
		return nil, nil
	}
	v, err := argv.Argv(c.GdbArgs,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal gdb-args '%s'", c.GdbArgs)
	}
	return v[0], nil
}

// Apply adds the breakpoints of the config file to cfg.
func (c *Config) Apply(cfg *bootstrap.Config) error {
	for _, s := range c.Breakpoints {
		loc, err := bootstrap.ParseLocation(s)
		if err != nil {
			return err
		}
		cfg.Breakpoints = append(cfg.Breakpoints, loc)
	}
	for _, bp := range c.CPUBreakpoints {
		loc, err := bootstrap.ParseLocation(bp.Location)
		if err != nil {
			return err
		}
		var cond bootstrap.Condition
		switch {
		case bp.Script != "":
			sc, err := starcond.CompileFile(bp.Script)
			if err != nil {
				return err
			}
			cond = sc
		case bp.CPU != nil:
			cond = bootstrap.CurrentCPU(*bp.CPU)
		default:
			cond = bootstrap.CurrentCPU(bootstrap.DefaultCPU)
		}
		cfg.Conditional = append(cfg.Conditional, bootstrap.ConditionalBreakpoint{Location: loc, Condition: cond})
	}
	return nil
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	c, err := Read(f)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return &Config{}
	}
	return c
}

// Read decodes a config file.
func Read(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	if err := createConfigPath(); err != nil {
		return err
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

var errNoConfigDir = errors.New("no config directory")

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for gdbboot.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# gdb executable, it must support riscv:rv64.
# gdb: gdb-multiarch

# Extra gdb arguments.
# gdb-args: "-ex 'set print pretty on'"

# gdb architecture.
# arch: riscv:rv64

# Connect to the QEMU gdb stub (qemu-system-riscv64 -s -S) after setup.
# remote: localhost:1234

# Give up on gdb commands taking longer than this.
# command-timeout: 30s

# Breakpoints installed after the boot breakpoints.
# breakpoints: ["start_kernel"]

# Conditional breakpoints, halting only on a given hart (default 3) or when
# the should_stop function of a Starlark script returns True.
# cpu-breakpoints:
#   - {location: sbi_hsm_hart_start, cpu: 3}
#   - {location: "0x80200000", script: /path/to/cond.star}

# ANSI foreground color of stop reports.
# stop-color: 33

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if dir := os.Getenv("GDBBOOT_CONFIG_DIR"); dir != "" {
		return path.Join(dir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	if userHomeDir == "" {
		return "", errNoConfigDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
