// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/derekparker/trie"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/config"
	"github.com/crossdev/gdbboot/pkg/logflags"
)

const defaultDisasmCount = 10

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the built-in commands of the gdbboot terminal.
// Anything else is handed to gdb.
type Commands struct {
	cmds []command
}

// gdbCommands are offered by completion next to the built-in commands.
var gdbCommands = []string{
	"advance", "backtrace", "break", "continue", "delete", "disable",
	"display", "enable", "finish", "frame", "hbreak", "info breakpoints",
	"info registers", "info symbol", "info threads", "interrupt", "list",
	"monitor", "next", "nexti", "print", "ptype", "stepi", "step", "tbreak",
	"thread", "until", "watch", "x/10i $pc",
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.
Lines that are not gdbboot commands are executed by gdb.`},
		{aliases: []string{"cpubreak", "cb"}, group: breakCmds, cmdFn: cpubreak, helpMsg: `Sets a breakpoint that only stops on one hart.

	cpubreak <location> [cpu]

The breakpoint stops when the currentCPU variable of the target equals cpu (3 if omitted); on any other hart execution resumes silently. Location is an address (0x80200000 or *0x80200000) or a symbol.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Shows the current configuration.

	config -save

Saves the configuration file to disk, including the cpu breakpoints set in this session, overwriting the current configuration file.`},
		{aliases: []string{"disasm", "da"}, group: dataCmds, cmdFn: disassembleCommand, helpMsg: `Disassembler.

	disasm [address] [count]

Decodes count (default 10) RISC-V instructions starting at address, or at the current PC if no address is given.`},
		{aliases: []string{"eval", "ev"}, group: dataCmds, cmdFn: evalCommand, helpMsg: `Evaluates an expression.

	eval <expression>

The expression is evaluated by gdb in the current frame.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the debugger."},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// Find will look up the command function for the given command input.
// Commands gdbboot does not know are passed to gdb.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return nil
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	cmdstr = strings.TrimSpace(cmdstr)
	vals := strings.SplitN(cmdstr, " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	if fn := c.Find(cmdname); fn != nil {
		return fn(t, args)
	}
	logflags.TerminalLogger().Debugf("gdb: %s", cmdstr)
	return t.backend.Console(cmdstr)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// completer returns the completion function of the line editor.
func (c *Commands) completer() func(string) []string {
	tr := trie.New()
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			tr.Add(alias, nil)
		}
	}
	for _, name := range gdbCommands {
		tr.Add(name, nil)
	}
	return func(line string) []string {
		if line == "" {
			return nil
		}
		r := tr.PrefixSearch(strings.ToLower(line))
		sort.Strings(r)
		return r
	}
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			if cmd.match(args) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return t.backend.Console("help " + args)
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	fmt.Fprintln(t.stdout, "Any other line is a gdb command.")
	return nil
}

func cpubreak(t *Term, args string) error {
	v := strings.Fields(args)
	if len(v) == 0 || len(v) > 2 {
		return errors.New("wrong number of arguments: cpubreak <location> [cpu]")
	}
	loc, err := bootstrap.ParseLocation(v[0])
	if err != nil {
		return err
	}
	cpu := int64(bootstrap.DefaultCPU)
	if len(v) == 2 {
		cpu, err = strconv.ParseInt(v[1], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid cpu %q", v[1])
		}
	}
	if err := bootstrap.Attach(t.backend, loc, cpu); err != nil {
		return err
	}
	t.conf.CPUBreakpoints = append(t.conf.CPUBreakpoints, config.CPUBreakpoint{Location: loc.String(), CPU: &cpu})
	fmt.Fprintf(t.stdout, "Breakpoint at %s stops on cpu %d\n", loc, cpu)
	return nil
}

// address resolves a disasm argument, either a number or an expression
// gdb evaluates to an address.
func address(t *Term, s string) (uint64, error) {
	if v, ok := bootstrap.ParseInt(strings.TrimPrefix(s, "*")); ok {
		return uint64(v), nil
	}
	val, err := t.backend.Evaluate("(unsigned long)&" + s)
	if err != nil {
		return 0, err
	}
	v, ok := bootstrap.ParseInt(val)
	if !ok {
		return 0, fmt.Errorf("%s is not an address: %s", s, val)
	}
	return uint64(v), nil
}

func disassembleCommand(t *Term, args string) error {
	v := strings.Fields(args)
	if len(v) > 2 {
		return errors.New("wrong number of arguments: disasm [address] [count]")
	}
	// The pc only places the "=>" marker when an address is given.
	pc, pcErr := t.backend.PC()
	if pcErr != nil && len(v) == 0 {
		return pcErr
	}
	addr, count := pc, defaultDisasmCount
	var err error
	if len(v) > 0 {
		addr, err = address(t, v[0])
		if err != nil {
			return err
		}
	}
	if len(v) > 1 {
		count, err = strconv.Atoi(v[1])
		if err != nil || count <= 0 {
			return fmt.Errorf("invalid count %q", v[1])
		}
	}
	insts, err := t.backend.Disassemble(addr, count)
	disasmPrint(insts, pc, pcErr == nil, t.stdout)
	return err
}

func evalCommand(t *Term, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	val, err := t.backend.Evaluate(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, val)
	return nil
}

// ExitRequestError is returned when the user
// exits gdbboot.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Printf("%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
