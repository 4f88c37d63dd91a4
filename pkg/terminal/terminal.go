package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/go-delve/liner"
	"github.com/mattn/go-isatty"

	"github.com/crossdev/gdbboot/pkg/bootstrap"
	"github.com/crossdev/gdbboot/pkg/config"
	"github.com/crossdev/gdbboot/pkg/gdbhost"
	"github.com/crossdev/gdbboot/pkg/logflags"
	"github.com/crossdev/gdbboot/pkg/rvdisasm"
)

const (
	historyFile                 string = ".history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiBlack    = 30
	ansiYellow   = 33
	ansiWhite    = 37
	ansiBrBlack  = 90
	ansiBrWhite  = 97
	defaultColor = ansiYellow
)

// Backend is the debugger session driven by the terminal.
type Backend interface {
	bootstrap.Session
	Console(line string) error
	Interrupt() error
	Evaluate(expr string) (string, error)
	PC() (uint64, error)
	Disassemble(addr uint64, count int) ([]rvdisasm.Instruction, error)
}

// Term represents the terminal running gdbboot.
type Term struct {
	backend  Backend
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	dumb     bool
	stdout   io.Writer
	InitFile string

	mu sync.Mutex
}

// New returns a new Term.
func New(backend Backend, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	if (conf.StopColor > ansiWhite && conf.StopColor < ansiBrBlack) ||
		conf.StopColor < ansiBlack ||
		conf.StopColor > ansiBrWhite {
		conf.StopColor = defaultColor
	}

	line := liner.NewLiner()
	// The prompt keeps the terminal in raw mode, Ctrl-C arrives as
	// ErrPromptAborted instead of SIGINT.
	line.SetCtrlCAborts(true)

	return &Term{
		backend: backend,
		conf:    conf,
		prompt:  "(gdbboot) ",
		line:    line,
		cmds:    cmds,
		dumb:    dumb,
		stdout:  w,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		fmt.Fprintf(t.stdout, "received SIGINT, interrupting target\n")
		t.interruptTarget()
	}
}

func (t *Term) interruptTarget() {
	if err := t.backend.Interrupt(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}

// Run begins running gdbboot in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// Interrupt the target on SIGINT instead of dying.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(t.cmds.completer())

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if done, status, err := t.handleInput(cmdstr, err); done {
			return status, err
		}
	}
}

// handleInput acts on one result of the prompt. done reports that the
// terminal should exit with status.
func (t *Term) handleInput(cmdstr string, err error) (done bool, status int, rerr error) {
	if err != nil {
		switch err {
		case liner.ErrPromptAborted:
			fmt.Fprintln(t.stdout, "interrupting target")
			t.interruptTarget()
			return false, 0, nil
		case io.EOF:
			fmt.Println("exit")
			status, err := t.handleExit()
			return true, status, err
		}
		return true, 1, fmt.Errorf("prompt for input failed: %v", err)
	}

	if err := t.cmds.Call(cmdstr, t); err != nil {
		if _, ok := err.(ExitRequestError); ok {
			status, err := t.handleExit()
			return true, status, err
		}
		fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
	}
	return false, 0, nil
}

// PrintStop reports a target stop. It is safe to call from the goroutine
// serving gdb events.
func (t *Term) PrintStop(st gdbhost.Stop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := "> "
	if !t.dumb {
		prefix = fmt.Sprintf(terminalHighlightEscapeCode, t.conf.StopColor) + prefix + terminalResetEscapeCode
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, st)
	logflags.TerminalLogger().Debugf("stop %s at %#x", st.Reason, st.Addr)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
		return 0, nil
	}
	if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_TRUNC, 0666); err == nil {
		_, err = t.line.WriteHistory(f)
		if err != nil {
			fmt.Println("readline history error:", err)
		}
		f.Close()
	}
	return 0, nil
}
