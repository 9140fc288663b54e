package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"loopdepth/internal/analysis"
	"loopdepth/internal/logging"
	"loopdepth/internal/program"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, term.IsTerminal(os.Stdout.Fd())))
}

type app struct {
	stdout, stderr io.Writer

	demangle bool
	match    string
	level    string

	status int
}

// run executes the command line and returns the exit status. On a terminal
// the command runs through fang; otherwise through cobra with plain errors.
func run(args []string, stdout, stderr io.Writer, tty bool) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := a.command()
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	var err error
	if tty {
		err = fang.Execute(context.Background(), cmd, fang.WithNotifySignal(os.Interrupt))
	} else if err = cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	if err != nil {
		return 1
	}
	return a.status
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loopdepth <binary>",
		Short: "Report loop nesting depth and memory reads per function",
		Long: `Loopdepth disassembles every function of an ELF binary, finds its natural
loops, and lists each loop with its nesting depth followed by the instructions
in the loop's own blocks that read memory.`,
		Example: `
# Report every function
loopdepth ./a.out

# Only functions whose demangled name contains "parse"
loopdepth --demangle --func parse ./a.out
`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.analyze,
	}
	cmd.Flags().BoolVar(&a.demangle, "demangle", false, "demangle C++ and Rust symbol names")
	cmd.Flags().StringVar(&a.match, "func", "", "only report functions whose name contains `substr`")
	cmd.Flags().StringVar(&a.level, "log-level", "warn", "diagnostic level: debug, info, warn, error")
	return cmd
}

func (a *app) analyze(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(a.level)
	if err != nil {
		return err
	}
	lg := logging.New(a.stderr, level)

	bin, err := program.Open(args[0], program.Options{Demangle: a.demangle})
	if err != nil {
		lg.Debug("load failed", "path", args[0], "err", err)
		return a.fail("file cannot be parsed")
	}
	defer bin.Close()
	lg.Debug("loaded", "path", args[0], "arch", bin.Arch(), "functions", len(bin.Functions()))

	w := bufio.NewWriter(a.stdout)
	_, err = analysis.Run(bin, w, analysis.Options{Match: a.match, Logger: lg})
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	switch {
	case errors.Is(err, analysis.ErrNoFunctions):
		return a.fail("no functions in file")
	case err != nil:
		lg.Error("writing report", "err", err)
		a.status = 1
	}
	return nil
}

// fail prints the one-line failure message and sets a non-zero status.
func (a *app) fail(msg string) error {
	fmt.Fprintf(a.stderr, "error: %s\n", msg)
	a.status = 1
	return nil
}
