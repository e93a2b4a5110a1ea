/*
Quosi compiles, disassembles, and runs Quosi dialogue graph scripts.

It reads a .qsi source script or a .bsi compiled file and either prints its
disassembly, or drives its virtual machine in an interactive trace session,
printing every line, event, and choice prompt the graph produces.

Usage:

	quosi [flags] FILE

The flags are:

	-v, --version
		Print the current version and exit.

	-c, --disasm
		Disassemble FILE instead of running it.

	-t, --trace
		Run FILE interactively: print each line/event as it is produced and
		prompt for a choice index at every Pick up-call.

	-p, --project FILE
		Load the entry script path from a quosi.toml file's top-level
		"entry" key, used when no FILE is given on the command line.

	-i, --seed COMMANDS
		Shell-quoted list of choice indices to auto-select, in order, at the
		first Pick up-calls the graph produces, before handing control to
		the interactive prompt (with -t) or falling back to auto-picking
		(without it). Example: -i "0 2 1".

Without -t, FILE is run to completion non-interactively, auto-selecting the
first proposed choice at every Pick up-call, and every Line/Event is
printed to stdout as it is produced.
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/dekarrin/quosi"
	"github.com/dekarrin/quosi/internal/binfmt"
	"github.com/dekarrin/quosi/internal/config"
	"github.com/dekarrin/quosi/internal/input"
	"github.com/dekarrin/quosi/internal/version"
)

const (
	ExitSuccess = iota
	ExitUsageError
	ExitCompileError
	ExitRuntimeError
)

var (
	returnCode = ExitSuccess

	flagVersion = pflag.BoolP("version", "v", false, "Print the current version and exit")
	flagDisasm  = pflag.BoolP("disasm", "c", false, "Disassemble FILE instead of running it")
	flagTrace   = pflag.BoolP("trace", "t", false, "Run FILE interactively with a prompt at every choice")
	flagProject = pflag.StringP("project", "p", "", "Load settings from a quosi.toml project file")
	flagSeed    = pflag.StringP("seed", "i", "", "Shell-quoted list of choice indices to auto-select at start")
)

func main() {
	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.Current)
		return
	}

	defer func() { os.Exit(returnCode) }()

	args := pflag.Args()
	target := ""
	if len(args) > 0 {
		target = args[0]
	}

	if *flagProject != "" {
		proj, err := config.Load(*flagProject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
			returnCode = ExitUsageError
			return
		}
		if target == "" {
			target = proj.Entry
			if target != "" && !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(*flagProject), target)
			}
		}
	}

	if target == "" {
		fmt.Fprintln(os.Stderr, "ERROR: no input file given")
		returnCode = ExitUsageError
		return
	}

	f, err := loadTarget(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		returnCode = ExitCompileError
		return
	}

	if *flagDisasm {
		fmt.Print(quosi.Disassemble(f))
		return
	}

	seed, err := parseSeed(*flagSeed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		returnCode = ExitUsageError
		return
	}

	if err := run(f, *flagTrace, seed); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		returnCode = ExitRuntimeError
		return
	}
}

// parseSeed splits a shell-quoted seed string into the ordered list of
// choice indices it names.
func parseSeed(s string) ([]uint32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	tokens, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("parsing --seed: %w", err)
	}
	seed := make([]uint32, len(tokens))
	for i, t := range tokens {
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("parsing --seed: %q is not a non-negative choice index", t)
		}
		seed[i] = uint32(n)
	}
	return seed, nil
}

// loadTarget reads target as a compiled .bsi file, or compiles it as .qsi
// source, based on its extension. Any other extension is treated as source.
func loadTarget(target string) (*quosi.CompiledFile, error) {
	if strings.EqualFold(filepath.Ext(target), ".bsi") {
		return binfmt.Load(target)
	}

	src, err := os.ReadFile(target)
	if err != nil {
		return nil, err
	}
	return quosi.CompileFromSource(string(src), nil)
}

// run drives f's virtual machine to completion, printing lines and events
// and either auto-picking, consuming a seeded choice, or prompting at each
// Pick up-call.
func run(f *quosi.CompiledFile, trace bool, seed []uint32) error {
	store := newVarStore()
	machine := quosi.NewVM(f)

	var reader input.Reader
	if trace {
		var err error
		if isatty.IsTerminal(os.Stdin.Fd()) {
			reader, err = input.NewInteractiveReader()
		} else {
			reader = input.NewDirectReader(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("initializing trace input: %w", err)
		}
		defer reader.Close()
	}

	for {
		up := machine.Exec(store.context)
		switch up {
		case quosi.Line:
			fmt.Printf("%d: %s\n", machine.ID(), machine.Line())
		case quosi.Event:
			fmt.Printf("EVENT: %s\n", machine.Line())
		case quosi.Exit:
			fmt.Println("-- END --")
			return nil
		case quosi.Abort:
			fmt.Println("-- ABORT --")
			return nil
		case quosi.Pick:
			var choice uint32
			var err error
			if len(seed) > 0 {
				choice, seed = seed[0], seed[1:]
			} else {
				choice, err = pick(machine, reader, trace)
			}
			if err != nil {
				return err
			}
			machine.Push(uint64(choice))
		}
	}
}

// pick prints every pending proposition, then either prompts the user for
// an index (trace mode) or auto-selects the first one (batch mode).
func pick(m *quosi.VirtualMachine, reader input.Reader, trace bool) (uint32, error) {
	n := m.Nq()
	texts := make([]string, n)
	indices := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		texts[i], indices[i] = m.DeqText()
	}

	if !trace {
		return indices[0], nil
	}

	for i, t := range texts {
		fmt.Printf("  [%d] %s\n", i+1, t)
	}
	for {
		reader.AllowBlank(false)
		line, err := reader.ReadCommand()
		if err != nil {
			return 0, err
		}
		sel, convErr := strconv.Atoi(strings.TrimSpace(line))
		sel--
		if convErr != nil || sel < 0 || sel >= len(indices) {
			fmt.Println("enter a number between 1 and", len(indices))
			continue
		}
		return indices[sel], nil
	}
}
