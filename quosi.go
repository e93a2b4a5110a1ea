// Package quosi is a thin façade over the Quosi toolchain: source text goes
// in, a compiled program or a virtual machine ready to run it comes out.
// Callers who need finer control (raw AST access, a custom symbol table, a
// disassembly listing) should reach into the internal packages' exported
// counterparts through this package's re-exports, or run the quosi CLI.
package quosi

import (
	"fmt"

	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/binfmt"
	"github.com/dekarrin/quosi/internal/codegen"
	"github.com/dekarrin/quosi/internal/disasm"
	"github.com/dekarrin/quosi/internal/parser"
	"github.com/dekarrin/quosi/internal/qerr"
	"github.com/dekarrin/quosi/internal/vm"
)

// Re-exported so callers never need to import the internal packages
// directly for the common compile-and-run path.
type (
	CompiledFile  = binfmt.CompiledFile
	VirtualMachine = vm.VM
	UpCall        = vm.UpCall
	Context       = vm.Context
	SymbolContext = codegen.SymbolContext
	Graph         = ast.Graph
	Errors        = qerr.List
)

const (
	Line  = vm.LineCall
	Pick  = vm.PickCall
	Event = vm.EventCall
	Exit  = vm.ExitCall
	Abort = vm.AbortCall
)

// ParseError wraps a non-empty diagnostic list so it satisfies the error
// interface while still exposing the individual diagnostics.
type ParseError struct {
	*qerr.List
}

func (e *ParseError) Error() string { return e.List.Error() }

// Parse parses Quosi source into an AST without compiling it, for callers
// that want to inspect or transform the graph before code generation.
func Parse(src string) (*Graph, error) {
	graph, errs := parser.Parse(src)
	if !errs.Empty() {
		return nil, &ParseError{errs}
	}
	return graph, nil
}

// CompileFromSource lexes, parses, and generates bytecode for Quosi source
// text in one step. symCtx may be nil, in which case the generator assigns
// its own dense symbol ids and embeds a symbol table in the output file.
func CompileFromSource(src string, symCtx SymbolContext) (*CompiledFile, error) {
	graph, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return CompileFromAST(graph, symCtx)
}

// CompileFromAST runs code generation on an already-parsed graph.
func CompileFromAST(graph *Graph, symCtx SymbolContext) (*CompiledFile, error) {
	out, err := codegen.Generate(graph, codegen.SymbolContext(symCtx))
	if err != nil {
		return nil, fmt.Errorf("quosi: %w", err)
	}
	return binfmt.New(out.Payload, out.StrLoc, out.SymLoc), nil
}

// NewVM creates a virtual machine ready to execute f from its START vertex.
// The VM reads directly from f's payload (code plus the string pool that
// Line/Event/Prop offsets point into), so f must outlive the VM.
func NewVM(f *CompiledFile) *VirtualMachine {
	return vm.New(f.Payload)
}

// Disassemble renders a human-readable listing of a compiled file's code
// section, with jump targets resolved to symbolic labels.
func Disassemble(f *CompiledFile) string {
	return disasm.Listing(f)
}
