// Package codegen lowers an ast.Graph into linear bytecode, a string pool,
// and an optional symbol table, in a single pass. Forward and backward jump
// targets are resolved by label patching: every jump instruction is emitted
// with a zero operand and recorded in a patch list, then every patch is
// rewritten once the whole graph has been compiled and every label's byte
// offset is known.
package codegen

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/bytecode"
	"github.com/dekarrin/quosi/internal/lexer"
)

// SymbolContext lets an embedder supply its own identifier→id mapping at
// compile time. When non-nil, the generator never emits a symbol section
// (SymLoc is 0 in the Output).
type SymbolContext func(name string) uint32

// Output is the generator's result: one contiguous payload holding code,
// then strings, then (optionally) symbols, plus the offsets into it that
// the binary file header records.
type Output struct {
	Payload []byte
	StrLoc  uint64
	SymLoc  uint64
}

type jumpPatch struct {
	pos   uint32
	label string
}

type stringPatch struct {
	pos  uint32
	text string
}

type edgeEntry struct {
	target string
}

type pendingEffect struct {
	label   string
	actions []ast.EffectAction
	next    string
}

type generator struct {
	buf    []byte
	labels map[string]uint32

	symCtx    SymbolContext
	symbols   map[string]uint32
	nextSymID uint32

	jumps   []jumpPatch
	strings []stringPatch

	labelSeq int

	currentEdgeIndex uint8
	edgeEntries      []edgeEntry
	pendingEffects   []pendingEffect
}

// Generate compiles graph into bytecode. graph must have no outstanding
// parse diagnostics (the caller checks the error list before calling this).
func Generate(graph *ast.Graph, symCtx SymbolContext) (*Output, error) {
	startIdx, ok := graph.NameIndex[bytecode.LabelStart]
	if !ok {
		return nil, fmt.Errorf("codegen: graph has no %s vertex", bytecode.LabelStart)
	}

	g := &generator{
		labels: map[string]uint32{
			bytecode.LabelStart: 0,
			bytecode.LabelExit:  bytecode.SentinelExit,
			bytecode.LabelAbort: bytecode.SentinelAbort,
		},
		symCtx:  symCtx,
		symbols: make(map[string]uint32),
	}

	// START must compile first so its label resolves to offset 0, per the
	// invariant that a jump to START always targets the first instruction.
	g.compileVertexBlock(graph.Vertices[startIdx].Block)

	for _, nv := range graph.Vertices {
		if nv.Name == bytecode.LabelStart {
			continue
		}
		g.labels[nv.Name] = g.pos()
		g.compileVertexBlock(nv.Block)
	}

	g.emitOp(bytecode.Eof)

	strLoc := uint64(g.pos())
	for _, sp := range g.strings {
		offset := g.pos()
		binary.LittleEndian.PutUint32(g.buf[sp.pos:], offset)
		g.buf = append(g.buf, []byte(lexer.Decode(sp.text))...)
		g.buf = append(g.buf, 0)
	}

	var symLoc uint64
	if g.symCtx == nil {
		symLoc = uint64(g.pos())
		g.emitSymbolSection()
	}

	for _, j := range g.jumps {
		label := graph.Resolve(j.label)
		target, ok := g.labels[label]
		if !ok {
			return nil, fmt.Errorf("codegen: unresolved label %q", j.label)
		}
		binary.LittleEndian.PutUint32(g.buf[j.pos:], target)
	}

	return &Output{Payload: g.buf, StrLoc: strLoc, SymLoc: symLoc}, nil
}

// emitSymbolSection writes the dense self-assigned symbol table: for each
// entry, the NUL-terminated name followed by its little-endian u32 id.
// Entries are written in id order so the section is deterministic across
// otherwise-identical compiles.
func (g *generator) emitSymbolSection() {
	names := make([]string, 0, len(g.symbols))
	for name := range g.symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return g.symbols[names[i]] < g.symbols[names[j]] })
	for _, name := range names {
		g.buf = append(g.buf, []byte(name)...)
		g.buf = append(g.buf, 0)
		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], g.symbols[name])
		g.buf = append(g.buf, idBuf[:]...)
	}
}

func (g *generator) pos() uint32 { return uint32(len(g.buf)) }

func (g *generator) emitOp(op bytecode.Op) {
	g.buf = append(g.buf, byte(op))
}

func (g *generator) emitU8(v uint8) {
	g.buf = append(g.buf, v)
}

// emitU32 appends a placeholder/real 4-byte little-endian value and returns
// the byte position it was written at, for use by patch lists.
func (g *generator) emitU32(v uint32) uint32 {
	pos := g.pos()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	g.buf = append(g.buf, b[:]...)
	return pos
}

func (g *generator) emitU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	g.buf = append(g.buf, b[:]...)
}

func (g *generator) addJumpPatch(pos uint32, label string) {
	g.jumps = append(g.jumps, jumpPatch{pos: pos, label: label})
}

func (g *generator) addStringPatch(pos uint32, text string) {
	g.strings = append(g.strings, stringPatch{pos: pos, text: text})
}

func (g *generator) setLabel(name string) {
	g.labels[name] = g.pos()
}

func (g *generator) genLabel() string {
	s := "." + strconv.Itoa(g.labelSeq)
	g.labelSeq++
	return s
}

// resolveSym interns name into a dense id, or defers to the embedder's
// SymbolContext callback if one was supplied.
func (g *generator) resolveSym(name string) uint32 {
	if g.symCtx != nil {
		return g.symCtx(name)
	}
	if id, ok := g.symbols[name]; ok {
		return id
	}
	id := g.nextSymID
	g.nextSymID++
	g.symbols[name] = id
	return id
}
