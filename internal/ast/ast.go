// Package ast defines the tree produced by the parser: expressions, edges,
// vertices, and the conditional block wrappers that can nest around them.
// All string content held by the tree is copied at parse time into the
// Graph's arena, decoupling the tree from the source buffer's lifetime.
package ast

import "github.com/dekarrin/quosi/internal/bytecode"

// Arena is a monotonic bump allocator for AST node strings. The parser
// copies every string-literal and identifier lexeme into it as the tree is
// built; the whole arena is released in one step when the Graph is dropped
// after code generation.
type Arena struct {
	buf []byte
}

// Intern copies s into the arena and returns a string backed by the copy,
// so the returned string no longer depends on the original source buffer.
func (a *Arena) Intern(s string) string {
	start := len(a.buf)
	a.buf = append(a.buf, s...)
	return string(a.buf[start : start+len(s)])
}

// ExprKind discriminates the Expr sum type.
type ExprKind int

const (
	ExprIdent ExprKind = iota
	ExprImmediate
	ExprOp
)

// Expr is an expression tree node: an identifier reference, a 64-bit
// immediate, or an operator applied to one (unary) or two (binary) children.
type Expr struct {
	Kind      ExprKind
	Ident     string
	Immediate uint64
	Op        bytecode.Op
	Children  []*Expr
}

// EffectActionKind discriminates the EffectAction sum type.
type EffectActionKind int

const (
	EffectAssign EffectActionKind = iota
	EffectAddAssign
	EffectSubAssign
	EffectEmitEvent
)

// EffectAction is one mutation or event emission in an edge's effect block.
// Target/Value are used by Assign/AddAssign/SubAssign; EventText is used by
// EmitEvent.
type EffectAction struct {
	Kind      EffectActionKind
	Target    string
	Value     *Expr
	EventText string
}

// Edge is a single player-visible choice: the line the player sees, the
// optional effect run when it's taken, and the vertex it transitions to.
// Next is one of the reserved labels START/EXIT/ABORT or a declared vertex
// name.
type Edge struct {
	LineText string
	Effect   []EffectAction
	Next     string
}

// EdgeBlockKind discriminates the EdgeBlock sum type.
type EdgeBlockKind int

const (
	EdgeBlockList EdgeBlockKind = iota
	EdgeBlockMatch
	EdgeBlockIfElse
)

// EdgeMatchArm is one arm of a Match wrapping edges: Value/IsCatchall
// selects a literal pattern or the catch-all "_", Body is the edge-block run
// when it matches.
type EdgeMatchArm struct {
	Value      uint64
	IsCatchall bool
	Body       []Edge
}

// EdgeIfBranch is one `if`/`else if` branch of an IfElse wrapping edges.
type EdgeIfBranch struct {
	Cond *Expr
	Body []EdgeBlock
}

// EdgeBlock is one of: a direct list of edges, a Match over a scrutinee
// expression with arms of edges, or an IfElse chain with branches of edge
// blocks. Exactly one of the fields matching Kind is populated.
type EdgeBlock struct {
	Kind EdgeBlockKind

	List []Edge

	MatchScrutinee *Expr
	MatchArms      []EdgeMatchArm

	IfBranches []EdgeIfBranch
	IfCatchall []EdgeBlock
}

// LineSet is a speaker tag plus the lines spoken, emitted in source order.
type LineSet struct {
	Speaker string
	Lines   []string
}

// Vertex is a dialogue scene: zero or more line sets, then either a choice
// list (Edges non-empty) or a monologue transition (FallthroughNext set).
type Vertex struct {
	LineSets        []LineSet
	Edges           []EdgeBlock
	FallthroughNext string
}

// VertexBlockKind discriminates the VertexBlock sum type.
type VertexBlockKind int

const (
	VertexBlockSingle VertexBlockKind = iota
	VertexBlockMatch
	VertexBlockIfElse
)

// VertexMatchArm is one arm of a Match wrapping a vertex declaration.
type VertexMatchArm struct {
	Value      uint64
	IsCatchall bool
	Body       Vertex
}

// VertexIfBranch is one `if`/`else if` branch of an IfElse wrapping a
// vertex declaration.
type VertexIfBranch struct {
	Cond *Expr
	Body VertexBlock
}

// VertexBlock is one of: a single vertex, a Match over a scrutinee with arms
// of vertices, or an IfElse chain of vertex blocks.
type VertexBlock struct {
	Kind VertexBlockKind

	Single Vertex

	MatchScrutinee *Expr
	MatchArms      []VertexMatchArm

	IfBranches []VertexIfBranch
	IfCatchall *VertexBlock
}

// NamedVertex pairs a declared vertex name with its (possibly
// conditionally-wrapped) block, in declaration order.
type NamedVertex struct {
	Name  string
	Block VertexBlock
}

// Graph is the fully parsed dialogue graph: vertices in declaration order,
// a name index for O(1) lookup, and the rename table mapping source aliases
// to real vertex names.
type Graph struct {
	Arena *Arena

	Name        string
	Vertices    []NamedVertex
	NameIndex   map[string]int
	RenameTable map[string]string
}

// NewGraph creates an empty Graph backed by a fresh arena.
func NewGraph(name string) *Graph {
	return &Graph{
		Arena:       &Arena{},
		Name:        name,
		NameIndex:   make(map[string]int),
		RenameTable: make(map[string]string),
	}
}

// Resolve follows the rename table (at most one hop, renames are not
// chained) to find the real vertex name for an identifier, returning the
// identifier unchanged if it has no alias.
func (g *Graph) Resolve(name string) string {
	if real, ok := g.RenameTable[name]; ok {
		return real
	}
	return name
}

// IsReservedLabel reports whether name is one of the sentinel labels
// START/EXIT/ABORT.
func IsReservedLabel(name string) bool {
	switch name {
	case bytecode.LabelStart, bytecode.LabelExit, bytecode.LabelAbort:
		return true
	default:
		return false
	}
}
