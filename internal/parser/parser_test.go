package parser

import (
	"testing"

	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/bytecode"
	"github.com/dekarrin/quosi/internal/lexer"
	"github.com/dekarrin/quosi/internal/qerr"
	"github.com/stretchr/testify/assert"
)

func Test_Parse_simpleVertexWithEdges(t *testing.T) {
	assert := assert.New(t)

	src := `
START = <NARRATOR: "Welcome."> (
	"Go north" => ROOM1
	"Go south" => EXIT
)
ROOM1 = <NARRATOR: "A room."> => EXIT
`
	g, errs := Parse(src)
	assert.True(errs.Empty(), "unexpected errors: %v", errs)

	assert.Len(g.Vertices, 2)
	start := g.Vertices[0]
	assert.Equal("START", start.Name)
	assert.Equal(ast.VertexBlockSingle, start.Block.Kind)
	assert.Len(start.Block.Single.LineSets, 1)
	assert.Equal("NARRATOR", start.Block.Single.LineSets[0].Speaker)
	assert.Len(start.Block.Single.Edges, 1)
	assert.Equal(ast.EdgeBlockList, start.Block.Single.Edges[0].Kind)
	assert.Len(start.Block.Single.Edges[0].List, 2)
	assert.Equal("ROOM1", start.Block.Single.Edges[0].List[0].Next)
	assert.Equal("EXIT", start.Block.Single.Edges[0].List[1].Next)

	room1 := g.Vertices[1]
	assert.Equal("EXIT", room1.Block.Single.FallthroughNext)
}

func Test_Parse_rename(t *testing.T) {
	assert := assert.New(t)

	src := `
rename hero => PlayerCharacter
START = <N: "hi"> => EXIT
`
	g, errs := Parse(src)
	assert.True(errs.Empty())
	assert.Equal("PlayerCharacter", g.RenameTable["hero"])
}

func Test_Parse_moduleEnvelopeIsTransparent(t *testing.T) {
	assert := assert.New(t)

	src := `
module Demo
START = <N: "hi"> => EXIT
endmod
`
	g, errs := Parse(src)
	assert.True(errs.Empty())
	assert.Len(g.Vertices, 1)
}

func Test_Parse_ifElseVertexBlock(t *testing.T) {
	assert := assert.New(t)

	src := `
START = if flag then <N: "yes"> => EXIT else <N: "no"> => EXIT end
`
	g, errs := Parse(src)
	assert.True(errs.Empty())

	block := g.Vertices[0].Block
	assert.Equal(ast.VertexBlockIfElse, block.Kind)
	assert.Len(block.IfBranches, 1)
	assert.NotNil(block.IfCatchall)
}

func Test_Parse_ifChainMissingElse_isRecoverable(t *testing.T) {
	assert := assert.New(t)

	src := `
START = if flag then <N: "yes"> => EXIT end
`
	g, errs := Parse(src)
	assert.False(errs.Fail, "missing else should be recoverable, not critical")
	assert.NotNil(g)

	found := false
	for _, e := range errs.Errors {
		if e.Kind == qerr.NoElse {
			found = true
		}
	}
	assert.True(found, "expected a NoElse diagnostic")
}

func Test_Parse_matchVertexBlock(t *testing.T) {
	assert := assert.New(t)

	src := `
START = match counter with
	(0) <N: "zero"> => EXIT
	(1) <N: "one"> => EXIT
	(_) <N: "other"> => EXIT
end
`
	g, errs := Parse(src)
	assert.True(errs.Empty())

	block := g.Vertices[0].Block
	assert.Equal(ast.VertexBlockMatch, block.Kind)
	assert.Len(block.MatchArms, 3)
	assert.True(block.MatchArms[2].IsCatchall)
}

func Test_Parse_matchMissingCatchall_isRecoverable(t *testing.T) {
	assert := assert.New(t)

	src := `
START = match counter with
	(0) <N: "zero"> => EXIT
end
`
	_, errs := Parse(src)
	assert.False(errs.Fail)

	found := false
	for _, e := range errs.Errors {
		if e.Kind == qerr.NoCatchall {
			found = true
		}
	}
	assert.True(found)
}

func Test_Parse_edgeEffectBlock(t *testing.T) {
	assert := assert.New(t)

	src := `
START = (
	"Take the sword" :: gold -= 10, haveSword = 1 => ROOM1
)
ROOM1 = <N: "ok"> => EXIT
`
	g, errs := Parse(src)
	assert.True(errs.Empty())

	edge := g.Vertices[0].Block.Single.Edges[0].List[0]
	assert.Len(edge.Effect, 2)
	assert.Equal(ast.EffectSubAssign, edge.Effect[0].Kind)
	assert.Equal("gold", edge.Effect[0].Target)
	assert.Equal(ast.EffectAssign, edge.Effect[1].Kind)
	assert.Equal("haveSword", edge.Effect[1].Target)
}

func Test_Parse_edgeEventEffect(t *testing.T) {
	assert := assert.New(t)

	src := `
START = (
	"Ring the bell" :: event("bell_rung") => EXIT
)
`
	g, errs := Parse(src)
	assert.True(errs.Empty())

	edge := g.Vertices[0].Block.Single.Edges[0].List[0]
	assert.Len(edge.Effect, 1)
	assert.Equal(ast.EffectEmitEvent, edge.Effect[0].Kind)
	assert.Equal("bell_rung", edge.Effect[0].EventText)
}

func Test_Parse_duplicateVertexName_isRecoverable(t *testing.T) {
	assert := assert.New(t)

	src := `
START = <N: "a"> => EXIT
START = <N: "b"> => EXIT
`
	g, errs := Parse(src)
	assert.False(errs.Fail)
	assert.Len(g.Vertices, 1, "second declaration of a duplicate name must not be added")

	found := false
	for _, e := range errs.Errors {
		if e.Kind == qerr.MultiVertexName {
			found = true
		}
	}
	assert.True(found)
}

func Test_Parse_danglingEdge_isRecoverable(t *testing.T) {
	assert := assert.New(t)

	src := `
START = <N: "a"> => NOWHERE
`
	_, errs := Parse(src)
	assert.False(errs.Fail)

	found := false
	for _, e := range errs.Errors {
		if e.Kind == qerr.DanglingEdge {
			found = true
		}
	}
	assert.True(found)
}

func Test_Parse_missingEntryPoint_isRecoverable(t *testing.T) {
	assert := assert.New(t)

	src := `
ROOM1 = <N: "a"> => EXIT
`
	_, errs := Parse(src)
	assert.False(errs.Fail)

	found := false
	for _, e := range errs.Errors {
		if e.Kind == qerr.NoEntryPoint {
			found = true
		}
	}
	assert.True(found)
}

func Test_Parse_reservedLabelAsVertexName_isCritical(t *testing.T) {
	assert := assert.New(t)

	src := `
EXIT = <N: "a"> => EXIT
`
	_, errs := Parse(src)
	assert.True(errs.Fail, "EXIT cannot be declared as a vertex")
}

func Test_Parse_criticalSyntaxError_stopsParsingWithoutPanicEscaping(t *testing.T) {
	assert := assert.New(t)

	src := `START = `
	assert.NotPanics(func() {
		_, errs := Parse(src)
		assert.True(errs.Fail)
	})
}

func Test_parseExpr_leftAssociativity(t *testing.T) {
	assert := assert.New(t)

	// "1 - 2 - 3" must parse as (1 - 2) - 3, not 1 - (2 - 3).
	s := newExprParser(t, "1 - 2 - 3")
	e := s.parseExpr(0)

	assert.Equal(ast.ExprOp, e.Kind)
	assert.Equal(bytecode.Sub, e.Op)
	assert.Len(e.Children, 2)

	left := e.Children[0]
	assert.Equal(ast.ExprOp, left.Kind)
	assert.Equal(bytecode.Sub, left.Op)
	assert.Equal(uint64(1), left.Children[0].Immediate)
	assert.Equal(uint64(2), left.Children[1].Immediate)

	right := e.Children[1]
	assert.Equal(ast.ExprImmediate, right.Kind)
	assert.Equal(uint64(3), right.Immediate)
}

func Test_parseExpr_precedence(t *testing.T) {
	assert := assert.New(t)

	// "1 + 2 * 3" must parse as 1 + (2 * 3).
	s := newExprParser(t, "1 + 2 * 3")
	e := s.parseExpr(0)

	assert.Equal(bytecode.Add, e.Op)
	assert.Equal(uint64(1), e.Children[0].Immediate)

	right := e.Children[1]
	assert.Equal(bytecode.Mul, right.Op)
	assert.Equal(uint64(2), right.Children[0].Immediate)
	assert.Equal(uint64(3), right.Children[1].Immediate)
}

func Test_parseExpr_parenthesesOverridePrecedence(t *testing.T) {
	assert := assert.New(t)

	// "(1 + 2) * 3" must parse as (1 + 2) * 3.
	s := newExprParser(t, "(1 + 2) * 3")
	e := s.parseExpr(0)

	assert.Equal(bytecode.Mul, e.Op)
	left := e.Children[0]
	assert.Equal(bytecode.Add, left.Op)
	assert.Equal(uint64(3), e.Children[1].Immediate)
}

func Test_parseExpr_unaryNotBindsTighterThanBinary(t *testing.T) {
	assert := assert.New(t)

	// "!a && b" must parse as (!a) && b, not !(a && b).
	s := newExprParser(t, "!a && b")
	e := s.parseExpr(0)

	assert.Equal(bytecode.Land, e.Op)
	left := e.Children[0]
	assert.Equal(bytecode.Lnot, left.Op)
	assert.Equal(ast.ExprIdent, left.Children[0].Kind)
	assert.Equal("a", left.Children[0].Ident)
}

func Test_parseExpr_comparisonAndLogicalPrecedence(t *testing.T) {
	assert := assert.New(t)

	// "a == 1 || b == 2" must parse as (a == 1) || (b == 2).
	s := newExprParser(t, "a == 1 || b == 2")
	e := s.parseExpr(0)

	assert.Equal(bytecode.Lor, e.Op)
	assert.Equal(bytecode.Equ, e.Children[0].Op)
	assert.Equal(bytecode.Equ, e.Children[1].Op)
}

// newExprParser builds a parser positioned to read expr tokens from src,
// backed by a throwaway graph so Arena.Intern calls in nud succeed.
func newExprParser(t *testing.T, src string) *parser {
	t.Helper()
	return &parser{
		s:     lexer.NewStream(src),
		graph: ast.NewGraph(""),
		errs:  &qerr.List{},
	}
}
