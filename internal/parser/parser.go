// Package parser implements the recursive-descent, Pratt-expression parser
// that turns a Quosi token stream into an ast.Graph.
package parser

import (
	"strconv"

	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/lexer"
	"github.com/dekarrin/quosi/internal/qerr"
)

// critical is panicked to unwind the recursive descent on a critical
// diagnostic, and recovered at the top of Parse. It carries no data — the
// error has already been appended to the accumulator by the time it's
// thrown.
type critical struct{}

// parser holds the mutable state threaded through the recursive-descent
// parse: the token stream, the graph under construction, and the error
// accumulator.
type parser struct {
	s     *lexer.Stream
	graph *ast.Graph
	errs  *qerr.List
}

// Parse parses src into a Graph. If the returned error list is non-empty,
// the graph is incomplete or invalid and must not be passed to codegen.
func Parse(src string) (*ast.Graph, *qerr.List) {
	p := &parser{
		s:     lexer.NewStream(src),
		graph: ast.NewGraph(""),
		errs:  &qerr.List{},
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(critical); !ok {
					panic(r)
				}
			}
		}()
		p.parseGraph()
	}()

	if !p.errs.Fail {
		p.validate()
	}

	return p.graph, p.errs
}

func span(t lexer.Token) qerr.Span {
	return qerr.Span{Row: t.Span.Row, Col: t.Span.Col}
}

// fail records a critical diagnostic and unwinds the parse.
func (p *parser) fail(kind qerr.Kind, t lexer.Token) {
	p.errs.Add(qerr.New(kind, span(t)))
	panic(critical{})
}

// failf is fail with a custom message.
func (p *parser) failf(kind qerr.Kind, t lexer.Token, format string, args ...any) {
	p.errs.Add(qerr.Newf(kind, span(t), format, args...))
	panic(critical{})
}

// recoverable records a non-critical diagnostic and lets parsing continue.
func (p *parser) recoverable(kind qerr.Kind, t lexer.Token) {
	p.errs.Add(qerr.New(kind, span(t)))
}

// expect consumes the next token, failing critically if it isn't of kind k.
func (p *parser) expect(k lexer.Kind) lexer.Token {
	t := p.s.Next()
	if t.Kind == lexer.Error {
		p.failf(qerr.Unknown, t, "%s", t.Message)
	}
	if t.Kind != k {
		p.failf(qerr.MisplacedToken, t, "expected %s, found %s", k, t.Kind)
	}
	return t
}

// at reports whether the next token (without consuming) is of kind k.
func (p *parser) at(k lexer.Kind) bool {
	return p.s.Peek().Kind == k
}

// parseGraph parses the top-level { rename | vertex_decl } list, optionally
// wrapped in a transparent "module NAME … endmod" envelope (see
// SPEC_FULL.md §1.1 — module grammar is not a linking mechanism here).
func (p *parser) parseGraph() {
	if p.at(lexer.KwModule) {
		p.s.Next()
		p.expect(lexer.Ident)
	}

	for {
		t := p.s.Peek()
		switch t.Kind {
		case lexer.Eof, lexer.KwEndmod:
			if t.Kind == lexer.KwEndmod {
				p.s.Next()
			}
			return
		case lexer.KwRename:
			p.parseRename()
		case lexer.Ident:
			p.parseVertexDecl()
		default:
			p.fail(qerr.BadVertexBegin, t)
		}
	}
}

// parseRename parses `rename IDENT => IDENT`.
func (p *parser) parseRename() {
	p.s.Next() // 'rename'
	aliasTok := p.s.Next()
	if aliasTok.Kind != lexer.Ident {
		p.fail(qerr.BadRename, aliasTok)
	}
	arrow := p.s.Next()
	if arrow.Kind != lexer.Arrow {
		p.fail(qerr.BadRename, arrow)
	}
	realTok := p.s.Next()
	if realTok.Kind != lexer.Ident {
		p.fail(qerr.BadRename, realTok)
	}
	p.graph.RenameTable[p.graph.Arena.Intern(aliasTok.Lexeme)] = p.graph.Arena.Intern(realTok.Lexeme)
}

// parseVertexDecl parses `IDENT = vblock`.
func (p *parser) parseVertexDecl() {
	nameTok := p.s.Next()
	name := p.graph.Arena.Intern(nameTok.Lexeme)

	if ast.IsReservedLabel(name) && name != "START" {
		p.failf(qerr.BadVertexBegin, nameTok, "%q is a reserved label and cannot be declared as a vertex", name)
	}

	p.expect(lexer.Eq)

	block := p.parseVertexBlock()

	if _, exists := p.graph.NameIndex[name]; exists {
		p.recoverable(qerr.MultiVertexName, nameTok)
		return
	}

	p.graph.NameIndex[name] = len(p.graph.Vertices)
	p.graph.Vertices = append(p.graph.Vertices, ast.NamedVertex{Name: name, Block: block})
}

// parseVertexBlock parses `vblock`.
func (p *parser) parseVertexBlock() ast.VertexBlock {
	switch p.s.Peek().Kind {
	case lexer.KwIf:
		return p.parseVertexIfElse()
	case lexer.KwMatch:
		return p.parseVertexMatch()
	default:
		return ast.VertexBlock{Kind: ast.VertexBlockSingle, Single: p.parseVertex()}
	}
}

func (p *parser) parseVertexIfElse() ast.VertexBlock {
	var branches []ast.VertexIfBranch
	var catchall *ast.VertexBlock
	startTok := p.s.Peek()

	p.s.Next() // 'if'
	for {
		cond := p.parseExpr(0)
		p.expect(lexer.KwThen)
		body := p.parseVertexBlock()
		branches = append(branches, ast.VertexIfBranch{Cond: cond, Body: body})

		if p.at(lexer.KwElse) {
			p.s.Next()
			if p.at(lexer.KwIf) {
				p.s.Next()
				continue
			}
			elseBody := p.parseVertexBlock()
			catchall = &elseBody
			p.expect(lexer.KwEnd)
			break
		}
		if p.at(lexer.KwEnd) {
			p.s.Next()
			p.recoverable(qerr.NoElse, startTok)
			break
		}
		p.fail(qerr.MisplacedToken, p.s.Peek())
	}

	return ast.VertexBlock{Kind: ast.VertexBlockIfElse, IfBranches: branches, IfCatchall: catchall}
}

func (p *parser) parseVertexMatch() ast.VertexBlock {
	startTok := p.s.Peek()
	p.s.Next() // 'match'
	scrutinee := p.parseExpr(0)
	p.expect(lexer.KwWith)

	var arms []ast.VertexMatchArm
	haveCatchall := false
	for p.at(lexer.LParen) {
		p.s.Next()
		var arm ast.VertexMatchArm
		if p.at(lexer.Underscore) {
			p.s.Next()
			arm.IsCatchall = true
			haveCatchall = true
		} else {
			arm.Value = p.parseMatchValue()
		}
		p.expect(lexer.RParen)
		arm.Body = p.parseVertex()
		arms = append(arms, arm)
	}
	p.expect(lexer.KwEnd)
	if !haveCatchall {
		p.recoverable(qerr.NoCatchall, startTok)
	}

	return ast.VertexBlock{Kind: ast.VertexBlockMatch, MatchScrutinee: scrutinee, MatchArms: arms}
}

// parseMatchValue parses a match-arm pattern literal: a number or boolean.
func (p *parser) parseMatchValue() uint64 {
	t := p.s.Next()
	switch t.Kind {
	case lexer.Number:
		n, err := strconv.ParseUint(t.Lexeme, 10, 64)
		if err != nil {
			p.failf(qerr.Unknown, t, "invalid number literal %q", t.Lexeme)
		}
		return n
	case lexer.KwTrue:
		return 1
	case lexer.KwFalse:
		return 0
	default:
		p.failf(qerr.MisplacedToken, t, "expected a match pattern value")
		return 0
	}
}

// parseVertex parses `vertex := { line_set } ( "=>" ident | "(" edge_body ")" )`.
func (p *parser) parseVertex() ast.Vertex {
	var v ast.Vertex
	for p.at(lexer.Lt) {
		v.LineSets = append(v.LineSets, p.parseLineSet())
	}

	switch p.s.Peek().Kind {
	case lexer.Arrow:
		p.s.Next()
		nextTok := p.expect(lexer.Ident)
		v.FallthroughNext = p.graph.Arena.Intern(nextTok.Lexeme)
	case lexer.LParen:
		p.s.Next()
		v.Edges = p.parseEdgeBody()
		p.expect(lexer.RParen)
	default:
		p.fail(qerr.MisplacedToken, p.s.Peek())
	}
	return v
}

// parseLineSet parses `"<" ident ":" strlit { "," strlit } ">"`.
func (p *parser) parseLineSet() ast.LineSet {
	p.s.Next() // '<'
	speakerTok := p.expect(lexer.Ident)
	p.expect(lexer.Colon)

	var ls ast.LineSet
	ls.Speaker = p.graph.Arena.Intern(speakerTok.Lexeme)

	first := p.expect(lexer.String)
	ls.Lines = append(ls.Lines, p.graph.Arena.Intern(first.Lexeme))
	for p.at(lexer.Comma) {
		p.s.Next()
		lineTok := p.expect(lexer.String)
		ls.Lines = append(ls.Lines, p.graph.Arena.Intern(lineTok.Lexeme))
	}
	p.expect(lexer.Gt)
	return ls
}

// parseEdgeBody parses `edge_body := { edge | eblock }`.
func (p *parser) parseEdgeBody() []ast.EdgeBlock {
	var blocks []ast.EdgeBlock
	for {
		switch p.s.Peek().Kind {
		case lexer.String:
			e := p.parseEdge()
			if n := len(blocks); n > 0 && blocks[n-1].Kind == ast.EdgeBlockList {
				blocks[n-1].List = append(blocks[n-1].List, e)
			} else {
				blocks = append(blocks, ast.EdgeBlock{Kind: ast.EdgeBlockList, List: []ast.Edge{e}})
			}
		case lexer.KwIf:
			blocks = append(blocks, p.parseEdgeIfElse())
		case lexer.KwMatch:
			blocks = append(blocks, p.parseEdgeMatch())
		default:
			return blocks
		}
	}
}

func (p *parser) parseEdgeIfElse() ast.EdgeBlock {
	var branches []ast.EdgeIfBranch
	var catchall []ast.EdgeBlock
	startTok := p.s.Peek()

	p.s.Next() // 'if'
	for {
		cond := p.parseExpr(0)
		p.expect(lexer.KwThen)
		body := p.parseEdgeBody()
		if len(body) == 0 {
			p.fail(qerr.MisplacedToken, p.s.Peek())
		}
		branches = append(branches, ast.EdgeIfBranch{Cond: cond, Body: body})

		if p.at(lexer.KwElse) {
			p.s.Next()
			if p.at(lexer.KwIf) {
				p.s.Next()
				continue
			}
			elseBody := p.parseEdgeBody()
			if len(elseBody) == 0 {
				p.fail(qerr.MisplacedToken, p.s.Peek())
			}
			catchall = elseBody
			p.expect(lexer.KwEnd)
			break
		}
		if p.at(lexer.KwEnd) {
			p.s.Next()
			p.recoverable(qerr.NoElse, startTok)
			break
		}
		p.fail(qerr.MisplacedToken, p.s.Peek())
	}

	return ast.EdgeBlock{Kind: ast.EdgeBlockIfElse, IfBranches: branches, IfCatchall: catchall}
}

func (p *parser) parseEdgeMatch() ast.EdgeBlock {
	startTok := p.s.Peek()
	p.s.Next() // 'match'
	scrutinee := p.parseExpr(0)
	p.expect(lexer.KwWith)

	var arms []ast.EdgeMatchArm
	haveCatchall := false
	for p.at(lexer.LParen) {
		p.s.Next()
		var arm ast.EdgeMatchArm
		if p.at(lexer.Underscore) {
			p.s.Next()
			arm.IsCatchall = true
			haveCatchall = true
		} else {
			arm.Value = p.parseMatchValue()
		}
		p.expect(lexer.RParen)
		arm.Body = []ast.Edge{p.parseEdge()}
		arms = append(arms, arm)
	}
	p.expect(lexer.KwEnd)
	if !haveCatchall {
		p.recoverable(qerr.NoCatchall, startTok)
	}

	return ast.EdgeBlock{Kind: ast.EdgeBlockMatch, MatchScrutinee: scrutinee, MatchArms: arms}
}

// parseEdge parses `edge := strlit [ "::" effect_block ] "=>" ident`.
func (p *parser) parseEdge() ast.Edge {
	lineTok := p.expect(lexer.String)
	var e ast.Edge
	e.LineText = p.graph.Arena.Intern(lineTok.Lexeme)

	if p.at(lexer.ColonColon) {
		p.s.Next()
		e.Effect = p.parseEffectBlock()
	}

	p.expect(lexer.Arrow)
	nextTok := p.expect(lexer.Ident)
	e.Next = p.graph.Arena.Intern(nextTok.Lexeme)
	return e
}

// parseEffectBlock parses `effect_block := effect { "," effect }`.
func (p *parser) parseEffectBlock() []ast.EffectAction {
	var actions []ast.EffectAction
	actions = append(actions, p.parseEffect())
	for p.at(lexer.Comma) {
		p.s.Next()
		actions = append(actions, p.parseEffect())
	}
	return actions
}

// parseEffect parses one `effect := ident (= | += | -=) expr | "event" "(" strlit ")"`.
func (p *parser) parseEffect() ast.EffectAction {
	t := p.s.Next()
	if t.Kind == lexer.Ident && t.Lexeme == "event" {
		p.expect(lexer.LParen)
		strTok := p.expect(lexer.String)
		p.expect(lexer.RParen)
		return ast.EffectAction{Kind: ast.EffectEmitEvent, EventText: p.graph.Arena.Intern(strTok.Lexeme)}
	}
	if t.Kind != lexer.Ident {
		p.failf(qerr.MisplacedToken, t, "expected an identifier or 'event' in effect")
	}
	target := p.graph.Arena.Intern(t.Lexeme)

	op := p.s.Next()
	var kind ast.EffectActionKind
	switch op.Kind {
	case lexer.Eq:
		kind = ast.EffectAssign
	case lexer.PlusEq:
		kind = ast.EffectAddAssign
	case lexer.MinusEq:
		kind = ast.EffectSubAssign
	default:
		p.failf(qerr.MisplacedToken, op, "expected '=', '+=' or '-=' in effect")
	}

	value := p.parseExpr(0)
	return ast.EffectAction{Kind: kind, Target: target, Value: value}
}
