package parser

import (
	"strconv"

	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/bytecode"
	"github.com/dekarrin/quosi/internal/lexer"
	"github.com/dekarrin/quosi/internal/qerr"
)

// binaryOp describes a binary operator token: its VM opcode and its
// binding power. Binding powers are spec.md's left-binding-powers scaled by
// ten. led parses the right operand with the operator's own lbp as the
// minimum, so a following operator of equal precedence ends that operand.
type binaryOp struct {
	op  bytecode.Op
	lbp int
}

var binaryOps = map[lexer.Kind]binaryOp{
	lexer.PipePipe: {bytecode.Lor, 10},
	lexer.AmpAmp:   {bytecode.Land, 20},
	lexer.EqEq:     {bytecode.Equ, 40},
	lexer.BangEq:   {bytecode.Neq, 40},
	lexer.Lt:       {bytecode.Lth, 50},
	lexer.Gt:       {bytecode.Gth, 50},
	lexer.LtEq:     {bytecode.Leq, 50},
	lexer.GtEq:     {bytecode.Geq, 50},
	lexer.Plus:     {bytecode.Add, 60},
	lexer.Minus:    {bytecode.Sub, 60},
	lexer.Star:     {bytecode.Mul, 70},
	lexer.Slash:    {bytecode.Div, 70},
}

// parseExpr is the Pratt expression parser entry point: it parses an
// expression binding everything with a left-binding-power greater than rbp.
func (p *parser) parseExpr(rbp int) *ast.Expr {
	t := p.s.Next()
	left := p.nud(t)

	for {
		next := p.s.Peek()
		bop, ok := binaryOps[next.Kind]
		if !ok || bop.lbp <= rbp {
			break
		}
		p.s.Next()
		left = p.led(left, bop)
	}
	return left
}

// nud ("null denotation") parses a token that starts an expression: an
// atom, a parenthesized sub-expression, or a unary operator.
func (p *parser) nud(t lexer.Token) *ast.Expr {
	switch t.Kind {
	case lexer.Ident:
		return &ast.Expr{Kind: ast.ExprIdent, Ident: p.graph.Arena.Intern(t.Lexeme)}
	case lexer.Number:
		n, err := strconv.ParseUint(t.Lexeme, 10, 64)
		if err != nil {
			p.failf(qerr.Unknown, t, "invalid number literal %q", t.Lexeme)
		}
		return &ast.Expr{Kind: ast.ExprImmediate, Immediate: n}
	case lexer.KwTrue:
		return &ast.Expr{Kind: ast.ExprImmediate, Immediate: 1}
	case lexer.KwFalse:
		return &ast.Expr{Kind: ast.ExprImmediate, Immediate: 0}
	case lexer.LParen:
		inner := p.parseExpr(0)
		p.expect(lexer.RParen)
		return inner
	case lexer.Bang:
		child := p.parseExpr(maxBindingPower)
		return &ast.Expr{Kind: ast.ExprOp, Op: bytecode.Lnot, Children: []*ast.Expr{child}}
	default:
		p.failf(qerr.MisplacedToken, t, "%s cannot start an expression", t.Kind)
		return nil
	}
}

// maxBindingPower is higher than any binary operator's lbp, so a unary
// operator's operand never swallows a following binary operator it
// shouldn't.
const maxBindingPower = 1000

// led ("left denotation") combines an already-parsed left operand with a
// binary operator, parsing the right operand with rbp = lbp so that
// same-precedence operators associate left.
func (p *parser) led(left *ast.Expr, bop binaryOp) *ast.Expr {
	right := p.parseExpr(bop.lbp)
	return &ast.Expr{Kind: ast.ExprOp, Op: bop.op, Children: []*ast.Expr{left, right}}
}
