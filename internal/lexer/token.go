// Package lexer turns Quosi source text into a stream of tokens for the
// parser. It is a single-pass, cooperative state machine with one-token
// lookahead; string escapes are left undecoded for the code generator to
// resolve at string-pool emission time.
package lexer

import "fmt"

// Kind enumerates the lexical categories the lexer can produce.
type Kind int

const (
	Eof Kind = iota
	Error

	Ident
	Number
	String
	Underscore

	// keywords
	KwIf
	KwThen
	KwElse
	KwMatch
	KwWith
	KwEnd
	KwTrue
	KwFalse
	KwRename
	KwModule
	KwEndmod

	// punctuation
	LParen
	RParen
	LBracket
	RBracket
	LBrace
	RBrace
	Comma
	Colon

	// operators
	Plus
	Minus
	Star
	Slash
	Lt
	Gt
	Eq
	Bang
	Amp
	Pipe

	PlusEq
	MinusEq
	StarEq
	SlashEq
	LtEq
	GtEq
	EqEq
	BangEq
	AmpAmp
	PipePipe
	ColonColon
	Arrow
)

var keywords = map[string]Kind{
	"if":     KwIf,
	"then":   KwThen,
	"else":   KwElse,
	"match":  KwMatch,
	"with":   KwWith,
	"end":    KwEnd,
	"true":   KwTrue,
	"false":  KwFalse,
	"rename": KwRename,
	"module": KwModule,
	"endmod": KwEndmod,
}

var kindNames = map[Kind]string{
	Eof: "end of file", Error: "lexical error",
	Ident: "identifier", Number: "number", String: "string literal", Underscore: "'_'",
	KwIf: "'if'", KwThen: "'then'", KwElse: "'else'", KwMatch: "'match'", KwWith: "'with'",
	KwEnd: "'end'", KwTrue: "'true'", KwFalse: "'false'", KwRename: "'rename'",
	KwModule: "'module'", KwEndmod: "'endmod'",
	LParen: "'('", RParen: "')'", LBracket: "'['", RBracket: "']'",
	LBrace: "'{'", RBrace: "'}'", Comma: "','", Colon: "':'",
	Plus: "'+'", Minus: "'-'", Star: "'*'", Slash: "'/'",
	Lt: "'<'", Gt: "'>'", Eq: "'='", Bang: "'!'", Amp: "'&'", Pipe: "'|'",
	PlusEq: "'+='", MinusEq: "'-='", StarEq: "'*='", SlashEq: "'/='",
	LtEq: "'<='", GtEq: "'>='", EqEq: "'=='", BangEq: "'!='",
	AmpAmp: "'&&'", PipePipe: "'||'", ColonColon: "'::'", Arrow: "'=>'",
}

// String returns a human-readable name for the token kind, suitable for use
// in diagnostics.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Span is a 1-indexed row/column source location.
type Span struct {
	Row int
	Col int
}

// Token is a single lexical unit: a kind, a non-owning lexeme view into the
// source buffer, and its source span.
type Token struct {
	Kind    Kind
	Lexeme  string
	Span    Span
	Message string // set only when Kind == Error
}
