// Package qerr contains the diagnostic error model shared by the lexer,
// parser and code generator: a classified error kind, a source span, and an
// accumulator that callers use to collect diagnostics across a compile.
package qerr

import "fmt"

// Span is a 1-indexed source location.
type Span struct {
	Row int
	Col int
}

// Kind classifies a diagnostic. Each kind carries a fixed English
// description and a fixed critical/recoverable classification.
type Kind int

const (
	Unknown Kind = iota
	EarlyEof
	MisplacedToken
	BadVertexBegin
	BadRename
	NoElse
	NoCatchall
	CaseDuplicate
	NoEntryPoint
	MultiVertexName
	DanglingEdge
)

var descriptions = map[Kind]string{
	Unknown:         "internal parser error",
	EarlyEof:        "unexpected end of file",
	MisplacedToken:  "unexpected token",
	BadVertexBegin:  "vertex declaration must start with an identifier",
	BadRename:       "malformed rename declaration",
	NoElse:          "if-chain is missing a final else branch",
	NoCatchall:      "match is missing a catch-all (_) arm",
	CaseDuplicate:   "duplicate vertex name",
	NoEntryPoint:    "graph has no START vertex",
	MultiVertexName: "vertex name already declared",
	DanglingEdge:    "edge targets an undeclared vertex",
}

// String returns the kind's fixed English description.
func (k Kind) String() string {
	if s, ok := descriptions[k]; ok {
		return s
	}
	return "unknown error"
}

// Critical reports whether a diagnostic of this kind aborts parsing
// immediately, as opposed to being recorded and parsing continuing.
func (k Kind) Critical() bool {
	switch k {
	case EarlyEof, MisplacedToken, BadVertexBegin, BadRename, Unknown:
		return true
	default:
		return false
	}
}

// Error is a single classified diagnostic with a source location.
type Error struct {
	Kind    Kind
	Span    Span
	Message string
}

// Error implements the error interface.
func (e Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Span.Row == 0 {
		return fmt.Sprintf("quosi: %s", msg)
	}
	return fmt.Sprintf("quosi: %d:%d: %s", e.Span.Row, e.Span.Col, msg)
}

// New builds an Error of the given kind at the given span, using the kind's
// fixed description as the message.
func New(kind Kind, span Span) Error {
	return Error{Kind: kind, Span: span, Message: kind.String()}
}

// Newf builds an Error of the given kind at the given span with a custom
// message.
func Newf(kind Kind, span Span, format string, args ...any) Error {
	return Error{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)}
}

// List accumulates diagnostics produced during a single compile. Fail is set
// once a critical error has been appended; callers should stop parsing as
// soon as Fail is true.
type List struct {
	Errors []Error
	Fail   bool
}

// Add appends an error to the list, setting Fail if the error's kind is
// critical.
func (l *List) Add(e Error) {
	l.Errors = append(l.Errors, e)
	if e.Kind.Critical() {
		l.Fail = true
	}
}

// Empty reports whether no diagnostics have been recorded.
func (l *List) Empty() bool {
	return len(l.Errors) == 0
}

// Error renders every accumulated diagnostic, one per line.
func (l *List) Error() string {
	var out string
	for i, e := range l.Errors {
		if i > 0 {
			out += "\n"
		}
		out += e.Error()
	}
	return out
}
