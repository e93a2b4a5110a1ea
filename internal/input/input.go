// Package input reads trace-session choices and commands from a terminal or
// any other input stream, choosing between a readline-backed interactive
// reader and a plain buffered reader depending on how the CLI was launched.
package input

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Reader is a source of one command (a trimmed line of input) at a time.
type Reader interface {
	// ReadCommand reads a single line of input. It will block until one is
	// ready. If there is an error or input is at end (EOF), the returned
	// string will be empty, otherwise it will always be non-empty unless
	// AllowBlank was set.
	ReadCommand() (string, error)

	// AllowBlank sets whether a blank line may be returned by ReadCommand
	// instead of blocking for non-blank input. Default false.
	AllowBlank(allow bool)

	// Close releases any resources the Reader holds.
	Close() error
}

// DirectCommandReader implements Reader and reads from any generic input
// stream directly. It can be used with any io.Reader but does not sanitize
// control or escape sequences.
//
// DirectCommandReader should not be constructed directly; use
// [NewDirectReader].
type DirectCommandReader struct {
	r             *bufio.Reader
	blanksAllowed bool
}

// InteractiveCommandReader implements Reader and reads from stdin using a Go
// implementation of GNU Readline, giving history and line editing. This
// should only be used when connected directly to a TTY.
//
// InteractiveCommandReader should not be constructed directly; use
// [NewInteractiveReader].
type InteractiveCommandReader struct {
	rl            *readline.Instance
	blanksAllowed bool
	prompt        string
}

// NewDirectReader creates a DirectCommandReader buffered over r. The
// returned Reader must have Close called on it before disposal.
func NewDirectReader(r io.Reader) *DirectCommandReader {
	return &DirectCommandReader{
		r: bufio.NewReader(r),
	}
}

// NewInteractiveReader creates an InteractiveCommandReader and initializes
// readline. The returned Reader must have Close called on it before
// disposal to properly tear down readline resources.
func NewInteractiveReader() (*InteractiveCommandReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "> ",
	})
	if err != nil {
		return nil, fmt.Errorf("create readline config: %w", err)
	}

	return &InteractiveCommandReader{
		rl:     rl,
		prompt: "> ",
	}, nil
}

// Close is a no-op: DirectCommandReader holds no resources that need
// releasing, but callers should still call it since Reader requires it.
func (dcr *DirectCommandReader) Close() error {
	return nil
}

// Close tears down the underlying readline session.
func (icr *InteractiveCommandReader) Close() error {
	return icr.rl.Close()
}

// ReadCommand reads the next line from the underlying stream. The returned
// string will only be empty if there is an error reading input, otherwise
// this function blocks until a line containing non-space characters is
// read (unless AllowBlank(true) was called).
//
// At end of input, the returned string will be empty and error will be
// io.EOF. If any other error occurs, the returned string will be empty and
// error will be that error.
func (dcr *DirectCommandReader) ReadCommand() (string, error) {
	var line string
	var err error

	for line == "" {
		line, err = dcr.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		line = strings.TrimSpace(line)

		if line == "" && dcr.blanksAllowed {
			return line, nil
		}
	}

	return line, nil
}

// ReadCommand reads the next line from readline. See DirectCommandReader's
// ReadCommand for the blocking/blank/EOF contract, which this matches.
func (icr *InteractiveCommandReader) ReadCommand() (string, error) {
	var line string
	var err error

	for line == "" {
		line, err = icr.rl.Readline()
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		line = strings.TrimSpace(line)

		if line == "" && icr.blanksAllowed {
			return line, nil
		}
	}

	return line, nil
}

// AllowBlank sets whether blank input is allowed. By default it is not.
func (dcr *DirectCommandReader) AllowBlank(allow bool) {
	dcr.blanksAllowed = allow
}

// AllowBlank sets whether blank input is allowed. By default it is not.
func (icr *InteractiveCommandReader) AllowBlank(allow bool) {
	icr.blanksAllowed = allow
}

// SetPrompt updates the prompt to the given text.
func (icr *InteractiveCommandReader) SetPrompt(p string) {
	icr.rl.SetPrompt(p)
	icr.prompt = p
}

// GetPrompt gets the current prompt.
func (icr *InteractiveCommandReader) GetPrompt() string {
	return icr.prompt
}
