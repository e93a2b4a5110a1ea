package input

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_DirectCommandReader_skipsBlankLinesByDefault(t *testing.T) {
	assert := assert.New(t)

	r := NewDirectReader(strings.NewReader("\n   \nlook\n"))
	defer r.Close()

	cmd, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal("look", cmd)
}

func Test_DirectCommandReader_trimsWhitespace(t *testing.T) {
	assert := assert.New(t)

	r := NewDirectReader(strings.NewReader("  go north  \n"))
	defer r.Close()

	cmd, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal("go north", cmd)
}

func Test_DirectCommandReader_allowBlankReturnsEmptyLineImmediately(t *testing.T) {
	assert := assert.New(t)

	r := NewDirectReader(strings.NewReader("\nlook\n"))
	defer r.Close()
	r.AllowBlank(true)

	cmd, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal("", cmd)
}

func Test_DirectCommandReader_eofWithNoFurtherInput(t *testing.T) {
	assert := assert.New(t)

	r := NewDirectReader(strings.NewReader(""))
	defer r.Close()

	cmd, err := r.ReadCommand()
	assert.ErrorIs(err, io.EOF)
	assert.Equal("", cmd)
}

func Test_DirectCommandReader_lastLineWithoutTrailingNewlineIsStillRead(t *testing.T) {
	assert := assert.New(t)

	r := NewDirectReader(strings.NewReader("quit"))
	defer r.Close()

	cmd, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal("quit", cmd)
}

func Test_DirectCommandReader_Close_isNoop(t *testing.T) {
	r := NewDirectReader(strings.NewReader(""))
	assert.NoError(t, r.Close())
}
