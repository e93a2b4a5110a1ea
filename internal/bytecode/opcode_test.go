package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Op_String_knownOpcodes(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Eof", Eof.String())
	assert.Equal("Push", Push.String())
	assert.Equal("Switch", Switch.String())
	assert.Equal("Event", Event.String())
}

func Test_Op_String_unknownOpcodeIsUnrecognized(t *testing.T) {
	var unknown Op = 255
	assert.Equal(t, "???", unknown.String())
}

func Test_sentinels_areDistinctFromEachOtherAndFromRealAddresses(t *testing.T) {
	assert := assert.New(t)

	assert.NotEqual(SentinelExit, SentinelAbort)
	assert.NotEqual(SentinelExit, uint32(0))
	assert.NotEqual(SentinelAbort, uint32(0))
}
