package vm

import (
	"encoding/binary"
	"testing"

	"github.com/dekarrin/quosi/internal/bytecode"
	"github.com/stretchr/testify/assert"
)

// asm is a tiny byte-code builder used only by these tests, so each program
// can be laid out without hand-counting offsets.
type asm struct {
	buf []byte
}

func (a *asm) op(o bytecode.Op) *asm {
	a.buf = append(a.buf, byte(o))
	return a
}

func (a *asm) u8(v uint8) *asm {
	a.buf = append(a.buf, v)
	return a
}

func (a *asm) u32(v uint32) *asm {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *asm) u64(v uint64) *asm {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	a.buf = append(a.buf, b[:]...)
	return a
}

// here returns the current length, for patching a jump table entry to
// point at code appended afterward.
func (a *asm) here() uint32 { return uint32(len(a.buf)) }

func (a *asm) str(s string) *asm {
	a.buf = append(a.buf, []byte(s)...)
	a.buf = append(a.buf, 0)
	return a
}

func noCtx(uint32, bool) *uint64 { panic("unexpected variable access") }

func mapCtx(m map[uint32]*uint64) Context {
	return func(id uint32, _ bool) *uint64 {
		if _, ok := m[id]; !ok {
			var z uint64
			m[id] = &z
		}
		return m[id]
	}
}

func Test_Exec_arithmeticAndStore(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(2)
	a.op(bytecode.Push).u64(3)
	a.op(bytecode.Add)
	a.op(bytecode.Store).u32(0)
	a.op(bytecode.Eof)

	vars := map[uint32]*uint64{}
	v := New(a.buf)
	up := v.Exec(mapCtx(vars))

	assert.Equal(ExitCall, up, "Eof surfaces as an Exit up-call")
	assert.Equal(uint64(5), *vars[0])
}

func Test_Exec_subtractionOperandOrder(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(10)
	a.op(bytecode.Push).u64(3)
	a.op(bytecode.Sub)
	a.op(bytecode.Store).u32(0)
	a.op(bytecode.Eof)

	vars := map[uint32]*uint64{}
	v := New(a.buf)
	v.Exec(mapCtx(vars))

	assert.Equal(uint64(7), *vars[0], "Sub must compute the first-pushed operand minus the second")
}

func Test_Exec_comparisonProducesBoolWord(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(5)
	a.op(bytecode.Push).u64(5)
	a.op(bytecode.Equ)
	a.op(bytecode.Store).u32(0)
	a.op(bytecode.Eof)

	vars := map[uint32]*uint64{}
	v := New(a.buf)
	v.Exec(mapCtx(vars))

	assert.Equal(uint64(1), *vars[0])
}

func Test_Exec_jzTakenOnZero_resolvesSentinel(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(0)
	a.op(bytecode.Jz).u32(bytecode.SentinelAbort)
	a.op(bytecode.Eof)

	v := New(a.buf)
	up := v.Exec(noCtx)

	assert.Equal(AbortCall, up)
}

func Test_Exec_jzNotTaken_fallsThrough(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(1)
	a.op(bytecode.Jz).u32(bytecode.SentinelAbort)
	a.op(bytecode.Eof)

	v := New(a.buf)
	up := v.Exec(noCtx)

	assert.Equal(ExitCall, up, "a false Jz condition must fall through to the next instruction")
}

func Test_Exec_jnzTakenOnNonzero(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(1)
	a.op(bytecode.Jnz).u32(bytecode.SentinelExit)
	a.op(bytecode.Eof)

	v := New(a.buf)
	up := v.Exec(noCtx)

	assert.Equal(ExitCall, up)
}

func Test_Exec_jumpToOrdinaryAddressContinuesExecution(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Jump)
	patchPos := len(a.buf)
	a.u32(0) // patched below once the target address is known
	a.op(bytecode.Push).u64(99) // skipped over
	a.op(bytecode.Eof)          // skipped over
	target := a.here()
	a.op(bytecode.Push).u64(1)
	a.op(bytecode.Store).u32(0)
	a.op(bytecode.Eof)
	binary.LittleEndian.PutUint32(a.buf[patchPos:], target)

	vars := map[uint32]*uint64{}
	v := New(a.buf)
	up := v.Exec(mapCtx(vars))

	assert.Equal(ExitCall, up)
	assert.Equal(uint64(1), *vars[0], "jump must have landed past the skipped Push/Eof pair")
}

func Test_Exec_line_upCall(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Line).u32(7)
	strPos := len(a.buf)
	a.u32(0)
	a.op(bytecode.Eof)
	textOff := a.here()
	a.str("hello there")
	binary.LittleEndian.PutUint32(a.buf[strPos:], textOff)

	v := New(a.buf)
	up := v.Exec(noCtx)

	assert.Equal(LineCall, up)
	assert.Equal(uint32(7), v.ID())
	assert.Equal("hello there", v.Line())
}

func Test_Exec_event_upCall(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Event)
	strPos := len(a.buf)
	a.u32(0)
	a.op(bytecode.Eof)
	textOff := a.here()
	a.str("bell_rung")
	binary.LittleEndian.PutUint32(a.buf[strPos:], textOff)

	v := New(a.buf)
	up := v.Exec(noCtx)

	assert.Equal(EventCall, up)
	assert.Equal("bell_rung", v.Line())
}

// Test_Exec_pickAndSwitch_resumeProtocol builds a two-choice vertex by hand
// and drives the full suspend/resume cycle: Exec fills the proposition
// queue and returns PickCall, the host drains it with Nq/DeqText, and
// resuming with the chosen edge's dense index pushed resumes directly into
// Switch and lands on that choice's target.
func Test_Exec_pickAndSwitch_resumeProtocol(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Prop)
	yesRefPos := len(a.buf)
	a.u32(0)
	a.u8(0) // edgeIndex 0
	a.op(bytecode.Prop)
	noRefPos := len(a.buf)
	a.u32(0)
	a.u8(1) // edgeIndex 1
	a.op(bytecode.Pick)
	a.op(bytecode.Switch)
	a.u32(bytecode.SentinelExit)  // jump table entry for edgeIndex 0
	a.u32(bytecode.SentinelAbort) // jump table entry for edgeIndex 1
	a.op(bytecode.Eof)
	yesOff := a.here()
	a.str("yes")
	noOff := a.here()
	a.str("no")
	binary.LittleEndian.PutUint32(a.buf[yesRefPos:], yesOff)
	binary.LittleEndian.PutUint32(a.buf[noRefPos:], noOff)

	v := New(a.buf)
	up := v.Exec(noCtx)
	assert.Equal(PickCall, up)
	assert.Equal(uint32(2), v.Nq())

	text0, idx0 := v.DeqText()
	assert.Equal("yes", text0)
	assert.Equal(uint32(0), idx0)

	text1, idx1 := v.DeqText()
	assert.Equal("no", text1)
	assert.Equal(uint32(1), idx1)

	v.Push(uint64(idx1))
	up = v.Exec(noCtx)
	assert.Equal(AbortCall, up, "choosing edgeIndex 1 must resume into the second jump table slot")
}

func Test_Exec_pickQueueResetsEachCall(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Prop)
	refPos := len(a.buf)
	a.u32(0)
	a.u8(0)
	a.op(bytecode.Pick)
	a.op(bytecode.Switch)
	a.u32(bytecode.SentinelExit)
	off := a.here()
	a.str("only choice")
	binary.LittleEndian.PutUint32(a.buf[refPos:], off)

	v := New(a.buf)
	v.Exec(noCtx)
	assert.Equal(uint32(1), v.Nq())

	v.Push(0)
	v.Exec(noCtx) // resumes into Switch, which is the last instruction — no further Prop this call
	assert.Equal(uint32(0), v.Nq(), "head/tail must reset at the top of each Exec call")
}

func Test_Export_Import_roundTrip(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Prop)
	refPos := len(a.buf)
	a.u32(0)
	a.u8(0)
	a.op(bytecode.Pick)
	a.op(bytecode.Switch)
	a.u32(bytecode.SentinelExit)
	off := a.here()
	a.str("choice")
	binary.LittleEndian.PutUint32(a.buf[refPos:], off)

	v1 := New(a.buf)
	up := v1.Exec(noCtx)
	assert.Equal(PickCall, up)

	snap := v1.Export()
	assert.Len(snap, snapshotSize)

	v2 := New(a.buf)
	assert.NoError(v2.Import(snap))

	assert.Equal(v1.Nq(), v2.Nq())
	text1, idx1 := v1.DeqText()
	text2, idx2 := v2.DeqText()
	assert.Equal(text1, text2)
	assert.Equal(idx1, idx2)

	v2.Push(uint64(idx2))
	up = v2.Exec(noCtx)
	assert.Equal(ExitCall, up, "a restored VM must resume exactly where the original left off")
}

func Test_Import_rejectsWrongSize(t *testing.T) {
	v := New(nil)
	err := v.Import(make([]byte, snapshotSize-1))
	assert.Error(t, err)
}

func Test_Reset_clearsStackAndQueue(t *testing.T) {
	assert := assert.New(t)

	var a asm
	a.op(bytecode.Push).u64(42)
	a.op(bytecode.Eof)

	v := New(a.buf)
	v.Exec(noCtx)

	v.Reset(a.buf)
	snap := v.Export()
	// PC(4) + SP(4): SP must be back to 0 after Reset.
	assert.Equal(uint32(0), binary.LittleEndian.Uint32(snap[4:8]))
}
