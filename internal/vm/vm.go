// Package vm implements the Quosi stack machine: a 64-bit value stack, a
// proposition queue for pending choices, and a small up-call protocol that
// suspends execution at every user-observable event so the host can react
// before resuming.
package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/dekarrin/quosi/internal/bytecode"
)

// UpCall is the reason Exec returned control to the host.
type UpCall int

const (
	// None is never returned by Exec — it runs until a real up-call fires.
	None UpCall = iota
	LineCall
	PickCall
	EventCall
	ExitCall
	AbortCall
)

func (u UpCall) String() string {
	switch u {
	case None:
		return "None"
	case LineCall:
		return "Line"
	case PickCall:
		return "Pick"
	case EventCall:
		return "Event"
	case ExitCall:
		return "Exit"
	case AbortCall:
		return "Abort"
	default:
		return "Unknown"
	}
}

const (
	stackCap = 128
	queueCap = 16
)

// Context resolves a symbol id to a pointer into the embedder's variable
// store. strict is reserved for future use (spec.md §4.5) and is currently
// always false.
type Context func(symbolID uint32, strict bool) *uint64

type proposition struct {
	stringRef uint32
	edgeIndex uint8
}

// VM is a stack machine over a non-owning reference to compiled code. Code
// must outlive the VM.
type VM struct {
	code []byte
	pc   uint32

	stack [stackCap]uint64
	sp    int

	queue [queueCap]proposition
	head  int
	tail  int

	a, b uint64

	ctx Context
}

// New creates a VM over code, positioned at PC 0 with an empty stack and
// queue.
func New(code []byte) *VM {
	return &VM{code: code}
}

// Reset returns the VM to Running at PC 0 over a (possibly different) code
// buffer, clearing the stack and queue.
func (v *VM) Reset(code []byte) {
	v.code = code
	v.pc = 0
	v.sp = 0
	v.head, v.tail = 0, 0
	v.a, v.b = 0, 0
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (v *VM) push(x uint64) {
	v.stack[v.sp] = x
	v.sp++
}

func (v *VM) pop() uint64 {
	v.sp--
	return v.stack[v.sp]
}

func (v *VM) top() uint64 {
	return v.stack[v.sp-1]
}

func (v *VM) readU8() uint8 {
	b := v.code[v.pc]
	v.pc++
	return b
}

func (v *VM) readU32() uint32 {
	x := binary.LittleEndian.Uint32(v.code[v.pc:])
	v.pc += 4
	return x
}

func (v *VM) readU64() uint64 {
	x := binary.LittleEndian.Uint64(v.code[v.pc:])
	v.pc += 8
	return x
}

// jumpTo resolves a raw target operand: a sentinel address surfaces as the
// matching terminal up-call, anything else sets PC and continues execution.
func (v *VM) jumpTo(target uint32) (UpCall, bool) {
	switch target {
	case bytecode.SentinelExit:
		return ExitCall, true
	case bytecode.SentinelAbort:
		return AbortCall, true
	default:
		v.pc = target
		return None, false
	}
}

// Exec single-steps the VM until an up-call other than None is produced,
// then returns it. The host resumes by calling Exec again; between a Pick
// up-call and the next Exec, the caller should Push the chosen index.
func (v *VM) Exec(ctx Context) UpCall {
	v.ctx = ctx
	v.head, v.tail = 0, 0

	for {
		op := bytecode.Op(v.readU8())
		switch op {
		case bytecode.Eof:
			return ExitCall

		case bytecode.Push:
			v.push(v.readU64())
		case bytecode.Pop:
			v.pop()
		case bytecode.Load:
			sym := v.readU32()
			v.push(*v.ctx(sym, false))
		case bytecode.Store:
			sym := v.readU32()
			*v.ctx(sym, false) = v.pop()

		case bytecode.Land:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a != 0 && b != 0))
		case bytecode.Lor:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a != 0 || b != 0))
		case bytecode.Lnot:
			a := v.pop()
			v.push(boolWord(a == 0))

		case bytecode.Add:
			b, a := v.pop(), v.pop()
			v.push(a + b)
		case bytecode.Sub:
			b, a := v.pop(), v.pop()
			v.push(a - b)
		case bytecode.Mul:
			b, a := v.pop(), v.pop()
			v.push(a * b)
		case bytecode.Div:
			b, a := v.pop(), v.pop()
			v.push(a / b)
		case bytecode.Neg:
			a := v.pop()
			v.push(-a)

		case bytecode.Equ:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a == b))
		case bytecode.Neq:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a != b))
		case bytecode.Leq:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a <= b))
		case bytecode.Lth:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a < b))
		case bytecode.Geq:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a >= b))
		case bytecode.Gth:
			b, a := v.pop(), v.pop()
			v.push(boolWord(a > b))

		case bytecode.IeqV:
			imm := v.readU64()
			v.push(boolWord(v.top() == imm))
		case bytecode.IeqK:
			sym := v.readU32()
			v.push(boolWord(v.top() == *v.ctx(sym, false)))

		case bytecode.Jump:
			target := v.readU32()
			if up, done := v.jumpTo(target); done {
				return up
			}
		case bytecode.Jz:
			target := v.readU32()
			if v.pop() == 0 {
				if up, done := v.jumpTo(target); done {
					return up
				}
			}
		case bytecode.Jnz:
			target := v.readU32()
			if v.pop() != 0 {
				if up, done := v.jumpTo(target); done {
					return up
				}
			}
		case bytecode.Switch:
			idx := v.pop()
			targetPos := v.pc + 4*uint32(idx)
			target := binary.LittleEndian.Uint32(v.code[targetPos:])
			v.pc = targetPos + 4
			if up, done := v.jumpTo(target); done {
				return up
			}

		case bytecode.Prop:
			strRef := v.readU32()
			idx := v.readU8()
			v.queue[v.tail%queueCap] = proposition{stringRef: strRef, edgeIndex: idx}
			v.tail++
		case bytecode.Pick:
			v.b = uint64(v.tail - v.head)
			return PickCall
		case bytecode.Line:
			v.a = uint64(v.readU32())
			v.b = uint64(v.readU32())
			return LineCall
		case bytecode.Event:
			v.b = uint64(v.readU32())
			return EventCall

		default:
			panic(fmt.Sprintf("vm: invalid opcode %d at offset %d", op, v.pc-1))
		}
	}
}

// Push pushes a 64-bit value onto the value stack. The host uses this to
// hand a chosen proposition index back after a Pick up-call, before calling
// Exec again to resume into the Switch.
func (v *VM) Push(x uint64) {
	v.push(x)
}

// Line returns the NUL-terminated line (or event) text at the current B
// accumulator, valid after a Line or Event up-call.
func (v *VM) Line() string {
	return cString(v.code, uint32(v.b))
}

// ID returns the A accumulator: the speaker symbol id after a Line up-call.
func (v *VM) ID() uint32 {
	return uint32(v.a)
}

// Nq returns the number of propositions currently pending dequeue, valid
// after a Pick up-call.
func (v *VM) Nq() uint32 {
	return uint32(v.tail - v.head)
}

// DeqText dequeues the next pending proposition and returns its text (read
// from the string pool) and dense edge index, in FIFO enqueue order.
func (v *VM) DeqText() (string, uint32) {
	p := v.queue[v.head%queueCap]
	v.head++
	return cString(v.code, p.stringRef), uint32(p.edgeIndex)
}

// cString reads a NUL-terminated string starting at offset off within buf.
func cString(buf []byte, off uint32) string {
	end := off
	for end < uint32(len(buf)) && buf[end] != 0 {
		end++
	}
	return string(buf[off:end])
}

// snapshotSize is the fixed encoded size of Export's output: PC(4) + SP(4)
// + stack(stackCap*8) + head(4) + tail(4) + queue(queueCap*(4+1)) + A(8) +
// B(8).
const snapshotSize = 4 + 4 + stackCap*8 + 4 + 4 + queueCap*5 + 8 + 8

// Export serializes the VM's registers (PC, value stack, proposition
// queue, accumulators) to a fixed-size blob, for a host that needs to
// suspend a session between a Pick up-call and the client's response
// across a process boundary (see internal/server). Code is not included —
// the host is expected to keep the compiled file and pass it back to New.
func (v *VM) Export() []byte {
	out := make([]byte, 0, snapshotSize)
	var b4 [4]byte
	putU32 := func(x uint32) {
		binary.LittleEndian.PutUint32(b4[:], x)
		out = append(out, b4[:]...)
	}
	var b8 [8]byte
	putU64 := func(x uint64) {
		binary.LittleEndian.PutUint64(b8[:], x)
		out = append(out, b8[:]...)
	}

	putU32(v.pc)
	putU32(uint32(v.sp))
	for i := 0; i < stackCap; i++ {
		putU64(v.stack[i])
	}
	putU32(uint32(v.head))
	putU32(uint32(v.tail))
	for i := 0; i < queueCap; i++ {
		putU32(v.queue[i].stringRef)
		out = append(out, v.queue[i].edgeIndex)
	}
	putU64(v.a)
	putU64(v.b)
	return out
}

// Import restores a VM's registers from a blob produced by Export, leaving
// its code reference untouched.
func (v *VM) Import(data []byte) error {
	if len(data) != snapshotSize {
		return fmt.Errorf("vm: snapshot is %d bytes, want %d", len(data), snapshotSize)
	}
	pos := 0
	readU32 := func() uint32 {
		x := binary.LittleEndian.Uint32(data[pos:])
		pos += 4
		return x
	}
	readU64 := func() uint64 {
		x := binary.LittleEndian.Uint64(data[pos:])
		pos += 8
		return x
	}

	v.pc = readU32()
	v.sp = int(readU32())
	for i := 0; i < stackCap; i++ {
		v.stack[i] = readU64()
	}
	v.head = int(readU32())
	v.tail = int(readU32())
	for i := 0; i < queueCap; i++ {
		v.queue[i].stringRef = readU32()
		v.queue[i].edgeIndex = data[pos]
		pos++
	}
	v.a = readU64()
	v.b = readU64()
	return nil
}
