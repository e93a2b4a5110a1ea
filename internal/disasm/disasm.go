// Package disasm renders a compiled Quosi program back into a readable
// listing: one line per instruction, with jump targets resolved to symbolic
// labels instead of raw byte offsets.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dekarrin/rosed"
	"github.com/dustin/go-humanize"

	"github.com/dekarrin/quosi/internal/binfmt"
	"github.com/dekarrin/quosi/internal/bytecode"
)

// labelPass walks code once, without interpreting string or symbol
// payloads, to assign a symbolic name to every address a jump instruction
// can target. Switch's operand count isn't stored in the stream itself —
// it equals the number of Prop instructions emitted since the vertex's most
// recent Switch, so this pass tracks that count the same way the
// instructions were generated.
func labelPass(code []byte) map[uint32]string {
	labels := map[uint32]string{
		0:                       "<START>",
		bytecode.SentinelExit:  "<EXIT>",
		bytecode.SentinelAbort: "<ABORT>",
	}
	next := 0
	label := func(addr uint32) {
		if _, ok := labels[addr]; !ok {
			labels[addr] = fmt.Sprintf(".L%d", next)
			next++
		}
	}

	var pc uint32
	var pendingTargets uint32
	for int(pc) < len(code) {
		op := bytecode.Op(code[pc])
		pc++
		switch op {
		case bytecode.Jump, bytecode.Jz, bytecode.Jnz:
			label(binary.LittleEndian.Uint32(code[pc:]))
			pc += 4
		case bytecode.Switch:
			for i := uint32(0); i < pendingTargets; i++ {
				label(binary.LittleEndian.Uint32(code[pc:]))
				pc += 4
			}
			pendingTargets = 0
		case bytecode.Prop:
			pc += 4 + 1
			pendingTargets++
		case bytecode.Push, bytecode.IeqV:
			pc += 8
		case bytecode.Load, bytecode.Store, bytecode.IeqK, bytecode.Event:
			pc += 4
		case bytecode.Line:
			pc += 8
		case bytecode.Eof:
			return labels
		default:
			// zero-operand instruction: Pop, Land, Lor, Lnot, Add, Sub,
			// Mul, Div, Neg, Equ, Neq, Leq, Lth, Geq, Gth, Pick
		}
	}
	return labels
}

func cString(buf []byte, off uint32) string {
	end := off
	for int(end) < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[off:end])
}

// Listing renders a full disassembly of f: every instruction in its code
// section, plus a humanized summary of the code/strings/symbols section
// sizes.
func Listing(f *binfmt.CompiledFile) string {
	code := f.Code()
	labels := labelPass(code)

	rows := [][]string{{"ADDR", "LABEL", "INSTRUCTION"}}

	var pc uint32
	var pendingTargets uint32
	for int(pc) < len(code) {
		addr := pc
		lbl := ""
		if name, ok := labels[addr]; ok && !strings.HasPrefix(name, "<") {
			lbl = name + ":"
		}

		op := bytecode.Op(code[pc])
		pc++

		var instr string
		switch op {
		case bytecode.Eof:
			rows = append(rows, []string{fmt.Sprintf("0x%04X", addr), lbl, "EOF"})
			return renderListing(f, rows)

		case bytecode.Push:
			v := binary.LittleEndian.Uint64(code[pc:])
			pc += 8
			instr = fmt.Sprintf("PUSH $%d", v)
		case bytecode.Pop:
			instr = "POP"
		case bytecode.Load:
			sym := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = fmt.Sprintf("LOAD @%d", sym)
		case bytecode.Store:
			sym := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = fmt.Sprintf("STORE @%d", sym)

		case bytecode.Land:
			instr = "LAND"
		case bytecode.Lor:
			instr = "LOR"
		case bytecode.Lnot:
			instr = "LNOT"
		case bytecode.Add:
			instr = "ADD"
		case bytecode.Sub:
			instr = "SUB"
		case bytecode.Mul:
			instr = "MUL"
		case bytecode.Div:
			instr = "DIV"
		case bytecode.Neg:
			instr = "NEG"
		case bytecode.Equ:
			instr = "EQU"
		case bytecode.Neq:
			instr = "NEQ"
		case bytecode.IeqV:
			v := binary.LittleEndian.Uint64(code[pc:])
			pc += 8
			instr = fmt.Sprintf("IEQ  $%d", v)
		case bytecode.IeqK:
			sym := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = fmt.Sprintf("IEQ  @%d", sym)
		case bytecode.Leq:
			instr = "LEQ"
		case bytecode.Lth:
			instr = "LTH"
		case bytecode.Geq:
			instr = "GEQ"
		case bytecode.Gth:
			instr = "GTH"

		case bytecode.Jump:
			target := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = "JUMP " + labels[target]
		case bytecode.Jz:
			target := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = "JZ   " + labels[target]
		case bytecode.Jnz:
			target := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = "JNZ  " + labels[target]
		case bytecode.Switch:
			targets := make([]string, 0, pendingTargets)
			for i := uint32(0); i < pendingTargets; i++ {
				target := binary.LittleEndian.Uint32(code[pc:])
				pc += 4
				targets = append(targets, labels[target])
			}
			pendingTargets = 0
			instr = "SWITCH [ " + strings.Join(targets, ", ") + " ]"

		case bytecode.Prop:
			strRef := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			idx := code[pc]
			pc++
			pendingTargets++
			instr = fmt.Sprintf("PROP %q, %d", cString(f.Payload, strRef), idx)

		case bytecode.Pick:
			instr = "PICK"
		case bytecode.Line:
			speaker := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			strRef := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = fmt.Sprintf("LINE %d, %q", speaker, cString(f.Payload, strRef))
		case bytecode.Event:
			strRef := binary.LittleEndian.Uint32(code[pc:])
			pc += 4
			instr = fmt.Sprintf("EVENT %q", cString(f.Payload, strRef))

		default:
			instr = fmt.Sprintf("??? (0x%02X)", byte(op))
		}

		rows = append(rows, []string{fmt.Sprintf("0x%04X", addr), lbl, instr})
	}

	return renderListing(f, rows)
}

func renderListing(f *binfmt.CompiledFile, rows [][]string) string {
	tableOpts := rosed.Options{
		TableHeaders:             true,
		NoTrailingLineSeparators: true,
	}
	body := rosed.Edit("").InsertTableOpts(0, rows, 100, tableOpts).String()

	codeLen := f.Hdr.StrLoc
	strLen := f.Hdr.DataLen - f.Hdr.StrLoc
	if f.Hdr.SymLoc != 0 {
		strLen = f.Hdr.SymLoc - f.Hdr.StrLoc
	}

	summary := fmt.Sprintf("code: %s, strings: %s", humanize.Bytes(uint64(codeLen)), humanize.Bytes(uint64(strLen)))
	if f.Hdr.SymLoc != 0 {
		symLen := f.Hdr.DataLen - f.Hdr.SymLoc
		summary += fmt.Sprintf(", symbols: %s", humanize.Bytes(uint64(symLen)))
	}

	return body + "\n\n" + summary + "\n"
}
