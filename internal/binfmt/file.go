// Package binfmt implements the Quosi compiled-file binary format: a fixed
// header followed by a contiguous payload of code, strings, and
// (optionally) a symbol table. It is the stable boundary between the
// compiler and the VM — a file written by Save can be loaded by Load (or
// mapped read-only) without recompiling.
package binfmt

import (
	"encoding/binary"
	"fmt"
	"os"
)

const magicStr = "quosi"

// headerSize is the on-disk header size: 2+2+2 version fields, a 5-byte
// magic, 5 bytes of padding so the three trailing u64 fields land on an
// 8-byte boundary (matching the natural C struct layout of
// quosi.h's File::Header, which the spec's "fixed header" describes), then
// data_len/str_loc/sym_loc at 8 bytes each: 6+5+5+8+8+8 = 40.
const headerSize = 40

const (
	// VersionMajor/Minor/Patch are the format version this package writes.
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
	VersionPatch uint16 = 0
)

// Header is the fixed on-disk preamble of a compiled file.
type Header struct {
	Major, Minor, Patch uint16
	Magic               [5]byte
	DataLen             uint64
	StrLoc              uint64
	SymLoc              uint64
}

// CompiledFile is a compiled Quosi program: a header plus the contiguous
// payload it describes. The VM holds a non-owning reference to Payload.
type CompiledFile struct {
	Hdr     Header
	Payload []byte
}

// New builds a CompiledFile from a codegen payload and the section offsets
// within it.
func New(payload []byte, strLoc, symLoc uint64) *CompiledFile {
	h := Header{
		Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch,
		DataLen: uint64(len(payload)),
		StrLoc:  strLoc,
		SymLoc:  symLoc,
	}
	copy(h.Magic[:], magicStr)
	return &CompiledFile{Hdr: h, Payload: payload}
}

// Code returns the code section: payload bytes before StrLoc.
func (f *CompiledFile) Code() []byte {
	return f.Payload[:f.Hdr.StrLoc]
}

// Strings returns the string section: payload bytes from StrLoc to SymLoc
// (or to the end, if there is no symbol section).
func (f *CompiledFile) Strings() []byte {
	end := f.Hdr.SymLoc
	if end == 0 {
		end = f.Hdr.DataLen
	}
	return f.Payload[f.Hdr.StrLoc:end]
}

// Symbols returns the symbol section, or nil if the file was compiled with
// an embedder-supplied SymbolContext (SymLoc == 0).
func (f *CompiledFile) Symbols() []byte {
	if f.Hdr.SymLoc == 0 {
		return nil
	}
	return f.Payload[f.Hdr.SymLoc:]
}

// Marshal serializes the header and payload into a single byte slice
// suitable for writing to disk.
func (f *CompiledFile) Marshal() []byte {
	out := make([]byte, headerSize+len(f.Payload))
	binary.LittleEndian.PutUint16(out[0:2], f.Hdr.Major)
	binary.LittleEndian.PutUint16(out[2:4], f.Hdr.Minor)
	binary.LittleEndian.PutUint16(out[4:6], f.Hdr.Patch)
	copy(out[6:11], f.Hdr.Magic[:])
	binary.LittleEndian.PutUint64(out[16:24], f.Hdr.DataLen)
	binary.LittleEndian.PutUint64(out[24:32], f.Hdr.StrLoc)
	binary.LittleEndian.PutUint64(out[32:40], f.Hdr.SymLoc)
	copy(out[headerSize:], f.Payload)
	return out
}

// FromRaw parses a complete compiled-file byte slice (header + payload), as
// produced by Marshal or read from a .bsi file, without copying the payload.
func FromRaw(raw []byte) (*CompiledFile, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("binfmt: truncated header (%d bytes)", len(raw))
	}
	var h Header
	h.Major = binary.LittleEndian.Uint16(raw[0:2])
	h.Minor = binary.LittleEndian.Uint16(raw[2:4])
	h.Patch = binary.LittleEndian.Uint16(raw[4:6])
	copy(h.Magic[:], raw[6:11])
	if string(h.Magic[:]) != magicStr {
		return nil, fmt.Errorf("binfmt: bad magic %q", h.Magic[:])
	}
	h.DataLen = binary.LittleEndian.Uint64(raw[16:24])
	h.StrLoc = binary.LittleEndian.Uint64(raw[24:32])
	h.SymLoc = binary.LittleEndian.Uint64(raw[32:40])

	payload := raw[headerSize:]
	if uint64(len(payload)) < h.DataLen {
		return nil, fmt.Errorf("binfmt: truncated payload: want %d bytes, have %d", h.DataLen, len(payload))
	}
	return &CompiledFile{Hdr: h, Payload: payload[:h.DataLen]}, nil
}

// Save writes the compiled file to path.
func (f *CompiledFile) Save(path string) error {
	return os.WriteFile(path, f.Marshal(), 0o644)
}

// Load reads a compiled file from path.
func Load(path string) (*CompiledFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw)
}
