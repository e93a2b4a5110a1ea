package server

import (
	"encoding/binary"
	"fmt"
)

// sessionVars is the server's persisted variable store for one trace
// session: every symbol a running graph has read or written, by dense id.
// Values are held behind pointers so a Store through the context callback
// is visible to later Loads within the same Exec call and to encodeVars
// afterward.
type sessionVars map[uint32]*uint64

// context is the vm.Context callback bound to this store.
func (v sessionVars) context(symbolID uint32, _ bool) *uint64 {
	if p, ok := v[symbolID]; ok {
		return p
	}
	p := new(uint64)
	v[symbolID] = p
	return p
}

// encodeVars serializes v as a count-prefixed list of (u32 id, u64 value)
// pairs. Order is not significant: this blob is never diffed byte-for-byte
// the way a compiled file is.
func encodeVars(v sessionVars) []byte {
	out := make([]byte, 4, 4+len(v)*12)
	binary.LittleEndian.PutUint32(out, uint32(len(v)))
	for id, val := range v {
		var b [12]byte
		binary.LittleEndian.PutUint32(b[0:4], id)
		binary.LittleEndian.PutUint64(b[4:12], *val)
		out = append(out, b[:]...)
	}
	return out
}

// decodeVars parses the format encodeVars produces.
func decodeVars(data []byte) (sessionVars, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("server: truncated variable store")
	}
	n := binary.LittleEndian.Uint32(data)
	v := make(sessionVars, n)
	pos := 4
	for i := uint32(0); i < n; i++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("server: truncated variable store entry %d", i)
		}
		id := binary.LittleEndian.Uint32(data[pos : pos+4])
		val := binary.LittleEndian.Uint64(data[pos+4 : pos+12])
		v[id] = &val
		pos += 12
	}
	return v, nil
}
