package main

// varStore is the CLI's in-memory symbol table: every variable a running
// graph reads or writes, keyed by the dense id the compiler assigned it and
// backed by a stable pointer so Store writes are visible to later Loads.
// Unset variables read as zero, matching the VM's "no bounds checking, no
// surprises" trust model.
type varStore map[uint32]*uint64

func newVarStore() varStore {
	return make(varStore)
}

// context is the vm.Context callback: it returns a pointer into the store
// so Load/Store can read and write through it directly.
func (s varStore) context(symbolID uint32, _ bool) *uint64 {
	if p, ok := s[symbolID]; ok {
		return p
	}
	p := new(uint64)
	s[symbolID] = p
	return p
}
