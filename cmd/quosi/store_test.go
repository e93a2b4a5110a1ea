package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_varStore_unsetVariableReadsZero(t *testing.T) {
	s := newVarStore()
	assert.Equal(t, uint64(0), *s.context(7, false))
}

func Test_varStore_storeIsVisibleToLaterLoad(t *testing.T) {
	assert := assert.New(t)

	s := newVarStore()
	p := s.context(3, false)
	*p = 42

	assert.Equal(uint64(42), *s.context(3, false), "a later Load must observe an earlier Store through the same pointer")
}

func Test_varStore_distinctSymbolsAreIndependent(t *testing.T) {
	assert := assert.New(t)

	s := newVarStore()
	*s.context(1, false) = 10
	*s.context(2, false) = 20

	assert.Equal(uint64(10), *s.context(1, false))
	assert.Equal(uint64(20), *s.context(2, false))
}
