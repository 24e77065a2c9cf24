package sync_test

import (
	"testing"

	"github.com/hbomb79/Tikfetch/pkg/sync"
	"github.com/stretchr/testify/assert"
)

func Test_TypedSyncMap_SwapAndCompareAndDelete(t *testing.T) {
	m := sync.TypedSyncMap[string, *int]{}
	first, second := new(int), new(int)

	_, loaded := m.Swap("a", first)
	assert.False(t, loaded)

	prev, loaded := m.Swap("a", second)
	assert.True(t, loaded)
	assert.Same(t, first, prev)

	assert.False(t, m.CompareAndDelete("a", first), "stale value must not delete the replacement")
	assert.True(t, m.CompareAndDelete("a", second))

	_, ok := m.Load("a")
	assert.False(t, ok)
}

func Test_TypedSyncMap_Range(t *testing.T) {
	m := sync.TypedSyncMap[string, int]{}
	m.Store("a", 1)
	m.Store("b", 2)

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 3, sum)

	v, ok := m.LoadAndDelete("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
