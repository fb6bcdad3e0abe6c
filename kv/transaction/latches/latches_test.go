package latches

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireLatches(t *testing.T) {
	l := NewLatches()

	// Acquiring a new latch is ok.
	assert.True(t, l.AcquireLatches("t1", []string{"a", "b", "c"}))

	// Can only acquire once, and a partial overlap takes nothing.
	assert.False(t, l.AcquireLatches("t2", []string{"a"}))
	assert.False(t, l.AcquireLatches("t2", []string{"d", "c"}))
	assert.False(t, l.AnyLatched([]string{"d"}))
	assert.Equal(t, []string{"a", "b", "c"}, l.Keys())

	// Release then acquire is ok.
	l.ReleaseLatches("t1", []string{"b", "c"})
	assert.True(t, l.AcquireLatches("t2", []string{"b"}))
	assert.False(t, l.AcquireLatches("t3", []string{"a"}))

	// t3 did not get "a", so it cannot release t2's latch on "b".
	l.ReleaseLatches("t3", []string{"b"})
	assert.Equal(t, []string{"a", "b"}, l.Keys())
}

func TestReleaseOnlyOwnedLatches(t *testing.T) {
	l := NewLatches()
	assert.True(t, l.AcquireLatches("t1", []string{"a"}))
	assert.True(t, l.AcquireLatches("t2", []string{"b"}))

	l.ReleaseLatches("t1", []string{"a", "b"})
	assert.False(t, l.AnyLatched([]string{"a"}))
	assert.True(t, l.AnyLatched([]string{"a", "b"}))
	assert.Equal(t, 1, l.Len())
}

func TestConcurrentAcquire(t *testing.T) {
	l := NewLatches()
	var wg sync.WaitGroup
	won := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("t%d", i)
			if l.AcquireLatches(owner, []string{"x", "y"}) {
				won <- owner
			}
		}(i)
	}
	wg.Wait()
	close(won)

	var winners []string
	for w := range won {
		winners = append(winners, w)
	}
	assert.Len(t, winners, 1)
	assert.Equal(t, 2, l.Len())
}
