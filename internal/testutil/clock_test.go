package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_RepeatsAcrossInstances(t *testing.T) {
	a, b := NewDeterministicClock(), NewDeterministicClock()
	assert.Zero(t, a.Current())

	for i := 1; i <= 5; i++ {
		assert.Equal(t, int64(i), a.Next())
		assert.Equal(t, int64(i), b.Next())
	}
	assert.Equal(t, int64(5), a.Current())
}

func TestDeterministicClock_SafeForConcurrentUse(t *testing.T) {
	c := NewDeterministicClock()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), c.Current())
}
