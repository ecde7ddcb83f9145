package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NumbersPasses(t *testing.T) {
	var s Sequencer = NewClock()
	c := s.(*Clock)
	assert.Zero(t, c.Current())

	for want := int64(1); want <= 3; want++ {
		assert.Equal(t, want, s.Next())
	}
	assert.Equal(t, int64(3), c.Current())
}

func TestClock_ConcurrentPassesAreDistinct(t *testing.T) {
	c := NewClock()
	const workers, perWorker = 50, 40

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				n := c.Next()
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), c.Current())
}
