package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := New(8)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("shared/ops/status")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestLockReleasesShard(t *testing.T) {
	t.Parallel()

	locker := New(1)
	unlock := locker.Lock("a")
	unlock()

	unlock = locker.Lock("b")
	unlock()
}
