package syncutil_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/callsim/internal/syncutil"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	t.Parallel()

	var km syncutil.KeyedMutex[string]
	var wg sync.WaitGroup
	counter := 0

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_DistinctKeysDoNotContend(t *testing.T) {
	t.Parallel()

	var km syncutil.KeyedMutex[int]
	unlockA := km.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct key blocked")
	}
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	var km syncutil.KeyedMutex[string]
	unlock := km.Lock("k")
	unlock()
	unlock()

	assert.Equal(t, 0, km.Len())

	// The key can be locked again after a double unlock.
	unlock = km.Lock("k")
	assert.Equal(t, 1, km.Len())
	unlock()
}
