package ledger

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		inside  int32
		overlap int32
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(positionKey("ACC-1", "THYAO"))
			defer unlock()

			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			counter++
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(0), overlap)
	require.Equal(t, 50, counter)
	require.Equal(t, 0, locks.Len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	locks := NewKeyedMutex()

	unlockA := locks.Lock(orderKey("ORD-1"))
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock(orderKey("ORD-2"))
		unlockB()
		close(done)
	}()
	<-done

	require.Equal(t, 1, locks.Len())
	unlockA()
	require.Equal(t, 0, locks.Len())
}
