package swap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifierCachesChecks(t *testing.T) {
	f := newFakeAPI(t)
	c := newTestClient(f)
	v, err := NewVerifier(c, time.Minute)
	require.NoError(t, err)
	defer v.Close()

	first, err := v.Check(context.Background(), linhaDigitavel47)
	require.NoError(t, err)
	require.Equal(t, "bol-123", first.ID)
	v.cache.Wait()

	for i := 0; i < 5; i++ {
		again, err := v.Check(context.Background(), linhaDigitavel47)
		require.NoError(t, err)
		require.Equal(t, first.ID, again.ID)
	}
	require.Equal(t, int64(1), f.checkRequests.Load())
}

func TestVerifierCoalescesConcurrentMisses(t *testing.T) {
	f := newFakeAPI(t)
	c := newTestClient(f)
	v, err := NewVerifier(c, time.Minute)
	require.NoError(t, err)
	defer v.Close()

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check, err := v.Check(context.Background(), linhaDigitavel47)
			require.NoError(t, err)
			require.Equal(t, "bol-123", check.ID)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), f.checkRequests.Load())
}

func TestVerifierRejectsBadFormatBeforeCache(t *testing.T) {
	f := newFakeAPI(t)
	v, err := NewVerifier(newTestClient(f), time.Minute)
	require.NoError(t, err)
	defer v.Close()

	_, err = v.Check(context.Background(), "1234")
	require.Equal(t, CodeInvalidFormat, ErrCode(err))
	require.Zero(t, f.checkRequests.Load())
}
