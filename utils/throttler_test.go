package utils_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottler(t *testing.T) {
	throttledRes := utils.NewThrottler(2, new(int)).WithMaxQueueLen(2)
	waitOn := make(chan struct{})

	var runCount int64
	doer := func(ptr *int) error {
		if ptr == nil {
			return errors.New("nilptr")
		}
		<-waitOn
		atomic.AddInt64(&runCount, 1)
		return nil
	}

	var wg sync.WaitGroup
	do := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, throttledRes.Do(doer))
		}()
		time.Sleep(10 * time.Millisecond)
	}

	do()
	do()
	assert.Equal(t, 0, throttledRes.QueueLen())
	assert.Equal(t, 2, throttledRes.JobsRunning())

	do() // should be queued
	assert.Equal(t, 1, throttledRes.QueueLen())
	do() // should be queued
	assert.Equal(t, 2, throttledRes.QueueLen())

	require.ErrorIs(t, throttledRes.Do(doer), utils.ErrResourceBusy)

	close(waitOn)
	wg.Wait()
	assert.Equal(t, int64(4), runCount)
	assert.Equal(t, 0, throttledRes.QueueLen())
	assert.Equal(t, 0, throttledRes.JobsRunning())
}

func TestThrottlerContext(t *testing.T) {
	throttledRes := utils.NewThrottler(1, new(int))
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = throttledRes.Do(func(*int) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := throttledRes.DoContext(ctx, func(*int) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, throttledRes.QueueLen())
	close(release)
}
