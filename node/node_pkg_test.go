package node

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/sync"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/require"
)

type funcService func(ctx context.Context) error

func (f funcService) Run(ctx context.Context) error {
	return f(ctx)
}

// serving blocks until ctx is done and reports when it started and stopped.
func serving(started, stopped chan<- struct{}) service.Service {
	return funcService(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil
	})
}

func newTestNode(t *testing.T, services ...service.Service) *Node {
	t.Helper()
	database, err := pebble.NewMem()
	require.NoError(t, err)
	return &Node{cfg: &Config{}, db: database, services: services, log: utils.NewNopZapLogger()}
}

func TestRunServiceFailures(t *testing.T) {
	t.Run("exhausted pipeline leaves the other services running", func(t *testing.T) {
		started, stopped := make(chan struct{}), make(chan struct{})
		pipelineDone := make(chan struct{})
		pipeline := funcService(func(context.Context) error {
			defer close(pipelineDone)
			return fmt.Errorf("%w: stage Blocks at blocks 1-2: disk full", sync.ErrStageBudgetExhausted)
		})
		n := newTestNode(t, serving(started, stopped), pipeline)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- n.Run(ctx) }()

		<-started
		<-pipelineDone
		select {
		case <-stopped:
			t.Fatal("read API stopped with the pipeline")
		case <-time.After(50 * time.Millisecond):
		}

		cancel()
		require.NoError(t, <-done)
		<-stopped
	})

	t.Run("other failures stop the node", func(t *testing.T) {
		started, stopped := make(chan struct{}), make(chan struct{})
		boom := errors.New("listener closed")
		failing := funcService(func(context.Context) error { return boom })
		n := newTestNode(t, serving(started, stopped), failing)

		done := make(chan error, 1)
		go func() { done <- n.Run(t.Context()) }()

		select {
		case err := <-done:
			require.ErrorIs(t, err, boom)
		case <-time.After(5 * time.Second):
			t.Fatal("node did not stop")
		}
		<-stopped
	})
}
