package rpc_test

import (
	"testing"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()
	feeToken := tc.spec.FeeTokenAddress

	var want []*felt.Felt
	for _, receipt := range tc.block.Receipts {
		for _, event := range receipt.Events {
			if event.From.Equal(feeToken) {
				want = append(want, receipt.TransactionHash)
			}
		}
	}
	require.NotEmpty(t, want)

	args := rpc.EventsArg{
		EventFilter: rpc.EventFilter{
			FromBlock: &rpc.BlockID{Number: 1},
			ToBlock:   &rpc.BlockID{Latest: true},
			Address:   feeToken,
		},
		ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1},
	}

	t.Run("pages through the range", func(t *testing.T) {
		var got []*felt.Felt
		for range len(want) + 1 {
			chunk, rpcErr := handler.Events(args)
			require.Nil(t, rpcErr)
			for _, event := range chunk.Events {
				assert.Equal(t, feeToken, event.From)
				assert.Equal(t, tc.block.Hash, event.BlockHash)
				require.NotNil(t, event.BlockNumber)
				assert.Equal(t, uint64(1), *event.BlockNumber)
				got = append(got, event.TransactionHash)
			}
			if chunk.ContinuationToken == "" {
				break
			}
			args.ContinuationToken = chunk.ContinuationToken
		}
		assert.Equal(t, want, got)
	})

	t.Run("keys filter", func(t *testing.T) {
		keyed := args
		keyed.ContinuationToken = ""
		keyed.ChunkSize = 100
		keyed.Keys = [][]felt.Felt{{*crypto.Selector("Approval")}}

		chunk, rpcErr := handler.Events(keyed)
		require.Nil(t, rpcErr)
		assert.Empty(t, chunk.Events)
		assert.Empty(t, chunk.ContinuationToken)

		keyed.Keys = [][]felt.Felt{{*crypto.Selector("Transfer")}}
		chunk, rpcErr = handler.Events(keyed)
		require.Nil(t, rpcErr)
		assert.Len(t, chunk.Events, len(want))
	})

	t.Run("range past the head is clamped", func(t *testing.T) {
		clamped := args
		clamped.ContinuationToken = ""
		clamped.ChunkSize = 100
		clamped.ToBlock = &rpc.BlockID{Number: 50}

		chunk, rpcErr := handler.Events(clamped)
		require.Nil(t, rpcErr)
		assert.Len(t, chunk.Events, len(want))
	})

	t.Run("range by hash", func(t *testing.T) {
		byHash := args
		byHash.ContinuationToken = ""
		byHash.ChunkSize = 100
		byHash.FromBlock = &rpc.BlockID{Hash: tc.block.Hash}
		byHash.ToBlock = &rpc.BlockID{Hash: tc.block.Hash}

		chunk, rpcErr := handler.Events(byHash)
		require.Nil(t, rpcErr)
		assert.Len(t, chunk.Events, len(want))

		byHash.ToBlock = &rpc.BlockID{Hash: new(felt.Felt).SetUint64(0xdead)}
		_, rpcErr = handler.Events(byHash)
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})
}

func TestEventsLimits(t *testing.T) {
	tc := newTestChain(t)
	handler := tc.handler()

	_, rpcErr := handler.Events(rpc.EventsArg{ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 10241}})
	assert.Equal(t, rpc.ErrPageSizeTooBig, rpcErr)

	keys := make([]felt.Felt, 1025)
	_, rpcErr = handler.Events(rpc.EventsArg{
		EventFilter:       rpc.EventFilter{Keys: [][]felt.Felt{keys}},
		ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1},
	})
	assert.Equal(t, rpc.ErrTooManyKeysInFilter, rpcErr)

	_, rpcErr = handler.Events(rpc.EventsArg{
		ResultPageRequest: rpc.ResultPageRequest{ChunkSize: 1, ContinuationToken: "not-a-token"},
	})
	assert.Equal(t, rpc.ErrInvalidContinuationToken, rpcErr)
}
