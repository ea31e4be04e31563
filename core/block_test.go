package core_test

import (
	"testing"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/encoder"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBlock(t *testing.T) (*core.Block, *core.StateDiff) {
	t.Helper()
	tx := invokeTx(t)
	receipt := &core.TransactionReceipt{
		TransactionHash: tx.Hash(),
		Type:            core.TxInvoke,
		Fee:             new(felt.Felt).SetUint64(21),
		Events: []*core.Event{{
			From: utils.HexToFelt(t, "0x49d3"),
			Keys: utils.HexArrToFelt(t, []string{"0x99cd8bde557814842a3121e8ddfd433a539b8c9f14bf31ebf108d12e6196e9"}),
			Data: utils.HexArrToFelt(t, []string{"0x1", "0x2", "0x3e8", "0x0"}),
		}},
		ExecutionResources: &core.ExecutionResources{Steps: 1200},
	}
	diff := core.EmptyStateDiff()
	diff.Nonces[*tx.SenderAddress] = new(felt.Felt).SetUint64(1)
	diff.StorageDiffs[*utils.HexToFelt(t, "0x49d3")] = map[felt.Felt]*felt.Felt{
		*utils.HexToFelt(t, "0x5"): utils.HexToFelt(t, "0x3e8"),
	}

	block := &core.Block{
		Header: &core.Header{
			ParentHash:       utils.HexToFelt(t, "0x1234"),
			Number:           7,
			Timestamp:        1700000000,
			SequencerAddress: utils.HexToFelt(t, "0x1"),
			L1GasPrice:       core.GasPrice{PriceInWei: new(felt.Felt).SetUint64(100), PriceInFri: new(felt.Felt).SetUint64(100)},
			ProtocolVersion:  core.CurrentProtocolVersion.String(),
			TransactionCount: 1,
			EventCount:       1,
			StateRoot:        utils.HexToFelt(t, "0xabc"),
		},
		Transactions: []core.Transaction{tx},
		Receipts:     []*core.TransactionReceipt{receipt},
	}
	return block, diff
}

func TestCommitments(t *testing.T) {
	block, diff := sampleBlock(t)

	c, err := core.Commitments(block, diff)
	require.NoError(t, err)
	assert.False(t, c.TransactionCommitment.IsZero())
	assert.False(t, c.EventCommitment.IsZero())
	assert.False(t, c.ReceiptCommitment.IsZero())
	assert.Equal(t, uint64(2), c.StateDiffLength)

	t.Run("empty block", func(t *testing.T) {
		empty := &core.Block{Header: &core.Header{}}
		c, err := core.Commitments(empty, core.EmptyStateDiff())
		require.NoError(t, err)
		assert.True(t, c.TransactionCommitment.IsZero())
		assert.True(t, c.EventCommitment.IsZero())
		assert.True(t, c.ReceiptCommitment.IsZero())
		assert.Zero(t, c.StateDiffLength)
	})

	t.Run("receipt order must match", func(t *testing.T) {
		broken := *block
		broken.Receipts = []*core.TransactionReceipt{{TransactionHash: new(felt.Felt).SetUint64(1)}}
		_, err := core.Commitments(&broken, diff)
		assert.ErrorIs(t, err, core.ErrReceiptsMismatch)

		broken.Receipts = nil
		_, err = core.Commitments(&broken, diff)
		assert.ErrorIs(t, err, core.ErrReceiptsMismatch)
	})
}

func TestVerifyBlock(t *testing.T) {
	block, diff := sampleBlock(t)
	c, err := core.Commitments(block, diff)
	require.NoError(t, err)
	block.SetCommitments(c)
	block.Hash = core.BlockHash(block.Header)

	require.NoError(t, core.VerifyBlock(block, diff))

	t.Run("hash covers the parent", func(t *testing.T) {
		header := *block.Header
		header.ParentHash = new(felt.Felt).SetUint64(1)
		assert.NotEqual(t, block.Hash, core.BlockHash(&header))
	})

	t.Run("diff changed after sealing", func(t *testing.T) {
		other := diff.Copy()
		other.Nonces[*utils.HexToFelt(t, "0x77")] = new(felt.Felt).SetUint64(1)
		assert.ErrorIs(t, core.VerifyBlock(block, other), core.ErrCommitmentMismatch)
	})

	t.Run("header changed after sealing", func(t *testing.T) {
		header := *block.Header
		header.Timestamp++
		tampered := &core.Block{Header: &header, Transactions: block.Transactions, Receipts: block.Receipts}
		assert.ErrorIs(t, core.VerifyBlock(tampered, diff), core.ErrBlockHashMismatch)
	})
}

func TestHeaderEncoding(t *testing.T) {
	block, _ := sampleBlock(t)
	block.EventsBloom = core.EventsBloom(block.Receipts)

	data, err := encoder.Marshal(block.Header)
	require.NoError(t, err)
	var decoded core.Header
	require.NoError(t, encoder.Unmarshal(data, &decoded))
	assert.Equal(t, block.Number, decoded.Number)
	assert.Equal(t, block.ParentHash, decoded.ParentHash)
	assert.True(t, block.EventsBloom.Equal(decoded.EventsBloom))
}

func TestEventsBloom(t *testing.T) {
	block, _ := sampleBlock(t)
	filter := core.EventsBloom(block.Receipts)
	event := block.Receipts[0].Events[0]

	assert.True(t, core.EventsBloomMayMatch(filter, event.From, nil))
	assert.True(t, core.EventsBloomMayMatch(filter, nil, [][]felt.Felt{{*event.Keys[0]}}))
	assert.True(t, core.EventsBloomMayMatch(filter, event.From, [][]felt.Felt{{}, {}}))
	assert.False(t, core.EventsBloomMayMatch(filter, utils.HexToFelt(t, "0xdead"), nil))
	// keys are indexed with their position
	assert.False(t, core.EventsBloomMayMatch(filter, nil, [][]felt.Felt{{}, {*event.Keys[0]}}))
	assert.True(t, core.EventsBloomMayMatch(nil, utils.HexToFelt(t, "0xdead"), nil))
}

func TestConcatCounts(t *testing.T) {
	calldata := core.ConcatCounts(1, 2, 3, core.Calldata)
	blob := core.ConcatCounts(1, 2, 3, core.Blob)
	assert.NotEqual(t, calldata, blob)

	b := calldata.Bytes()
	assert.Equal(t, byte(1), b[7])
	assert.Equal(t, byte(2), b[15])
	assert.Equal(t, byte(3), b[23])
	assert.Equal(t, byte(0x80), blob.Bytes()[24])
}
