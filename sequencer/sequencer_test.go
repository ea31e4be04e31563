package sequencer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/sequencer"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	chainID     = new(felt.Felt).SetBytes([]byte("KATANA"))
	initialFund = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(21))
	recipient   = new(felt.Felt).SetUint64(0xb0b)
)

type fixture struct {
	chain    *blockchain.Blockchain
	spec     *core.ChainSpec
	accounts []genesis.Account
	pool     *mempool.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts, err := genesis.DevAccounts("sequencer", 2, initialFund)
	require.NoError(t, err)
	spec, err := genesis.Default().ChainSpec(chainID, accounts)
	require.NoError(t, err)
	chain := blockchain.New(pebble.NewMemTest(t), chainID, nil, utils.NewNopZapLogger())
	require.NoError(t, chain.Init(spec))

	pool := mempool.New(chain, spec, vm.New(utils.NewNopZapLogger()), nil, mempool.DefaultConfig(),
		utils.NewNopZapLogger())
	return &fixture{chain: chain, spec: spec, accounts: accounts, pool: pool}
}

func (f *fixture) sequencer(executor vm.Executor, builderCfg builder.Config, cfg sequencer.Config) *sequencer.Sequencer {
	if executor == nil {
		executor = vm.New(utils.NewNopZapLogger())
	}
	b := builder.New(f.chain, f.spec, executor, builderCfg, utils.NewNopZapLogger())
	return sequencer.New(b, f.pool, cfg, utils.NewNopZapLogger())
}

// start runs seq until the returned function is called, which returns what Run returned.
func start(t *testing.T, seq *sequencer.Sequencer) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()

	stopped := false
	var runErr error
	stop := func() error {
		if !stopped {
			stopped = true
			cancel()
			runErr = <-done
		}
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func modeConfig(mode sequencer.Mode) sequencer.Config {
	cfg := sequencer.DefaultConfig()
	cfg.Mode = mode
	return cfg
}

func (f *fixture) invoke(t *testing.T, account *genesis.Account, nonce uint64, to *felt.Felt, selector string,
	calldata ...*felt.Felt,
) *core.InvokeTransaction {
	t.Helper()
	call := []*felt.Felt{
		new(felt.Felt).SetUint64(1), to, crypto.Selector(selector), new(felt.Felt).SetUint64(uint64(len(calldata))),
	}
	tx := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData:      append(call, calldata...),
		MaxFee:        new(felt.Felt).SetUint64(1_000_000_000_000_000),
		Nonce:         new(felt.Felt).SetUint64(nonce),
		Version:       new(felt.Felt).SetUint64(1),
	}
	hash, err := core.TransactionHash(tx, chainID)
	require.NoError(t, err)
	tx.TransactionHash = hash
	sig, err := account.Sign(hash)
	require.NoError(t, err)
	tx.TransactionSignature = sig.Felts()
	return tx
}

func (f *fixture) transfer(t *testing.T, account *genesis.Account, nonce, amount uint64) *core.InvokeTransaction {
	t.Helper()
	return f.invoke(t, account, nonce, f.spec.FeeTokenAddress, "transfer",
		recipient, new(felt.Felt).SetUint64(amount), &felt.Zero)
}

func (f *fixture) height(t *testing.T) uint64 {
	t.Helper()
	height, err := f.chain.Height()
	require.NoError(t, err)
	return height
}

func (f *fixture) headState(t *testing.T) state.Reader {
	t.Helper()
	st, closer, err := f.chain.HeadState()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closer()) })
	return st
}

func balance(t *testing.T, r state.Reader, token, account *felt.Felt) *uint256.Int {
	t.Helper()
	b, err := vm.Balance(r, token, account)
	require.NoError(t, err)
	return b
}

func feeOf(receipt *core.TransactionReceipt) *uint256.Int {
	b := receipt.Fee.Bytes()
	return new(uint256.Int).SetBytes32(b[:])
}

func TestIntervalEmptyBlocks(t *testing.T) {
	f := newFixture(t)
	cfg := modeConfig(sequencer.Interval)
	cfg.BlockTime = 100 * time.Millisecond
	stop := start(t, f.sequencer(nil, builder.DefaultConfig(), cfg))

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, stop())

	require.Equal(t, uint64(2), f.height(t))
	var parent *core.Block
	for number := range uint64(3) {
		block, err := f.chain.BlockByNumber(number)
		require.NoError(t, err)
		if parent != nil {
			assert.Zero(t, block.TransactionCount)
			assert.Equal(t, parent.Hash, block.ParentHash)
			assert.Equal(t, parent.Number+1, block.Number)
			assert.GreaterOrEqual(t, block.Timestamp, parent.Timestamp)
		}
		parent = block
	}
}

func TestSingleTransfer(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer(nil, builder.DefaultConfig(), modeConfig(sequencer.OnDemand))
	start(t, seq)
	sender := &f.accounts[0]

	tx := f.transfer(t, sender, 0, 1000)
	_, err := f.pool.Add(context.Background(), tx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		pending := seq.PendingBlock()
		return pending != nil && len(pending.Transactions) == 1
	}, time.Second, 5*time.Millisecond)

	header, err := seq.ForceMine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), header.Number)
	assert.Equal(t, uint64(1), header.TransactionCount)

	block, err := f.chain.BlockByNumber(1)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, tx.TransactionHash, block.Transactions[0].Hash())
	receipt := block.Receipts[0]
	assert.False(t, receipt.Reverted)

	st := f.headState(t)
	token := f.spec.FeeTokenAddress
	assert.Equal(t, uint256.NewInt(1000), balance(t, st, token, recipient))
	want := new(uint256.Int).Sub(initialFund, uint256.NewInt(1000))
	want.Sub(want, feeOf(receipt))
	assert.Equal(t, want, balance(t, st, token, sender.Address))
	nonce, err := st.ContractNonce(sender.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce.Uint64())
}

func TestRevertedCallIsIncluded(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer(nil, builder.DefaultConfig(), modeConfig(sequencer.OnDemand))
	start(t, seq)
	sender := &f.accounts[0]

	tx := f.invoke(t, sender, 0, f.spec.FeeTokenAddress, "no_such_entry_point")
	_, err := f.pool.Add(context.Background(), tx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		pending := seq.PendingBlock()
		return pending != nil && len(pending.Transactions) == 1
	}, time.Second, 5*time.Millisecond)
	_, err = seq.ForceMine(context.Background())
	require.NoError(t, err)

	receipt, _, number, err := f.chain.Receipt(tx.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), number)
	assert.True(t, receipt.Reverted)
	assert.NotEmpty(t, receipt.RevertReason)

	st := f.headState(t)
	nonce, err := st.ContractNonce(sender.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce.Uint64())
	want := new(uint256.Int).Sub(initialFund, feeOf(receipt))
	assert.Equal(t, want, balance(t, st, f.spec.FeeTokenAddress, sender.Address))
}

func TestNonceGapMinedInOrder(t *testing.T) {
	f := newFixture(t)
	start(t, f.sequencer(nil, builder.DefaultConfig(), modeConfig(sequencer.Instant)))
	sender := &f.accounts[0]
	ctx := context.Background()

	_, err := f.pool.Add(ctx, f.transfer(t, sender, 2, 1))
	require.NoError(t, err)
	_, future := f.pool.Size()
	assert.Equal(t, 1, future)

	_, err = f.pool.Add(ctx, f.transfer(t, sender, 0, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.height(t) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * sequencer.DefaultDebounce)
	assert.Equal(t, uint64(1), f.height(t), "nonce 2 waits for nonce 1")

	_, err = f.pool.Add(ctx, f.transfer(t, sender, 1, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ready, future := f.pool.Size()
		return ready == 0 && future == 0 && f.seqIdle(t)
	}, time.Second, 5*time.Millisecond)

	var nonces []uint64
	for number := uint64(1); number <= f.height(t); number++ {
		block, err := f.chain.BlockByNumber(number)
		require.NoError(t, err)
		for _, txn := range block.Transactions {
			nonces = append(nonces, txn.(*core.InvokeTransaction).Nonce.Uint64())
		}
	}
	assert.Equal(t, []uint64{0, 1, 2}, nonces)
}

// seqIdle reports whether every taken transaction has been sealed.
func (f *fixture) seqIdle(t *testing.T) bool {
	st, closer, err := f.chain.HeadState()
	require.NoError(t, err)
	defer func() { require.NoError(t, closer()) }()
	nonce, err := st.ContractNonce(f.accounts[0].Address)
	require.NoError(t, err)
	return nonce.Uint64() == 3
}

func TestInstantSealsAfterDebounce(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer(nil, builder.DefaultConfig(), modeConfig(sequencer.Instant))
	start(t, seq)

	time.Sleep(3 * sequencer.DefaultDebounce)
	assert.Zero(t, f.height(t), "no block without transactions")
	assert.Nil(t, seq.PendingBlock())

	_, err := f.pool.Add(context.Background(), f.transfer(t, &f.accounts[0], 0, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.height(t) == 1 }, time.Second, 5*time.Millisecond)
	block, err := f.chain.BlockByNumber(1)
	require.NoError(t, err)
	assert.Len(t, block.Transactions, 1)

	header, err := seq.ForceMine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), header.Number)
	assert.Zero(t, header.TransactionCount)
}

func TestBlockBudgetSeals(t *testing.T) {
	f := newFixture(t)
	cfg := builder.DefaultConfig()
	cfg.MaxBlockSteps = 1
	start(t, f.sequencer(nil, cfg, modeConfig(sequencer.OnDemand)))
	ctx := context.Background()

	for _, tx := range []*core.InvokeTransaction{
		f.transfer(t, &f.accounts[0], 0, 1),
		f.transfer(t, &f.accounts[1], 0, 1),
		f.transfer(t, &f.accounts[0], 1, 1),
	} {
		_, err := f.pool.Add(ctx, tx)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return f.height(t) == 3 }, time.Second, 5*time.Millisecond)
	for number := uint64(1); number <= 3; number++ {
		block, err := f.chain.BlockByNumber(number)
		require.NoError(t, err)
		assert.Len(t, block.Transactions, 1)
	}
}

func TestDevControls(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer(nil, builder.DefaultConfig(), modeConfig(sequencer.OnDemand))
	start(t, seq)
	ctx := context.Background()

	future := uint64(time.Now().Unix()) + 10_000
	require.NoError(t, seq.SetNextBlockTimestamp(ctx, future))
	header, err := seq.ForceMine(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, header.Timestamp, future)
	assert.LessOrEqual(t, header.Timestamp, future+1)

	require.NoError(t, seq.IncreaseNextBlockTimestamp(ctx, 500))
	next, err := seq.ForceMine(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next.Timestamp, header.Timestamp+500)

	require.ErrorIs(t, seq.SetNextBlockTimestamp(ctx, 1), sequencer.ErrTimestampTooEarly)

	key, value := new(felt.Felt).SetUint64(99), new(felt.Felt).SetUint64(7)
	require.NoError(t, seq.SetStorageAt(ctx, f.spec.FeeTokenAddress, key, value))
	require.ErrorIs(t, seq.SetStorageAt(ctx, new(felt.Felt).SetUint64(0xdead), key, value), state.ErrContractNotDeployed)
	_, err = seq.ForceMine(ctx)
	require.NoError(t, err)

	got, err := f.headState(t).ContractStorage(f.spec.FeeTokenAddress, key)
	require.NoError(t, err)
	assert.Equal(t, value, &got)
}

func TestShutdownSealsOpenBlock(t *testing.T) {
	f := newFixture(t)
	seq := f.sequencer(nil, builder.DefaultConfig(), modeConfig(sequencer.OnDemand))
	stop := start(t, seq)

	_, err := f.pool.Add(context.Background(), f.transfer(t, &f.accounts[0], 0, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		pending := seq.PendingBlock()
		return pending != nil && len(pending.Transactions) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, stop())
	assert.Equal(t, uint64(1), f.height(t))

	_, err = seq.ForceMine(context.Background())
	assert.ErrorIs(t, err, sequencer.ErrNotRunning)
}

func TestDroppedTransactionGoesBackToPool(t *testing.T) {
	f := newFixture(t)
	executor := mocks.NewMockExecutor(gomock.NewController(t))
	failure := errors.New("fee transfer failed")
	executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, failure).AnyTimes()
	seq := f.sequencer(executor, builder.DefaultConfig(), modeConfig(sequencer.OnDemand))
	start(t, seq)

	tx := f.transfer(t, &f.accounts[0], 0, 1)
	_, err := f.pool.Add(context.Background(), tx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.pool.Status(tx.TransactionHash) == mempool.StatusRejected
	}, time.Second, 5*time.Millisecond)

	header, err := seq.ForceMine(context.Background())
	require.NoError(t, err)
	assert.Zero(t, header.TransactionCount)

	// the dropped nonce can be submitted again
	_, err = f.pool.Add(context.Background(), f.transfer(t, &f.accounts[0], 0, 2))
	require.NoError(t, err)
}
