package rpc_test

import (
	"testing"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/stretchr/testify/require"
)

var (
	chainID = new(felt.Felt).SetBytes([]byte("KATANA"))
	bob     = new(felt.Felt).SetUint64(0xb0b)
	maxFee  = new(felt.Felt).SetUint64(1_000_000_000_000_000)
)

// testChain is a chain with a genesis block and block 1, which holds a fee token transfer
// to bob followed by a declare.
type testChain struct {
	chain    *blockchain.Blockchain
	spec     *core.ChainSpec
	accounts []genesis.Account
	block    *core.Block
	transfer *core.InvokeTransaction
	declare  *core.DeclareTransaction
}

func sign(t *testing.T, account *genesis.Account, tx core.Transaction) {
	t.Helper()
	hash, err := core.TransactionHash(tx, chainID)
	require.NoError(t, err)
	sig, err := account.Sign(hash)
	require.NoError(t, err)
	switch tx := tx.(type) {
	case *core.InvokeTransaction:
		tx.TransactionHash, tx.TransactionSignature = hash, sig.Felts()
	case *core.DeclareTransaction:
		tx.TransactionHash, tx.TransactionSignature = hash, sig.Felts()
	}
}

func transferCalldata(token, to *felt.Felt, amount uint64) []*felt.Felt {
	return []*felt.Felt{
		new(felt.Felt).SetUint64(1), token, crypto.Selector("transfer"),
		new(felt.Felt).SetUint64(3), to, new(felt.Felt).SetUint64(amount), &felt.Zero,
	}
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	accounts, err := genesis.DevAccounts("rpc", 2, genesis.DefaultPrefundedBalance)
	require.NoError(t, err)
	spec, err := genesis.Default().ChainSpec(chainID, accounts)
	require.NoError(t, err)
	chain := blockchain.New(pebble.NewMemTest(t), chainID, nil, utils.NewNopZapLogger())
	require.NoError(t, chain.Init(spec))

	account := &accounts[0]
	transfer := &core.InvokeTransaction{
		SenderAddress: account.Address,
		CallData:      transferCalldata(spec.FeeTokenAddress, bob, 5),
		MaxFee:        maxFee,
		Nonce:         &felt.Zero,
		Version:       new(felt.Felt).SetUint64(1),
	}
	sign(t, account, transfer)

	class := vm.GenericClass()
	class.Salt = new(felt.Felt).SetUint64(7)
	classHash, err := class.Hash()
	require.NoError(t, err)
	compiled, err := class.CompiledClassHash()
	require.NoError(t, err)
	declare := &core.DeclareTransaction{
		ClassHash:         classHash,
		SenderAddress:     account.Address,
		MaxFee:            maxFee,
		Nonce:             new(felt.Felt).SetUint64(1),
		Version:           new(felt.Felt).SetUint64(2),
		CompiledClassHash: compiled,
		Class:             class,
	}
	sign(t, account, declare)

	b := builder.New(chain, spec, vm.New(utils.NewNopZapLogger()), builder.DefaultConfig(), utils.NewNopZapLogger())
	bs, err := b.Open(1000)
	require.NoError(t, err)
	for _, tx := range []core.Transaction{transfer, declare} {
		_, err = b.Execute(bs, tx)
		require.NoError(t, err)
	}
	result, err := b.Seal(bs)
	require.NoError(t, err)

	return &testChain{
		chain:    chain,
		spec:     spec,
		accounts: accounts,
		block:    result.Block,
		transfer: transfer,
		declare:  declare,
	}
}

func (tc *testChain) handler() *rpc.Handler {
	log := utils.NewNopZapLogger()
	return rpc.New(tc.chain, tc.spec, vm.New(log), "v0.0.0-test", log)
}

func blockNumber(n uint64) rpc.BlockID {
	return rpc.BlockID{Number: n}
}
