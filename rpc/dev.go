package rpc

import (
	"context"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/jsonrpc"
)

type GeneratedBlock struct {
	BlockHash   *felt.Felt `json:"block_hash"`
	BlockNumber uint64     `json:"block_number"`
}

// PredeployedAccount leaves the private key out when it is not known, as for accounts
// listed in a genesis file.
type PredeployedAccount struct {
	Address    *felt.Felt `json:"address"`
	PublicKey  *felt.Felt `json:"public_key"`
	PrivateKey *felt.Felt `json:"private_key,omitempty"`
	Balance    *felt.Felt `json:"balance"`
	ClassHash  *felt.Felt `json:"class_hash"`
}

func adaptAccount(account *genesis.Account) PredeployedAccount {
	return PredeployedAccount{
		Address:    account.Address,
		PublicKey:  account.PublicKey,
		PrivateKey: account.PrivateKey,
		Balance:    account.Balance,
		ClassHash:  account.ClassHash,
	}
}

// GenerateBlock seals the open block, or an empty one, whatever the mining mode.
func (h *Handler) GenerateBlock(ctx context.Context) (*GeneratedBlock, *jsonrpc.Error) {
	header, err := h.producer.ForceMine(ctx)
	if err != nil {
		return nil, adaptSequencerError(err)
	}
	return &GeneratedBlock{BlockHash: header.Hash, BlockNumber: header.Number}, nil
}

func (h *Handler) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) (bool, *jsonrpc.Error) {
	if err := h.producer.SetNextBlockTimestamp(ctx, timestamp); err != nil {
		return false, adaptSequencerError(err)
	}
	return true, nil
}

func (h *Handler) IncreaseNextBlockTimestamp(ctx context.Context, seconds uint64) (bool, *jsonrpc.Error) {
	if err := h.producer.IncreaseNextBlockTimestamp(ctx, seconds); err != nil {
		return false, adaptSequencerError(err)
	}
	return true, nil
}

func (h *Handler) PredeployedAccounts() ([]PredeployedAccount, *jsonrpc.Error) {
	accounts := make([]PredeployedAccount, len(h.accounts))
	for i := range h.accounts {
		accounts[i] = adaptAccount(&h.accounts[i])
	}
	return accounts, nil
}

// SetStorageAt writes into the open block. The value becomes visible once that block is sealed.
func (h *Handler) SetStorageAt(ctx context.Context, address, key, value felt.Felt) (bool, *jsonrpc.Error) {
	if err := h.producer.SetStorageAt(ctx, &address, &key, &value); err != nil {
		return false, adaptSequencerError(err)
	}
	return true, nil
}

func (h *Handler) devMethods() []jsonrpc.Method {
	return []jsonrpc.Method{
		{
			Name:    "dev_generateBlock",
			Handler: h.GenerateBlock,
		},
		{
			Name:    "dev_setNextBlockTimestamp",
			Params:  []jsonrpc.Parameter{{Name: "timestamp"}},
			Handler: h.SetNextBlockTimestamp,
		},
		{
			Name:    "dev_increaseNextBlockTimestamp",
			Params:  []jsonrpc.Parameter{{Name: "timestamp"}},
			Handler: h.IncreaseNextBlockTimestamp,
		},
		{
			Name:    "dev_predeployedAccounts",
			Handler: h.PredeployedAccounts,
		},
		{
			Name:    "dev_setStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "value"}},
			Handler: h.SetStorageAt,
		},
	}
}
