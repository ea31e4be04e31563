package sn2core

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/starknet"
	"github.com/NethermindEth/katana/utils"
)

func AdaptBlock(response *starknet.Block) (*core.Block, error) {
	if response == nil {
		return nil, errors.New("nil client block")
	}
	if len(response.Transactions) != len(response.Receipts) {
		return nil, fmt.Errorf("block %d has %d transactions and %d receipts",
			response.Number, len(response.Transactions), len(response.Receipts))
	}

	txns := make([]core.Transaction, len(response.Transactions))
	for i, txn := range response.Transactions {
		var err error
		txns[i], err = AdaptTransaction(txn)
		if err != nil {
			return nil, err
		}
	}

	receipts := make([]*core.TransactionReceipt, len(response.Receipts))
	for i, receipt := range response.Receipts {
		receipts[i] = AdaptTransactionReceipt(receipt, txns[i])
	}

	return &core.Block{
		Header: &core.Header{
			Hash:                  response.Hash,
			ParentHash:            response.ParentHash,
			Number:                response.Number,
			Timestamp:             response.Timestamp,
			SequencerAddress:      response.SequencerAddress,
			L1GasPrice:            adaptGasPrice(response.L1GasPrice),
			L1DataGasPrice:        adaptGasPrice(response.L1DataGasPrice),
			L1DAMode:              core.L1DAMode(response.L1DAMode),
			ProtocolVersion:       response.Version,
			TransactionCount:      uint64(len(txns)),
			EventCount:            core.EventCount(receipts),
			TransactionCommitment: response.TransactionCommitment,
			EventCommitment:       response.EventCommitment,
			ReceiptCommitment:     response.ReceiptCommitment,
			StateDiffCommitment:   response.StateDiffCommitment,
			StateDiffLength:       response.StateDiffLength,
			StateRoot:             response.StateRoot,
			EventsBloom:           core.EventsBloom(receipts),
		},
		Transactions: txns,
		Receipts:     receipts,
	}, nil
}

func adaptGasPrice(price *starknet.GasPrice) core.GasPrice {
	if price == nil {
		return core.GasPrice{PriceInWei: &felt.Zero, PriceInFri: &felt.Zero}
	}
	return core.GasPrice{PriceInWei: price.PriceInWei, PriceInFri: price.PriceInFri}
}

// AdaptTransactionReceipt converts a receipt. The transaction fills in the fields the
// gateway leaves out of receipts.
func AdaptTransactionReceipt(response *starknet.TransactionReceipt, txn core.Transaction) *core.TransactionReceipt {
	if response == nil {
		return nil
	}

	receipt := &core.TransactionReceipt{
		TransactionHash:    response.TransactionHash,
		Fee:                response.ActualFee,
		Events:             utils.Map(response.Events, AdaptEvent),
		L2ToL1Message:      utils.Map(response.L2ToL1Message, AdaptL2ToL1Message),
		ExecutionResources: AdaptExecutionResources(response.ExecutionResources),
		Reverted:           response.ExecutionStatus == starknet.Reverted,
		RevertReason:       response.RevertError,
	}
	if response.FeeUnit == core.STRK.String() {
		receipt.FeeUnit = core.STRK
	}
	if txn != nil {
		receipt.Type = txn.Type()
		if deploy, ok := txn.(*core.DeployAccountTransaction); ok {
			receipt.ContractAddress = deploy.ContractAddress
		}
	}
	return receipt
}

func AdaptEvent(response *starknet.Event) *core.Event {
	if response == nil {
		return nil
	}

	return &core.Event{
		Data: response.Data,
		From: response.From,
		Keys: response.Keys,
	}
}

func AdaptExecutionResources(response *starknet.ExecutionResources) *core.ExecutionResources {
	if response == nil {
		return nil
	}

	resources := &core.ExecutionResources{
		BuiltinInstanceCounter: core.BuiltinInstanceCounter{
			Pedersen:   response.BuiltinInstanceCounter.Pedersen,
			RangeCheck: response.BuiltinInstanceCounter.RangeCheck,
			Ecdsa:      response.BuiltinInstanceCounter.Ecsda,
			Keccak:     response.BuiltinInstanceCounter.Keccak,
		},
		MemoryHoles: response.MemoryHoles,
		Steps:       response.Steps,
	}
	if gas := response.TotalGasConsumed; gas != nil {
		resources.TotalGasConsumed = core.GasConsumed{L1Gas: gas.L1Gas, L1DataGas: gas.L1DataGas}
	}
	return resources
}

func AdaptL2ToL1Message(response *starknet.L2ToL1Message) *core.L2ToL1Message {
	if response == nil {
		return nil
	}

	return &core.L2ToL1Message{
		From:    response.From,
		Payload: response.Payload,
		To:      response.To,
	}
}

func AdaptTransaction(transaction *starknet.Transaction) (core.Transaction, error) {
	if transaction == nil {
		return nil, errors.New("nil client transaction")
	}
	txType := transaction.Type
	switch txType {
	case starknet.TxnDeclare:
		return AdaptDeclareTransaction(transaction), nil
	case starknet.TxnInvoke:
		return AdaptInvokeTransaction(transaction), nil
	case starknet.TxnDeployAccount:
		return AdaptDeployAccountTransaction(transaction), nil
	default:
		return nil, fmt.Errorf("unknown transaction type %q", txType)
	}
}

func AdaptDeclareTransaction(t *starknet.Transaction) *core.DeclareTransaction {
	return &core.DeclareTransaction{
		TransactionHash:      t.Hash,
		SenderAddress:        t.SenderAddress,
		MaxFee:               t.MaxFee,
		TransactionSignature: deref(t.Signature),
		Nonce:                t.Nonce,
		Version:              t.Version,
		ClassHash:            t.ClassHash,
		CompiledClassHash:    t.CompiledClassHash,
	}
}

func AdaptInvokeTransaction(t *starknet.Transaction) *core.InvokeTransaction {
	return &core.InvokeTransaction{
		TransactionHash:      t.Hash,
		Nonce:                t.Nonce,
		CallData:             deref(t.CallData),
		TransactionSignature: deref(t.Signature),
		MaxFee:               t.MaxFee,
		Version:              t.Version,
		SenderAddress:        t.SenderAddress,
	}
}

func AdaptDeployAccountTransaction(t *starknet.Transaction) *core.DeployAccountTransaction {
	callData := deref(t.ConstructorCallData)
	if t.ContractAddress == nil {
		t.ContractAddress = core.ContractAddress(&felt.Zero, t.ClassHash, t.ContractAddressSalt, callData)
	}
	return &core.DeployAccountTransaction{
		TransactionHash:      t.Hash,
		ContractAddressSalt:  t.ContractAddressSalt,
		ContractAddress:      t.ContractAddress,
		ClassHash:            t.ClassHash,
		ConstructorCallData:  callData,
		MaxFee:               t.MaxFee,
		TransactionSignature: deref(t.Signature),
		Nonce:                t.Nonce,
		Version:              t.Version,
	}
}

func deref(s *[]*felt.Felt) []*felt.Felt {
	if s == nil {
		return nil
	}
	return *s
}

func AdaptClass(response *starknet.ClassDefinition) (*core.Class, error) {
	if response == nil {
		return nil, errors.New("nil class definition")
	}

	class := &core.Class{Abi: response.Abi, Salt: response.Salt}
	if err := class.Kind.UnmarshalText([]byte(response.Kind)); err != nil {
		return nil, err
	}
	for _, ep := range response.EntryPoints {
		class.EntryPoints = append(class.EntryPoints, core.EntryPoint{Name: ep.Name, Selector: ep.Selector})
	}
	return class, nil
}

func AdaptStateUpdate(response *starknet.StateUpdate) (*core.StateDiff, error) {
	if response == nil {
		return nil, errors.New("nil state update")
	}
	diff := core.EmptyStateDiff()

	for _, declared := range response.StateDiff.DeclaredClasses {
		diff.DeclaredClasses[*declared.ClassHash] = declared.CompiledClassHash
	}
	for _, replaced := range response.StateDiff.ReplacedClasses {
		diff.ReplacedClasses[*replaced.Address] = replaced.ClassHash
	}
	for _, deployed := range response.StateDiff.DeployedContracts {
		diff.DeployedContracts[*deployed.Address] = deployed.ClassHash
	}

	for addrStr, nonce := range response.StateDiff.Nonces {
		addr, err := new(felt.Felt).SetString(addrStr)
		if err != nil {
			return nil, err
		}
		diff.Nonces[*addr] = nonce
	}

	for addrStr, entries := range response.StateDiff.StorageDiffs {
		addr, err := new(felt.Felt).SetString(addrStr)
		if err != nil {
			return nil, err
		}

		storage := make(map[felt.Felt]*felt.Felt, len(entries))
		for _, entry := range entries {
			storage[*entry.Key] = entry.Value
		}
		diff.StorageDiffs[*addr] = storage
	}
	return diff, nil
}
