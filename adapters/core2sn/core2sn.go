package core2sn

import (
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/starknet"
	"github.com/NethermindEth/katana/utils"
)

func AdaptBlock(block *core.Block) *starknet.Block {
	txns := make([]*starknet.Transaction, len(block.Transactions))
	for i, txn := range block.Transactions {
		txns[i] = AdaptTransaction(txn)
	}
	receipts := make([]*starknet.TransactionReceipt, len(block.Receipts))
	for i, receipt := range block.Receipts {
		receipts[i] = AdaptTransactionReceipt(receipt, uint64(i))
	}

	return &starknet.Block{
		Hash:                  block.Hash,
		ParentHash:            block.ParentHash,
		Number:                block.Number,
		StateRoot:             block.StateRoot,
		TransactionCommitment: block.TransactionCommitment,
		EventCommitment:       block.EventCommitment,
		ReceiptCommitment:     block.ReceiptCommitment,
		StateDiffCommitment:   block.StateDiffCommitment,
		StateDiffLength:       block.StateDiffLength,
		Status:                starknet.BlockStatusAcceptedOnL2,
		Transactions:          txns,
		Timestamp:             block.Timestamp,
		Version:               block.ProtocolVersion,
		Receipts:              receipts,
		SequencerAddress:      block.SequencerAddress,
		L1GasPrice:            adaptGasPrice(block.L1GasPrice),
		L1DAMode:              starknet.L1DAMode(block.L1DAMode),
		L1DataGasPrice:        adaptGasPrice(block.L1DataGasPrice),
	}
}

func adaptGasPrice(price core.GasPrice) *starknet.GasPrice {
	return &starknet.GasPrice{PriceInWei: price.PriceInWei, PriceInFri: price.PriceInFri}
}

func AdaptTransaction(transaction core.Transaction) *starknet.Transaction {
	switch t := transaction.(type) {
	case *core.InvokeTransaction:
		return &starknet.Transaction{
			Type:          starknet.TxnInvoke,
			Hash:          t.TransactionHash,
			Version:       t.Version,
			SenderAddress: t.SenderAddress,
			MaxFee:        t.MaxFee,
			Nonce:         t.Nonce,
			CallData:      &t.CallData,
			Signature:     &t.TransactionSignature,
		}
	case *core.DeclareTransaction:
		return &starknet.Transaction{
			Type:              starknet.TxnDeclare,
			Hash:              t.TransactionHash,
			Version:           t.Version,
			SenderAddress:     t.SenderAddress,
			MaxFee:            t.MaxFee,
			Nonce:             t.Nonce,
			ClassHash:         t.ClassHash,
			CompiledClassHash: t.CompiledClassHash,
			Signature:         &t.TransactionSignature,
		}
	case *core.DeployAccountTransaction:
		return &starknet.Transaction{
			Type:                starknet.TxnDeployAccount,
			Hash:                t.TransactionHash,
			Version:             t.Version,
			ContractAddress:     t.ContractAddress,
			ContractAddressSalt: t.ContractAddressSalt,
			ClassHash:           t.ClassHash,
			ConstructorCallData: &t.ConstructorCallData,
			MaxFee:              t.MaxFee,
			Nonce:               t.Nonce,
			Signature:           &t.TransactionSignature,
		}
	default:
		return nil
	}
}

func AdaptTransactionReceipt(receipt *core.TransactionReceipt, index uint64) *starknet.TransactionReceipt {
	status := starknet.Succeeded
	if receipt.Reverted {
		status = starknet.Reverted
	}
	return &starknet.TransactionReceipt{
		ActualFee:          receipt.Fee,
		FeeUnit:            receipt.FeeUnit.String(),
		Events:             utils.Map(receipt.Events, AdaptEvent),
		ExecutionStatus:    status,
		ExecutionResources: AdaptExecutionResources(receipt.ExecutionResources),
		L2ToL1Message:      utils.Map(receipt.L2ToL1Message, AdaptL2ToL1Message),
		TransactionHash:    receipt.TransactionHash,
		TransactionIndex:   index,
		RevertError:        receipt.RevertReason,
	}
}

func AdaptEvent(event *core.Event) *starknet.Event {
	return &starknet.Event{From: event.From, Keys: event.Keys, Data: event.Data}
}

func AdaptL2ToL1Message(msg *core.L2ToL1Message) *starknet.L2ToL1Message {
	return &starknet.L2ToL1Message{From: msg.From, To: msg.To, Payload: msg.Payload}
}

func AdaptExecutionResources(resources *core.ExecutionResources) *starknet.ExecutionResources {
	if resources == nil {
		return nil
	}
	return &starknet.ExecutionResources{
		Steps:       resources.Steps,
		MemoryHoles: resources.MemoryHoles,
		BuiltinInstanceCounter: starknet.BuiltinInstanceCounter{
			Pedersen:   resources.BuiltinInstanceCounter.Pedersen,
			RangeCheck: resources.BuiltinInstanceCounter.RangeCheck,
			Ecsda:      resources.BuiltinInstanceCounter.Ecdsa,
			Keccak:     resources.BuiltinInstanceCounter.Keccak,
		},
		TotalGasConsumed: &starknet.GasConsumed{
			L1Gas:     resources.TotalGasConsumed.L1Gas,
			L1DataGas: resources.TotalGasConsumed.L1DataGas,
		},
	}
}

func AdaptStateUpdate(header *core.Header, oldRoot *felt.Felt, diff *core.StateDiff) *starknet.StateUpdate {
	update := &starknet.StateUpdate{
		BlockHash: header.Hash,
		NewRoot:   header.StateRoot,
		OldRoot:   oldRoot,
		StateDiff: starknet.StateDiff{
			StorageDiffs: make(map[string][]starknet.StorageEntry, len(diff.StorageDiffs)),
			Nonces:       make(map[string]*felt.Felt, len(diff.Nonces)),
		},
	}

	for addr, storage := range diff.StorageDiffs {
		entries := make([]starknet.StorageEntry, 0, len(storage))
		for key, value := range storage {
			entries = append(entries, starknet.StorageEntry{Key: &key, Value: value})
		}
		update.StateDiff.StorageDiffs[addr.String()] = entries
	}
	for addr, nonce := range diff.Nonces {
		update.StateDiff.Nonces[addr.String()] = nonce
	}
	for addr, classHash := range diff.DeployedContracts {
		update.StateDiff.DeployedContracts = append(update.StateDiff.DeployedContracts,
			starknet.AddressClassHash{Address: &addr, ClassHash: classHash})
	}
	for addr, classHash := range diff.ReplacedClasses {
		update.StateDiff.ReplacedClasses = append(update.StateDiff.ReplacedClasses,
			starknet.AddressClassHash{Address: &addr, ClassHash: classHash})
	}
	for classHash, compiledClassHash := range diff.DeclaredClasses {
		update.StateDiff.DeclaredClasses = append(update.StateDiff.DeclaredClasses,
			starknet.DeclaredClass{ClassHash: &classHash, CompiledClassHash: compiledClassHash})
	}
	return update
}

func AdaptClass(class *core.Class) *starknet.ClassDefinition {
	definition := &starknet.ClassDefinition{
		Kind: class.Kind.String(),
		Abi:  class.Abi,
		Salt: class.Salt,
	}
	for _, ep := range class.EntryPoints {
		definition.EntryPoints = append(definition.EntryPoints, starknet.EntryPoint{Name: ep.Name, Selector: ep.Selector})
	}
	return definition
}

func AdaptTransactionType(t core.TransactionType) starknet.TransactionType {
	switch t {
	case core.TxInvoke:
		return starknet.TxnInvoke
	case core.TxDeclare:
		return starknet.TxnDeclare
	case core.TxDeployAccount:
		return starknet.TxnDeployAccount
	default:
		return starknet.Invalid
	}
}
