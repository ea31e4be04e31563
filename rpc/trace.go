package rpc

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/adapters/core2sn"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/jinzhu/copier"
)

type CallType uint8

const (
	CallTypeCall CallType = iota
	CallTypeDelegate
)

func (c CallType) MarshalText() ([]byte, error) {
	switch c {
	case CallTypeCall:
		return []byte("CALL"), nil
	case CallTypeDelegate:
		return []byte("DELEGATE"), nil
	default:
		return nil, fmt.Errorf("unknown call type %v", uint8(c))
	}
}

type OrderedEvent struct {
	Order uint64 `json:"order"`
	*Event
}

type OrderedL2toL1Message struct {
	Order uint64 `json:"order"`
	*MsgToL1
}

type FunctionInvocation struct {
	ContractAddress    *felt.Felt             `json:"contract_address"`
	EntryPointSelector *felt.Felt             `json:"entry_point_selector"`
	Calldata           []*felt.Felt           `json:"calldata"`
	CallerAddress      *felt.Felt             `json:"caller_address"`
	ClassHash          *felt.Felt             `json:"class_hash"`
	EntryPointType     string                 `json:"entry_point_type"`
	CallType           CallType               `json:"call_type"`
	Result             []*felt.Felt           `json:"result"`
	Calls              []FunctionInvocation   `json:"calls"`
	Events             []OrderedEvent         `json:"events"`
	Messages           []OrderedL2toL1Message `json:"messages"`
	ExecutionResources *ExecutionResources    `json:"execution_resources"`
	IsReverted         bool                   `json:"is_reverted,omitempty"`
}

type ExecuteInvocation struct {
	RevertReason string `json:"revert_reason,omitempty"`
	*FunctionInvocation
}

type TransactionTrace struct {
	Type                  TransactionType     `json:"type"`
	ValidateInvocation    *FunctionInvocation `json:"validate_invocation,omitempty"`
	ExecuteInvocation     *ExecuteInvocation  `json:"execute_invocation,omitempty"`
	FeeTransferInvocation *FunctionInvocation `json:"fee_transfer_invocation,omitempty"`
	ConstructorInvocation *FunctionInvocation `json:"constructor_invocation,omitempty"`
	StateDiff             *StateDiff          `json:"state_diff,omitempty"`
}

// AdaptTransactionTrace numbers events and messages in the order they were emitted within
// each invocation.
func AdaptTransactionTrace(trace *core.TransactionTrace) *TransactionTrace {
	adapted := &TransactionTrace{
		Type:                  TransactionType(core2sn.AdaptTransactionType(trace.Type)),
		ValidateInvocation:    adaptFunctionInvocation(trace.ValidateInvocation),
		FeeTransferInvocation: adaptFunctionInvocation(trace.FeeTransferInvocation),
		ConstructorInvocation: adaptFunctionInvocation(trace.ConstructorInvocation),
	}
	// a reverted invoke has no execution tree left, only its reason
	if trace.ExecuteInvocation != nil || trace.RevertReason != "" {
		adapted.ExecuteInvocation = &ExecuteInvocation{
			RevertReason:       trace.RevertReason,
			FunctionInvocation: adaptFunctionInvocation(trace.ExecuteInvocation),
		}
	}
	if trace.StateDiff != nil {
		adapted.StateDiff = adaptStateDiff(trace.StateDiff)
	}
	return adapted
}

func adaptFunctionInvocation(inv *core.FunctionInvocation) *FunctionInvocation {
	if inv == nil {
		return nil
	}

	adapted := &FunctionInvocation{
		ContractAddress:    inv.ContractAddress,
		EntryPointSelector: inv.EntryPointSelector,
		Calldata:           inv.Calldata,
		CallerAddress:      inv.CallerAddress,
		ClassHash:          inv.ClassHash,
		EntryPointType:     "EXTERNAL",
		CallType:           CallType(inv.CallType),
		Result:             inv.Result,
		Calls:              make([]FunctionInvocation, 0, len(inv.Calls)),
		Events:             make([]OrderedEvent, len(inv.Events)),
		Messages:           make([]OrderedL2toL1Message, len(inv.Messages)),
		ExecutionResources: new(ExecutionResources),
		IsReverted:         inv.Failed,
	}
	for _, call := range inv.Calls {
		adapted.Calls = append(adapted.Calls, *adaptFunctionInvocation(call))
	}
	for i, event := range inv.Events {
		adapted.Events[i] = OrderedEvent{
			Order: uint64(i),
			Event: &Event{From: event.From, Keys: event.Keys, Data: event.Data},
		}
	}
	for i, msg := range inv.Messages {
		adapted.Messages[i] = OrderedL2toL1Message{
			Order:   uint64(i),
			MsgToL1: &MsgToL1{From: msg.From, To: msg.To, Payload: msg.Payload},
		}
	}
	if inv.ExecutionResources != nil {
		if err := copier.Copy(adapted.ExecutionResources, inv.ExecutionResources); err != nil {
			panic(err)
		}
	}
	return adapted
}

// TraceTransaction returns the execution trace stored when the transaction was sealed.
func (h *Handler) TraceTransaction(hash felt.Felt) (*TransactionTrace, *jsonrpc.Error) {
	trace, err := h.bcReader.TransactionTrace(&hash)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrInternal.CloneWithData(err)
		}
		if _, _, ok := h.pendingTransaction(&hash); ok {
			return nil, ErrCallOnPending
		}
		return nil, ErrTxnHashNotFound
	}
	return AdaptTransactionTrace(trace), nil
}
