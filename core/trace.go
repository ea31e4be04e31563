package core

import (
	"github.com/NethermindEth/katana/core/felt"
)

type CallType uint8

const (
	CallTypeCall CallType = iota
	CallTypeDelegate
)

// FunctionInvocation is one call in the execution tree of a transaction.
type FunctionInvocation struct {
	ContractAddress    *felt.Felt            `cbor:"1,keyasint" json:"contract_address"`
	EntryPointSelector *felt.Felt            `cbor:"2,keyasint" json:"entry_point_selector"`
	Calldata           []*felt.Felt          `cbor:"3,keyasint" json:"calldata"`
	CallerAddress      *felt.Felt            `cbor:"4,keyasint" json:"caller_address"`
	ClassHash          *felt.Felt            `cbor:"5,keyasint" json:"class_hash"`
	CallType           CallType              `cbor:"6,keyasint" json:"call_type"`
	Result             []*felt.Felt          `cbor:"7,keyasint" json:"result"`
	Calls              []*FunctionInvocation `cbor:"8,keyasint" json:"calls"`
	Events             []*Event              `cbor:"9,keyasint" json:"events"`
	Messages           []*L2ToL1Message      `cbor:"10,keyasint" json:"messages"`
	ExecutionResources *ExecutionResources   `cbor:"11,keyasint" json:"execution_resources"`
	// Failed is set when this call reverted.
	Failed bool `cbor:"12,keyasint,omitempty" json:"is_reverted,omitempty"`
}

// TransactionTrace is the execution tree of one transaction.
type TransactionTrace struct {
	Type                  TransactionType     `cbor:"1,keyasint" json:"type"`
	ValidateInvocation    *FunctionInvocation `cbor:"2,keyasint,omitempty" json:"validate_invocation,omitempty"`
	ExecuteInvocation     *FunctionInvocation `cbor:"3,keyasint,omitempty" json:"execute_invocation,omitempty"`
	FeeTransferInvocation *FunctionInvocation `cbor:"4,keyasint,omitempty" json:"fee_transfer_invocation,omitempty"`
	ConstructorInvocation *FunctionInvocation `cbor:"5,keyasint,omitempty" json:"constructor_invocation,omitempty"`
	RevertReason          string              `cbor:"6,keyasint,omitempty" json:"revert_reason,omitempty"`
	StateDiff             *StateDiff          `cbor:"7,keyasint,omitempty" json:"state_diff,omitempty"`
}

// AllEvents returns the events of every invocation in execution order.
func (t *TransactionTrace) AllEvents() []*Event {
	var events []*Event
	for _, inv := range []*FunctionInvocation{t.ValidateInvocation, t.ConstructorInvocation, t.ExecuteInvocation, t.FeeTransferInvocation} {
		events = append(events, inv.allEvents()...)
	}
	return events
}

func (f *FunctionInvocation) allEvents() []*Event {
	if f == nil {
		return nil
	}
	events := append([]*Event{}, f.Events...)
	for _, call := range f.Calls {
		events = append(events, call.allEvents()...)
	}
	return events
}
