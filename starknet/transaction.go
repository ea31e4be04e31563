package starknet

import (
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
)

type ExecutionStatus uint8

const (
	Succeeded ExecutionStatus = iota + 1
	Reverted
	Rejected
)

func (es ExecutionStatus) MarshalText() ([]byte, error) {
	switch es {
	case Succeeded:
		return []byte("SUCCEEDED"), nil
	case Reverted:
		return []byte("REVERTED"), nil
	case Rejected:
		return []byte("REJECTED"), nil
	default:
		return nil, fmt.Errorf("unknown ExecutionStatus %d", es)
	}
}

func (es *ExecutionStatus) UnmarshalText(data []byte) error {
	switch str := string(data); str {
	case "SUCCEEDED":
		*es = Succeeded
	case "REVERTED":
		*es = Reverted
	case "REJECTED":
		*es = Rejected
	default:
		return fmt.Errorf("unknown ExecutionStatus %q", str)
	}
	return nil
}

type TransactionType uint8

const (
	Invalid TransactionType = iota
	TxnDeclare
	TxnDeployAccount
	TxnInvoke
)

func (t TransactionType) String() string {
	switch t {
	case TxnDeclare:
		return "DECLARE"
	case TxnDeployAccount:
		return "DEPLOY_ACCOUNT"
	case TxnInvoke:
		return "INVOKE_FUNCTION"
	default:
		return "<unknown>"
	}
}

func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TransactionType) UnmarshalText(data []byte) error {
	switch str := string(data); str {
	case "DECLARE":
		*t = TxnDeclare
	case "DEPLOY_ACCOUNT":
		*t = TxnDeployAccount
	case "INVOKE", "INVOKE_FUNCTION":
		*t = TxnInvoke
	default:
		return fmt.Errorf("unknown TransactionType %q", str)
	}
	return nil
}

// Transaction object returned by the feeder gateway in JSON format for multiple endpoints
type Transaction struct {
	Hash                *felt.Felt      `json:"transaction_hash,omitempty"`
	Version             *felt.Felt      `json:"version,omitempty"`
	ContractAddress     *felt.Felt      `json:"contract_address,omitempty"`
	ContractAddressSalt *felt.Felt      `json:"contract_address_salt,omitempty"`
	ClassHash           *felt.Felt      `json:"class_hash,omitempty"`
	ConstructorCallData *[]*felt.Felt   `json:"constructor_calldata,omitempty"`
	Type                TransactionType `json:"type,omitempty"`
	SenderAddress       *felt.Felt      `json:"sender_address,omitempty"`
	MaxFee              *felt.Felt      `json:"max_fee,omitempty"`
	Signature           *[]*felt.Felt   `json:"signature,omitempty"`
	CallData            *[]*felt.Felt   `json:"calldata,omitempty"`
	Nonce               *felt.Felt      `json:"nonce,omitempty"`
	CompiledClassHash   *felt.Felt      `json:"compiled_class_hash,omitempty"`
}

type Event struct {
	From *felt.Felt   `json:"from_address"`
	Data []*felt.Felt `json:"data"`
	Keys []*felt.Felt `json:"keys"`
}

type L2ToL1Message struct {
	From    *felt.Felt   `json:"from_address"`
	Payload []*felt.Felt `json:"payload"`
	To      *felt.Felt   `json:"to_address"`
}

type ExecutionResources struct {
	Steps                  uint64                 `json:"n_steps"`
	BuiltinInstanceCounter BuiltinInstanceCounter `json:"builtin_instance_counter"`
	MemoryHoles            uint64                 `json:"n_memory_holes"`
	TotalGasConsumed       *GasConsumed           `json:"total_gas_consumed"`
}

type BuiltinInstanceCounter struct {
	Pedersen   uint64 `json:"pedersen_builtin"`
	RangeCheck uint64 `json:"range_check_builtin"`
	Ecsda      uint64 `json:"ecdsa_builtin"`
	Keccak     uint64 `json:"keccak_builtin"`
}

type GasConsumed struct {
	L1Gas     uint64 `json:"l1_gas"`
	L1DataGas uint64 `json:"l1_data_gas"`
}

type TransactionReceipt struct {
	ActualFee          *felt.Felt          `json:"actual_fee"`
	FeeUnit            string              `json:"actual_fee_unit,omitempty"`
	Events             []*Event            `json:"events"`
	ExecutionStatus    ExecutionStatus     `json:"execution_status"`
	ExecutionResources *ExecutionResources `json:"execution_resources"`
	L2ToL1Message      []*L2ToL1Message    `json:"l2_to_l1_messages"`
	TransactionHash    *felt.Felt          `json:"transaction_hash"`
	TransactionIndex   uint64              `json:"transaction_index"`
	RevertError        string              `json:"revert_error,omitempty"`
}
