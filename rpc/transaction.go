package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/adapters/core2sn"
	"github.com/NethermindEth/katana/adapters/sn2core"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/starknet"
	"github.com/jinzhu/copier"
)

// TransactionType values match starknet.TransactionType so the two convert by value.
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
		return "INVOKE"
	default:
		return "<unknown>"
	}
}

func (t TransactionType) MarshalText() ([]byte, error) {
	switch t {
	case TxnDeclare, TxnDeployAccount, TxnInvoke:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("unknown TransactionType %v", uint8(t))
	}
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

type TxnStatus uint8

const (
	TxnStatusReceived TxnStatus = iota + 1
	TxnStatusRejected
	TxnStatusAcceptedOnL2
)

func (s TxnStatus) MarshalText() ([]byte, error) {
	switch s {
	case TxnStatusReceived:
		return []byte("RECEIVED"), nil
	case TxnStatusRejected:
		return []byte("REJECTED"), nil
	case TxnStatusAcceptedOnL2:
		return []byte("ACCEPTED_ON_L2"), nil
	default:
		return nil, fmt.Errorf("unknown TxnStatus %v", uint8(s))
	}
}

type TxnFinalityStatus uint8

const (
	TxnAcceptedOnL2 TxnFinalityStatus = iota + 1
)

func (s TxnFinalityStatus) MarshalText() ([]byte, error) {
	if s == TxnAcceptedOnL2 {
		return []byte("ACCEPTED_ON_L2"), nil
	}
	return nil, fmt.Errorf("unknown TxnFinalityStatus %v", uint8(s))
}

type TxnExecutionStatus uint8

const (
	UnknownExecution TxnExecutionStatus = iota
	TxnSuccess
	TxnFailure
)

func (es TxnExecutionStatus) MarshalText() ([]byte, error) {
	switch es {
	case TxnSuccess:
		return []byte("SUCCEEDED"), nil
	case TxnFailure:
		return []byte("REVERTED"), nil
	default:
		return nil, fmt.Errorf("unknown ExecutionStatus %v", uint8(es))
	}
}

func executionStatus(receipt *core.TransactionReceipt) TxnExecutionStatus {
	if receipt.Reverted {
		return TxnFailure
	}
	return TxnSuccess
}

type FeeUnit byte

const (
	WEI FeeUnit = iota
	FRI
)

func (u FeeUnit) MarshalText() ([]byte, error) {
	switch u {
	case WEI:
		return []byte("WEI"), nil
	case FRI:
		return []byte("FRI"), nil
	default:
		return nil, fmt.Errorf("unknown FeeUnit %v", uint8(u))
	}
}

//nolint:lll
type Transaction struct {
	Hash                *felt.Felt      `json:"transaction_hash,omitempty"`
	Type                TransactionType `json:"type" validate:"required"`
	Version             *felt.Felt      `json:"version,omitempty" validate:"required,tx_version"`
	Nonce               *felt.Felt      `json:"nonce,omitempty" validate:"required"`
	MaxFee              *felt.Felt      `json:"max_fee,omitempty" validate:"required"`
	ContractAddress     *felt.Felt      `json:"contract_address,omitempty"`
	ContractAddressSalt *felt.Felt      `json:"contract_address_salt,omitempty" validate:"required_if=Type DEPLOY_ACCOUNT"`
	ClassHash           *felt.Felt      `json:"class_hash,omitempty" validate:"required_if=Type DEPLOY_ACCOUNT"`
	ConstructorCallData *[]*felt.Felt   `json:"constructor_calldata,omitempty" validate:"required_if=Type DEPLOY_ACCOUNT"`
	SenderAddress       *felt.Felt      `json:"sender_address,omitempty" validate:"required_if=Type DECLARE,required_if=Type INVOKE"`
	Signature           *[]*felt.Felt   `json:"signature,omitempty" validate:"required"`
	CallData            *[]*felt.Felt   `json:"calldata,omitempty" validate:"required_if=Type INVOKE"`
	CompiledClassHash   *felt.Felt      `json:"compiled_class_hash,omitempty" validate:"required_if=Type DECLARE"`
}

type EntryPoint struct {
	Name     string     `json:"name"`
	Selector *felt.Felt `json:"selector" validate:"required"`
}

type ContractClass struct {
	Kind        string       `json:"kind" validate:"required"`
	EntryPoints []EntryPoint `json:"entry_points" validate:"dive"`
	Abi         string       `json:"abi"`
	Salt        *felt.Felt   `json:"salt,omitempty"`
}

// BroadcastedTransaction is a transaction submitted for inclusion. Its hash is computed
// by the node.
type BroadcastedTransaction struct {
	Transaction
	ContractClass *ContractClass `json:"contract_class,omitempty" validate:"required_if=Transaction.Type DECLARE"`
}

type TransactionStatus struct {
	Finality      TxnStatus          `json:"finality_status"`
	Execution     TxnExecutionStatus `json:"execution_status,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

type Event struct {
	From *felt.Felt   `json:"from_address"`
	Keys []*felt.Felt `json:"keys"`
	Data []*felt.Felt `json:"data"`
}

type MsgToL1 struct {
	From    *felt.Felt   `json:"from_address"`
	To      *felt.Felt   `json:"to_address"`
	Payload []*felt.Felt `json:"payload"`
}

type DataAvailability struct {
	L1Gas     uint64 `json:"l1_gas"`
	L1DataGas uint64 `json:"l1_data_gas"`
}

type ExecutionResources struct {
	Steps       uint64 `json:"steps"`
	MemoryHoles uint64 `json:"memory_holes,omitempty"`
	core.BuiltinInstanceCounter
	TotalGasConsumed DataAvailability `json:"data_availability"`
}

type FeePayment struct {
	Amount *felt.Felt `json:"amount"`
	Unit   FeeUnit    `json:"unit"`
}

type TransactionReceipt struct {
	Type               TransactionType     `json:"type"`
	Hash               *felt.Felt          `json:"transaction_hash"`
	ActualFee          *FeePayment         `json:"actual_fee"`
	ExecutionStatus    TxnExecutionStatus  `json:"execution_status"`
	FinalityStatus     TxnFinalityStatus   `json:"finality_status"`
	BlockHash          *felt.Felt          `json:"block_hash,omitempty"`
	BlockNumber        *uint64             `json:"block_number,omitempty"`
	MessagesSent       []*MsgToL1          `json:"messages_sent"`
	Events             []*Event            `json:"events"`
	ContractAddress    *felt.Felt          `json:"contract_address,omitempty"`
	RevertReason       string              `json:"revert_reason,omitempty"`
	ExecutionResources *ExecutionResources `json:"execution_resources"`
}

type AddTxResponse struct {
	TransactionHash *felt.Felt `json:"transaction_hash"`
	ContractAddress *felt.Felt `json:"contract_address,omitempty"`
	ClassHash       *felt.Felt `json:"class_hash,omitempty"`
}

// AdaptTransaction goes through the gateway representation, which carries the same fields.
func AdaptTransaction(txn core.Transaction) *Transaction {
	adapted := new(Transaction)
	if err := copier.Copy(adapted, core2sn.AdaptTransaction(txn)); err != nil {
		// both sides are plain structs of the same field types
		panic(err)
	}
	return adapted
}

func adaptContractClass(class *core.Class) *ContractClass {
	adapted := new(ContractClass)
	if err := copier.Copy(adapted, core2sn.AdaptClass(class)); err != nil {
		panic(err)
	}
	return adapted
}

// adaptBroadcastedTransaction builds the core transaction and computes its hash on chainID.
func adaptBroadcastedTransaction(broadcastedTxn *BroadcastedTransaction, chainID *felt.Felt) (core.Transaction, error) {
	var feederTxn starknet.Transaction
	if err := copier.Copy(&feederTxn, &broadcastedTxn.Transaction); err != nil {
		return nil, err
	}
	// the node derives both of these
	feederTxn.Hash = nil
	feederTxn.ContractAddress = nil

	var class *core.Class
	if broadcastedTxn.Type == TxnDeclare {
		if broadcastedTxn.ContractClass == nil {
			return nil, errors.New("declare transaction without a contract class")
		}
		var definition starknet.ClassDefinition
		if err := copier.Copy(&definition, broadcastedTxn.ContractClass); err != nil {
			return nil, err
		}
		var err error
		if class, err = sn2core.AdaptClass(&definition); err != nil {
			return nil, err
		}
		if feederTxn.ClassHash, err = class.Hash(); err != nil {
			return nil, err
		}
	}

	txn, err := sn2core.AdaptTransaction(&feederTxn)
	if err != nil {
		return nil, err
	}
	hash, err := core.TransactionHash(txn, chainID)
	if err != nil {
		return nil, err
	}

	switch t := txn.(type) {
	case *core.InvokeTransaction:
		t.TransactionHash = hash
	case *core.DeclareTransaction:
		t.TransactionHash = hash
		t.Class = class
	case *core.DeployAccountTransaction:
		t.TransactionHash = hash
	}
	return txn, nil
}

// AdaptReceipt leaves the block hash and number out when they are nil.
func AdaptReceipt(receipt *core.TransactionReceipt, finality TxnFinalityStatus,
	blockHash *felt.Felt, blockNumber *uint64,
) *TransactionReceipt {
	var (
		events   []*Event
		messages []*MsgToL1
	)
	if err := copier.Copy(&events, receipt.Events); err != nil {
		panic(err)
	}
	if err := copier.Copy(&messages, receipt.L2ToL1Message); err != nil {
		panic(err)
	}
	if events == nil {
		events = []*Event{}
	}
	if messages == nil {
		messages = []*MsgToL1{}
	}

	resources := new(ExecutionResources)
	if receipt.ExecutionResources != nil {
		if err := copier.Copy(resources, receipt.ExecutionResources); err != nil {
			panic(err)
		}
	}

	unit := WEI
	if receipt.FeeUnit == core.STRK {
		unit = FRI
	}
	return &TransactionReceipt{
		Type:               TransactionType(core2sn.AdaptTransactionType(receipt.Type)),
		Hash:               receipt.TransactionHash,
		ActualFee:          &FeePayment{Amount: nilToZero(receipt.Fee), Unit: unit},
		ExecutionStatus:    executionStatus(receipt),
		FinalityStatus:     finality,
		BlockHash:          blockHash,
		BlockNumber:        blockNumber,
		MessagesSent:       messages,
		Events:             events,
		ContractAddress:    receipt.ContractAddress,
		RevertReason:       receipt.RevertReason,
		ExecutionResources: resources,
	}
}

// pendingTransaction finds hash in the block the producer is assembling.
func (h *Handler) pendingTransaction(hash *felt.Felt) (core.Transaction, *core.TransactionReceipt, bool) {
	pending := h.pendingBlock()
	if pending == nil {
		return nil, nil, false
	}
	for i, txn := range pending.Transactions {
		if txn.Hash().Equal(hash) {
			return txn, pending.Receipts[i], true
		}
	}
	return nil, nil, false
}

// TransactionByHash looks the transaction up in the chain, then in the pending block and
// then in the pool.
func (h *Handler) TransactionByHash(hash felt.Felt) (*Transaction, *jsonrpc.Error) {
	txn, err := h.bcReader.TransactionByHash(&hash)
	if err == nil {
		return AdaptTransaction(txn), nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrInternal.CloneWithData(err)
	}

	if txn, _, ok := h.pendingTransaction(&hash); ok {
		return AdaptTransaction(txn), nil
	}
	if h.pool != nil {
		if pending, ok := h.pool.Get(&hash); ok {
			return AdaptTransaction(pending.Transaction), nil
		}
	}
	return nil, ErrTxnHashNotFound
}

func (h *Handler) TransactionByBlockIDAndIndex(id BlockID, txIndex int) (*Transaction, *jsonrpc.Error) {
	if txIndex < 0 {
		return nil, ErrInvalidTxIndex
	}

	if id.Pending {
		if pending := h.pendingBlock(); pending != nil {
			if uint64(txIndex) >= uint64(len(pending.Transactions)) {
				return nil, ErrInvalidTxIndex
			}
			return AdaptTransaction(pending.Transactions[txIndex]), nil
		}
	}

	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	txn, err := h.bcReader.TransactionByBlockNumberAndIndex(header.Number, uint64(txIndex))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrInvalidTxIndex
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	return AdaptTransaction(txn), nil
}

func (h *Handler) TransactionReceiptByHash(hash felt.Felt) (*TransactionReceipt, *jsonrpc.Error) {
	receipt, blockHash, blockNumber, err := h.bcReader.Receipt(&hash)
	if err == nil {
		return AdaptReceipt(receipt, TxnAcceptedOnL2, blockHash, &blockNumber), nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrInternal.CloneWithData(err)
	}

	if _, receipt, ok := h.pendingTransaction(&hash); ok {
		return AdaptReceipt(receipt, TxnAcceptedOnL2, nil, nil), nil
	}
	return nil, ErrTxnHashNotFound
}

// TransactionStatus reports ACCEPTED_ON_L2 for sealed transactions, RECEIVED for
// transactions waiting in the pool or the pending block and REJECTED for recent rejections.
func (h *Handler) TransactionStatus(hash felt.Felt) (*TransactionStatus, *jsonrpc.Error) {
	receipt, _, _, err := h.bcReader.Receipt(&hash)
	if err == nil {
		status := &TransactionStatus{
			Finality:  TxnStatusAcceptedOnL2,
			Execution: executionStatus(receipt),
		}
		if receipt.Reverted {
			status.FailureReason = receipt.RevertReason
		}
		return status, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrInternal.CloneWithData(err)
	}

	if _, receipt, ok := h.pendingTransaction(&hash); ok {
		return &TransactionStatus{
			Finality:      TxnStatusReceived,
			Execution:     executionStatus(receipt),
			FailureReason: receipt.RevertReason,
		}, nil
	}
	if h.pool == nil {
		return nil, ErrTxnHashNotFound
	}

	switch h.pool.Status(&hash) {
	// an included transaction not found above is still executing in the open block
	case mempool.StatusReceived, mempool.StatusIncluded:
		return &TransactionStatus{Finality: TxnStatusReceived}, nil
	case mempool.StatusRejected:
		status := &TransactionStatus{Finality: TxnStatusRejected}
		if rejection, ok := h.pool.Rejection(&hash); ok {
			status.FailureReason = rejection.Error()
		}
		return status, nil
	default:
		return nil, ErrTxnHashNotFound
	}
}

// AddTransaction submits tx to the pool. Nodes without a pool, such as trailing nodes,
// do not accept transactions.
func (h *Handler) AddTransaction(ctx context.Context, tx BroadcastedTransaction) (*AddTxResponse, *jsonrpc.Error) {
	if h.pool == nil {
		return nil, ErrNotProducing
	}

	txn, err := adaptBroadcastedTransaction(&tx, h.bcReader.ChainID())
	if err != nil {
		if errors.Is(err, core.ErrInvalidTxVersion) {
			return nil, ErrUnsupportedTxVersion.CloneWithData(err)
		}
		return nil, ErrMalformedTransaction.CloneWithData(err)
	}

	hash, err := h.pool.Add(ctx, txn)
	if err != nil {
		return nil, adaptAddError(err)
	}

	response := &AddTxResponse{TransactionHash: hash}
	switch t := txn.(type) {
	case *core.DeployAccountTransaction:
		response.ContractAddress = t.ContractAddress
	case *core.DeclareTransaction:
		response.ClassHash = t.ClassHash
	}
	return response, nil
}
