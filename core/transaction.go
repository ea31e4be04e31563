package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/encoder"
)

type Event struct {
	From *felt.Felt   `cbor:"1,keyasint" json:"from_address"`
	Keys []*felt.Felt `cbor:"2,keyasint" json:"keys"`
	Data []*felt.Felt `cbor:"3,keyasint" json:"data"`
}

type L2ToL1Message struct {
	From    *felt.Felt   `cbor:"1,keyasint" json:"from_address"`
	To      *felt.Felt   `cbor:"2,keyasint" json:"to_address"`
	Payload []*felt.Felt `cbor:"3,keyasint" json:"payload"`
}

type TransactionType uint8

const (
	TxInvoke TransactionType = iota + 1
	TxDeclare
	TxDeployAccount
)

func (t TransactionType) String() string {
	switch t {
	case TxInvoke:
		return "INVOKE"
	case TxDeclare:
		return "DECLARE"
	case TxDeployAccount:
		return "DEPLOY_ACCOUNT"
	default:
		return "UNKNOWN"
	}
}

type Transaction interface {
	Hash() *felt.Felt
	Signature() []*felt.Felt
	Type() TransactionType
	// Sender is the account that validates the transaction and pays its fee.
	Sender() *felt.Felt
	TxNonce() *felt.Felt
	FeeLimit() *felt.Felt
}

var (
	_ Transaction = (*InvokeTransaction)(nil)
	_ Transaction = (*DeclareTransaction)(nil)
	_ Transaction = (*DeployAccountTransaction)(nil)
)

type InvokeTransaction struct {
	TransactionHash *felt.Felt `cbor:"1,keyasint" json:"transaction_hash"`
	// The arguments that are passed to the validate and execute functions.
	CallData []*felt.Felt `cbor:"2,keyasint" json:"calldata"`
	// Additional information given by the sender, used to validate the transaction.
	TransactionSignature []*felt.Felt `cbor:"3,keyasint" json:"signature"`
	// The maximum fee that the sender is willing to pay for the transaction
	MaxFee *felt.Felt `cbor:"4,keyasint" json:"max_fee"`
	// The transaction nonce.
	Nonce *felt.Felt `cbor:"5,keyasint" json:"nonce"`
	// The address of the sender of this transaction
	SenderAddress *felt.Felt `cbor:"6,keyasint" json:"sender_address"`
	Version       *felt.Felt `cbor:"7,keyasint" json:"version"`
}

func (i *InvokeTransaction) Hash() *felt.Felt        { return i.TransactionHash }
func (i *InvokeTransaction) Signature() []*felt.Felt { return i.TransactionSignature }
func (i *InvokeTransaction) Type() TransactionType   { return TxInvoke }
func (i *InvokeTransaction) Sender() *felt.Felt      { return i.SenderAddress }
func (i *InvokeTransaction) TxNonce() *felt.Felt     { return i.Nonce }
func (i *InvokeTransaction) FeeLimit() *felt.Felt    { return i.MaxFee }

type DeclareTransaction struct {
	TransactionHash *felt.Felt `cbor:"1,keyasint" json:"transaction_hash"`
	// The class hash
	ClassHash *felt.Felt `cbor:"2,keyasint" json:"class_hash"`
	// The address of the account initiating the transaction.
	SenderAddress *felt.Felt `cbor:"3,keyasint" json:"sender_address"`
	// The maximum fee that the sender is willing to pay for the transaction.
	MaxFee *felt.Felt `cbor:"4,keyasint" json:"max_fee"`
	// Additional information given by the sender, used to validate the transaction.
	TransactionSignature []*felt.Felt `cbor:"5,keyasint" json:"signature"`
	// The transaction nonce.
	Nonce             *felt.Felt `cbor:"6,keyasint" json:"nonce"`
	Version           *felt.Felt `cbor:"7,keyasint" json:"version"`
	CompiledClassHash *felt.Felt `cbor:"8,keyasint" json:"compiled_class_hash"`

	// Class is the definition being declared. It travels with the transaction until the
	// block is sealed and is stored in the class table afterwards.
	Class *Class `cbor:"-" json:"contract_class,omitempty"`
}

func (d *DeclareTransaction) Hash() *felt.Felt        { return d.TransactionHash }
func (d *DeclareTransaction) Signature() []*felt.Felt { return d.TransactionSignature }
func (d *DeclareTransaction) Type() TransactionType   { return TxDeclare }
func (d *DeclareTransaction) Sender() *felt.Felt      { return d.SenderAddress }
func (d *DeclareTransaction) TxNonce() *felt.Felt     { return d.Nonce }
func (d *DeclareTransaction) FeeLimit() *felt.Felt    { return d.MaxFee }

type DeployAccountTransaction struct {
	TransactionHash *felt.Felt `cbor:"1,keyasint" json:"transaction_hash"`
	// A random number used to distinguish between different instances of the contract.
	ContractAddressSalt *felt.Felt `cbor:"2,keyasint" json:"contract_address_salt"`
	// The address of the contract.
	ContractAddress *felt.Felt `cbor:"3,keyasint" json:"contract_address"`
	// The hash of the class which defines the contract’s functionality.
	ClassHash *felt.Felt `cbor:"4,keyasint" json:"class_hash"`
	// The arguments passed to the constructor during deployment.
	ConstructorCallData []*felt.Felt `cbor:"5,keyasint" json:"constructor_calldata"`
	// The maximum fee that the sender is willing to pay for the transaction.
	MaxFee               *felt.Felt   `cbor:"6,keyasint" json:"max_fee"`
	TransactionSignature []*felt.Felt `cbor:"7,keyasint" json:"signature"`
	Nonce                *felt.Felt   `cbor:"8,keyasint" json:"nonce"`
	Version              *felt.Felt   `cbor:"9,keyasint" json:"version"`
}

func (d *DeployAccountTransaction) Hash() *felt.Felt        { return d.TransactionHash }
func (d *DeployAccountTransaction) Signature() []*felt.Felt { return d.TransactionSignature }
func (d *DeployAccountTransaction) Type() TransactionType   { return TxDeployAccount }
func (d *DeployAccountTransaction) Sender() *felt.Felt      { return d.ContractAddress }
func (d *DeployAccountTransaction) TxNonce() *felt.Felt     { return d.Nonce }
func (d *DeployAccountTransaction) FeeLimit() *felt.Felt    { return d.MaxFee }

var (
	invokeFelt        = new(felt.Felt).SetBytes([]byte("invoke"))
	declareFelt       = new(felt.Felt).SetBytes([]byte("declare"))
	deployAccountFelt = new(felt.Felt).SetBytes([]byte("deploy_account"))
	contractAddrFelt  = new(felt.Felt).SetBytes([]byte("STARKNET_CONTRACT_ADDRESS"))

	// contract addresses live below 2**251 - 256
	addressBound = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 251), big.NewInt(256))
)

var (
	ErrUnknownTransaction    = errors.New("unknown transaction")
	ErrTransactionHash       = errors.New("transaction hash mismatch")
	ErrInvalidTxVersion      = errors.New("invalid transaction version")
	ErrContractAddressDiffer = errors.New("contract address does not match deployment parameters")
)

func errInvalidTransactionVersion(t Transaction, version *felt.Felt) error {
	return fmt.Errorf("%w (type: %s): %v", ErrInvalidTxVersion, t.Type(), version.Text(10))
}

// TransactionHash computes the hash of a transaction on the given chain.
func TransactionHash(transaction Transaction, chainID *felt.Felt) (*felt.Felt, error) {
	switch t := transaction.(type) {
	case *InvokeTransaction:
		return invokeTransactionHash(t, chainID)
	case *DeclareTransaction:
		return declareTransactionHash(t, chainID)
	case *DeployAccountTransaction:
		return deployAccountTransactionHash(t, chainID)
	default:
		return nil, ErrUnknownTransaction
	}
}

func invokeTransactionHash(i *InvokeTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	if !i.Version.IsOne() {
		return nil, errInvalidTransactionVersion(i, i.Version)
	}
	return crypto.PedersenArray(
		invokeFelt,
		i.Version,
		i.SenderAddress,
		new(felt.Felt),
		crypto.PedersenArray(i.CallData...),
		i.MaxFee,
		chainID,
		i.Nonce,
	), nil
}

func declareTransactionHash(d *DeclareTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	if !d.Version.Equal(new(felt.Felt).SetUint64(2)) {
		return nil, errInvalidTransactionVersion(d, d.Version)
	}
	return crypto.PedersenArray(
		declareFelt,
		d.Version,
		d.SenderAddress,
		&felt.Zero,
		crypto.PedersenArray(d.ClassHash),
		d.MaxFee,
		chainID,
		d.Nonce,
		d.CompiledClassHash,
	), nil
}

func deployAccountTransactionHash(d *DeployAccountTransaction, chainID *felt.Felt) (*felt.Felt, error) {
	if !d.Version.IsOne() {
		return nil, errInvalidTransactionVersion(d, d.Version)
	}
	callData := []*felt.Felt{d.ClassHash, d.ContractAddressSalt}
	callData = append(callData, d.ConstructorCallData...)
	return crypto.PedersenArray(
		deployAccountFelt,
		d.Version,
		d.ContractAddress,
		&felt.Zero,
		crypto.PedersenArray(callData...),
		d.MaxFee,
		chainID,
		d.Nonce,
	), nil
}

// ContractAddress computes the address a contract is deployed at.
func ContractAddress(callerAddress, classHash, salt *felt.Felt, constructorCallData []*felt.Felt) *felt.Felt {
	addr := crypto.PedersenArray(
		contractAddrFelt,
		callerAddress,
		salt,
		classHash,
		crypto.PedersenArray(constructorCallData...),
	)
	reduced := new(big.Int).Mod(addr.BigInt(), addressBound)
	return new(felt.Felt).SetBigInt(reduced)
}

// VerifyTransaction checks a transaction's hash, and for account deployments its address,
// against what its fields commit to.
func VerifyTransaction(t Transaction, chainID *felt.Felt) error {
	if t.Hash() == nil {
		return fmt.Errorf("%w: missing hash", ErrTransactionHash)
	}
	if d, ok := t.(*DeployAccountTransaction); ok {
		want := ContractAddress(&felt.Zero, d.ClassHash, d.ContractAddressSalt, d.ConstructorCallData)
		if !want.Equal(d.ContractAddress) {
			return ErrContractAddressDiffer
		}
	}
	calculated, err := TransactionHash(t, chainID)
	if err != nil {
		return err
	}
	if !calculated.Equal(t.Hash()) {
		return fmt.Errorf("%w: computed %s, got %s", ErrTransactionHash, calculated, t.Hash())
	}
	return nil
}

// storedTransaction is the tagged envelope transactions are persisted in.
type storedTransaction struct {
	Invoke        *InvokeTransaction        `cbor:"1,keyasint,omitempty"`
	Declare       *DeclareTransaction       `cbor:"2,keyasint,omitempty"`
	DeployAccount *DeployAccountTransaction `cbor:"3,keyasint,omitempty"`
}

func MarshalTransaction(t Transaction) ([]byte, error) {
	var stored storedTransaction
	switch t := t.(type) {
	case *InvokeTransaction:
		stored.Invoke = t
	case *DeclareTransaction:
		stored.Declare = t
	case *DeployAccountTransaction:
		stored.DeployAccount = t
	default:
		return nil, ErrUnknownTransaction
	}
	return encoder.Marshal(stored)
}

func UnmarshalTransaction(data []byte) (Transaction, error) {
	var stored storedTransaction
	if err := encoder.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	switch {
	case stored.Invoke != nil:
		return stored.Invoke, nil
	case stored.Declare != nil:
		return stored.Declare, nil
	case stored.DeployAccount != nil:
		return stored.DeployAccount, nil
	default:
		return nil, ErrUnknownTransaction
	}
}

const commitmentTrieHeight = 64

// transactionCommitment is the root of a height 64 binary Merkle Patricia tree of the
// transaction hashes and signatures in a block.
func transactionCommitment(transactions []Transaction) (*felt.Felt, error) {
	var commitment *felt.Felt
	err := trie.RunOnTempTrie(commitmentTrieHeight, func(tr *trie.Trie) error {
		for i, transaction := range transactions {
			signatureHash := crypto.PedersenArray(transaction.Signature()...)
			if err := tr.Put(new(felt.Felt).SetUint64(uint64(i)), crypto.Pedersen(transaction.Hash(), signatureHash)); err != nil {
				return err
			}
		}
		commitment = tr.Hash()
		return nil
	})
	return commitment, err
}
