package rpc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	stdsync "sync"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/sourcegraph/conc"
)

const (
	APIVersion = "0.7.1"

	DefaultMaxProofKeys    = 100
	DefaultCallConcurrency = 16

	maxEventChunkSize  = 10240
	maxEventFilterKeys = 1024
	maxBlocksBack      = 1024
)

// Pool is the part of the transaction pool served by the read API.
//
//go:generate mockgen -destination=../mocks/mock_pool.go -package=mocks github.com/NethermindEth/katana/rpc Pool
type Pool interface {
	Add(ctx context.Context, txn core.Transaction) (*felt.Felt, error)
	Get(hash *felt.Felt) (*mempool.PendingTx, bool)
	Status(hash *felt.Felt) mempool.Status
	Rejection(hash *felt.Felt) (*mempool.AddError, bool)
	SubscribeHashes() *feed.Subscription[*felt.Felt]
}

// Producer is the block producer the dev namespace drives.
//
//go:generate mockgen -destination=../mocks/mock_producer.go -package=mocks github.com/NethermindEth/katana/rpc Producer
type Producer interface {
	ForceMine(ctx context.Context) (*core.Header, error)
	SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error
	IncreaseNextBlockTimestamp(ctx context.Context, seconds uint64) error
	SetStorageAt(ctx context.Context, addr, key, value *felt.Felt) error
	PendingBlock() *core.Block
}

// SyncReader reports the progress of a trailing node.
type SyncReader interface {
	Tip() (uint64, bool)
}

type Handler struct {
	bcReader   blockchain.Reader
	spec       *core.ChainSpec
	executor   vm.Executor
	pool       Pool
	producer   Producer
	syncReader SyncReader
	accounts   []genesis.Account
	log        utils.SimpleLogger
	version    string

	idgen         func() string
	subscriptions stdsync.Map // map[string]*subscription

	filterLimit      uint
	maxProofKeys     uint
	validateMaxSteps uint64
	callMaxSteps     uint64
}

type subscription struct {
	cancel func()
	wg     conc.WaitGroup
	conn   jsonrpc.Conn
}

// New serves the read API of chain. executor should be throttled by the caller when the
// node exposes the API publicly.
func New(bcReader blockchain.Reader, spec *core.ChainSpec, executor vm.Executor, version string,
	log utils.SimpleLogger,
) *Handler {
	return &Handler{
		bcReader: bcReader,
		spec:     spec,
		executor: executor,
		log:      log,
		version:  version,
		idgen: func() string {
			var n uint64
			for err := binary.Read(rand.Reader, binary.LittleEndian, &n); err != nil; {
			}
			return fmt.Sprintf("%d", n)
		},
		filterLimit:      math.MaxUint,
		maxProofKeys:     DefaultMaxProofKeys,
		validateMaxSteps: builder.DefaultValidateMaxSteps,
		callMaxSteps:     builder.DefaultInvokeMaxSteps,
	}
}

// WithPool enables add_transaction and the pool backed statuses.
func (h *Handler) WithPool(pool Pool) *Handler {
	h.pool = pool
	return h
}

// WithProducer enables the dev namespace and the pending block.
func (h *Handler) WithProducer(producer Producer) *Handler {
	h.producer = producer
	return h
}

func (h *Handler) WithSyncReader(syncReader SyncReader) *Handler {
	h.syncReader = syncReader
	return h
}

// WithAccounts sets the accounts listed by dev_predeployedAccounts.
func (h *Handler) WithAccounts(accounts []genesis.Account) *Handler {
	h.accounts = accounts
	return h
}

// WithFilterLimit sets the maximum number of blocks to scan in a single call for event filtering.
func (h *Handler) WithFilterLimit(limit uint) *Handler {
	h.filterLimit = limit
	return h
}

// WithMaxProofKeys bounds the number of keys of a single storage proof request.
func (h *Handler) WithMaxProofKeys(limit uint) *Handler {
	h.maxProofKeys = limit
	return h
}

func (h *Handler) WithCallMaxSteps(validateMaxSteps, invokeMaxSteps uint64) *Handler {
	h.validateMaxSteps = validateMaxSteps
	h.callMaxSteps = invokeMaxSteps
	return h
}

func (h *Handler) WithIDGen(idgen func() string) *Handler {
	h.idgen = idgen
	return h
}

// Run waits for ctx and then for the subscriptions still sending.
func (h *Handler) Run(ctx context.Context) error {
	<-ctx.Done()
	h.subscriptions.Range(func(key, value any) bool {
		sub := value.(*subscription)
		sub.cancel()
		sub.wg.Wait()
		return true
	})
	return nil
}

func (h *Handler) SpecVersion() (string, *jsonrpc.Error) {
	return APIVersion, nil
}

// Version returns the version of the node.
func (h *Handler) Version() (string, *jsonrpc.Error) {
	return h.version, nil
}

// ChainID returns the chain id the node serves.
func (h *Handler) ChainID() (*felt.Felt, *jsonrpc.Error) {
	return h.bcReader.ChainID(), nil
}

// Syncing reports how far a trailing node is behind its source. Nodes that produce their
// own blocks are never syncing.
func (h *Handler) Syncing() (any, *jsonrpc.Error) {
	if h.syncReader == nil {
		return false, nil
	}
	tip, ok := h.syncReader.Tip()
	if !ok {
		return false, nil
	}
	head, err := h.bcReader.HeadHeader()
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	if head.Number >= tip {
		return false, nil
	}
	return &SyncStatus{
		CurrentBlockNum:  head.Number,
		CurrentBlockHash: head.Hash,
		HighestBlockNum:  tip,
	}, nil
}

type SyncStatus struct {
	CurrentBlockHash *felt.Felt `json:"current_block_hash"`
	CurrentBlockNum  uint64     `json:"current_block_num"`
	HighestBlockNum  uint64     `json:"highest_block_num"`
}

//nolint:funlen
func (h *Handler) Methods() []jsonrpc.Method {
	methods := []jsonrpc.Method{
		{
			Name:    "starknet_chainId",
			Handler: h.ChainID,
		},
		{
			Name:    "starknet_specVersion",
			Handler: h.SpecVersion,
		},
		{
			Name:    "starknet_syncing",
			Handler: h.Syncing,
		},
		{
			Name:    "starknet_blockNumber",
			Handler: h.BlockNumber,
		},
		{
			Name:    "starknet_blockHashAndNumber",
			Handler: h.BlockHashAndNumber,
		},
		{
			Name:    "starknet_getBlockWithTxHashes",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithTxHashes,
		},
		{
			Name:    "starknet_getBlockWithTxs",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithTxs,
		},
		{
			Name:    "starknet_getBlockWithReceipts",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithReceipts,
		},
		{
			Name:    "starknet_getBlockTransactionCount",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockTransactionCount,
		},
		{
			Name:    "starknet_getTransactionByHash",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionByHash,
		},
		{
			Name:    "starknet_getTransactionByBlockIdAndIndex",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "index"}},
			Handler: h.TransactionByBlockIDAndIndex,
		},
		{
			Name:    "starknet_getTransactionReceipt",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionReceiptByHash,
		},
		{
			Name:    "starknet_getTransactionStatus",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionStatus,
		},
		{
			Name:    "starknet_getStateUpdate",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.StateUpdate,
		},
		{
			Name:    "starknet_getStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "block_id"}},
			Handler: h.StorageAt,
		},
		{
			Name:    "starknet_getNonce",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.Nonce,
		},
		{
			Name:    "starknet_getClassHashAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.ClassHashAt,
		},
		{
			Name:    "starknet_getClass",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "class_hash"}},
			Handler: h.Class,
		},
		{
			Name:    "starknet_getClassAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.ClassAt,
		},
		{
			Name: "starknet_getStorageProof",
			Params: []jsonrpc.Parameter{
				{Name: "block_id"},
				{Name: "class_hashes", Optional: true},
				{Name: "contract_addresses", Optional: true},
				{Name: "contracts_storage_keys", Optional: true},
			},
			Handler: h.StorageProof,
		},
		{
			Name:    "starknet_call",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "block_id"}},
			Handler: h.Call,
		},
		{
			Name:    "starknet_estimateFee",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "block_id"}},
			Handler: h.EstimateFee,
		},
		{
			Name:    "starknet_getEvents",
			Params:  []jsonrpc.Parameter{{Name: "filter"}},
			Handler: h.Events,
		},
		{
			Name:    "starknet_traceTransaction",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TraceTransaction,
		},
		{
			Name:    "starknet_addInvokeTransaction",
			Params:  []jsonrpc.Parameter{{Name: "invoke_transaction"}},
			Handler: h.AddTransaction,
		},
		{
			Name:    "starknet_addDeclareTransaction",
			Params:  []jsonrpc.Parameter{{Name: "declare_transaction"}},
			Handler: h.AddTransaction,
		},
		{
			Name:    "starknet_addDeployAccountTransaction",
			Params:  []jsonrpc.Parameter{{Name: "deploy_account_transaction"}},
			Handler: h.AddTransaction,
		},
		{
			Name:    "starknet_subscribeNewHeads",
			Params:  []jsonrpc.Parameter{{Name: "block_id", Optional: true}},
			Handler: h.SubscribeNewHeads,
		},
		{
			Name:    "starknet_subscribeTransactionStatus",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.SubscribeTransactionStatus,
		},
		{
			Name:    "starknet_unsubscribe",
			Params:  []jsonrpc.Parameter{{Name: "subscription_id"}},
			Handler: h.Unsubscribe,
		},
		{
			Name:    "katana_version",
			Handler: h.Version,
		},
	}
	if h.producer != nil {
		methods = append(methods, h.devMethods()...)
	}
	return methods
}
