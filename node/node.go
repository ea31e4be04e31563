package node

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/clients/feeder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/sequencer"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/sync"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/validator"
	"github.com/NethermindEth/katana/vm"
	"github.com/sourcegraph/conc"
)

const (
	DefaultChainID     = "KATANA"
	trieCacheBytes     = 64 * utils.Megabyte
	dbCacheSizeMB      = 256
	maxExecutorQueue   = 1024
	devMethodPrefix    = "dev_"
	userAgentTemplate  = "Katana/%s"
	shortStringMaxSize = felt.Bytes - 1
)

// ErrInvalidConfig is returned by New when the configuration cannot start a node.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top-level katana configuration.
type Config struct {
	LogLevel     string `mapstructure:"log-level"`
	Colour       bool   `mapstructure:"colour"`
	DatabasePath string `mapstructure:"db-path"`

	HTTP          bool   `mapstructure:"http"`
	HTTPHost      string `mapstructure:"http-host"`
	HTTPPort      uint16 `mapstructure:"http-port"`
	Websocket     bool   `mapstructure:"ws"`
	WebsocketPort uint16 `mapstructure:"ws-port"`

	ChainID     string `mapstructure:"chain-id"`
	GenesisPath string `mapstructure:"genesis"`

	Dev                    bool   `mapstructure:"dev"`
	DevNoFee               bool   `mapstructure:"dev.no-fee"`
	DevNoAccountValidation bool   `mapstructure:"dev.no-account-validation"`
	DevAccounts            uint16 `mapstructure:"dev.accounts"`
	DevSeed                string `mapstructure:"dev.seed"`

	BlockTime        time.Duration `mapstructure:"block-time"`
	NoMining         bool          `mapstructure:"no-mining"`
	MaxBlockSteps    uint64        `mapstructure:"max-block-steps"`
	ValidateMaxSteps uint64        `mapstructure:"validate-max-steps"`
	InvokeMaxSteps   uint64        `mapstructure:"invoke-max-steps"`

	PoolMaxSize           int           `mapstructure:"pool-max-size"`
	PoolValidationTimeout time.Duration `mapstructure:"pool-validation-timeout"`

	ForkURL          string        `mapstructure:"fork.url"`
	SyncPollInterval time.Duration `mapstructure:"sync.poll-interval"`
	SyncChunkSize    uint64        `mapstructure:"sync.chunk-size"`
	SyncRetryBudget  uint64        `mapstructure:"sync.retry-budget"`

	Metrics     bool   `mapstructure:"metrics"`
	MetricsHost string `mapstructure:"metrics-host"`
	MetricsPort uint16 `mapstructure:"metrics-port"`

	RPCMaxProofKeys    uint `mapstructure:"rpc.max-proof-keys"`
	RPCCallConcurrency uint `mapstructure:"rpc.call-concurrency"`
}

// Producing reports whether the node seals its own blocks rather than trailing a
// remote feeder gateway.
func (c *Config) Producing() bool {
	return c.ForkURL == ""
}

type Node struct {
	cfg        *Config
	db         db.DB
	blockchain *blockchain.Blockchain
	spec       *core.ChainSpec
	accounts   []genesis.Account

	services []service.Service
	httpAddr net.Addr
	wsAddr   net.Addr
	log      utils.Logger

	version string
}

// New sets the config and logger to the Katana node. Configuration problems are
// reported wrapped in ErrInvalidConfig; a database that belongs to another chain or
// schema is reported as is.
func New(cfg *Config, version string) (*Node, error) { //nolint:gocyclo,funlen
	logLevel := utils.NewLogLevel(utils.INFO)
	if cfg.LogLevel != "" {
		if err := logLevel.Set(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	log, err := utils.NewZapLogger(logLevel, cfg.Colour)
	if err != nil {
		return nil, err
	}

	spec, accounts, err := ChainSpec(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	database, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}
	if cfg.Metrics {
		database = database.WithListener(makeDBMetrics())
		makePebbleMetrics(database)
		makeKatanaMetrics(version)
	}

	n := &Node{
		cfg:      cfg,
		db:       database,
		spec:     spec,
		accounts: accounts,
		log:      log,
		version:  version,
	}
	if err = n.assemble(); err != nil {
		return nil, utils.RunAndWrapOnError(database.Close, err)
	}
	return n, nil
}

// assemble builds the chain and every service on top of it.
func (n *Node) assemble() error { //nolint:funlen
	cfg, log := n.cfg, n.log

	chain := blockchain.New(n.db, n.spec.ChainID, trie.NewNodeCache(trieCacheBytes), log)
	if cfg.Metrics {
		chain.WithListener(makeBlockchainMetrics(chain))
	}
	if err := chain.Init(n.spec); err != nil {
		return err
	}
	n.blockchain = chain

	executor := vm.New(log)
	callConcurrency := cfg.RPCCallConcurrency
	if callConcurrency == 0 {
		callConcurrency = rpc.DefaultCallConcurrency
	}
	rpcExecutor := NewThrottledExecutor(executor, callConcurrency, maxExecutorQueue)
	if cfg.Metrics {
		makeExecutorThrottlerMetrics(rpcExecutor)
	}

	validateMaxSteps := orDefault(cfg.ValidateMaxSteps, builder.DefaultValidateMaxSteps)
	invokeMaxSteps := orDefault(cfg.InvokeMaxSteps, builder.DefaultInvokeMaxSteps)
	rpcHandler := rpc.New(chain, n.spec, rpcExecutor, n.version, log).
		WithAccounts(n.accounts).
		WithMaxProofKeys(orDefault(cfg.RPCMaxProofKeys, rpc.DefaultMaxProofKeys)).
		WithCallMaxSteps(validateMaxSteps, invokeMaxSteps)

	if cfg.Producing() {
		poolCfg := mempool.DefaultConfig()
		poolCfg.MaxSize = orDefault(cfg.PoolMaxSize, mempool.DefaultMaxSize)
		poolCfg.ValidationTimeout = orDefault(cfg.PoolValidationTimeout, mempool.DefaultValidationTimeout)
		poolCfg.ValidateMaxSteps = validateMaxSteps
		pool := mempool.New(chain, n.spec, executor, mempool.FCFS{}, poolCfg, log)
		if cfg.Metrics {
			pool.WithListener(makePoolMetrics())
		}

		builderCfg := builder.Config{
			ValidateMaxSteps: validateMaxSteps,
			InvokeMaxSteps:   invokeMaxSteps,
			MaxBlockSteps:    orDefault(cfg.MaxBlockSteps, builder.DefaultMaxBlockSteps),
		}
		blockBuilder := builder.New(chain, n.spec, executor, builderCfg, log)
		if cfg.Metrics {
			blockBuilder.WithListener(makeBuilderMetrics())
		}

		seqCfg := sequencer.DefaultConfig()
		seqCfg.Mode = sequencer.ModeFor(cfg.BlockTime, cfg.NoMining)
		seqCfg.BlockTime = cfg.BlockTime
		seq := sequencer.New(blockBuilder, pool, seqCfg, log)

		n.services = append(n.services, seq)
		rpcHandler.WithPool(pool).WithProducer(seq)
	} else {
		client := feeder.NewClient(cfg.ForkURL).
			WithUserAgent(fmt.Sprintf(userAgentTemplate, n.version)).
			WithLogger(log)
		if cfg.Metrics {
			client.WithListener(makeFeederMetrics())
		}
		source := sync.NewFeederDataSource(client)

		syncCfg := sync.DefaultConfig()
		syncCfg.PollInterval = orDefault(cfg.SyncPollInterval, sync.DefaultPollInterval)
		syncCfg.ChunkSize = orDefault(cfg.SyncChunkSize, sync.DefaultChunkSize)
		syncCfg.RetryBudget = orDefault(cfg.SyncRetryBudget, sync.DefaultRetryBudget)
		stages := sync.Stages(n.db, chain, source, n.spec, executor, validateMaxSteps, invokeMaxSteps)
		pipeline := sync.New(n.db, source, stages, syncCfg, log)
		if cfg.Metrics {
			pipeline.WithListener(makeSyncMetrics())
		}

		n.services = append(n.services, pipeline)
		rpcHandler.WithSyncReader(pipeline)
	}
	n.services = append(n.services, rpcHandler)

	validator.RegisterStringTypes(rpc.TransactionType(0))
	// to improve RPC throughput we double GOMAXPROCS
	maxGoroutines := 2 * runtime.GOMAXPROCS(0)
	jsonrpcServer := jsonrpc.NewServer(maxGoroutines, log).WithValidator(validator.Validator())
	if cfg.Metrics {
		jsonrpcServer.WithListener(makeRPCMetrics())
	}
	if err := jsonrpcServer.RegisterMethods(n.methods(rpcHandler)...); err != nil {
		return err
	}

	if cfg.HTTP {
		listener, err := net.Listen("tcp", net.JoinHostPort(cfg.HTTPHost, strconv.FormatUint(uint64(cfg.HTTPPort), 10)))
		if err != nil {
			return fmt.Errorf("listen on http port %d: %w", cfg.HTTPPort, err)
		}
		n.httpAddr = listener.Addr()
		n.services = append(n.services, makeRPCOverHTTP(listener, jsonrpcServer, rpcHandler.FeederGateway(), cfg.Metrics, log))
	}
	if cfg.Websocket {
		listener, err := net.Listen("tcp", net.JoinHostPort(cfg.HTTPHost, strconv.FormatUint(uint64(cfg.WebsocketPort), 10)))
		if err != nil {
			return fmt.Errorf("listen on websocket port %d: %w", cfg.WebsocketPort, err)
		}
		n.wsAddr = listener.Addr()
		n.services = append(n.services, makeRPCOverWebsocket(listener, jsonrpcServer, cfg.Metrics, log))
	}
	if cfg.Metrics {
		listener, err := net.Listen("tcp", net.JoinHostPort(cfg.MetricsHost, strconv.FormatUint(uint64(cfg.MetricsPort), 10)))
		if err != nil {
			return fmt.Errorf("listen on metrics port %d: %w", cfg.MetricsPort, err)
		}
		n.services = append(n.services, makeMetrics(listener))
	}
	return nil
}

// methods drops the dev namespace unless dev mode is on.
func (n *Node) methods(h *rpc.Handler) []jsonrpc.Method {
	methods := h.Methods()
	if n.cfg.Dev {
		return methods
	}
	filtered := methods[:0]
	for _, method := range methods {
		if !strings.HasPrefix(method.Name, devMethodPrefix) {
			filtered = append(filtered, method)
		}
	}
	return filtered
}

func openDB(cfg *Config) (db.DB, error) {
	if cfg.DatabasePath == "" {
		return pebble.NewMem()
	}
	dbLog, err := utils.NewZapLogger(utils.NewLogLevel(utils.ERROR), cfg.Colour)
	if err != nil {
		return nil, fmt.Errorf("create DB logger: %w", err)
	}
	return pebble.New(cfg.DatabasePath, pebble.WithCacheSize(dbCacheSizeMB), pebble.WithLogger(dbLog))
}

// ChainSpec builds the chain the configuration describes and the dev accounts
// allocated in its genesis.
func ChainSpec(cfg *Config) (*core.ChainSpec, []genesis.Account, error) {
	if !cfg.Dev && (cfg.DevNoFee || cfg.DevNoAccountValidation) {
		return nil, nil, errors.New("--dev.no-fee and --dev.no-account-validation require --dev")
	}
	if cfg.BlockTime > 0 && cfg.NoMining {
		return nil, nil, errors.New("--block-time and --no-mining cannot be combined")
	}
	if cfg.PoolMaxSize < 0 {
		return nil, nil, errors.New("--pool-max-size cannot be negative")
	}

	chainID, err := ParseChainID(cfg.ChainID)
	if err != nil {
		return nil, nil, err
	}

	genesisConfig := genesis.Default()
	if cfg.GenesisPath != "" {
		if genesisConfig, err = genesis.Read(cfg.GenesisPath); err != nil {
			return nil, nil, fmt.Errorf("read genesis: %w", err)
		}
	}

	seed := cfg.DevSeed
	if seed == "" {
		seed = genesis.DefaultDevAccountsSeed
	}
	devAccounts, err := genesis.DevAccounts(seed, int(cfg.DevAccounts), genesis.DefaultPrefundedBalance)
	if err != nil {
		return nil, nil, fmt.Errorf("derive dev accounts: %w", err)
	}

	spec, err := genesisConfig.ChainSpec(chainID, devAccounts)
	if err != nil {
		return nil, nil, fmt.Errorf("build chain spec: %w", err)
	}
	spec.FeeDisabled = cfg.DevNoFee
	spec.AccountValidationDisabled = cfg.DevNoAccountValidation

	fileAccounts, err := genesisConfig.PredeployedAccounts()
	if err != nil {
		return nil, nil, err
	}
	return spec, append(devAccounts, fileAccounts...), nil
}

// ParseChainID accepts a hex felt or a short string of at most 31 ASCII characters.
func ParseChainID(id string) (*felt.Felt, error) {
	if id == "" {
		id = DefaultChainID
	}
	if strings.HasPrefix(id, "0x") {
		chainID, err := new(felt.Felt).SetString(id)
		if err != nil {
			return nil, fmt.Errorf("parse chain id %q: %w", id, err)
		}
		return chainID, nil
	}
	if len(id) > shortStringMaxSize {
		return nil, fmt.Errorf("chain id %q is longer than %d characters", id, shortStringMaxSize)
	}
	for _, r := range id {
		if r > math.MaxInt8 {
			return nil, fmt.Errorf("chain id %q is not ASCII", id)
		}
	}
	return new(felt.Felt).SetBytes([]byte(id)), nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Run starts the services of the node and blocks until ctx is cancelled or a service
// fails. A pipeline that exhausted its retry budget only stops itself. Run waits for all
// services to return and closes the database before it returns the first service error.
func (n *Node) Run(ctx context.Context) error {
	defer func() {
		if closeErr := n.db.Close(); closeErr != nil {
			n.log.Errorw("Error while closing the DB", "err", closeErr)
		}
	}()

	n.log.Infow("Starting Katana", "version", n.version, "chainID", n.spec.ChainID,
		"producing", n.cfg.Producing(), "dev", n.cfg.Dev)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     conc.WaitGroup
		errMu  stdsync.Mutex
		runErr error
	)
	for _, s := range n.services {
		wg.Go(func() {
			err := s.Run(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, sync.ErrStageBudgetExhausted) {
				// The chain stops advancing; what is already synced stays readable.
				n.log.Errorw("Sync pipeline stopped, the read API keeps serving", "err", err)
				return
			}
			n.log.Errorw("Service error", "name", reflect.TypeOf(s), "err", err)
			errMu.Lock()
			if runErr == nil {
				runErr = err
			}
			errMu.Unlock()
			cancel()
		})
	}

	<-ctx.Done()
	n.log.Infow("Shutting down Katana...")
	wg.Wait()
	return runErr
}

func (n *Node) Config() Config {
	return *n.cfg
}

// Accounts returns the accounts allocated at genesis, dev accounts first.
func (n *Node) Accounts() []genesis.Account {
	return n.accounts
}

func (n *Node) ChainSpec() *core.ChainSpec {
	return n.spec
}

// HTTPAddr is the address the JSON-RPC HTTP server listens on, nil when it is disabled.
func (n *Node) HTTPAddr() net.Addr {
	return n.httpAddr
}

// WebsocketAddr is the address the JSON-RPC websocket server listens on, nil when it
// is disabled.
func (n *Node) WebsocketAddr() net.Addr {
	return n.wsAddr
}
