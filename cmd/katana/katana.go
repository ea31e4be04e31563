package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/node"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/sync"
	"github.com/NethermindEth/katana/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var Version string

const greeting = `
  _  __     _
 | |/ /__ _| |_ __ _ _ __   __ _
 | ' // _' | __/ _' | '_ \ / _' |
 | . \ (_| | || (_| | | | | (_| |
 |_|\_\__,_|\__\__,_|_| |_|\__,_|

Katana is a local Starknet sequencer written in Go. Version: %s.

`

const (
	configF                 = "config"
	logLevelF               = "log-level"
	colourF                 = "colour"
	dbPathF                 = "db-path"
	httpF                   = "http"
	httpHostF               = "http-host"
	httpPortF               = "http-port"
	wsF                     = "ws"
	wsPortF                 = "ws-port"
	chainIDF                = "chain-id"
	genesisF                = "genesis"
	devF                    = "dev"
	devNoFeeF               = "dev.no-fee"
	devNoAccountValidationF = "dev.no-account-validation"
	devAccountsF            = "dev.accounts"
	devSeedF                = "dev.seed"
	blockTimeF              = "block-time"
	noMiningF               = "no-mining"
	maxBlockStepsF          = "max-block-steps"
	validateMaxStepsF       = "validate-max-steps"
	invokeMaxStepsF         = "invoke-max-steps"
	poolMaxSizeF            = "pool-max-size"
	poolValidationTimeoutF  = "pool-validation-timeout"
	forkURLF                = "fork.url"
	syncPollIntervalF       = "sync.poll-interval"
	syncChunkSizeF          = "sync.chunk-size"
	syncRetryBudgetF        = "sync.retry-budget"
	metricsF                = "metrics"
	metricsHostF            = "metrics-host"
	metricsPortF            = "metrics-port"
	rpcMaxProofKeysF        = "rpc.max-proof-keys"
	rpcCallConcurrencyF     = "rpc.call-concurrency"

	defaultConfig      = ""
	defaultColour      = true
	defaultDBPath      = ""
	defaultHTTP        = true
	defaultHost        = "127.0.0.1"
	defaultHTTPPort    = uint16(5050)
	defaultWS          = false
	defaultWSPort      = uint16(5051)
	defaultGenesis     = ""
	defaultForkURL     = ""
	defaultMetrics     = false
	defaultMetricsPort = uint16(9100)

	envPrefix = "KATANA"

	configFlagUsage   = "The YAML configuration file. Keys are the flag names."
	logLevelFlagUsage = "Options: trace, debug, info, warn, error."
	colourUsage       = "Use `--colour=false` command to disable colourized outputs (ANSI Escape Codes)."
	dbPathUsage       = "Location of the database files. The chain is kept in memory when empty."
	httpUsage         = "Enables the JSON-RPC and feeder gateway server on the HTTP interface."
	httpHostUsage     = "The interface on which the HTTP and websocket servers will listen for requests."
	httpPortUsage     = "The port on which the HTTP server will listen for requests."
	wsUsage           = "Enables the JSON-RPC server on a websocket interface."
	wsPortUsage       = "The port on which the websocket server will listen for requests."
	chainIDUsage      = "The chain id, either a hex felt or a short string of at most 31 ASCII characters."
	genesisUsage      = "Path to a genesis JSON file. The built-in genesis is used when empty."
	devUsage          = "Enables the development mode: the dev_ RPC namespace and the dev.* options."
	devNoFeeUsage     = "Disables fee charging. Requires --dev."
	devNoValUsage     = "Skips account validation of transactions. Requires --dev."
	devAccountsUsage  = "Number of prefunded development accounts allocated at genesis."
	devSeedUsage      = "Seed from which the development accounts are derived."
	blockTimeUsage    = "Seals a block every interval. Zero seals a block as soon as transactions arrive."
	noMiningUsage     = "Only seals blocks on request through dev_generateBlock."
	maxBlockSteps     = "Step budget of a block."
	validateMaxSteps  = "Step budget of the validation of a transaction."
	invokeMaxSteps    = "Step budget of the execution of a transaction."
	poolMaxSizeUsage  = "Maximum number of transactions held in the pool."
	poolValTimeout    = "Maximum time spent validating a transaction on admission."
	forkURLUsage      = "Feeder gateway URL of a chain to trail. Disables block production."
	syncPollUsage     = "How often the tip of the trailed chain is polled."
	syncChunkUsage    = "Largest number of blocks a sync stage processes at once."
	syncRetryUsage    = "How many times a failing sync window is retried before the pipeline stops."
	metricsUsage      = "Enables the Prometheus metrics endpoint."
	metricsHostUsage  = "The interface on which the Prometheus endpoint will listen for requests."
	metricsPortUsage  = "The port on which the Prometheus endpoint will listen for requests."
	maxProofKeysUsage = "Maximum number of keys a storage proof request may ask for."
	callConcUsage     = "Maximum number of calls and fee estimations executed concurrently."
)

var errInvalidFlags = errors.New("invalid flags")

// Node is the part of a node the command drives.
type Node interface {
	Run(ctx context.Context) error
	Config() node.Config
	Accounts() []genesis.Account
}

type NewNodeFn func(cfg *node.Config, version string) (Node, error)

func newNode(cfg *node.Config, version string) (Node, error) {
	n, err := node.New(cfg, version)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func NewCmd(newNodeFn NewNodeFn) *cobra.Command {
	katanaCmd := &cobra.Command{
		Use:           "katana [flags]",
		Short:         "Local Starknet sequencer.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	katanaCmd.CompletionOptions.DisableDefaultCmd = true
	katanaCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errInvalidFlags, err)
	})

	addNodeFlags(katanaCmd.PersistentFlags())

	katanaCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if _, err = fmt.Fprintf(cmd.OutOrStdout(), greeting, Version); err != nil {
			return err
		}

		n, err := newNodeFn(cfg, Version)
		if err != nil {
			return err
		}
		if cfg.Producing() {
			printAccounts(cmd.OutOrStdout(), n.Accounts())
		}
		return n.Run(cmd.Context())
	}

	katanaCmd.AddCommand(InitCmd(), DBCmd(), ConfigCmd(), CompletionsCmd())
	return katanaCmd
}

func addNodeFlags(flags *pflag.FlagSet) {
	defaultLogLevel := utils.NewLogLevel(utils.INFO)

	flags.String(configF, defaultConfig, configFlagUsage)
	flags.Var(defaultLogLevel, logLevelF, logLevelFlagUsage)
	flags.Bool(colourF, defaultColour, colourUsage)
	flags.String(dbPathF, defaultDBPath, dbPathUsage)
	flags.Bool(httpF, defaultHTTP, httpUsage)
	flags.String(httpHostF, defaultHost, httpHostUsage)
	flags.Uint16(httpPortF, defaultHTTPPort, httpPortUsage)
	flags.Bool(wsF, defaultWS, wsUsage)
	flags.Uint16(wsPortF, defaultWSPort, wsPortUsage)
	flags.String(chainIDF, node.DefaultChainID, chainIDUsage)
	flags.String(genesisF, defaultGenesis, genesisUsage)
	flags.Bool(devF, false, devUsage)
	flags.Bool(devNoFeeF, false, devNoFeeUsage)
	flags.Bool(devNoAccountValidationF, false, devNoValUsage)
	flags.Uint16(devAccountsF, uint16(genesis.DefaultDevAccountsAmount), devAccountsUsage)
	flags.String(devSeedF, genesis.DefaultDevAccountsSeed, devSeedUsage)
	flags.Duration(blockTimeF, 0, blockTimeUsage)
	flags.Bool(noMiningF, false, noMiningUsage)
	flags.Uint64(maxBlockStepsF, builder.DefaultMaxBlockSteps, maxBlockSteps)
	flags.Uint64(validateMaxStepsF, builder.DefaultValidateMaxSteps, validateMaxSteps)
	flags.Uint64(invokeMaxStepsF, builder.DefaultInvokeMaxSteps, invokeMaxSteps)
	flags.Int(poolMaxSizeF, mempool.DefaultMaxSize, poolMaxSizeUsage)
	flags.Duration(poolValidationTimeoutF, mempool.DefaultValidationTimeout, poolValTimeout)
	flags.String(forkURLF, defaultForkURL, forkURLUsage)
	flags.Duration(syncPollIntervalF, sync.DefaultPollInterval, syncPollUsage)
	flags.Uint64(syncChunkSizeF, sync.DefaultChunkSize, syncChunkUsage)
	flags.Uint64(syncRetryBudgetF, sync.DefaultRetryBudget, syncRetryUsage)
	flags.Bool(metricsF, defaultMetrics, metricsUsage)
	flags.String(metricsHostF, defaultHost, metricsHostUsage)
	flags.Uint16(metricsPortF, defaultMetricsPort, metricsPortUsage)
	flags.Uint(rpcMaxProofKeysF, rpc.DefaultMaxProofKeys, maxProofKeysUsage)
	flags.Uint(rpcCallConcurrencyF, rpc.DefaultCallConcurrency, callConcUsage)
}

// loadConfig resolves the node configuration of cmd. A flag set on the command line
// wins over the environment, which wins over the config file, which wins over the
// flag default.
func loadConfig(cmd *cobra.Command) (*node.Config, error) {
	// Flag names contain dots, so viper must not treat them as nesting.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	cfgFile, err := cmd.Flags().GetString(configF)
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(cfgFile)
		if err = v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidFlags, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err = v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg := new(node.Config)
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err = v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidFlags, err)
	}
	return cfg, nil
}

func printAccounts(w io.Writer, accounts []genesis.Account) {
	if len(accounts) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Address", "Private key", "Balance"})
	for i, account := range accounts {
		privateKey := "-"
		if account.PrivateKey != nil {
			privateKey = account.PrivateKey.String()
		}
		table.Append([]string{fmt.Sprint(i), account.Address.String(), privateKey, account.Balance.Text(10)})
	}
	table.Render()
}
