package main_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	katana "github.com/NethermindEth/katana/cmd/katana"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyNode struct {
	cfg      *node.Config
	accounts []genesis.Account
	runs     int
	runErr   error
}

func (s *spyNode) Run(context.Context) error {
	s.runs++
	return s.runErr
}

func (s *spyNode) Config() node.Config {
	return *s.cfg
}

func (s *spyNode) Accounts() []genesis.Account {
	return s.accounts
}

func defaultConfig() *node.Config {
	return &node.Config{
		LogLevel:              "info",
		Colour:                true,
		HTTP:                  true,
		HTTPHost:              "127.0.0.1",
		HTTPPort:              5050,
		WebsocketPort:         5051,
		ChainID:               node.DefaultChainID,
		DevAccounts:           10,
		DevSeed:               "0",
		MaxBlockSteps:         50_000_000,
		ValidateMaxSteps:      1_000_000,
		InvokeMaxSteps:        10_000_000,
		PoolMaxSize:           10_000,
		PoolValidationTimeout: 5 * time.Second,
		SyncPollInterval:      2 * time.Second,
		SyncChunkSize:         100,
		SyncRetryBudget:       10,
		MetricsHost:           "127.0.0.1",
		MetricsPort:           9100,
		RPCMaxProofKeys:       100,
		RPCCallConcurrency:    16,
	}
}

// runCmd executes the root command and returns the config the node was built with.
func runCmd(t *testing.T, args ...string) (*spyNode, string, error) {
	t.Helper()
	spy := new(spyNode)
	cmd := katana.NewCmd(func(cfg *node.Config, _ string) (katana.Node, error) {
		spy.cfg = cfg
		return spy, nil
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return spy, out.String(), err
}

func tempCfgFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katana.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestNewCmd(t *testing.T) {
	t.Run("greeting and run", func(t *testing.T) {
		spy, out, err := runCmd(t)
		require.NoError(t, err)
		assert.Contains(t, out, "Katana is a local Starknet sequencer written in Go.")
		assert.Equal(t, 1, spy.runs)
	})

	t.Run("run error is returned", func(t *testing.T) {
		runErr := errors.New("boom")
		cmd := katana.NewCmd(func(cfg *node.Config, _ string) (katana.Node, error) {
			return &spyNode{cfg: cfg, runErr: runErr}, nil
		})
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetArgs(nil)
		require.ErrorIs(t, cmd.ExecuteContext(t.Context()), runErr)
	})

	t.Run("prints the genesis accounts", func(t *testing.T) {
		accounts, err := genesis.DevAccounts("0", 2, genesis.DefaultPrefundedBalance)
		require.NoError(t, err)
		cmd := katana.NewCmd(func(cfg *node.Config, _ string) (katana.Node, error) {
			return &spyNode{cfg: cfg, accounts: accounts}, nil
		})
		out := new(bytes.Buffer)
		cmd.SetOut(out)
		cmd.SetArgs(nil)
		require.NoError(t, cmd.ExecuteContext(t.Context()))
		for _, account := range accounts {
			assert.Contains(t, out.String(), account.Address.String())
			assert.Contains(t, out.String(), account.PrivateKey.String())
		}
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, _, err := runCmd(t, "--no-such-flag")
		require.Error(t, err)
	})
}

func TestConfigPrecedence(t *testing.T) {
	tests := map[string]struct {
		cfgFileContents string
		env             map[string]string
		inputArgs       []string
		expectErr       bool
		expected        func(cfg *node.Config)
	}{
		"defaults": {
			expected: func(*node.Config) {},
		},
		"config file doesn't exist": {
			inputArgs: []string{"--config", "config-file-test.yaml"},
			expectErr: true,
		},
		"config file only": {
			cfgFileContents: `log-level: debug
db-path: /var/katana
block-time: 3s
dev: true
dev.no-fee: true
fork.url: http://localhost:5050/feeder_gateway/
`,
			expected: func(cfg *node.Config) {
				cfg.LogLevel = "debug"
				cfg.DatabasePath = "/var/katana"
				cfg.BlockTime = 3 * time.Second
				cfg.Dev = true
				cfg.DevNoFee = true
				cfg.ForkURL = "http://localhost:5050/feeder_gateway/"
			},
		},
		"env overrides config file": {
			cfgFileContents: "db-path: /from/file\nhttp-port: 6000\n",
			env:             map[string]string{"KATANA_DB_PATH": "/from/env", "KATANA_DEV_ACCOUNTS": "3"},
			expected: func(cfg *node.Config) {
				cfg.DatabasePath = "/from/env"
				cfg.HTTPPort = 6000
				cfg.DevAccounts = 3
			},
		},
		"flags override env and config file": {
			cfgFileContents: "db-path: /from/file\nchain-id: FILE\n",
			env:             map[string]string{"KATANA_DB_PATH": "/from/env", "KATANA_CHAIN_ID": "ENV"},
			inputArgs:       []string{"--db-path", "/from/flag", "--no-mining", "--log-level", "warn"},
			expected: func(cfg *node.Config) {
				cfg.DatabasePath = "/from/flag"
				cfg.ChainID = "ENV"
				cfg.NoMining = true
				cfg.LogLevel = "warn"
			},
		},
		"invalid log level": {
			inputArgs: []string{"--log-level", "loud"},
			expectErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			args := tc.inputArgs
			if tc.cfgFileContents != "" {
				args = append([]string{"--config", tempCfgFile(t, tc.cfgFileContents)}, args...)
			}

			spy, _, err := runCmd(t, args...)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			expected := defaultConfig()
			tc.expected(expected)
			assert.Equal(t, expected, spy.cfg)
		})
	}
}

func TestConfigCmd(t *testing.T) {
	_, out, err := runCmd(t, "config", "--block-time", "2s", "--dev")
	require.NoError(t, err)
	assert.Contains(t, out, "block-time: 2s")
	assert.Contains(t, out, "dev: true")
	assert.Contains(t, out, "chain-id: KATANA")
}

func TestCompletionsCmd(t *testing.T) {
	_, out, err := runCmd(t, "completions", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "katana")

	_, _, err = runCmd(t, "completions", "tcsh")
	require.Error(t, err)
}
