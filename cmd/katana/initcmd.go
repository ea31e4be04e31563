package main

import (
	"fmt"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/node"
	"github.com/NethermindEth/katana/utils"
	"github.com/spf13/cobra"
)

func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a fresh chain in the database directory",
		Long: `This command seals the genesis block described by --genesis, --chain-id and the dev
account flags into --db-path. Running it on a directory that already holds the same chain
is a no-op.`,
		Args: cobra.NoArgs,
		RunE: initChain,
	}
}

func initChain(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("%w: --%v cannot be empty", errInvalidFlags, dbPathF)
	}

	spec, _, err := node.ChainSpec(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", node.ErrInvalidConfig, err)
	}

	database, err := pebble.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	chain := blockchain.New(database, spec.ChainID, trie.NewNodeCache(0), utils.NewNopZapLogger())
	if err = chain.Init(spec); err != nil {
		return err
	}

	genesis, err := chain.BlockHeaderByNumber(0)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Chain %s initialised in %s\ngenesis hash: %s\nstate root:   %s\n",
		spec.ChainID, cfg.DatabasePath, genesis.Hash, genesis.StateRoot)
	return nil
}
