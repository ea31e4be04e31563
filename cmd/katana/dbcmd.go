package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/utils"
	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const (
	dbRevertToBlockF = "to"
	dbDumpBucketF    = "bucket"
	dbDumpLimitF     = "limit"

	defaultDumpLimit = 20
)

type DBInfo struct {
	ChainID         *felt.Felt
	SchemaVersion   uint64
	ChainHeight     uint64
	LatestBlockHash *felt.Felt
	LatestStateRoot *felt.Felt
}

func DBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database related operations",
		Long:  `This command allows you to inspect and repair the database of a stopped node.`,
	}

	dbCmd.AddCommand(DBInfoCmd(), DBDumpCmd(), DBRevertCmd())
	return dbCmd
}

func DBInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Retrieve database information",
		Long:  `This subcommand displays the chain stored in the database and the size of every bucket.`,
		Args:  cobra.NoArgs,
		RunE:  dbInfo,
	}
}

func DBDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the raw entries of a bucket",
		Args:  cobra.NoArgs,
		RunE:  dbDump,
	}
	cmd.Flags().String(dbDumpBucketF, db.BlockHeadersByNumber.String(), "Name of the bucket to dump")
	cmd.Flags().Uint(dbDumpLimitF, defaultDumpLimit, "Maximum number of entries to print")
	return cmd
}

func DBRevertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Revert current head to given position",
		Long:  `This subcommand reverts all blocks above the given one so it becomes the new head.`,
		Args:  cobra.NoArgs,
		RunE:  dbRevert,
	}
	cmd.Flags().Uint64(dbRevertToBlockF, 0, "New head (this block won't be reverted)")
	return cmd
}

func openDB(cmd *cobra.Command, options ...pebble.Option) (*pebble.DB, error) {
	dbPath, err := cmd.Flags().GetString(dbPathF)
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		return nil, fmt.Errorf("%w: --%v cannot be empty", errInvalidFlags, dbPathF)
	}
	return pebble.New(dbPath, options...)
}

func dbInfo(cmd *cobra.Command, _ []string) error {
	database, err := openDB(cmd, pebble.ReadOnly())
	if err != nil {
		return err
	}
	defer database.Close()

	var info DBInfo
	err = database.View(func(txn db.Transaction) error {
		if info.SchemaVersion, info.ChainID, err = blockchain.Metadata(txn); err != nil {
			return err
		}
		if info.ChainHeight, err = blockchain.ChainHeight(txn); err != nil {
			return err
		}
		var head *core.Header
		if head, err = blockchain.BlockHeaderByNumber(txn, info.ChainHeight); err != nil {
			return err
		}
		info.LatestBlockHash = head.Hash
		info.LatestStateRoot = head.StateRoot
		return nil
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return errors.New("the database holds no chain")
	} else if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Chain ID:          %s\n", info.ChainID)
	fmt.Fprintf(out, "Schema version:    %d\n", info.SchemaVersion)
	fmt.Fprintf(out, "Chain height:      %d\n", info.ChainHeight)
	fmt.Fprintf(out, "Latest block hash: %s\n", info.LatestBlockHash)
	fmt.Fprintf(out, "Latest state root: %s\n", info.LatestStateRoot)

	return printBucketSizes(out, database)
}

func printBucketSizes(w io.Writer, database *pebble.DB) error {
	var (
		total uint64
		items [][]string
	)
	for _, b := range db.BucketValues() {
		size, err := database.PrefixSize(b.Key())
		if err != nil {
			return err
		}
		items = append(items, []string{b.String(), utils.DataSize(size).String()})
		total += size
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Bucket", "Size"})
	table.AppendBulk(items)
	table.SetFooter([]string{"Total", utils.DataSize(total).String()})
	table.Render()
	return nil
}

func dbDump(cmd *cobra.Command, _ []string) error {
	bucketName, err := cmd.Flags().GetString(dbDumpBucketF)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetUint(dbDumpLimitF)
	if err != nil {
		return err
	}
	bucket, ok := db.BucketString(bucketName)
	if !ok {
		names := make([]string, 0, len(db.BucketValues()))
		for _, b := range db.BucketValues() {
			names = append(names, b.String())
		}
		return fmt.Errorf("%w: unknown bucket %q, known: %s", errInvalidFlags, bucketName, strings.Join(names, ", "))
	}

	database, err := openDB(cmd, pebble.ReadOnly())
	if err != nil {
		return err
	}
	defer database.Close()

	printer := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	out := cmd.OutOrStdout()
	return database.View(func(txn db.Transaction) (err error) {
		it, err := txn.NewIterator(bucket.Key())
		if err != nil {
			return err
		}
		defer db.CloseAndWrapOnError(it.Close, &err)

		var count uint
		for it.Next() {
			if count >= limit {
				fmt.Fprintf(out, "... stopped after %d entries\n", limit)
				break
			}
			val, err := it.Value()
			if err != nil {
				return err
			}
			key := it.Key()[len(bucket.Key()):]
			fmt.Fprintf(out, "key 0x%s (%d bytes)\n", hex.EncodeToString(key), len(val))
			printer.Fdump(out, val)
			count++
		}
		return nil
	})
}

func dbRevert(cmd *cobra.Command, _ []string) error {
	revertToBlock, err := cmd.Flags().GetUint64(dbRevertToBlockF)
	if err != nil {
		return err
	}

	database, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	var chainID *felt.Felt
	if err = database.View(func(txn db.Transaction) error {
		_, chainID, err = blockchain.Metadata(txn)
		return err
	}); err != nil {
		return err
	}

	chain := blockchain.New(database, chainID, trie.NewNodeCache(0), utils.NewNopZapLogger())
	if err = chain.Init(nil); err != nil {
		return err
	}

	for {
		height, err := chain.Height()
		if err != nil {
			return fmt.Errorf("get the latest block number: %w", err)
		}
		if height <= revertToBlock {
			fmt.Fprintf(cmd.OutOrStdout(), "Head is at block %s\n", strconv.FormatUint(height, 10))
			return nil
		}

		if err = chain.RevertHead(); err != nil {
			return fmt.Errorf("revert head at block %d: %w", height, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reverted block %d\n", height)
	}
}
