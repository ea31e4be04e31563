package sync

import (
	"context"

	"github.com/NethermindEth/katana/adapters/sn2core"
	"github.com/NethermindEth/katana/clients/feeder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/pkg/errors"
)

// DataSource is the remote chain the pipeline trails.
//
//go:generate mockgen -destination=../mocks/mock_data_source.go -package=mocks github.com/NethermindEth/katana/sync DataSource
type DataSource interface {
	// Tip returns the number of the remote head.
	Tip(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*core.Block, *core.StateDiff, error)
	Class(ctx context.Context, classHash *felt.Felt) (*core.Class, error)
}

// SourceError is a failure to get data out of the DataSource. The pipeline retries it
// without limit, since the remote usually comes back.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "data source: " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

type feederDataSource struct {
	client *feeder.Client
}

// NewFeederDataSource trails the node behind the given feeder gateway client.
func NewFeederDataSource(client *feeder.Client) DataSource {
	return &feederDataSource{client: client}
}

func (f *feederDataSource) Tip(ctx context.Context) (uint64, error) {
	block, err := f.client.Block(ctx, feeder.LatestBlock)
	if err != nil {
		return 0, errors.Wrap(err, "fetch latest block")
	}
	return block.Number, nil
}

func (f *feederDataSource) BlockByNumber(ctx context.Context, number uint64) (*core.Block, *core.StateDiff, error) {
	response, err := f.client.StateUpdateWithBlock(ctx, feeder.BlockID(number))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "fetch block %d", number)
	}

	block, err := sn2core.AdaptBlock(response.Block)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "adapt block %d", number)
	}
	if block.Number != number {
		return nil, nil, errors.Errorf("asked for block %d, gateway returned %d", number, block.Number)
	}
	diff, err := sn2core.AdaptStateUpdate(response.StateUpdate)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "adapt state update %d", number)
	}
	return block, diff, nil
}

func (f *feederDataSource) Class(ctx context.Context, classHash *felt.Felt) (*core.Class, error) {
	definition, err := f.client.ClassDefinition(ctx, classHash)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch class %s", classHash)
	}
	return sn2core.AdaptClass(definition)
}
