package core

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/katana/core/felt"
)

// ChainSpec is the immutable configuration of a chain, fixed at boot.
type ChainSpec struct {
	ChainID          *felt.Felt
	FeeTokenAddress  *felt.Felt
	SequencerAddress *felt.Felt
	GasPrices        GasPrice
	DataGasPrices    GasPrice
	L1DAMode         L1DAMode
	ProtocolVersion  *semver.Version

	// FeeDisabled keeps receipts shaped as usual but charges no fee.
	FeeDisabled bool
	// AccountValidationDisabled skips the validate entry point of accounts.
	AccountValidationDisabled bool

	// Genesis is the block 0 header template, its state diff and the classes it declares.
	Genesis        *Header
	GenesisState   *StateDiff
	GenesisClasses map[felt.Felt]*Class
}

func (c *ChainSpec) Validate() error {
	if c.ChainID == nil || c.ChainID.IsZero() {
		return errors.New("chain id must be set")
	}
	if c.FeeTokenAddress == nil {
		return errors.New("fee token address must be set")
	}
	if c.ProtocolVersion == nil {
		return errors.New("protocol version must be set")
	}
	if c.Genesis == nil || c.GenesisState == nil {
		return errors.New("genesis must be set")
	}
	if c.Genesis.Number != 0 {
		return fmt.Errorf("genesis block number must be 0, got %d", c.Genesis.Number)
	}
	for classHash := range c.GenesisState.DeclaredClasses {
		if _, ok := c.GenesisClasses[classHash]; !ok {
			return fmt.Errorf("genesis declares class %s without a definition", classHash.String())
		}
	}
	return nil
}

// BlockEnv holds the inputs fixed for the duration of one block's execution.
type BlockEnv struct {
	Number           uint64
	Timestamp        uint64
	SequencerAddress *felt.Felt
	L1GasPrice       GasPrice
	L1DataGasPrice   GasPrice
	L1DAMode         L1DAMode
	ProtocolVersion  string

	ChainID         *felt.Felt
	FeeTokenAddress *felt.Felt
	FeeDisabled     bool
	SkipValidate    bool

	ValidateMaxSteps uint64
	InvokeMaxSteps   uint64
}

// NewBlockEnv derives the environment of block number at the given timestamp.
func (c *ChainSpec) NewBlockEnv(number, timestamp, validateMaxSteps, invokeMaxSteps uint64) *BlockEnv {
	return &BlockEnv{
		Number:           number,
		Timestamp:        timestamp,
		SequencerAddress: c.SequencerAddress,
		L1GasPrice:       c.GasPrices,
		L1DataGasPrice:   c.DataGasPrices,
		L1DAMode:         c.L1DAMode,
		ProtocolVersion:  c.ProtocolVersion.String(),
		ChainID:          c.ChainID,
		FeeTokenAddress:  c.FeeTokenAddress,
		FeeDisabled:      c.FeeDisabled,
		SkipValidate:     c.AccountValidationDisabled,
		ValidateMaxSteps: validateMaxSteps,
		InvokeMaxSteps:   invokeMaxSteps,
	}
}

// Header returns the header fields known before execution.
func (e *BlockEnv) Header(parentHash *felt.Felt) *Header {
	return &Header{
		ParentHash:       parentHash,
		Number:           e.Number,
		Timestamp:        e.Timestamp,
		SequencerAddress: e.SequencerAddress,
		L1GasPrice:       e.L1GasPrice,
		L1DataGasPrice:   e.L1DataGasPrice,
		L1DAMode:         e.L1DAMode,
		ProtocolVersion:  e.ProtocolVersion,
	}
}

// GasPriceFor returns the gas price in the unit fees are paid in.
func (e *BlockEnv) GasPriceFor(unit FeeUnit) *felt.Felt {
	price := e.L1GasPrice.PriceInWei
	if unit == STRK {
		price = e.L1GasPrice.PriceInFri
	}
	return orZero(price)
}
