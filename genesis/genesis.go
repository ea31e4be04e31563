package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/validator"
	"github.com/NethermindEth/katana/vm"
	"github.com/holiman/uint256"
)

var (
	DefaultFeeTokenAddress   = mustFelt("0x49d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7")
	DefaultUDCAddress        = mustFelt("0x41a78e741e5af2fec34b695679bc6891742439f7afb8484ecd7766661ad02bf")
	DefaultSequencerAddress  = mustFelt("0x1")
	DefaultPrefundedBalance  = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(22))
	DefaultGasPrice          = uint64(100_000_000_000)
	DefaultDataGasPrice      = uint64(1_000_000_000)
	DefaultFeeTokenName      = "Ether"
	DefaultFeeTokenSymbol    = "ETH"
	DefaultFeeTokenDecimals  = uint8(18)
	DefaultDevAccountsSeed   = "0"
	DefaultDevAccountsAmount = 10
)

func mustFelt(hex string) *felt.Felt {
	f, err := new(felt.Felt).SetString(hex)
	if err != nil {
		panic(err)
	}
	return f
}

// GenesisConfig is the genesis file: the state block 0 starts the chain with.
type GenesisConfig struct {
	Timestamp         uint64                       `json:"timestamp"`
	SequencerAddress  *felt.Felt                   `json:"sequencerAddress"`
	GasPrices         GasPrices                    `json:"gasPrices"`
	DataGasPrices     GasPrices                    `json:"dataGasPrices"`
	FeeToken          FeeToken                     `json:"feeToken"`
	UniversalDeployer *felt.Felt                   `json:"universalDeployer"`
	Classes           []ClassConfig                `json:"classes" validate:"dive"`
	Accounts          map[felt.Felt]AccountConfig  `json:"accounts" validate:"dive"`
	Contracts         map[felt.Felt]ContractConfig `json:"contracts" validate:"dive"`
}

type GasPrices struct {
	ETH  uint64 `json:"ETH"`
	STRK uint64 `json:"STRK"`
}

type FeeToken struct {
	Address  *felt.Felt `json:"address"`
	Name     string     `json:"name" validate:"required,short_string"`
	Symbol   string     `json:"symbol" validate:"required,short_string"`
	Decimals uint8      `json:"decimals"`
	// Class defaults to the built-in ERC20 class.
	Class *felt.Felt `json:"class"`
}

// ClassConfig is a class declared at genesis, either inline or in a file next to the
// genesis file.
type ClassConfig struct {
	Path  string      `json:"path" validate:"required_without=Class"`
	Class *core.Class `json:"class" validate:"required_without=Path"`
}

type AccountConfig struct {
	PublicKey  *felt.Felt `json:"publicKey" validate:"required"`
	PrivateKey *felt.Felt `json:"privateKey"`
	Balance    *felt.Felt `json:"balance"`
	Nonce      *felt.Felt `json:"nonce"`
	// Class defaults to the built-in account class.
	Class   *felt.Felt               `json:"class"`
	Storage map[felt.Felt]*felt.Felt `json:"storage"`
}

type ContractConfig struct {
	Class   *felt.Felt               `json:"class" validate:"required"`
	Balance *felt.Felt               `json:"balance"`
	Nonce   *felt.Felt               `json:"nonce"`
	Storage map[felt.Felt]*felt.Felt `json:"storage"`
}

// Default returns the genesis used when no genesis file is given.
func Default() *GenesisConfig {
	return &GenesisConfig{
		SequencerAddress:  DefaultSequencerAddress,
		GasPrices:         GasPrices{ETH: DefaultGasPrice, STRK: DefaultGasPrice},
		DataGasPrices:     GasPrices{ETH: DefaultDataGasPrice, STRK: DefaultDataGasPrice},
		UniversalDeployer: DefaultUDCAddress,
		FeeToken: FeeToken{
			Address:  DefaultFeeTokenAddress,
			Name:     DefaultFeeTokenName,
			Symbol:   DefaultFeeTokenSymbol,
			Decimals: DefaultFeeTokenDecimals,
		},
	}
}

// Read loads and validates a genesis file. Class paths are resolved relative to the file.
func Read(path string) (*GenesisConfig, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := Default()
	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("decode genesis file %s: %w", path, err)
	}
	for i := range config.Classes {
		if config.Classes[i].Class != nil {
			continue
		}
		classPath := config.Classes[i].Path
		if !filepath.IsAbs(classPath) {
			classPath = filepath.Join(filepath.Dir(path), classPath)
		}
		if config.Classes[i].Class, err = loadClass(classPath); err != nil {
			return nil, err
		}
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadClass(path string) (*core.Class, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	class := new(core.Class)
	if err = json.Unmarshal(file, class); err != nil {
		return nil, fmt.Errorf("decode class %s: %w", path, err)
	}
	return class, nil
}

func (g *GenesisConfig) Validate() error {
	return validator.Validator().Struct(g)
}

// PredeployedAccounts lists the accounts of the genesis file by address.
func (g *GenesisConfig) PredeployedAccounts() ([]Account, error) {
	accountClass, err := vm.AccountClass().Hash()
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(g.Accounts))
	for addr, config := range g.Accounts {
		address := addr
		accounts = append(accounts, Account{
			Address:    &address,
			PublicKey:  config.PublicKey,
			PrivateKey: config.PrivateKey,
			Balance:    orDefault(config.Balance, &felt.Zero),
			ClassHash:  orDefault(config.Class, accountClass),
		})
	}
	slices.SortFunc(accounts, func(a, b Account) int {
		return a.Address.Cmp(b.Address)
	})
	return accounts, nil
}

// ChainSpec builds the chain parameters of a chain that starts from this genesis, with devAccounts
// allocated next to the accounts of the file. The fee token supply is the sum of all
// allocated balances.
func (g *GenesisConfig) ChainSpec(chainID *felt.Felt, devAccounts []Account) (*core.ChainSpec, error) {
	alloc := state.NewPending(emptyState{})

	builtins := []*core.Class{vm.AccountClass(), vm.ERC20Class(), vm.GenericClass()}
	builtinHashes := make([]*felt.Felt, 0, len(builtins))
	for _, class := range builtins {
		classHash, err := declare(alloc, class)
		if err != nil {
			return nil, err
		}
		builtinHashes = append(builtinHashes, classHash)
	}
	accountClass, erc20Class, genericClass := builtinHashes[0], builtinHashes[1], builtinHashes[2]

	for i, config := range g.Classes {
		if config.Class == nil {
			return nil, fmt.Errorf("class #%d has no definition", i)
		}
		if _, err := declare(alloc, config.Class); err != nil && !errors.Is(err, state.ErrClassAlreadyDeclared) {
			return nil, fmt.Errorf("declare class #%d: %w", i, err)
		}
	}

	feeToken := orDefault(g.FeeToken.Address, DefaultFeeTokenAddress)
	if err := deploy(alloc, feeToken, orDefault(g.FeeToken.Class, erc20Class)); err != nil {
		return nil, fmt.Errorf("deploy fee token: %w", err)
	}
	supply := new(uint256.Int)
	fund := func(addr, balance *felt.Felt) error {
		if balance == nil || balance.IsZero() {
			return nil
		}
		amount := new(uint256.Int).SetBytes32(balanceBytes(balance))
		if _, overflow := supply.AddOverflow(supply, amount); overflow {
			return errors.New("fee token supply overflows")
		}
		vm.SetBalance(alloc, feeToken, addr, amount)
		return nil
	}

	for addr, config := range g.Accounts {
		if err := allocate(alloc, &addr, orDefault(config.Class, accountClass), config.Nonce, config.Storage); err != nil {
			return nil, fmt.Errorf("allocate account %s: %w", addr.String(), err)
		}
		vm.SetPublicKey(alloc, &addr, config.PublicKey)
		if err := fund(&addr, config.Balance); err != nil {
			return nil, err
		}
	}
	for _, account := range devAccounts {
		if err := deploy(alloc, account.Address, orDefault(account.ClassHash, accountClass)); err != nil {
			return nil, fmt.Errorf("allocate dev account %s: %w", account.Address.String(), err)
		}
		vm.SetPublicKey(alloc, account.Address, account.PublicKey)
		if err := fund(account.Address, account.Balance); err != nil {
			return nil, err
		}
	}
	for addr, config := range g.Contracts {
		if err := allocate(alloc, &addr, config.Class, config.Nonce, config.Storage); err != nil {
			return nil, fmt.Errorf("allocate contract %s: %w", addr.String(), err)
		}
		if err := fund(&addr, config.Balance); err != nil {
			return nil, err
		}
	}
	if g.UniversalDeployer != nil && !g.UniversalDeployer.IsZero() {
		if err := deploy(alloc, g.UniversalDeployer, genericClass); err != nil {
			return nil, fmt.Errorf("deploy universal deployer: %w", err)
		}
	}

	vm.InitToken(alloc, feeToken,
		new(felt.Felt).SetBytes([]byte(g.FeeToken.Name)),
		new(felt.Felt).SetBytes([]byte(g.FeeToken.Symbol)),
		g.FeeToken.Decimals, supply)

	sequencer := orDefault(g.SequencerAddress, DefaultSequencerAddress)
	gasPrices := core.GasPrice{
		PriceInWei: new(felt.Felt).SetUint64(g.GasPrices.ETH),
		PriceInFri: new(felt.Felt).SetUint64(g.GasPrices.STRK),
	}
	dataGasPrices := core.GasPrice{
		PriceInWei: new(felt.Felt).SetUint64(g.DataGasPrices.ETH),
		PriceInFri: new(felt.Felt).SetUint64(g.DataGasPrices.STRK),
	}
	spec := &core.ChainSpec{
		ChainID:          chainID,
		FeeTokenAddress:  feeToken,
		SequencerAddress: sequencer,
		GasPrices:        gasPrices,
		DataGasPrices:    dataGasPrices,
		L1DAMode:         core.Calldata,
		ProtocolVersion:  core.CurrentProtocolVersion,
		Genesis: &core.Header{
			ParentHash:       &felt.Zero,
			Number:           0,
			Timestamp:        g.Timestamp,
			SequencerAddress: sequencer,
			L1GasPrice:       gasPrices,
			L1DataGasPrice:   dataGasPrices,
			L1DAMode:         core.Calldata,
			ProtocolVersion:  core.CurrentProtocolVersion.String(),
		},
		GenesisState:   alloc.StateDiff(),
		GenesisClasses: alloc.NewClasses(),
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func declare(alloc *state.Pending, class *core.Class) (*felt.Felt, error) {
	for i := range class.EntryPoints {
		if class.EntryPoints[i].Selector == nil {
			class.EntryPoints[i].Selector = crypto.Selector(class.EntryPoints[i].Name)
		}
	}
	classHash, err := class.Hash()
	if err != nil {
		return nil, err
	}
	compiled, err := class.CompiledClassHash()
	if err != nil {
		return nil, err
	}
	if err = alloc.Declare(classHash, compiled, class); err != nil {
		return classHash, err
	}
	return classHash, nil
}

func deploy(alloc *state.Pending, addr, classHash *felt.Felt) error {
	if _, err := alloc.Class(classHash); err != nil {
		return fmt.Errorf("class %s: %w", classHash.String(), err)
	}
	return alloc.Deploy(addr, classHash)
}

func allocate(alloc *state.Pending, addr, classHash, nonce *felt.Felt, storage map[felt.Felt]*felt.Felt) error {
	if err := deploy(alloc, addr, classHash); err != nil {
		return err
	}
	if nonce != nil && !nonce.IsZero() {
		alloc.SetNonce(addr, nonce)
	}
	for key, value := range storage {
		alloc.SetStorage(addr, &key, value)
	}
	return nil
}

func balanceBytes(balance *felt.Felt) []byte {
	b := balance.Bytes()
	return b[:]
}

func orDefault(f, def *felt.Felt) *felt.Felt {
	if f == nil {
		return def
	}
	return f
}

// emptyState is the state before genesis.
type emptyState struct{}

func (emptyState) ContractClassHash(*felt.Felt) (felt.Felt, error) {
	return felt.Felt{}, state.ErrContractNotDeployed
}

func (emptyState) ContractNonce(*felt.Felt) (felt.Felt, error) {
	return felt.Felt{}, state.ErrContractNotDeployed
}

func (emptyState) ContractStorage(_, _ *felt.Felt) (felt.Felt, error) {
	return felt.Felt{}, nil
}

func (emptyState) Class(*felt.Felt) (*core.DeclaredClass, error) {
	return nil, core.ErrClassNotFound
}

func (emptyState) CompiledClassHash(*felt.Felt) (felt.Felt, error) {
	return felt.Felt{}, core.ErrClassNotFound
}
