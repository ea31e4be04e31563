package vm

import (
	"math/big"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/holiman/uint256"
)

const (
	accountAbi = `[{"type":"interface","name":"Account","items":["__validate__","__execute__","get_public_key"]}]`
	erc20Abi   = `[{"type":"interface","name":"ERC20","items":["name","symbol","decimals","total_supply","balance_of","allowance","transfer","transfer_from","approve"]}]`
	genericAbi = `[{"type":"interface","name":"Generic","items":["get","set","emit","send_message","call","fail","deployContract"]}]`
)

// AccountClass returns the built-in account class. Accounts hold one stark-curve public
// key, check transaction signatures against it and execute multicalls.
func AccountClass() *core.Class {
	return core.NewClass(core.AccountClass, accountAbi,
		"constructor", "__validate__", "__validate_declare__", "__validate_deploy__", "__execute__", "get_public_key")
}

// ERC20Class returns the built-in fungible token class. The fee token is an instance of it.
func ERC20Class() *core.Class {
	return core.NewClass(core.ERC20Class, erc20Abi,
		"constructor", "name", "symbol", "decimals", "total_supply", "totalSupply", "balance_of", "balanceOf",
		"allowance", "transfer", "transfer_from", "transferFrom", "approve")
}

// GenericClass returns the built-in class for everything else: a key/value store that can
// also emit events, send messages, call other contracts and deploy new ones.
func GenericClass() *core.Class {
	return core.NewClass(core.GenericClass, genericAbi,
		"constructor", "get", "set", "emit", "send_message", "call", "fail", "deployContract")
}

// contract storage addresses are reduced below 2**251 - 256
var storageAddressBound = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 251), big.NewInt(256))

// StorageVarAddress is the storage key of the variable name indexed by args.
func StorageVarAddress(name string, args ...*felt.Felt) *felt.Felt {
	key := crypto.Selector(name)
	for _, arg := range args {
		key = crypto.Pedersen(key, arg)
	}
	reduced := new(big.Int).Mod(key.BigInt(), storageAddressBound)
	return new(felt.Felt).SetBigInt(reduced)
}

var (
	PublicKeyKey     = StorageVarAddress("Account_public_key")
	tokenNameKey     = StorageVarAddress("ERC20_name")
	tokenSymbolKey   = StorageVarAddress("ERC20_symbol")
	tokenDecimalsKey = StorageVarAddress("ERC20_decimals")
	totalSupplyKey   = StorageVarAddress("ERC20_total_supply")
)

// BalanceKey is the storage key of the low 128 bits of the token balance of account. The
// high bits follow at the next key.
func BalanceKey(account *felt.Felt) *felt.Felt {
	return StorageVarAddress("ERC20_balances", account)
}

func allowanceKey(owner, spender *felt.Felt) *felt.Felt {
	return StorageVarAddress("ERC20_allowances", owner, spender)
}

var mask128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// SplitU256 returns the low and high 128 bit words of v.
func SplitU256(v *uint256.Int) (low, high *felt.Felt) {
	lo := new(uint256.Int).And(v, mask128)
	hi := new(uint256.Int).Rsh(v, 128)
	return feltFromU256(lo), feltFromU256(hi)
}

// JoinU256 is the inverse of SplitU256. ok is false when a word does not fit 128 bits.
func JoinU256(low, high *felt.Felt) (v *uint256.Int, ok bool) {
	lo, hi := u256FromFelt(low), u256FromFelt(high)
	if lo.Gt(mask128) || hi.Gt(mask128) {
		return nil, false
	}
	return lo.Or(lo, hi.Lsh(hi, 128)), true
}

func feltFromU256(v *uint256.Int) *felt.Felt {
	b := v.Bytes32()
	return new(felt.Felt).SetBytes(b[:])
}

func u256FromFelt(f *felt.Felt) *uint256.Int {
	b := f.Bytes()
	return new(uint256.Int).SetBytes32(b[:])
}

// nextKey returns key + 1, where u256 values keep their high word.
func nextKey(key *felt.Felt) *felt.Felt {
	return new(felt.Felt).Add(key, &felt.One)
}

// readU256 reads the u256 stored at key and key + 1 of addr.
func readU256(r state.Reader, addr, key *felt.Felt) (*uint256.Int, error) {
	low, err := r.ContractStorage(addr, key)
	if err != nil {
		return nil, err
	}
	high, err := r.ContractStorage(addr, nextKey(key))
	if err != nil {
		return nil, err
	}
	v, ok := JoinU256(&low, &high)
	if !ok {
		return nil, revertf("u256 at %s of %s is out of range", key.String(), addr.String())
	}
	return v, nil
}

func writeU256(p *state.Pending, addr, key *felt.Felt, v *uint256.Int) {
	low, high := SplitU256(v)
	p.SetStorage(addr, key, low)
	p.SetStorage(addr, nextKey(key), high)
}

// Balance returns the balance account holds of token.
func Balance(r state.Reader, token, account *felt.Felt) (*uint256.Int, error) {
	return readU256(r, token, BalanceKey(account))
}

// SetBalance overwrites the balance account holds of token. It does not touch the total
// supply; genesis allocations account for it separately.
func SetBalance(p *state.Pending, token, account *felt.Felt, amount *uint256.Int) {
	writeU256(p, token, BalanceKey(account), amount)
}

// InitToken writes the metadata and total supply of an ERC20 instance at token.
func InitToken(p *state.Pending, token, name, symbol *felt.Felt, decimals uint8, supply *uint256.Int) {
	p.SetStorage(token, tokenNameKey, name)
	p.SetStorage(token, tokenSymbolKey, symbol)
	p.SetStorage(token, tokenDecimalsKey, new(felt.Felt).SetUint64(uint64(decimals)))
	writeU256(p, token, totalSupplyKey, supply)
}

// SetPublicKey stores the public key an account checks signatures against.
func SetPublicKey(p *state.Pending, account, publicKey *felt.Felt) {
	p.SetStorage(account, PublicKeyKey, publicKey)
}
