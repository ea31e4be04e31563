package vm

import (
	"bytes"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/holiman/uint256"
)

// program runs entry of a built-in class. args holds the calldata of the invocation.
type program func(c *callContext, entry string, args *calldataReader) ([]*felt.Felt, error)

func programFor(kind core.ClassKind) (program, bool) {
	switch kind {
	case core.AccountClass:
		return accountProgram, true
	case core.ERC20Class:
		return erc20Program, true
	case core.GenericClass:
		return genericProgram, true
	}
	return nil, false
}

var (
	constructorSelector     = crypto.Selector("constructor")
	executeSelector         = crypto.Selector("__execute__")
	validateSelector        = crypto.Selector("__validate__")
	validateDeclareSelector = crypto.Selector("__validate_declare__")
	validateDeploySelector  = crypto.Selector("__validate_deploy__")
	transferSelector        = crypto.Selector("transfer")

	transferEventKey         = crypto.Selector("Transfer")
	approvalEventKey         = crypto.Selector("Approval")
	contractDeployedEventKey = crypto.Selector("ContractDeployed")

	validated = new(felt.Felt).SetBytes([]byte("VALID"))
	success   = new(felt.Felt).SetUint64(1)
)

func accountProgram(c *callContext, entry string, args *calldataReader) ([]*felt.Felt, error) {
	switch entry {
	case "constructor":
		publicKey, err := args.next()
		if err != nil {
			return nil, err
		}
		return nil, c.setStorage(PublicKeyKey, publicKey)
	case "get_public_key":
		publicKey, err := c.storage(PublicKeyKey)
		if err != nil {
			return nil, err
		}
		return []*felt.Felt{publicKey}, nil
	case "__validate__", "__validate_declare__", "__validate_deploy__":
		if err := c.verifySignature(); err != nil {
			return nil, err
		}
		return []*felt.Felt{validated}, nil
	case "__execute__":
		if !c.caller.IsZero() {
			return nil, revertf("__execute__ can only be called by the protocol")
		}
		return executeCalls(c, args)
	}
	return nil, revertf("entry point %s is not implemented by the account program", entry)
}

// executeCalls runs a multicall laid out as
// [call_count, (to, selector, calldata_len, calldata...) * call_count].
// The result holds every call's result prefixed with its length.
func executeCalls(c *callContext, args *calldataReader) ([]*felt.Felt, error) {
	count, err := args.next()
	if err != nil {
		return nil, err
	}
	if !count.IsUint64() {
		return nil, revertf("invalid call count %s", count.String())
	}

	var out []*felt.Felt
	for range count.Uint64() {
		call, err := args.nextN(2)
		if err != nil {
			return nil, err
		}
		calldata, err := args.nextSpan()
		if err != nil {
			return nil, err
		}
		result, err := c.call(call[0], call[1], calldata)
		if err != nil {
			return nil, err
		}
		out = append(out, new(felt.Felt).SetUint64(uint64(len(result))))
		out = append(out, result...)
	}
	return out, nil
}

func erc20Program(c *callContext, entry string, args *calldataReader) ([]*felt.Felt, error) {
	switch entry {
	case "constructor":
		// [name, symbol, decimals, initial_supply_low, initial_supply_high, recipient]
		meta, err := args.nextN(3)
		if err != nil {
			return nil, err
		}
		supply, err := nextU256(args)
		if err != nil {
			return nil, err
		}
		recipient, err := args.next()
		if err != nil {
			return nil, err
		}
		for i, key := range []*felt.Felt{tokenNameKey, tokenSymbolKey, tokenDecimalsKey} {
			if err = c.setStorage(key, meta[i]); err != nil {
				return nil, err
			}
		}
		if err = c.writeU256(totalSupplyKey, supply); err != nil {
			return nil, err
		}
		if err = c.writeU256(BalanceKey(recipient), supply); err != nil {
			return nil, err
		}
		return nil, emitTransfer(c, &felt.Zero, recipient, supply)
	case "name", "symbol", "decimals":
		key := map[string]*felt.Felt{"name": tokenNameKey, "symbol": tokenSymbolKey, "decimals": tokenDecimalsKey}[entry]
		v, err := c.storage(key)
		if err != nil {
			return nil, err
		}
		return []*felt.Felt{v}, nil
	case "total_supply", "totalSupply":
		return c.u256Result(totalSupplyKey)
	case "balance_of", "balanceOf":
		account, err := args.next()
		if err != nil {
			return nil, err
		}
		return c.u256Result(BalanceKey(account))
	case "allowance":
		parties, err := args.nextN(2)
		if err != nil {
			return nil, err
		}
		return c.u256Result(allowanceKey(parties[0], parties[1]))
	case "transfer":
		recipient, err := args.next()
		if err != nil {
			return nil, err
		}
		amount, err := nextU256(args)
		if err != nil {
			return nil, err
		}
		if err = moveTokens(c, c.caller, recipient, amount); err != nil {
			return nil, err
		}
		return []*felt.Felt{success}, nil
	case "transfer_from", "transferFrom":
		parties, err := args.nextN(2)
		if err != nil {
			return nil, err
		}
		amount, err := nextU256(args)
		if err != nil {
			return nil, err
		}
		key := allowanceKey(parties[0], c.caller)
		allowance, err := c.readU256(key)
		if err != nil {
			return nil, err
		}
		if allowance.Lt(amount) {
			return nil, revertf("ERC20: insufficient allowance")
		}
		if err = c.writeU256(key, allowance.Sub(allowance, amount)); err != nil {
			return nil, err
		}
		if err = moveTokens(c, parties[0], parties[1], amount); err != nil {
			return nil, err
		}
		return []*felt.Felt{success}, nil
	case "approve":
		spender, err := args.next()
		if err != nil {
			return nil, err
		}
		amount, err := nextU256(args)
		if err != nil {
			return nil, err
		}
		if err = c.writeU256(allowanceKey(c.caller, spender), amount); err != nil {
			return nil, err
		}
		low, high := SplitU256(amount)
		if err = c.emit([]*felt.Felt{approvalEventKey}, []*felt.Felt{c.caller, spender, low, high}); err != nil {
			return nil, err
		}
		return []*felt.Felt{success}, nil
	}
	return nil, revertf("entry point %s is not implemented by the erc20 program", entry)
}

func moveTokens(c *callContext, from, to *felt.Felt, amount *uint256.Int) error {
	fromKey := BalanceKey(from)
	fromBalance, err := c.readU256(fromKey)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return revertf("ERC20: transfer amount exceeds balance")
	}
	if err = c.writeU256(fromKey, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}

	toKey := BalanceKey(to)
	toBalance, err := c.readU256(toKey)
	if err != nil {
		return err
	}
	if _, overflow := toBalance.AddOverflow(toBalance, amount); overflow {
		return revertf("ERC20: balance overflow")
	}
	if err = c.writeU256(toKey, toBalance); err != nil {
		return err
	}
	return emitTransfer(c, from, to, amount)
}

func emitTransfer(c *callContext, from, to *felt.Felt, amount *uint256.Int) error {
	low, high := SplitU256(amount)
	return c.emit([]*felt.Felt{transferEventKey}, []*felt.Felt{from, to, low, high})
}

// decodeShortString reads f as an ascii string packed into at most 31 bytes.
func decodeShortString(f *felt.Felt) string {
	b := f.Bytes()
	return string(bytes.TrimLeft(b[:], "\x00"))
}

func nextU256(args *calldataReader) (*uint256.Int, error) {
	words, err := args.nextN(2)
	if err != nil {
		return nil, err
	}
	v, ok := JoinU256(words[0], words[1])
	if !ok {
		return nil, revertf("u256 word out of range")
	}
	return v, nil
}

func (c *callContext) readU256(key *felt.Felt) (*uint256.Int, error) {
	if err := c.exec.charge(2*storageReadSteps + u256Steps); err != nil {
		return nil, err
	}
	c.exec.rangeCheck(2)
	return readU256(c.st, c.address, key)
}

func (c *callContext) writeU256(key *felt.Felt, v *uint256.Int) error {
	if err := c.exec.charge(2*storageWriteSteps + u256Steps); err != nil {
		return err
	}
	c.exec.rangeCheck(2)
	writeU256(c.st, c.address, key, v)
	return nil
}

func (c *callContext) u256Result(key *felt.Felt) ([]*felt.Felt, error) {
	v, err := c.readU256(key)
	if err != nil {
		return nil, err
	}
	low, high := SplitU256(v)
	return []*felt.Felt{low, high}, nil
}

func genericProgram(c *callContext, entry string, args *calldataReader) ([]*felt.Felt, error) {
	switch entry {
	case "constructor":
		// [(key, value)...]
		pairs := args.rest()
		if len(pairs)%2 != 0 {
			return nil, revertf("constructor expects key/value pairs, got %d elements", len(pairs))
		}
		for i := 0; i < len(pairs); i += 2 {
			if err := c.setStorage(pairs[i], pairs[i+1]); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "get":
		key, err := args.next()
		if err != nil {
			return nil, err
		}
		v, err := c.storage(key)
		if err != nil {
			return nil, err
		}
		return []*felt.Felt{v}, nil
	case "set":
		kv, err := args.nextN(2)
		if err != nil {
			return nil, err
		}
		return nil, c.setStorage(kv[0], kv[1])
	case "emit":
		// [keys_len, keys..., data_len, data...]
		keys, err := args.nextSpan()
		if err != nil {
			return nil, err
		}
		data, err := args.nextSpan()
		if err != nil {
			return nil, err
		}
		return nil, c.emit(keys, data)
	case "send_message":
		// [to_address, payload_len, payload...]
		to, err := args.next()
		if err != nil {
			return nil, err
		}
		payload, err := args.nextSpan()
		if err != nil {
			return nil, err
		}
		return nil, c.sendMessage(to, payload)
	case "call":
		// [to, selector, calldata_len, calldata...]
		target, err := args.nextN(2)
		if err != nil {
			return nil, err
		}
		calldata, err := args.nextSpan()
		if err != nil {
			return nil, err
		}
		return c.call(target[0], target[1], calldata)
	case "fail":
		reason, err := args.next()
		if err != nil {
			return nil, err
		}
		return nil, &RevertError{Reason: decodeShortString(reason)}
	case "deployContract":
		// [class_hash, salt, unique, calldata_len, calldata...]
		params, err := args.nextN(3)
		if err != nil {
			return nil, err
		}
		calldata, err := args.nextSpan()
		if err != nil {
			return nil, err
		}
		classHash, salt, deployer := params[0], params[1], &felt.Zero
		if !params[2].IsZero() {
			salt = crypto.Pedersen(c.caller, salt)
			deployer = c.address
		}
		addr, err := c.deploy(deployer, classHash, salt, calldata)
		if err != nil {
			return nil, err
		}
		data := []*felt.Felt{addr, c.caller, params[2], classHash, new(felt.Felt).SetUint64(uint64(len(calldata)))}
		data = append(data, calldata...)
		data = append(data, params[1])
		if err = c.emit([]*felt.Felt{contractDeployedEventKey}, data); err != nil {
			return nil, err
		}
		return []*felt.Felt{addr}, nil
	}
	return nil, revertf("entry point %s is not implemented by the generic program", entry)
}
