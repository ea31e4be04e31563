package vm

import (
	"errors"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
)

// step costs of the built-in programs
const (
	invocationSteps   = 40
	storageReadSteps  = 5
	storageWriteSteps = 12
	eventSteps        = 10
	messageSteps      = 10
	deploySteps       = 60
	signatureSteps    = 120
	u256Steps         = 8

	maxCallDepth = 16
)

var errOutOfSteps = errors.New("out of steps")

// execution tracks the resources one transaction (or call) consumes across all of its
// invocations.
type execution struct {
	env       *core.BlockEnv
	txHash    *felt.Felt
	signature []*felt.Felt
	// maxSteps bounds resources.Steps, zero means unbounded.
	maxSteps  uint64
	resources core.ExecutionResources
}

func (e *execution) charge(steps uint64) error {
	e.resources.Steps += steps
	if e.maxSteps > 0 && e.resources.Steps > e.maxSteps {
		return revertf("%s: consumed %d steps, limit is %d", errOutOfSteps, e.resources.Steps, e.maxSteps)
	}
	return nil
}

func (e *execution) rangeCheck(n uint64) {
	e.resources.BuiltinInstanceCounter.RangeCheck += n
}

// invoke runs the entry point selector of contract on st.
func (e *execution) invoke(st *state.Pending, caller, contract, selector *felt.Felt,
	calldata []*felt.Felt, depth int,
) (*core.FunctionInvocation, error) {
	inv := &core.FunctionInvocation{
		ContractAddress:    contract,
		EntryPointSelector: selector,
		Calldata:           calldata,
		CallerAddress:      caller,
		CallType:           core.CallTypeCall,
		ExecutionResources: new(core.ExecutionResources),
	}
	if depth > maxCallDepth {
		inv.Failed = true
		return inv, revertf("call depth exceeds %d", maxCallDepth)
	}

	classHash, err := st.ContractClassHash(contract)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			inv.Failed = true
			return inv, revertf("requested contract address %s is not deployed", contract.String())
		}
		return nil, err
	}
	inv.ClassHash = &classHash

	declared, err := st.Class(&classHash)
	if err != nil {
		return nil, err
	}
	ep, found := declared.Class.EntryPoint(selector)
	if !found {
		inv.Failed = true
		return inv, revertf("entry point %s not found in contract", selector.String())
	}
	program, found := programFor(declared.Class.Kind)
	if !found {
		inv.Failed = true
		return inv, revertf("class %s has unsupported kind %s", classHash.String(), declared.Class.Kind)
	}

	before := e.resources
	ctx := &callContext{exec: e, st: st, address: contract, caller: caller, inv: inv, depth: depth}
	if err = e.charge(invocationSteps); err == nil {
		inv.Result, err = program(ctx, ep.Name, newCalldataReader(calldata))
	}
	*inv.ExecutionResources = resourcesSince(&e.resources, &before)
	if err != nil {
		inv.Failed = true
	}
	return inv, err
}

func resourcesSince(after, before *core.ExecutionResources) core.ExecutionResources {
	return core.ExecutionResources{
		Steps:       after.Steps - before.Steps,
		MemoryHoles: after.MemoryHoles - before.MemoryHoles,
		BuiltinInstanceCounter: core.BuiltinInstanceCounter{
			Pedersen:   after.BuiltinInstanceCounter.Pedersen - before.BuiltinInstanceCounter.Pedersen,
			RangeCheck: after.BuiltinInstanceCounter.RangeCheck - before.BuiltinInstanceCounter.RangeCheck,
			Ecdsa:      after.BuiltinInstanceCounter.Ecdsa - before.BuiltinInstanceCounter.Ecdsa,
			Keccak:     after.BuiltinInstanceCounter.Keccak - before.BuiltinInstanceCounter.Keccak,
		},
	}
}

// callContext is what a program sees of the contract it runs as.
type callContext struct {
	exec    *execution
	st      *state.Pending
	address *felt.Felt
	caller  *felt.Felt
	inv     *core.FunctionInvocation
	depth   int
}

func (c *callContext) storage(key *felt.Felt) (*felt.Felt, error) {
	if err := c.exec.charge(storageReadSteps); err != nil {
		return nil, err
	}
	v, err := c.st.ContractStorage(c.address, key)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *callContext) setStorage(key, value *felt.Felt) error {
	if err := c.exec.charge(storageWriteSteps); err != nil {
		return err
	}
	c.st.SetStorage(c.address, key, value)
	return nil
}

func (c *callContext) emit(keys, data []*felt.Felt) error {
	if err := c.exec.charge(eventSteps + uint64(len(keys)+len(data))); err != nil {
		return err
	}
	c.inv.Events = append(c.inv.Events, &core.Event{From: c.address, Keys: keys, Data: data})
	return nil
}

func (c *callContext) sendMessage(to *felt.Felt, payload []*felt.Felt) error {
	if err := c.exec.charge(messageSteps + uint64(len(payload))); err != nil {
		return err
	}
	c.inv.Messages = append(c.inv.Messages, &core.L2ToL1Message{From: c.address, To: to, Payload: payload})
	return nil
}

func (c *callContext) call(to, selector *felt.Felt, calldata []*felt.Felt) ([]*felt.Felt, error) {
	inner, err := c.exec.invoke(c.st, c.address, to, selector, calldata, c.depth+1)
	if inner != nil {
		c.inv.Calls = append(c.inv.Calls, inner)
	}
	if err != nil {
		return nil, err
	}
	return inner.Result, nil
}

// deploy deploys a contract of classHash and runs its constructor, if the class has one.
func (c *callContext) deploy(deployer, classHash, salt *felt.Felt, calldata []*felt.Felt) (*felt.Felt, error) {
	if err := c.exec.charge(deploySteps); err != nil {
		return nil, err
	}
	c.exec.resources.BuiltinInstanceCounter.Pedersen += uint64(len(calldata) + 5)

	declared, err := c.st.Class(classHash)
	if errors.Is(err, core.ErrClassNotFound) {
		return nil, revertf("class %s is not declared", classHash.String())
	} else if err != nil {
		return nil, err
	}

	addr := core.ContractAddress(deployer, classHash, salt, calldata)
	if err = c.st.Deploy(addr, classHash); err != nil {
		if errors.Is(err, state.ErrContractAlreadyDeployed) {
			return nil, revertf("contract already deployed at %s", addr.String())
		}
		return nil, err
	}
	if _, found := declared.Class.EntryPoint(constructorSelector); found {
		if _, err = c.call(addr, constructorSelector, calldata); err != nil {
			return nil, err
		}
	}
	return addr, nil
}

func (c *callContext) verifySignature() error {
	if err := c.exec.charge(signatureSteps); err != nil {
		return err
	}
	c.exec.resources.BuiltinInstanceCounter.Ecdsa++

	publicKey, err := c.storage(PublicKeyKey)
	if err != nil {
		return err
	}
	sig, err := crypto.SignatureFromFelts(c.exec.signature)
	if err != nil {
		return &RevertError{Reason: ErrInvalidSignature.Error() + ": " + err.Error(), err: ErrInvalidSignature}
	}
	ok, err := crypto.NewPublicKey(publicKey).Verify(sig, c.exec.txHash)
	if err != nil || !ok {
		return &RevertError{Reason: ErrInvalidSignature.Error(), err: ErrInvalidSignature}
	}
	return nil
}

// calldataReader decodes calldata front to back. Running out of calldata reverts.
type calldataReader struct {
	data []*felt.Felt
	pos  int
}

func newCalldataReader(data []*felt.Felt) *calldataReader {
	return &calldataReader{data: data}
}

func (r *calldataReader) next() (*felt.Felt, error) {
	if r.pos >= len(r.data) {
		return nil, revertf("calldata too short: expected more than %d elements", len(r.data))
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *calldataReader) nextN(n int) ([]*felt.Felt, error) {
	out := make([]*felt.Felt, 0, n)
	for range n {
		v, err := r.next()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// nextSpan reads a length prefix followed by that many elements.
func (r *calldataReader) nextSpan() ([]*felt.Felt, error) {
	n, err := r.next()
	if err != nil {
		return nil, err
	}
	if !n.IsUint64() || n.Uint64() > uint64(len(r.data)-r.pos) {
		return nil, revertf("calldata length %s is out of range", n.String())
	}
	return r.nextN(int(n.Uint64()))
}

func (r *calldataReader) rest() []*felt.Felt {
	out := r.data[r.pos:]
	r.pos = len(r.data)
	return out
}
