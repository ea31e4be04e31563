package state

import (
	"errors"
	"maps"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
)

var _ Reader = (*Pending)(nil)

// Pending layers uncommitted changes over a base reader. Changes are made on a child
// layer (Fork) and either merged into their parent (Commit) or dropped, which is how a
// failed transaction is rolled back without touching the block it was tried in.
type Pending struct {
	diff       *core.StateDiff
	newClasses map[felt.Felt]*core.Class
	base       Reader
}

func NewPending(base Reader) *Pending {
	return &Pending{
		diff:       core.EmptyStateDiff(),
		newClasses: make(map[felt.Felt]*core.Class),
		base:       base,
	}
}

// Fork returns a child layer on top of p.
func (p *Pending) Fork() *Pending {
	return NewPending(p)
}

// Commit merges the changes of child into p. child must have been forked from p.
func (p *Pending) Commit(child *Pending) error {
	if child.base != Reader(p) {
		return errors.New("pending layer was not forked from this one")
	}
	p.diff.Merge(child.diff)
	maps.Copy(p.newClasses, child.newClasses)
	return nil
}

// StateDiff returns the changes held by this layer, not including its bases.
func (p *Pending) StateDiff() *core.StateDiff {
	return p.diff
}

// NewClasses returns the definitions of the classes declared in this layer.
func (p *Pending) NewClasses() map[felt.Felt]*core.Class {
	return p.newClasses
}

func (p *Pending) Base() Reader {
	return p.base
}

func (p *Pending) ContractClassHash(addr *felt.Felt) (felt.Felt, error) {
	if classHash, ok := p.diff.ReplacedClasses[*addr]; ok {
		return *classHash, nil
	} else if classHash, ok = p.diff.DeployedContracts[*addr]; ok {
		return *classHash, nil
	}
	return p.base.ContractClassHash(addr)
}

func (p *Pending) ContractNonce(addr *felt.Felt) (felt.Felt, error) {
	if nonce, found := p.diff.Nonces[*addr]; found {
		return *nonce, nil
	} else if _, found = p.diff.DeployedContracts[*addr]; found {
		return felt.Felt{}, nil
	}
	return p.base.ContractNonce(addr)
}

func (p *Pending) ContractStorage(addr, key *felt.Felt) (felt.Felt, error) {
	if diffs, found := p.diff.StorageDiffs[*addr]; found {
		if value, found := diffs[*key]; found {
			return *value, nil
		}
	}
	if _, found := p.diff.DeployedContracts[*addr]; found {
		return felt.Felt{}, nil
	}
	return p.base.ContractStorage(addr, key)
}

func (p *Pending) Class(classHash *felt.Felt) (*core.DeclaredClass, error) {
	if class, found := p.newClasses[*classHash]; found {
		return &core.DeclaredClass{
			Class:             class,
			CompiledClassHash: p.diff.DeclaredClasses[*classHash],
		}, nil
	}
	return p.base.Class(classHash)
}

func (p *Pending) CompiledClassHash(classHash *felt.Felt) (felt.Felt, error) {
	if compiled, found := p.diff.DeclaredClasses[*classHash]; found {
		return *compiled, nil
	}
	return p.base.CompiledClassHash(classHash)
}

// IsDeployed reports whether a contract exists at addr.
func IsDeployed(r Reader, addr *felt.Felt) (bool, error) {
	_, err := r.ContractClassHash(addr)
	if errors.Is(err, ErrContractNotDeployed) {
		return false, nil
	}
	return err == nil, err
}

func (p *Pending) SetStorage(addr, key, value *felt.Felt) {
	diff, ok := p.diff.StorageDiffs[*addr]
	if !ok {
		diff = make(map[felt.Felt]*felt.Felt)
		p.diff.StorageDiffs[*addr] = diff
	}
	diff[*key] = clone(value)
}

func (p *Pending) SetNonce(addr, nonce *felt.Felt) {
	p.diff.Nonces[*addr] = clone(nonce)
}

// IncrementNonce bumps the nonce of addr by one.
func (p *Pending) IncrementNonce(addr *felt.Felt) error {
	nonce, err := p.ContractNonce(addr)
	if err != nil {
		return err
	}
	p.diff.Nonces[*addr] = new(felt.Felt).Add(&nonce, &felt.One)
	return nil
}

func (p *Pending) Deploy(addr, classHash *felt.Felt) error {
	deployed, err := IsDeployed(p, addr)
	if err != nil {
		return err
	}
	if deployed {
		return ErrContractAlreadyDeployed
	}
	p.diff.DeployedContracts[*addr] = classHash
	return nil
}

func (p *Pending) ReplaceClass(addr, classHash *felt.Felt) error {
	deployed, err := IsDeployed(p, addr)
	if err != nil {
		return err
	}
	if !deployed {
		return ErrContractNotDeployed
	}
	p.diff.ReplacedClasses[*addr] = classHash
	return nil
}

func (p *Pending) Declare(classHash, compiledClassHash *felt.Felt, class *core.Class) error {
	if _, err := p.Class(classHash); err == nil {
		return ErrClassAlreadyDeclared
	} else if !errors.Is(err, core.ErrClassNotFound) {
		return err
	}
	p.diff.DeclaredClasses[*classHash] = compiledClassHash
	p.newClasses[*classHash] = class
	return nil
}

func clone(f *felt.Felt) *felt.Felt {
	c := *f
	return &c
}
