package mempool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
	"github.com/ethereum/go-ethereum/common/lru"
)

const (
	DefaultMaxSize           = 10_000
	DefaultMaxNonceGap       = 64
	DefaultValidationTimeout = 5 * time.Second
	DefaultValidateMaxSteps  = 1_000_000

	hashListenerBuffer = 2048
	readyBuffer        = 256
	recentHashes       = 16_384
)

type Config struct {
	// MaxSize bounds ready and future transactions together; 0 means unbounded.
	MaxSize int
	// MaxNonceGap is how far past the next expected nonce a transaction may be held.
	MaxNonceGap       uint64
	ValidationTimeout time.Duration
	ValidateMaxSteps  uint64
}

func DefaultConfig() Config {
	return Config{
		MaxSize:           DefaultMaxSize,
		MaxNonceGap:       DefaultMaxNonceGap,
		ValidationTimeout: DefaultValidationTimeout,
		ValidateMaxSteps:  DefaultValidateMaxSteps,
	}
}

// PendingTx is a transaction admitted to the pool.
type PendingTx struct {
	Transaction core.Transaction
	Nonce       uint64
	Priority    Priority
	// ViewID is the number of the head block the transaction was validated against.
	ViewID   uint64
	Received time.Time
}

func (t *PendingTx) Hash() *felt.Felt {
	return t.Transaction.Hash()
}

func (t *PendingTx) Sender() *felt.Felt {
	return t.Transaction.Sender()
}

type Status uint8

const (
	StatusUnknown Status = iota
	// StatusReceived is a transaction waiting in the pool.
	StatusReceived
	// StatusRejected is a transaction that was refused or evicted recently.
	StatusRejected
	// StatusIncluded is a transaction handed out by TakeNext. The block it went into, open
	// or sealed, has its outcome.
	StatusIncluded
)

// Pool admits transactions that validate against the head state and hands them out in
// priority order, each sender's transactions in nonce order.
type Pool struct {
	chain    blockchain.Reader
	spec     *core.ChainSpec
	executor vm.Executor
	ordering Ordering
	cfg      Config
	log      utils.SimpleLogger
	listener EventListener

	// lease is shared by admissions and taken exclusively while the pool catches up with a
	// new head.
	lease sync.RWMutex

	mu       sync.Mutex // protects the fields below and the accounts they point to
	seq      uint64
	txs      map[felt.Felt]*PendingTx
	accounts map[felt.Felt]*account
	queue    readyQueue
	nReady   int
	nFuture  int

	txPushed chan struct{}
	included *lru.Cache[felt.Felt, struct{}]
	rejected *lru.Cache[felt.Felt, *AddError]
	ready    *feed.Feed[*PendingTx]
	hashes   *feed.Feed[*felt.Felt]
}

func New(chain blockchain.Reader, spec *core.ChainSpec, executor vm.Executor, ordering Ordering,
	cfg Config, log utils.SimpleLogger,
) *Pool {
	if ordering == nil {
		ordering = FCFS{}
	}
	return &Pool{
		chain:    chain,
		spec:     spec,
		executor: executor,
		ordering: ordering,
		cfg:      cfg,
		log:      log,
		listener: &SelectiveListener{},
		txs:      make(map[felt.Felt]*PendingTx),
		accounts: make(map[felt.Felt]*account),
		txPushed: make(chan struct{}, 1),
		included: lru.NewCache[felt.Felt, struct{}](recentHashes),
		rejected: lru.NewCache[felt.Felt, *AddError](recentHashes),
		ready:    feed.New[*PendingTx](),
		hashes:   feed.New[*felt.Felt](),
	}
}

func (p *Pool) WithListener(listener EventListener) *Pool {
	p.listener = listener
	return p
}

// Add validates txn against the head state and admits it. Adding a transaction that is
// already pending, or was taken into a block, returns its hash again without a second
// admission.
func (p *Pool) Add(ctx context.Context, txn core.Transaction) (*felt.Felt, error) {
	hash, err := p.add(ctx, txn)
	if err != nil {
		var addErr *AddError
		if errors.As(err, &addErr) {
			p.listener.OnRejected(addErr.Kind)
			if hash != nil {
				p.rejected.Add(*hash, addErr)
			}
			p.log.Debugw("Transaction rejected", "hash", hash, "err", err)
		}
		return nil, err
	}
	return hash, nil
}

func (p *Pool) add(ctx context.Context, txn core.Transaction) (*felt.Felt, error) {
	if err := core.VerifyTransaction(txn, p.spec.ChainID); err != nil {
		return txn.Hash(), &AddError{Kind: MalformedEncoding, Reason: err.Error(), Cause: err}
	}
	hash := txn.Hash()
	nonce, err := txNonce(txn)
	if err != nil {
		return hash, err
	}

	p.lease.RLock()
	defer p.lease.RUnlock()

	if p.known(hash) {
		return hash, nil
	}

	head, err := p.chain.HeadHeader()
	if err != nil {
		return hash, err
	}
	chainNonce, err := p.chainNonce(txn.Sender())
	if err != nil {
		return hash, err
	}

	p.mu.Lock()
	err = p.checkNonce(txn.Sender(), nonce, chainNonce)
	p.mu.Unlock()
	if err != nil {
		return hash, err
	}

	// validation runs without the index lock
	if err = p.simulate(ctx, txn, nonce, p.env(head)); err != nil {
		return hash, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[*hash]; ok || p.included.Contains(*hash) {
		return hash, nil
	}
	if err = p.checkNonce(txn.Sender(), nonce, chainNonce); err != nil {
		return hash, err
	}

	acct := p.account(txn.Sender(), chainNonce)
	p.seq++
	pending := &PendingTx{
		Transaction: txn,
		Nonce:       nonce,
		Priority:    p.ordering.Priority(txn, p.seq),
		ViewID:      head.Number,
		Received:    time.Now(),
	}
	if err = p.makeRoom(acct, pending); err != nil {
		if acct.empty() && acct.nonce == chainNonce {
			delete(p.accounts, acct.address)
		}
		return hash, err
	}
	p.insert(acct, pending)
	p.rejected.Remove(*hash)
	return hash, nil
}

func (p *Pool) known(hash *felt.Felt) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.txs[*hash]
	return ok || p.included.Contains(*hash)
}

func txNonce(txn core.Transaction) (uint64, error) {
	nonce := txn.TxNonce()
	if nonce == nil {
		return 0, nil
	}
	if !nonce.IsUint64() {
		return 0, addErrorf(MalformedEncoding, nil, "nonce %s does not fit 64 bits", nonce)
	}
	return nonce.Uint64(), nil
}

// chainNonce reads the nonce of sender from the head state. Accounts that are not deployed
// yet expect nonce 0.
func (p *Pool) chainNonce(sender *felt.Felt) (uint64, error) {
	st, closer, err := p.chain.HeadState()
	if err != nil {
		return 0, err
	}
	nonce, err := accountNonce(st, sender)
	return nonce, utils.RunAndWrapOnError(closer, err)
}

func accountNonce(st state.Reader, sender *felt.Felt) (uint64, error) {
	nonce, err := st.ContractNonce(sender)
	if errors.Is(err, state.ErrContractNotDeployed) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return nonce.Uint64(), nil
}

func (p *Pool) checkNonce(sender *felt.Felt, nonce, chainNonce uint64) error {
	next := chainNonce
	if acct, ok := p.accounts[*sender]; ok {
		next = max(next, acct.next())
		if _, held := acct.future[nonce]; held {
			return addErrorf(NonceAlreadyUsed, nil, "a transaction with nonce %d is already waiting", nonce)
		}
	}
	switch {
	case nonce < next:
		return addErrorf(NonceAlreadyUsed, nil, "nonce %d, account expects %d", nonce, next)
	case nonce-next > p.cfg.MaxNonceGap:
		return addErrorf(NonceTooFarInFuture, nil, "nonce %d, account expects %d", nonce, next)
	}
	return nil
}

// account returns the pool entry of sender, creating it or catching it up with the chain.
func (p *Pool) account(sender *felt.Felt, chainNonce uint64) *account {
	acct, ok := p.accounts[*sender]
	if !ok {
		acct = newAccount(sender, chainNonce)
		p.accounts[*sender] = acct
	} else if acct.nonce < chainNonce {
		p.rebase(acct, chainNonce)
	}
	return acct
}

func (p *Pool) env(head *core.Header) *core.BlockEnv {
	timestamp := max(head.Timestamp, uint64(time.Now().Unix()))
	return p.spec.NewBlockEnv(head.Number+1, timestamp, p.cfg.ValidateMaxSteps, 0)
}

// simulate runs the validation entry point of txn on the pending view of its sender. A
// validation that panics or outlives the timeout counts as reverted.
func (p *Pool) simulate(ctx context.Context, txn core.Transaction, nonce uint64, env *core.BlockEnv) error {
	if p.cfg.ValidationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ValidationTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = addErrorf(ValidationReverted, nil, "validation panicked: %v", r)
			}
			done <- err
		}()
		view, closer, err := p.pendingView(txn.Sender(), nonce, env)
		if err != nil {
			return
		}
		defer func() {
			err = utils.RunAndWrapOnError(closer, err)
		}()
		err = p.executor.Validate(txn, view, env)
	}()

	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return addErrorf(ValidationReverted, ctx.Err(), "validation did not finish: %v", ctx.Err())
	}
}

// pendingView is the head state with the effects of the transactions sender has in the
// pool below nonce, both those taken into the open block and those still waiting. The
// caller must call the closer.
func (p *Pool) pendingView(sender *felt.Felt, nonce uint64, env *core.BlockEnv) (state.Reader,
	blockchain.StateCloser, error,
) {
	head, closer, err := p.chain.HeadState()
	if err != nil {
		return nil, nil, err
	}

	var queued []core.Transaction
	p.mu.Lock()
	if acct, ok := p.accounts[*sender]; ok {
		for _, pending := range slices.Concat(acct.inflight, acct.ready) {
			if pending.Nonce < nonce {
				queued = append(queued, pending.Transaction)
			}
		}
	}
	p.mu.Unlock()
	if len(queued) == 0 {
		return head, closer, nil
	}

	view := state.NewPending(head)
	for _, txn := range queued {
		layer := view.Fork()
		if _, err = p.executor.Execute(txn, layer, env); err != nil {
			// later transactions of the sender depend on this one
			break
		}
		if err = view.Commit(layer); err != nil {
			return nil, nil, utils.RunAndWrapOnError(closer, err)
		}
	}
	return view, closer, nil
}

// makeRoom evicts the lowest ranked ready transaction when the pool is full and pending
// outranks it. Only the last ready transaction of a sender is a candidate, so no sender is
// left with a gap.
func (p *Pool) makeRoom(acct *account, pending *PendingTx) error {
	if p.cfg.MaxSize <= 0 || len(p.txs) < p.cfg.MaxSize {
		return nil
	}
	if pending.Nonce != acct.next() {
		return addErrorf(PoolFull, nil, "%d transactions pending", len(p.txs))
	}

	var victim *account
	for _, a := range p.queue {
		if a == acct {
			continue
		}
		if victim == nil || last(victim).Priority.Outranks(last(a).Priority) {
			victim = a
		}
	}
	if victim == nil || !pending.Priority.Outranks(last(victim).Priority) {
		return addErrorf(PoolFull, nil, "%d transactions pending", len(p.txs))
	}

	evicted := last(victim)
	victim.ready[len(victim.ready)-1] = nil
	victim.ready = victim.ready[:len(victim.ready)-1]
	p.nReady--
	delete(p.txs, *evicted.Hash())
	p.rejected.Add(*evicted.Hash(), addErrorf(PoolFull, nil, "evicted by %s", pending.Hash()))
	p.queue.requeue(victim)
	p.log.Debugw("Evicted transaction", "hash", evicted.Hash(), "by", pending.Hash())
	return nil
}

func last(a *account) *PendingTx {
	return a.ready[len(a.ready)-1]
}

func (p *Pool) insert(acct *account, pending *PendingTx) {
	p.txs[*pending.Hash()] = pending
	future := pending.Nonce != acct.next()
	if future {
		acct.future[pending.Nonce] = pending
		p.nFuture++
	} else {
		acct.ready = append(acct.ready, pending)
		p.nReady++
		p.becameReady(pending)
		p.promote(acct)
		p.queue.requeue(acct)
		p.signal()
	}

	p.hashes.Send(pending.Hash())
	p.listener.OnAdmitted(future)
	p.listener.OnSizeChanged(p.nReady, p.nFuture)
}

// promote moves future transactions that continue the ready run of acct into it.
func (p *Pool) promote(acct *account) {
	for {
		pending, ok := acct.future[acct.next()]
		if !ok {
			return
		}
		delete(acct.future, pending.Nonce)
		acct.ready = append(acct.ready, pending)
		p.nFuture--
		p.nReady++
		p.becameReady(pending)
	}
}

func (p *Pool) becameReady(pending *PendingTx) {
	p.ready.Send(pending)
}

func (p *Pool) signal() {
	select {
	case p.txPushed <- struct{}{}:
	default:
	}
}

// demoteFrom moves the ready transactions of acct from index i on back to the future set.
func (p *Pool) demoteFrom(acct *account, i int) {
	for _, pending := range acct.ready[i:] {
		acct.future[pending.Nonce] = pending
	}
	moved := len(acct.ready) - i
	p.nReady -= moved
	p.nFuture += moved
	clear(acct.ready[i:])
	acct.ready = acct.ready[:i]
	p.queue.requeue(acct)
}

// rebase aligns acct with the nonce the chain now expects. Transactions the chain has
// passed are dropped. Transactions that stay ready are not announced again.
func (p *Pool) rebase(acct *account, chainNonce uint64) {
	acct.inflight = slices.DeleteFunc(acct.inflight, func(pending *PendingTx) bool {
		return pending.Nonce < chainNonce
	})
	if chainNonce <= acct.nonce {
		return
	}

	stale := int(min(chainNonce-acct.nonce, uint64(len(acct.ready))))
	for _, pending := range acct.ready[:stale] {
		delete(p.txs, *pending.Hash())
	}
	p.nReady -= stale
	clear(acct.ready[:stale])
	acct.ready = acct.ready[stale:]
	acct.nonce = chainNonce
	for nonce, pending := range acct.future {
		if nonce < chainNonce {
			delete(acct.future, nonce)
			delete(p.txs, *pending.Hash())
			p.nFuture--
		}
	}
	p.promote(acct)
	p.queue.requeue(acct)
	if len(acct.ready) > 0 {
		p.signal()
	}
}

// TakeNext removes the best ready transaction from the pool and marks it included. It
// never blocks.
func (p *Pool) TakeNext() (*PendingTx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return nil, false
	}

	acct := p.queue[0]
	pending := acct.ready[0]
	acct.ready[0] = nil
	acct.ready = acct.ready[1:]
	acct.inflight = append(acct.inflight, pending)
	acct.nonce++
	p.nReady--
	delete(p.txs, *pending.Hash())
	p.included.Add(*pending.Hash(), struct{}{})
	p.queue.requeue(acct)
	p.listener.OnSizeChanged(p.nReady, p.nFuture)
	return pending, true
}

// Next is TakeNext that waits until a transaction is ready or ctx is done.
func (p *Pool) Next(ctx context.Context) (*PendingTx, error) {
	for {
		if pending, ok := p.TakeNext(); ok {
			return pending, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.txPushed:
		}
	}
}

// Wait fires when a transaction becomes ready.
func (p *Pool) Wait() <-chan struct{} {
	return p.txPushed
}

// Drop reports that a transaction handed out by TakeNext did not make it into the block.
// The sender's later transactions wait until the dropped nonce is filled again.
func (p *Pool) Drop(pending *PendingTx, reason error) {
	if reason == nil {
		reason = errors.New("dropped from the block")
	}
	addErr, ok := classify(reason).(*AddError)
	if !ok {
		addErr = &AddError{Kind: ValidationReverted, Reason: reason.Error(), Cause: reason}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.included.Remove(*pending.Hash())
	p.rejected.Add(*pending.Hash(), addErr)
	p.listener.OnRejected(addErr.Kind)

	acct, ok := p.accounts[*pending.Sender()]
	if !ok || pending.Nonce >= acct.nonce {
		return
	}
	acct.nonce = pending.Nonce
	acct.inflight = slices.DeleteFunc(acct.inflight, func(taken *PendingTx) bool {
		return taken.Nonce >= pending.Nonce
	})
	p.demoteFrom(acct, 0)
	p.listener.OnSizeChanged(p.nReady, p.nFuture)
}

// NotifyStateAdvanced catches the pool up with a newly sealed block. Admissions wait until
// it returns. Transactions the chain has made stale are dropped, held transactions whose
// nonce came up are released, and the transactions of senders whose nonce or fee balance
// the block changed are validated again.
func (p *Pool) NotifyStateAdvanced(ctx context.Context, block *core.Block) error {
	p.lease.Lock()
	defer p.lease.Unlock()

	balances, err := p.changedBalances(block.Number)
	if err != nil {
		return err
	}
	senders := make(map[felt.Felt]struct{}, len(block.Transactions))
	for _, txn := range block.Transactions {
		senders[*txn.Sender()] = struct{}{}
	}

	st, closer, err := p.chain.HeadState()
	if err != nil {
		return err
	}

	p.mu.Lock()
	var recheck []*PendingTx
	for addr, acct := range p.accounts {
		nonce, nonceErr := accountNonce(st, &addr)
		if nonceErr != nil {
			p.mu.Unlock()
			return utils.RunAndWrapOnError(closer, nonceErr)
		}
		p.rebase(acct, nonce)
		if acct.empty() {
			delete(p.accounts, addr)
			continue
		}

		_, sent := senders[addr]
		if !sent && len(balances) > 0 {
			_, sent = balances[*vm.BalanceKey(&addr)]
		}
		if sent {
			recheck = append(recheck, acct.ready...)
			for _, pending := range acct.future {
				recheck = append(recheck, pending)
			}
		}
	}
	p.listener.OnSizeChanged(p.nReady, p.nFuture)
	p.mu.Unlock()
	if err = closer(); err != nil {
		return err
	}

	env := p.env(block.Header)
	for _, pending := range recheck {
		err = p.simulate(ctx, pending.Transaction, pending.Nonce, env)
		var addErr *AddError
		if errors.As(err, &addErr) {
			p.evict(pending, addErr)
		} else if err != nil {
			p.log.Warnw("Failed to revalidate transaction", "hash", pending.Hash(), "err", err)
		}
	}
	return nil
}

func (p *Pool) changedBalances(number uint64) (map[felt.Felt]*felt.Felt, error) {
	diff, err := p.chain.StateUpdateByNumber(number)
	if err != nil {
		return nil, fmt.Errorf("state update of block %d: %w", number, err)
	}
	return diff.StorageDiffs[*p.spec.FeeTokenAddress], nil
}

// evict removes a pending transaction that no longer validates. Later transactions of the
// same sender are held until the gap is filled.
func (p *Pool) evict(pending *PendingTx, reason *AddError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[*pending.Hash()]; !ok {
		return
	}
	delete(p.txs, *pending.Hash())
	p.rejected.Add(*pending.Hash(), reason)
	p.listener.OnRejected(reason.Kind)
	p.log.Debugw("Evicted transaction", "hash", pending.Hash(), "err", reason)

	acct := p.accounts[*pending.Sender()]
	if _, held := acct.future[pending.Nonce]; held {
		delete(acct.future, pending.Nonce)
		p.nFuture--
	} else {
		for i, r := range acct.ready {
			if r == pending {
				p.demoteFrom(acct, i)
				delete(acct.future, pending.Nonce)
				p.nFuture--
				break
			}
		}
	}
	if acct.empty() {
		delete(p.accounts, acct.address)
	}
	p.listener.OnSizeChanged(p.nReady, p.nFuture)
}

// RemoveTransactions drops the given transactions from the pool.
func (p *Pool) RemoveTransactions(hashes ...*felt.Felt) {
	for _, hash := range hashes {
		p.mu.Lock()
		pending, ok := p.txs[*hash]
		p.mu.Unlock()
		if ok {
			p.evict(pending, addErrorf(ValidationReverted, nil, "removed from the pool"))
		}
	}
}

// Contains reports whether a transaction is waiting in the pool.
func (p *Pool) Contains(hash *felt.Felt) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.txs[*hash]
	return ok
}

func (p *Pool) Get(hash *felt.Felt) (*PendingTx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.txs[*hash]
	return pending, ok
}

// Size returns the number of ready and held transactions.
func (p *Pool) Size() (ready, future int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nReady, p.nFuture
}

func (p *Pool) Status(hash *felt.Felt) Status {
	p.mu.Lock()
	_, waiting := p.txs[*hash]
	included := p.included.Contains(*hash)
	p.mu.Unlock()
	if waiting {
		return StatusReceived
	}
	if included {
		return StatusIncluded
	}
	if p.rejected.Contains(*hash) {
		return StatusRejected
	}
	return StatusUnknown
}

// Rejection returns why a recently rejected transaction was refused.
func (p *Pool) Rejection(hash *felt.Felt) (*AddError, bool) {
	return p.rejected.Get(*hash)
}

// Subscribe streams transactions as they become ready. The subscription is closed when the
// consumer falls behind; Lagged then reports true and the consumer has to subscribe again.
func (p *Pool) Subscribe() *feed.Subscription[*PendingTx] {
	return p.ready.SubscribeCloseOnLag(readyBuffer)
}

// SubscribeHashes streams the hash of every admitted transaction. Hashes are dropped while
// the consumer's buffer is full.
func (p *Pool) SubscribeHashes() *feed.Subscription[*felt.Felt] {
	return p.hashes.SubscribeBuffered(hashListenerBuffer)
}
