package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/jsonrpc"
)

// These are variables so tests can shorten them. A transaction nobody has heard of is
// looked up on every tick until the timeout ends the subscription.
var (
	subscribeTxStatusTimeout        = 5 * time.Minute
	subscribeTxStatusTickerDuration = 5 * time.Second
)

var errSubscriptionLagged = errors.New("subscriber fell behind")

type SubscriptionID string

type SubscriptionResponse struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type errorTxnHashNotFound struct {
	txHash felt.Felt
}

func (e errorTxnHashNotFound) Error() string {
	return fmt.Sprintf("transaction %v not found", e.txHash)
}

// SubscriptionBlockID is a BlockID that cannot be pending.
type SubscriptionBlockID BlockID

func (b *SubscriptionBlockID) UnmarshalJSON(data []byte) error {
	blockID := (*BlockID)(b)
	if err := blockID.UnmarshalJSON(data); err != nil {
		return err
	}
	if blockID.Pending {
		return errors.New("subscription block id cannot be pending")
	}
	return nil
}

type on[T any] func(ctx context.Context, id string, sub *subscription, event T) error

type subscriber struct {
	onStart   on[any]
	onNewHead on[*core.Block]
	onPoolTx  on[*felt.Felt]
	onTick    on[time.Time]
	tick      time.Duration
}

func (h *Handler) unsubscribe(sub *subscription, id string) {
	sub.cancel()
	h.subscriptions.Delete(id)
}

// subscribe runs the callbacks of subscriber on their own goroutine until ctx ends, a
// callback fails or a feed closes because the subscriber lagged.
func (h *Handler) subscribe(ctx context.Context, w jsonrpc.Conn, subscriber subscriber) (SubscriptionID, *jsonrpc.Error) {
	id := h.idgen()
	subscriptionCtx, subscriptionCtxCancel := context.WithCancel(ctx)
	sub := &subscription{
		cancel: subscriptionCtxCancel,
		conn:   w,
	}
	h.subscriptions.Store(id, sub)

	var (
		headsSub  *feed.Subscription[*core.Block]
		headsRecv <-chan *core.Block
		txSub     *feed.Subscription[*felt.Felt]
		txRecv    <-chan *felt.Felt
		tickRecv  <-chan time.Time
	)
	if subscriber.onNewHead != nil {
		headsSub = h.bcReader.SubscribeNewHeads()
		headsRecv = headsSub.Recv()
	}
	if subscriber.onPoolTx != nil && h.pool != nil {
		txSub = h.pool.SubscribeHashes()
		txRecv = txSub.Recv()
	}
	var ticker *time.Ticker
	if subscriber.onTick != nil {
		ticker = time.NewTicker(subscriber.tick)
		tickRecv = ticker.C
	}

	sub.wg.Go(func() {
		defer func() {
			h.unsubscribe(sub, id)
			if headsSub != nil {
				headsSub.Unsubscribe()
			}
			if txSub != nil {
				txSub.Unsubscribe()
			}
			if ticker != nil {
				ticker.Stop()
			}
		}()

		if subscriber.onStart != nil {
			if err := subscriber.onStart(subscriptionCtx, id, sub, nil); err != nil {
				h.log.Warnw("Error starting subscription", "err", err)
				return
			}
		}

		for {
			select {
			case <-subscriptionCtx.Done():
				return
			case head, ok := <-headsRecv:
				if !ok {
					h.endLagged(w, id)
					return
				}
				if err := subscriber.onNewHead(subscriptionCtx, id, sub, head); err != nil {
					h.log.Warnw("Error on new head", "id", id, "err", err)
					return
				}
			case hash, ok := <-txRecv:
				if !ok {
					h.endLagged(w, id)
					return
				}
				if err := subscriber.onPoolTx(subscriptionCtx, id, sub, hash); err != nil {
					h.log.Warnw("Error on pool transaction", "id", id, "err", err)
					return
				}
			case now := <-tickRecv:
				if err := subscriber.onTick(subscriptionCtx, id, sub, now); err != nil {
					h.log.Warnw("Error on tick", "id", id, "err", err)
					return
				}
			}
		}
	})

	return SubscriptionID(id), nil
}

// endLagged tells the client its subscription was dropped. It has to subscribe again.
func (h *Handler) endLagged(w jsonrpc.Conn, id string) {
	h.log.Debugw("Closing lagging subscription", "id", id)
	if err := sendResponse("katana_subscriptionClosed", w, id, errSubscriptionLagged.Error()); err != nil {
		h.log.Debugw("Failed to notify lagging subscriber", "id", id, "err", err)
	}
}

// SubscribeNewHeads streams the header of every sealed block, starting with the headers
// from blockID up to the head when it is given.
func (h *Handler) SubscribeNewHeads(ctx context.Context, blockID *SubscriptionBlockID) (SubscriptionID, *jsonrpc.Error) {
	w, ok := jsonrpc.ConnFromContext(ctx)
	if !ok {
		return "", jsonrpc.Err(jsonrpc.MethodNotFound, nil)
	}

	startHeader, latestHeader, rpcErr := h.resolveBlockRange(blockID)
	if rpcErr != nil {
		return "", rpcErr
	}

	subscriber := subscriber{
		onStart: func(ctx context.Context, id string, _ *subscription, _ any) error {
			return h.sendHistoricalHeaders(ctx, startHeader, latestHeader, w, id)
		},
		onNewHead: func(ctx context.Context, id string, _ *subscription, head *core.Block) error {
			if head.Number <= latestHeader.Number {
				return nil
			}
			return sendHeader(w, head.Header, id)
		},
	}
	return h.subscribe(ctx, w, subscriber)
}

// resolveBlockRange returns the first header to send and the head at subscription time.
func (h *Handler) resolveBlockRange(blockID *SubscriptionBlockID) (*core.Header, *core.Header, *jsonrpc.Error) {
	latestHeader, err := h.bcReader.HeadHeader()
	if err != nil {
		return nil, nil, ErrInternal.CloneWithData(err)
	}

	if blockID == nil || blockID.Latest {
		return latestHeader, latestHeader, nil
	}

	startHeader, rpcErr := h.blockHeaderByID((*BlockID)(blockID))
	if rpcErr != nil {
		return nil, nil, rpcErr
	}

	if latestHeader.Number >= maxBlocksBack && startHeader.Number <= latestHeader.Number-maxBlocksBack {
		return nil, nil, ErrTooManyBlocksBack
	}
	return startHeader, latestHeader, nil
}

func (h *Handler) sendHistoricalHeaders(ctx context.Context, startHeader, latestHeader *core.Header,
	w jsonrpc.Conn, id string,
) error {
	var err error
	curHeader := startHeader
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err = sendHeader(w, curHeader, id); err != nil {
				return err
			}
			if curHeader.Number >= latestHeader.Number {
				return nil
			}
			if curHeader, err = h.bcReader.BlockHeaderByNumber(curHeader.Number + 1); err != nil {
				return err
			}
		}
	}
}

func sendHeader(w jsonrpc.Conn, header *core.Header, id string) error {
	return sendResponse("starknet_subscriptionNewHeads", w, id, adaptBlockHeader(header))
}

type SubscriptionTransactionStatus struct {
	TransactionHash *felt.Felt        `json:"transaction_hash"`
	Status          TransactionStatus `json:"status"`
}

// SubscribeTransactionStatus streams every change of the transaction's status. The
// subscription ends once the transaction is sealed or rejected.
func (h *Handler) SubscribeTransactionStatus(ctx context.Context, txHash felt.Felt) (SubscriptionID, *jsonrpc.Error) {
	w, ok := jsonrpc.ConnFromContext(ctx)
	if !ok {
		return "", jsonrpc.Err(jsonrpc.MethodNotFound, nil)
	}

	var (
		lastStatus TxnStatus
		deadline   = time.Now().Add(subscribeTxStatusTimeout)
	)
	check := func(id string, sub *subscription) error {
		var err error
		lastStatus, err = h.checkTxStatus(sub, id, &txHash, lastStatus)
		var notFound errorTxnHashNotFound
		if errors.As(err, &notFound) {
			if time.Now().After(deadline) {
				return err
			}
			return nil
		}
		return err
	}

	subscriber := subscriber{
		onStart: func(_ context.Context, id string, sub *subscription, _ any) error {
			return check(id, sub)
		},
		onNewHead: func(_ context.Context, id string, sub *subscription, _ *core.Block) error {
			return check(id, sub)
		},
		onPoolTx: func(_ context.Context, id string, sub *subscription, hash *felt.Felt) error {
			if !hash.Equal(&txHash) {
				return nil
			}
			return check(id, sub)
		},
		onTick: func(_ context.Context, id string, sub *subscription, _ time.Time) error {
			return check(id, sub)
		},
		tick: subscribeTxStatusTickerDuration,
	}
	return h.subscribe(ctx, w, subscriber)
}

// checkTxStatus sends the status when it changed and cancels the subscription once the
// status is final.
func (h *Handler) checkTxStatus(sub *subscription, id string, txHash *felt.Felt, lastStatus TxnStatus) (TxnStatus, error) {
	status, rpcErr := h.TransactionStatus(*txHash)
	if rpcErr != nil {
		if rpcErr != ErrTxnHashNotFound {
			return lastStatus, fmt.Errorf("check status of transaction %v: %v", txHash, rpcErr.Message)
		}
		return lastStatus, errorTxnHashNotFound{*txHash}
	}

	if status.Finality == lastStatus {
		return lastStatus, nil
	}
	if err := sendResponse("starknet_subscriptionTransactionStatus", sub.conn, id,
		SubscriptionTransactionStatus{TransactionHash: txHash, Status: *status}); err != nil {
		return lastStatus, err
	}
	if status.Finality == TxnStatusRejected || status.Finality == TxnStatusAcceptedOnL2 {
		sub.cancel()
	}
	return status.Finality, nil
}

func (h *Handler) Unsubscribe(ctx context.Context, id string) (bool, *jsonrpc.Error) {
	w, ok := jsonrpc.ConnFromContext(ctx)
	if !ok {
		return false, jsonrpc.Err(jsonrpc.MethodNotFound, nil)
	}
	sub, ok := h.subscriptions.Load(id)
	if !ok {
		return false, ErrInvalidSubscriptionID
	}

	subs := sub.(*subscription)
	if !subs.conn.Equal(w) {
		return false, ErrInvalidSubscriptionID
	}

	subs.cancel()
	subs.wg.Wait() // let the subscription finish before responding
	h.subscriptions.Delete(id)
	return true, nil
}

func sendResponse(method string, w jsonrpc.Conn, id string, result any) error {
	resp, err := json.Marshal(SubscriptionResponse{
		Version: "2.0",
		Method:  method,
		Params: map[string]any{
			"subscription_id": id,
			"result":          result,
		},
	})
	if err != nil {
		return err
	}
	_, err = w.Write(resp)
	return err
}
