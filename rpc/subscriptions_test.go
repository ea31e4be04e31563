package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/feed"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeConn struct {
	net.Conn
	w io.Writer
}

func (fc *fakeConn) Write(p []byte) (int, error) {
	return fc.w.Write(p)
}

func (fc *fakeConn) Equal(other jsonrpc.Conn) bool {
	fc2, ok := other.(*fakeConn)
	if !ok {
		return false
	}
	return fc.w == fc2.w
}

func testHeader(number uint64) *core.Header {
	return &core.Header{
		Hash:       new(felt.Felt).SetUint64(100 + number),
		ParentHash: new(felt.Felt).SetUint64(99 + number),
		Number:     number,
		StateRoot:  new(felt.Felt).SetUint64(200 + number),
		Timestamp:  1000 + number,
	}
}

func newSubscriptionHandler(t *testing.T, mockReader *mocks.MockReader) *Handler {
	t.Helper()
	return New(mockReader, nil, nil, "", utils.NewNopZapLogger()).WithIDGen(func() string { return "1" })
}

// subscriptionConn returns a context carrying the server end of a pipe and the client end.
func subscriptionConn(t *testing.T) (context.Context, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		require.NoError(t, serverConn.Close())
		require.NoError(t, clientConn.Close())
	})
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	return context.WithValue(ctx, jsonrpc.ConnKey{}, &fakeConn{w: serverConn}), clientConn
}

func assertNextMessage(t *testing.T, conn net.Conn, id SubscriptionID, method string, result any) {
	t.Helper()

	want, err := json.Marshal(SubscriptionResponse{
		Version: "2.0",
		Method:  method,
		Params: map[string]any{
			"subscription_id": id,
			"result":          result,
		},
	})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	got := make([]byte, len(want))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, string(want), string(got))
}

func TestSubscribeNewHeads(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	handler := newSubscriptionHandler(t, mockReader)
	heads := feed.New[*core.Block]()

	mockReader.EXPECT().HeadHeader().Return(testHeader(1), nil)
	mockReader.EXPECT().SubscribeNewHeads().Return(heads.SubscribeCloseOnLag(8))

	ctx, conn := subscriptionConn(t)
	id, rpcErr := handler.SubscribeNewHeads(ctx, nil)
	require.Nil(t, rpcErr)
	assert.Equal(t, SubscriptionID("1"), id)

	assertNextMessage(t, conn, id, "starknet_subscriptionNewHeads", adaptBlockHeader(testHeader(1)))

	// heads already sent are skipped
	heads.Send(&core.Block{Header: testHeader(1)})
	heads.Send(&core.Block{Header: testHeader(2)})
	assertNextMessage(t, conn, id, "starknet_subscriptionNewHeads", adaptBlockHeader(testHeader(2)))
}

func TestSubscribeNewHeadsHistorical(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	handler := newSubscriptionHandler(t, mockReader)
	heads := feed.New[*core.Block]()

	mockReader.EXPECT().HeadHeader().Return(testHeader(2), nil)
	mockReader.EXPECT().BlockHeaderByNumber(uint64(1)).Return(testHeader(1), nil)
	mockReader.EXPECT().BlockHeaderByNumber(uint64(2)).Return(testHeader(2), nil)
	mockReader.EXPECT().SubscribeNewHeads().Return(heads.SubscribeCloseOnLag(8))

	ctx, conn := subscriptionConn(t)
	id, rpcErr := handler.SubscribeNewHeads(ctx, &SubscriptionBlockID{Number: 1})
	require.Nil(t, rpcErr)

	assertNextMessage(t, conn, id, "starknet_subscriptionNewHeads", adaptBlockHeader(testHeader(1)))
	assertNextMessage(t, conn, id, "starknet_subscriptionNewHeads", adaptBlockHeader(testHeader(2)))

	heads.Send(&core.Block{Header: testHeader(3)})
	assertNextMessage(t, conn, id, "starknet_subscriptionNewHeads", adaptBlockHeader(testHeader(3)))
}

func TestSubscribeNewHeadsErrors(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	handler := newSubscriptionHandler(t, mockReader)

	t.Run("no connection", func(t *testing.T) {
		_, rpcErr := handler.SubscribeNewHeads(t.Context(), nil)
		assert.Equal(t, jsonrpc.Err(jsonrpc.MethodNotFound, nil), rpcErr)
	})

	t.Run("too many blocks back", func(t *testing.T) {
		mockReader.EXPECT().HeadHeader().Return(testHeader(2000), nil)
		mockReader.EXPECT().BlockHeaderByNumber(uint64(0)).Return(testHeader(0), nil)

		ctx, _ := subscriptionConn(t)
		_, rpcErr := handler.SubscribeNewHeads(ctx, &SubscriptionBlockID{Number: 0})
		assert.Equal(t, ErrTooManyBlocksBack, rpcErr)
	})

	t.Run("unknown block", func(t *testing.T) {
		mockReader.EXPECT().HeadHeader().Return(testHeader(2), nil)
		mockReader.EXPECT().BlockHeaderByNumber(uint64(5)).Return(nil, db.ErrKeyNotFound)

		ctx, _ := subscriptionConn(t)
		_, rpcErr := handler.SubscribeNewHeads(ctx, &SubscriptionBlockID{Number: 5})
		assert.Equal(t, ErrBlockNotFound, rpcErr)
	})

	t.Run("pending is refused", func(t *testing.T) {
		var id SubscriptionBlockID
		require.Error(t, json.Unmarshal([]byte(`"pending"`), &id))
		require.NoError(t, json.Unmarshal([]byte(`"latest"`), &id))
		assert.True(t, id.Latest)
	})
}

func TestSubscribeTransactionStatus(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	mockPool := mocks.NewMockPool(mockCtrl)
	handler := newSubscriptionHandler(t, mockReader).WithPool(mockPool)

	heads := feed.New[*core.Block]()
	hashes := feed.New[*felt.Felt]()
	txHash := new(felt.Felt).SetUint64(0x7a)

	var admitted, sealed atomic.Bool
	mockReader.EXPECT().SubscribeNewHeads().Return(heads.SubscribeCloseOnLag(8))
	mockPool.EXPECT().SubscribeHashes().Return(hashes.SubscribeBuffered(8))
	mockReader.EXPECT().Receipt(txHash).DoAndReturn(
		func(*felt.Felt) (*core.TransactionReceipt, *felt.Felt, uint64, error) {
			if sealed.Load() {
				return &core.TransactionReceipt{TransactionHash: txHash}, testHeader(3).Hash, 3, nil
			}
			return nil, nil, 0, db.ErrKeyNotFound
		}).AnyTimes()
	mockPool.EXPECT().Status(txHash).DoAndReturn(func(*felt.Felt) mempool.Status {
		if admitted.Load() {
			return mempool.StatusReceived
		}
		return mempool.StatusUnknown
	}).AnyTimes()

	ctx, conn := subscriptionConn(t)
	id, rpcErr := handler.SubscribeTransactionStatus(ctx, *txHash)
	require.Nil(t, rpcErr)

	// other transactions are ignored
	hashes.Send(new(felt.Felt).SetUint64(0x7b))

	admitted.Store(true)
	hashes.Send(txHash)
	assertNextMessage(t, conn, id, "starknet_subscriptionTransactionStatus", SubscriptionTransactionStatus{
		TransactionHash: txHash,
		Status:          TransactionStatus{Finality: TxnStatusReceived},
	})

	sealed.Store(true)
	heads.Send(&core.Block{Header: testHeader(3)})
	assertNextMessage(t, conn, id, "starknet_subscriptionTransactionStatus", SubscriptionTransactionStatus{
		TransactionHash: txHash,
		Status:          TransactionStatus{Finality: TxnStatusAcceptedOnL2, Execution: TxnSuccess},
	})

	require.Eventually(t, func() bool {
		_, ok := handler.subscriptions.Load(string(id))
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubscribeTransactionStatusRejected(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	mockPool := mocks.NewMockPool(mockCtrl)
	handler := newSubscriptionHandler(t, mockReader).WithPool(mockPool)
	txHash := new(felt.Felt).SetUint64(0x7c)
	rejection := &mempool.AddError{Kind: mempool.SignatureInvalid}

	mockReader.EXPECT().SubscribeNewHeads().Return(feed.New[*core.Block]().SubscribeCloseOnLag(8))
	mockPool.EXPECT().SubscribeHashes().Return(feed.New[*felt.Felt]().SubscribeBuffered(8))
	mockReader.EXPECT().Receipt(txHash).Return(nil, nil, uint64(0), db.ErrKeyNotFound)
	mockPool.EXPECT().Status(txHash).Return(mempool.StatusRejected)
	mockPool.EXPECT().Rejection(txHash).Return(rejection, true)

	ctx, conn := subscriptionConn(t)
	id, rpcErr := handler.SubscribeTransactionStatus(ctx, *txHash)
	require.Nil(t, rpcErr)

	assertNextMessage(t, conn, id, "starknet_subscriptionTransactionStatus", SubscriptionTransactionStatus{
		TransactionHash: txHash,
		Status:          TransactionStatus{Finality: TxnStatusRejected, FailureReason: rejection.Error()},
	})
	require.Eventually(t, func() bool {
		_, ok := handler.subscriptions.Load(string(id))
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnsubscribe(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	t.Cleanup(mockCtrl.Finish)

	mockReader := mocks.NewMockReader(mockCtrl)
	handler := newSubscriptionHandler(t, mockReader)

	t.Run("no connection", func(t *testing.T) {
		ok, rpcErr := handler.Unsubscribe(t.Context(), "1")
		assert.False(t, ok)
		assert.Equal(t, jsonrpc.Err(jsonrpc.MethodNotFound, nil), rpcErr)
	})

	t.Run("unknown id", func(t *testing.T) {
		ctx, _ := subscriptionConn(t)
		ok, rpcErr := handler.Unsubscribe(ctx, "999")
		assert.False(t, ok)
		assert.Equal(t, ErrInvalidSubscriptionID, rpcErr)
	})

	t.Run("other connection", func(t *testing.T) {
		ctx, _ := subscriptionConn(t)
		conn, _ := jsonrpc.ConnFromContext(ctx)
		_, cancel := context.WithCancel(ctx)
		handler.subscriptions.Store("2", &subscription{cancel: cancel, conn: conn})

		otherCtx, _ := subscriptionConn(t)
		ok, rpcErr := handler.Unsubscribe(otherCtx, "2")
		assert.False(t, ok)
		assert.Equal(t, ErrInvalidSubscriptionID, rpcErr)
	})

	t.Run("running subscription", func(t *testing.T) {
		heads := feed.New[*core.Block]()
		mockReader.EXPECT().HeadHeader().Return(testHeader(1), nil)
		mockReader.EXPECT().SubscribeNewHeads().Return(heads.SubscribeCloseOnLag(8))

		ctx, conn := subscriptionConn(t)
		id, rpcErr := handler.SubscribeNewHeads(ctx, nil)
		require.Nil(t, rpcErr)
		assertNextMessage(t, conn, id, "starknet_subscriptionNewHeads", adaptBlockHeader(testHeader(1)))

		ok, rpcErr := handler.Unsubscribe(ctx, string(id))
		require.Nil(t, rpcErr)
		assert.True(t, ok)

		_, found := handler.subscriptions.Load(string(id))
		assert.False(t, found)
		assert.Zero(t, heads.Len())
	})
}
