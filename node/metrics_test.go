package node

import (
	"testing"
	"time"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func assertGaugeValue(t *testing.T, reg *prometheus.Registry, name string, expected float64) {
	t.Helper()
	metrics, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, metric := range metrics {
		if metric.GetName() == name {
			found = true
			require.Len(t, metric.GetMetric(), 1, "expected 1 metric value")
			assert.Equal(t, expected, metric.GetMetric()[0].GetGauge().GetValue())
		}
	}
	require.True(t, found, "metric %q not found", name)
}

// withRegistry points the default registerer at a fresh registry for the duration of
// the test.
func withRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	originalRegisterer := prometheus.DefaultRegisterer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = originalRegisterer
	})
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	return reg
}

func TestMakeBlockchainMetrics(t *testing.T) {
	reg := withRegistry(t)

	ctrl := gomock.NewController(t)
	mockReader := mocks.NewMockReader(ctrl)
	mockReader.EXPECT().Height().Return(uint64(7), nil).AnyTimes()

	listener := makeBlockchainMetrics(mockReader)
	assertGaugeValue(t, reg, "blockchain_height", 7)

	listener.OnRead("BlockByNumber")
	listener.OnRead("BlockByNumber")
	listener.OnStore(8, time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "blockchain_reads"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "blockchain_store_latency"))
}

func TestMakePoolMetrics(t *testing.T) {
	reg := withRegistry(t)

	listener := makePoolMetrics()
	listener.OnAdmitted(false)
	listener.OnAdmitted(true)
	listener.OnRejected(mempool.NonceAlreadyUsed)
	listener.OnSizeChanged(3, 1)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "pool_admitted"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "pool_rejected"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "pool_size"))
}

func TestMakeBuilderMetrics(t *testing.T) {
	reg := withRegistry(t)

	listener := makeBuilderMetrics()
	listener.OnTransactionExecuted(false)
	listener.OnTransactionExecuted(true)
	listener.OnTransactionDropped()
	listener.OnBlockSealed(&core.Header{Number: 1, TransactionCount: 2}, time.Millisecond)
	listener.OnBlockAborted(2)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "producer_transactions_executed"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "producer_block_transactions"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "producer_blocks_sealed"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "producer_blocks_aborted"))
}

func TestMakeSyncMetrics(t *testing.T) {
	reg := withRegistry(t)

	listener := makeSyncMetrics()
	listener.OnTip(12)
	listener.OnSyncStepDone("Blocks", 10, time.Second)
	listener.OnStageError("Execution")

	assertGaugeValue(t, reg, "sync_best_known_block_number", 12)
	assertGaugeValue(t, reg, "sync_checkpoint", 10)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "sync_stage_errors"))
}

func TestHitRate(t *testing.T) {
	assert.Zero(t, hitRate(0, 0))
	assert.InDelta(t, 0.75, hitRate(3, 1), 1e-9)
}
