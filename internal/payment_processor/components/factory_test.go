package components

import (
	"testing"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/data/postgres"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			DefaultConcurrency: 2,
			Concurrency:        map[string]int{"transactions.nedbank": 5},
		},
		Processor: config.ProcessorConfig{MaxFailedAttempts: 3},
	}
}

func TestCreateProcessingService(t *testing.T) {
	registry, err := fsp.NewRegistry()
	require.NoError(t, err)

	svc := CreateProcessingService(ProcessorDeps{
		DB:            &MockTxRunner{},
		Transactions:  &postgres.TransactionRepository{},
		Orders:        &postgres.OrderRepository{},
		Beneficiaries: &MockBeneficiaryRepository{},
		Adapters:      registry,
		Notifier:      notification.Nop{},
	}, newTestLogger(), testConfig())

	assert.NotNil(t, svc)
}

func TestCreateQueueHandlers(t *testing.T) {
	t.Run("PoolPerQueue", func(t *testing.T) {
		queues := []string{"transactions.default", "transactions.nedbank"}

		registry, pools, err := CreateQueueHandlers(nil, nil, queues, newTestLogger(), testConfig())
		require.NoError(t, err)
		defer func() {
			for _, p := range pools {
				p.Shutdown()
			}
		}()

		require.Len(t, pools, 2)
		reg, ok := registry.Lookup("transactions.nedbank")
		require.True(t, ok)
		assert.Equal(t, 5, reg.Concurrency)
		assert.Equal(t, 5, pools[1].Capacity())

		reg, ok = registry.Lookup("transactions.default")
		require.True(t, ok)
		assert.Equal(t, 2, reg.Concurrency)
	})

	t.Run("InvalidConcurrency", func(t *testing.T) {
		cfg := testConfig()
		cfg.Queue.DefaultConcurrency = 0

		_, _, err := CreateQueueHandlers(nil, nil, []string{"transactions.default"}, newTestLogger(), cfg)
		assert.Error(t, err)
	})
}
