package worker

import (
	"context"
	"encoding/json"
	"testing"

	"pos-checkout/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateLocal() {
	c.calls++
}

func TestCatalogWorkerInvalidatesOnSaleEvents(t *testing.T) {
	catalog := &countingInvalidator{}
	w := NewCatalogWorker(nil, catalog)
	ctx := context.Background()

	sale, err := json.Marshal(models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeSaleCompleted},
		SaleID:    3,
	})
	require.NoError(t, err)
	depleted, err := json.Marshal(models.StockDepletedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeStockDepleted},
		SaleID:    3,
		RecordID:  211,
	})
	require.NoError(t, err)

	require.NoError(t, w.eventHandler.HandleMessage(ctx, kafka.Message{Value: sale}))
	assert.Equal(t, 1, catalog.calls)

	require.NoError(t, w.eventHandler.HandleMessage(ctx, kafka.Message{Value: depleted}))
	assert.Equal(t, 2, catalog.calls)
}
