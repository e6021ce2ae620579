package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pos-checkout/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishSaleCompleted(t *testing.T) {
	writer := &recordingWriter{}
	publisher := NewEventPublisher(NewProducerWithWriter(writer))

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "e-1", EventType: models.EventTypeSaleCompleted, Timestamp: time.Now()},
		SaleID:    42,
		Total:     25000,
		Lines:     []models.SaleLineData{{ItemID: 1, ItemName: "Es Teh", Quantity: 5, Price: 5000}},
	}
	require.NoError(t, publisher.PublishSaleCompleted(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "sale-42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, models.EventTypeSaleCompleted, string(msg.Headers[0].Value))

	var decoded models.SaleCompletedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(42), decoded.SaleID)
	assert.Len(t, decoded.Lines, 1)
}

func TestHandleMessageRoutesByType(t *testing.T) {
	handler := NewEventHandler()

	var sales, depleted []int64
	handler.OnSaleCompleted(func(ctx context.Context, e *models.SaleCompletedEvent) error {
		sales = append(sales, e.SaleID)
		return nil
	})
	handler.OnStockDepleted(func(ctx context.Context, e *models.StockDepletedEvent) error {
		depleted = append(depleted, e.RecordID)
		return nil
	})

	sale, _ := json.Marshal(models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeSaleCompleted},
		SaleID:    7,
	})
	stock, _ := json.Marshal(models.StockDepletedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeStockDepleted},
		RecordID:  31,
	})
	unknown, _ := json.Marshal(models.BaseEvent{EventType: "SOMETHING_ELSE"})

	ctx := context.Background()
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: sale}))
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: stock}))
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: unknown}))

	assert.Equal(t, []int64{7}, sales)
	assert.Equal(t, []int64{31}, depleted)

	assert.Error(t, handler.HandleMessage(ctx, kafka.Message{Value: []byte("not json")}))
}
