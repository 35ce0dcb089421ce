package webhook_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/interbroker/bridge-api/internal/database"
	"github.com/interbroker/bridge-api/internal/orders"
	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/internal/venue/mockvenue"
	"github.com/interbroker/bridge-api/internal/webhook"
)

func newTestService(t *testing.T, connect bool) (*webhook.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	require.NoError(t, err)

	session := venue.NewSessionWithDialer("127.0.0.1", 4002, 11, mockvenue.New())
	if connect {
		require.NoError(t, session.Connect())
		t.Cleanup(func() { session.Disconnect() })
	}
	return webhook.NewService(db, orders.NewService(db, session)), db
}

func TestIngestPlacesOrderFromSignal(t *testing.T) {
	service, _ := newTestService(t, true)

	payload := []byte(`{"symbol":"XYZ","action":"BUY","quantity":10}`)
	record, order, err := service.Ingest(payload, map[string]string{"Content-Type": "application/json"}, "10.0.0.1")
	require.NoError(t, err)

	require.NotNil(t, record)
	assert.NotEmpty(t, record.WebhookID)
	assert.Equal(t, string(payload), record.Payload)
	assert.Equal(t, "10.0.0.1", record.SourceIP)

	require.NotNil(t, order)
	assert.Equal(t, "XYZ", order.Symbol)
	assert.Equal(t, types.SideBuy, order.Side)
	assert.True(t, decimal.NewFromInt(10).Equal(order.Quantity))
	assert.Equal(t, record.WebhookID, order.WebhookID)
}

func TestIngestStoresNonOrderSignal(t *testing.T) {
	service, db := newTestService(t, true)

	record, order, err := service.Ingest([]byte(`{"alert":"price crossed"}`), nil, "10.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, order)

	stored, err := webhook.NewDatabase(db).Get(record.WebhookID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

// A signal the venue cannot take must still be stored.
func TestIngestStoresSignalWhenPlacementFails(t *testing.T) {
	service, db := newTestService(t, false)

	payload := []byte(`{"symbol":"XYZ","action":"BUY","quantity":10}`)
	record, order, err := service.Ingest(payload, nil, "10.0.0.1")
	assert.ErrorIs(t, err, venue.ErrNotConnected)
	assert.Nil(t, order)

	require.NotNil(t, record)
	stored, err := webhook.NewDatabase(db).Get(record.WebhookID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, string(payload), stored.Payload)
}
