// Package webhook is the ingestion boundary: it persists every inbound
// trading signal verbatim and, when the payload parses as an order
// request, hands it to the order service with a back-reference to the
// stored signal.
package webhook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/interbroker/bridge-api/internal/orders"
	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/pkg/response"
)

// Webhook is a stored inbound signal.
type Webhook struct {
	gorm.Model `json:"-"`
	WebhookID  string    `gorm:"uniqueIndex" json:"webhook_id"`
	Payload    string    `json:"payload"`
	Headers    string    `json:"headers"`
	SourceIP   string    `json:"source_ip"`
	ReceivedAt time.Time `json:"received_at"`
}

// Database owns the webhook queries.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Create(w *Webhook) error {
	return d.db.Create(w).Error
}

func (d *Database) Get(webhookID string) (*Webhook, error) {
	var w Webhook
	if err := d.db.Where("webhook_id = ?", webhookID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// Service stores signals and forwards tradable ones.
type Service struct {
	db     *Database
	orders *orders.Service
}

// NewService creates a webhook service writing through to the order
// service.
func NewService(gormDB *gorm.DB, orderService *orders.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		orders: orderService,
	}
}

// Ingest persists the signal and places the order it describes. The
// signal is stored whether or not placement succeeds, so nothing the
// venue rejects is lost.
func (s *Service) Ingest(payload []byte, headers map[string]string, sourceIP string) (*Webhook, *types.Order, error) {
	headerJSON, _ := json.Marshal(headers)
	record := &Webhook{
		WebhookID:  uuid.New().String(),
		Payload:    string(payload),
		Headers:    string(headerJSON),
		SourceIP:   sourceIP,
		ReceivedAt: time.Now(),
	}
	if err := s.db.Create(record); err != nil {
		return nil, nil, err
	}

	logger := log.With().
		Str("webhook_id", record.WebhookID).
		Str("source_ip", sourceIP).
		Logger()
	logger.Info().Msg("stored inbound signal")

	var req types.OrderRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Symbol == "" {
		// Not an order signal; stored for the record only.
		logger.Debug().Msg("signal carries no order request")
		return record, nil, nil
	}

	order, err := s.orders.PlaceOrder(req, record.WebhookID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to place order from signal")
		return record, nil, err
	}

	logger.Info().
		Int64("venue_order_id", order.VenueOrderID).
		Str("symbol", order.Symbol).
		Msg("signal converted to order")
	return record, order, nil
}

// GinHandlers contains the HTTP handler for signal ingestion.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the webhook HTTP handlers.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// IngestHandler handles POST requests carrying trading signals.
func (h *GinHandlers) IngestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			response.BadRequest(c, "unreadable payload")
			return
		}

		headers := make(map[string]string, len(c.Request.Header))
		for name := range c.Request.Header {
			headers[name] = c.GetHeader(name)
		}

		record, order, err := h.service.Ingest(payload, headers, c.ClientIP())
		if err != nil {
			var placement *venue.PlacementError
			switch {
			case errors.As(err, &placement):
				response.BadRequest(c, placement.Error())
			case errors.Is(err, venue.ErrDuplicateOrderID):
				response.Conflict(c, err.Error())
			case errors.Is(err, venue.ErrNotConnected), errors.Is(err, venue.ErrNoOrderID):
				response.ServiceUnavailable(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, gin.H{
			"webhook": record,
			"order":   order,
		})
	}
}
