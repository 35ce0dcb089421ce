package config

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/pkg/response"
)

// GinHandlers contains the gateway administration handlers.
type GinHandlers struct {
	db      *Database
	session *venue.Session
}

// NewGinHandlers creates the gateway administration handlers.
func NewGinHandlers(db *Database, session *venue.Session) *GinHandlers {
	return &GinHandlers{db: db, session: session}
}

// ConnectionStatusHandler handles GET requests for the gateway
// connection state and the configuration in use.
func (h *GinHandlers) ConnectionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.db.GetActive()
		if err != nil {
			if errors.Is(err, ErrNoActiveConfig) {
				response.NotFound(c, err.Error())
				return
			}
			response.InternalError(c, err.Error())
			return
		}

		connected := h.session.IsConnected()
		message := "connected to venue gateway"
		if !connected {
			message = "venue gateway session is " + h.session.State().String()
		}

		response.Success(c, types.ConnectionStatusResponse{
			Connected: connected,
			Message:   message,
			Host:      cfg.Host,
			Port:      cfg.Port,
			ClientID:  cfg.ClientID,
		})
	}
}

// ReconnectHandler handles POST requests to re-establish the venue
// session. A no-op when the session is already connected.
func (h *GinHandlers) ReconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.session.Connect(); err != nil {
			response.ServiceUnavailable(c, err.Error())
			return
		}
		response.Success(c, gin.H{"connected": true})
	}
}
